package settings

import "testing"

func TestRedactedConfigRedactsSecrets(t *testing.T) {
	cfg := Defaults()
	cfg.Wallet.PrivateKey = "0xdeadbeef"
	cfg.Wallet.KeyPassword = "hunter2"
	cfg.Redis.Password = "redispw"
	cfg.S3.AccessKey = "AKIA..."
	cfg.S3.SecretKey = "secret"
	cfg.Postgres.DSN = "postgres://user:pw@host/db"
	cfg.Postgres.Password = "pgpw"
	cfg.Notify.TelegramToken = "tgtoken"
	cfg.Notify.DiscordWebhookURL = "https://discord.example/webhook"

	out := RedactedConfig(&cfg)

	for _, got := range []string{
		out.Wallet.PrivateKey, out.Wallet.KeyPassword, out.Redis.Password,
		out.S3.AccessKey, out.S3.SecretKey, out.Postgres.DSN, out.Postgres.Password,
		out.Notify.TelegramToken, out.Notify.DiscordWebhookURL,
	} {
		if got != redacted {
			t.Fatalf("field = %q, want redacted placeholder", got)
		}
	}
}

func TestRedactedConfigLeavesEmptySecretsEmpty(t *testing.T) {
	cfg := Defaults()
	out := RedactedConfig(&cfg)

	if out.Wallet.PrivateKey != "" {
		t.Fatalf("PrivateKey = %q, want empty since it was never set", out.Wallet.PrivateKey)
	}
}

func TestRedactedConfigLeavesNonSecretFieldsIntact(t *testing.T) {
	cfg := Defaults()
	cfg.Pair = "WETH-USDC"
	cfg.Exchange.Kind = "mock"

	out := RedactedConfig(&cfg)

	if out.Pair != "WETH-USDC" {
		t.Fatalf("Pair = %q, want unchanged", out.Pair)
	}
	if out.Exchange.Kind != "mock" {
		t.Fatalf("Exchange.Kind = %q, want unchanged", out.Exchange.Kind)
	}
}

func TestRedactedConfigDoesNotMutateOriginalSlices(t *testing.T) {
	cfg := Defaults()
	cfg.Notify.Events = []string{"keeper_running"}

	out := RedactedConfig(&cfg)
	out.Notify.Events[0] = "mutated"

	if cfg.Notify.Events[0] != "keeper_running" {
		t.Fatalf("original Events mutated through the redacted copy: %v", cfg.Notify.Events)
	}
}
