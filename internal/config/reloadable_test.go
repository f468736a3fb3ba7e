package config

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const sampleDoc = `{
	"pair": "WETH-USDC",
	"buyBands": [{"minMargin": 0.01, "avgMargin": 0.02, "maxMargin": 0.03, "minAmount": 1, "avgAmount": 5, "maxAmount": 10}],
	"sellBands": [{"minMargin": 0.01, "avgMargin": 0.02, "maxMargin": 0.03, "minAmount": 1, "avgAmount": 5, "maxAmount": 10}],
	"buyLimits": [{"period": "1d", "amount": 1000}],
	"sellLimits": [{"period": "1d", "amount": 1000}]
}`

func writeBandsFile(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "bands.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestReloadableLoadsOnFirstPoll(t *testing.T) {
	dir := t.TempDir()
	path := writeBandsFile(t, dir, sampleDoc)

	r := NewReloadable(path, nil, discardLogger())
	if err := r.Poll(); err != nil {
		t.Fatalf("Poll: %v", err)
	}

	bs := r.BandSet()
	if len(bs.Buy) != 1 || len(bs.Sell) != 1 {
		t.Fatalf("BandSet() = %+v, want one buy and one sell band", bs)
	}

	buyLimits, sellLimits := r.Limits()
	if buyLimits == nil || sellLimits == nil {
		t.Fatalf("Limits() = (%v, %v), want both non-nil", buyLimits, sellLimits)
	}
}

func TestReloadableMissingFileOnFirstPollFails(t *testing.T) {
	r := NewReloadable(filepath.Join(t.TempDir(), "missing.json"), nil, discardLogger())
	if err := r.Poll(); err == nil {
		t.Fatalf("expected an error on first poll against a missing file")
	}
}

func TestReloadableKeepsPreviousConfigWhenFileDisappears(t *testing.T) {
	dir := t.TempDir()
	path := writeBandsFile(t, dir, sampleDoc)

	r := NewReloadable(path, nil, discardLogger())
	if err := r.Poll(); err != nil {
		t.Fatalf("initial Poll: %v", err)
	}

	if err := os.Remove(path); err != nil {
		t.Fatalf("Remove: %v", err)
	}

	if err := r.Poll(); err != nil {
		t.Fatalf("Poll after removal = %v, want nil (previous config retained)", err)
	}

	bs := r.BandSet()
	if len(bs.Buy) != 1 {
		t.Fatalf("BandSet() after removal = %+v, want the previously loaded bands still in place", bs)
	}
}

func TestReloadableSkipsReparseWhenContentUnchanged(t *testing.T) {
	dir := t.TempDir()
	path := writeBandsFile(t, dir, sampleDoc)

	r := NewReloadable(path, nil, discardLogger())
	if err := r.Poll(); err != nil {
		t.Fatalf("initial Poll: %v", err)
	}
	firstDoc := r.Document()

	// Touch the file (mtime moves) without changing its content.
	future := time.Now().Add(time.Minute)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatalf("Chtimes: %v", err)
	}

	if err := r.Poll(); err != nil {
		t.Fatalf("Poll after touch: %v", err)
	}
	if r.Document().Pair != firstDoc.Pair {
		t.Fatalf("Document() changed after a no-op touch, want it untouched")
	}
}

func TestReloadablePicksUpContentChange(t *testing.T) {
	dir := t.TempDir()
	path := writeBandsFile(t, dir, sampleDoc)

	r := NewReloadable(path, nil, discardLogger())
	if err := r.Poll(); err != nil {
		t.Fatalf("initial Poll: %v", err)
	}

	updated := `{
		"pair": "WETH-USDC",
		"buyBands": [],
		"sellBands": [],
		"buyLimits": [],
		"sellLimits": []
	}`
	future := time.Now().Add(time.Minute)
	if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatalf("Chtimes: %v", err)
	}

	if err := r.Poll(); err != nil {
		t.Fatalf("Poll after update: %v", err)
	}
	if bs := r.BandSet(); len(bs.Buy) != 0 || len(bs.Sell) != 0 {
		t.Fatalf("BandSet() after update = %+v, want empty bands", bs)
	}
}

func TestReloadableRendersTemplateVars(t *testing.T) {
	dir := t.TempDir()
	templated := `{
		"pair": "WETH-USDC",
		"buyBands": [{"minMargin": {{.Env.MARGIN}}, "avgMargin": 0.02, "maxMargin": 0.03, "minAmount": 1, "avgAmount": 5, "maxAmount": 10}],
		"sellBands": [],
		"buyLimits": [],
		"sellLimits": []
	}`
	path := writeBandsFile(t, dir, templated)

	r := NewReloadable(path, map[string]string{"MARGIN": "0.015"}, discardLogger())
	if err := r.Poll(); err != nil {
		t.Fatalf("Poll: %v", err)
	}
	bs := r.BandSet()
	if len(bs.Buy) != 1 {
		t.Fatalf("BandSet() = %+v, want one buy band rendered from the template", bs)
	}
}

func TestReloadableRejectsInvalidJSON(t *testing.T) {
	dir := t.TempDir()
	path := writeBandsFile(t, dir, "not valid json")

	r := NewReloadable(path, nil, discardLogger())
	if err := r.Poll(); err == nil {
		t.Fatalf("expected a parse error for invalid JSON")
	}
}
