package pricefeed

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/yanun0323/decimal"

	"github.com/makerdao/market-maker-keeper/internal/clock"
)

// ShellFeed runs a shell command on a background interval and parses its
// stdout as a decimal price. The command is expected to print a single
// number; a non-zero exit or unparsable output is logged once per
// transition into the failed state, and Price returns an error until the
// command succeeds again.
type ShellFeed struct {
	command  string
	interval time.Duration
	clock    clock.Clock
	logger   *slog.Logger

	mu       sync.Mutex
	last     Price
	expired  bool
	failures int
}

// NewShellFeed builds a ShellFeed that re-runs command every interval.
func NewShellFeed(command string, interval time.Duration, clk clock.Clock, logger *slog.Logger) *ShellFeed {
	return &ShellFeed{
		command:  command,
		interval: interval,
		clock:    clk,
		logger:   logger.With(slog.String("component", "pricefeed.shell")),
	}
}

func (f *ShellFeed) Name() string { return "shell:" + f.command }

// Run polls the command on f.interval until ctx is cancelled. Callers
// should start it in a goroutine alongside the control loop.
func (f *ShellFeed) Run(ctx context.Context) {
	f.poll(ctx)
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			f.poll(ctx)
		}
	}
}

func (f *ShellFeed) poll(ctx context.Context) {
	out, err := exec.CommandContext(ctx, "sh", "-c", f.command).Output()

	f.mu.Lock()
	defer f.mu.Unlock()

	if err != nil {
		f.failures++
		if !f.expired {
			f.logger.Warn("shell price feed failed, marking expired",
				slog.String("command", f.command), slog.String("error", err.Error()))
			f.expired = true
		}
		return
	}

	text := strings.TrimSpace(string(out))
	d, perr := decimal.NewFromString(text)
	if perr != nil {
		f.failures++
		if !f.expired {
			f.logger.Warn("shell price feed returned unparsable output, marking expired",
				slog.String("command", f.command), slog.String("output", text))
			f.expired = true
		}
		return
	}

	if f.expired {
		f.logger.Info("shell price feed recovered", slog.String("command", f.command))
		f.expired = false
		f.failures = 0
	}
	f.last = Price{Buy: d, Sell: d, At: f.clock.Now()}
}

func (f *ShellFeed) Price(ctx context.Context) (Price, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.expired {
		return Price{}, fmt.Errorf("pricefeed: shell command %q has no fresh reading", f.command)
	}
	return f.last, nil
}
