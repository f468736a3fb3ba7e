package config

import (
	"bytes"
	"fmt"
	"hash/crc32"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"text/template"
	"time"

	"github.com/makerdao/market-maker-keeper/internal/bands"
	"github.com/makerdao/market-maker-keeper/internal/limits"
)

// Reloadable polls a bands file on disk and keeps the parsed BandSet/Limits
// up to date, without ever blocking the control loop on I/O: Poll is called
// from the control loop's own config-watcher task on its poll interval and
// is a no-op unless the file's mtime has moved since the last check.
//
// Bands files may use Go template syntax (e.g. "{{.Env.REFERENCE_SPREAD}}")
// to pull in environment-driven values at reload time; this replaces the
// jsonnet templating of the system this package is modelled on, since no
// jsonnet binding exists in the wider dependency set this keeper draws on.
type Reloadable struct {
	path   string
	vars   map[string]string
	logger *slog.Logger

	mu          sync.Mutex
	lastModTime time.Time
	rawChecksum uint32
	renderedSum uint32
	loadedOnce  bool

	current atomic.Pointer[loaded]
}

type loaded struct {
	doc        Document
	bandSet    bands.BandSet
	buyLimits  *limits.Limits
	sellLimits *limits.Limits
}

// NewReloadable builds a Reloadable watching path. vars is exposed to the
// file's template as {{.Env.KEY}}.
func NewReloadable(path string, vars map[string]string, logger *slog.Logger) *Reloadable {
	return &Reloadable{
		path:   path,
		vars:   vars,
		logger: logger.With(slog.String("component", "config.reloadable"), slog.String("path", path)),
	}
}

// Poll checks the file's mtime and, if it has changed, re-renders and
// re-parses it. It returns an error only when the file cannot be read or
// fails to parse; a successful initial load followed by an unreadable file
// on a later poll leaves the previously loaded configuration in place so a
// transient filesystem hiccup does not stop the keeper from quoting.
func (r *Reloadable) Poll() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	info, err := os.Stat(r.path)
	if err != nil {
		if r.loadedOnce {
			r.logger.Warn("bands file unavailable, keeping previous configuration", slog.String("error", err.Error()))
			return nil
		}
		return fmt.Errorf("config: stat %s: %w", r.path, err)
	}

	if r.loadedOnce && !info.ModTime().After(r.lastModTime) {
		return nil
	}

	raw, err := os.ReadFile(r.path)
	if err != nil {
		if r.loadedOnce {
			r.logger.Warn("bands file unavailable, keeping previous configuration", slog.String("error", err.Error()))
			return nil
		}
		return fmt.Errorf("config: read %s: %w", r.path, err)
	}
	rawSum := crc32.ChecksumIEEE(raw)

	rendered, err := r.render(raw)
	if err != nil {
		return fmt.Errorf("config: render %s: %w", r.path, err)
	}
	renderedSum := crc32.ChecksumIEEE(rendered)

	r.lastModTime = info.ModTime()

	if r.loadedOnce && rawSum == r.rawChecksum && renderedSum == r.renderedSum {
		// The file's mtime moved (e.g. a touch with no content change) but
		// neither the raw text nor the rendered output actually changed;
		// skip the reparse and the log line.
		return nil
	}

	doc, err := Parse(rendered)
	if err != nil {
		return err
	}
	bandSet, err := doc.BandSet()
	if err != nil {
		return fmt.Errorf("config: %s: %w", r.path, err)
	}
	buyLimits, sellLimits, err := doc.Limits()
	if err != nil {
		return fmt.Errorf("config: %s: %w", r.path, err)
	}

	r.current.Store(&loaded{doc: doc, bandSet: bandSet, buyLimits: buyLimits, sellLimits: sellLimits})

	if r.loadedOnce {
		r.logger.Info("bands file reloaded", slog.Int("buyBands", len(doc.Buy)), slog.Int("sellBands", len(doc.Sell)))
	} else {
		r.logger.Info("bands file loaded", slog.Int("buyBands", len(doc.Buy)), slog.Int("sellBands", len(doc.Sell)))
	}

	r.rawChecksum = rawSum
	r.renderedSum = renderedSum
	r.loadedOnce = true
	return nil
}

func (r *Reloadable) render(raw []byte) ([]byte, error) {
	tmpl, err := template.New("bands").Parse(string(raw))
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	data := struct{ Env map[string]string }{Env: r.vars}
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BandSet returns the most recently loaded band configuration.
func (r *Reloadable) BandSet() bands.BandSet {
	l := r.current.Load()
	if l == nil {
		return bands.BandSet{}
	}
	return l.bandSet
}

// Limits returns the most recently loaded rate limiters.
func (r *Reloadable) Limits() (buy, sell *limits.Limits) {
	l := r.current.Load()
	if l == nil {
		return nil, nil
	}
	return l.buyLimits, l.sellLimits
}

// Document returns the most recently parsed raw document.
func (r *Reloadable) Document() Document {
	l := r.current.Load()
	if l == nil {
		return Document{}
	}
	return l.doc
}
