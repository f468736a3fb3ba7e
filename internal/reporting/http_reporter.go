// Package reporting posts each completed control-loop cycle to an
// operator-configured HTTP endpoint, mirroring the order-history reporting
// contract the core treats as optional and opaque. It is a thin sibling of
// internal/blob/s3's archival reporter: same CycleReport input, different
// sink.
package reporting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/makerdao/market-maker-keeper/internal/domain"
)

// HTTPReporter posts a JSON-encoded CycleReport to a fixed URL after every
// cycle. A failed post is logged by the caller and never blocks the control
// loop; reporting is best-effort.
type HTTPReporter struct {
	url    string
	client *http.Client
}

// NewHTTPReporter builds an HTTPReporter posting to url with a 10-second
// timeout.
func NewHTTPReporter(url string) *HTTPReporter {
	return &HTTPReporter{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// cyclePayload is the wire shape posted to the reporting endpoint. It
// flattens domain.CycleReport's fields into an explicit JSON schema so a
// renamed domain field doesn't silently change the wire contract.
type cyclePayload struct {
	Pair           string `json:"pair"`
	StartedAt      string `json:"startedAt"`
	FinishedAt     string `json:"finishedAt"`
	CancelCount    int    `json:"cancelCount"`
	PlaceCount     int    `json:"placeCount"`
	FailureCount   int    `json:"failureCount"`
	ReferencePrice string `json:"referencePrice"`
}

// ReportCycle posts report to the configured endpoint.
func (r *HTTPReporter) ReportCycle(ctx context.Context, report domain.CycleReport) error {
	payload := cyclePayload{
		Pair:           report.Pair,
		StartedAt:      report.StartedAt.UTC().Format(time.RFC3339),
		FinishedAt:     report.FinishedAt.UTC().Format(time.RFC3339),
		CancelCount:    report.CancelCount,
		PlaceCount:     report.PlaceCount,
		FailureCount:   report.FailureCount,
		ReferencePrice: report.ReferencePrice,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("reporting: marshal cycle report: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("reporting: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("reporting: post cycle report: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("reporting: unexpected status %d", resp.StatusCode)
	}
	return nil
}
