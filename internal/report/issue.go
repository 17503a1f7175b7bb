package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/roach88/downstream/internal/gate"
	"github.com/roach88/downstream/internal/matrix"
)

// Issue is a tracking issue for a scheduled run with failures.
type Issue struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// IssueFiler files one tracking issue. Filing is fire-and-forget: a
// failure to file is logged by the caller and never blocks or retries.
type IssueFiler interface {
	File(ctx context.Context, issue Issue) error
}

// BuildIssue renders the tracking issue for a run: the title carries the
// date, the body links the run and lists the failing units.
func BuildIssue(rc gate.RunContext, result matrix.RunResult, now time.Time) Issue {
	var b strings.Builder
	fmt.Fprintf(&b, "The scheduled downstream compatibility run found failures.\n\n")
	if rc.RunURL != "" {
		fmt.Fprintf(&b, "Run: %s\n\n", rc.RunURL)
	}
	b.WriteString("Failing units:\n")
	for _, u := range result.Failed() {
		fmt.Fprintf(&b, "- `%s`: %s", u.Unit.Key, u.Outcome)
		if u.Detail != "" {
			fmt.Fprintf(&b, " (%s)", u.Detail)
		}
		b.WriteString("\n")
	}

	return Issue{
		Title: fmt.Sprintf("Downstream test failures (%s)", now.Format("2006-01-02")),
		Body:  b.String(),
	}
}

// GitHubFiler files issues against the canonical repository's issue API.
//
// No retries and no blocking on response details: the run's outcome is
// already recorded; the issue is best-effort breadcrumbs.
type GitHubFiler struct {
	// BaseURL is the API root, e.g. "https://api.github.com".
	BaseURL string
	// Repository is the canonical "owner/name".
	Repository string
	// Token is the API token.
	Token string

	// Client defaults to a client with a 30s timeout.
	Client *http.Client

	Logger *slog.Logger
}

// File posts the issue. A non-2xx response is an error; the caller logs
// and moves on.
func (f *GitHubFiler) File(ctx context.Context, issue Issue) error {
	payload, err := json.Marshal(issue)
	if err != nil {
		return fmt.Errorf("encode issue: %w", err)
	}

	url := fmt.Sprintf("%s/repos/%s/issues", strings.TrimRight(f.BaseURL, "/"), f.Repository)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build issue request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("Content-Type", "application/json")
	if f.Token != "" {
		req.Header.Set("Authorization", "Bearer "+f.Token)
	}

	client := f.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("file issue: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("file issue: unexpected status %s", resp.Status)
	}
	return nil
}
