// Package preflight runs the cheap local checks that gate the pipeline
// before any generation call is made: the remote call is the single most
// expensive step, so everything that can fail fast must fail first.
package preflight

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/patchpilot/patchpilot/internal/session"
)

// Severity classifies a check result.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Result is one check outcome.
type Result struct {
	Name     string
	Severity Severity
	Detail   string
}

// Report aggregates results. Any error entry fails the whole validation.
type Report struct {
	mu       sync.Mutex
	Errors   []Result
	Warnings []Result
	Infos    []Result
}

func (r *Report) add(res Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch res.Severity {
	case SeverityError:
		r.Errors = append(r.Errors, res)
	case SeverityWarning:
		r.Warnings = append(r.Warnings, res)
	default:
		r.Infos = append(r.Infos, res)
	}
}

// OK reports whether the pipeline may proceed.
func (r *Report) OK() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.Errors) == 0
}

// Summary renders a one-line-per-result report.
func (r *Report) Summary() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var sb strings.Builder
	for _, res := range r.Errors {
		fmt.Fprintf(&sb, "ERROR   %s: %s\n", res.Name, res.Detail)
	}
	for _, res := range r.Warnings {
		fmt.Fprintf(&sb, "WARNING %s: %s\n", res.Name, res.Detail)
	}
	for _, res := range r.Infos {
		fmt.Fprintf(&sb, "ok      %s: %s\n", res.Name, res.Detail)
	}
	return sb.String()
}

// credentialRule is a fixed-prefix plus minimum-length format check.
type credentialRule struct {
	prefix string
	minLen int
}

var credentialRules = map[string]credentialRule{
	"openrouter": {prefix: "sk-or-", minLen: 24},
	"anthropic":  {prefix: "sk-ant-", minLen: 24},
}

// Checker holds the inputs and injectable probes for validation.
type Checker struct {
	Provider      string
	APIKey        string
	BackendHost   string
	AuxHosts      []string
	ProbeURL      string
	ProbeCooldown time.Duration
	RequiredTools []string
	WorkspaceRoot string
	CacheDir      string
	Store         *session.Store

	HTTPClient *http.Client
	LookupHost func(ctx context.Context, host string) ([]string, error)
	LookPath   func(file string) (string, error)
}

func (c *Checker) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{Timeout: 10 * time.Second}
}

func (c *Checker) lookupHost(ctx context.Context, host string) ([]string, error) {
	if c.LookupHost != nil {
		return c.LookupHost(ctx, host)
	}
	return net.DefaultResolver.LookupHost(ctx, host)
}

func (c *Checker) lookPath(file string) (string, error) {
	if c.LookPath != nil {
		return c.LookPath(file)
	}
	return exec.LookPath(file)
}

// Validate runs all checks. The independent, side-effect-free probes run
// concurrently and are joined before the report is returned.
func (c *Checker) Validate(ctx context.Context) *Report {
	report := &Report{}

	// Format validation is pure and decides whether a live probe is even
	// worth attempting.
	formatOK := c.checkCredentialFormat(report)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { c.checkBackendHost(gctx, report); return nil })
	g.Go(func() error { c.checkAuxHosts(gctx, report); return nil })
	g.Go(func() error { c.checkTools(report); return nil })
	g.Go(func() error { c.checkDirectories(report); return nil })
	if formatOK {
		g.Go(func() error { c.checkCredentialLive(gctx, report); return nil })
	}
	_ = g.Wait()

	return report
}

func (c *Checker) checkCredentialFormat(report *Report) bool {
	rule, ok := credentialRules[c.Provider]
	if !ok {
		report.add(Result{Name: "credential-format", Severity: SeverityError,
			Detail: fmt.Sprintf("unknown provider %q", c.Provider)})
		return false
	}
	if c.APIKey == "" {
		report.add(Result{Name: "credential-format", Severity: SeverityError,
			Detail: "API key is not set"})
		return false
	}
	if !strings.HasPrefix(c.APIKey, rule.prefix) || len(c.APIKey) < rule.minLen {
		report.add(Result{Name: "credential-format", Severity: SeverityError,
			Detail: fmt.Sprintf("API key does not match expected %s format (prefix %q, minimum length %d)",
				c.Provider, rule.prefix, rule.minLen)})
		return false
	}
	report.add(Result{Name: "credential-format", Severity: SeverityInfo, Detail: "key format valid"})
	return true
}

func (c *Checker) checkBackendHost(ctx context.Context, report *Report) {
	if c.BackendHost == "" {
		return
	}
	if _, err := c.lookupHost(ctx, c.BackendHost); err != nil {
		// Backend unreachability is fatal: the whole run depends on it.
		report.add(Result{Name: "network-backend", Severity: SeverityError,
			Detail: fmt.Sprintf("cannot resolve %s: %v", c.BackendHost, err)})
		return
	}
	report.add(Result{Name: "network-backend", Severity: SeverityInfo,
		Detail: c.BackendHost + " resolves"})
}

func (c *Checker) checkAuxHosts(ctx context.Context, report *Report) {
	for _, host := range c.AuxHosts {
		if _, err := c.lookupHost(ctx, host); err != nil {
			report.add(Result{Name: "network-aux", Severity: SeverityWarning,
				Detail: fmt.Sprintf("cannot resolve %s: %v", host, err)})
			continue
		}
		report.add(Result{Name: "network-aux", Severity: SeverityInfo, Detail: host + " resolves"})
	}
}

// probeKey namespaces the cooldown timestamp across sessions.
func (c *Checker) probeKey() string {
	return session.SharedKey("probe/" + c.Provider)
}

// checkCredentialLive performs a rate-limited live probe. The cooldown
// window avoids burning quota on every invocation.
func (c *Checker) checkCredentialLive(ctx context.Context, report *Report) {
	if c.ProbeURL == "" || c.Store == nil {
		return
	}

	if raw, ok := c.Store.Get(c.probeKey()); ok {
		if last, err := strconv.ParseInt(string(raw), 10, 64); err == nil {
			if time.Since(time.Unix(last, 0)) < c.ProbeCooldown {
				report.add(Result{Name: "credential-live", Severity: SeverityInfo,
					Detail: "probe skipped (cooldown window)"})
				return
			}
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.ProbeURL, nil)
	if err != nil {
		report.add(Result{Name: "credential-live", Severity: SeverityWarning,
			Detail: fmt.Sprintf("probe request: %v", err)})
		return
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)

	resp, err := c.httpClient().Do(req)
	if err != nil {
		report.add(Result{Name: "credential-live", Severity: SeverityWarning,
			Detail: fmt.Sprintf("probe failed: %v", err)})
		return
	}
	defer resp.Body.Close()

	if err := c.Store.Put(c.probeKey(),
		[]byte(strconv.FormatInt(time.Now().Unix(), 10)), c.ProbeCooldown); err != nil {
		log.Printf("[Preflight] Warning: could not record probe timestamp: %v", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		report.add(Result{Name: "credential-live", Severity: SeverityError,
			Detail: fmt.Sprintf("credential rejected (HTTP %d)", resp.StatusCode)})
	case resp.StatusCode >= 400:
		report.add(Result{Name: "credential-live", Severity: SeverityWarning,
			Detail: fmt.Sprintf("probe returned HTTP %d", resp.StatusCode)})
	default:
		report.add(Result{Name: "credential-live", Severity: SeverityInfo, Detail: "credential accepted"})
	}
}

func (c *Checker) checkTools(report *Report) {
	for _, tool := range c.RequiredTools {
		if _, err := c.lookPath(tool); err != nil {
			report.add(Result{Name: "tool-" + tool, Severity: SeverityError,
				Detail: tool + " not found in PATH"})
			continue
		}
		report.add(Result{Name: "tool-" + tool, Severity: SeverityInfo, Detail: tool + " present"})
	}
}

func (c *Checker) checkDirectories(report *Report) {
	for _, dir := range []string{c.WorkspaceRoot, c.CacheDir} {
		if dir == "" {
			continue
		}
		if err := checkWritable(dir); err != nil {
			report.add(Result{Name: "disk-write", Severity: SeverityError,
				Detail: fmt.Sprintf("%s not writable: %v", dir, err)})
			continue
		}
		report.add(Result{Name: "disk-write", Severity: SeverityInfo, Detail: dir + " writable"})

		if free, err := freeBytes(dir); err == nil && free < minFreeBytes {
			report.add(Result{Name: "disk-space", Severity: SeverityWarning,
				Detail: fmt.Sprintf("only %d MiB free under %s", free>>20, dir)})
		}
	}
}

const minFreeBytes = 100 << 20

func checkWritable(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	probe, err := os.CreateTemp(dir, ".patchpilot-probe-*")
	if err != nil {
		return err
	}
	name := probe.Name()
	probe.Close()
	return os.Remove(filepath.Clean(name))
}
