package preflight

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"

	"github.com/patchpilot/patchpilot/internal/session"
)

func resolveAll(ctx context.Context, host string) ([]string, error) {
	return []string{"192.0.2.1"}, nil
}

func resolveNone(ctx context.Context, host string) ([]string, error) {
	return nil, errors.New("no such host")
}

func toolPresent(file string) (string, error) { return "/usr/bin/" + file, nil }

func baseChecker(t *testing.T) *Checker {
	t.Helper()
	return &Checker{
		Provider:      "openrouter",
		APIKey:        "sk-or-v1-0123456789abcdef01234567",
		BackendHost:   "openrouter.ai",
		RequiredTools: []string{"git"},
		WorkspaceRoot: t.TempDir(),
		CacheDir:      t.TempDir(),
		LookupHost:    resolveAll,
		LookPath:      toolPresent,
	}
}

func TestValidate_AllChecksPass(t *testing.T) {
	report := baseChecker(t).Validate(context.Background())
	if !report.OK() {
		t.Fatalf("Validate failed: %s", report.Summary())
	}
	if len(report.Infos) == 0 {
		t.Fatal("expected info results from passing checks")
	}
}

func TestValidate_BadCredentialFormat(t *testing.T) {
	cases := []struct {
		name string
		key  string
	}{
		{"empty", ""},
		{"wrong prefix", "or-v1-0123456789abcdef0123456789"},
		{"too short", "sk-or-v1"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := baseChecker(t)
			c.APIKey = tc.key
			report := c.Validate(context.Background())
			if report.OK() {
				t.Fatalf("Validate passed with key %q, want error", tc.key)
			}
		})
	}
}

func TestValidate_BackendUnreachableIsFatal(t *testing.T) {
	c := baseChecker(t)
	c.LookupHost = resolveNone

	report := c.Validate(context.Background())
	if report.OK() {
		t.Fatal("Validate passed with unresolvable backend host")
	}
}

func TestValidate_AuxUnreachableIsWarningOnly(t *testing.T) {
	c := baseChecker(t)
	c.LookupHost = func(ctx context.Context, host string) ([]string, error) {
		if host == "openrouter.ai" {
			return []string{"192.0.2.1"}, nil
		}
		return nil, errors.New("no such host")
	}
	c.AuxHosts = []string{"api.github.com"}

	report := c.Validate(context.Background())
	if !report.OK() {
		t.Fatalf("aux host failure should not be fatal: %s", report.Summary())
	}
	if len(report.Warnings) == 0 {
		t.Fatal("expected a warning for the unreachable aux host")
	}
}

func TestValidate_MissingToolIsFatal(t *testing.T) {
	c := baseChecker(t)
	c.LookPath = func(file string) (string, error) { return "", errors.New("not found") }

	report := c.Validate(context.Background())
	if report.OK() {
		t.Fatal("Validate passed with required tool missing")
	}
}

func TestLiveProbe_RejectedCredentialIsFatal(t *testing.T) {
	r := mux.NewRouter()
	r.HandleFunc("/api/v1/models", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}).Methods(http.MethodGet)
	srv := httptest.NewServer(r)
	defer srv.Close()

	c := baseChecker(t)
	c.Store = session.NewStore(session.NewMemoryBackend())
	c.ProbeURL = srv.URL + "/api/v1/models"
	c.ProbeCooldown = 15 * time.Minute

	report := c.Validate(context.Background())
	if report.OK() {
		t.Fatal("Validate passed with rejected credential")
	}
}

func TestLiveProbe_CooldownSkipsSecondProbe(t *testing.T) {
	calls := 0
	r := mux.NewRouter()
	r.HandleFunc("/api/v1/models", func(w http.ResponseWriter, req *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	}).Methods(http.MethodGet)
	srv := httptest.NewServer(r)
	defer srv.Close()

	store := session.NewStore(session.NewMemoryBackend())

	for i := 0; i < 2; i++ {
		c := baseChecker(t)
		c.Store = store
		c.ProbeURL = srv.URL + "/api/v1/models"
		c.ProbeCooldown = 15 * time.Minute
		if report := c.Validate(context.Background()); !report.OK() {
			t.Fatalf("Validate failed: %s", report.Summary())
		}
	}

	if calls != 1 {
		t.Fatalf("probe endpoint called %d times, want 1 (cooldown)", calls)
	}
}
