package main

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/desertthunder/vmx/internal/models"
	"github.com/desertthunder/vmx/internal/services"
	"github.com/desertthunder/vmx/internal/shared"
	tu "github.com/desertthunder/vmx/internal/testing"
)

func noEnv(string) string { return "" }

// testConfig points the ledger and destination into a temporary directory.
func testConfig(t *testing.T) *shared.Config {
	t.Helper()
	dir := t.TempDir()
	config := shared.DefaultConfig()
	config.Ledger.Path = filepath.Join(dir, "db", "items.db")
	config.Download.Dest = filepath.Join(dir, "files")
	return config
}

func catalogItem(key, name string, size int64) models.CatalogItem {
	return models.CatalogItem{
		ResourceKey: key,
		Name:        name,
		Downloads: []models.DownloadOption{
			{Quality: "hd", Link: "https://cdn.example.com/" + key, Size: size},
		},
	}
}

type harness struct {
	runner  *Runner
	config  *shared.Config
	catalog *tu.MockCatalog
	fetcher *tu.MockFetcher
	output  *bytes.Buffer
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		config: testConfig(t),
		catalog: &tu.MockCatalog{Items: []models.CatalogItem{
			catalogItem("a", "Alpha", 10),
			catalogItem("b", "Bravo", 20),
		}},
		fetcher: &tu.MockFetcher{Sizes: map[string]int64{
			"https://cdn.example.com/a": 10,
			"https://cdn.example.com/b": 20,
		}},
		output: &bytes.Buffer{},
	}
	h.runner = NewRunner(RunnerOpts{
		Config:  h.config,
		Catalog: h.catalog,
		Fetcher: h.fetcher,
		Logger:  shared.NewLogger(&bytes.Buffer{}),
		Output:  h.output,
		Getenv:  noEnv,
	})
	return h
}

// run executes the CLI with args, returning what it printed.
func (h *harness) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	h.output.Reset()
	configPath := filepath.Join(filepath.Dir(filepath.Dir(h.config.Ledger.Path)), "config.toml")
	argv := append([]string{"vmx", "--config", configPath}, args...)
	err := newApp(h.runner).Run(context.Background(), argv)
	return h.output.String(), err
}

func TestRunner(t *testing.T) {
	t.Run("NewRunner", func(t *testing.T) {
		t.Run("with all dependencies provided", func(t *testing.T) {
			config := shared.DefaultConfig()
			logger := shared.NewLogger(nil)
			output := &bytes.Buffer{}
			httpClient := &http.Client{}
			catalog := &tu.MockCatalog{}
			fetcher := &tu.MockFetcher{}

			runner := NewRunner(RunnerOpts{
				Config:     config,
				Logger:     logger,
				Output:     output,
				HTTPClient: httpClient,
				Catalog:    catalog,
				Fetcher:    fetcher,
			})

			if runner.config != config {
				t.Error("expected config to be set")
			}
			if runner.logger != logger {
				t.Error("expected logger to be set")
			}
			if runner.output != output {
				t.Error("expected output to be set")
			}
			if runner.httpClient != httpClient {
				t.Error("expected httpClient to be set")
			}
			if runner.catalog != catalog {
				t.Error("expected catalog to be set")
			}
			if runner.fetcher != fetcher {
				t.Error("expected fetcher to be set")
			}
		})

		t.Run("with nil logger uses default", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Logger: nil})

			if runner.logger == nil {
				t.Error("expected default logger to be set")
			}
		})

		t.Run("with nil output uses stdout", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: nil})

			if runner.output != os.Stdout {
				t.Error("expected output to default to os.Stdout")
			}
		})

		t.Run("with nil httpClient uses default", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{HTTPClient: nil})

			if runner.httpClient != http.DefaultClient {
				t.Error("expected httpClient to default to http.DefaultClient")
			}
		})

		t.Run("with nil fetcher uses HTTP fetcher", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{})

			if _, ok := runner.fetcher.(*services.HTTPFetcher); !ok {
				t.Errorf("expected HTTP fetcher, got %T", runner.fetcher)
			}
		})

		t.Run("with configPath sets field", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{ConfigPath: "/test/path/config.toml"})

			if runner.configPath != "/test/path/config.toml" {
				t.Errorf("expected configPath to be set, got %s", runner.configPath)
			}
		})
	})

	t.Run("loadConfig", func(t *testing.T) {
		t.Run("reads the config file", func(t *testing.T) {
			dir := t.TempDir()
			path := filepath.Join(dir, "config.toml")
			content := "[ledger]\npath = \"" + filepath.Join(dir, "ledger.db") + "\"\n\n[download]\nlimit = 7\n"
			if err := os.WriteFile(path, []byte(content), 0644); err != nil {
				t.Fatalf("failed to write config: %v", err)
			}

			runner := NewRunner(RunnerOpts{ConfigPath: path, Getenv: noEnv, Logger: shared.NewLogger(&bytes.Buffer{})})
			if err := runner.loadConfig(); err != nil {
				t.Fatalf("loadConfig failed: %v", err)
			}

			if runner.config.Download.Limit != 7 {
				t.Errorf("expected limit 7, got %d", runner.config.Download.Limit)
			}
			if runner.config.Download.Concurrency != 2 {
				t.Errorf("expected default concurrency, got %d", runner.config.Download.Concurrency)
			}
			if runner.config.Ledger.Path != filepath.Join(dir, "ledger.db") {
				t.Errorf("unexpected ledger path %s", runner.config.Ledger.Path)
			}
		})

		t.Run("missing file uses defaults", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{
				ConfigPath: filepath.Join(t.TempDir(), "missing.toml"),
				Getenv:     noEnv,
				Logger:     shared.NewLogger(&bytes.Buffer{}),
			})
			if err := runner.loadConfig(); err != nil {
				t.Fatalf("loadConfig failed: %v", err)
			}
			if runner.config.Ledger.Path == "" || runner.config.Download.Dest == "" {
				t.Error("expected paths to be resolved")
			}
		})

		t.Run("invalid file", func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.toml")
			os.WriteFile(path, []byte("[ledger\n"), 0644)

			runner := NewRunner(RunnerOpts{ConfigPath: path, Getenv: noEnv})
			if err := runner.loadConfig(); err == nil {
				t.Error("expected parse error")
			}
		})

		t.Run("environment overrides and catalog", func(t *testing.T) {
			dest := t.TempDir()
			env := map[string]string{
				shared.EnvDownloadDest:  dest,
				shared.EnvDownloadLimit: "5",
				shared.EnvAccessToken:   "tok",
			}
			runner := NewRunner(RunnerOpts{
				Config: testConfig(t),
				Getenv: func(k string) string { return env[k] },
			})
			if err := runner.loadConfig(); err != nil {
				t.Fatalf("loadConfig failed: %v", err)
			}

			if runner.config.Download.Dest != dest || runner.config.Download.Limit != 5 {
				t.Errorf("expected env overrides, got %+v", runner.config.Download)
			}
			if _, ok := runner.catalog.(*services.VimeoService); !ok {
				t.Errorf("expected Vimeo catalog, got %T", runner.catalog)
			}
			if err := runner.requireCatalog(); err != nil {
				t.Errorf("expected catalog to be available, got %v", err)
			}
		})

		t.Run("without a token the catalog is unavailable", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Config: testConfig(t), Getenv: noEnv, Logger: shared.NewLogger(&bytes.Buffer{})})
			if err := runner.loadConfig(); err != nil {
				t.Fatalf("loadConfig failed: %v", err)
			}

			err := runner.requireCatalog()
			if !errors.Is(err, shared.ErrMissingCredentials) {
				t.Errorf("expected ErrMissingCredentials, got %v", err)
			}
			if !strings.Contains(err.Error(), shared.EnvAccessToken) {
				t.Errorf("expected hint to mention %s, got %v", shared.EnvAccessToken, err)
			}
		})
	})

	t.Run("writeJSON", func(t *testing.T) {
		t.Run("writes formatted JSON successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writeJSON(map[string]string{"key": "value"}, true); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			result := output.String()
			if !strings.Contains(result, `"key": "value"`) {
				t.Errorf("expected formatted JSON, got %s", result)
			}
			if !strings.HasSuffix(result, "\n") {
				t.Error("expected output to end with newline")
			}
		})

		t.Run("writes compact JSON successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writeJSON(map[string]string{"key": "value"}, false); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			expected := `{"key":"value"}` + "\n"
			if result := output.String(); result != expected {
				t.Errorf("expected %q, got %q", expected, result)
			}
		})

		t.Run("handles marshal error with non-serializable data", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &bytes.Buffer{}})

			// channels cannot be marshaled to JSON
			err := runner.writeJSON(make(chan int), false)
			if err == nil || !strings.Contains(err.Error(), "failed to marshal JSON") {
				t.Errorf("expected marshal error, got %v", err)
			}
		})

		t.Run("handles write failure", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &tu.FWriter{}})

			err := runner.writeJSON(map[string]string{"key": "value"}, false)
			if err == nil || !strings.Contains(err.Error(), "failed to write output") {
				t.Errorf("expected write error, got %v", err)
			}
		})

		t.Run("handles newline write failure", func(t *testing.T) {
			limitedWriter := tu.NewLimitedWriter(1, 0, &bytes.Buffer{})
			runner := NewRunner(RunnerOpts{Output: &limitedWriter})

			err := runner.writeJSON(map[string]string{"key": "value"}, false)
			if err == nil || !strings.Contains(err.Error(), "failed to write newline") {
				t.Errorf("expected newline write error, got %v", err)
			}
		})
	})

	t.Run("writePlain", func(t *testing.T) {
		t.Run("writes plain text successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writePlain("hello %s", "world"); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if result := output.String(); result != "hello world" {
				t.Errorf("expected 'hello world', got %q", result)
			}
		})

		t.Run("handles write failure", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &tu.FWriter{}})

			err := runner.writePlain("test")
			if err == nil || !strings.Contains(err.Error(), "failed to write output") {
				t.Errorf("expected write error, got %v", err)
			}
		})
	})

	t.Run("register", func(t *testing.T) {
		runner := NewRunner(RunnerOpts{})
		commands := runner.register()

		names := map[string]bool{}
		for i, cmd := range commands {
			if cmd == nil {
				t.Fatalf("command at index %d is nil", i)
			}
			names[cmd.Name] = true
		}

		for _, want := range []string{"setup", "download", "tui", "refresh", "list", "reset", "sweep", "compare", "reconcile", "catalog"} {
			if !names[want] {
				t.Errorf("expected %s command to be registered", want)
			}
		}
	})
}

func TestCommands(t *testing.T) {
	t.Run("setup", func(t *testing.T) {
		h := newHarness(t)

		out, err := h.run(t, "setup")
		if err != nil {
			t.Fatalf("setup failed: %v", err)
		}

		tu.AssertFileExists(t, h.config.Ledger.Path)
		tu.AssertDirExists(t, h.config.Download.Dest)
		tu.AssertFileExists(t, filepath.Join(filepath.Dir(filepath.Dir(h.config.Ledger.Path)), "config.toml"))
		if !strings.Contains(out, "Ledger ready") || !strings.Contains(out, "(0 items, schema v0)") {
			t.Errorf("unexpected setup output %q", out)
		}
	})

	t.Run("refresh and list", func(t *testing.T) {
		h := newHarness(t)

		out, err := h.run(t, "refresh")
		if err != nil {
			t.Fatalf("refresh failed: %v", err)
		}
		if !strings.Contains(out, "Fetched 2 items, 2 new") {
			t.Errorf("unexpected refresh output %q", out)
		}

		out, err = h.run(t, "list", "--format", "csv")
		if err != nil {
			t.Fatalf("list failed: %v", err)
		}
		if !strings.Contains(out, "a,Alpha,not_downloaded,10") {
			t.Errorf("expected csv row for Alpha, got %q", out)
		}

		out, err = h.run(t, "list", "--status", "downloaded", "--format", "csv")
		if err != nil {
			t.Fatalf("list failed: %v", err)
		}
		if strings.Contains(out, "Alpha") {
			t.Errorf("expected no downloaded items, got %q", out)
		}

		out, err = h.run(t, "list", "--stats")
		if err != nil {
			t.Fatalf("list --stats failed: %v", err)
		}
		if !strings.Contains(out, "Not Downloaded") {
			t.Errorf("unexpected stats output %q", out)
		}
	})

	t.Run("list to a csv file", func(t *testing.T) {
		h := newHarness(t)
		h.run(t, "refresh")

		path := filepath.Join(t.TempDir(), "items.csv")
		if _, err := h.run(t, "list", "--format", "csv", "--output", path); err != nil {
			t.Fatalf("list failed: %v", err)
		}
		if content := tu.MustReadFile(t, path); !strings.Contains(content, "Bravo") {
			t.Errorf("expected export to contain Bravo, got %q", content)
		}
	})

	t.Run("list rejects bad input", func(t *testing.T) {
		h := newHarness(t)

		if _, err := h.run(t, "list", "--format", "xml"); !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument for format, got %v", err)
		}
		if _, err := h.run(t, "list", "--status", "lost"); !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument for status, got %v", err)
		}
	})

	t.Run("download fills an empty ledger first", func(t *testing.T) {
		h := newHarness(t)

		out, err := h.run(t, "download")
		if err != nil {
			t.Fatalf("download failed: %v", err)
		}

		if !strings.Contains(out, "Fetched 2 items, 2 new") || !strings.Contains(out, "2 downloaded") {
			t.Errorf("unexpected download output %q", out)
		}
		tu.AssertFileExists(t, filepath.Join(h.config.Download.Dest, "Alpha.mp4"))
		tu.AssertFileExists(t, filepath.Join(h.config.Download.Dest, "Bravo.mp4"))

		out, err = h.run(t, "download")
		if err != nil {
			t.Fatalf("second download failed: %v", err)
		}
		if strings.Contains(out, "Fetched") || !strings.Contains(out, "Processed 0") {
			t.Errorf("expected an idle second run, got %q", out)
		}
		if got := h.catalog.Calls.Load(); got != 1 {
			t.Errorf("expected one catalog fetch, got %d", got)
		}
	})

	t.Run("download flags", func(t *testing.T) {
		h := newHarness(t)
		dest := filepath.Join(t.TempDir(), "elsewhere")

		if _, err := h.run(t, "download", "--dest", dest, "--limit", "1", "--concurrency", "1"); err != nil {
			t.Fatalf("download failed: %v", err)
		}
		tu.AssertFileExists(t, filepath.Join(dest, "Alpha.mp4"))
		if h.fetcher.MaxActive() != 1 {
			t.Errorf("expected one transfer at a time, got %d", h.fetcher.MaxActive())
		}

		if _, err := h.run(t, "download", "--limit", "0"); !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})

	t.Run("reset", func(t *testing.T) {
		h := newHarness(t)
		h.fetcher.Sizes["https://cdn.example.com/b"] = 0
		h.config.Download.MaxAttempts = 1

		if _, err := h.run(t, "download"); err != nil {
			t.Fatalf("download failed: %v", err)
		}

		out, err := h.run(t, "reset")
		if err != nil {
			t.Fatalf("reset failed: %v", err)
		}
		if !strings.Contains(out, "0 item(s) reset") {
			t.Errorf("expected nothing stuck, got %q", out)
		}

		out, err = h.run(t, "reset", "--failed")
		if err != nil {
			t.Fatalf("reset --failed failed: %v", err)
		}
		if !strings.Contains(out, "1 item(s) reset") {
			t.Errorf("expected the zero-byte item to be reset, got %q", out)
		}
	})

	t.Run("sweep", func(t *testing.T) {
		h := newHarness(t)
		h.run(t, "download")
		os.Remove(filepath.Join(h.config.Download.Dest, "Alpha.mp4"))

		out, err := h.run(t, "sweep")
		if err != nil {
			t.Fatalf("sweep failed: %v", err)
		}
		if !strings.Contains(out, "Checked 2 downloaded records: 1 missing") {
			t.Errorf("unexpected sweep output %q", out)
		}
	})

	t.Run("compare and reconcile", func(t *testing.T) {
		h := newHarness(t)
		h.run(t, "download")
		tu.MustWriteFile(t, filepath.Join(h.config.Download.Dest, "random.mp4"), 5)
		h.catalog.Items = append(h.catalog.Items, catalogItem("c", "Charlie", 30))

		out, err := h.run(t, "compare")
		if err != nil {
			t.Fatalf("compare failed: %v", err)
		}
		for _, want := range []string{"Missing in ledger: 1", "Charlie", "orphans): 1", "random.mp4", "Dry run"} {
			if !strings.Contains(out, want) {
				t.Errorf("expected compare output to contain %q, got %q", want, out)
			}
		}

		out, err = h.run(t, "reconcile")
		if err != nil {
			t.Fatalf("reconcile failed: %v", err)
		}
		if !strings.Contains(out, "Applied 1 corrections") {
			t.Errorf("unexpected reconcile output %q", out)
		}
		tu.AssertFileExists(t, filepath.Join(h.config.Download.Dest, "random.mp4"))
	})

	t.Run("catalog", func(t *testing.T) {
		h := newHarness(t)

		out, err := h.run(t, "catalog", "count")
		if err != nil {
			t.Fatalf("catalog count failed: %v", err)
		}
		if !strings.Contains(out, "You have 2 item(s) in your mock account.") {
			t.Errorf("unexpected count output %q", out)
		}

		out, err = h.run(t, "catalog", "test")
		if err != nil {
			t.Fatalf("catalog test failed: %v", err)
		}
		if !strings.Contains(out, "Successfully connected to mock!") {
			t.Errorf("unexpected test output %q", out)
		}

		h.catalog.Err = errors.New("connection refused")
		if _, err := h.run(t, "catalog", "test"); !errors.Is(err, shared.ErrCatalogFetch) {
			t.Errorf("expected ErrCatalogFetch, got %v", err)
		}
	})

	t.Run("commands needing the catalog fail without one", func(t *testing.T) {
		h := newHarness(t)
		h.runner.catalog = nil

		for _, args := range [][]string{{"refresh"}, {"compare"}, {"reconcile"}, {"catalog", "count"}} {
			if _, err := h.run(t, args...); !errors.Is(err, shared.ErrMissingCredentials) {
				t.Errorf("%v: expected ErrMissingCredentials, got %v", args, err)
			}
		}
	})

	t.Run("a locked ledger is refused", func(t *testing.T) {
		h := newHarness(t)
		h.run(t, "setup")

		lock, err := shared.AcquireLock(h.config.Ledger.Path)
		if err != nil {
			t.Fatalf("failed to take lock: %v", err)
		}
		defer lock.Unlock()

		if _, err := h.run(t, "download"); !errors.Is(err, shared.ErrLedgerLocked) {
			t.Errorf("expected ErrLedgerLocked, got %v", err)
		}
		if _, err := h.run(t, "list"); err != nil {
			t.Errorf("expected list to read a locked ledger, got %v", err)
		}
	})
}
