package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"

	"github.com/ritzau/pipegraph/pkg/model"
)

func newFlags(args ...string) *pflag.FlagSet {
	f := pflag.NewFlagSet("pipegraph", pflag.ContinueOnError)
	f.String("platform", "ssis", "")
	f.Int64("rows", 1_000_000, "")
	f.Int("port", 8080, "")
	f.Bool("web", false, "")
	f.CountP("verbose", "v", "")
	if err := f.Parse(args); err != nil {
		panic(err)
	}
	return f
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := load(nil, filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.PlatformTag() != model.PlatformSSIS || cfg.Rows != 1_000_000 || cfg.History != 50 || cfg.Port != 8080 {
		t.Errorf("Unexpected defaults %+v", cfg)
	}
}

func TestLoad_Layers(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	if err := os.WriteFile(path, []byte("platform = \"adf\"\nrows = 500\nport = 9000\nhistory = 10\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PIPEGRAPH_PORT", "9100")
	t.Setenv("PIPEGRAPH_JSON_LOGS", "true")

	cfg, err := load(newFlags("--rows", "42", "-vv"), path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	tests := []struct {
		name      string
		got, want any
	}{
		{"platform from file", cfg.Platform, "adf"},
		{"history from file", cfg.History, 10},
		{"port from env over file", cfg.Port, 9100},
		{"json-logs from env", cfg.JSONLogs, true},
		{"rows from flag over file", cfg.Rows, int64(42)},
		{"verbose count", cfg.Verbose, 2},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s: got %v, want %v", tt.name, tt.got, tt.want)
		}
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"platform", []string{"--platform", "airflow"}},
		{"rows", []string{"--rows", "0"}},
		{"port", []string{"--port", "70000"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := load(newFlags(tt.args...), filepath.Join(t.TempDir(), "none.toml")); err == nil {
				t.Errorf("Expected an error for %v", tt.args)
			}
		})
	}
}

func TestLoad_BrokenFile(t *testing.T) {
	tests := []struct {
		name, content string
	}{
		{"malformed toml", "platform = \"adf\"\nrows = [\n"},
		{"unterminated string", "platform = \"adf\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), FileName)
			if err := os.WriteFile(path, []byte(tt.content), 0o644); err != nil {
				t.Fatal(err)
			}
			if _, err := load(nil, path); err == nil {
				t.Errorf("Expected an error for %q", tt.content)
			}
		})
	}

	dir := filepath.Join(t.TempDir(), FileName)
	if err := os.Mkdir(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if _, err := load(nil, dir); err == nil {
		t.Errorf("Expected an error when the config path is a directory")
	}
}
