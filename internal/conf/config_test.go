package conf

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestReadDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	cs := &ConfigSource{
		Path:      filepath.Join(tmpDir, "missing.toml"),
		DropInDir: filepath.Join(tmpDir, "missing.toml.d"),
	}

	config, err := cs.Read()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := Config{LogLevel: slog.LevelWarn, Syntax: "omnibus"}
	if diff := cmp.Diff(want, config); diff != "" {
		t.Errorf("Read() mismatch (-want +got):\n%s", diff)
	}
}

// Drop-in files apply in lexical order and only override the keys they set.
func TestReadLayers(t *testing.T) {
	tmpDir := t.TempDir()
	mainConfigPath := filepath.Join(tmpDir, "config.toml")
	dropinDir := filepath.Join(tmpDir, "config.toml.d")
	if err := os.Mkdir(dropinDir, 0755); err != nil {
		t.Fatal(err)
	}

	writeFile(t, mainConfigPath, `
log-level = "INFO"
syntax = "toml"
platform-version = "16.5.0"
schema = "/etc/topo/schema.yaml"
`)
	writeFile(t, filepath.Join(dropinDir, "20-strict.toml"), `
strict = true
syntax = "yaml"
`)
	writeFile(t, filepath.Join(dropinDir, "10-debug.toml"), `
log-level = "debug"
syntax = "json"
`)
	writeFile(t, filepath.Join(dropinDir, "README"), `not = "toml"`)

	config, err := ForPath(mainConfigPath).Read()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := Config{
		LogLevel:        slog.LevelDebug,
		Syntax:          "yaml",
		PlatformVersion: "16.5.0",
		Schema:          "/etc/topo/schema.yaml",
		Strict:          true,
	}
	if diff := cmp.Diff(want, config); diff != "" {
		t.Errorf("Read() mismatch (-want +got):\n%s", diff)
	}
}

// An empty string in a later layer is a real value, not an absent key.
func TestReadEmptyStringOverwrite(t *testing.T) {
	tmpDir := t.TempDir()
	mainConfigPath := filepath.Join(tmpDir, "config.toml")
	dropinDir := filepath.Join(tmpDir, "config.toml.d")
	if err := os.Mkdir(dropinDir, 0755); err != nil {
		t.Fatal(err)
	}

	writeFile(t, mainConfigPath, `platform-version = "16.5.0"`)
	writeFile(t, filepath.Join(dropinDir, "10-override.toml"), `platform-version = ""`)

	config, err := ForPath(mainConfigPath).Read()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if config.PlatformVersion != "" {
		t.Errorf("expected empty PlatformVersion, got %q", config.PlatformVersion)
	}
}

func TestReadErrors(t *testing.T) {
	tests := []struct {
		name     string
		main     string
		dropin   string
		contains string
	}{
		{"malformed main", `log-level = `, "", "failed to parse"},
		{"unknown key", `cert-file = "x"`, "", "unknown key(s): cert-file"},
		{"bad level", `log-level = "loud"`, "", "unknown log level 'loud'"},
		{"wrong type", `strict = "yes"`, "", "failed to parse"},
		{"malformed drop-in", ``, `syntax = [`, "10-bad.toml"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpDir := t.TempDir()
			mainConfigPath := filepath.Join(tmpDir, "config.toml")
			dropinDir := filepath.Join(tmpDir, "config.toml.d")
			if err := os.Mkdir(dropinDir, 0755); err != nil {
				t.Fatal(err)
			}
			writeFile(t, mainConfigPath, tt.main)
			if tt.dropin != "" {
				writeFile(t, filepath.Join(dropinDir, "10-bad.toml"), tt.dropin)
			}

			_, err := ForPath(mainConfigPath).Read()
			if err == nil {
				t.Fatal("expected an error")
			}
			if !strings.Contains(err.Error(), tt.contains) {
				t.Errorf("expected error containing %q, got %v", tt.contains, err)
			}
		})
	}
}

func TestApplyEnviron(t *testing.T) {
	config := Config{LogLevel: slog.LevelWarn, Syntax: "omnibus"}
	err := config.ApplyEnviron([]string{
		"HOME=/root",
		"TOPO_LOG_LEVEL=error",
		"TOPO_SYNTAX=toml",
		"TOPO_PLATFORM_VERSION=15.11.2",
		"TOPO_SCHEMA=schema.yaml",
		"TOPO_STRICT=1",
		"CI=true",
		"TOPO_SYNTAX=yaml",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := Config{
		LogLevel:        slog.LevelError,
		Syntax:          "yaml",
		PlatformVersion: "15.11.2",
		Schema:          "schema.yaml",
		Strict:          true,
		CI:              true,
	}
	if diff := cmp.Diff(want, config); diff != "" {
		t.Errorf("ApplyEnviron() mismatch (-want +got):\n%s", diff)
	}
}

func TestApplyEnviron_CI(t *testing.T) {
	tests := []struct {
		environ []string
		want    bool
		wantErr bool
	}{
		{[]string{"CI=false"}, true, false},
		{[]string{"CI=maybe"}, true, false},
		{[]string{"TOPO_CI=false", "CI=true"}, true, false},
		{[]string{"TOPO_CI=false"}, false, false},
		{[]string{"TOPO_CI=maybe"}, true, true},
	}

	for _, tt := range tests {
		t.Run(strings.Join(tt.environ, ","), func(t *testing.T) {
			config := Config{CI: true}
			err := config.ApplyEnviron(tt.environ)
			if (err != nil) != tt.wantErr {
				t.Fatalf("unexpected error state: %v", err)
			}
			if config.CI != tt.want {
				t.Errorf("expected CI=%v, got %v", tt.want, config.CI)
			}
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	for in, want := range map[string]slog.Level{
		"DEBUG":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"Warning": slog.LevelWarn,
		" error ": slog.LevelError,
	} {
		got, err := ParseLogLevel(in)
		if err != nil || got != want {
			t.Errorf("ParseLogLevel(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := ParseLogLevel("trace"); err == nil {
		t.Error("expected an error for 'trace'")
	}
}
