package bootstrap

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestDefaultFilesRendersTmuxConf(t *testing.T) {
	files, err := DefaultFiles()
	if err != nil {
		t.Fatalf("DefaultFiles: %v", err)
	}
	conf := string(files.TmuxConf)
	for _, want := range []string{
		`set-option -g @busyline ""`,
		"#{E:@busyline}",
		"@busyline_conn",
		"status-interval 5",
	} {
		if !strings.Contains(conf, want) {
			t.Fatalf("tmux conf missing %q:\n%s", want, conf)
		}
	}
	var cfg struct {
		ConfigVersion int `yaml:"config_version"`
	}
	if err := yaml.Unmarshal(files.ConfigYAML, &cfg); err != nil {
		t.Fatalf("unmarshal config: %v", err)
	}
	if cfg.ConfigVersion != 1 {
		t.Fatalf("unexpected config_version: %d", cfg.ConfigVersion)
	}
}

func TestDefaultFilesAppliesOverrides(t *testing.T) {
	files, err := DefaultFilesWithOptions(Options{Overrides: []ConfigOverride{
		{Path: "tmux.option", Value: "@statusline"},
		{Path: "display.busy_color", Value: "#ff8800"},
	}})
	if err != nil {
		t.Fatalf("DefaultFilesWithOptions: %v", err)
	}
	if !strings.Contains(string(files.TmuxConf), "#{E:@statusline}") {
		t.Fatalf("tmux conf does not use overridden option:\n%s", files.TmuxConf)
	}
	var cfg struct {
		Display struct {
			BusyColor string `yaml:"busy_color"`
		} `yaml:"display"`
		Tmux struct {
			Option string `yaml:"option"`
		} `yaml:"tmux"`
	}
	if err := yaml.Unmarshal(files.ConfigYAML, &cfg); err != nil {
		t.Fatalf("unmarshal config: %v", err)
	}
	if cfg.Display.BusyColor != "#ff8800" {
		t.Fatalf("busy_color override not applied: %q", cfg.Display.BusyColor)
	}
	if cfg.Tmux.Option != "@statusline" {
		t.Fatalf("tmux.option override not applied: %q", cfg.Tmux.Option)
	}
}

func TestDefaultFilesRejectsOverrideUnderScalar(t *testing.T) {
	_, err := DefaultFilesWithOptions(Options{Overrides: []ConfigOverride{
		{Path: "tmux.option.deep", Value: 1},
	}})
	if err == nil {
		t.Fatal("expected error for override below a scalar")
	}
}

func TestWriteFilesRefusesExisting(t *testing.T) {
	dir := t.TempDir()
	files, err := DefaultFiles()
	if err != nil {
		t.Fatalf("DefaultFiles: %v", err)
	}
	paths, err := WriteFiles(dir, files, false)
	if err != nil {
		t.Fatalf("WriteFiles: %v", err)
	}
	info, err := os.Stat(paths.ConfigPath)
	if err != nil {
		t.Fatalf("stat config: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("unexpected config mode: %v", info.Mode().Perm())
	}
	if _, err := WriteFiles(dir, files, false); err == nil {
		t.Fatal("expected second write to fail without overwrite")
	}
	if _, err := WriteFiles(dir, files, true); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
}

func TestWriteBootstrapDefaultsToHome(t *testing.T) {
	homeDir := t.TempDir()
	t.Setenv("HOME", homeDir)

	paths, err := WriteBootstrap("", false)
	if err != nil {
		t.Fatalf("WriteBootstrap: %v", err)
	}
	wantConfig := filepath.Join(homeDir, ".busyline", "config.yaml")
	if paths.ConfigPath != wantConfig {
		t.Fatalf("unexpected config path: %q", paths.ConfigPath)
	}
	if _, err := os.Stat(paths.TmuxConfPath); err != nil {
		t.Fatalf("stat tmux conf: %v", err)
	}
}
