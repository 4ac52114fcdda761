// Package bootstrap generates the busyline starter bundle: the default
// config YAML and the tmux integration snippet rendered from embedded
// templates.
package bootstrap

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"

	"pkt.systems/busyline/internal/appconfig"
)

// Files represents generated bootstrap artifacts.
type Files struct {
	ConfigYAML []byte
	TmuxConf   []byte
}

// Options controls optional bootstrap behaviors.
type Options struct {
	Overrides []ConfigOverride
}

// ConfigOverride applies a dotted-path override to the generated config,
// e.g. {Path: "tmux.option", Value: "@statusline"}.
type ConfigOverride struct {
	Path  string
	Value any
}

// Paths reports where bootstrap wrote its outputs.
type Paths struct {
	ConfigPath   string
	TmuxConfPath string
}

const (
	configName   = "config.yaml"
	tmuxConfName = "busyline.tmux.conf"

	// statusInterval is the fallback status-right refresh cadence in
	// seconds; state changes refresh immediately via refresh-client.
	statusInterval = 5
)

type templateData struct {
	StatusOption   string
	ConnOption     string
	StatusInterval int
}

// DefaultFiles returns the default bootstrap bundle.
func DefaultFiles() (Files, error) {
	return DefaultFilesWithOptions(Options{})
}

// DefaultFilesWithOptions returns the bootstrap bundle with overrides applied.
// The tmux snippet is rendered from the overridden config, so overriding
// tmux.option or tmux.conn_option changes both outputs consistently.
func DefaultFilesWithOptions(opts Options) (Files, error) {
	cfg, err := appconfig.DefaultConfig()
	if err != nil {
		return Files{}, err
	}
	configYAML, err := yaml.Marshal(cfg)
	if err != nil {
		return Files{}, err
	}
	if len(opts.Overrides) > 0 {
		configYAML, err = applyOverridesToYAML(configYAML, opts.Overrides)
		if err != nil {
			return Files{}, err
		}
		if err := yaml.Unmarshal(configYAML, &cfg); err != nil {
			return Files{}, fmt.Errorf("overridden config does not parse: %w", err)
		}
	}
	tmuxConf, err := renderTmuxConf(templateDataFor(cfg))
	if err != nil {
		return Files{}, err
	}
	return Files{ConfigYAML: configYAML, TmuxConf: tmuxConf}, nil
}

func templateDataFor(cfg appconfig.Config) templateData {
	data := templateData{
		StatusOption:   strings.TrimSpace(cfg.Tmux.Option),
		ConnOption:     strings.TrimSpace(cfg.Tmux.ConnOption),
		StatusInterval: statusInterval,
	}
	if data.StatusOption == "" {
		data.StatusOption = "@busyline"
	}
	if data.ConnOption == "" {
		data.ConnOption = "@busyline_conn"
	}
	return data
}

// WriteBootstrap writes the default bundle into outputDir. An empty
// outputDir targets the directory of the default config path.
func WriteBootstrap(outputDir string, overwrite bool) (Paths, error) {
	return WriteBootstrapWithOptions(outputDir, overwrite, Options{})
}

// WriteBootstrapWithOptions writes the bundle with overrides applied.
func WriteBootstrapWithOptions(outputDir string, overwrite bool, opts Options) (Paths, error) {
	files, err := DefaultFilesWithOptions(opts)
	if err != nil {
		return Paths{}, err
	}
	if strings.TrimSpace(outputDir) == "" {
		configPath, err := appconfig.DefaultConfigPath()
		if err != nil {
			return Paths{}, err
		}
		outputDir = filepath.Dir(configPath)
	}
	return WriteFiles(outputDir, files, overwrite)
}

// WriteFiles writes the bootstrap files to the output directory.
func WriteFiles(outputDir string, files Files, overwrite bool) (Paths, error) {
	if strings.TrimSpace(outputDir) == "" {
		return Paths{}, fmt.Errorf("output directory is required")
	}
	configPath := filepath.Join(outputDir, configName)
	tmuxConfPath := filepath.Join(outputDir, tmuxConfName)
	for _, path := range []string{configPath, tmuxConfPath} {
		if !overwrite {
			if _, err := os.Stat(path); err == nil {
				return Paths{}, fmt.Errorf("file already exists: %s", path)
			}
		}
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return Paths{}, err
	}
	if err := os.WriteFile(configPath, files.ConfigYAML, 0o600); err != nil {
		return Paths{}, err
	}
	if err := os.WriteFile(tmuxConfPath, files.TmuxConf, 0o644); err != nil {
		return Paths{}, err
	}
	return Paths{ConfigPath: configPath, TmuxConfPath: tmuxConfPath}, nil
}

func renderTmuxConf(data templateData) ([]byte, error) {
	return renderTemplate("templates/busyline.tmux.conf.tmpl", data)
}

func renderTemplate(name string, data templateData) ([]byte, error) {
	raw, err := readEmbeddedFile(name)
	if err != nil {
		return nil, err
	}
	tpl, err := template.New(filepath.Base(name)).Parse(string(raw))
	if err != nil {
		return nil, fmt.Errorf("parse template %s: %w", name, err)
	}
	var buf bytes.Buffer
	if err := tpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("render template %s: %w", name, err)
	}
	return buf.Bytes(), nil
}

func applyOverridesToYAML(configYAML []byte, overrides []ConfigOverride) ([]byte, error) {
	if len(overrides) == 0 {
		return configYAML, nil
	}
	var data map[string]any
	if err := yaml.Unmarshal(configYAML, &data); err != nil {
		return nil, err
	}
	for _, override := range overrides {
		if err := setOverrideValue(data, override.Path, override.Value); err != nil {
			return nil, err
		}
	}
	return yaml.Marshal(data)
}

func setOverrideValue(root map[string]any, path string, value any) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return fmt.Errorf("config override path is required")
	}
	parts := strings.Split(path, ".")
	node := root
	for i, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			return fmt.Errorf("invalid config override path %q", path)
		}
		if i == len(parts)-1 {
			node[part] = value
			return nil
		}
		next, ok := node[part]
		if !ok || next == nil {
			child := map[string]any{}
			node[part] = child
			node = child
			continue
		}
		child, ok := toStringMap(next)
		if !ok {
			return fmt.Errorf("config override %q: %q is not a map", path, part)
		}
		node[part] = child
		node = child
	}
	return nil
}

func toStringMap(value any) (map[string]any, bool) {
	switch typed := value.(type) {
	case map[string]any:
		return typed, true
	case map[any]any:
		out := make(map[string]any, len(typed))
		for key, val := range typed {
			ks, ok := key.(string)
			if !ok {
				return nil, false
			}
			out[ks] = val
		}
		return out, true
	default:
		return nil, false
	}
}
