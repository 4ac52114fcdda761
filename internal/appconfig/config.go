package appconfig

import (
	"os"
	"path/filepath"

	"pkt.systems/busyline/schema"
)

// Config is the top-level application configuration.
type Config struct {
	ConfigVersion int             `mapstructure:"config_version" yaml:"config_version"`
	StateDir      string          `mapstructure:"state_dir" yaml:"state_dir"`
	Sessions      []SessionConfig `mapstructure:"sessions" yaml:"sessions"`
	Display       DisplayConfig   `mapstructure:"display" yaml:"display"`
	HTTP          HTTPConfig      `mapstructure:"http" yaml:"http"`
	Tmux          TmuxConfig      `mapstructure:"tmux" yaml:"tmux"`
}

// CurrentConfigVersion marks the supported config version.
const CurrentConfigVersion = 1

// SessionConfig names one agent session and where its link dials.
type SessionConfig struct {
	ID   string `mapstructure:"id" yaml:"id"`
	Name string `mapstructure:"name" yaml:"name"`
	URL  string `mapstructure:"url" yaml:"url"`
}

// DisplayConfig holds the status line rendering settings.
type DisplayConfig struct {
	BusyColor        string         `mapstructure:"busy_color" yaml:"busy_color"`
	CurrentIdleColor string         `mapstructure:"current_idle_color" yaml:"current_idle_color"`
	OtherIdleColor   string         `mapstructure:"other_idle_color" yaml:"other_idle_color"`
	CurrentMarkColor string         `mapstructure:"current_mark_color" yaml:"current_mark_color"`
	Separator        string         `mapstructure:"separator" yaml:"separator"`
	Mnemonics        []MnemonicRule `mapstructure:"mnemonics" yaml:"mnemonics"`
}

// MnemonicRule maps a session-name substring to a short label.
type MnemonicRule struct {
	Match string `mapstructure:"match" yaml:"match"`
	Short string `mapstructure:"short" yaml:"short"`
}

// HTTPConfig configures the control API listeners. SocketPath serves the
// unix socket; Addr adds an optional TCP listener and is off when empty.
// BasePath mounts the API under a prefix for reverse proxies.
type HTTPConfig struct {
	SocketPath string `mapstructure:"socket_path" yaml:"socket_path"`
	Addr       string `mapstructure:"addr" yaml:"addr"`
	BasePath   string `mapstructure:"base_path" yaml:"base_path"`
}

// TmuxConfig configures status publishing and focus polling.
type TmuxConfig struct {
	Option         string `mapstructure:"option" yaml:"option"`
	ConnOption     string `mapstructure:"conn_option" yaml:"conn_option"`
	PollIntervalMS int    `mapstructure:"poll_interval_ms" yaml:"poll_interval_ms"`
	Refresh        bool   `mapstructure:"refresh" yaml:"refresh"`
}

// ServiceConfig converts the config into core service form.
func (c Config) ServiceConfig() schema.ServiceConfig {
	return schema.ServiceConfig{
		StateDir: c.StateDir,
		Display:  c.Display.DisplayConfig(),
	}
}

// DisplayConfig converts the display section into schema form.
func (d DisplayConfig) DisplayConfig() schema.DisplayConfig {
	out := schema.DisplayConfig{
		BusyColor:        schema.HexColor(d.BusyColor),
		CurrentIdleColor: schema.HexColor(d.CurrentIdleColor),
		OtherIdleColor:   schema.HexColor(d.OtherIdleColor),
		CurrentMarkColor: schema.HexColor(d.CurrentMarkColor),
		Separator:        d.Separator,
	}
	if d.Mnemonics != nil {
		out.Mnemonics = make([]schema.MnemonicRule, 0, len(d.Mnemonics))
		for _, rule := range d.Mnemonics {
			out.Mnemonics = append(out.Mnemonics, schema.MnemonicRule{Match: rule.Match, Short: rule.Short})
		}
	}
	return out
}

// Patch converts the display section into a full display patch.
func (d DisplayConfig) Patch() schema.DisplayPatch {
	busy := d.BusyColor
	currentIdle := d.CurrentIdleColor
	otherIdle := d.OtherIdleColor
	currentMark := d.CurrentMarkColor
	separator := d.Separator
	patch := schema.DisplayPatch{
		BusyColor:        &busy,
		CurrentIdleColor: &currentIdle,
		OtherIdleColor:   &otherIdle,
		CurrentMarkColor: &currentMark,
		Separator:        &separator,
	}
	if d.Mnemonics != nil {
		patch.Mnemonics = make([]schema.MnemonicRule, 0, len(d.Mnemonics))
		for _, rule := range d.Mnemonics {
			patch.Mnemonics = append(patch.Mnemonics, schema.MnemonicRule{Match: rule.Match, Short: rule.Short})
		}
	}
	return patch
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() (Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, err
	}
	mnemonics := make([]MnemonicRule, 0, len(schema.DefaultMnemonics()))
	for _, rule := range schema.DefaultMnemonics() {
		mnemonics = append(mnemonics, MnemonicRule{Match: rule.Match, Short: rule.Short})
	}
	return Config{
		ConfigVersion: CurrentConfigVersion,
		StateDir:      filepath.Join(home, ".busyline", "state"),
		Sessions: []SessionConfig{
			{ID: "claude", Name: "claude-main", URL: "ws://127.0.0.1:8701/ws"},
			{ID: "codex", Name: "codex", URL: "ws://127.0.0.1:8702/ws"},
		},
		Display: DisplayConfig{
			BusyColor:        string(schema.DefaultBusyColor),
			CurrentIdleColor: string(schema.DefaultCurrentIdleColor),
			OtherIdleColor:   string(schema.DefaultOtherIdleColor),
			CurrentMarkColor: string(schema.DefaultCurrentMarkColor),
			Separator:        "",
			Mnemonics:        mnemonics,
		},
		HTTP: HTTPConfig{
			SocketPath: filepath.Join(home, ".busyline", "busyline.sock"),
			Addr:       "",
			BasePath:   "",
		},
		Tmux: TmuxConfig{
			Option:         "@busyline",
			ConnOption:     "@busyline_conn",
			PollIntervalMS: 1000,
			Refresh:        true,
		},
	}, nil
}

// DefaultConfigPath returns the standard config path.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".busyline", "config.yaml"), nil
}
