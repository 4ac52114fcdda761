package schema

import (
	"os"
	"path/filepath"
	"strings"
)

// MnemonicRule maps a connection-name substring to a short label. Rules are
// checked in order; the first match wins.
type MnemonicRule struct {
	Match string `json:"match"`
	Short string `json:"short"`
}

// DisplayConfig holds the rendering settings for the status line. Every field
// is runtime-overridable.
type DisplayConfig struct {
	BusyColor        HexColor
	CurrentIdleColor HexColor
	OtherIdleColor   HexColor
	// CurrentMarkColor tints the outer wrapper around a current, idle
	// connection. A current, busy connection gets the neutral default
	// token instead.
	CurrentMarkColor HexColor
	// Separator joins the per-connection labels. Empty selects the default:
	// a pipe glyph wrapped in the other-idle color.
	Separator string
	Mnemonics []MnemonicRule
}

// DisplayPatch is a partial display update; nil fields stay unchanged.
type DisplayPatch struct {
	BusyColor        *string        `json:"busy_color,omitempty"`
	CurrentIdleColor *string        `json:"current_idle_color,omitempty"`
	OtherIdleColor   *string        `json:"other_idle_color,omitempty"`
	CurrentMarkColor *string        `json:"current_mark_color,omitempty"`
	Separator        *string        `json:"separator,omitempty"`
	Mnemonics        []MnemonicRule `json:"mnemonics,omitempty"`
}

// ServiceConfig defines the core service settings.
type ServiceConfig struct {
	// StateDir stores runtime display overrides. Empty selects
	// ~/.busyline/state.
	StateDir string
	Display  DisplayConfig
}

// Default display colors.
const (
	DefaultBusyColor        HexColor = "#d87e17"
	DefaultCurrentIdleColor HexColor = "#839496"
	DefaultOtherIdleColor   HexColor = "#4a4e4f"
	DefaultCurrentMarkColor HexColor = "#268bd2"
)

// DefaultMnemonics abbreviates the common agent session names.
func DefaultMnemonics() []MnemonicRule {
	return []MnemonicRule{
		{Match: "claude", Short: "C"},
		{Match: "codex", Short: "X"},
		{Match: "opencode", Short: "O"},
		{Match: "gemini", Short: "G"},
		{Match: "amp", Short: "A"},
	}
}

// DefaultDisplayConfig returns the built-in display settings.
func DefaultDisplayConfig() DisplayConfig {
	cfg, _ := NormalizeDisplayConfig(DisplayConfig{})
	return cfg
}

// NormalizeDisplayConfig applies defaults and validates colors and rules.
func NormalizeDisplayConfig(cfg DisplayConfig) (DisplayConfig, error) {
	var err error
	if cfg.BusyColor, err = normalizeColorDefault(cfg.BusyColor, DefaultBusyColor); err != nil {
		return DisplayConfig{}, err
	}
	if cfg.CurrentIdleColor, err = normalizeColorDefault(cfg.CurrentIdleColor, DefaultCurrentIdleColor); err != nil {
		return DisplayConfig{}, err
	}
	if cfg.OtherIdleColor, err = normalizeColorDefault(cfg.OtherIdleColor, DefaultOtherIdleColor); err != nil {
		return DisplayConfig{}, err
	}
	if cfg.CurrentMarkColor, err = normalizeColorDefault(cfg.CurrentMarkColor, DefaultCurrentMarkColor); err != nil {
		return DisplayConfig{}, err
	}
	if cfg.Mnemonics == nil {
		cfg.Mnemonics = DefaultMnemonics()
	}
	for _, rule := range cfg.Mnemonics {
		if strings.TrimSpace(rule.Match) == "" {
			return DisplayConfig{}, ErrInvalidMnemonic
		}
	}
	return cfg, nil
}

// NormalizeServiceConfig applies defaults and validates the config.
func NormalizeServiceConfig(cfg ServiceConfig) (ServiceConfig, error) {
	if cfg.StateDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ServiceConfig{}, err
		}
		cfg.StateDir = filepath.Join(home, ".busyline", "state")
	}
	display, err := NormalizeDisplayConfig(cfg.Display)
	if err != nil {
		return ServiceConfig{}, err
	}
	cfg.Display = display
	return cfg, nil
}

func normalizeColorDefault(value, fallback HexColor) (HexColor, error) {
	if value == "" {
		return fallback, nil
	}
	return NormalizeHexColor(string(value))
}
