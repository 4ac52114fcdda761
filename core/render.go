package core

import (
	"strings"
	"sync"

	"pkt.systems/busyline/schema"
)

// Markup emits the color tokens of a concrete status-bar dialect around a
// label. Open switches the foreground to the given color; Reset returns it
// to the bar's default. Implementations must be safe for concurrent use.
type Markup interface {
	Open(color schema.HexColor) string
	Reset() string
}

// Formatter renders connection labels and the aggregate status line. It
// reads the registry and the enumerated connections but never mutates
// either. Display settings can change at runtime through Apply; renders
// always use the settings in effect when they start.
type Formatter struct {
	mu     sync.Mutex
	markup Markup
	cfg    schema.DisplayConfig
}

// NewFormatter builds a formatter with the given markup dialect and display
// settings. The settings are normalized first so unset fields pick up the
// defaults.
func NewFormatter(markup Markup, cfg schema.DisplayConfig) (*Formatter, error) {
	normalized, err := schema.NormalizeDisplayConfig(cfg)
	if err != nil {
		return nil, err
	}
	return &Formatter{markup: markup, cfg: normalized}, nil
}

// Display returns a copy of the active display settings.
func (f *Formatter) Display() schema.DisplayConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	return copyDisplay(f.cfg)
}

// Apply merges a patch into the active display settings and returns the
// effective result. Colors are validated before anything is replaced, so a
// bad patch leaves the settings untouched.
func (f *Formatter) Apply(patch schema.DisplayPatch) (schema.DisplayConfig, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	next := f.cfg
	var err error
	if next.BusyColor, err = patchColor(next.BusyColor, patch.BusyColor); err != nil {
		return schema.DisplayConfig{}, err
	}
	if next.CurrentIdleColor, err = patchColor(next.CurrentIdleColor, patch.CurrentIdleColor); err != nil {
		return schema.DisplayConfig{}, err
	}
	if next.OtherIdleColor, err = patchColor(next.OtherIdleColor, patch.OtherIdleColor); err != nil {
		return schema.DisplayConfig{}, err
	}
	if next.CurrentMarkColor, err = patchColor(next.CurrentMarkColor, patch.CurrentMarkColor); err != nil {
		return schema.DisplayConfig{}, err
	}
	if patch.Separator != nil {
		next.Separator = *patch.Separator
	}
	if patch.Mnemonics != nil {
		for _, rule := range patch.Mnemonics {
			if strings.TrimSpace(rule.Match) == "" {
				return schema.DisplayConfig{}, schema.ErrInvalidMnemonic
			}
		}
		next.Mnemonics = append([]schema.MnemonicRule(nil), patch.Mnemonics...)
	}
	f.cfg = next
	return copyDisplay(next), nil
}

// Label renders a single connection in the colors its state calls for.
func (f *Formatter) Label(conn schema.Conn, busy, current bool) string {
	f.mu.Lock()
	cfg := f.cfg
	markup := f.markup
	f.mu.Unlock()
	return renderLabel(markup, cfg, conn, busy, current)
}

// Line renders the aggregate status line for the connections in the order
// given, joined by the configured separator. An empty slice renders to the
// empty string with no separators or markup.
func (f *Formatter) Line(conns []schema.Conn, reg *Registry) string {
	return f.LineWith(nil, conns, reg)
}

// LineWith renders the line in a specific markup dialect without touching
// the formatter's own. A nil markup uses the formatter default.
func (f *Formatter) LineWith(m Markup, conns []schema.Conn, reg *Registry) string {
	f.mu.Lock()
	cfg := f.cfg
	markup := f.markup
	f.mu.Unlock()
	if m != nil {
		markup = m
	}
	if len(conns) == 0 {
		return ""
	}
	labels := make([]string, 0, len(conns))
	for _, conn := range conns {
		labels = append(labels, renderLabel(markup, cfg, conn, reg.IsBusy(conn.ID), reg.IsCurrent(conn.ID)))
	}
	return strings.Join(labels, separator(markup, cfg))
}

// renderLabel picks the mnemonic and wraps it in the markup for the state.
// The inner triple colors the label itself; current connections get one more
// outer triple, colored with the current mark when idle and with the bar's
// default when busy so the busy color stays undiluted.
func renderLabel(m Markup, cfg schema.DisplayConfig, conn schema.Conn, busy, current bool) string {
	label := mnemonicFor(cfg.Mnemonics, conn.Name)
	color := cfg.OtherIdleColor
	switch {
	case busy:
		color = cfg.BusyColor
	case current:
		color = cfg.CurrentIdleColor
	}
	out := m.Open(color) + label + m.Reset()
	if current {
		open := m.Open(cfg.CurrentMarkColor)
		if busy {
			open = m.Reset()
		}
		out = open + out + m.Reset()
	}
	return out
}

// mnemonicFor returns the short label of the first rule whose match string
// occurs in the connection name, or the full name when no rule matches.
// Rule order decides ties.
func mnemonicFor(rules []schema.MnemonicRule, name string) string {
	for _, rule := range rules {
		if strings.Contains(name, rule.Match) {
			return rule.Short
		}
	}
	return name
}

// separator returns the configured join string. The default is a pipe in the
// other-idle color so it recedes next to the labels.
func separator(m Markup, cfg schema.DisplayConfig) string {
	if cfg.Separator != "" {
		return cfg.Separator
	}
	return m.Open(cfg.OtherIdleColor) + "|" + m.Reset()
}

func patchColor(current schema.HexColor, patch *string) (schema.HexColor, error) {
	if patch == nil {
		return current, nil
	}
	return schema.NormalizeHexColor(*patch)
}

func copyDisplay(cfg schema.DisplayConfig) schema.DisplayConfig {
	out := cfg
	out.Mnemonics = append([]schema.MnemonicRule(nil), cfg.Mnemonics...)
	return out
}
