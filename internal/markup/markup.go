// Package markup renders the color tokens of the supported status-bar
// dialects. Renderers only ever emit an open token, a label and a reset
// token; everything dialect-specific lives here.
package markup

import (
	"strconv"

	"pkt.systems/busyline/schema"
)

const (
	tmuxDefault = "#[fg=default]"
	ansiDefault = "\x1b[39m"
)

// Tmux emits tmux status-line ranges of the form "#[fg=#rrggbb]". The reset
// token restores the bar's default foreground rather than closing a span, so
// nested ranges degrade to flat ones, which is exactly how tmux treats them.
type Tmux struct{}

func (Tmux) Open(color schema.HexColor) string {
	if color == "" {
		return tmuxDefault
	}
	return "#[fg=" + string(color) + "]"
}

func (Tmux) Reset() string { return tmuxDefault }

// ANSI emits truecolor escape sequences for terminal previews.
type ANSI struct{}

func (ANSI) Open(color schema.HexColor) string {
	r, g, b, ok := splitRGB(color)
	if !ok {
		return ansiDefault
	}
	return "\x1b[38;2;" + strconv.Itoa(r) + ";" + strconv.Itoa(g) + ";" + strconv.Itoa(b) + "m"
}

func (ANSI) Reset() string { return ansiDefault }

// Plain emits no tokens at all. Used where colors would only get in the way,
// like piping a status line into another program.
type Plain struct{}

func (Plain) Open(schema.HexColor) string { return "" }

func (Plain) Reset() string { return "" }

// splitRGB decodes a normalized "#rrggbb" value into its channels.
func splitRGB(color schema.HexColor) (r, g, b int, ok bool) {
	raw := string(color)
	if len(raw) != 7 || raw[0] != '#' {
		return 0, 0, 0, false
	}
	channels := [3]int{}
	for i := 0; i < 3; i++ {
		v, err := strconv.ParseUint(raw[1+i*2:3+i*2], 16, 8)
		if err != nil {
			return 0, 0, 0, false
		}
		channels[i] = int(v)
	}
	return channels[0], channels[1], channels[2], true
}
