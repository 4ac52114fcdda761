package schema

import "strings"

// NormalizeHexColor validates and lowercases a "#rrggbb" color value.
func NormalizeHexColor(value string) (HexColor, error) {
	trimmed := strings.TrimSpace(value)
	if len(trimmed) != 7 || trimmed[0] != '#' {
		return "", ErrInvalidColor
	}
	for _, r := range trimmed[1:] {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'f':
		case r >= 'A' && r <= 'F':
		default:
			return "", ErrInvalidColor
		}
	}
	return HexColor(strings.ToLower(trimmed)), nil
}

// ValidateConnID ensures a connection id matches [a-z0-9._-] with no
// normalization. Identities come from config and must be stable.
func ValidateConnID(id ConnID) error {
	raw := string(id)
	if raw == "" {
		return ErrInvalidConn
	}
	if strings.TrimSpace(raw) != raw {
		return ErrInvalidConn
	}
	for _, r := range raw {
		if r >= 'a' && r <= 'z' {
			continue
		}
		if r >= '0' && r <= '9' {
			continue
		}
		if r == '.' || r == '_' || r == '-' {
			continue
		}
		return ErrInvalidConn
	}
	return nil
}
