package scene

import (
	"fmt"
	"strings"
)

// NormalizeRegionCode canonicalizes a region code. WRS-2 path/rows become six
// digits ("92085", "092/085", "092_085" -> "092085"); Sentinel-2 MGRS tiles
// become five upper-case characters with any leading "T" removed.
func NormalizeRegionCode(code string) (string, error) {
	raw := strings.TrimSpace(code)
	if raw == "" {
		return "", fmt.Errorf("empty region code")
	}
	if isPathRow(raw) {
		return normalizePathRow(raw)
	}
	tile := strings.ToUpper(raw)
	if len(tile) == 6 && tile[0] == 'T' {
		tile = tile[1:]
	}
	if len(tile) != 5 || !isDigit(tile[0]) || !isDigit(tile[1]) {
		return "", fmt.Errorf("region code %q is neither a path/row nor a tile", code)
	}
	for _, r := range tile[2:] {
		if r < 'A' || r > 'Z' {
			return "", fmt.Errorf("region code %q is neither a path/row nor a tile", code)
		}
	}
	return tile, nil
}

func isPathRow(s string) bool {
	for i := 0; i < len(s); i++ {
		if c := s[i]; !isDigit(c) && c != '/' && c != '_' && c != '-' {
			return false
		}
	}
	return true
}

func normalizePathRow(s string) (string, error) {
	var path, row string
	if i := strings.IndexAny(s, "/_-"); i >= 0 {
		path, row = s[:i], s[i+1:]
		if len(path) > 3 || len(row) > 3 || path == "" || row == "" {
			return "", fmt.Errorf("path/row %q out of range", s)
		}
		return zeroPad(path, 3) + zeroPad(row, 3), nil
	}
	if len(s) > 6 {
		return "", fmt.Errorf("path/row %q longer than 6 digits", s)
	}
	return zeroPad(s, 6), nil
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

func zeroPad(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return strings.Repeat("0", width-len(s)) + s
}
