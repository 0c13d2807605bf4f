package transport

import (
	"regexp"
	"strconv"
	"strings"
)

var sizePattern = regexp.MustCompile(`(?i)([\d.,]+)\s*(tib|tb|gib|gb|mib|mb|kib|kb|b)\b`)

// ParseSizeGB converts a human-readable size ("1.4 GiB", "700 MB") to gigabytes.
// It returns 0 when no size is found.
func ParseSizeGB(s string) float64 {
	m := sizePattern.FindStringSubmatch(s)
	if m == nil {
		return 0
	}
	value, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
	if err != nil {
		return 0
	}
	switch strings.ToLower(m[2]) {
	case "tib", "tb":
		return value * 1024
	case "gib", "gb":
		return value
	case "mib", "mb":
		return value / 1024
	case "kib", "kb":
		return value / (1024 * 1024)
	default:
		return value / (1024 * 1024 * 1024)
	}
}
