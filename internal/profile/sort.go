package profile

import (
	"fmt"
	"strings"
)

// UltimateSort re-sorts ranked results by size after the primary sort.
type UltimateSort int

const (
	UltimateSortNone UltimateSort = iota
	UltimateSortSizeDesc
	UltimateSortSizeAsc
)

// ParseUltimateSort canonicalises the settings value. Matching is case-insensitive.
func ParseUltimateSort(s string) (UltimateSort, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none", "default":
		return UltimateSortNone, nil
	case "size: large to small", "size_desc", "size-desc":
		return UltimateSortSizeDesc, nil
	case "size: small to large", "size_asc", "size-asc":
		return UltimateSortSizeAsc, nil
	}
	return UltimateSortNone, fmt.Errorf("unknown ultimate sort order %q", s)
}

func (u UltimateSort) String() string {
	switch u {
	case UltimateSortSizeDesc:
		return "size: large to small"
	case UltimateSortSizeAsc:
		return "size: small to large"
	default:
		return "none"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (u UltimateSort) MarshalText() ([]byte, error) {
	return []byte(u.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (u *UltimateSort) UnmarshalText(text []byte) error {
	v, err := ParseUltimateSort(string(text))
	if err != nil {
		return err
	}
	*u = v
	return nil
}
