package types

import (
	"encoding/base32"
	"encoding/hex"
	"net/url"
	"regexp"
	"strings"
)

var (
	hexHashPattern    = regexp.MustCompile(`^[0-9a-f]{40}$`)
	base32HashPattern = regexp.MustCompile(`^[A-Z2-7]{32}$`)
	btihPattern       = regexp.MustCompile(`(?i)urn:btih:([0-9a-z]{32,40})`)
)

// NormalizeInfoHash lowercases a hex info-hash and converts base32 hashes to
// hex. It returns "" when the value is not a valid hash.
func NormalizeInfoHash(raw string) string {
	value := strings.TrimSpace(raw)
	value = strings.TrimPrefix(strings.ToLower(value), "urn:btih:")
	if value == "" {
		return ""
	}
	if hexHashPattern.MatchString(value) {
		return value
	}
	upper := strings.ToUpper(value)
	if base32HashPattern.MatchString(upper) {
		decoded, err := base32.StdEncoding.DecodeString(upper)
		if err == nil && len(decoded) == 20 {
			return hex.EncodeToString(decoded)
		}
	}
	return ""
}

// InfoHashFromMagnet extracts the normalized info-hash from a magnet URI.
func InfoHashFromMagnet(magnet string) string {
	m := btihPattern.FindStringSubmatch(magnet)
	if m == nil {
		return ""
	}
	return NormalizeInfoHash(m[1])
}

// BuildMagnet constructs a magnet URI from an info-hash.
func BuildMagnet(infoHash, name string, trackers []string) string {
	hash := NormalizeInfoHash(infoHash)
	if hash == "" {
		return ""
	}
	var builder strings.Builder
	builder.WriteString("magnet:?xt=urn:btih:")
	builder.WriteString(hash)
	if strings.TrimSpace(name) != "" {
		builder.WriteString("&dn=")
		builder.WriteString(url.QueryEscape(strings.TrimSpace(name)))
	}
	for _, tracker := range trackers {
		value := strings.TrimSpace(tracker)
		if value == "" {
			continue
		}
		builder.WriteString("&tr=")
		builder.WriteString(url.QueryEscape(value))
	}
	return builder.String()
}

// TrimMagnet reduces a magnet URI to its info-hash part, dropping tracker and
// display-name parameters. Unparseable input is returned trimmed and lowercased.
func TrimMagnet(magnet string) string {
	if hash := InfoHashFromMagnet(magnet); hash != "" {
		return "magnet:?xt=urn:btih:" + hash
	}
	return strings.ToLower(strings.TrimSpace(magnet))
}
