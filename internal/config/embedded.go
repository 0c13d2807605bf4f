package config

// Embedded upstream credentials injected at build time via ldflags.
// They serve as defaults and can be overridden by environment
// variables or config file.
//
// Build with:
//   go build -ldflags "-X 'github.com/reelscout/reelscout/internal/config.EmbeddedTraktClientID=xxx' \
//                      -X 'github.com/reelscout/reelscout/internal/config.EmbeddedTraktClientSecret=yyy'"
var (
	EmbeddedTraktClientID     string
	EmbeddedTraktClientSecret string
)
