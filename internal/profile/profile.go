// Package profile defines version profiles: the filter thresholds and ranking
// weights a scrape is evaluated against.
package profile

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/reelscout/reelscout/internal/parser"
)

// ErrInvalidProfile is returned when a version profile fails validation.
var ErrInvalidProfile = errors.New("invalid version profile")

// ResolutionOperator compares a release resolution against the profile maximum.
type ResolutionOperator string

const (
	ResolutionAtMost  ResolutionOperator = "<="
	ResolutionExactly ResolutionOperator = "=="
	ResolutionAtLeast ResolutionOperator = ">="
)

// Valid reports whether the operator is one of the known comparisons.
func (o ResolutionOperator) Valid() bool {
	switch o {
	case ResolutionAtMost, ResolutionExactly, ResolutionAtLeast:
		return true
	}
	return false
}

// Weights scale each ranking signal. All weights are >= 0.
type Weights struct {
	Resolution float64 `json:"resolution" mapstructure:"resolution"`
	HDR        float64 `json:"hdr" mapstructure:"hdr"`
	Similarity float64 `json:"similarity" mapstructure:"similarity"`
	Size       float64 `json:"size" mapstructure:"size"`
	Bitrate    float64 `json:"bitrate" mapstructure:"bitrate"`
	Country    float64 `json:"country" mapstructure:"country"`
	Language   float64 `json:"language" mapstructure:"language"`
	YearMatch  float64 `json:"year_match" mapstructure:"year_match"`
}

// DefaultWeights weighs every signal equally.
func DefaultWeights() Weights {
	return Weights{
		Resolution: 1,
		HDR:        1,
		Similarity: 1,
		Size:       1,
		Bitrate:    1,
		Country:    1,
		Language:   1,
		YearMatch:  1,
	}
}

// PreferredPattern alters rank rather than acceptance.
type PreferredPattern struct {
	Pattern string  `json:"pattern" mapstructure:"pattern"`
	Weight  float64 `json:"weight" mapstructure:"weight"`
}

// VersionProfile is a user-defined bundle of filter thresholds and ranking weights.
type VersionProfile struct {
	ResolutionWanted         ResolutionOperator `json:"resolution_wanted" mapstructure:"resolution_wanted"`
	MaxResolution            string             `json:"max_resolution" mapstructure:"max_resolution"`
	MinSizeGB                float64            `json:"min_size_gb" mapstructure:"min_size_gb"`
	MaxSizeGB                float64            `json:"max_size_gb" mapstructure:"max_size_gb"` // 0 = unlimited
	MinBitrateMbps           float64            `json:"min_bitrate_mbps" mapstructure:"min_bitrate_mbps"`
	MaxBitrateMbps           float64            `json:"max_bitrate_mbps" mapstructure:"max_bitrate_mbps"` // 0 = unlimited
	EnableHDR                bool               `json:"enable_hdr" mapstructure:"enable_hdr"`
	FilterIn                 []string           `json:"filter_in" mapstructure:"filter_in"`
	FilterOut                []string           `json:"filter_out" mapstructure:"filter_out"`
	PreferredFilterIn        []PreferredPattern `json:"preferred_filter_in" mapstructure:"preferred_filter_in"`
	PreferredFilterOut       []PreferredPattern `json:"preferred_filter_out" mapstructure:"preferred_filter_out"`
	SimilarityThreshold      float64            `json:"similarity_threshold" mapstructure:"similarity_threshold"`
	SimilarityThresholdAnime float64            `json:"similarity_threshold_anime" mapstructure:"similarity_threshold_anime"`
	LanguageCode             string             `json:"language_code,omitempty" mapstructure:"language_code"`
	Weights                  Weights            `json:"weights" mapstructure:"weights"`
}

// Default returns the profile used when settings define none.
func Default() VersionProfile {
	return VersionProfile{
		ResolutionWanted:         ResolutionAtMost,
		MaxResolution:            parser.Resolution1080p,
		EnableHDR:                false,
		SimilarityThreshold:      0.85,
		SimilarityThresholdAnime: 0.80,
		Weights:                  DefaultWeights(),
	}
}

// WeightedPattern is a compiled preferred pattern.
type WeightedPattern struct {
	Pattern
	Weight float64
}

// Compiled is a validated profile with patterns parsed once.
type Compiled struct {
	Name string
	VersionProfile

	MaxResolutionRank int
	FilterInPatterns  []Pattern
	FilterOutPatterns []Pattern
	PreferredIn       []WeightedPattern
	PreferredOut      []WeightedPattern
}

// Compile validates v and parses its patterns.
func Compile(name string, v VersionProfile) (*Compiled, error) {
	if err := Validate(v); err != nil {
		return nil, fmt.Errorf("profile %q: %w", name, err)
	}

	c := &Compiled{
		Name:              name,
		VersionProfile:    v,
		MaxResolutionRank: parser.ResolutionRank(v.MaxResolution),
	}

	var err error
	if c.FilterInPatterns, err = compileAll(v.FilterIn); err != nil {
		return nil, fmt.Errorf("profile %q filter_in: %w", name, err)
	}
	if c.FilterOutPatterns, err = compileAll(v.FilterOut); err != nil {
		return nil, fmt.Errorf("profile %q filter_out: %w", name, err)
	}
	if c.PreferredIn, err = compileWeighted(v.PreferredFilterIn); err != nil {
		return nil, fmt.Errorf("profile %q preferred_filter_in: %w", name, err)
	}
	if c.PreferredOut, err = compileWeighted(v.PreferredFilterOut); err != nil {
		return nil, fmt.Errorf("profile %q preferred_filter_out: %w", name, err)
	}
	return c, nil
}

// Validate checks a profile for values the pipeline cannot evaluate.
func Validate(v VersionProfile) error {
	if !v.ResolutionWanted.Valid() {
		return fmt.Errorf("%w: unknown resolution operator %q", ErrInvalidProfile, v.ResolutionWanted)
	}
	if parser.ResolutionRank(v.MaxResolution) == 0 {
		return fmt.Errorf("%w: unknown max resolution %q", ErrInvalidProfile, v.MaxResolution)
	}
	if v.MinSizeGB < 0 || v.MaxSizeGB < 0 {
		return fmt.Errorf("%w: negative size bound", ErrInvalidProfile)
	}
	if v.MaxSizeGB > 0 && v.MinSizeGB > v.MaxSizeGB {
		return fmt.Errorf("%w: min_size_gb %.2f exceeds max_size_gb %.2f", ErrInvalidProfile, v.MinSizeGB, v.MaxSizeGB)
	}
	if v.MinBitrateMbps < 0 || v.MaxBitrateMbps < 0 {
		return fmt.Errorf("%w: negative bitrate bound", ErrInvalidProfile)
	}
	if v.MaxBitrateMbps > 0 && v.MinBitrateMbps > v.MaxBitrateMbps {
		return fmt.Errorf("%w: min_bitrate_mbps exceeds max_bitrate_mbps", ErrInvalidProfile)
	}
	for _, t := range []float64{v.SimilarityThreshold, v.SimilarityThresholdAnime} {
		if t < 0 || t > 1 {
			return fmt.Errorf("%w: similarity threshold %.2f outside [0,1]", ErrInvalidProfile, t)
		}
	}
	w := v.Weights
	for _, x := range []float64{w.Resolution, w.HDR, w.Similarity, w.Size, w.Bitrate, w.Country, w.Language, w.YearMatch} {
		if x < 0 || math.IsNaN(x) {
			return fmt.Errorf("%w: weights must be >= 0", ErrInvalidProfile)
		}
	}
	return nil
}

// ResolutionAllowed compares a release resolution rank against the profile
// maximum. Unknown resolution is treated as SD.
func (c *Compiled) ResolutionAllowed(rank int) bool {
	if rank == 0 {
		rank = 1
	}
	switch c.ResolutionWanted {
	case ResolutionExactly:
		return rank == c.MaxResolutionRank
	case ResolutionAtLeast:
		return rank >= c.MaxResolutionRank
	default:
		return rank <= c.MaxResolutionRank
	}
}

// MaxSize returns the upper size bound in GB, +Inf when unlimited.
func (c *Compiled) MaxSize() float64 {
	if c.MaxSizeGB <= 0 {
		return math.Inf(1)
	}
	return c.MaxSizeGB
}

// MaxBitrate returns the upper bitrate bound in Mbps, +Inf when unlimited.
func (c *Compiled) MaxBitrate() float64 {
	if c.MaxBitrateMbps <= 0 {
		return math.Inf(1)
	}
	return c.MaxBitrateMbps
}

func compileAll(sources []string) ([]Pattern, error) {
	out := make([]Pattern, 0, len(sources))
	for _, s := range sources {
		if strings.TrimSpace(s) == "" {
			continue
		}
		p, err := CompilePattern(s)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func compileWeighted(sources []PreferredPattern) ([]WeightedPattern, error) {
	out := make([]WeightedPattern, 0, len(sources))
	for _, s := range sources {
		if strings.TrimSpace(s.Pattern) == "" {
			continue
		}
		p, err := CompilePattern(s.Pattern)
		if err != nil {
			return nil, err
		}
		out = append(out, WeightedPattern{Pattern: p, Weight: s.Weight})
	}
	return out, nil
}
