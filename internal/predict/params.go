// Package predict stacks search hits of reference CDS parts into spliced
// gene models.
//
// A transcript is predicted in four steps: a coarse DP over the hits of
// every contig strand selects candidate strands; per strand the hit set is
// reduced and split into regions; missing parts are searched by aligning
// the reference parts against the translated genome; and a final DP with
// splice-site scoring and backtracking yields the best gene model of each
// region. Solutions of all regions are ranked and refined.
package predict

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/inodb/vibe-gemoma/internal/reference"
)

const (
	// maxPartGap is the look-ahead window of the DP in parts.
	maxPartGap = 5
	// minIntronLength is the shortest intron a splice variant may create.
	minIntronLength = 30
	// missingAA bounds the residues a part may miss before a start
	// methionine is searched elsewhere.
	missingAA = 10
	// spliceSiteAA is the number of residues at each hit end that splice
	// sites may shorten.
	spliceSiteAA = 30
)

// ErrTimeout is reported for transcripts whose analysis exceeded the timeout.
var ErrTimeout = errors.New("prediction timed out")

// Params holds the prediction parameters.
type Params struct {
	MaxIntron        int     `mapstructure:"max-intron"`
	MinDynamicIntron int     `mapstructure:"min-dynamic-intron"`
	DynamicFactor    float64 `mapstructure:"dynamic-factor"`
	IntronGainLoss   int     `mapstructure:"intron-gain-loss"`

	EValue          float64 `mapstructure:"evalue"`
	ContigThreshold float64 `mapstructure:"contig-threshold"`
	RegionThreshold float64 `mapstructure:"region-threshold"`
	HitThreshold    float64 `mapstructure:"hit-threshold"`
	Predictions     int     `mapstructure:"predictions"`

	AvoidStop bool `mapstructure:"avoid-stop"`
	Approx    bool `mapstructure:"approx"`
	// Splice falls back to canonical splice sites where intron evidence has
	// no candidate. Without intron evidence canonical sites are always used.
	Splice bool `mapstructure:"splice"`

	GapOpen   int    `mapstructure:"gap-open"`
	GapExtend int    `mapstructure:"gap-extend"`
	Ambiguity string `mapstructure:"ambiguity"`

	Timeout time.Duration `mapstructure:"timeout"`
	// Grace is how long a timed out worker may take to unwind before its
	// workspace is abandoned.
	Grace time.Duration `mapstructure:"grace"`
	// MaxNewHits caps the hits gap filling may add per part.
	MaxNewHits int `mapstructure:"max-new-hits"`

	Tag    string `mapstructure:"tag"`
	Prefix string `mapstructure:"prefix"`
}

// DefaultParams returns the default parameters.
func DefaultParams() Params {
	return Params{
		MaxIntron:        15000,
		MinDynamicIntron: 1000,
		IntronGainLoss:   25,
		EValue:           100,
		ContigThreshold:  0.9,
		RegionThreshold:  0.9,
		HitThreshold:     0.9,
		Predictions:      1,
		AvoidStop:        true,
		Approx:           true,
		Splice:           true,
		GapOpen:          11,
		GapExtend:        1,
		Ambiguity:        "ambiguous",
		Timeout:          time.Hour,
		Grace:            time.Second,
		MaxNewHits:       20000,
		Tag:              "mRNA",
	}
}

// Validate checks parameter ranges.
func (p Params) Validate() error {
	switch {
	case p.MaxIntron <= minIntronLength:
		return fmt.Errorf("max-intron must be larger than %d", minIntronLength)
	case p.Predictions < 1:
		return fmt.Errorf("predictions must be at least 1")
	case p.GapOpen < 0 || p.GapExtend < 0:
		return fmt.Errorf("gap costs must not be negative")
	case p.IntronGainLoss < 0:
		return fmt.Errorf("intron-gain-loss must not be negative")
	case p.DynamicFactor < 0:
		return fmt.Errorf("dynamic-factor must not be negative")
	case p.Timeout <= 0:
		return fmt.Errorf("timeout must be positive")
	case p.MaxNewHits < 1:
		return fmt.Errorf("max-new-hits must be positive")
	}
	for name, v := range map[string]float64{
		"contig-threshold": p.ContigThreshold,
		"region-threshold": p.RegionThreshold,
		"hit-threshold":    p.HitThreshold,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("%s must be in [0, 1], got %g", name, v)
		}
	}
	return nil
}

// MaxIntronFor returns the maximal intron length used for a transcript. With
// a positive DynamicFactor and a known reference intron length it shrinks to
// the scaled reference value, but never below MinDynamicIntron.
func (p Params) MaxIntronFor(t *reference.Transcript) int {
	if p.DynamicFactor <= 0 || t.MaxIntron <= 0 {
		return p.MaxIntron
	}
	dyn := int(math.Ceil(p.DynamicFactor * float64(t.MaxIntron)))
	return min(p.MaxIntron, max(p.MinDynamicIntron, dyn))
}
