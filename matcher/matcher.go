// Package matcher re-identifies template descriptors in a kd-tree index using
// the nearest/second-nearest distance ratio test.
package matcher

import (
	"fmt"

	"github.com/nvr-ai/go-track/features"
	"github.com/nvr-ai/go-track/kdtree"
	"github.com/pkg/errors"
)

const (
	// DefaultRatioThreshold is the squared-distance ratio below which a match
	// is accepted. 0.49 corresponds to a distance ratio of 0.7.
	DefaultRatioThreshold = 0.49
	// DefaultMaxChecks bounds the number of descriptors compared per query.
	DefaultMaxChecks = 200
)

// Config holds the matcher parameters.
type Config struct {
	// RatioThreshold is compared against d1/d2 on squared distances; a match is
	// accepted only when the ratio is strictly below it.
	RatioThreshold float64 `json:"ratio_threshold" yaml:"ratio_threshold"`
	// MaxChecks is the search budget per query; zero or less searches exhaustively.
	MaxChecks int `json:"max_checks" yaml:"max_checks"`
	// CrossCheck additionally requires the matched descriptor to map back to
	// the query in the reverse index.
	CrossCheck bool `json:"cross_check" yaml:"cross_check"`
}

// DefaultConfig returns the default matcher configuration.
func DefaultConfig() Config {
	return Config{
		RatioThreshold: DefaultRatioThreshold,
		MaxChecks:      DefaultMaxChecks,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if !(c.RatioThreshold > 0 && c.RatioThreshold <= 1) {
		return errors.Wrapf(features.ErrInvalidInput, "ratio threshold must be in (0, 1], got %v", c.RatioThreshold)
	}
	return nil
}

// Reason explains why a query was not matched.
type Reason string

const (
	// ReasonNoCandidates means the index was missing or could not be queried.
	ReasonNoCandidates Reason = "no_candidates"
	// ReasonNoSecond means the index holds a single descriptor, so the ratio
	// test cannot be applied.
	ReasonNoSecond Reason = "no_second"
	// ReasonAmbiguous means the best candidate was not clearly closer than the
	// runner-up.
	ReasonAmbiguous Reason = "ambiguous"
	// ReasonCrossCheck means the match did not map back to the query.
	ReasonCrossCheck Reason = "cross_check"
)

// Outcome is either Matched or Unmatched.
type Outcome interface {
	outcome()
}

// Matched is a confidently re-identified descriptor.
type Matched struct {
	// Index is the position of the matched descriptor in the searched index.
	Index int
	// DistanceSq is the squared distance to the best candidate.
	DistanceSq float64
	// Ratio is the best to second-best squared distance ratio.
	Ratio float64
}

// Unmatched is a rejected query.
type Unmatched struct {
	Reason Reason
}

func (Matched) outcome()   {}
func (Unmatched) outcome() {}

func (m Matched) String() string {
	return fmt.Sprintf("Matched(index=%d,ratio=%.3f)", m.Index, m.Ratio)
}

func (u Unmatched) String() string {
	return fmt.Sprintf("Unmatched(%s)", u.Reason)
}

// Matcher applies the ratio test to bounded kd-tree searches.
// It holds no per-query state and is safe for concurrent use.
type Matcher struct {
	config Config
}

// New creates a matcher.
//
// Arguments:
//   - config: The matcher configuration.
//
// Returns:
//   - *Matcher: The matcher.
//   - error: ErrInvalidInput if the configuration is invalid.
func New(config Config) (*Matcher, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Matcher{config: config}, nil
}

// Config returns the matcher configuration.
func (m *Matcher) Config() Config { return m.config }

// Match searches tree for query and applies the ratio test.
//
// A query is accepted only when a second-best candidate exists and
// d1/d2 < RatioThreshold. Equal distances, including two exact duplicates,
// are ambiguous. Rejection is a normal outcome, never an error.
//
// Arguments:
//   - tree: The index to search; nil yields Unmatched.
//   - query: The descriptor to re-identify.
//
// Returns:
//   - Outcome: Matched with the index entry, or Unmatched with a reason.
//
// @example
// switch o := m.Match(tree, template.Descriptor(i)).(type) {
// case matcher.Matched:
//	loc := current.Absolute(o.Index)
// case matcher.Unmatched:
//	// fall back to motion estimation
// }
func (m *Matcher) Match(tree *kdtree.Tree, query features.Descriptor) Outcome {
	if tree == nil {
		return Unmatched{Reason: ReasonNoCandidates}
	}
	res, err := tree.Search(query, m.config.MaxChecks)
	if err != nil {
		// Incomparable descriptors are infinitely far apart.
		return Unmatched{Reason: ReasonNoCandidates}
	}
	return m.ratioTest(res)
}

// MatchMutual is Match followed by a cross-check when enabled: the matched
// descriptor is searched in reverse and must come back to queryIndex.
//
// Arguments:
//   - tree: The index searched for query.
//   - query: The descriptor to re-identify.
//   - reverse: The index query belongs to.
//   - queryIndex: The position of query in reverse.
func (m *Matcher) MatchMutual(tree *kdtree.Tree, query features.Descriptor, reverse *kdtree.Tree, queryIndex int) Outcome {
	out := m.Match(tree, query)
	matched, ok := out.(Matched)
	if !ok || !m.config.CrossCheck || reverse == nil {
		return out
	}

	back, err := reverse.Search(tree.Descriptor(matched.Index), m.config.MaxChecks)
	if err != nil || back.Best.Index != queryIndex {
		return Unmatched{Reason: ReasonCrossCheck}
	}
	return matched
}

func (m *Matcher) ratioTest(res kdtree.Result) Outcome {
	if !res.HasSecond {
		return Unmatched{Reason: ReasonNoSecond}
	}
	if res.Second.DistanceSq == 0 {
		return Unmatched{Reason: ReasonAmbiguous}
	}
	ratio := res.Best.DistanceSq / res.Second.DistanceSq
	if ratio < m.config.RatioThreshold {
		return Matched{Index: res.Best.Index, DistanceSq: res.Best.DistanceSq, Ratio: ratio}
	}
	return Unmatched{Reason: ReasonAmbiguous}
}
