// Package batch drives the maze engine across many seeds and collects
// the rendered artifacts. Seed resolution, the generation run itself,
// and per-seed failure isolation all live here; archiving the results
// is the archive package's job.
package batch

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	// MaxSeeds caps how many seeds a single run will accept.
	MaxSeeds = 100

	randomSeedMax      = 999999
	defaultRandomCount = 5
)

// ErrInvalidSeedInput reports a malformed or out-of-range seed
// specification. Resolution fails atomically: no partial seed list is
// ever returned alongside it.
var ErrInvalidSeedInput = errors.New("batch: invalid seed input")

// SeedSpec selects exactly one of the four seed input modes. Fields
// hold raw user text so that each mode applies its own parsing rules.
type SeedSpec interface {
	seedSpec()
}

// SeedList resolves an ordered list of raw seed tokens.
type SeedList struct {
	Tokens []string
}

// SeedRange walks inclusively from Start to End. Direction follows the
// bounds. A supplied step must be positive; an absent or unparseable
// step falls back to 1.
type SeedRange struct {
	Start string
	End   string
	Step  string
}

// SeedRandom draws Count unique seeds from [1, 999999] and returns
// them in ascending order. An unparseable count falls back to 5.
type SeedRandom struct {
	Count string
}

// SeedPreset resolves a single comma-delimited blob of seed tokens.
type SeedPreset struct {
	Values string
}

func (SeedList) seedSpec()   {}
func (SeedRange) seedSpec()  {}
func (SeedRandom) seedSpec() {}
func (SeedPreset) seedSpec() {}

// Resolve turns a seed specification into an ordered seed sequence.
// Only the random mode consumes rng; passing nil seeds one from the
// clock.
func Resolve(spec SeedSpec, rng *rand.Rand) ([]int64, error) {
	switch s := spec.(type) {
	case SeedList:
		return parseSeedTokens(s.Tokens)
	case SeedPreset:
		return parseSeedTokens(strings.Split(s.Values, ","))
	case SeedRange:
		return resolveRange(s)
	case SeedRandom:
		if rng == nil {
			rng = rand.New(rand.NewSource(time.Now().UnixNano()))
		}
		return resolveRandom(s, rng)
	default:
		return nil, fmt.Errorf("%w: unknown seed mode %T", ErrInvalidSeedInput, spec)
	}
}

// parseSeedTokens parses trimmed base-10 tokens, skipping empty ones.
// Blank input yields an empty sequence, not an error.
func parseSeedTokens(tokens []string) ([]int64, error) {
	seeds := make([]int64, 0, len(tokens))
	for _, tok := range tokens {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		v, err := strconv.ParseInt(tok, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid seed value %q", ErrInvalidSeedInput, tok)
		}
		seeds = append(seeds, v)
	}
	return seeds, nil
}

func resolveRange(s SeedRange) ([]int64, error) {
	start, err := strconv.ParseInt(strings.TrimSpace(s.Start), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: start value must be a number", ErrInvalidSeedInput)
	}
	end, err := strconv.ParseInt(strings.TrimSpace(s.End), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: end value must be a number", ErrInvalidSeedInput)
	}

	// Only a step the user actually supplied gets validated. An absent
	// or unparseable step silently becomes 1.
	step := int64(1)
	if raw := strings.TrimSpace(s.Step); raw != "" {
		if v, err := strconv.ParseInt(raw, 10, 64); err == nil {
			if v <= 0 {
				return nil, fmt.Errorf("%w: Step value must be positive", ErrInvalidSeedInput)
			}
			step = v
		}
	}

	var seeds []int64
	if start <= end {
		for v := start; v <= end; v += step {
			seeds = append(seeds, v)
			// The runner rejects oversized sequences; one past the cap
			// is enough to trip that check.
			if len(seeds) > MaxSeeds {
				break
			}
		}
	} else {
		for v := start; v >= end; v -= step {
			seeds = append(seeds, v)
			if len(seeds) > MaxSeeds {
				break
			}
		}
	}
	return seeds, nil
}

func resolveRandom(s SeedRandom, rng *rand.Rand) ([]int64, error) {
	count := int64(defaultRandomCount)
	if v, err := strconv.ParseInt(strings.TrimSpace(s.Count), 10, 64); err == nil {
		count = v
	}
	if count < 1 || count > MaxSeeds {
		return nil, fmt.Errorf("%w: Count must be between 1 and 100", ErrInvalidSeedInput)
	}

	seen := make(map[int64]bool, count)
	seeds := make([]int64, 0, count)
	for int64(len(seeds)) < count {
		v := rng.Int63n(randomSeedMax) + 1
		if seen[v] {
			continue
		}
		seen[v] = true
		seeds = append(seeds, v)
	}
	sort.Slice(seeds, func(i, j int) bool { return seeds[i] < seeds[j] })
	return seeds, nil
}
