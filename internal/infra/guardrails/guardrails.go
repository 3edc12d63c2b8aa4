// Package guardrails implements the Seed Guardrails of spec §4.3: a
// persistent deny-list of seed combinations known to fail the Features
// recommendation endpoint, a permanent-failure classifier, a fallback
// strategy suggester, and an auto-balancing validator that repairs bad
// parameters in-line rather than failing the caller outward.
package guardrails

import (
	"context"
	"crypto/md5" //nolint:gosec // fingerprinting only, not a security boundary; spec §4.3 mandates MD5 explicitly.
	"encoding/hex"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/moodplay/internal/infra/cache"
)

// permanentErrorPatterns are substrings whose presence (case-insensitive)
// in an error message marks the failure as non-retriable.
var permanentErrorPatterns = []string{
	"invalid parameters",
	"validation error",
	"bad request",
	"too many negative seeds",
	"overlapping ids",
	"empty or whitespace",
}

// FallbackStrategy names the repair suggest_fallback_strategy applied.
type FallbackStrategy string

const (
	FallbackDropNegatives      FallbackStrategy = "drop_negative_seeds"
	FallbackReduceNegatives    FallbackStrategy = "reduce_negative_seeds"
	FallbackReduceSeeds        FallbackStrategy = "reduce_seeds"
	FallbackRemoveAllNegatives FallbackStrategy = "remove_all_negatives"
)

// Fallback is a suggested repair to a seed combination that previously
// failed.
type Fallback struct {
	Strategy      FallbackStrategy
	Seeds         []string
	NegativeSeeds []string
	Reason        string
}

// SuggestedParams is the repaired parameter set validate_and_auto_balance
// returns alongside a validation failure, so the caller can retry
// in-line.
type SuggestedParams struct {
	Seeds         []string
	NegativeSeeds []string
	Size          int
}

type denyEntry struct {
	Reason            string    `json:"reason"`
	Timestamp         time.Time `json:"timestamp"`
	SeedCount         int       `json:"seed_count"`
	NegativeSeedCount int       `json:"negative_seed_count"`
}

// Guardrails tracks seed combinations known to fail upstream and
// provides fallback/repair suggestions for the caller.
type Guardrails struct {
	cache *cache.Manager
}

// New wraps cache for use as Seed Guardrails.
func New(cm *cache.Manager) *Guardrails {
	return &Guardrails{cache: cm}
}

// Fingerprint hashes a seed combination deterministically: sorted
// seeds, sorted negatives, and sorted non-null feature params, so
// identical combinations in different orders hash the same (spec §4.3).
func Fingerprint(seeds, negativeSeeds []string, featureParams map[string]string) string {
	sortedSeeds := append([]string(nil), seeds...)
	sort.Strings(sortedSeeds)
	sortedNegatives := append([]string(nil), negativeSeeds...)
	sort.Strings(sortedNegatives)

	parts := []string{
		"seeds:" + strings.Join(sortedSeeds, ","),
		"negatives:" + strings.Join(sortedNegatives, ","),
	}

	if len(featureParams) > 0 {
		keys := make([]string, 0, len(featureParams))
		for k, v := range featureParams {
			if v != "" {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)
		if len(keys) > 0 {
			pairs := make([]string, 0, len(keys))
			for _, k := range keys {
				pairs = append(pairs, k+":"+featureParams[k])
			}
			parts = append(parts, "features:"+strings.Join(pairs, ","))
		}
	}

	sum := md5.Sum([]byte(strings.Join(parts, "|"))) //nolint:gosec
	return hex.EncodeToString(sum[:])
}

// IsCombinationDenied reports whether fingerprint(seeds, negativeSeeds)
// is on the deny list, and if so, why.
func (g *Guardrails) IsCombinationDenied(ctx context.Context, seeds, negativeSeeds []string, featureParams map[string]string) (bool, string) {
	fp := Fingerprint(seeds, negativeSeeds, featureParams)

	var entry denyEntry
	if !g.cache.DenyList(ctx, fp, &entry) {
		return false, ""
	}
	reason := entry.Reason
	if reason == "" {
		reason = "previously failed"
	}
	zlog.Info().Msgf("seed guardrails: combination denied fingerprint=%s reason=%s seeds=%d negatives=%d",
		fp, reason, len(seeds), len(negativeSeeds))
	return true, reason
}

// AddToDenyList records a failing combination for 24 hours.
func (g *Guardrails) AddToDenyList(ctx context.Context, seeds, negativeSeeds []string, featureParams map[string]string, reason string) {
	if reason == "" {
		reason = "API failure"
	}
	fp := Fingerprint(seeds, negativeSeeds, featureParams)
	g.cache.SetDenyList(ctx, fp, denyEntry{
		Reason:            reason,
		Timestamp:         time.Now().UTC(),
		SeedCount:         len(seeds),
		NegativeSeedCount: len(negativeSeeds),
	})
	zlog.Info().Msgf("seed guardrails: added to deny list fingerprint=%s reason=%s", fp, reason)
}

// ShouldSkipRetry reports whether errMsg matches a fixed set of
// permanent-failure substrings.
func ShouldSkipRetry(errMsg string) bool {
	lower := strings.ToLower(errMsg)
	for _, pattern := range permanentErrorPatterns {
		if strings.Contains(lower, pattern) {
			return true
		}
	}
	return false
}

// SuggestFallbackStrategy selects the first applicable repair for a
// failed combination: drop-negatives, reduce-negatives, reduce-seeds,
// or remove-all-negatives as a last resort. Returns nil if seeds is
// empty or no repair applies.
func SuggestFallbackStrategy(seeds, negativeSeeds []string, errorReason string) *Fallback {
	if len(seeds) == 0 {
		return nil
	}
	errLower := strings.ToLower(errorReason)

	if len(negativeSeeds) > 0 && (strings.Contains(errLower, "negative") || strings.Contains(errLower, "ratio")) {
		return &Fallback{
			Strategy: FallbackDropNegatives,
			Seeds:    append([]string(nil), seeds...),
			Reason:   "dropped negative seeds due to ratio or compatibility issues",
		}
	}

	if len(negativeSeeds) > 0 && float64(len(negativeSeeds)) >= 0.5*float64(len(seeds)) {
		maxNegative := len(seeds)/2 - 1
		if maxNegative < 1 {
			maxNegative = 1
		}
		if maxNegative > len(negativeSeeds) {
			maxNegative = len(negativeSeeds)
		}
		return &Fallback{
			Strategy:      FallbackReduceNegatives,
			Seeds:         append([]string(nil), seeds...),
			NegativeSeeds: append([]string(nil), negativeSeeds[:maxNegative]...),
			Reason:        "reduced negative seeds from " + strconv.Itoa(len(negativeSeeds)) + " to " + strconv.Itoa(maxNegative),
		}
	}

	if len(seeds) > 3 {
		return &Fallback{
			Strategy: FallbackReduceSeeds,
			Seeds:    append([]string(nil), seeds[:3]...),
			Reason:   "reduced seeds from " + strconv.Itoa(len(seeds)) + " to 3",
		}
	}

	if len(negativeSeeds) > 0 {
		return &Fallback{
			Strategy: FallbackRemoveAllNegatives,
			Seeds:    append([]string(nil), seeds...),
			Reason:   "removed all negative seeds as fallback",
		}
	}

	return nil
}

// ValidateAndAutoBalance applies the auto-balance rules of spec §4.3 in
// order: empty/whitespace IDs and out-of-range size hard-fail with no
// suggestion; a denied combination fails with a suggested fallback;
// negative-seed overflow or overlap with positive seeds fails with a
// repaired SuggestedParams the caller can retry with in-line.
func (g *Guardrails) ValidateAndAutoBalance(ctx context.Context, seeds, negativeSeeds []string, size int) (bool, error, *SuggestedParams) {
	if len(seeds) == 0 || containsBlank(seeds) {
		return false, errors.New("seeds contain empty or whitespace-only IDs"), nil
	}
	if size < 1 || size > 100 {
		return false, errors.Newf("invalid recommendation size: %d (must be 1-100)", size), nil
	}

	denied, denyReason := g.IsCombinationDenied(ctx, seeds, negativeSeeds, nil)
	if denied {
		fallback := SuggestFallbackStrategy(seeds, negativeSeeds, denyReason)
		var suggested *SuggestedParams
		if fallback != nil {
			suggested = &SuggestedParams{Seeds: fallback.Seeds, NegativeSeeds: fallback.NegativeSeeds, Size: size}
		}
		return false, errors.Newf("combination previously failed: %s", denyReason), suggested
	}

	if len(negativeSeeds) > 0 {
		if containsBlank(negativeSeeds) {
			return false, errors.New("negative seeds contain empty or whitespace-only IDs"), nil
		}

		// Overlap is resolved before the ratio check: removing an
		// overlapping ID can itself bring the ratio back into range,
		// so repairing overlap first avoids a second round-trip.
		overlap := intersect(seeds, negativeSeeds)
		if len(overlap) > 0 {
			fixed := without(negativeSeeds, overlap)
			if len(fixed) == 0 {
				return false, errors.New("auto-balanced: removed overlapping negative seeds"),
					&SuggestedParams{Seeds: seeds, NegativeSeeds: nil, Size: size}
			}
			return false, errors.Newf("auto-balanced: removed %d overlapping IDs", len(overlap)),
				&SuggestedParams{Seeds: seeds, NegativeSeeds: fixed, Size: size}
		}

		if len(negativeSeeds) >= len(seeds) {
			maxNegative := len(seeds) / 2
			if maxNegative < 1 {
				maxNegative = 1
			}
			if maxNegative > len(negativeSeeds) {
				maxNegative = len(negativeSeeds)
			}
			return false, errors.Newf("auto-balanced: too many negative seeds (%d >= %d)", len(negativeSeeds), len(seeds)),
				&SuggestedParams{Seeds: seeds, NegativeSeeds: negativeSeeds[:maxNegative], Size: size}
		}
	}

	return true, nil, nil
}

func containsBlank(ids []string) bool {
	for _, id := range ids {
		if strings.TrimSpace(id) == "" {
			return true
		}
	}
	return false
}

func intersect(a, b []string) []string {
	set := make(map[string]struct{}, len(a))
	for _, v := range a {
		set[v] = struct{}{}
	}
	var out []string
	for _, v := range b {
		if _, ok := set[v]; ok {
			out = append(out, v)
		}
	}
	return out
}

func without(values, exclude []string) []string {
	set := make(map[string]struct{}, len(exclude))
	for _, v := range exclude {
		set[v] = struct{}{}
	}
	var out []string
	for _, v := range values {
		if _, ok := set[v]; !ok {
			out = append(out, v)
		}
	}
	return out
}
