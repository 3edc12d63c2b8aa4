package anchor

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	domainmood "github.com/osa030/moodplay/internal/domain/mood"
	"github.com/osa030/moodplay/internal/domain/track"
	"github.com/osa030/moodplay/internal/infra/catalog"
	"github.com/osa030/moodplay/internal/infra/llm"
)

const maxUserMentionedTracks = 5

// collectUserAnchors implements tier 1 of spec §4.7: tracks the user
// explicitly mentioned are guaranteed inclusion, protected, and exempt
// from every downstream filter. Extraction prefers a second LLM call;
// without one (or on LLM failure) it falls back to pattern matching
// phrases like "especially X" and "like X by Y".
func (s *Selector) collectUserAnchors(ctx context.Context, prompt string, analysis *domainmood.Analysis) []track.AnchorCandidate {
	if s.catalog == nil {
		return nil
	}

	pairs := s.extractMentionedTracks(ctx, prompt, analysis)
	if len(pairs) > maxUserMentionedTracks {
		pairs = pairs[:maxUserMentionedTracks]
	}

	var out []track.AnchorCandidate
	for _, p := range pairs {
		query := p.track
		if p.artist != "" {
			query = p.track + " " + p.artist
		}
		results, _, err := s.catalog.Search(ctx, query, catalog.SearchTypeTrack, 3)
		if err != nil || len(results) == 0 {
			continue
		}
		out = append(out, track.AnchorCandidate{
			Track:      results[0],
			Score:      1.0,
			Confidence: 1.0,
			Source:     track.SourceUserMentioned,
			AnchorType: track.AnchorUser,
			Protected:  true,
		})
	}
	return out
}

type trackArtistPair struct {
	track  string
	artist string
}

func (s *Selector) extractMentionedTracks(ctx context.Context, prompt string, analysis *domainmood.Analysis) []trackArtistPair {
	if s.llm != nil {
		if pairs, ok := s.llmExtractMentionedTracks(ctx, prompt); ok {
			return pairs
		}
	}

	var artists []string
	if analysis != nil {
		artists = analysis.ArtistRecommendations
	}
	return simpleExtractMentionedTracks(prompt, artists)
}

// llmExtractMentionedTracks asks the LLM for a JSON array of
// {"track":"...","artist":"..."} objects named in prompt.
func (s *Selector) llmExtractMentionedTracks(ctx context.Context, prompt string) ([]trackArtistPair, bool) {
	reply, err := s.llm.Complete(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: `Extract specific song titles the user explicitly names. Respond with a JSON array of {"track": "...", "artist": "..."} objects (artist may be ""), or [] if none.`},
		{Role: llm.RoleUser, Content: prompt},
	})
	if err != nil {
		return nil, false
	}
	return parseTrackArtistJSON(reply)
}

// simpleExtractMentionedTracks is the no-LLM fallback: it looks for
// "especially X[, Y and Z]" and "like X by Y" patterns, matching the
// reference's own degraded-path heuristics.
func simpleExtractMentionedTracks(prompt string, artistRecommendations []string) []trackArtistPair {
	lower := strings.ToLower(prompt)
	primaryArtist := ""
	if len(artistRecommendations) > 0 {
		primaryArtist = artistRecommendations[0]
	}

	var pairs []trackArtistPair

	if idx := strings.Index(lower, "especially"); idx >= 0 {
		after := strings.TrimSpace(prompt[idx+len("especially"):])
		var names []string
		switch {
		case strings.Contains(after, ","):
			names = strings.Split(after, ",")
		case strings.Contains(strings.ToLower(after), " and "):
			names = splitCaseInsensitive(after, " and ")
		default:
			names = []string{after}
		}
		for _, n := range names {
			n = cleanTrackName(n)
			if n != "" {
				pairs = append(pairs, trackArtistPair{track: n, artist: primaryArtist})
			}
		}
	}

	if idx := strings.Index(lower, "like "); idx >= 0 {
		after := strings.TrimSpace(prompt[idx+len("like "):])
		if byIdx := strings.Index(strings.ToLower(after), " by "); byIdx >= 0 {
			name := cleanTrackName(after[:byIdx])
			artist := cleanTrackName(after[byIdx+len(" by "):])
			if name != "" {
				pairs = append(pairs, trackArtistPair{track: name, artist: artist})
			}
		}
	}

	return pairs
}

func splitCaseInsensitive(s, sep string) []string {
	lowerSep := strings.ToLower(sep)
	lowerS := strings.ToLower(s)
	var out []string
	for {
		idx := strings.Index(lowerS, lowerSep)
		if idx < 0 {
			out = append(out, s)
			break
		}
		out = append(out, s[:idx])
		s = s[idx+len(sep):]
		lowerS = lowerS[idx+len(lowerSep):]
	}
	return out
}

// cleanTrackName trims whitespace, surrounding quotes, and trailing
// punctuation/conjunctions from an extracted track/artist fragment.
func cleanTrackName(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, `"'.!?`)
	s = strings.TrimSpace(s)
	for _, stop := range []string{" and", " or"} {
		if strings.HasSuffix(strings.ToLower(s), stop) {
			s = strings.TrimSpace(s[:len(s)-len(stop)])
		}
	}
	return s
}

// parseTrackArtistJSON decodes a minimal JSON array of track/artist
// objects without requiring a strict schema match from the LLM.
func parseTrackArtistJSON(s string) ([]trackArtistPair, bool) {
	body, ok := extractBalancedArray(s)
	if !ok {
		return nil, false
	}

	type wireEntry struct {
		Track  string `json:"track"`
		Artist string `json:"artist"`
	}
	var entries []wireEntry
	if err := json.Unmarshal([]byte(body), &entries); err != nil {
		return nil, false
	}

	pairs := make([]trackArtistPair, 0, len(entries))
	for _, e := range entries {
		if e.Track == "" {
			continue
		}
		pairs = append(pairs, trackArtistPair{track: e.Track, artist: e.Artist})
	}
	return pairs, true
}

// extractBalancedArray returns the first top-level balanced [...]
// substring of s.
func extractBalancedArray(s string) (string, bool) {
	start := strings.IndexByte(s, '[')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '[':
			depth++
		case ']':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

func itoa(n int) string { return strconv.Itoa(n) }

func parseIntInRange(s string, min, max int) (int, bool) {
	fields := strings.Fields(s)
	for _, f := range fields {
		f = strings.Trim(f, ".,!?")
		n, err := strconv.Atoi(f)
		if err != nil {
			continue
		}
		if n < min {
			n = min
		}
		if n > max {
			n = max
		}
		return n, true
	}
	return 0, false
}
