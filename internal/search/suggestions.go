package search

import (
	"sort"
	"strings"
)

// Suggest surfaces at most 10 ranked suggestions for partial, per §4.8:
// autocomplete (prefix match over entity names), did-you-mean (string
// similarity > 0.7 against current names), and related queries
// (similarity > 0.3 against recent query history).
func (e *Engine) Suggest(codebaseID, partial string) []Suggestion {
	idx := e.entitiesFor(codebaseID)
	var out []Suggestion

	lower := strings.ToLower(partial)
	if idx != nil {
		e.mu.RLock()
		seen := make(map[string]struct{})
		for _, entity := range idx.Entities {
			if entity.Name == "" {
				continue
			}
			if _, dup := seen[entity.Name]; dup {
				continue
			}
			if strings.HasPrefix(strings.ToLower(entity.Name), lower) && entity.Name != partial {
				seen[entity.Name] = struct{}{}
				out = append(out, Suggestion{
					Kind:       SuggestionAutocomplete,
					Text:       entity.Name,
					Confidence: prefixConfidence(lower, entity.Name),
				})
				continue
			}
			if sim := jaroWinkler(lower, strings.ToLower(entity.Name)); sim > 0.7 {
				seen[entity.Name] = struct{}{}
				out = append(out, Suggestion{Kind: SuggestionDidYouMean, Text: entity.Name, Confidence: sim})
			}
		}
		e.mu.RUnlock()
	}

	e.historyMu.Lock()
	history := append([]string(nil), e.history...)
	e.historyMu.Unlock()
	seenHist := make(map[string]struct{})
	for _, prior := range history {
		if prior == partial {
			continue
		}
		if _, dup := seenHist[prior]; dup {
			continue
		}
		if sim := jaroWinkler(lower, strings.ToLower(prior)); sim > 0.3 {
			seenHist[prior] = struct{}{}
			out = append(out, Suggestion{Kind: SuggestionRelated, Text: prior, Confidence: sim})
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Confidence > out[j].Confidence })
	if len(out) > 10 {
		out = out[:10]
	}
	return out
}

func prefixConfidence(prefix, full string) float64 {
	if len(full) == 0 {
		return 0
	}
	return float64(len(prefix)) / float64(len(full))
}

// jaroWinkler computes the Jaro-Winkler string similarity in [0,1],
// matching the discipline original_source uses for "did you mean"/
// "related" thresholds.
func jaroWinkler(a, b string) float64 {
	jaro := jaroSimilarity(a, b)
	if jaro == 0 {
		return 0
	}
	prefixLen := 0
	maxPrefix := 4
	for i := 0; i < len(a) && i < len(b) && i < maxPrefix; i++ {
		if a[i] != b[i] {
			break
		}
		prefixLen++
	}
	return jaro + float64(prefixLen)*0.1*(1-jaro)
}

func jaroSimilarity(a, b string) float64 {
	if a == b {
		return 1
	}
	la, lb := len(a), len(b)
	if la == 0 || lb == 0 {
		return 0
	}
	matchDist := la
	if lb > la {
		matchDist = lb
	}
	matchDist = matchDist/2 - 1
	if matchDist < 0 {
		matchDist = 0
	}

	aMatches := make([]bool, la)
	bMatches := make([]bool, lb)
	matches := 0
	for i := 0; i < la; i++ {
		start := max(i-matchDist, 0)
		end := min(i+matchDist+1, lb)
		for j := start; j < end; j++ {
			if bMatches[j] || a[i] != b[j] {
				continue
			}
			aMatches[i] = true
			bMatches[j] = true
			matches++
			break
		}
	}
	if matches == 0 {
		return 0
	}

	var transpositions int
	k := 0
	for i := 0; i < la; i++ {
		if !aMatches[i] {
			continue
		}
		for !bMatches[k] {
			k++
		}
		if a[i] != b[k] {
			transpositions++
		}
		k++
	}

	m := float64(matches)
	return (m/float64(la) + m/float64(lb) + (m-float64(transpositions)/2)/m) / 3
}
