package search

import (
	"strings"
	"unicode"

	"github.com/codeintel-dev/codeintel-engine/internal/models"
)

// Tokenize lowercases and splits on non-alphanumeric runs, then further
// splits camelCase/snake_case identifiers so "parseJSON" and "parse_json"
// both yield "parse"+"json". Grounded on the teacher's searcher.go's
// strings.Fields tokenizing, generalized for identifier-aware splitting.
func Tokenize(text string) []string {
	var tokens []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			tokens = append(tokens, strings.ToLower(cur.String()))
			cur.Reset()
		}
	}

	runes := []rune(text)
	for i, r := range runes {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if i > 0 && unicode.IsUpper(r) && unicode.IsLower(runes[i-1]) {
				flush()
			}
			cur.WriteRune(r)
		default:
			flush()
		}
	}
	flush()
	return tokens
}

// Trigrams returns all overlapping 3-grams of s; shorter strings yield s
// itself as a single pseudo-gram so short tokens remain matchable.
func Trigrams(s string) []string {
	s = strings.ToLower(s)
	if len(s) < 3 {
		return []string{s}
	}
	grams := make([]string, 0, len(s)-2)
	for i := 0; i+3 <= len(s); i++ {
		grams = append(grams, s[i:i+3])
	}
	return grams
}

func searchableText(e *models.CodeEntity) string {
	return e.Name + " " + e.QualifiedName + " " + e.Signature
}

// IndexEntity adds (or re-adds) one entity's tokens/trigrams to idx. Call
// RemoveEntity first when refreshing an already-indexed entity.
func IndexEntity(idx *models.SearchIndex, e *models.CodeEntity) {
	idx.Entities[e.ID] = e
	for _, tok := range Tokenize(searchableText(e)) {
		addToSet(idx.Keyword, tok, e.ID)
		for _, gram := range Trigrams(tok) {
			addToSet(idx.Trigram, gram, e.ID)
		}
	}
}

// RemoveEntity drops an entity and its postings from idx.
func RemoveEntity(idx *models.SearchIndex, entityID string) {
	e, ok := idx.Entities[entityID]
	if !ok {
		return
	}
	for _, tok := range Tokenize(searchableText(e)) {
		removeFromSet(idx.Keyword, tok, entityID)
		for _, gram := range Trigrams(tok) {
			removeFromSet(idx.Trigram, gram, entityID)
		}
	}
	delete(idx.Entities, entityID)
}

func addToSet(m map[string]map[string]struct{}, key, id string) {
	set, ok := m[key]
	if !ok {
		set = make(map[string]struct{})
		m[key] = set
	}
	set[id] = struct{}{}
}

func removeFromSet(m map[string]map[string]struct{}, key, id string) {
	set, ok := m[key]
	if !ok {
		return
	}
	delete(set, id)
	if len(set) == 0 {
		delete(m, key)
	}
}
