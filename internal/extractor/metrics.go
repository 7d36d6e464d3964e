package extractor

import (
	"math"
	"regexp"
	"strings"

	"github.com/codeintel-dev/codeintel-engine/internal/models"
)

// decisionTokens are the token-level decision constructs §4.4.1 counts
// toward cyclomatic complexity, kept language-agnostic by matching on
// keyword/operator text rather than an AST node type.
var decisionTokens = regexp.MustCompile(
	`\b(if|else|for|while|do|switch|case|catch|elif|except|when)\b|&&|\|\|`,
)

// nestingOpen approximates cognitive complexity by weighting
// decision constructs by their nesting depth (brace/indent depth as a
// language-agnostic proxy).
var nestingOpen = regexp.MustCompile(`\{|:\s*$`)

// lineCommentPrefixes cover the line-comment syntaxes of every language in
// the extractor's dispatch table; block comments are tracked inside
// CalculateMetrics.
var lineCommentPrefixes = []string{"//", "#"}

// CalculateMetrics implements §4.4.1's derived metrics over raw file text,
// counted at token level so it applies uniformly across languages.
func CalculateMetrics(content []byte, issues []models.Issue) models.FileMetrics {
	text := string(content)
	lines := strings.Split(text, "\n")

	m := models.FileMetrics{}
	inBlockComment := false

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		switch {
		case trimmed == "":
			m.BlankLOC++
		case inBlockComment:
			m.CommentLOC++
			if strings.Contains(trimmed, "*/") {
				inBlockComment = false
			}
		case strings.HasPrefix(trimmed, "/*"):
			m.CommentLOC++
			if !strings.Contains(trimmed, "*/") {
				inBlockComment = true
			}
		case hasAnyPrefix(trimmed, lineCommentPrefixes):
			m.CommentLOC++
		default:
			m.LOC++
		}
	}

	cc := 1
	depth := 0
	cognitive := 0
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		matches := decisionTokens.FindAllString(trimmed, -1)
		cc += len(matches)
		if len(matches) > 0 {
			cognitive += len(matches) * (1 + depth)
		}
		if nestingOpen.MatchString(trimmed) {
			depth++
		}
		depth -= strings.Count(trimmed, "}")
		if depth < 0 {
			depth = 0
		}
	}
	m.CyclomaticComplexity = cc
	m.CognitiveComplexity = cognitive

	loc := m.LOC
	if loc < 1 {
		loc = 1
	}
	v := float64(loc) * math.Log2(float64(loc)+1)
	commentRatio := float64(m.CommentLOC) / float64(loc)
	mi := 171 - 5.2*math.Log(v+1) - 0.23*float64(cc) - 16.2*math.Log(v+1) + 50*math.Sqrt(commentRatio)
	m.MaintainabilityIndex = clamp(mi, 0, 100)

	m.TechDebtHours = 0.5*float64(cc) + 0.01*float64(loc) + 2*float64(len(issues))

	return m
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
