package extractor

import (
	"regexp"
	"strings"
	"time"

	"github.com/codeintel-dev/codeintel-engine/internal/models"
	"github.com/google/uuid"
)

// boundaryRule pairs a regex with the entity kind and name-capture group it
// signals. Patterns are grounded on the teacher's token_chunker.go
// GetLanguagePatterns table (its fallback boundary detector for languages
// with no tree-sitter grammar in the pack), generalized from "this line
// starts a chunk" to "this line declares an entity of kind K named
// group(1)".
type boundaryRule struct {
	pattern *regexp.Regexp
	kind    models.EntityKind
}

var languageRules = map[string][]boundaryRule{
	"go": {
		{regexp.MustCompile(`^\s*func\s+\(\s*\w+\s+\*?(\w+)\s*\)\s+(\w+)\s*\(`), models.EntityFunction},
		{regexp.MustCompile(`^\s*func\s+(\w+)\s*\(`), models.EntityFunction},
		{regexp.MustCompile(`^\s*type\s+(\w+)\s+struct\b`), models.EntityStruct},
		{regexp.MustCompile(`^\s*type\s+(\w+)\s+interface\b`), models.EntityInterface},
		{regexp.MustCompile(`^\s*const\s+(\w+)\b`), models.EntityConstant},
		{regexp.MustCompile(`^\s*var\s+(\w+)\b`), models.EntityVariable},
	},
	"python": {
		{regexp.MustCompile(`^\s*(?:async\s+)?def\s+(\w+)\s*\(`), models.EntityFunction},
		{regexp.MustCompile(`^\s*class\s+(\w+)\b`), models.EntityClass},
	},
	"rust": {
		{regexp.MustCompile(`^\s*(?:pub\s+)?(?:async\s+)?fn\s+(\w+)\s*\(`), models.EntityFunction},
		{regexp.MustCompile(`^\s*(?:pub\s+)?struct\s+(\w+)\b`), models.EntityStruct},
		{regexp.MustCompile(`^\s*(?:pub\s+)?enum\s+(\w+)\b`), models.EntityEnum},
		{regexp.MustCompile(`^\s*(?:pub\s+)?trait\s+(\w+)\b`), models.EntityTrait},
	},
	"c": {
		{regexp.MustCompile(`^\s*struct\s+(\w+)\s*\{`), models.EntityStruct},
		{regexp.MustCompile(`^\s*[\w\*]+\s+(\w+)\s*\([^;]*\)\s*\{`), models.EntityFunction},
	},
	"cpp": {
		{regexp.MustCompile(`^\s*namespace\s+(\w+)\b`), models.EntityModule},
		{regexp.MustCompile(`^\s*class\s+(\w+)\b`), models.EntityClass},
		{regexp.MustCompile(`^\s*struct\s+(\w+)\s*\{`), models.EntityStruct},
		{regexp.MustCompile(`^\s*[\w:<>\*&]+\s+(\w+)::\w+\s*\([^;]*\)\s*\{`), models.EntityFunction},
	},
}

// TokenExtractor is the regex-boundary fallback extractor used for
// languages the pack carries no tree-sitter grammar binding for (go,
// python, rust, c, cpp). It is a stdlib-adjacent (regexp) path, used
// because the pack's go-tree-sitter import only wires java/javascript/
// typescript grammars; see DESIGN.md.
type TokenExtractor struct {
	language string
	rules    []boundaryRule
}

// NewTokenExtractor builds the fallback extractor for one language.
func NewTokenExtractor(language string) *TokenExtractor {
	return &TokenExtractor{language: language, rules: languageRules[language]}
}

func (t *TokenExtractor) Language() string { return t.language }

// Extract scans content line by line, opening an entity whenever a
// boundary rule matches and closing it at the matching brace (C-family
// languages) or the first subsequent line at or below the opening
// indentation (python). Qualified names are built from a scope stack of
// currently-open entities.
func (t *TokenExtractor) Extract(codebaseID, path string, content []byte) (*Result, error) {
	lines := strings.Split(string(content), "\n")
	res := &Result{}
	names := make(map[string]*models.CodeEntity)

	type openEntity struct {
		entity *models.CodeEntity
		indent int
		braces int // brace depth before the opening line, used to find the matching close
	}
	var stack []openEntity
	braceDepth := 0

	for i, line := range lines {
		lineNo := i + 1
		indent := leadingWhitespace(line)

		if t.language == "python" {
			for len(stack) > 0 && indent <= stack[len(stack)-1].indent && strings.TrimSpace(line) != "" {
				t.closeEntity(&stack[len(stack)-1].entity, lineNo-1)
				stack = stack[:len(stack)-1]
			}
		}

		depthBefore := braceDepth
		braceDepth += strings.Count(line, "{") - strings.Count(line, "}")
		if t.language != "python" {
			for len(stack) > 0 && braceDepth <= stack[len(stack)-1].braces && strings.Contains(line, "}") {
				stack[len(stack)-1].entity.EndLine = lineNo
				stack = stack[:len(stack)-1]
			}
		}

		for _, rule := range t.rules {
			m := rule.pattern.FindStringSubmatch(line)
			if m == nil {
				continue
			}
			name := m[len(m)-1]
			var parent *models.CodeEntity
			var scope []string
			for _, o := range stack {
				scope = append(scope, o.entity.Name)
			}
			if len(stack) > 0 {
				parent = stack[len(stack)-1].entity
			}
			qualified := strings.Join(append(append([]string{}, scope...), name), ".")

			entity := &models.CodeEntity{
				ID:            uuid.New().String(),
				CodebaseID:    codebaseID,
				Kind:          rule.kind,
				Name:          name,
				QualifiedName: qualified,
				FilePath:      path,
				StartLine:     lineNo,
				EndLine:       lineNo,
				Language:      t.language,
				Signature:     strings.TrimSpace(line),
				Visibility:    tokenVisibility(line),
				IndexedAt:     time.Now(),
			}
			if parent != nil {
				entity.ParentID = parent.ID
				parent.ChildIDs = append(parent.ChildIDs, entity.ID)
				res.Relationships = append(res.Relationships, &models.CodeRelationship{
					ID:           uuid.New().String(),
					CodebaseID:   codebaseID,
					Kind:         models.RelContains,
					FromEntityID: parent.ID,
					ToEntityID:   entity.ID,
					Confidence:   1.0,
					SourceLine:   lineNo,
				})
			}
			res.Entities = append(res.Entities, entity)
			names[name] = entity
			stack = append(stack, openEntity{entity: entity, indent: indent, braces: depthBefore})
			if t.language != "python" && braceDepth <= depthBefore {
				// Body opened and closed on this line, or no body at all.
				stack = stack[:len(stack)-1]
			}
			break
		}
	}
	for _, o := range stack {
		o.entity.EndLine = len(lines)
	}

	res.Relationships = append(res.Relationships, resolveTokenCalls(codebaseID, res.Entities, names, lines)...)
	res.Metrics = CalculateMetrics(content, nil)
	return res, nil
}

func (t *TokenExtractor) closeEntity(e **models.CodeEntity, lineNo int) {
	(*e).EndLine = lineNo
}

// unresolvedReferenceConfidence is the confidence assigned to a "references"
// edge standing in for a call whose callee name didn't resolve against the
// entity set (§4.4): likely an external/stdlib call or a name this pass
// just hasn't seen yet, so it's recorded at reduced confidence rather than
// dropped.
const unresolvedReferenceConfidence = 0.3

// resolveTokenCalls mirrors the tree-sitter extractor's call resolution but
// works off raw line ranges since there is no AST to walk.
func resolveTokenCalls(codebaseID string, entities []*models.CodeEntity, names map[string]*models.CodeEntity, lines []string) []*models.CodeRelationship {
	var out []*models.CodeRelationship
	callPattern := regexp.MustCompile(`\b([A-Za-z_]\w*)\s*\(`)

	for _, entity := range entities {
		if entity.Kind != models.EntityFunction {
			continue
		}
		start, end := entity.StartLine-1, entity.EndLine
		if start < 0 {
			start = 0
		}
		if end > len(lines) {
			end = len(lines)
		}
		if start >= end {
			continue
		}
		body := strings.Join(lines[start:end], "\n")

		seen := make(map[string]bool)
		for _, m := range callPattern.FindAllStringSubmatch(body, -1) {
			callee := m[1]
			if callee == entity.Name || seen[callee] {
				continue
			}
			seen[callee] = true
			if target, ok := names[callee]; ok && target.ID != entity.ID {
				out = append(out, &models.CodeRelationship{
					ID:            uuid.New().String(),
					CodebaseID:    codebaseID,
					Kind:          models.RelCalls,
					FromEntityID:  entity.ID,
					ToEntityID:    target.ID,
					Confidence:    1.0,
					SourceLine:    entity.StartLine,
					SourceContext: callee,
				})
			} else if !ok {
				out = append(out, &models.CodeRelationship{
					ID:            uuid.New().String(),
					CodebaseID:    codebaseID,
					Kind:          models.RelReferences,
					FromEntityID:  entity.ID,
					ToEntityID:    "",
					Confidence:    unresolvedReferenceConfidence,
					SourceLine:    entity.StartLine,
					SourceContext: callee,
				})
			}
		}
	}
	return out
}

func leadingWhitespace(line string) int {
	n := 0
	for _, r := range line {
		if r == ' ' {
			n++
		} else if r == '\t' {
			n += 4
		} else {
			break
		}
	}
	return n
}

func tokenVisibility(line string) models.Visibility {
	trimmed := strings.TrimSpace(line)
	switch {
	case strings.HasPrefix(trimmed, "pub "):
		return models.VisibilityPublic
	case strings.HasPrefix(trimmed, "_") || strings.Contains(trimmed, " _"):
		return models.VisibilityPrivate
	default:
		return models.VisibilityUnknown
	}
}
