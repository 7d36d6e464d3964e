package extractor

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/codeintel-dev/codeintel-engine/internal/models"
	"github.com/google/uuid"
	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/java"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// Tree-sitter node type strings. Defined by each language's grammar, not by
// this package; stable within a parser version but not Go constants in the
// usual sense — see the teacher's ast_chunker.go for the same caveat.
const (
	nodeJavaClass       = "class_declaration"
	nodeJavaInterface   = "interface_declaration"
	nodeJavaEnum        = "enum_declaration"
	nodeJavaMethod      = "method_declaration"
	nodeJavaConstructor = "constructor_declaration"

	nodeJSFunction      = "function_declaration"
	nodeJSClass         = "class_declaration"
	nodeJSMethod        = "method_definition"
	nodeJSArrowFunction = "arrow_function"
	nodeJSFunctionExpr  = "function_expression"

	nodeTSInterface = "interface_declaration"
	nodeTSTypeAlias = "type_alias_declaration"

	nodeIdentifier   = "identifier"
	nodeName         = "name"
	nodePropertyID   = "property_identifier"
	nodeTypeID       = "type_identifier"
	nodeVariableDecl = "variable_declarator"
	nodeCallExpr     = "call_expression"
	nodeMethodInvoke = "method_invocation"
)

var classKinds = map[string]models.EntityKind{
	nodeJavaClass:     models.EntityClass,
	nodeJavaInterface: models.EntityInterface,
	nodeJavaEnum:      models.EntityEnum,
	nodeTSInterface:   models.EntityInterface,
	nodeTSTypeAlias:   models.EntityType,
}

var functionKinds = map[string]models.EntityKind{
	nodeJSFunction:      models.EntityFunction,
	nodeJavaMethod:      models.EntityFunction,
	nodeJSMethod:        models.EntityFunction,
	nodeJavaConstructor: models.EntityFunction,
	nodeJSArrowFunction: models.EntityFunction,
	nodeJSFunctionExpr:  models.EntityFunction,
}

var visibilityPattern = regexp.MustCompile(`\b(public|private|protected)\b`)

// TreeSitterExtractor extracts entities/relationships/metrics via
// tree-sitter ASTs for the languages the pack ships a grammar binding for.
// Tree-sitter parsers are not safe for concurrent use, so access to the
// per-language *sitter.Parser is serialised.
//
// Grounded on the teacher's internal/indexer/ast_chunker.go traversal, with
// createChunkFromNode's function/class chunk split generalized into the
// full CodeEntity{Kind,QualifiedName,Signature,Visibility} shape and a
// companion relationship pass the teacher's chunker never needed.
type TreeSitterExtractor struct {
	mu      sync.Mutex
	parsers map[string]*sitter.Parser
}

// NewTreeSitterExtractor builds parsers for java, javascript, and
// typescript — the three languages the pack's go-tree-sitter grammar
// bindings cover.
func NewTreeSitterExtractor() (*TreeSitterExtractor, error) {
	x := &TreeSitterExtractor{parsers: make(map[string]*sitter.Parser)}

	javaParser := sitter.NewParser()
	javaParser.SetLanguage(java.GetLanguage())
	x.parsers["java"] = javaParser

	jsParser := sitter.NewParser()
	jsParser.SetLanguage(javascript.GetLanguage())
	x.parsers["javascript"] = jsParser

	tsParser := sitter.NewParser()
	tsParser.SetLanguage(typescript.GetLanguage())
	x.parsers["typescript"] = tsParser

	return x, nil
}

func (x *TreeSitterExtractor) Language() string { return "tree-sitter" }

type walkNode struct {
	node   *sitter.Node
	kind   models.EntityKind
	parent *walkNode
}

// Extract parses content with the language's tree-sitter grammar, then
// walks the tree collecting entities (with scope-chain qualified names),
// contains/calls relationships, and token-level metrics.
func (x *TreeSitterExtractor) Extract(codebaseID, path string, content []byte) (*Result, error) {
	lang := DetectLanguage(path, content)

	x.mu.Lock()
	parser, ok := x.parsers[lang]
	if !ok {
		x.mu.Unlock()
		return nil, fmt.Errorf("no tree-sitter parser for language %q", lang)
	}
	tree := parser.Parse(nil, content)
	x.mu.Unlock()

	if tree == nil || tree.RootNode() == nil {
		return nil, fmt.Errorf("failed to parse %s", path)
	}

	res := &Result{}
	names := make(map[string]*models.CodeEntity) // name -> entity, for call resolution

	var walk func(n *sitter.Node, scope []string, parent *models.CodeEntity)
	walk = func(n *sitter.Node, scope []string, parent *models.CodeEntity) {
		if n == nil {
			return
		}
		nodeType := n.Type()

		var kind models.EntityKind
		var recognised bool
		if k, ok := classKinds[nodeType]; ok {
			kind, recognised = k, true
		} else if k, ok := functionKinds[nodeType]; ok {
			kind, recognised = k, true
		}

		nextScope := scope
		nextParent := parent

		if recognised {
			name := extractNodeName(n, content)
			if name == "" {
				name = fmt.Sprintf("anonymous@%d", n.StartPoint().Row+1)
			}
			qualified := strings.Join(append(append([]string{}, scope...), name), ".")
			entity := &models.CodeEntity{
				ID:            uuid.New().String(),
				CodebaseID:    codebaseID,
				Kind:          kind,
				Name:          name,
				QualifiedName: qualified,
				FilePath:      path,
				StartLine:     int(n.StartPoint().Row) + 1,
				EndLine:       int(n.EndPoint().Row) + 1,
				StartColumn:   int(n.StartPoint().Column),
				EndColumn:     int(n.EndPoint().Column),
				Language:      lang,
				Signature:     signatureLine(n, content),
				Visibility:    visibilityOf(n, content),
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
					SourceLine:   entity.StartLine,
				})
			}
			res.Entities = append(res.Entities, entity)
			names[name] = entity
			nextScope = append(append([]string{}, scope...), name)
			nextParent = entity
		}

		childCount := int(n.ChildCount())
		for i := 0; i < childCount; i++ {
			walk(n.Child(i), nextScope, nextParent)
		}
	}
	walk(tree.RootNode(), nil, nil)

	res.Relationships = append(res.Relationships, resolveCallReferences(codebaseID, res.Entities, names, content)...)

	var issues []models.Issue
	res.Metrics = CalculateMetrics(content, issues)
	res.Issues = issues

	return res, nil
}

// resolveCallReferences scans each entity's own source range for
// identifier-call patterns and links callers to resolved entities with a
// "calls" edge (confidence 1.0) or, when the callee name is unresolved
// against the entity set, a reduced-confidence "references" edge instead
// (per §4.4's extract_relationships resolution policy).
func resolveCallReferences(codebaseID string, entities []*models.CodeEntity, names map[string]*models.CodeEntity, content []byte) []*models.CodeRelationship {
	var out []*models.CodeRelationship
	callPattern := regexp.MustCompile(`\b([A-Za-z_]\w*)\s*\(`)
	lines := strings.Split(string(content), "\n")

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
					ID:           uuid.New().String(),
					CodebaseID:   codebaseID,
					Kind:         models.RelCalls,
					FromEntityID: entity.ID,
					ToEntityID:   target.ID,
					Confidence:   1.0,
					SourceLine:   entity.StartLine,
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

func extractNodeName(n *sitter.Node, content []byte) string {
	if n == nil {
		return ""
	}
	childCount := int(n.ChildCount())
	for i := 0; i < childCount; i++ {
		child := n.Child(i)
		if child == nil {
			continue
		}
		switch child.Type() {
		case nodeIdentifier, nodeName, nodePropertyID, nodeTypeID:
			start, end := child.StartByte(), child.EndByte()
			if int(start) < int(end) && int(end) <= len(content) {
				return string(content[start:end])
			}
		case nodeVariableDecl:
			if name := extractNodeName(child, content); name != "" {
				return name
			}
		}
	}
	return ""
}

func signatureLine(n *sitter.Node, content []byte) string {
	start := n.StartByte()
	end := n.EndByte()
	if int(end) > len(content) {
		end = uint32(len(content))
	}
	if start >= end {
		return ""
	}
	full := string(content[start:end])
	if idx := strings.IndexAny(full, "{;"); idx >= 0 {
		full = full[:idx]
	}
	return strings.TrimSpace(strings.Join(strings.Fields(full), " "))
}

func visibilityOf(n *sitter.Node, content []byte) models.Visibility {
	sig := signatureLine(n, content)
	switch {
	case strings.Contains(sig, "private"):
		return models.VisibilityPrivate
	case strings.Contains(sig, "protected"):
		return models.VisibilityProtected
	case strings.Contains(sig, "public"), visibilityPattern.MatchString(sig):
		return models.VisibilityPublic
	default:
		return models.VisibilityUnknown
	}
}
