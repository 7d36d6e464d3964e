package models

import "time"

// EntityKind enumerates the structural constructs the extractor recognises.
type EntityKind string

const (
	EntityFunction  EntityKind = "function"
	EntityClass     EntityKind = "class"
	EntityInterface EntityKind = "interface"
	EntityEnum      EntityKind = "enum"
	EntityStruct    EntityKind = "struct"
	EntityModule    EntityKind = "module"
	EntityVariable  EntityKind = "variable"
	EntityConstant  EntityKind = "constant"
	EntityTrait     EntityKind = "trait"
	EntityType      EntityKind = "type"
)

// Visibility mirrors the coarse visibility levels most languages in the pack
// expose (public/private/protected/package-private).
type Visibility string

const (
	VisibilityPublic    Visibility = "public"
	VisibilityPrivate   Visibility = "private"
	VisibilityProtected Visibility = "protected"
	VisibilityPackage   Visibility = "package"
	VisibilityUnknown   Visibility = ""
)

// CodeEntity is a recognised structural unit within one file of one
// codebase. QualifiedName must be unique within the owning codebase;
// StartLine <= EndLine; FilePath is relative to the codebase root.
type CodeEntity struct {
	ID             string     `json:"id"`
	CodebaseID     string     `json:"codebase_id"`
	Kind           EntityKind `json:"kind"`
	Name           string     `json:"name"`
	QualifiedName  string     `json:"qualified_name"`
	FilePath       string     `json:"file_path"`
	StartLine      int        `json:"start_line"`
	EndLine        int        `json:"end_line"`
	StartColumn    int        `json:"start_column"`
	EndColumn      int        `json:"end_column"`
	Language       string     `json:"language"`
	Signature      string     `json:"signature,omitempty"`
	Visibility     Visibility `json:"visibility,omitempty"`
	Documentation  string     `json:"documentation,omitempty"`
	ContentHash    string     `json:"content_hash,omitempty"`
	ParentID       string     `json:"parent_id,omitempty"`
	ChildIDs       []string   `json:"child_ids,omitempty"`
	IndexedAt      time.Time  `json:"indexed_at"`
}

// RelationshipKind is the directed-edge type between two entities.
type RelationshipKind string

const (
	RelCalls      RelationshipKind = "calls"
	RelInherits   RelationshipKind = "inherits"
	RelImplements RelationshipKind = "implements"
	RelUses       RelationshipKind = "uses"
	RelDeclares   RelationshipKind = "declares"
	RelImports    RelationshipKind = "imports"
	RelOverrides  RelationshipKind = "overrides"
	RelContains   RelationshipKind = "contains"
	RelReferences RelationshipKind = "references"
	RelExtends    RelationshipKind = "extends"
	RelDependsOn  RelationshipKind = "depends-on"
	RelTypeOf     RelationshipKind = "type-of"
	RelInstanceOf RelationshipKind = "instance-of"
	RelMemberOf   RelationshipKind = "member-of"
)

// CodeRelationship is a directed edge between two entities in the same
// codebase. Self-loops are only valid for RelContains.
type CodeRelationship struct {
	ID            string           `json:"id"`
	CodebaseID    string           `json:"codebase_id"`
	Kind          RelationshipKind `json:"kind"`
	FromEntityID  string           `json:"from_entity_id"`
	ToEntityID    string           `json:"to_entity_id"`
	Confidence    float64          `json:"confidence,omitempty"`
	SourceLine    int              `json:"source_line"`
	SourceContext string           `json:"source_context,omitempty"`
}

// FileMetrics is the per-file output of calculate_metrics (§4.4.1).
type FileMetrics struct {
	LOC                  int     `json:"loc"`
	CommentLOC           int     `json:"comment_loc"`
	BlankLOC             int     `json:"blank_loc"`
	FunctionCount        int     `json:"fn_count"`
	ClassCount           int     `json:"class_count"`
	InterfaceCount       int     `json:"iface_count"`
	CyclomaticComplexity int     `json:"cyclomatic"`
	CognitiveComplexity  int     `json:"cognitive"`
	MaintainabilityIndex float64 `json:"maintainability_index"`
	TechDebtHours        float64 `json:"tech_debt_hours"`
}

// Issue is a rule-triggered diagnostic emitted alongside extraction.
type Issue struct {
	Rule     string `json:"rule"`
	Message  string `json:"message"`
	Line     int    `json:"line"`
	Severity string `json:"severity"`
}
