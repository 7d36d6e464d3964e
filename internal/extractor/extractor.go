package extractor

import (
	"github.com/codeintel-dev/codeintel-engine/internal/apperrors"
	"github.com/codeintel-dev/codeintel-engine/internal/models"
)

// Result is the full output of extracting one file: entities, the
// relationship edges between them, derived metrics, and any rule-triggered
// diagnostics. It mirrors §3's CodeEntity/CodeRelationship/FileMetrics
// triple plus §4.4's issues list.
type Result struct {
	Entities      []*models.CodeEntity
	Relationships []*models.CodeRelationship
	Metrics       models.FileMetrics
	Issues        []models.Issue
}

// LanguageExtractor is the four-operation contract of §4.4: parse,
// extract_entities, extract_relationships, calculate_metrics, collapsed
// into a single Extract call since Go callers never need the intermediate
// tree across process boundaries.
type LanguageExtractor interface {
	Language() string
	Extract(codebaseID, path string, content []byte) (*Result, error)
}

// Engine dispatches files to the LanguageExtractor registered for their
// detected language. An unrecognised language yields an empty Result and a
// LanguageUnsupported soft error — per §4.4 the caller skips the file, it
// does not fail the job.
type Engine struct {
	byLanguage map[string]LanguageExtractor
}

// NewEngine builds the engine's default extractor set: a tree-sitter
// extractor for java/javascript/typescript, a regex-token extractor for
// everything else the pack's language list (§4.4.1) names.
func NewEngine() (*Engine, error) {
	ts, err := NewTreeSitterExtractor()
	if err != nil {
		return nil, err
	}
	e := &Engine{byLanguage: make(map[string]LanguageExtractor)}
	for _, lang := range []string{"java", "javascript", "typescript"} {
		e.byLanguage[lang] = ts
	}
	for _, lang := range []string{"go", "python", "rust", "c", "cpp"} {
		e.byLanguage[lang] = NewTokenExtractor(lang)
	}
	return e, nil
}

// LanguageUnsupported is returned (wrapped in apperrors) when no extractor
// is registered for a file's detected language. It is a kind of its own
// rather than ParseError — the engine has no tree to fail building.
const LanguageUnsupported apperrors.Kind = "language_unsupported"

// Extract detects path's language and dispatches to its LanguageExtractor.
// An undetected or unregistered language returns an empty Result and a
// LanguageUnsupported error (the caller is expected to record it as a soft
// per-file error and continue, per §4.4).
func (e *Engine) Extract(codebaseID, path string, content []byte) (*Result, error) {
	lang := DetectLanguage(path, content)
	if lang == "" {
		return &Result{}, apperrors.New(LanguageUnsupported, "ERR_LANG_UNSUPPORTED",
			"could not detect a language for "+path, nil).WithDetail("path", path)
	}
	x, ok := e.byLanguage[lang]
	if !ok {
		return &Result{}, apperrors.New(LanguageUnsupported, "ERR_LANG_UNSUPPORTED",
			"no extractor registered for language "+lang, nil).WithDetail("language", lang)
	}
	res, err := x.Extract(codebaseID, path, content)
	if err != nil {
		return &Result{}, apperrors.Wrap(apperrors.ParseError, "ERR_PARSE", err)
	}
	return res, nil
}
