// Package extractor implements the language-agnostic extraction stage of
// §4.4: parse, extract_entities, extract_relationships, and
// calculate_metrics, dispatched per file by extension (with a
// content-based fallback) to one LanguageExtractor per language.
//
// Grounded on the teacher's internal/indexer/{ast_chunker.go,token_chunker.go,
// languages.go}, generalized from chunk-for-embedding output to the full
// CodeEntity/CodeRelationship/FileMetrics/Issue model §3 and §4.4 require.
package extractor

import (
	"path/filepath"
	"strings"
)

// treeSitterLanguages are the languages the pack carries a tree-sitter
// grammar binding for. Every other detected language falls back to the
// regex-token extractor.
var treeSitterLanguages = map[string]bool{
	"java":       true,
	"javascript": true,
	"typescript": true,
}

var extensionLanguages = map[string]string{
	".java":  "java",
	".js":    "javascript",
	".jsx":   "javascript",
	".mjs":   "javascript",
	".cjs":   "javascript",
	".ts":    "typescript",
	".tsx":   "typescript",
	".go":    "go",
	".py":    "python",
	".rs":    "rust",
	".c":     "c",
	".h":     "c",
	".cpp":   "cpp",
	".cc":    "cpp",
	".cxx":   "cpp",
	".hpp":   "cpp",
}

// shebangLanguages maps a shebang interpreter name to a language, used as
// the content-based fallback for extension-less scripts.
var shebangLanguages = map[string]string{
	"python":  "python",
	"python3": "python",
}

// DetectLanguage identifies path's language by extension, falling back to
// a shebang-line sniff of content for extension-less files. Returns ""
// when neither heuristic recognises the file.
func DetectLanguage(path string, content []byte) string {
	ext := strings.ToLower(filepath.Ext(path))
	if lang, ok := extensionLanguages[ext]; ok {
		return lang
	}
	if len(content) > 2 && content[0] == '#' && content[1] == '!' {
		nl := strings.IndexByte(string(content), '\n')
		if nl < 0 {
			nl = len(content)
		}
		shebang := string(content[:nl])
		for interp, lang := range shebangLanguages {
			if strings.Contains(shebang, interp) {
				return lang
			}
		}
	}
	return ""
}

// HasTreeSitterGrammar reports whether lang should be routed through the
// AST-based extractor rather than the regex-token fallback.
func HasTreeSitterGrammar(lang string) bool {
	return treeSitterLanguages[lang]
}
