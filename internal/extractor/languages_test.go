package extractor

import "testing"

func TestDetectLanguageByExtension(t *testing.T) {
	cases := map[string]string{
		"main.go":       "go",
		"app.py":        "python",
		"lib.rs":        "rust",
		"Widget.java":   "java",
		"index.ts":      "typescript",
		"component.tsx": "typescript",
		"script.js":     "javascript",
		"README.md":     "",
	}
	for path, want := range cases {
		if got := DetectLanguage(path, nil); got != want {
			t.Errorf("DetectLanguage(%q) = %q, want %q", path, got, want)
		}
	}
}

func TestDetectLanguageByShebangFallback(t *testing.T) {
	got := DetectLanguage("build-script", []byte("#!/usr/bin/env python3\nprint('hi')\n"))
	if got != "python" {
		t.Fatalf("expected shebang fallback to detect python, got %q", got)
	}
}

func TestDetectLanguageUnrecognisedReturnsEmpty(t *testing.T) {
	if got := DetectLanguage("data.bin", []byte{0x00, 0x01, 0x02}); got != "" {
		t.Fatalf("expected unrecognised file to detect no language, got %q", got)
	}
}

func TestHasTreeSitterGrammarMatchesExtensionDispatch(t *testing.T) {
	for _, lang := range []string{"java", "javascript", "typescript"} {
		if !HasTreeSitterGrammar(lang) {
			t.Errorf("expected %s to be routed through tree-sitter", lang)
		}
	}
	for _, lang := range []string{"go", "python", "rust", "c", "cpp"} {
		if HasTreeSitterGrammar(lang) {
			t.Errorf("expected %s to fall back to the token extractor", lang)
		}
	}
}
