package extractor

import (
	"testing"

	"github.com/codeintel-dev/codeintel-engine/internal/apperrors"
)

func TestEngineExtractDispatchesByDetectedLanguage(t *testing.T) {
	e, err := NewEngine()
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	res, err := e.Extract("cb1", "main.go", []byte("func main() {}\n"))
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(res.Entities) != 1 || res.Entities[0].Name != "main" {
		t.Fatalf("expected a single main entity, got %+v", res.Entities)
	}
	if res.Entities[0].Language != "go" {
		t.Fatalf("expected language go, got %q", res.Entities[0].Language)
	}
}

func TestEngineExtractUnsupportedLanguageIsSoftError(t *testing.T) {
	e, err := NewEngine()
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	res, err := e.Extract("cb1", "notes.txt", []byte("just some prose"))
	if err == nil {
		t.Fatalf("expected an error for an unrecognised language")
	}
	if apperrors.KindOf(err) != LanguageUnsupported {
		t.Fatalf("expected LanguageUnsupported kind, got %v", apperrors.KindOf(err))
	}
	if len(res.Entities) != 0 {
		t.Fatalf("expected an empty result for an unsupported language, got %+v", res.Entities)
	}
}
