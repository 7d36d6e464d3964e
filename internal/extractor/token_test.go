package extractor

import (
	"testing"

	"github.com/codeintel-dev/codeintel-engine/internal/models"
)

func TestTokenExtractorGoFunctionAndStruct(t *testing.T) {
	src := `package sample

type Widget struct {
	Name string
}

func NewWidget(name string) *Widget {
	return &Widget{Name: name}
}
`
	x := NewTokenExtractor("go")
	res, err := x.Extract("cb1", "sample.go", []byte(src))
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(res.Entities) != 2 {
		t.Fatalf("expected 2 entities, got %d: %+v", len(res.Entities), res.Entities)
	}

	var fn, st *models.CodeEntity
	for _, e := range res.Entities {
		switch e.Kind {
		case models.EntityFunction:
			fn = e
		case models.EntityStruct:
			st = e
		}
	}
	if fn == nil || fn.Name != "NewWidget" {
		t.Fatalf("expected function NewWidget, got %+v", fn)
	}
	if st == nil || st.Name != "Widget" {
		t.Fatalf("expected struct Widget, got %+v", st)
	}
	if fn.StartLine > fn.EndLine {
		t.Fatalf("function start %d > end %d", fn.StartLine, fn.EndLine)
	}
}

func TestTokenExtractorResolvesCallsWithinFile(t *testing.T) {
	src := `package sample

func helper() int {
	return 1
}

func caller() int {
	return helper()
}
`
	x := NewTokenExtractor("go")
	res, err := x.Extract("cb1", "sample.go", []byte(src))
	if err != nil {
		t.Fatalf("extract: %v", err)
	}

	var found bool
	for _, rel := range res.Relationships {
		if rel.Kind == models.RelCalls && rel.SourceContext == "helper" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a calls relationship from caller to helper, got %+v", res.Relationships)
	}
}

func TestTokenExtractorUnresolvedCallYieldsReducedConfidenceReference(t *testing.T) {
	src := `package sample

func caller() int {
	return strconv.Atoi("1")
}
`
	x := NewTokenExtractor("go")
	res, err := x.Extract("cb1", "sample.go", []byte(src))
	if err != nil {
		t.Fatalf("extract: %v", err)
	}

	var found bool
	for _, rel := range res.Relationships {
		if rel.Kind == models.RelReferences && rel.SourceContext == "Atoi" {
			found = true
			if rel.ToEntityID != "" {
				t.Fatalf("expected an unresolved reference to carry no target id, got %q", rel.ToEntityID)
			}
			if rel.Confidence >= 1.0 {
				t.Fatalf("expected reduced confidence for an unresolved reference, got %v", rel.Confidence)
			}
		}
		if rel.Kind == models.RelCalls && rel.SourceContext == "Atoi" {
			t.Fatalf("unresolved callee %q should not produce a calls edge", rel.SourceContext)
		}
	}
	if !found {
		t.Fatalf("expected an unresolved-reference edge for Atoi, got %+v", res.Relationships)
	}
}

func TestTokenExtractorEmptyFileYieldsNoEntities(t *testing.T) {
	x := NewTokenExtractor("go")
	res, err := x.Extract("cb1", "empty.go", []byte(""))
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(res.Entities) != 0 {
		t.Fatalf("expected zero entities for an empty file, got %d", len(res.Entities))
	}
	if len(res.Issues) != 0 {
		t.Fatalf("expected zero issues for an empty file, got %d", len(res.Issues))
	}
}

func TestTokenExtractorPythonNestingByIndent(t *testing.T) {
	src := `class Greeter:
    def greet(self):
        return "hi"

def standalone():
    pass
`
	x := NewTokenExtractor("python")
	res, err := x.Extract("cb1", "sample.py", []byte(src))
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(res.Entities) != 3 {
		t.Fatalf("expected 3 entities (class, method, function), got %d: %+v", len(res.Entities), res.Entities)
	}
	for _, e := range res.Entities {
		if e.Name == "greet" && e.QualifiedName != "Greeter.greet" {
			t.Fatalf("expected greet's qualified name to include its enclosing class, got %q", e.QualifiedName)
		}
	}
}
