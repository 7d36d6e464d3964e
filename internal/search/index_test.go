package search

import (
	"reflect"
	"testing"
)

func TestTokenizeSplitsCamelCaseAndSnakeCase(t *testing.T) {
	got := Tokenize("parseJSON parse_json")
	want := []string{"parse", "json", "parse", "json"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestTrigramsShortStringIsSinglePseudoGram(t *testing.T) {
	got := Trigrams("go")
	want := []string{"go"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestTrigramsOverlap(t *testing.T) {
	got := Trigrams("code")
	want := []string{"cod", "ode"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}
