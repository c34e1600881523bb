package embedding

import (
	"math"
	"strings"
	"testing"
)

func norm(v []float64) float64 {
	var s float64
	for _, x := range v {
		s += x * x
	}
	return math.Sqrt(s)
}

func TestEmbed_UnitNorm(t *testing.T) {
	e := NewHashEngine(DefaultDimensions)
	v := e.Embed("AssertionError: expected 3 but got 4 in test_math.py")

	if len(v) != DefaultDimensions {
		t.Fatalf("Expected %d dimensions, got %d", DefaultDimensions, len(v))
	}
	if n := norm(v); math.Abs(n-1.0) > 1e-9 {
		t.Errorf("Expected unit norm, got %f", n)
	}
}

func TestEmbed_NoSurvivingTokens(t *testing.T) {
	e := NewHashEngine(64)

	// Every token is filtered: too short or non-alphanumeric.
	for _, text := range []string{"", "a b c", "!! ?? ..", "is a to of"} {
		v := e.Embed(text)
		if len(v) != 64 {
			t.Fatalf("Expected 64 dimensions, got %d", len(v))
		}
		if n := norm(v); n != 0 {
			t.Errorf("Embed(%q): expected zero vector, got norm %f", text, n)
		}
	}
}

func TestEmbed_Deterministic(t *testing.T) {
	e := NewHashEngine(512)
	text := "ImportError: cannot import name 'helper' from module utils"

	a := e.Embed(text)
	b := e.Embed(text)
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("Embedding not deterministic at index %d: %f != %f", i, a[i], b[i])
		}
	}
}

func TestCosine_SelfSimilarity(t *testing.T) {
	e := NewHashEngine(DefaultDimensions)
	v := e.Embed("TypeError: unsupported operand type for division")

	if sim := Cosine(v, v); math.Abs(sim-1.0) > 1e-9 {
		t.Errorf("Expected self-similarity 1.0, got %f", sim)
	}
}

func TestCosine_Symmetric(t *testing.T) {
	e := NewHashEngine(DefaultDimensions)
	a := e.Embed("index out of range in loop boundary")
	b := e.Embed("assertion failed: wrong return value")

	if Cosine(a, b) != Cosine(b, a) {
		t.Errorf("Cosine is not symmetric: %f != %f", Cosine(a, b), Cosine(b, a))
	}
}

func TestCosine_OrderInvariance(t *testing.T) {
	e := NewHashEngine(DefaultDimensions)
	a := e.Embed("import error missing module")
	b := e.Embed("missing module import error")

	if sim := Cosine(a, b); sim < 0.9 {
		t.Errorf("Bag-of-words should be order-invariant, got similarity %f", sim)
	}
}

func TestCosine_UnrelatedTextsLowSimilarity(t *testing.T) {
	e := NewHashEngine(DefaultDimensions)
	a := e.Embed("division by zero in numeric kernel computation")
	b := e.Embed("websocket handshake timeout waiting for upgrade response")

	if sim := Cosine(a, b); sim > 0.5 {
		t.Errorf("Unrelated texts should score low, got %f", sim)
	}
}

func TestTokenize_FilterAndCap(t *testing.T) {
	toks := tokenize("Ab cde_f GH-12 x yz foo")
	// Survivors: cde_f, foo (len > 2 after lowering/splitting).
	want := map[string]bool{"cde_f": true, "foo": true}
	if len(toks) != len(want) {
		t.Fatalf("Expected %d tokens, got %d (%v)", len(want), len(toks), toks)
	}
	for _, tok := range toks {
		if !want[tok] {
			t.Errorf("Unexpected token %q", tok)
		}
	}

	// Cap at maxTokens for huge logs.
	huge := strings.Repeat("failure ", maxTokens*2)
	if got := len(tokenize(huge)); got != maxTokens {
		t.Errorf("Expected token cap %d, got %d", maxTokens, got)
	}
}

func TestNewHashEngine_DefaultsOnInvalidDim(t *testing.T) {
	if e := NewHashEngine(0); e.Dimensions() != DefaultDimensions {
		t.Errorf("Expected default dimensions, got %d", e.Dimensions())
	}
	if e := NewHashEngine(-5); e.Dimensions() != DefaultDimensions {
		t.Errorf("Expected default dimensions, got %d", e.Dimensions())
	}
}
