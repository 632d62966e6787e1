package deploy

import (
	"encoding/json"
	"regexp"
	"testing"

	"github.com/splax/backendless/internal/domain"
)

func sampleDefinition() domain.Definition {
	return domain.Definition{
		Name:    "v1",
		Version: "1.0.0",
		Routes: []domain.RouteDefinition{
			{Path: "/", Methods: []string{"GET"}, Handler: "home"},
			{Path: "/items", Methods: []string{"GET", "POST"}, Handler: "items"},
		},
		Handlers: []domain.HandlerDefinition{
			{Name: "home", Logic: json.RawMessage(`{"return":"hello"}`)},
			{Name: "items", QueryParameters: []string{"page"}, Logic: json.RawMessage(`{"return":"items"}`)},
		},
	}
}

func TestFingerprintIsStableHex(t *testing.T) {
	first, err := Fingerprint(sampleDefinition())
	if err != nil {
		t.Fatalf("fingerprint: %v", err)
	}
	second, err := Fingerprint(sampleDefinition())
	if err != nil {
		t.Fatalf("fingerprint: %v", err)
	}
	if first != second {
		t.Fatalf("expected identical definitions to share a fingerprint: %s != %s", first, second)
	}
	if !regexp.MustCompile(`^[0-9a-f]{64}$`).MatchString(first) {
		t.Fatalf("expected 64 lowercase hex chars, got %q", first)
	}
}

func TestFingerprintDependsOnOrder(t *testing.T) {
	base, _ := Fingerprint(sampleDefinition())

	swapped := sampleDefinition()
	swapped.Routes[0], swapped.Routes[1] = swapped.Routes[1], swapped.Routes[0]
	got, _ := Fingerprint(swapped)
	if got == base {
		t.Fatal("expected reordered routes to change the fingerprint")
	}

	reordered := sampleDefinition()
	reordered.Handlers[0].Logic = json.RawMessage(`{"b":1,"a":2}`)
	other := sampleDefinition()
	other.Handlers[0].Logic = json.RawMessage(`{"a":2,"b":1}`)
	a, _ := Fingerprint(reordered)
	b, _ := Fingerprint(other)
	if a == b {
		t.Fatal("expected key order inside logic to be significant")
	}
}

func TestFingerprintDistinguishesAbsentFromEmpty(t *testing.T) {
	absent := sampleDefinition()
	empty := sampleDefinition()
	empty.Handlers[0].Headers = []string{}
	a, _ := Fingerprint(absent)
	b, _ := Fingerprint(empty)
	if a == b {
		t.Fatal("expected an empty list to encode differently from an absent one")
	}
}

func TestCanonicalEncodingKeepsFieldOrder(t *testing.T) {
	encoded, err := canonicalEncoding(domain.Definition{Name: "n", Version: "v"})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	want := `{"name":"n","version":"v","static_directory":"","routes":null,"handlers":null}`
	if string(encoded) != want {
		t.Fatalf("unexpected encoding:\n got %s\nwant %s", encoded, want)
	}
}

func TestFingerprintIgnoresWhitespaceInsideLogic(t *testing.T) {
	compact := sampleDefinition()
	spaced := sampleDefinition()
	spaced.Handlers[0].Logic = json.RawMessage("{ \"return\" :\n  \"hello\" }")

	a, err := Fingerprint(compact)
	if err != nil {
		t.Fatalf("fingerprint: %v", err)
	}
	b, err := Fingerprint(spaced)
	if err != nil {
		t.Fatalf("fingerprint: %v", err)
	}
	if a != b {
		t.Fatal("expected insignificant whitespace inside logic to be compacted away")
	}

	changed := sampleDefinition()
	changed.Handlers[0].Logic = json.RawMessage(`{"return":"hello "}`)
	c, _ := Fingerprint(changed)
	if c == a {
		t.Fatal("expected whitespace inside a string value to change the fingerprint")
	}
}
