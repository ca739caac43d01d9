package usecase

import (
	"strings"
	"testing"
)

func TestRegistryStaticDocumentAssignment(t *testing.T) {
	registry := NewPromptRegistry()
	registry.AssignDocument("contract-007", RegisterLegal)

	register, template := registry.Resolve("contract-007", "how do I deploy the runtime?")
	if register != RegisterLegal {
		t.Fatalf("static assignment must win over query keywords, got %s", register)
	}
	if !strings.Contains(template, "%s") {
		t.Fatalf("template must take the query: %q", template)
	}
}

func TestRegistryKeywordClassification(t *testing.T) {
	registry := NewPromptRegistry()

	cases := []struct {
		query string
		want  DocRegister
	}{
		{"what does clause 4 say about liability?", RegisterLegal},
		{"how do I configure the api endpoint?", RegisterTechnical},
		{"what is photosynthesis?", RegisterGeneric},
	}
	for _, tc := range cases {
		register, _ := registry.Resolve("unknown-doc", tc.query)
		if register != tc.want {
			t.Fatalf("Resolve(%q) = %s, want %s", tc.query, register, tc.want)
		}
	}
}

func TestRegistryCustomRegister(t *testing.T) {
	registry := NewPromptRegistry()
	registry.Register(DocRegister("medical"), "Write a clinical passage answering: %s")
	registry.AssignDocument("chart-9", DocRegister("medical"))

	register, template := registry.Resolve("chart-9", "dosage guidance")
	if register != DocRegister("medical") {
		t.Fatalf("expected custom register, got %s", register)
	}
	if !strings.HasPrefix(template, "Write a clinical passage") {
		t.Fatalf("unexpected template: %q", template)
	}
}

func TestRegistryUnknownDocumentFallsThrough(t *testing.T) {
	registry := NewPromptRegistry()
	register, template := registry.Resolve("never-seen", "tell me something")
	if register != RegisterGeneric || template == "" {
		t.Fatalf("expected generic fallback, got %s %q", register, template)
	}
}
