package usecase

import (
	"strings"
	"sync"
)

// DocRegister names the writing register a hypothetical passage imitates.
// The set is open: new registers are added through Register without touching
// retrieval logic.
type DocRegister string

const (
	RegisterLegal     DocRegister = "legal"
	RegisterTechnical DocRegister = "technical"
	RegisterGeneric   DocRegister = "generic"
)

type registerRule struct {
	register DocRegister
	keywords []string
}

// PromptRegistry resolves the passage-generation template for a query. Known
// document identifiers map statically to a register; otherwise the query text
// is classified by keyword, falling back to the generic register.
type PromptRegistry struct {
	mu        sync.RWMutex
	templates map[DocRegister]string
	documents map[string]DocRegister
	rules     []registerRule
}

func NewPromptRegistry() *PromptRegistry {
	r := &PromptRegistry{
		templates: make(map[DocRegister]string),
		documents: make(map[string]DocRegister),
	}

	r.Register(RegisterLegal, `Write one short passage in the style of a legal document that would answer the question below. Use formal statutory language with defined terms. Do not mention that the passage is hypothetical.

Question: %s

Passage:`)
	r.Register(RegisterTechnical, `Write one short passage in the style of technical documentation that would answer the question below. Be precise and use domain terminology. Do not mention that the passage is hypothetical.

Question: %s

Passage:`)
	r.Register(RegisterGeneric, `Write one short passage that would plausibly appear in a reference document answering the question below. Do not mention that the passage is hypothetical.

Question: %s

Passage:`)

	r.rules = []registerRule{
		{RegisterLegal, []string{"article", "clause", "contract", "agreement", "liability", "pursuant", "regulation", "statute", "obligation", "warranty"}},
		{RegisterTechnical, []string{"api", "configure", "configuration", "install", "error", "protocol", "parameter", "endpoint", "deploy", "runtime"}},
	}

	return r
}

// Register adds or replaces the template for a register. Templates take the
// query via one %s verb.
func (r *PromptRegistry) Register(register DocRegister, template string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.templates[register] = template
}

// AssignDocument pins a document identifier to a register.
func (r *PromptRegistry) AssignDocument(documentID string, register DocRegister) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.documents[documentID] = register
}

// Resolve picks the register and template for a document/query pair.
func (r *PromptRegistry) Resolve(documentID, query string) (DocRegister, string) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if register, ok := r.documents[documentID]; ok {
		if template, ok := r.templates[register]; ok {
			return register, template
		}
	}

	lower := strings.ToLower(query)
	for _, rule := range r.rules {
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				if template, ok := r.templates[rule.register]; ok {
					return rule.register, template
				}
			}
		}
	}

	return RegisterGeneric, r.templates[RegisterGeneric]
}
