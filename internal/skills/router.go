// Package skills maps repo identities to guidance profiles ("heads") that are
// appended to patch-generation prompts. Heads are registered once at startup
// and read-only afterwards.
package skills

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"mend/internal/logging"
)

// Head is one guidance profile: prompt text plus patch-style limits such as
// max_files or max_lines.
type Head struct {
	Name         string         `json:"name"`
	PromptSuffix string         `json:"prompt_suffix"`
	PatchStyle   map[string]int `json:"patch_style"`
	// Fingerprints lists repo fingerprint substrings this head applies to.
	// An empty list makes the head generic: it matches any fingerprint.
	Fingerprints []string `json:"fingerprints"`
}

// Registry holds registered heads. Registration rejects duplicates; lookups
// are deterministic for a fixed registry and fingerprint.
type Registry struct {
	mu    sync.RWMutex
	heads []Head
	names map[string]bool
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{names: make(map[string]bool)}
}

// Register adds a head. Duplicate names are an error.
func (r *Registry) Register(h Head) error {
	if h.Name == "" {
		return fmt.Errorf("skill head requires a name")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.names[h.Name] {
		return fmt.Errorf("skill head %q already registered", h.Name)
	}
	r.names[h.Name] = true
	r.heads = append(r.heads, h)

	logging.AgentDebug("Registered skill head %q", h.Name)
	return nil
}

// Select returns up to k heads matching the repo fingerprint, specific heads
// first, then generic ones, each group in registration order. The result may
// be empty; callers fall back to generic guidance.
func (r *Registry) Select(fingerprint string, k int) []Head {
	if k <= 0 {
		return nil
	}
	lowered := strings.ToLower(fingerprint)

	r.mu.RLock()
	defer r.mu.RUnlock()

	type ranked struct {
		head     Head
		specific bool
		order    int
	}
	var matches []ranked
	for i, h := range r.heads {
		if len(h.Fingerprints) == 0 {
			matches = append(matches, ranked{head: h, order: i})
			continue
		}
		for _, fp := range h.Fingerprints {
			if fp != "" && strings.Contains(lowered, strings.ToLower(fp)) {
				matches = append(matches, ranked{head: h, specific: true, order: i})
				break
			}
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].specific != matches[j].specific {
			return matches[i].specific
		}
		return matches[i].order < matches[j].order
	})

	if len(matches) > k {
		matches = matches[:k]
	}
	out := make([]Head, 0, len(matches))
	for _, m := range matches {
		out = append(out, m.head)
	}
	return out
}

// Names returns all registered head names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.heads))
	for _, h := range r.heads {
		out = append(out, h.Name)
	}
	return out
}

// DefaultRegistry returns a registry seeded with general-purpose heads.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	seed := []Head{
		{
			Name:         "minimal-diff",
			PromptSuffix: "Prefer the smallest change that makes the failing tests pass. Do not refactor surrounding code.",
			PatchStyle:   map[string]int{"max_files": 2, "max_lines": 40},
		},
		{
			Name:         "test-faithful",
			PromptSuffix: "Treat the failing test as the specification. Never modify test files.",
			PatchStyle:   map[string]int{"max_files": 3, "max_lines": 80},
		},
		{
			Name:         "django-conventions",
			PromptSuffix: "Follow Django coding style: keep querysets lazy, use timezone-aware datetimes.",
			PatchStyle:   map[string]int{"max_files": 2, "max_lines": 60},
			Fingerprints: []string{"django"},
		},
		{
			Name:         "sympy-precision",
			PromptSuffix: "Preserve exact symbolic results; never introduce floating point approximations.",
			PatchStyle:   map[string]int{"max_files": 2, "max_lines": 60},
			Fingerprints: []string{"sympy"},
		},
	}
	for _, h := range seed {
		// Seed heads have unique names, so this cannot fail.
		_ = r.Register(h)
	}
	return r
}
