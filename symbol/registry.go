package symbol

import (
	"sort"
	"sync"

	"github.com/wippyai/emjs/errors"
	"github.com/wippyai/emjs/snippet"
)

type entry struct {
	site    snippet.Site
	derived bool
}

// Registry records every native name handed out in a build and rejects
// duplicates. Safe for concurrent use.
type Registry struct {
	mu    sync.Mutex
	names map[string]entry
	namer Namer
}

// NewRegistry creates a registry that names snippets with namer.
func NewRegistry(namer Namer) *Registry {
	return &Registry{
		names: make(map[string]entry),
		namer: namer,
	}
}

// Register names id and claims the resulting identifier. The error carries
// both declaration sites on conflict.
func (r *Registry) Register(id snippet.Identity) (Pair, error) {
	pair, err := r.namer.Name(id)
	if err != nil {
		return Pair{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, exists := r.names[pair.Native]; exists {
		e := errors.NameConflict(pair.Payload, prev.site.String(), id.Site.String())
		switch {
		case prev.derived && pair.Derived:
			e.Detail = "two call sites derive the same symbol (namer defect)"
		case prev.derived != pair.Derived:
			e.Detail = "explicit name equals a derived call-site name"
		}
		return Pair{}, e
	}

	r.names[pair.Native] = entry{site: id.Site, derived: pair.Derived}
	return pair, nil
}

// Len returns the number of registered names.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.names)
}

// Names returns the registered native names in sorted order.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.names))
	for name := range r.names {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
