package loader

import (
	"context"
	"sort"
	"sync"

	"github.com/CSCC69/userprog/boundary"
)

// Program is the code an image runs. Its return value becomes the exit
// status.
type Program func(ctx context.Context, u *boundary.User, args []string) int

type Registry struct {
	mu       sync.RWMutex
	programs map[string]Program
}

func NewRegistry() *Registry {
	return &Registry{programs: make(map[string]Program)}
}

func (r *Registry) Register(entry string, prog Program) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.programs[entry] = prog
}

func (r *Registry) Lookup(entry string) (Program, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	prog, ok := r.programs[entry]
	return prog, ok
}

func (r *Registry) Entries() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var entries []string
	for name := range r.programs {
		entries = append(entries, name)
	}

	sort.Strings(entries)

	return entries
}
