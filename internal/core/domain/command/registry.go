package command

import (
	"fmt"
	"modbot/internal/core/domain"
	"modbot/internal/core/port"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
)

type key struct {
	kind domain.InvocationKind
	name string
}

// Registry maps (kind, name) to command handlers. It is written during startup and read concurrently afterwards.
type Registry struct {
	mutex    sync.RWMutex
	commands map[key]port.Registration
	sealed   bool
}

func NewRegistry() *Registry {
	return &Registry{commands: make(map[key]port.Registration)}
}

func (r *Registry) Register(reg port.Registration) error {
	reg.Name = normalize(reg.Name)
	if reg.Name == "" || reg.Handler == nil {
		return fmt.Errorf("%w: name and handler are required", domain.ErrInvalidRegistration)
	}

	if reg.Kind != domain.TextPrefixed && reg.Kind != domain.StructuredInteraction {
		return fmt.Errorf("%w: unknown kind %q", domain.ErrInvalidRegistration, reg.Kind)
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.sealed {
		return domain.ErrRegistrySealed
	}

	if r.commands == nil {
		r.commands = make(map[key]port.Registration)
	}

	k := key{kind: reg.Kind, name: reg.Name}
	if _, exists := r.commands[k]; exists {
		return fmt.Errorf("%w: %s command %q", domain.ErrDuplicateRegistration, reg.Kind, reg.Name)
	}

	log.Info().
		Str("handler", reg.Name).
		Str("kind", string(reg.Kind)).
		Msg("adding command handler to registry")
	r.commands[k] = reg

	return nil
}

// Seal rejects any further registration.
func (r *Registry) Seal() {
	r.mutex.Lock()
	r.sealed = true
	r.mutex.Unlock()
}

func (r *Registry) Lookup(kind domain.InvocationKind, name string) (port.Registration, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	reg, ok := r.commands[key{kind: kind, name: normalize(name)}]
	return reg, ok
}

func (r *Registry) List(kind domain.InvocationKind) []port.Registration {
	r.mutex.RLock()
	list := make([]port.Registration, 0, len(r.commands))
	for k, reg := range r.commands {
		if k.kind == kind {
			list = append(list, reg)
		}
	}
	r.mutex.RUnlock()

	sort.Slice(list, func(i, j int) bool {
		return list[i].Name < list[j].Name
	})

	return list
}

// Catalog converts a namespace into entries for the platform's remote command catalog.
func (r *Registry) Catalog(kind domain.InvocationKind) []domain.CatalogEntry {
	list := r.List(kind)
	entries := make([]domain.CatalogEntry, len(list))
	for i, reg := range list {
		entries[i] = domain.CatalogEntry{Name: reg.Name, Description: reg.Handler.Description()}
	}

	return entries
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
