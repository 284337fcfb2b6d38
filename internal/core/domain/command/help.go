package command

import (
	"context"
	"fmt"
	"modbot/internal/core/domain"
	"sort"
	"strings"
)

const slashPrefix = "/"

type Help struct {
	registry *Registry
	prefix   string
}

func NewHelp(registry *Registry, prefix string) *Help {
	return &Help{registry: registry, prefix: prefix}
}

func (h *Help) Description() string {
	return "List all available commands"
}

// Respond lists every command, showing both spellings for names registered in both namespaces.
func (h *Help) Respond(_ context.Context, event *domain.InvocationEvent) (domain.Reply, error) {
	type entry struct {
		forms       []string
		description string
	}

	entries := make(map[string]*entry)
	add := func(kind domain.InvocationKind, sigil string) {
		if sigil == "" {
			return
		}

		for _, reg := range h.registry.List(kind) {
			e, ok := entries[reg.Name]
			if !ok {
				e = &entry{description: reg.Handler.Description()}
				entries[reg.Name] = e
			}
			e.forms = append(e.forms, fmt.Sprintf("`%s%s`", sigil, reg.Name))
		}
	}

	add(domain.TextPrefixed, h.prefix)
	add(domain.StructuredInteraction, slashPrefix)

	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString("📋 Available commands\n")
	for _, name := range names {
		e := entries[name]
		fmt.Fprintf(&b, "%s - %s\n", strings.Join(e.forms, " or "), e.description)
	}

	return domain.Reply{
		Text:      strings.TrimRight(b.String(), "\n"),
		Ephemeral: event.Kind == domain.StructuredInteraction,
	}, nil
}
