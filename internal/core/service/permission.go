package service

import (
	"fmt"
	"modbot/internal/core/domain"
	"slices"
	"strings"
)

type Authorizer interface {
	// BasicAccess decides whether the invoker may use the bot at all and should see error messages.
	BasicAccess(event *domain.InvocationEvent) domain.PermissionDecision
	// Check applies BasicAccess and then the capabilities a command requires.
	Check(event *domain.InvocationEvent, required []domain.CapabilityTag) domain.PermissionDecision
}

// SafeCommands are informational and self-service commands anyone may invoke.
var SafeCommands = []string{
	"help", "ping", "serverinfo", "si", "userinfo", "ui", "avatar",
	"botinfo", "invite", "afk", "unafk", "afklist", "snipe", "editsnipe",
	"snipelist", "emojiinfo", "listemojis", "button", "buttonstats",
	"purge",
}

type PermissionConfig struct {
	SuperAdmins    []string
	ModeratorRoles []string
	AdminRoles     []string
}

type PermissionGate struct {
	superAdmins []string
	roles       []string
	safe        []string
}

func NewPermissionGate(cfg PermissionConfig) *PermissionGate {
	return &PermissionGate{
		superAdmins: cfg.SuperAdmins,
		roles:       append(slices.Clone(cfg.ModeratorRoles), cfg.AdminRoles...),
		safe:        SafeCommands,
	}
}

func allow(reason string) domain.PermissionDecision {
	return domain.PermissionDecision{Allowed: true, Reason: reason}
}

func deny(reason string) domain.PermissionDecision {
	return domain.PermissionDecision{Allowed: false, Reason: reason}
}

func (g *PermissionGate) BasicAccess(event *domain.InvocationEvent) domain.PermissionDecision {
	if event == nil {
		return deny("no event")
	}

	if event.OriginKind == domain.DirectMessage {
		return allow("direct message")
	}

	p := event.Principal
	if p.IsOriginOwner {
		return allow("origin owner")
	}

	if g.isSuperAdmin(p.ID) {
		return allow("super admin")
	}

	if slices.Contains(g.safe, strings.ToLower(event.CommandName)) {
		return allow("safe command")
	}

	for _, tag := range domain.ElevatedCapabilities {
		if p.Has(tag) {
			return allow(fmt.Sprintf("capability %s", tag))
		}
	}

	for _, role := range p.Roles {
		if slices.Contains(g.roles, role) {
			return allow(fmt.Sprintf("role %s", role))
		}
	}

	return deny("no qualifying capability or role")
}

func (g *PermissionGate) Check(event *domain.InvocationEvent, required []domain.CapabilityTag) domain.PermissionDecision {
	decision := g.BasicAccess(event)
	if !decision.Allowed || len(required) == 0 || event.OriginKind == domain.DirectMessage {
		return decision
	}

	p := event.Principal
	if p.IsOriginOwner || g.isSuperAdmin(p.ID) || p.Has(domain.Administrator) {
		return decision
	}

	for _, tag := range required {
		if !p.Has(tag) {
			return deny(fmt.Sprintf("missing capability %s", tag))
		}
	}

	return decision
}

func (g *PermissionGate) isSuperAdmin(id string) bool {
	return id != "" && slices.Contains(g.superAdmins, id)
}
