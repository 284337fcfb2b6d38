package service

import (
	"modbot/internal/core/domain"
	"testing"

	"github.com/stretchr/testify/assert"
)

func guildEvent(command string, p domain.Principal) *domain.InvocationEvent {
	return &domain.InvocationEvent{
		EventID:     "1",
		CommandName: command,
		Kind:        domain.TextPrefixed,
		OriginKind:  domain.GuildChannel,
		OriginID:    "chan",
		GuildID:     "guild",
		Principal:   p,
	}
}

func TestPermissionGate_BasicAccess(t *testing.T) {
	gate := NewPermissionGate(PermissionConfig{
		SuperAdmins:    []string{"42"},
		ModeratorRoles: []string{"Moderator"},
		AdminRoles:     []string{"Admin"},
	})

	tests := []struct {
		name  string
		event *domain.InvocationEvent
		want  bool
	}{
		{
			name:  "direct messages are always allowed",
			event: &domain.InvocationEvent{CommandName: "ban", OriginKind: domain.DirectMessage},
			want:  true,
		},
		{
			name:  "origin owner",
			event: guildEvent("ban", domain.Principal{ID: "7", IsOriginOwner: true}),
			want:  true,
		},
		{
			name:  "super admin",
			event: guildEvent("ban", domain.Principal{ID: "42"}),
			want:  true,
		},
		{
			name:  "safe command for anyone",
			event: guildEvent("ping", domain.Principal{ID: "7"}),
			want:  true,
		},
		{
			name:  "safe command is case insensitive",
			event: guildEvent("BotInfo", domain.Principal{ID: "7"}),
			want:  true,
		},
		{
			name: "elevated capability",
			event: guildEvent("warn", domain.Principal{
				ID:           "7",
				Capabilities: []domain.CapabilityTag{domain.ManageMessages},
			}),
			want: true,
		},
		{
			name:  "moderator role",
			event: guildEvent("warn", domain.Principal{ID: "7", Roles: []string{"Member", "Moderator"}}),
			want:  true,
		},
		{
			name:  "admin role",
			event: guildEvent("warn", domain.Principal{ID: "7", Roles: []string{"Admin"}}),
			want:  true,
		},
		{
			name:  "role names are exact",
			event: guildEvent("warn", domain.Principal{ID: "7", Roles: []string{"moderator"}}),
			want:  false,
		},
		{
			name:  "plain member on moderation command",
			event: guildEvent("warn", domain.Principal{ID: "7", Roles: []string{"Member"}}),
			want:  false,
		},
		{
			name:  "nil event",
			event: nil,
			want:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decision := gate.BasicAccess(tt.event)

			assert.Equal(t, tt.want, decision.Allowed)
			assert.NotEmpty(t, decision.Reason)
		})
	}
}

func TestPermissionGate_Check(t *testing.T) {
	gate := NewPermissionGate(PermissionConfig{ModeratorRoles: []string{"Moderator"}, SuperAdmins: []string{"42"}})
	required := []domain.CapabilityTag{domain.BanMembers}

	tests := []struct {
		name  string
		event *domain.InvocationEvent
		tags  []domain.CapabilityTag
		want  bool
	}{
		{
			name:  "no required tags falls back to basic access",
			event: guildEvent("warn", domain.Principal{ID: "7", Roles: []string{"Moderator"}}),
			want:  true,
		},
		{
			name:  "role without required capability",
			event: guildEvent("ban", domain.Principal{ID: "7", Roles: []string{"Moderator"}}),
			tags:  required,
			want:  false,
		},
		{
			name: "holds required capability",
			event: guildEvent("ban", domain.Principal{
				ID:           "7",
				Capabilities: []domain.CapabilityTag{domain.BanMembers},
			}),
			tags: required,
			want: true,
		},
		{
			name: "administrator implies every capability",
			event: guildEvent("ban", domain.Principal{
				ID:           "7",
				Capabilities: []domain.CapabilityTag{domain.Administrator},
			}),
			tags: required,
			want: true,
		},
		{
			name:  "super admin bypasses capabilities",
			event: guildEvent("ban", domain.Principal{ID: "42"}),
			tags:  required,
			want:  true,
		},
		{
			name:  "direct message bypasses capabilities",
			event: &domain.InvocationEvent{CommandName: "ban", OriginKind: domain.DirectMessage},
			tags:  required,
			want:  true,
		},
		{
			name:  "denied basic access stays denied",
			event: guildEvent("ban", domain.Principal{ID: "7"}),
			tags:  required,
			want:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, gate.Check(tt.event, tt.tags).Allowed)
		})
	}
}
