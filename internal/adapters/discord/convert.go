package discord

import (
	"fmt"
	"modbot/internal/core/domain"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog/log"
)

type guildLookup func(guildID string) (*discordgo.Guild, error)

var permissionTags = []struct {
	bit int64
	tag domain.CapabilityTag
}{
	{discordgo.PermissionAdministrator, domain.Administrator},
	{discordgo.PermissionKickMembers, domain.KickMembers},
	{discordgo.PermissionBanMembers, domain.BanMembers},
	{discordgo.PermissionManageMessages, domain.ManageMessages},
	{discordgo.PermissionModerateMembers, domain.ModerateMembers},
	{discordgo.PermissionManageServer, domain.ManageGuild},
	{discordgo.PermissionManageRoles, domain.ManageRoles},
}

func (t *Transport) fromMessage(m *discordgo.MessageCreate) (*domain.InvocationEvent, bool) {
	if m == nil || m.Message == nil || m.Author == nil || m.Author.Bot {
		return nil, false
	}

	name, args, ok := domain.ParsePrefixed(t.prefix, m.Content)
	if !ok {
		return nil, false
	}

	event := &domain.InvocationEvent{
		EventID:      m.ID,
		CommandName:  name,
		Kind:         domain.TextPrefixed,
		OriginID:     m.ChannelID,
		GuildID:      m.GuildID,
		RawArguments: args,
		ReplyToken:   m.ID,
		ReceivedAt:   time.Now(),
	}
	t.resolveOrigin(event, m.Author, m.Member)

	return event, true
}

func (t *Transport) fromInteraction(i *discordgo.InteractionCreate) (*domain.InvocationEvent, bool) {
	if i == nil || i.Interaction == nil || i.Type != discordgo.InteractionApplicationCommand {
		return nil, false
	}

	user := i.User
	if i.Member != nil && i.Member.User != nil {
		user = i.Member.User
	}
	if user == nil || user.Bot {
		return nil, false
	}

	data := i.ApplicationCommandData()
	event := &domain.InvocationEvent{
		EventID:      i.ID,
		CommandName:  strings.ToLower(data.Name),
		Kind:         domain.StructuredInteraction,
		OriginID:     i.ChannelID,
		GuildID:      i.GuildID,
		RawArguments: optionsString(data.Options),
		ReplyToken:   i.Token,
		ReceivedAt:   time.Now(),
	}
	t.resolveOrigin(event, user, i.Member)

	return event, true
}

func (t *Transport) resolveOrigin(event *domain.InvocationEvent, user *discordgo.User, member *discordgo.Member) {
	if event.GuildID == "" {
		event.OriginKind = domain.DirectMessage
		event.Principal = domain.Principal{ID: user.ID, Username: user.Username}
		return
	}

	event.OriginKind = domain.GuildChannel

	var guild *discordgo.Guild
	if t.guild != nil {
		var err error
		guild, err = t.guild(event.GuildID)
		if err != nil {
			log.Debug().Err(err).Str("guildId", event.GuildID).Msg("guild not cached")
		}
	}

	event.Principal = principal(guild, user, member)
}

func principal(guild *discordgo.Guild, user *discordgo.User, member *discordgo.Member) domain.Principal {
	p := domain.Principal{ID: user.ID, Username: user.Username}
	if guild != nil && guild.OwnerID == user.ID {
		p.IsOriginOwner = true
	}
	if member == nil {
		return p
	}

	permissions := member.Permissions
	if guild != nil {
		p.Roles = roleNames(guild, member.Roles)
		if permissions == 0 {
			permissions = memberPermissions(guild, member.Roles)
		}
	}
	p.Capabilities = capabilitiesFromPermissions(permissions)

	return p
}

func capabilitiesFromPermissions(permissions int64) []domain.CapabilityTag {
	var tags []domain.CapabilityTag
	for _, pt := range permissionTags {
		if permissions&pt.bit != 0 {
			tags = append(tags, pt.tag)
		}
	}

	return tags
}

// memberPermissions folds the everyone role and the member's roles into one permission set.
func memberPermissions(guild *discordgo.Guild, roleIDs []string) int64 {
	held := make(map[string]struct{}, len(roleIDs)+1)
	held[guild.ID] = struct{}{}
	for _, id := range roleIDs {
		held[id] = struct{}{}
	}

	var permissions int64
	for _, role := range guild.Roles {
		if _, ok := held[role.ID]; ok {
			permissions |= role.Permissions
		}
	}

	return permissions
}

func roleNames(guild *discordgo.Guild, roleIDs []string) []string {
	byID := make(map[string]string, len(guild.Roles))
	for _, role := range guild.Roles {
		byID[role.ID] = role.Name
	}

	var names []string
	for _, id := range roleIDs {
		if name, ok := byID[id]; ok {
			names = append(names, name)
		}
	}

	return names
}

func optionsString(options []*discordgo.ApplicationCommandInteractionDataOption) string {
	parts := make([]string, 0, len(options))
	for _, o := range options {
		switch o.Type {
		case discordgo.ApplicationCommandOptionSubCommand, discordgo.ApplicationCommandOptionSubCommandGroup:
			parts = append(parts, o.Name)
			if nested := optionsString(o.Options); nested != "" {
				parts = append(parts, nested)
			}
		default:
			parts = append(parts, fmt.Sprint(o.Value))
		}
	}

	return strings.Join(parts, " ")
}
