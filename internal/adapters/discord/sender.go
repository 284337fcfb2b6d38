package discord

import (
	"context"
	"fmt"
	"modbot/internal/core/domain"
	"regexp"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog/log"
)

// DiscordSession is the part of the REST client the transport uses.
type DiscordSession interface {
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageSendReply(channelID string, content string, reference *discordgo.MessageReference, options ...discordgo.RequestOption) (*discordgo.Message, error)
	InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error
	FollowupMessageCreate(interaction *discordgo.Interaction, wait bool, data *discordgo.WebhookParams, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ApplicationCommandBulkOverwrite(appID string, guildID string, commands []*discordgo.ApplicationCommand, options ...discordgo.RequestOption) ([]*discordgo.ApplicationCommand, error)
}

const DiscordMessageLimit = 2000

const argumentsOption = "arguments"

var commandName = regexp.MustCompile(`^[-_a-z0-9]{1,32}$`)

func (t *Transport) Reply(ctx context.Context, event *domain.InvocationEvent, reply domain.Reply) error {
	api, appID := t.client()
	if api == nil {
		return domain.ErrNotConnected
	}

	chunks := domain.SplitText(reply.Text, DiscordMessageLimit)
	if len(chunks) == 0 {
		return nil
	}

	if event.Kind == domain.StructuredInteraction {
		return respondInteraction(ctx, api, appID, event, reply.Ephemeral, chunks)
	}

	reference := &discordgo.MessageReference{
		MessageID: event.ReplyToken,
		ChannelID: event.OriginID,
		GuildID:   event.GuildID,
	}
	if _, err := api.ChannelMessageSendReply(event.OriginID, chunks[0], reference, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("send reply: %w", err)
	}

	for _, chunk := range chunks[1:] {
		if _, err := api.ChannelMessageSend(event.OriginID, chunk, discordgo.WithContext(ctx)); err != nil {
			return fmt.Errorf("send message: %w", err)
		}
	}

	return nil
}

func respondInteraction(ctx context.Context, api DiscordSession, appID string, event *domain.InvocationEvent, ephemeral bool, chunks []string) error {
	var flags discordgo.MessageFlags
	if ephemeral {
		flags = discordgo.MessageFlagsEphemeral
	}

	interaction := &discordgo.Interaction{ID: event.EventID, AppID: appID, Token: event.ReplyToken}
	err := api.InteractionRespond(interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Content: chunks[0], Flags: flags},
	}, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("respond to interaction: %w", err)
	}

	for _, chunk := range chunks[1:] {
		if _, err := api.FollowupMessageCreate(interaction, false, &discordgo.WebhookParams{
			Content: chunk,
			Flags:   flags,
		}, discordgo.WithContext(ctx)); err != nil {
			return fmt.Errorf("send followup: %w", err)
		}
	}

	return nil
}

// SyncCommands overwrites the slash command list, globally when originID is empty.
func (t *Transport) SyncCommands(ctx context.Context, originID string, entries []domain.CatalogEntry) (int, error) {
	api, appID := t.client()
	if api == nil || appID == "" {
		return 0, domain.ErrNotConnected
	}

	commands := make([]*discordgo.ApplicationCommand, 0, len(entries))
	for _, entry := range entries {
		if !commandName.MatchString(entry.Name) {
			log.Debug().Str("command", entry.Name).Msg("skipping command not allowed by discord")
			continue
		}

		description := entry.Description
		if description == "" {
			description = entry.Name
		}

		commands = append(commands, &discordgo.ApplicationCommand{
			Name:        entry.Name,
			Description: description,
			Type:        discordgo.ChatApplicationCommand,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        argumentsOption,
					Description: "Command arguments",
				},
			},
		})
	}

	created, err := api.ApplicationCommandBulkOverwrite(appID, originID, commands, discordgo.WithContext(ctx))
	if err != nil {
		return 0, fmt.Errorf("overwrite commands: %w", err)
	}

	return len(created), nil
}

func (t *Transport) CatalogKind() domain.InvocationKind {
	return domain.StructuredInteraction
}
