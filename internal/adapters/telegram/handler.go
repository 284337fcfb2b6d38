package telegram

import (
	"context"
	"modbot/internal/core/domain"
	"modbot/internal/core/port"
	"strconv"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/rs/zerolog/log"
)

const commandPrefix = "/"

func (t *Transport) handle(sink port.EventSink) bot.HandlerFunc {
	return func(ctx context.Context, b *bot.Bot, update *models.Update) {
		t.recovered()

		event, ok := t.convert(ctx, b, update)
		if !ok {
			return
		}

		sink.Dispatch(event)
	}
}

// convert turns an update into an invocation event. Updates that are not commands are skipped.
func (t *Transport) convert(ctx context.Context, api TelegramBot, update *models.Update) (*domain.InvocationEvent, bool) {
	if update == nil {
		return nil, false
	}

	switch {
	case update.Message != nil:
		return t.fromMessage(ctx, api, update.ID, update.Message)
	case update.CallbackQuery != nil:
		return t.fromCallback(ctx, api, update.ID, update.CallbackQuery)
	default:
		return nil, false
	}
}

func (t *Transport) fromMessage(ctx context.Context, api TelegramBot, updateID int64, msg *models.Message) (*domain.InvocationEvent, bool) {
	if msg.From == nil || msg.From.IsBot {
		return nil, false
	}

	text := msg.Text
	if msg.Photo != nil {
		text = msg.Caption
	}

	name, args, ok := domain.ParsePrefixed(commandPrefix, text)
	if !ok {
		return nil, false
	}
	name, _, _ = strings.Cut(name, "@")

	log.Debug().Str("message", text).Msg("received command")

	event := &domain.InvocationEvent{
		EventID:      strconv.FormatInt(updateID, 10),
		CommandName:  name,
		Kind:         domain.TextPrefixed,
		OriginID:     strconv.FormatInt(msg.Chat.ID, 10),
		RawArguments: args,
		ReplyToken:   strconv.Itoa(msg.ID),
		ReceivedAt:   time.Now(),
	}
	t.resolveOrigin(ctx, api, event, msg.Chat, *msg.From)

	return event, true
}

func (t *Transport) fromCallback(ctx context.Context, api TelegramBot, updateID int64, query *models.CallbackQuery) (*domain.InvocationEvent, bool) {
	if query.From.IsBot {
		return nil, false
	}

	var chat models.Chat
	switch {
	case query.Message.Message != nil:
		chat = query.Message.Message.Chat
	case query.Message.InaccessibleMessage != nil:
		chat = query.Message.InaccessibleMessage.Chat
	default:
		return nil, false
	}

	name := domain.ParseCommand(query.Data)
	if name == "" {
		return nil, false
	}

	event := &domain.InvocationEvent{
		EventID:      strconv.FormatInt(updateID, 10),
		CommandName:  name,
		Kind:         domain.StructuredInteraction,
		OriginID:     strconv.FormatInt(chat.ID, 10),
		RawArguments: domain.ParseCommandArgs(query.Data),
		ReplyToken:   query.ID,
		ReceivedAt:   time.Now(),
	}
	t.resolveOrigin(ctx, api, event, chat, query.From)

	return event, true
}

// resolveOrigin fills in origin and principal facts. Group membership is looked up once per event.
func (t *Transport) resolveOrigin(ctx context.Context, api TelegramBot, event *domain.InvocationEvent, chat models.Chat, user models.User) {
	event.Principal = domain.Principal{
		ID:       strconv.FormatInt(user.ID, 10),
		Username: getUserNameOrFirstName(user),
	}

	if chat.Type == models.ChatTypePrivate {
		event.OriginKind = domain.DirectMessage
		return
	}

	event.OriginKind = domain.GuildChannel
	event.GuildID = event.OriginID
	t.remember(chat.ID)

	member, err := api.GetChatMember(ctx, &bot.GetChatMemberParams{ChatID: chat.ID, UserID: user.ID})
	if err != nil {
		log.Warn().Err(err).Int64("chatId", chat.ID).Int64("userId", user.ID).Msg("failed to look up chat member")
		return
	}

	applyMember(&event.Principal, member)
}

func applyMember(p *domain.Principal, member *models.ChatMember) {
	if member == nil {
		return
	}

	switch member.Type {
	case models.ChatMemberTypeOwner:
		p.IsOriginOwner = true
		p.Capabilities = []domain.CapabilityTag{domain.Administrator}
		if member.Owner != nil && member.Owner.CustomTitle != "" {
			p.Roles = append(p.Roles, member.Owner.CustomTitle)
		}
	case models.ChatMemberTypeAdministrator:
		admin := member.Administrator
		if admin == nil {
			return
		}

		if admin.CanDeleteMessages {
			p.Capabilities = append(p.Capabilities, domain.ManageMessages)
		}
		if admin.CanRestrictMembers {
			p.Capabilities = append(p.Capabilities, domain.KickMembers, domain.BanMembers, domain.ModerateMembers)
		}
		if admin.CanPromoteMembers {
			p.Capabilities = append(p.Capabilities, domain.ManageRoles)
		}
		if admin.CanChangeInfo {
			p.Capabilities = append(p.Capabilities, domain.ManageGuild)
		}
		if admin.CustomTitle != "" {
			p.Roles = append(p.Roles, admin.CustomTitle)
		}
	}
}

func getUserNameOrFirstName(user models.User) string {
	if user.Username == "" {
		return user.FirstName
	}

	return "@" + user.Username
}
