package telegram

import (
	"context"
	"errors"
	"fmt"
	"modbot/internal/core/domain"
	"regexp"
	"sort"
	"strconv"
	"unicode/utf8"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/rs/zerolog/log"
)

//go:generate mockery --name TelegramBot

// TelegramBot is the part of the Bot API client the transport uses.
type TelegramBot interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
	AnswerCallbackQuery(ctx context.Context, params *bot.AnswerCallbackQueryParams) (bool, error)
	SetMyCommands(ctx context.Context, params *bot.SetMyCommandsParams) (bool, error)
	GetChatMember(ctx context.Context, params *bot.GetChatMemberParams) (*models.ChatMember, error)
	GetMe(ctx context.Context) (*models.User, error)
}

const TelegramMessageLimit = 4096

// callbackAnswerLimit is the longest text a callback query answer may carry.
const callbackAnswerLimit = 200

var commandName = regexp.MustCompile(`^[a-z0-9_]{1,32}$`)

var ErrCommandsRejected = errors.New("telegram rejected the command list")

func (t *Transport) Reply(ctx context.Context, event *domain.InvocationEvent, reply domain.Reply) error {
	api := t.client()
	if api == nil {
		return domain.ErrNotConnected
	}

	chatID, err := strconv.ParseInt(event.OriginID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid chat id %q: %w", event.OriginID, err)
	}

	if event.Kind == domain.StructuredInteraction {
		if reply.Ephemeral && utf8.RuneCountInString(reply.Text) <= callbackAnswerLimit {
			_, err := api.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
				CallbackQueryID: event.ReplyToken,
				Text:            reply.Text,
				ShowAlert:       true,
			})
			return err
		}

		if _, err := api.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
			CallbackQueryID: event.ReplyToken,
		}); err != nil {
			log.Warn().Err(err).Str("eventId", event.EventID).Msg("failed to answer callback query")
		}

		return sendText(ctx, api, chatID, 0, reply.Text)
	}

	messageID, _ := strconv.Atoi(event.ReplyToken)
	return sendText(ctx, api, chatID, messageID, reply.Text)
}

func sendText(ctx context.Context, api TelegramBot, chatID int64, messageID int, text string) error {
	for _, chunk := range domain.SplitText(text, TelegramMessageLimit) {
		params := &bot.SendMessageParams{
			ChatID: chatID,
			Text:   chunk,
		}
		if messageID != 0 {
			params.ReplyParameters = &models.ReplyParameters{
				MessageID: messageID,
				ChatID:    chatID,
			}
		}

		if _, err := api.SendMessage(ctx, params); err != nil {
			return fmt.Errorf("send message: %w", err)
		}
	}

	return nil
}

// SyncCommands publishes the command menu, for every chat when originID is empty.
func (t *Transport) SyncCommands(ctx context.Context, originID string, entries []domain.CatalogEntry) (int, error) {
	api := t.client()
	if api == nil {
		return 0, domain.ErrNotConnected
	}

	commands := make([]models.BotCommand, 0, len(entries))
	for _, entry := range entries {
		if !commandName.MatchString(entry.Name) {
			log.Debug().Str("command", entry.Name).Msg("skipping command not allowed by telegram")
			continue
		}

		description := entry.Description
		if description == "" {
			description = entry.Name
		}
		commands = append(commands, models.BotCommand{Command: entry.Name, Description: description})
	}

	params := &bot.SetMyCommandsParams{Commands: commands}
	if originID == "" {
		params.Scope = &models.BotCommandScopeDefault{}
	} else {
		chatID, err := strconv.ParseInt(originID, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid chat id %q: %w", originID, err)
		}
		params.Scope = &models.BotCommandScopeChat{ChatID: chatID}
	}

	ok, err := api.SetMyCommands(ctx, params)
	if err != nil {
		return 0, fmt.Errorf("set commands: %w", err)
	}
	if !ok {
		return 0, ErrCommandsRejected
	}

	return len(commands), nil
}

func (t *Transport) CatalogKind() domain.InvocationKind {
	return domain.TextPrefixed
}

// Origins lists the group chats the bot has seen commands from.
func (t *Transport) Origins() []string {
	t.mutex.RLock()
	defer t.mutex.RUnlock()

	origins := make([]string, 0, len(t.origins))
	for id := range t.origins {
		origins = append(origins, strconv.FormatInt(id, 10))
	}
	sort.Strings(origins)

	return origins
}
