package service

import (
	"context"
	"errors"
	"fmt"
	"modbot/internal/core/domain"
	"modbot/internal/core/port"

	"github.com/rs/zerolog/log"
)

const (
	msgBotLacksCapability = "❌ I don't have the required permissions to execute this command."
	msgMissingArgument    = "❌ Missing required argument: %s"
	msgBadArgument        = "❌ Invalid argument provided."
	msgOnCooldown         = "❌ Command is on cooldown. Try again in %.2f seconds."
	msgExpired            = "⏰ This command took too long to respond. Please try again."
	msgUnexpected         = "❌ An unexpected error occurred. Please try again later."
)

type Classifier struct {
	mapper port.FailureMapper
}

// NewClassifier builds a classifier. mapper recognises transport SDK errors and may be nil.
func NewClassifier(mapper port.FailureMapper) *Classifier {
	return &Classifier{mapper: mapper}
}

// Classify maps a handler failure into the failure taxonomy.
func (c *Classifier) Classify(err error, event *domain.InvocationEvent) domain.FailureRecord {
	record := domain.FailureRecord{Kind: domain.Unclassified}
	if event != nil {
		record.OriginEventID = event.EventID
	}

	if err == nil {
		return record
	}
	record.Message = err.Error()

	var failure *domain.Failure
	switch {
	case errors.As(err, &failure):
		record.Kind = failure.Kind
		record.Param = failure.Param
		record.RetryAfter = failure.RetryAfter
	case errors.Is(err, context.DeadlineExceeded):
		record.Kind = domain.Expired
	case errors.Is(err, context.Canceled):
		record.Kind = domain.Cancelled
	case c.mapper != nil:
		if kind, ok := c.mapper.MapFailure(err); ok {
			record.Kind = kind
		}
	}

	record.Retriable = record.Kind.Retriable()
	return record
}

type Responder struct {
	gate    Authorizer
	replier port.Replier
}

func NewResponder(gate Authorizer, replier port.Replier) *Responder {
	return &Responder{gate: gate, replier: replier}
}

// Respond reports a classified failure to the invoker when policy allows it. It never panics or returns an error.
func (r *Responder) Respond(ctx context.Context, record domain.FailureRecord, event *domain.InvocationEvent) {
	l := log.With().
		Str("eventId", record.OriginEventID).
		Str("failure", record.Kind.String()).
		Logger()

	defer func() {
		if rec := recover(); rec != nil {
			l.Error().Interface("panic", rec).Msg("recovered while responding to failure")
		}
	}()

	if event != nil {
		l = l.With().Str("command", event.CommandName).Str("kind", string(event.Kind)).Logger()
	}

	failuresClassified.WithLabelValues(record.Kind.String()).Inc()

	var text string
	switch record.Kind {
	case domain.UnknownCommand, domain.CallerLacksPermission, domain.Cancelled:
		l.Debug().Str("error", record.Message).Msg("ignoring failure silently")
		return
	case domain.BotLacksCapability:
		l.Warn().Str("error", record.Message).Msg("bot is missing permissions")
		text = msgBotLacksCapability
	case domain.MissingArgument:
		l.Info().Str("param", record.Param).Msg("missing required argument")
		text = fmt.Sprintf(msgMissingArgument, record.Param)
	case domain.BadArgument:
		l.Info().Str("error", record.Message).Msg("invalid argument")
		text = msgBadArgument
	case domain.OnCooldown:
		l.Info().Dur("retryAfter", record.RetryAfter).Msg("command on cooldown")
		text = fmt.Sprintf(msgOnCooldown, record.RetryAfter.Seconds())
	case domain.Expired:
		l.Warn().Msg("command handler timed out")
		text = msgExpired
	default:
		l.Error().Str("error", record.Message).Msg("unhandled error in command")
		text = msgUnexpected
	}

	if event == nil || r.replier == nil {
		return
	}

	if decision := r.gate.BasicAccess(event); !decision.Allowed {
		l.Debug().Str("reason", decision.Reason).Msg("invoker lacks basic access, suppressing error message")
		return
	}

	reply := domain.Reply{Text: text, Ephemeral: event.Kind == domain.StructuredInteraction}
	if err := r.replier.Reply(ctx, event, reply); err != nil {
		l.Error().Err(err).Msg("failed to send error message")
	}
}
