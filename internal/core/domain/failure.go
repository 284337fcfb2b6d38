package domain

import (
	"errors"
	"fmt"
	"time"
)

// FailureKind is the closed taxonomy every dispatch failure is mapped into.
type FailureKind int

const (
	Unclassified FailureKind = iota
	UnknownCommand
	CallerLacksPermission
	BotLacksCapability
	MissingArgument
	BadArgument
	OnCooldown
	Expired
	Cancelled
)

func (k FailureKind) String() string {
	switch k {
	case UnknownCommand:
		return "unknown_command"
	case CallerLacksPermission:
		return "caller_lacks_permission"
	case BotLacksCapability:
		return "bot_lacks_capability"
	case MissingArgument:
		return "missing_argument"
	case BadArgument:
		return "bad_argument"
	case OnCooldown:
		return "on_cooldown"
	case Expired:
		return "expired"
	case Cancelled:
		return "cancelled"
	default:
		return "unclassified"
	}
}

// Retriable reports whether the invoker may succeed by simply trying again later.
func (k FailureKind) Retriable() bool {
	return k == OnCooldown || k == Expired
}

// Failure is an error carrying its taxonomy kind. Handlers return it to choose how a failure is reported.
type Failure struct {
	Kind       FailureKind
	Param      string
	RetryAfter time.Duration
	Err        error
}

func (f *Failure) Error() string {
	switch {
	case f.Kind == MissingArgument:
		return fmt.Sprintf("%s: %s", f.Kind, f.Param)
	case f.Kind == OnCooldown:
		return fmt.Sprintf("%s: retry after %s", f.Kind, f.RetryAfter)
	case f.Err != nil:
		return fmt.Sprintf("%s: %s", f.Kind, f.Err)
	default:
		return f.Kind.String()
	}
}

func (f *Failure) Unwrap() error {
	return f.Err
}

func NewMissingArgument(param string) error {
	return &Failure{Kind: MissingArgument, Param: param}
}

func NewBadArgument(err error) error {
	return &Failure{Kind: BadArgument, Err: err}
}

func NewBotLacksCapability(err error) error {
	return &Failure{Kind: BotLacksCapability, Err: err}
}

func NewCallerLacksPermission(reason string) error {
	return &Failure{Kind: CallerLacksPermission, Err: errors.New(reason)}
}

func NewOnCooldown(retryAfter time.Duration) error {
	return &Failure{Kind: OnCooldown, RetryAfter: retryAfter}
}

// FailureRecord is a classified failure. It is consumed once by the responder and then only logged.
type FailureRecord struct {
	Kind          FailureKind
	OriginEventID string
	Message       string
	Retriable     bool
	RetryAfter    time.Duration
	Param         string
}
