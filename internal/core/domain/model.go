package domain

import (
	"slices"
	"time"
)

type InvocationKind string

const (
	TextPrefixed          InvocationKind = "text"
	StructuredInteraction InvocationKind = "interaction"
)

type OriginKind string

const (
	DirectMessage OriginKind = "dm"
	GuildChannel  OriginKind = "guild"
)

// CapabilityTag names a platform permission held by a principal.
type CapabilityTag string

const (
	Administrator   CapabilityTag = "administrator"
	KickMembers     CapabilityTag = "kick_members"
	BanMembers      CapabilityTag = "ban_members"
	ManageMessages  CapabilityTag = "manage_messages"
	ModerateMembers CapabilityTag = "moderate_members"
	ManageGuild     CapabilityTag = "manage_guild"
	ManageRoles     CapabilityTag = "manage_roles"
)

// ElevatedCapabilities grant basic access to every command in a guild.
var ElevatedCapabilities = []CapabilityTag{
	Administrator,
	KickMembers,
	BanMembers,
	ManageMessages,
	ModerateMembers,
	ManageGuild,
	ManageRoles,
}

// Principal is the invoker of a command, as resolved by the transport when the event arrived.
type Principal struct {
	ID            string
	Username      string
	IsOriginOwner bool
	Capabilities  []CapabilityTag
	Roles         []string
}

func (p Principal) Has(tag CapabilityTag) bool {
	return slices.Contains(p.Capabilities, tag)
}

// InvocationEvent is one inbound request to execute a command. It lives for the duration of a single dispatch.
type InvocationEvent struct {
	EventID      string
	CommandName  string
	Kind         InvocationKind
	Principal    Principal
	OriginKind   OriginKind
	OriginID     string
	GuildID      string
	RawArguments string
	// ReplyToken is the transport handle needed to answer the event (interaction token, message or query ID).
	ReplyToken string
	ReceivedAt time.Time
}

// Reply is the result of a successful handler execution. An empty Text produces no output.
type Reply struct {
	Text      string
	Ephemeral bool
}

type PermissionDecision struct {
	Allowed bool
	// Reason is for diagnostics only and is never shown to the invoker.
	Reason string
}

// Cooldown limits a command to Rate invocations per Per for each principal.
type Cooldown struct {
	Rate int
	Per  time.Duration
}

func (c Cooldown) Enabled() bool {
	return c.Rate > 0 && c.Per > 0
}

// CatalogEntry is a command as published to the platform's remote command catalog.
type CatalogEntry struct {
	Name        string
	Description string
}

type ConnectionState int32

const (
	Disconnected ConnectionState = iota
	Connecting
	Connected
	Closing
	Closed
)

func (s ConnectionState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Closing:
		return "closing"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// Installation is a user-level authorization obtained through the OAuth callback.
type Installation struct {
	UserID       int64
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}
