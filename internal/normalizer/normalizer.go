// Package normalizer maps gateway events onto the fixed JSON documents the
// relay forwards.
//
// Every builder degrades instead of failing: an unresolvable channel becomes
// "unknown", unknown message text becomes NotCachedContent, and optional
// values marshal as null. Collections are always non-nil so they marshal as
// [] rather than null.
//
// Objects the gateway only delivered partially (uncached messages, reactions
// on old messages) are completed through a Resolver before fields are read.
// A failed lookup is logged at debug level and the payload is built from what
// is available.
package normalizer

import (
	"context"
	"errors"
	"time"

	"github.com/guildrelay/guildrelay/common/logging"
	"github.com/guildrelay/guildrelay/internal/models"
)

const (
	// NotCachedContent stands in for message text the relay never saw.
	NotCachedContent = "[mensaje no cacheado]"
	// DMChannelName is reported for direct-message channels.
	DMChannelName = "DM"
	// UnknownChannelName is reported when a channel cannot be resolved.
	UnknownChannelName = "unknown"
	// NewAccountDays is the age below which an account is flagged as new.
	NewAccountDays = 7

	msPerDay = int64(24 * time.Hour / time.Millisecond)
)

// ErrNotFound is returned by resolvers that have no data for an id.
var ErrNotFound = errors.New("not found")

// Resolver completes partial objects, typically from the gateway's state
// cache first and the platform REST API second.
type Resolver interface {
	Channel(ctx context.Context, channelID string) (models.Channel, error)
	Message(ctx context.Context, channelID, messageID string) (models.Message, error)
	Guild(ctx context.Context, guildID string) (models.Guild, error)
	User(ctx context.Context, userID string) (models.User, error)
}

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithClock overrides the time source used for account ages and event
// timestamps.
func WithClock(now func() time.Time) Option {
	return func(n *Normalizer) {
		n.now = now
	}
}

// WithLogger sets the logger for resolver fallbacks.
func WithLogger(logger *logging.Logger) Option {
	return func(n *Normalizer) {
		n.logger = logger
	}
}

// Normalizer builds payloads. It holds no per-event state and is safe for
// concurrent use.
type Normalizer struct {
	resolver Resolver
	now      func() time.Time
	logger   *logging.Logger
}

// New returns a Normalizer. A nil resolver resolves nothing.
func New(resolver Resolver, opts ...Option) *Normalizer {
	if resolver == nil {
		resolver = nopResolver{}
	}
	n := &Normalizer{
		resolver: resolver,
		now:      time.Now,
		logger:   logging.Default(),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// AccountAgeDays returns whole days between created and now, or nil when the
// creation instant is unknown.
func AccountAgeDays(created, now time.Time) *int64 {
	if created.IsZero() {
		return nil
	}
	ms := now.Sub(created).Milliseconds()
	days := ms / msPerDay
	if ms < 0 && ms%msPerDay != 0 {
		days--
	}
	return &days
}

// IsNewAccount reports whether age is known and below NewAccountDays.
func IsNewAccount(age *int64) bool {
	return age != nil && *age < NewAccountDays
}

func (n *Normalizer) nowMillis() int64 {
	return n.now().UnixMilli()
}

func (n *Normalizer) channelName(ctx context.Context, channelID, guildID string) (name string, dm bool) {
	if channelID == "" {
		return UnknownChannelName, guildID == ""
	}
	ch, err := n.resolver.Channel(ctx, channelID)
	if err != nil {
		n.partial(ctx, "channel", channelID, err)
		if guildID == "" {
			return DMChannelName, true
		}
		return UnknownChannelName, false
	}
	if ch.DM {
		return DMChannelName, true
	}
	if ch.Name == "" {
		return UnknownChannelName, guildID == ""
	}
	return ch.Name, false
}

func (n *Normalizer) guild(ctx context.Context, guildID string) (name string, memberCount *int) {
	if guildID == "" {
		return "", nil
	}
	g, err := n.resolver.Guild(ctx, guildID)
	if err != nil {
		n.partial(ctx, "guild", guildID, err)
		return "", nil
	}
	count := g.MemberCount
	return g.Name, &count
}

// completeMessage fetches the full message when m is partial or has no
// content. The original is returned unchanged when the fetch fails.
func (n *Normalizer) completeMessage(ctx context.Context, m models.Message) models.Message {
	if !m.Partial && m.Content != nil {
		return m
	}
	if m.ChannelID == "" || m.ID == "" {
		return m
	}
	full, err := n.resolver.Message(ctx, m.ChannelID, m.ID)
	if err != nil {
		n.partial(ctx, "message", m.ID, err)
		return m
	}
	if full.GuildID == "" {
		full.GuildID = m.GuildID
	}
	if full.Author == nil {
		full.Author = m.Author
	}
	full.Partial = false
	return full
}

func (n *Normalizer) partial(ctx context.Context, kind, id string, err error) {
	n.logger.DebugContext(ctx, "partial object lookup failed, using defaults",
		"object", kind,
		"id", id,
		logging.Error(err),
	)
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func millis(t time.Time) *int64 {
	if t.IsZero() {
		return nil
	}
	ms := t.UnixMilli()
	return &ms
}

func contentOrPlaceholder(s *string) string {
	if s == nil {
		return NotCachedContent
	}
	return *s
}

func roleRefs(roles []models.Role) []RoleRef {
	out := make([]RoleRef, 0, len(roles))
	for _, r := range roles {
		out = append(out, RoleRef{ID: r.ID, Name: r.Name})
	}
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

type nopResolver struct{}

func (nopResolver) Channel(context.Context, string) (models.Channel, error) {
	return models.Channel{}, ErrNotFound
}

func (nopResolver) Message(context.Context, string, string) (models.Message, error) {
	return models.Message{}, ErrNotFound
}

func (nopResolver) Guild(context.Context, string) (models.Guild, error) {
	return models.Guild{}, ErrNotFound
}

func (nopResolver) User(context.Context, string) (models.User, error) {
	return models.User{}, ErrNotFound
}
