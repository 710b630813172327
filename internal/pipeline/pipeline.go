// Package pipeline decides, per gateway event, whether it is forwarded and
// what document is sent.
//
// Pipeline holds the pure per-kind builders: each returns the event type and
// payload to deliver, or false when the event is filtered out. Service runs
// the builders for live gateway events and hands accepted documents to a
// relay.Deliverer without waiting for the result.
package pipeline

import (
	"context"

	"github.com/guildrelay/guildrelay/common/logging"
	"github.com/guildrelay/guildrelay/internal/detect"
	"github.com/guildrelay/guildrelay/internal/filter"
	"github.com/guildrelay/guildrelay/internal/metrics"
	"github.com/guildrelay/guildrelay/internal/models"
	"github.com/guildrelay/guildrelay/internal/normalizer"
)

// Forward is an accepted event ready for delivery.
type Forward struct {
	EventType string
	// GuildID is "" for direct messages. It is used for stats only.
	GuildID string
	Data    any
}

type Pipeline struct {
	scope      filter.Scope
	normalizer *normalizer.Normalizer
	logger     *logging.Logger
}

// New returns a Pipeline. A nil logger discards.
func New(scope filter.Scope, n *normalizer.Normalizer, logger *logging.Logger) *Pipeline {
	if logger == nil {
		logger = logging.Discard()
	}
	if n == nil {
		n = normalizer.New(nil)
	}
	return &Pipeline{scope: scope, normalizer: n, logger: logger}
}

// Scope returns the configured guild scope.
func (p *Pipeline) Scope() filter.Scope {
	return p.scope
}

func (p *Pipeline) MessageCreate(ctx context.Context, m models.Message) (Forward, bool) {
	const kind = normalizer.EventMessageCreate
	metrics.EventsReceived.WithLabelValues(kind).Inc()

	if filter.IsBotAuthor(m.Author) {
		return p.drop(ctx, kind, filter.ReasonBotAuthor)
	}
	if !p.scope.ShouldForward(m.GuildID) {
		return p.drop(ctx, kind, filter.ReasonOutOfScope)
	}

	payload := p.normalizer.MessageCreate(ctx, m)
	countSignals(payload.SpamPatterns)
	return Forward{EventType: kind, GuildID: m.GuildID, Data: payload}, true
}

// MessageUpdate drops bot edits, out-of-scope edits and edits that left the
// text unchanged. The author may only be known once a partial message has
// been resolved, so the bot check runs again after completion.
func (p *Pipeline) MessageUpdate(ctx context.Context, e models.MessageEdit) (Forward, bool) {
	const kind = normalizer.EventMessageUpdate
	metrics.EventsReceived.WithLabelValues(kind).Inc()

	if filter.IsBotAuthor(e.After.Author) {
		return p.drop(ctx, kind, filter.ReasonBotAuthor)
	}
	if !p.scope.ShouldForward(e.After.GuildID) {
		return p.drop(ctx, kind, filter.ReasonOutOfScope)
	}

	e = p.normalizer.CompleteEdit(ctx, e)
	if filter.IsBotAuthor(e.After.Author) {
		return p.drop(ctx, kind, filter.ReasonBotAuthor)
	}
	if filter.IsNoopEdit(normalizer.PreviousContent(e), e.After.Content) {
		return p.drop(ctx, kind, filter.ReasonNoopEdit)
	}

	payload := p.normalizer.MessageUpdate(ctx, e)
	countSignals(payload.SpamPatterns)
	return Forward{EventType: kind, GuildID: e.After.GuildID, Data: payload}, true
}

func (p *Pipeline) MessageDelete(ctx context.Context, m models.Message) (Forward, bool) {
	const kind = normalizer.EventMessageDelete
	metrics.EventsReceived.WithLabelValues(kind).Inc()

	if filter.IsBotAuthor(m.Author) {
		return p.drop(ctx, kind, filter.ReasonBotAuthor)
	}
	if !p.scope.ShouldForward(m.GuildID) {
		return p.drop(ctx, kind, filter.ReasonOutOfScope)
	}

	return Forward{EventType: kind, GuildID: m.GuildID, Data: p.normalizer.MessageDelete(ctx, m)}, true
}

func (p *Pipeline) MemberAdd(ctx context.Context, m models.Member) (Forward, bool) {
	const kind = normalizer.EventMemberAdd
	metrics.EventsReceived.WithLabelValues(kind).Inc()

	if !p.scope.ShouldForward(m.GuildID) {
		return p.drop(ctx, kind, filter.ReasonOutOfScope)
	}
	return Forward{EventType: kind, GuildID: m.GuildID, Data: p.normalizer.MemberAdd(ctx, m)}, true
}

func (p *Pipeline) MemberRemove(ctx context.Context, m models.Member) (Forward, bool) {
	const kind = normalizer.EventMemberRemove
	metrics.EventsReceived.WithLabelValues(kind).Inc()

	if !p.scope.ShouldForward(m.GuildID) {
		return p.drop(ctx, kind, filter.ReasonOutOfScope)
	}
	return Forward{EventType: kind, GuildID: m.GuildID, Data: p.normalizer.MemberRemove(ctx, m)}, true
}

// MemberUpdate drops updates that changed neither roles nor nickname. With
// no cached previous snapshot nothing can be compared, so the update is
// dropped too.
func (p *Pipeline) MemberUpdate(ctx context.Context, u models.MemberUpdate) (Forward, bool) {
	const kind = normalizer.EventMemberUpdate
	metrics.EventsReceived.WithLabelValues(kind).Inc()

	if !p.scope.ShouldForward(u.After.GuildID) {
		return p.drop(ctx, kind, filter.ReasonOutOfScope)
	}
	if u.Before == nil {
		return p.drop(ctx, kind, filter.ReasonMissingData)
	}
	if filter.IsNoopMemberUpdate(*u.Before, u.After) {
		return p.drop(ctx, kind, filter.ReasonNoopMember)
	}
	return Forward{EventType: kind, GuildID: u.After.GuildID, Data: p.normalizer.MemberUpdate(ctx, u)}, true
}

// ReactionAdd drops reactions added by bots.
func (p *Pipeline) ReactionAdd(ctx context.Context, r models.Reaction) (Forward, bool) {
	const kind = normalizer.EventReactionAdd
	metrics.EventsReceived.WithLabelValues(kind).Inc()

	if filter.IsBotAuthor(&r.User) {
		return p.drop(ctx, kind, filter.ReasonBotAuthor)
	}
	if !p.scope.ShouldForward(r.GuildID) {
		return p.drop(ctx, kind, filter.ReasonOutOfScope)
	}
	return Forward{EventType: kind, GuildID: r.GuildID, Data: p.normalizer.ReactionAdd(ctx, r)}, true
}

func (p *Pipeline) drop(ctx context.Context, kind string, reason filter.Reason) (Forward, bool) {
	metrics.EventsFiltered.WithLabelValues(kind, string(reason)).Inc()
	p.logger.DebugContext(ctx, "event dropped",
		logging.EventType(kind),
		logging.Reason(string(reason)),
	)
	return Forward{}, false
}

// Every signal series is exported from startup, at zero.
func init() {
	for _, s := range detect.AllSignals() {
		metrics.SpamSignals.WithLabelValues(string(s))
	}
}

func countSignals(patterns []string) {
	for _, s := range patterns {
		metrics.SpamSignals.WithLabelValues(s).Inc()
	}
}
