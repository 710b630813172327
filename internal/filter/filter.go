// Package filter decides whether a gateway event is forwarded at all.
package filter

import (
	"github.com/guildrelay/guildrelay/internal/diff"
	"github.com/guildrelay/guildrelay/internal/models"
)

// Reason names why an event was dropped. It is used as a metrics label.
type Reason string

const (
	ReasonNone        Reason = ""
	ReasonOutOfScope  Reason = "out_of_scope"
	ReasonBotAuthor   Reason = "bot_author"
	ReasonNoopEdit    Reason = "noop_edit"
	ReasonNoopMember  Reason = "noop_member_update"
	ReasonMissingData Reason = "missing_data"
)

// Scope restricts forwarding to one guild. The zero value forwards every
// guild.
type Scope struct {
	GuildID string
}

// Global reports whether the scope accepts every guild.
func (s Scope) Global() bool {
	return s.GuildID == ""
}

// ShouldForward reports whether an event from guildID is in scope. Events
// with no guild (direct messages) always pass.
func (s Scope) ShouldForward(guildID string) bool {
	if s.Global() || guildID == "" {
		return true
	}
	return guildID == s.GuildID
}

// IsBotAuthor reports whether u is a known bot account.
func IsBotAuthor(u *models.User) bool {
	return u != nil && u.Bot
}

// IsNoopEdit reports whether an edit left the text unchanged. An unknown
// text (nil) on either side is never a no-op.
func IsNoopEdit(before, after *string) bool {
	return before != nil && after != nil && *before == *after
}

// IsNoopMemberUpdate reports whether a member update changed neither roles
// nor nickname.
func IsNoopMemberUpdate(before, after models.Member) bool {
	return diff.Empty(before, after)
}
