// Package models holds the platform-neutral views of gateway objects the relay
// pipeline reads. The gateway adapter converts library types into these before
// anything else sees them; optional data is expressed with pointers and a
// Partial flag instead of dynamic lookups.
package models

import "time"

// EveryoneRoleName is the display name of the synthetic role every member holds.
const EveryoneRoleName = "@everyone"

type User struct {
	ID          string
	Username    string
	DisplayName string
	Bot         bool
	AvatarURL   string
	// CreatedAt is the account creation instant; zero when unknown.
	CreatedAt time.Time
}

// Name returns the display name, falling back to the username.
func (u User) Name() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.Username
}

type Role struct {
	ID   string
	Name string
}

// IsEveryone reports whether r is the implicit role of guildID.
func (r Role) IsEveryone(guildID string) bool {
	return (guildID != "" && r.ID == guildID) || r.Name == EveryoneRoleName
}

type Channel struct {
	ID   string
	Name string
	DM   bool
}

type Guild struct {
	ID          string
	Name        string
	MemberCount int
}

// Member is a point-in-time snapshot of a user's membership in one guild.
type Member struct {
	GuildID  string
	User     User
	Roles    []Role
	Nickname *string
	JoinedAt time.Time
}

type Attachment struct {
	ID          string
	URL         string
	Filename    string
	ContentType string
}

// Message is a chat message. Partial is set when the object came from an
// event that did not carry the full message (e.g. an uncached delete).
type Message struct {
	ID        string
	ChannelID string
	GuildID   string
	// Content is nil when the text is not known.
	Content          *string
	Author           *User
	Member           *Member
	Attachments      []Attachment
	MentionUserIDs   []string
	MentionRoleIDs   []string
	ReplyToMessageID string
	HasEmbeds        bool
	CreatedAt        time.Time
	Partial          bool
}

// Text returns the content or "" when unknown.
func (m Message) Text() string {
	if m.Content == nil {
		return ""
	}
	return *m.Content
}

// MessageEdit pairs the cached pre-edit message (nil when not cached) with
// the updated one.
type MessageEdit struct {
	Before *Message
	After  Message
}

// Emoji is a reaction emoji. ID is empty for native unicode emoji.
type Emoji struct {
	ID   string
	Name string
}

type Reaction struct {
	MessageID string
	ChannelID string
	GuildID   string
	Emoji     Emoji
	// User is the reacting user; Message is the reacted-to message when cached.
	User    User
	Message *Message
}

// MemberUpdate pairs the cached pre-update member (nil when not cached) with
// the updated one.
type MemberUpdate struct {
	Before *Member
	After  Member
}

// Ptr returns a pointer to s. Handy for building optional content fields.
func Ptr(s string) *string {
	return &s
}
