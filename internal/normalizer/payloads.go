package normalizer

// Event type names as they appear in the envelope's event_type field.
const (
	EventMessageCreate = "messageCreate"
	EventMessageUpdate = "messageUpdate"
	EventMessageDelete = "messageDelete"
	EventMemberAdd     = "memberAdd"
	EventMemberRemove  = "memberRemove"
	EventMemberUpdate  = "memberUpdate"
	EventReactionAdd   = "reactionAdd"
)

// EventTypes lists every forwarded event type.
var EventTypes = []string{
	EventMessageCreate,
	EventMessageUpdate,
	EventMessageDelete,
	EventMemberAdd,
	EventMemberRemove,
	EventMemberUpdate,
	EventReactionAdd,
}

type RoleRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type AttachmentRef struct {
	ID       string  `json:"id"`
	URL      string  `json:"url"`
	Filename string  `json:"filename"`
	Type     *string `json:"type"`
}

// AuthorRef identifies a message author that may not be known.
type AuthorRef struct {
	ID       *string `json:"id"`
	Username *string `json:"username"`
}

type MessageAuthor struct {
	ID             string    `json:"id"`
	Username       string    `json:"username"`
	DisplayName    string    `json:"display_name"`
	Bot            bool      `json:"bot"`
	AccountAgeDays *int64    `json:"account_age_days"`
	Roles          []RoleRef `json:"roles"`
}

type MessageCreatePayload struct {
	ID               string          `json:"id"`
	Content          string          `json:"content"`
	ChannelID        string          `json:"channel_id"`
	ChannelName      string          `json:"channel_name"`
	GuildID          *string         `json:"guild_id"`
	IsDM             bool            `json:"is_dm"`
	Author           MessageAuthor   `json:"author"`
	Attachments      []AttachmentRef `json:"attachments"`
	URLsDetected     []string        `json:"urls_detected"`
	SpamPatterns     []string        `json:"spam_patterns"`
	HasLinks         bool            `json:"has_links"`
	MentionsUsers    []string        `json:"mentions_users"`
	MentionsRoles    []string        `json:"mentions_roles"`
	ReplyToMessageID *string         `json:"reply_to_message_id"`
	Timestamp        int64           `json:"timestamp"`
}

type MessageUpdatePayload struct {
	ID           string    `json:"id"`
	OldContent   string    `json:"old_content"`
	NewContent   string    `json:"new_content"`
	ChannelID    string    `json:"channel_id"`
	ChannelName  string    `json:"channel_name"`
	GuildID      *string   `json:"guild_id"`
	Author       AuthorRef `json:"author"`
	URLsDetected []string  `json:"urls_detected"`
	SpamPatterns []string  `json:"spam_patterns"`
	HasLinks     bool      `json:"has_links"`
	Timestamp    int64     `json:"timestamp"`
}

type MessageDeletePayload struct {
	ID          string    `json:"id"`
	Content     string    `json:"content"`
	ChannelID   string    `json:"channel_id"`
	ChannelName string    `json:"channel_name"`
	GuildID     *string   `json:"guild_id"`
	Author      AuthorRef `json:"author"`
	Timestamp   int64     `json:"timestamp"`
}

type MemberAddPayload struct {
	UserID         string  `json:"user_id"`
	Username       string  `json:"username"`
	DisplayName    string  `json:"display_name"`
	AvatarURL      *string `json:"avatar_url"`
	AccountAgeDays *int64  `json:"account_age_days"`
	IsNewAccount   bool    `json:"is_new_account"`
	GuildID        string  `json:"guild_id"`
	GuildName      string  `json:"guild_name"`
	MemberCount    *int    `json:"member_count"`
	JoinedAt       *int64  `json:"joined_at"`
}

type MemberRemovePayload struct {
	UserID      string    `json:"user_id"`
	Username    string    `json:"username"`
	GuildID     string    `json:"guild_id"`
	GuildName   string    `json:"guild_name"`
	MemberCount *int      `json:"member_count"`
	Roles       []RoleRef `json:"roles"`
	Timestamp   int64     `json:"timestamp"`
}

type MemberUpdatePayload struct {
	UserID          string    `json:"user_id"`
	Username        string    `json:"username"`
	GuildID         string    `json:"guild_id"`
	OldNickname     *string   `json:"old_nickname"`
	NewNickname     *string   `json:"new_nickname"`
	NicknameChanged bool      `json:"nickname_changed"`
	AddedRoles      []RoleRef `json:"added_roles"`
	RemovedRoles    []RoleRef `json:"removed_roles"`
	CurrentRoles    []RoleRef `json:"current_roles"`
	Timestamp       int64     `json:"timestamp"`
}

type ReactionAddPayload struct {
	MessageID       string  `json:"message_id"`
	MessageContent  string  `json:"message_content"`
	MessageAuthorID *string `json:"message_author_id"`
	ChannelID       string  `json:"channel_id"`
	ChannelName     string  `json:"channel_name"`
	GuildID         *string `json:"guild_id"`
	Emoji           string  `json:"emoji"`
	EmojiID         *string `json:"emoji_id"`
	UserID          string  `json:"user_id"`
	Username        string  `json:"username"`
	Timestamp       int64   `json:"timestamp"`
}
