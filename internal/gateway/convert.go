package gateway

import (
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/guildrelay/guildrelay/internal/models"
)

// roleNamer returns the display name of a role, or "" when unknown.
type roleNamer func(guildID, roleID string) string

func convertUser(u *discordgo.User) models.User {
	if u == nil {
		return models.User{}
	}
	return models.User{
		ID:          u.ID,
		Username:    u.Username,
		DisplayName: u.GlobalName,
		Bot:         u.Bot,
		AvatarURL:   u.AvatarURL(""),
		CreatedAt:   createdAt(u.ID),
	}
}

// createdAt decodes the creation instant embedded in a snowflake id.
func createdAt(id string) time.Time {
	if id == "" {
		return time.Time{}
	}
	t, err := discordgo.SnowflakeTimestamp(id)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

func convertRoles(guildID string, ids []string, name roleNamer) []models.Role {
	roles := make([]models.Role, 0, len(ids))
	for _, id := range ids {
		r := models.Role{ID: id}
		if name != nil {
			r.Name = name(guildID, id)
		}
		roles = append(roles, r)
	}
	return roles
}

// convertMember converts m. Member objects embedded in messages carry no
// user or guild id, so both can be supplied by the caller.
func convertMember(guildID string, m *discordgo.Member, user *discordgo.User, name roleNamer) models.Member {
	if m.GuildID != "" {
		guildID = m.GuildID
	}
	if m.User != nil {
		user = m.User
	}
	out := models.Member{
		GuildID:  guildID,
		User:     convertUser(user),
		Roles:    convertRoles(guildID, m.Roles, name),
		JoinedAt: m.JoinedAt,
	}
	if m.Nick != "" {
		out.Nickname = models.Ptr(m.Nick)
	}
	return out
}

// convertMessage converts a full message object.
func convertMessage(m *discordgo.Message, name roleNamer) models.Message {
	out := models.Message{
		ID:          m.ID,
		ChannelID:   m.ChannelID,
		GuildID:     m.GuildID,
		Content:     models.Ptr(m.Content),
		Attachments: make([]models.Attachment, 0, len(m.Attachments)),
		HasEmbeds:   len(m.Embeds) > 0,
		CreatedAt:   m.Timestamp,
	}
	if out.CreatedAt.IsZero() {
		out.CreatedAt = createdAt(m.ID)
	}
	if m.Author != nil {
		u := convertUser(m.Author)
		out.Author = &u
	}
	if m.Member != nil {
		mem := convertMember(m.GuildID, m.Member, m.Author, name)
		out.Member = &mem
	}
	for _, a := range m.Attachments {
		if a == nil {
			continue
		}
		out.Attachments = append(out.Attachments, models.Attachment{
			ID:          a.ID,
			URL:         a.URL,
			Filename:    a.Filename,
			ContentType: a.ContentType,
		})
	}
	for _, u := range m.Mentions {
		if u != nil {
			out.MentionUserIDs = append(out.MentionUserIDs, u.ID)
		}
	}
	out.MentionRoleIDs = append(out.MentionRoleIDs, m.MentionRoles...)
	if m.MessageReference != nil {
		out.ReplyToMessageID = m.MessageReference.MessageID
	}
	return out
}

// convertUpdatedMessage converts the message carried by an update event.
// Updates caused by link unfurls arrive without author or text; those are
// marked partial so the full message is fetched.
func convertUpdatedMessage(m *discordgo.Message, name roleNamer) models.Message {
	out := convertMessage(m, name)
	if m.Author == nil {
		out.Partial = true
		if m.Content == "" {
			out.Content = nil
		}
	}
	return out
}

// convertDeletedMessage uses the cached copy when the state had one;
// otherwise only the ids are known.
func convertDeletedMessage(m *discordgo.MessageDelete, name roleNamer) models.Message {
	if m.BeforeDelete != nil {
		out := convertMessage(m.BeforeDelete, name)
		if out.GuildID == "" {
			out.GuildID = m.GuildID
		}
		return out
	}
	return models.Message{
		ID:        m.ID,
		ChannelID: m.ChannelID,
		GuildID:   m.GuildID,
		Partial:   true,
	}
}

func convertChannel(ch *discordgo.Channel) models.Channel {
	return models.Channel{
		ID:   ch.ID,
		Name: ch.Name,
		DM:   ch.Type == discordgo.ChannelTypeDM || ch.Type == discordgo.ChannelTypeGroupDM,
	}
}

func convertGuild(g *discordgo.Guild) models.Guild {
	count := g.MemberCount
	if count == 0 {
		count = g.ApproximateMemberCount
	}
	return models.Guild{ID: g.ID, Name: g.Name, MemberCount: count}
}

func convertEmoji(e discordgo.Emoji) models.Emoji {
	return models.Emoji{ID: e.ID, Name: e.Name}
}
