package normalizer

import (
	"context"

	"github.com/guildrelay/guildrelay/internal/detect"
	"github.com/guildrelay/guildrelay/internal/models"
)

// MessageCreate builds the messageCreate document.
func (n *Normalizer) MessageCreate(ctx context.Context, m models.Message) MessageCreatePayload {
	channelName, dm := n.channelName(ctx, m.ChannelID, m.GuildID)
	text := m.Text()
	report := detect.Analyze(text)

	p := MessageCreatePayload{
		ID:               m.ID,
		Content:          text,
		ChannelID:        m.ChannelID,
		ChannelName:      channelName,
		GuildID:          optional(m.GuildID),
		IsDM:             dm || m.GuildID == "",
		Author:           n.messageAuthor(m),
		Attachments:      make([]AttachmentRef, 0, len(m.Attachments)),
		URLsDetected:     report.URLs,
		SpamPatterns:     detect.Strings(report.Patterns),
		HasLinks:         report.HasLinks,
		MentionsUsers:    nonNil(m.MentionUserIDs),
		MentionsRoles:    nonNil(m.MentionRoleIDs),
		ReplyToMessageID: optional(m.ReplyToMessageID),
		Timestamp:        n.createdMillis(m),
	}
	for _, a := range m.Attachments {
		p.Attachments = append(p.Attachments, AttachmentRef{
			ID:       a.ID,
			URL:      a.URL,
			Filename: a.Filename,
			Type:     optional(a.ContentType),
		})
	}
	return p
}

func (n *Normalizer) messageAuthor(m models.Message) MessageAuthor {
	author := MessageAuthor{Roles: []RoleRef{}}
	if m.Author == nil {
		return author
	}
	author.ID = m.Author.ID
	author.Username = m.Author.Username
	author.DisplayName = m.Author.Name()
	author.Bot = m.Author.Bot
	author.AccountAgeDays = AccountAgeDays(m.Author.CreatedAt, n.now())
	if m.Member != nil {
		if m.Member.Nickname != nil && *m.Member.Nickname != "" {
			author.DisplayName = *m.Member.Nickname
		}
		for _, r := range m.Member.Roles {
			if r.IsEveryone(m.GuildID) {
				continue
			}
			author.Roles = append(author.Roles, RoleRef{ID: r.ID, Name: r.Name})
		}
	}
	return author
}

func (n *Normalizer) createdMillis(m models.Message) int64 {
	if m.CreatedAt.IsZero() {
		return n.nowMillis()
	}
	return m.CreatedAt.UnixMilli()
}

// CompleteEdit resolves the updated message when the gateway delivered it
// partially and carries over the cached author. When an update only attached
// link embeds and carries no text, the cached text is kept so the edit reads
// as unchanged.
func (n *Normalizer) CompleteEdit(ctx context.Context, e models.MessageEdit) models.MessageEdit {
	e.After = n.completeMessage(ctx, e.After)
	if e.Before == nil {
		return e
	}
	if e.After.Author == nil {
		e.After.Author = e.Before.Author
	}
	if e.Before.Content != nil && e.After.HasEmbeds && e.After.Text() == "" {
		e.After.Content = e.Before.Content
	}
	return e
}

// PreviousContent returns the cached text before an edit, or nil.
func PreviousContent(e models.MessageEdit) *string {
	if e.Before == nil {
		return nil
	}
	return e.Before.Content
}

// MessageUpdate builds the messageUpdate document. Detectors run over the
// new text; when it could not be resolved it renders as the not-cached
// placeholder and yields no signals.
func (n *Normalizer) MessageUpdate(ctx context.Context, e models.MessageEdit) MessageUpdatePayload {
	after := e.After
	channelName, _ := n.channelName(ctx, after.ChannelID, after.GuildID)
	newText := after.Text()
	report := detect.Analyze(newText)

	return MessageUpdatePayload{
		ID:           after.ID,
		OldContent:   contentOrPlaceholder(PreviousContent(e)),
		NewContent:   contentOrPlaceholder(after.Content),
		ChannelID:    after.ChannelID,
		ChannelName:  channelName,
		GuildID:      optional(after.GuildID),
		Author:       authorRef(after.Author),
		URLsDetected: report.URLs,
		SpamPatterns: detect.Strings(report.Patterns),
		HasLinks:     report.HasLinks,
		Timestamp:    n.nowMillis(),
	}
}

// MessageDelete builds the messageDelete document from whatever was cached.
// Deleted messages cannot be fetched, so no resolution is attempted for the
// content.
func (n *Normalizer) MessageDelete(ctx context.Context, m models.Message) MessageDeletePayload {
	channelName, _ := n.channelName(ctx, m.ChannelID, m.GuildID)
	return MessageDeletePayload{
		ID:          m.ID,
		Content:     contentOrPlaceholder(m.Content),
		ChannelID:   m.ChannelID,
		ChannelName: channelName,
		GuildID:     optional(m.GuildID),
		Author:      authorRef(m.Author),
		Timestamp:   n.nowMillis(),
	}
}

func authorRef(u *models.User) AuthorRef {
	if u == nil {
		return AuthorRef{}
	}
	return AuthorRef{ID: optional(u.ID), Username: optional(u.Username)}
}
