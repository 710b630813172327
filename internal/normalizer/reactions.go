package normalizer

import (
	"context"

	"github.com/guildrelay/guildrelay/internal/models"
)

// ReactionAdd builds the reactionAdd document. The reacted-to message is
// fetched when it was not cached so its text and author can be reported.
func (n *Normalizer) ReactionAdd(ctx context.Context, r models.Reaction) ReactionAddPayload {
	msg := models.Message{ID: r.MessageID, ChannelID: r.ChannelID, GuildID: r.GuildID, Partial: true}
	if r.Message != nil {
		msg = *r.Message
	}
	msg = n.completeMessage(ctx, msg)

	var authorID *string
	if msg.Author != nil {
		authorID = optional(msg.Author.ID)
	}

	channelName, _ := n.channelName(ctx, r.ChannelID, r.GuildID)
	user := n.completeUser(ctx, r.User)

	return ReactionAddPayload{
		MessageID:       r.MessageID,
		MessageContent:  contentOrPlaceholder(msg.Content),
		MessageAuthorID: authorID,
		ChannelID:       r.ChannelID,
		ChannelName:     channelName,
		GuildID:         optional(r.GuildID),
		Emoji:           r.Emoji.Name,
		EmojiID:         optional(r.Emoji.ID),
		UserID:          user.ID,
		Username:        user.Username,
		Timestamp:       n.nowMillis(),
	}
}
