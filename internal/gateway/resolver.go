package gateway

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/guildrelay/guildrelay/internal/models"
	"github.com/guildrelay/guildrelay/internal/normalizer"
)

// restClient is the subset of *discordgo.Session used for lookups the
// state cache cannot answer.
type restClient interface {
	Channel(channelID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	ChannelMessage(channelID, messageID string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	Guild(guildID string, options ...discordgo.RequestOption) (*discordgo.Guild, error)
	User(userID string, options ...discordgo.RequestOption) (*discordgo.User, error)
}

// Resolver answers lookups from the session state and falls back to the
// REST API. It implements normalizer.Resolver.
type Resolver struct {
	state *discordgo.State
	rest  restClient
}

func NewResolver(state *discordgo.State, rest restClient) *Resolver {
	return &Resolver{state: state, rest: rest}
}

func (r *Resolver) Channel(ctx context.Context, channelID string) (models.Channel, error) {
	if r.state != nil {
		if ch, err := r.state.Channel(channelID); err == nil {
			return convertChannel(ch), nil
		}
	}
	ch, err := r.rest.Channel(channelID, discordgo.WithContext(ctx))
	if err != nil {
		return models.Channel{}, fmt.Errorf("fetch channel %s: %w", channelID, err)
	}
	return convertChannel(ch), nil
}

func (r *Resolver) Message(ctx context.Context, channelID, messageID string) (models.Message, error) {
	if r.state != nil {
		if m, err := r.state.Message(channelID, messageID); err == nil && m.Author != nil {
			return convertMessage(m, r.RoleName), nil
		}
	}
	m, err := r.rest.ChannelMessage(channelID, messageID, discordgo.WithContext(ctx))
	if err != nil {
		return models.Message{}, fmt.Errorf("fetch message %s: %w", messageID, err)
	}
	return convertMessage(m, r.RoleName), nil
}

func (r *Resolver) Guild(ctx context.Context, guildID string) (models.Guild, error) {
	if r.state != nil {
		if g, err := r.state.Guild(guildID); err == nil {
			return convertGuild(g), nil
		}
	}
	g, err := r.rest.Guild(guildID, discordgo.WithContext(ctx))
	if err != nil {
		return models.Guild{}, fmt.Errorf("fetch guild %s: %w", guildID, err)
	}
	return convertGuild(g), nil
}

func (r *Resolver) User(ctx context.Context, userID string) (models.User, error) {
	u, err := r.rest.User(userID, discordgo.WithContext(ctx))
	if err != nil {
		return models.User{}, fmt.Errorf("fetch user %s: %w", userID, err)
	}
	return convertUser(u), nil
}

// RoleName returns the cached name of a role, or "" when unknown.
func (r *Resolver) RoleName(guildID, roleID string) string {
	if r.state == nil || guildID == "" {
		return ""
	}
	role, err := r.state.Role(guildID, roleID)
	if err != nil {
		return ""
	}
	return role.Name
}

// cachedMessage returns the state copy of a message, or nil.
func (r *Resolver) cachedMessage(channelID, messageID string) *models.Message {
	if r.state == nil {
		return nil
	}
	m, err := r.state.Message(channelID, messageID)
	if err != nil {
		return nil
	}
	out := convertMessage(m, r.RoleName)
	return &out
}

// cachedUser returns a guild member's user from the state, if cached.
func (r *Resolver) cachedUser(guildID, userID string) (models.User, bool) {
	if r.state == nil || guildID == "" {
		return models.User{}, false
	}
	m, err := r.state.Member(guildID, userID)
	if err != nil || m.User == nil {
		return models.User{}, false
	}
	return convertUser(m.User), true
}

var (
	_ normalizer.Resolver = (*Resolver)(nil)
	_ restClient          = (*discordgo.Session)(nil)
)
