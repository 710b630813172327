// Package gateway connects to the Discord gateway and feeds its events to
// the relay pipeline.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/bwmarrin/discordgo"

	"github.com/guildrelay/guildrelay/common/logging"
	"github.com/guildrelay/guildrelay/internal/metrics"
	"github.com/guildrelay/guildrelay/internal/models"
	"github.com/guildrelay/guildrelay/internal/normalizer"
)

// Intents requests guild, member, message (with content) and reaction
// events for guilds and direct messages.
const Intents = discordgo.IntentsGuilds |
	discordgo.IntentsGuildMembers |
	discordgo.IntentsGuildMessages |
	discordgo.IntentsGuildMessageReactions |
	discordgo.IntentsDirectMessages |
	discordgo.IntentsDirectMessageReactions |
	discordgo.IntentsMessageContent

// Handler receives converted gateway events. pipeline.Service implements it.
type Handler interface {
	HandleMessageCreate(ctx context.Context, m models.Message)
	HandleMessageUpdate(ctx context.Context, e models.MessageEdit)
	HandleMessageDelete(ctx context.Context, m models.Message)
	HandleMemberAdd(ctx context.Context, m models.Member)
	HandleMemberRemove(ctx context.Context, m models.Member)
	HandleMemberUpdate(ctx context.Context, u models.MemberUpdate)
	HandleReactionAdd(ctx context.Context, r models.Reaction)
}

type Config struct {
	Token string
	// MessageCacheSize is the number of messages kept per channel so edits
	// and deletes can report the previous text.
	MessageCacheSize int
	// GuildID and RelayURL are only reported in the ready banner.
	GuildID  string
	RelayURL string
}

// Client owns one gateway session.
type Client struct {
	session  *discordgo.Session
	resolver *Resolver
	handler  Handler
	cfg      Config
	logger   *logging.Logger
	roles    *roleCache

	ctx       context.Context
	cancel    context.CancelFunc
	connected atomic.Bool
}

// New creates the session and registers handlers. Call Open to connect.
// handler may be nil and bound later with SetHandler, since the pipeline
// usually needs this client's Resolver first.
func New(cfg Config, handler Handler, logger *logging.Logger) (*Client, error) {
	if cfg.Token == "" {
		return nil, errors.New("discord token is required")
	}
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}
	return newClient(session, cfg, handler, logger), nil
}

func newClient(session *discordgo.Session, cfg Config, handler Handler, logger *logging.Logger) *Client {
	if logger == nil {
		logger = logging.Default()
	}
	session.Identify.Intents = Intents
	session.StateEnabled = true
	if session.State != nil {
		session.State.MaxMessageCount = cfg.MessageCacheSize
		session.State.TrackMembers = true
		session.State.TrackRoles = true
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		session:  session,
		resolver: NewResolver(session.State, session),
		handler:  handler,
		cfg:      cfg,
		logger:   logger,
		roles:    newRoleCache(),
		ctx:      ctx,
		cancel:   cancel,
	}

	session.AddHandler(c.onReady)
	session.AddHandler(c.onResumed)
	session.AddHandler(c.onDisconnect)
	session.AddHandler(c.onMessageCreate)
	session.AddHandler(c.onMessageUpdate)
	session.AddHandler(c.onMessageDelete)
	session.AddHandler(c.onMemberAdd)
	session.AddHandler(c.onMemberRemove)
	session.AddHandler(c.onMemberUpdate)
	session.AddHandler(c.onReactionAdd)
	session.AddHandler(c.onGuildCreate)
	session.AddHandler(c.onGuildDelete)
	session.AddHandler(c.onMembersChunk)
	return c
}

// Resolver returns the lookup service backed by this session.
func (c *Client) Resolver() *Resolver {
	return c.resolver
}

// SetHandler binds the event handler. Call it before Open.
func (c *Client) SetHandler(h Handler) {
	c.handler = h
}

// Open connects to the gateway. Reconnects are handled by the session.
func (c *Client) Open() error {
	if c.handler == nil {
		return errors.New("gateway handler is not set")
	}
	if err := c.session.Open(); err != nil {
		return fmt.Errorf("failed to open gateway session: %w", err)
	}
	return nil
}

// Close disconnects and aborts pending lookups.
func (c *Client) Close() error {
	c.cancel()
	c.setConnected(false)
	return c.session.Close()
}

// Connected reports whether the session is ready.
func (c *Client) Connected() bool {
	return c.connected.Load()
}

func (c *Client) setConnected(v bool) {
	c.connected.Store(v)
	if v {
		metrics.GatewayConnected.Set(1)
	} else {
		metrics.GatewayConnected.Set(0)
	}
}

// guard runs fn and logs instead of crashing when it panics.
func (c *Client) guard(kind string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			metrics.HandlerPanics.Inc()
			c.logger.Error("unhandled fault",
				logging.EventType(kind),
				logging.Panic(r),
			)
		}
	}()
	fn()
}

func (c *Client) onReady(_ *discordgo.Session, r *discordgo.Ready) {
	c.setConnected(true)

	scope := c.cfg.GuildID
	if scope == "" {
		scope = "ALL"
	}
	relayURL := c.cfg.RelayURL
	if relayURL == "" {
		relayURL = "not configured"
	}
	bot := ""
	if r.User != nil {
		bot = r.User.String()
	}
	c.logger.Info("gateway ready",
		"bot", bot,
		"guild_scope", scope,
		"guilds", len(r.Guilds),
		"relay_url", relayURL,
	)
}

func (c *Client) onResumed(_ *discordgo.Session, _ *discordgo.Resumed) {
	c.setConnected(true)
	c.logger.Info("gateway session resumed")
}

func (c *Client) onDisconnect(_ *discordgo.Session, _ *discordgo.Disconnect) {
	c.setConnected(false)
	c.logger.Warn("gateway disconnected, waiting for reconnect")
}

func (c *Client) onMessageCreate(_ *discordgo.Session, m *discordgo.MessageCreate) {
	c.guard(normalizer.EventMessageCreate, func() {
		if m.Message == nil {
			return
		}
		if m.Member != nil && m.Author != nil {
			member := *m.Member
			member.User = m.Author
			c.roles.store(m.GuildID, &member)
		}
		c.handler.HandleMessageCreate(c.ctx, convertMessage(m.Message, c.resolver.RoleName))
	})
}

func (c *Client) onMessageUpdate(_ *discordgo.Session, m *discordgo.MessageUpdate) {
	c.guard(normalizer.EventMessageUpdate, func() {
		if m.Message == nil {
			return
		}
		edit := models.MessageEdit{After: convertUpdatedMessage(m.Message, c.resolver.RoleName)}
		if m.BeforeUpdate != nil {
			before := convertMessage(m.BeforeUpdate, c.resolver.RoleName)
			edit.Before = &before
		}
		c.handler.HandleMessageUpdate(c.ctx, edit)
	})
}

func (c *Client) onMessageDelete(_ *discordgo.Session, m *discordgo.MessageDelete) {
	c.guard(normalizer.EventMessageDelete, func() {
		if m.Message == nil {
			return
		}
		c.handler.HandleMessageDelete(c.ctx, convertDeletedMessage(m, c.resolver.RoleName))
	})
}

func (c *Client) onMemberAdd(_ *discordgo.Session, m *discordgo.GuildMemberAdd) {
	c.guard(normalizer.EventMemberAdd, func() {
		if m.Member == nil {
			return
		}
		c.roles.store(m.GuildID, m.Member)
		c.handler.HandleMemberAdd(c.ctx, convertMember(m.GuildID, m.Member, nil, c.resolver.RoleName))
	})
}

func (c *Client) onMemberRemove(_ *discordgo.Session, m *discordgo.GuildMemberRemove) {
	c.guard(normalizer.EventMemberRemove, func() {
		if m.Member == nil {
			return
		}
		member := *m.Member
		if member.User != nil {
			if ids, ok := c.roles.take(m.GuildID, member.User.ID); ok && len(member.Roles) == 0 {
				member.Roles = ids
			}
		}
		c.handler.HandleMemberRemove(c.ctx, convertMember(m.GuildID, &member, nil, c.resolver.RoleName))
	})
}

func (c *Client) onMemberUpdate(_ *discordgo.Session, m *discordgo.GuildMemberUpdate) {
	c.guard(normalizer.EventMemberUpdate, func() {
		if m.Member == nil {
			return
		}
		c.roles.store(m.GuildID, m.Member)
		u := models.MemberUpdate{After: convertMember(m.GuildID, m.Member, nil, c.resolver.RoleName)}
		if m.BeforeUpdate != nil {
			before := convertMember(m.GuildID, m.BeforeUpdate, m.Member.User, c.resolver.RoleName)
			u.Before = &before
		}
		c.handler.HandleMemberUpdate(c.ctx, u)
	})
}

func (c *Client) onReactionAdd(_ *discordgo.Session, r *discordgo.MessageReactionAdd) {
	c.guard(normalizer.EventReactionAdd, func() {
		if r.MessageReaction == nil {
			return
		}
		reaction := models.Reaction{
			MessageID: r.MessageID,
			ChannelID: r.ChannelID,
			GuildID:   r.GuildID,
			Emoji:     convertEmoji(r.Emoji),
			User:      models.User{ID: r.UserID},
			Message:   c.resolver.cachedMessage(r.ChannelID, r.MessageID),
		}
		if r.Member != nil && r.Member.User != nil {
			reaction.User = convertUser(r.Member.User)
		} else if u, ok := c.resolver.cachedUser(r.GuildID, r.UserID); ok {
			reaction.User = u
		}
		c.handler.HandleReactionAdd(c.ctx, reaction)
	})
}

// The handlers below only keep the role cache in step with the session.

func (c *Client) onGuildCreate(_ *discordgo.Session, g *discordgo.GuildCreate) {
	c.guard("guildCreate", func() {
		if g.Guild == nil {
			return
		}
		for _, m := range g.Members {
			c.roles.store(g.ID, m)
		}
	})
}

func (c *Client) onGuildDelete(_ *discordgo.Session, g *discordgo.GuildDelete) {
	c.guard("guildDelete", func() {
		if g.Guild == nil {
			return
		}
		c.roles.forgetGuild(g.ID)
	})
}

func (c *Client) onMembersChunk(_ *discordgo.Session, chunk *discordgo.GuildMembersChunk) {
	c.guard("guildMembersChunk", func() {
		for _, m := range chunk.Members {
			c.roles.store(chunk.GuildID, m)
		}
	})
}
