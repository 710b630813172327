package gateway

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guildrelay/guildrelay/common/logging"
	"github.com/guildrelay/guildrelay/internal/metrics"
	"github.com/guildrelay/guildrelay/internal/models"
)

type recordingHandler struct {
	mu        sync.Mutex
	creates   []models.Message
	edits     []models.MessageEdit
	deletes   []models.Message
	adds      []models.Member
	removes   []models.Member
	updates   []models.MemberUpdate
	reactions []models.Reaction
	panicOn   string
}

func (h *recordingHandler) HandleMessageCreate(_ context.Context, m models.Message) {
	if h.panicOn == "create" {
		panic("handler failure")
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.creates = append(h.creates, m)
}

func (h *recordingHandler) HandleMessageUpdate(_ context.Context, e models.MessageEdit) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.edits = append(h.edits, e)
}

func (h *recordingHandler) HandleMessageDelete(_ context.Context, m models.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.deletes = append(h.deletes, m)
}

func (h *recordingHandler) HandleMemberAdd(_ context.Context, m models.Member) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.adds = append(h.adds, m)
}

func (h *recordingHandler) HandleMemberRemove(_ context.Context, m models.Member) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removes = append(h.removes, m)
}

func (h *recordingHandler) HandleMemberUpdate(_ context.Context, u models.MemberUpdate) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.updates = append(h.updates, u)
}

func (h *recordingHandler) HandleReactionAdd(_ context.Context, r models.Reaction) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.reactions = append(h.reactions, r)
}

func newTestClient(t *testing.T, h Handler, logs *bytes.Buffer) (*Client, *discordgo.Session) {
	t.Helper()
	session, err := discordgo.New("Bot test-token")
	require.NoError(t, err)
	session.State = newTestState(t)

	c := newClient(session, Config{Token: "test-token", MessageCacheSize: 50}, h, logging.NewWithWriter(logs, slog.LevelDebug, "json"))
	c.resolver = NewResolver(session.State, &fakeREST{})
	return c, session
}

func TestNew_RequiresToken(t *testing.T) {
	_, err := New(Config{}, &recordingHandler{}, nil)
	require.Error(t, err)
}

func TestNew_ConfiguresSession(t *testing.T) {
	c, err := New(Config{Token: "x", MessageCacheSize: 250}, &recordingHandler{}, logging.Discard())
	require.NoError(t, err)

	assert.Equal(t, Intents, c.session.Identify.Intents)
	assert.Equal(t, 250, c.session.State.MaxMessageCount)
	assert.True(t, c.session.State.TrackMembers)
	assert.False(t, c.Connected())
}

func TestClient_ConnectionState(t *testing.T) {
	var logs bytes.Buffer
	c, s := newTestClient(t, &recordingHandler{}, &logs)

	c.onReady(s, &discordgo.Ready{User: &discordgo.User{ID: "b1", Username: "relay"}, Guilds: []*discordgo.Guild{{ID: "g1"}}})
	assert.True(t, c.Connected())
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.GatewayConnected))
	assert.Contains(t, logs.String(), `"guild_scope":"ALL"`)
	assert.Contains(t, logs.String(), `"relay_url":"not configured"`)

	c.onDisconnect(s, &discordgo.Disconnect{})
	assert.False(t, c.Connected())
	assert.Equal(t, float64(0), testutil.ToFloat64(metrics.GatewayConnected))

	c.onResumed(s, &discordgo.Resumed{})
	assert.True(t, c.Connected())
}

func TestClient_ReadyBannerScope(t *testing.T) {
	var logs bytes.Buffer
	session, err := discordgo.New("Bot x")
	require.NoError(t, err)
	c := newClient(session, Config{GuildID: "g1", RelayURL: "http://router"}, &recordingHandler{}, logging.NewWithWriter(&logs, slog.LevelInfo, "json"))

	c.onReady(session, &discordgo.Ready{})
	assert.Contains(t, logs.String(), `"guild_scope":"g1"`)
	assert.Contains(t, logs.String(), `"relay_url":"http://router"`)
}

func TestClient_MessageEvents(t *testing.T) {
	h := &recordingHandler{}
	c, s := newTestClient(t, h, &bytes.Buffer{})

	c.onMessageCreate(s, &discordgo.MessageCreate{Message: &discordgo.Message{
		ID: "m2", ChannelID: "c1", GuildID: "g1", Content: "hola",
		Author: &discordgo.User{ID: "u1", Username: "ana01"},
		Member: &discordgo.Member{Roles: []string{"r1"}},
	}})
	require.Len(t, h.creates, 1)
	assert.Equal(t, "Member", h.creates[0].Member.Roles[0].Name)

	c.onMessageUpdate(s, &discordgo.MessageUpdate{
		Message:      &discordgo.Message{ID: "m1", ChannelID: "c1", GuildID: "g1", Content: "edited", Author: &discordgo.User{ID: "u1"}},
		BeforeUpdate: &discordgo.Message{ID: "m1", ChannelID: "c1", GuildID: "g1", Content: "cached text", Author: &discordgo.User{ID: "u1"}},
	})
	require.Len(t, h.edits, 1)
	require.NotNil(t, h.edits[0].Before)
	assert.Equal(t, "cached text", *h.edits[0].Before.Content)
	assert.Equal(t, "edited", *h.edits[0].After.Content)

	c.onMessageDelete(s, &discordgo.MessageDelete{Message: &discordgo.Message{ID: "m3", ChannelID: "c1", GuildID: "g1"}})
	require.Len(t, h.deletes, 1)
	assert.True(t, h.deletes[0].Partial)

	c.onMessageCreate(s, &discordgo.MessageCreate{})
	assert.Len(t, h.creates, 1)
}

func TestClient_MemberEvents(t *testing.T) {
	h := &recordingHandler{}
	c, s := newTestClient(t, h, &bytes.Buffer{})
	user := &discordgo.User{ID: "u1", Username: "ana01"}

	c.onMemberAdd(s, &discordgo.GuildMemberAdd{Member: &discordgo.Member{GuildID: "g1", User: user}})
	c.onMemberRemove(s, &discordgo.GuildMemberRemove{Member: &discordgo.Member{GuildID: "g1", User: user}})
	c.onMemberUpdate(s, &discordgo.GuildMemberUpdate{
		Member:       &discordgo.Member{GuildID: "g1", User: user, Roles: []string{"r1"}},
		BeforeUpdate: &discordgo.Member{GuildID: "g1", Roles: []string{}},
	})
	c.onMemberUpdate(s, &discordgo.GuildMemberUpdate{Member: &discordgo.Member{GuildID: "g1", User: user}})

	require.Len(t, h.adds, 1)
	require.Len(t, h.removes, 1)
	require.Len(t, h.updates, 2)
	require.NotNil(t, h.updates[0].Before)
	assert.Equal(t, "u1", h.updates[0].Before.User.ID)
	assert.Equal(t, "Member", h.updates[0].After.Roles[0].Name)
	assert.Nil(t, h.updates[1].Before)
}

func TestClient_ReactionEvents(t *testing.T) {
	h := &recordingHandler{}
	c, s := newTestClient(t, h, &bytes.Buffer{})

	c.onReactionAdd(s, &discordgo.MessageReactionAdd{
		MessageReaction: &discordgo.MessageReaction{UserID: "u2", MessageID: "m1", ChannelID: "c1", GuildID: "g1", Emoji: discordgo.Emoji{Name: "👍"}},
	})
	c.onReactionAdd(s, &discordgo.MessageReactionAdd{
		MessageReaction: &discordgo.MessageReaction{UserID: "u7", MessageID: "m404", ChannelID: "c1", GuildID: "g1", Emoji: discordgo.Emoji{ID: "e1", Name: "party"}},
		Member:          &discordgo.Member{User: &discordgo.User{ID: "u7", Username: "dani"}},
	})

	require.Len(t, h.reactions, 2)
	first := h.reactions[0]
	assert.True(t, first.User.Bot, "reacting user resolved from cached members")
	require.NotNil(t, first.Message)
	assert.Equal(t, "cached text", *first.Message.Content)

	second := h.reactions[1]
	assert.Equal(t, "dani", second.User.Username)
	assert.Nil(t, second.Message)
	assert.Equal(t, "e1", second.Emoji.ID)
}

func TestClient_RecoversHandlerPanic(t *testing.T) {
	var logs bytes.Buffer
	c, s := newTestClient(t, &recordingHandler{panicOn: "create"}, &logs)
	before := testutil.ToFloat64(metrics.HandlerPanics)

	assert.NotPanics(t, func() {
		c.onMessageCreate(s, &discordgo.MessageCreate{Message: &discordgo.Message{ID: "m1", ChannelID: "c1"}})
	})
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.HandlerPanics))
	assert.Contains(t, logs.String(), `"msg":"unhandled fault"`)
	assert.Contains(t, logs.String(), `"event_type":"messageCreate"`)
}

func TestClient_OpenRequiresHandler(t *testing.T) {
	c, err := New(Config{Token: "x"}, nil, logging.Discard())
	require.NoError(t, err)
	require.ErrorContains(t, c.Open(), "handler is not set")

	h := &recordingHandler{}
	c.SetHandler(h)
	assert.Same(t, h, c.handler)
}

func TestClient_MemberRemoveKeepsCachedRoles(t *testing.T) {
	h := &recordingHandler{}
	c, s := newTestClient(t, h, &bytes.Buffer{})
	user := &discordgo.User{ID: "u9", Username: "eva"}

	joined := &discordgo.GuildMemberAdd{Member: &discordgo.Member{GuildID: "g1", User: user, Roles: []string{"r1"}}}
	require.NoError(t, s.State.OnInterface(s, joined))
	c.onMemberAdd(s, joined)

	left := &discordgo.GuildMemberRemove{Member: &discordgo.Member{GuildID: "g1", User: user}}
	require.NoError(t, s.State.OnInterface(s, left))
	_, err := s.State.Member("g1", "u9")
	require.Error(t, err, "state drops the member before handlers run")
	c.onMemberRemove(s, left)

	require.Len(t, h.removes, 1)
	require.Len(t, h.removes[0].Roles, 1)
	assert.Equal(t, "r1", h.removes[0].Roles[0].ID)
	assert.Equal(t, "Member", h.removes[0].Roles[0].Name)
	assert.Zero(t, c.roles.len())
}

func TestClient_RoleCacheSources(t *testing.T) {
	h := &recordingHandler{}
	c, s := newTestClient(t, h, &bytes.Buffer{})

	c.onGuildCreate(s, &discordgo.GuildCreate{Guild: &discordgo.Guild{ID: "g1", Members: []*discordgo.Member{
		{User: &discordgo.User{ID: "u1"}, Roles: []string{"r1"}},
	}}})
	c.onMembersChunk(s, &discordgo.GuildMembersChunk{GuildID: "g1", Members: []*discordgo.Member{
		{User: &discordgo.User{ID: "u3"}, Roles: []string{"r1"}},
	}})
	c.onMessageCreate(s, &discordgo.MessageCreate{Message: &discordgo.Message{
		ID: "m5", ChannelID: "c1", GuildID: "g1", Content: "hola",
		Author: &discordgo.User{ID: "u4"},
		Member: &discordgo.Member{Roles: []string{"r1"}},
	}})
	c.onMemberUpdate(s, &discordgo.GuildMemberUpdate{Member: &discordgo.Member{
		GuildID: "g1", User: &discordgo.User{ID: "u1"}, Roles: []string{},
	}})
	assert.Equal(t, 3, c.roles.len())

	for _, id := range []string{"u1", "u3", "u4"} {
		c.onMemberRemove(s, &discordgo.GuildMemberRemove{Member: &discordgo.Member{GuildID: "g1", User: &discordgo.User{ID: id}}})
	}
	require.Len(t, h.removes, 3)
	assert.Empty(t, h.removes[0].Roles, "last update removed every role")
	assert.Len(t, h.removes[1].Roles, 1)
	assert.Len(t, h.removes[2].Roles, 1)
	assert.Zero(t, c.roles.len())

	c.onMembersChunk(s, &discordgo.GuildMembersChunk{GuildID: "g1", Members: []*discordgo.Member{
		{User: &discordgo.User{ID: "u5"}, Roles: []string{"r1"}},
	}})
	c.onGuildDelete(s, &discordgo.GuildDelete{Guild: &discordgo.Guild{ID: "g1"}})
	assert.Zero(t, c.roles.len())
}
