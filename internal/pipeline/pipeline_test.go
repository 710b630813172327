package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guildrelay/guildrelay/internal/detect"
	"github.com/guildrelay/guildrelay/internal/filter"
	"github.com/guildrelay/guildrelay/internal/metrics"
	"github.com/guildrelay/guildrelay/internal/models"
	"github.com/guildrelay/guildrelay/internal/normalizer"
)

var fixedNow = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

type stubResolver struct {
	messages map[string]models.Message
}

func (s stubResolver) Channel(_ context.Context, id string) (models.Channel, error) {
	if id == "c-general" {
		return models.Channel{ID: id, Name: "general"}, nil
	}
	return models.Channel{}, normalizer.ErrNotFound
}

func (s stubResolver) Message(_ context.Context, channelID, id string) (models.Message, error) {
	if m, ok := s.messages[channelID+"/"+id]; ok {
		return m, nil
	}
	return models.Message{}, errors.New("unknown message")
}

func (s stubResolver) Guild(_ context.Context, id string) (models.Guild, error) {
	if id == "g1" {
		return models.Guild{ID: id, Name: "Growth Hackers", MemberCount: 42}, nil
	}
	return models.Guild{}, normalizer.ErrNotFound
}

func (s stubResolver) User(context.Context, string) (models.User, error) {
	return models.User{}, normalizer.ErrNotFound
}

func newTestPipeline(guildID string, r normalizer.Resolver) *Pipeline {
	if r == nil {
		r = stubResolver{}
	}
	n := normalizer.New(r, normalizer.WithClock(func() time.Time { return fixedNow }))
	return New(filter.Scope{GuildID: guildID}, n, nil)
}

func filtered(kind string, reason filter.Reason) float64 {
	return testutil.ToFloat64(metrics.EventsFiltered.WithLabelValues(kind, string(reason)))
}

var human = &models.User{ID: "u1", Username: "ana01"}

func TestMessageCreate_SpamMessage(t *testing.T) {
	p := newTestPipeline("g1", nil)
	before := testutil.ToFloat64(metrics.SpamSignals.WithLabelValues("herramienta_compartida"))

	fwd, ok := p.MessageCreate(context.Background(), models.Message{
		ID:        "m1",
		ChannelID: "c-general",
		GuildID:   "g1",
		Content:   models.Ptr("Escríbeme por privado, tengo descuento en Semrush https://x.co/promo"),
		Author:    human,
		CreatedAt: fixedNow,
	})
	require.True(t, ok)
	assert.Equal(t, normalizer.EventMessageCreate, fwd.EventType)
	assert.Equal(t, "g1", fwd.GuildID)

	payload, ok := fwd.Data.(normalizer.MessageCreatePayload)
	require.True(t, ok)
	assert.Equal(t, []string{
		"intento_contacto_privado",
		"contiene_enlace",
		"oferta_comercial",
		"herramienta_compartida",
	}, payload.SpamPatterns)
	assert.Equal(t, []string{"https://x.co/promo"}, payload.URLsDetected)
	assert.True(t, payload.HasLinks)
	assert.Equal(t, "general", payload.ChannelName)

	after := testutil.ToFloat64(metrics.SpamSignals.WithLabelValues("herramienta_compartida"))
	assert.Equal(t, before+1, after)
}

func TestMessageCreate_Filters(t *testing.T) {
	tests := []struct {
		name   string
		scope  string
		msg    models.Message
		want   bool
		reason filter.Reason
	}{
		{"bot author", "", models.Message{GuildID: "g1", Author: &models.User{ID: "b", Bot: true}}, false, filter.ReasonBotAuthor},
		{"bot author in DM", "g1", models.Message{Author: &models.User{ID: "b", Bot: true}}, false, filter.ReasonBotAuthor},
		{"other guild", "g1", models.Message{GuildID: "g2", Author: human}, false, filter.ReasonOutOfScope},
		{"configured guild", "g1", models.Message{GuildID: "g1", Author: human}, true, ""},
		{"global scope", "", models.Message{GuildID: "g9", Author: human}, true, ""},
		{"DM with scope", "g1", models.Message{Author: human}, true, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestPipeline(tt.scope, nil)
			var before float64
			if !tt.want {
				before = filtered(normalizer.EventMessageCreate, tt.reason)
			}

			_, ok := p.MessageCreate(context.Background(), tt.msg)
			assert.Equal(t, tt.want, ok)
			if !tt.want {
				assert.Equal(t, before+1, filtered(normalizer.EventMessageCreate, tt.reason))
			}
		})
	}
}

func TestMessageUpdate_NoopEdit(t *testing.T) {
	p := newTestPipeline("", nil)
	before := filtered(normalizer.EventMessageUpdate, filter.ReasonNoopEdit)

	_, ok := p.MessageUpdate(context.Background(), models.MessageEdit{
		Before: &models.Message{ID: "m1", ChannelID: "c-general", GuildID: "g1", Content: models.Ptr("same"), Author: human},
		After:  models.Message{ID: "m1", ChannelID: "c-general", GuildID: "g1", Content: models.Ptr("same"), Author: human},
	})

	assert.False(t, ok)
	assert.Equal(t, before+1, filtered(normalizer.EventMessageUpdate, filter.ReasonNoopEdit))
}

func TestMessageUpdate_EmbedUnfurlIsNoop(t *testing.T) {
	p := newTestPipeline("", nil)

	_, ok := p.MessageUpdate(context.Background(), models.MessageEdit{
		Before: &models.Message{ID: "m1", ChannelID: "c-general", Content: models.Ptr("see https://x.io"), Author: human},
		After:  models.Message{ID: "m1", ChannelID: "c-general", Content: models.Ptr(""), HasEmbeds: true},
	})
	assert.False(t, ok)
}

func TestMessageUpdate_Forwarded(t *testing.T) {
	p := newTestPipeline("g1", nil)

	fwd, ok := p.MessageUpdate(context.Background(), models.MessageEdit{
		Before: &models.Message{ID: "m1", ChannelID: "c-general", GuildID: "g1", Content: models.Ptr("hola"), Author: human},
		After:  models.Message{ID: "m1", ChannelID: "c-general", GuildID: "g1", Content: models.Ptr("hola, sígueme en mi canal")},
	})
	require.True(t, ok)

	payload := fwd.Data.(normalizer.MessageUpdatePayload)
	assert.Equal(t, "hola", payload.OldContent)
	assert.Equal(t, "hola, sígueme en mi canal", payload.NewContent)
	assert.Equal(t, []string{"autopromocion"}, payload.SpamPatterns)
	require.NotNil(t, payload.Author.ID)
	assert.Equal(t, "u1", *payload.Author.ID)
}

func TestMessageUpdate_UncachedBeforeIsForwarded(t *testing.T) {
	p := newTestPipeline("", nil)

	fwd, ok := p.MessageUpdate(context.Background(), models.MessageEdit{
		After: models.Message{ID: "m1", ChannelID: "c-general", Content: models.Ptr("x"), Author: human},
	})
	require.True(t, ok)
	assert.Equal(t, normalizer.NotCachedContent, fwd.Data.(normalizer.MessageUpdatePayload).OldContent)
}

func TestMessageUpdate_UnresolvedAfterIsForwarded(t *testing.T) {
	tests := []struct {
		name       string
		oldContent string
	}{
		{"text message", "hola"},
		{"attachment only message", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestPipeline("", nil)

			fwd, ok := p.MessageUpdate(context.Background(), models.MessageEdit{
				Before: &models.Message{ID: "m9", ChannelID: "c-general", Content: models.Ptr(tt.oldContent), Author: human},
				After:  models.Message{ID: "m9", ChannelID: "c-general", Partial: true},
			})
			require.True(t, ok)

			payload := fwd.Data.(normalizer.MessageUpdatePayload)
			assert.Equal(t, tt.oldContent, payload.OldContent)
			assert.Equal(t, normalizer.NotCachedContent, payload.NewContent)
			assert.Empty(t, payload.SpamPatterns)
			assert.False(t, payload.HasLinks)
		})
	}
}

func TestMessageUpdate_BotDiscoveredAfterFetch(t *testing.T) {
	r := stubResolver{messages: map[string]models.Message{
		"c-general/m1": {ID: "m1", ChannelID: "c-general", Content: models.Ptr("new"), Author: &models.User{ID: "b", Bot: true}},
	}}
	p := newTestPipeline("", r)

	_, ok := p.MessageUpdate(context.Background(), models.MessageEdit{
		After: models.Message{ID: "m1", ChannelID: "c-general", Partial: true},
	})
	assert.False(t, ok)
}

func TestMessageUpdate_OutOfScope(t *testing.T) {
	p := newTestPipeline("g1", nil)
	_, ok := p.MessageUpdate(context.Background(), models.MessageEdit{
		After: models.Message{ID: "m1", GuildID: "g2", Content: models.Ptr("x"), Author: human},
	})
	assert.False(t, ok)
}

func TestMessageDelete(t *testing.T) {
	p := newTestPipeline("g1", nil)

	fwd, ok := p.MessageDelete(context.Background(), models.Message{ID: "m1", ChannelID: "c-general", GuildID: "g1", Partial: true})
	require.True(t, ok)
	payload := fwd.Data.(normalizer.MessageDeletePayload)
	assert.Equal(t, normalizer.NotCachedContent, payload.Content)
	assert.Nil(t, payload.Author.ID)

	_, ok = p.MessageDelete(context.Background(), models.Message{ID: "m2", GuildID: "g1", Author: &models.User{Bot: true}})
	assert.False(t, ok)

	_, ok = p.MessageDelete(context.Background(), models.Message{ID: "m3", GuildID: "g2"})
	assert.False(t, ok)
}

func TestMemberEvents_Scope(t *testing.T) {
	p := newTestPipeline("g1", nil)
	ctx := context.Background()
	bot := models.User{ID: "b", Username: "helper", Bot: true}

	fwd, ok := p.MemberAdd(ctx, models.Member{GuildID: "g1", User: bot})
	require.True(t, ok, "membership events have no bot rule")
	payload := fwd.Data.(normalizer.MemberAddPayload)
	assert.Equal(t, "Growth Hackers", payload.GuildName)
	require.NotNil(t, payload.MemberCount)
	assert.Equal(t, 42, *payload.MemberCount)

	_, ok = p.MemberAdd(ctx, models.Member{GuildID: "g2", User: bot})
	assert.False(t, ok)

	_, ok = p.MemberRemove(ctx, models.Member{GuildID: "g1", User: bot})
	assert.True(t, ok)
	_, ok = p.MemberRemove(ctx, models.Member{GuildID: "g2", User: bot})
	assert.False(t, ok)
}

func TestMemberUpdate(t *testing.T) {
	p := newTestPipeline("", nil)
	ctx := context.Background()
	user := models.User{ID: "u1", Username: "ana01"}
	base := models.Member{GuildID: "g1", User: user, Roles: []models.Role{{ID: "g1", Name: "@everyone"}, {ID: "r1", Name: "Member"}}}

	t.Run("no change", func(t *testing.T) {
		before := filtered(normalizer.EventMemberUpdate, filter.ReasonNoopMember)
		_, ok := p.MemberUpdate(ctx, models.MemberUpdate{Before: &base, After: base})
		assert.False(t, ok)
		assert.Equal(t, before+1, filtered(normalizer.EventMemberUpdate, filter.ReasonNoopMember))
	})

	t.Run("uncached before", func(t *testing.T) {
		_, ok := p.MemberUpdate(ctx, models.MemberUpdate{After: base})
		assert.False(t, ok)
	})

	t.Run("role added", func(t *testing.T) {
		after := base
		after.Roles = append([]models.Role{{ID: "r2", Name: "Verified"}}, base.Roles...)

		fwd, ok := p.MemberUpdate(ctx, models.MemberUpdate{Before: &base, After: after})
		require.True(t, ok)
		payload := fwd.Data.(normalizer.MemberUpdatePayload)
		assert.Equal(t, []normalizer.RoleRef{{ID: "r2", Name: "Verified"}}, payload.AddedRoles)
		assert.Empty(t, payload.RemovedRoles)
		assert.False(t, payload.NicknameChanged)
	})

	t.Run("nickname set", func(t *testing.T) {
		after := base
		after.Nickname = models.Ptr("Ana")

		fwd, ok := p.MemberUpdate(ctx, models.MemberUpdate{Before: &base, After: after})
		require.True(t, ok)
		assert.True(t, fwd.Data.(normalizer.MemberUpdatePayload).NicknameChanged)
	})

	t.Run("out of scope", func(t *testing.T) {
		scoped := newTestPipeline("g2", nil)
		after := base
		after.Nickname = models.Ptr("Ana")
		_, ok := scoped.MemberUpdate(ctx, models.MemberUpdate{Before: &base, After: after})
		assert.False(t, ok)
	})
}

func TestReactionAdd(t *testing.T) {
	p := newTestPipeline("g1", nil)
	ctx := context.Background()

	fwd, ok := p.ReactionAdd(ctx, models.Reaction{
		MessageID: "m1",
		ChannelID: "c-general",
		GuildID:   "g1",
		Emoji:     models.Emoji{Name: "👍"},
		User:      models.User{ID: "u2", Username: "beto"},
		Message:   &models.Message{ID: "m1", ChannelID: "c-general", GuildID: "g1", Content: models.Ptr("hola"), Author: human},
	})
	require.True(t, ok)
	payload := fwd.Data.(normalizer.ReactionAddPayload)
	assert.Equal(t, "hola", payload.MessageContent)
	assert.Nil(t, payload.EmojiID)
	assert.Equal(t, "beto", payload.Username)

	_, ok = p.ReactionAdd(ctx, models.Reaction{GuildID: "g1", User: models.User{ID: "b", Bot: true}})
	assert.False(t, ok)

	_, ok = p.ReactionAdd(ctx, models.Reaction{GuildID: "g2", User: models.User{ID: "u2"}})
	assert.False(t, ok)
}

func TestEventsReceivedCounted(t *testing.T) {
	p := newTestPipeline("g1", nil)
	before := testutil.ToFloat64(metrics.EventsReceived.WithLabelValues(normalizer.EventMemberRemove))

	p.MemberRemove(context.Background(), models.Member{GuildID: "g2"})
	p.MemberRemove(context.Background(), models.Member{GuildID: "g1"})

	assert.Equal(t, before+2, testutil.ToFloat64(metrics.EventsReceived.WithLabelValues(normalizer.EventMemberRemove)))
}

func TestSpamSignalSeriesExistAtStartup(t *testing.T) {
	assert.GreaterOrEqual(t, testutil.CollectAndCount(metrics.SpamSignals), len(detect.AllSignals()))
}
