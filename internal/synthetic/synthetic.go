// Package synthetic fabricates gateway events for exercising a relay
// destination without a live Discord session.
package synthetic

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/brianvoe/gofakeit/v6"

	"github.com/guildrelay/guildrelay/internal/models"
	"github.com/guildrelay/guildrelay/internal/normalizer"
	"github.com/guildrelay/guildrelay/internal/pipeline"
)

const (
	GuildID   = "100000000000000001"
	GuildName = "Synthetic Guild"
	ChannelID = "100000000000000002"
	Channel   = "relay-test"
)

// Generator builds one fake event of each type. It also acts as the
// normalizer's resolver so every lookup succeeds offline.
type Generator struct {
	faker *gofakeit.Faker
	now   func() time.Time
}

// New returns a Generator. A zero seed picks a random one.
func New(seed int64) *Generator {
	return &Generator{faker: gofakeit.New(seed), now: time.Now}
}

func (g *Generator) snowflake() string {
	return strconv.FormatUint(g.faker.Uint64()>>1, 10)
}

func (g *Generator) user() models.User {
	return models.User{
		ID:          g.snowflake(),
		Username:    g.faker.Username(),
		DisplayName: g.faker.FirstName(),
		AvatarURL:   g.faker.URL(),
		CreatedAt:   g.now().Add(-time.Duration(g.faker.IntRange(1, 900)) * 24 * time.Hour),
	}
}

func (g *Generator) member(u models.User) models.Member {
	nick := g.faker.Username()
	return models.Member{
		GuildID:  GuildID,
		User:     u,
		Roles:    []models.Role{{ID: GuildID, Name: models.EveryoneRoleName}, {ID: g.snowflake(), Name: "Member"}},
		Nickname: &nick,
		JoinedAt: g.now().Add(-time.Hour),
	}
}

func (g *Generator) message(content string) models.Message {
	u := g.user()
	m := g.member(u)
	return models.Message{
		ID:          g.snowflake(),
		ChannelID:   ChannelID,
		GuildID:     GuildID,
		Content:     models.Ptr(content),
		Author:      &u,
		Member:      &m,
		Attachments: []models.Attachment{},
		CreatedAt:   g.now(),
	}
}

// Forward runs a fake event of eventType through p and returns the payload
// it would deliver.
func (g *Generator) Forward(ctx context.Context, p *pipeline.Pipeline, eventType string) (pipeline.Forward, error) {
	var (
		fwd pipeline.Forward
		ok  bool
	)
	switch eventType {
	case normalizer.EventMessageCreate:
		fwd, ok = p.MessageCreate(ctx, g.message(g.faker.Sentence(8)+" https://"+g.faker.DomainName()))
	case normalizer.EventMessageUpdate:
		before := g.message(g.faker.Sentence(6))
		after := before
		after.Content = models.Ptr(before.Text() + " (editado)")
		fwd, ok = p.MessageUpdate(ctx, models.MessageEdit{Before: &before, After: after})
	case normalizer.EventMessageDelete:
		fwd, ok = p.MessageDelete(ctx, g.message(g.faker.Sentence(5)))
	case normalizer.EventMemberAdd:
		fwd, ok = p.MemberAdd(ctx, g.member(g.user()))
	case normalizer.EventMemberRemove:
		fwd, ok = p.MemberRemove(ctx, g.member(g.user()))
	case normalizer.EventMemberUpdate:
		before := g.member(g.user())
		after := before
		after.Roles = append(append([]models.Role{}, before.Roles...), models.Role{ID: g.snowflake(), Name: "Verified"})
		fwd, ok = p.MemberUpdate(ctx, models.MemberUpdate{Before: &before, After: after})
	case normalizer.EventReactionAdd:
		m := g.message(g.faker.Sentence(4))
		fwd, ok = p.ReactionAdd(ctx, models.Reaction{
			MessageID: m.ID,
			ChannelID: ChannelID,
			GuildID:   GuildID,
			Emoji:     models.Emoji{Name: g.faker.Emoji()},
			User:      g.user(),
			Message:   &m,
		})
	default:
		return pipeline.Forward{}, fmt.Errorf("unknown event type %q", eventType)
	}
	if !ok {
		return pipeline.Forward{}, fmt.Errorf("%s event was filtered (guild scope is %q)", eventType, p.Scope().GuildID)
	}
	return fwd, nil
}

func (g *Generator) Channel(_ context.Context, channelID string) (models.Channel, error) {
	return models.Channel{ID: channelID, Name: Channel}, nil
}

func (g *Generator) Message(_ context.Context, channelID, messageID string) (models.Message, error) {
	m := g.message(g.faker.Sentence(4))
	m.ID, m.ChannelID = messageID, channelID
	return m, nil
}

func (g *Generator) Guild(_ context.Context, guildID string) (models.Guild, error) {
	return models.Guild{ID: guildID, Name: GuildName, MemberCount: g.faker.IntRange(10, 5000)}, nil
}

func (g *Generator) User(_ context.Context, userID string) (models.User, error) {
	u := g.user()
	u.ID = userID
	return u, nil
}

var _ normalizer.Resolver = (*Generator)(nil)
