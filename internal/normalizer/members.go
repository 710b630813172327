package normalizer

import (
	"context"

	"github.com/guildrelay/guildrelay/internal/diff"
	"github.com/guildrelay/guildrelay/internal/models"
)

// MemberAdd builds the memberAdd document, including the new-account flag.
func (n *Normalizer) MemberAdd(ctx context.Context, m models.Member) MemberAddPayload {
	user := n.completeUser(ctx, m.User)
	guildName, count := n.guild(ctx, m.GuildID)
	age := AccountAgeDays(user.CreatedAt, n.now())

	return MemberAddPayload{
		UserID:         user.ID,
		Username:       user.Username,
		DisplayName:    displayName(user, m.Nickname),
		AvatarURL:      optional(user.AvatarURL),
		AccountAgeDays: age,
		IsNewAccount:   IsNewAccount(age),
		GuildID:        m.GuildID,
		GuildName:      guildName,
		MemberCount:    count,
		JoinedAt:       millis(m.JoinedAt),
	}
}

// MemberRemove builds the memberRemove document. roles lists what the member
// held when they left, if that was cached.
func (n *Normalizer) MemberRemove(ctx context.Context, m models.Member) MemberRemovePayload {
	user := n.completeUser(ctx, m.User)
	guildName, count := n.guild(ctx, m.GuildID)

	return MemberRemovePayload{
		UserID:      user.ID,
		Username:    user.Username,
		GuildID:     m.GuildID,
		GuildName:   guildName,
		MemberCount: count,
		Roles:       roleRefs(diff.CurrentRoles(m)),
		Timestamp:   n.nowMillis(),
	}
}

// MemberUpdate builds the memberUpdate document from a before/after pair.
// A missing before snapshot is treated as identical to after.
func (n *Normalizer) MemberUpdate(ctx context.Context, u models.MemberUpdate) MemberUpdatePayload {
	after := u.After
	before := after
	if u.Before != nil {
		before = *u.Before
	}
	added, removed := diff.Roles(before, after)
	user := n.completeUser(ctx, after.User)

	return MemberUpdatePayload{
		UserID:          user.ID,
		Username:        user.Username,
		GuildID:         after.GuildID,
		OldNickname:     before.Nickname,
		NewNickname:     after.Nickname,
		NicknameChanged: diff.NicknameChanged(before, after),
		AddedRoles:      roleRefs(added),
		RemovedRoles:    roleRefs(removed),
		CurrentRoles:    roleRefs(diff.CurrentRoles(after)),
		Timestamp:       n.nowMillis(),
	}
}

// completeUser fills in a user known only by id.
func (n *Normalizer) completeUser(ctx context.Context, u models.User) models.User {
	if u.Username != "" || u.ID == "" {
		return u
	}
	full, err := n.resolver.User(ctx, u.ID)
	if err != nil {
		n.partial(ctx, "user", u.ID, err)
		return u
	}
	return full
}

func displayName(u models.User, nickname *string) string {
	if nickname != nil && *nickname != "" {
		return *nickname
	}
	return u.Name()
}
