// Package diff compares before/after member snapshots.
package diff

import "github.com/guildrelay/guildrelay/internal/models"

// Roles reports roles present only in after (added) and only in before
// (removed), compared by role ID. The guild's everyone role is never
// reported. Both results are non-nil and keep snapshot order.
func Roles(before, after models.Member) (added, removed []models.Role) {
	guildID := after.GuildID
	if guildID == "" {
		guildID = before.GuildID
	}
	return minus(after.Roles, before.Roles, guildID), minus(before.Roles, after.Roles, guildID)
}

// CurrentRoles returns the member's roles without the everyone role.
func CurrentRoles(m models.Member) []models.Role {
	out := make([]models.Role, 0, len(m.Roles))
	for _, r := range m.Roles {
		if !r.IsEveryone(m.GuildID) {
			out = append(out, r)
		}
	}
	return out
}

// NicknameChanged reports whether the nickname differs. An absent nickname is
// distinct from an empty one.
func NicknameChanged(before, after models.Member) bool {
	switch {
	case before.Nickname == nil && after.Nickname == nil:
		return false
	case before.Nickname == nil || after.Nickname == nil:
		return true
	default:
		return *before.Nickname != *after.Nickname
	}
}

// Empty reports whether the update carries no role or nickname change.
func Empty(before, after models.Member) bool {
	added, removed := Roles(before, after)
	return len(added) == 0 && len(removed) == 0 && !NicknameChanged(before, after)
}

func minus(from, other []models.Role, guildID string) []models.Role {
	exclude := make(map[string]struct{}, len(other))
	for _, r := range other {
		exclude[r.ID] = struct{}{}
	}
	out := make([]models.Role, 0)
	seen := make(map[string]struct{}, len(from))
	for _, r := range from {
		if r.IsEveryone(guildID) {
			continue
		}
		if _, ok := exclude[r.ID]; ok {
			continue
		}
		if _, dup := seen[r.ID]; dup {
			continue
		}
		seen[r.ID] = struct{}{}
		out = append(out, r)
	}
	return out
}
