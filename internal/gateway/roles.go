package gateway

import (
	"strings"
	"sync"

	"github.com/bwmarrin/discordgo"
)

// roleCache remembers the role ids of every member seen on the gateway.
// The session state drops a member before leave handlers run, so this is
// the only place a departing member's roles can still be read.
type roleCache struct {
	mu    sync.RWMutex
	roles map[string][]string
}

func newRoleCache() *roleCache {
	return &roleCache{roles: make(map[string][]string)}
}

func roleKey(guildID, userID string) string {
	return guildID + "/" + userID
}

func (rc *roleCache) store(guildID string, m *discordgo.Member) {
	if m == nil || m.User == nil {
		return
	}
	if m.GuildID != "" {
		guildID = m.GuildID
	}
	if guildID == "" {
		return
	}
	ids := append([]string(nil), m.Roles...)

	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.roles[roleKey(guildID, m.User.ID)] = ids
}

// take returns and forgets the roles last seen for a member.
func (rc *roleCache) take(guildID, userID string) ([]string, bool) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	key := roleKey(guildID, userID)
	ids, ok := rc.roles[key]
	delete(rc.roles, key)
	return ids, ok
}

func (rc *roleCache) forgetGuild(guildID string) {
	prefix := guildID + "/"
	rc.mu.Lock()
	defer rc.mu.Unlock()
	for key := range rc.roles {
		if strings.HasPrefix(key, prefix) {
			delete(rc.roles, key)
		}
	}
}

func (rc *roleCache) len() int {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	return len(rc.roles)
}
