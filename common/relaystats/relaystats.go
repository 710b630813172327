// Package relaystats keeps Redis-backed relay counters per guild.
//
// Several relay instances may write concurrently; any process (the CLI, a
// dashboard) can read.
//
// Redis Key Structure:
//
//	relay:stats:{guild_id}                  - Hash: total, per-outcome counts, last event
//	relay:types:{guild_id}                  - Hash: event_type -> count
//	relay:hourly:{guild_id}:{YYYYMMDDHH}    - Forwarded count for one hour (expires 48h)
//	relay:daily:{guild_id}:{YYYYMMDD}       - Forwarded count for one day (expires 7d)
//	relay:instances:{guild_id}              - Hash: relay instance -> last seen unix time
//
// Direct messages are counted under the guild id "dm".
package relaystats

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// DMGuildID is the bucket for events without a guild.
const DMGuildID = "dm"

const (
	statsPrefix = "relay:stats:"
	hourLayout  = "2006010215"
	dayLayout   = "20060102"
)

// Stats is the current view of one guild's counters.
type Stats struct {
	GuildID          string            `json:"guild_id" yaml:"guild_id"`
	LastEventAt      *time.Time        `json:"last_event_at,omitempty" yaml:"last_event_at,omitempty"`
	LastEventType    string            `json:"last_event_type,omitempty" yaml:"last_event_type,omitempty"`
	TotalEvents      int64             `json:"total_events" yaml:"total_events"`
	Outcomes         map[string]int64  `json:"outcomes" yaml:"outcomes"`
	EventTypes       map[string]int64  `json:"event_types" yaml:"event_types"`
	EventsLastHour   int64             `json:"events_last_hour" yaml:"events_last_hour"`
	EventsLast24h    int64             `json:"events_last_24h" yaml:"events_last_24h"`
	EventsToday      int64             `json:"events_today" yaml:"events_today"`
	Instances        map[string]string `json:"instances,omitempty" yaml:"instances,omitempty"`
	StatsRetrievedAt time.Time         `json:"stats_retrieved_at" yaml:"stats_retrieved_at"`
}

// Client reads and writes relay counters.
type Client struct {
	redis      *redis.Client
	instanceID string
	now        func() time.Time
}

// NewClient connects to redisURL and verifies the connection.
// instanceID should be unique per relay process (hostname, pod name).
func NewClient(redisURL string, instanceID string) (*Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return NewClientFromRedis(client, instanceID), nil
}

// NewClientFromRedis wraps an existing connection.
func NewClientFromRedis(client *redis.Client, instanceID string) *Client {
	return &Client{
		redis:      client,
		instanceID: instanceID,
		now:        time.Now,
	}
}

// BatchUpdate accumulates counts for one guild between flushes.
type BatchUpdate struct {
	GuildID       string
	Outcomes      map[string]int64
	EventTypes    map[string]int64
	LastEventType string
	LastEventAt   time.Time
}

// NewBatchUpdate returns an empty batch for guildID.
func NewBatchUpdate(guildID string) *BatchUpdate {
	return &BatchUpdate{
		GuildID:    bucket(guildID),
		Outcomes:   make(map[string]int64),
		EventTypes: make(map[string]int64),
	}
}

// Add counts one event.
func (b *BatchUpdate) Add(eventType, outcome string, at time.Time) {
	b.Outcomes[outcome]++
	b.EventTypes[eventType]++
	if at.After(b.LastEventAt) {
		b.LastEventAt = at
		b.LastEventType = eventType
	}
}

// Total returns the number of events in the batch.
func (b *BatchUpdate) Total() int64 {
	var n int64
	for _, c := range b.Outcomes {
		n += c
	}
	return n
}

// Merge folds other into b.
func (b *BatchUpdate) Merge(other *BatchUpdate) {
	for k, v := range other.Outcomes {
		b.Outcomes[k] += v
	}
	for k, v := range other.EventTypes {
		b.EventTypes[k] += v
	}
	if other.LastEventAt.After(b.LastEventAt) {
		b.LastEventAt = other.LastEventAt
		b.LastEventType = other.LastEventType
	}
}

// FlushBatch writes batch to Redis in one pipeline.
func (c *Client) FlushBatch(ctx context.Context, batch *BatchUpdate) error {
	total := batch.Total()
	if total == 0 {
		return nil
	}

	now := c.now()
	nowUnix := strconv.FormatInt(now.Unix(), 10)
	guild := batch.GuildID

	pipe := c.redis.Pipeline()

	statsKey := statsPrefix + guild
	pipe.HSet(ctx, statsKey, map[string]interface{}{
		"last_event_at":   strconv.FormatInt(batch.LastEventAt.Unix(), 10),
		"last_event_type": batch.LastEventType,
	})
	pipe.HIncrBy(ctx, statsKey, "total_events", total)
	for outcome, n := range batch.Outcomes {
		pipe.HIncrBy(ctx, statsKey, "outcome:"+outcome, n)
	}

	typesKey := fmt.Sprintf("relay:types:%s", guild)
	for eventType, n := range batch.EventTypes {
		pipe.HIncrBy(ctx, typesKey, eventType, n)
	}

	hourlyKey := fmt.Sprintf("relay:hourly:%s:%s", guild, now.Format(hourLayout))
	pipe.IncrBy(ctx, hourlyKey, total)
	pipe.Expire(ctx, hourlyKey, 48*time.Hour)

	dailyKey := fmt.Sprintf("relay:daily:%s:%s", guild, now.Format(dayLayout))
	pipe.IncrBy(ctx, dailyKey, total)
	pipe.Expire(ctx, dailyKey, 7*24*time.Hour)

	instancesKey := fmt.Sprintf("relay:instances:%s", guild)
	pipe.HSet(ctx, instancesKey, c.instanceID, nowUnix)
	pipe.Expire(ctx, instancesKey, 24*time.Hour)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to flush batch: %w", err)
	}
	return nil
}

// GetStats reads the counters for guildID.
func (c *Client) GetStats(ctx context.Context, guildID string) (*Stats, error) {
	guild := bucket(guildID)
	now := c.now()

	pipe := c.redis.Pipeline()

	statsCmd := pipe.HGetAll(ctx, statsPrefix+guild)
	typesCmd := pipe.HGetAll(ctx, fmt.Sprintf("relay:types:%s", guild))
	currentHourCmd := pipe.Get(ctx, fmt.Sprintf("relay:hourly:%s:%s", guild, now.Format(hourLayout)))
	todayCmd := pipe.Get(ctx, fmt.Sprintf("relay:daily:%s:%s", guild, now.Format(dayLayout)))

	hourlyCmds := make([]*redis.StringCmd, 24)
	for i := range hourlyCmds {
		hour := now.Add(-time.Duration(i) * time.Hour).Format(hourLayout)
		hourlyCmds[i] = pipe.Get(ctx, fmt.Sprintf("relay:hourly:%s:%s", guild, hour))
	}

	instancesCmd := pipe.HGetAll(ctx, fmt.Sprintf("relay:instances:%s", guild))

	// Missing counters surface as redis.Nil on individual commands.
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, fmt.Errorf("failed to get stats: %w", err)
	}

	stats := &Stats{
		GuildID:          guild,
		Outcomes:         make(map[string]int64),
		EventTypes:       make(map[string]int64),
		Instances:        make(map[string]string),
		StatsRetrievedAt: now,
	}

	if fields, err := statsCmd.Result(); err == nil {
		for k, v := range fields {
			switch {
			case k == "last_event_at":
				if unix, err := strconv.ParseInt(v, 10, 64); err == nil {
					t := time.Unix(unix, 0)
					stats.LastEventAt = &t
				}
			case k == "last_event_type":
				stats.LastEventType = v
			case k == "total_events":
				stats.TotalEvents, _ = strconv.ParseInt(v, 10, 64)
			case strings.HasPrefix(k, "outcome:"):
				n, _ := strconv.ParseInt(v, 10, 64)
				stats.Outcomes[strings.TrimPrefix(k, "outcome:")] = n
			}
		}
	}

	if types, err := typesCmd.Result(); err == nil {
		for k, v := range types {
			stats.EventTypes[k], _ = strconv.ParseInt(v, 10, 64)
		}
	}

	if val, err := currentHourCmd.Int64(); err == nil {
		stats.EventsLastHour = val
	}
	if val, err := todayCmd.Int64(); err == nil {
		stats.EventsToday = val
	}
	for _, cmd := range hourlyCmds {
		if val, err := cmd.Int64(); err == nil {
			stats.EventsLast24h += val
		}
	}

	if instances, err := instancesCmd.Result(); err == nil {
		for instance, lastSeen := range instances {
			if unix, err := strconv.ParseInt(lastSeen, 10, 64); err == nil {
				stats.Instances[instance] = time.Unix(unix, 0).UTC().Format(time.RFC3339)
			}
		}
	}

	return stats, nil
}

// ListGuilds returns guild ids with an event in the last since, sorted.
func (c *Client) ListGuilds(ctx context.Context, since time.Duration) ([]string, error) {
	cutoff := c.now().Add(-since).Unix()
	var guilds []string

	iter := c.redis.Scan(ctx, 0, statsPrefix+"*", 1000).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		lastEvent, err := c.redis.HGet(ctx, key, "last_event_at").Int64()
		if err == nil && lastEvent >= cutoff {
			guilds = append(guilds, strings.TrimPrefix(key, statsPrefix))
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan guilds: %w", err)
	}

	sort.Strings(guilds)
	return guilds, nil
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.redis.Close()
}

func bucket(guildID string) string {
	if guildID == "" {
		return DMGuildID
	}
	return guildID
}
