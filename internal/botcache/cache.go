// Package botcache provides a read-through, write-invalidate cache for bot
// configuration records.
//
// Reads try the durable tier, then the in-process tier, then the backing
// store, populating both tiers on a total miss. Entries are shared across
// owners: ownership is verified after retrieval on every read, not baked into
// the cache key. Writes to the backing store must be followed by an explicit
// invalidation; the next read repopulates the cache.
package botcache

import (
	"context"
	"encoding/json"

	gocache "github.com/patrickmn/go-cache"

	"github.com/nexabot/guardrail/internal/store"
	"github.com/nexabot/guardrail/pkg/constants"
	"github.com/nexabot/guardrail/pkg/logger"
)

// BotConfig is an immutable snapshot of a bot's operational configuration.
type BotConfig struct {
	ID              string            `json:"id"`
	Name            string            `json:"name"`
	Model           string            `json:"model"`
	SystemPrompt    string            `json:"systemPrompt"`
	Temperature     float64           `json:"temperature"`
	MaxTokens       int               `json:"maxTokens"`
	Status          string            `json:"status"`
	OwnerID         string            `json:"ownerId"`
	FallbackMessage string            `json:"fallbackMessage,omitempty"`
	WelcomeMessage  string            `json:"welcomeMessage,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

// BotStore is the backing store collaborator. A missing bot is (nil, nil),
// not an error.
type BotStore interface {
	// FindBot loads an active bot by id, additionally filtered by owner
	// when ownerID is non-empty.
	FindBot(ctx context.Context, botID, ownerID string) (*BotConfig, error)
	// ListBotIDs returns the ids of all bots owned by ownerID.
	ListBotIDs(ctx context.Context, ownerID string) ([]string, error)
}

// Stats reports cache occupancy and backend availability.
type Stats struct {
	MemoryEntries  int
	RedisAvailable bool
}

// Cache is the two-tier bot configuration cache.
type Cache struct {
	store   store.KeyValueStore
	backing BotStore
	memory  *gocache.Cache
	log     logger.Logger
}

// New creates a Cache. The in-process tier evicts expired entries every five
// minutes.
func New(kv store.KeyValueStore, backing BotStore, log logger.Logger) *Cache {
	c := &Cache{
		store:   kv,
		backing: backing,
		memory:  gocache.New(constants.BotCacheTTL, constants.BotCacheSweepInterval),
		log:     log.WithComponent("botcache"),
	}
	if kv.Available() {
		c.log.Info(context.Background(), "bot cache using durable store")
	} else {
		c.log.Warn(context.Background(), "bot cache using in-memory storage, state is per-instance")
	}
	return c
}

// GetBot returns the configuration for botID, or nil when no usable
// configuration exists. When ownerID is non-empty a cached record with a
// different owner yields nil without re-querying the backing store.
func (c *Cache) GetBot(ctx context.Context, botID, ownerID string) (*BotConfig, error) {
	cacheKey := constants.BotConfigKeyPrefix + botID

	if c.store.Available() {
		cached, err := c.store.Get(ctx, cacheKey)
		if err != nil {
			c.log.Error(ctx, "durable cache read failed", err, logger.Fields{"bot_id": botID})
		} else if cached != "" {
			var bot BotConfig
			if err := json.Unmarshal([]byte(cached), &bot); err != nil {
				// Malformed entry is a miss; the read below repopulates it.
				c.log.Warn(ctx, "malformed cached bot config", logger.Fields{"bot_id": botID})
			} else {
				if ownerID != "" && bot.OwnerID != ownerID {
					return nil, nil
				}
				c.log.Debug(ctx, "bot cache hit", logger.Fields{"bot_id": botID, "tier": "redis"})
				return &bot, nil
			}
		}
	}

	if cached, ok := c.memory.Get(cacheKey); ok {
		bot := cached.(BotConfig)
		if ownerID != "" && bot.OwnerID != ownerID {
			return nil, nil
		}
		c.log.Debug(ctx, "bot cache hit", logger.Fields{"bot_id": botID, "tier": "memory"})
		return &bot, nil
	}

	return c.fetchAndCache(ctx, botID, ownerID)
}

// fetchAndCache queries the backing store and populates both tiers. Backing
// store failures surface as a miss, never an error.
func (c *Cache) fetchAndCache(ctx context.Context, botID, ownerID string) (*BotConfig, error) {
	bot, err := c.backing.FindBot(ctx, botID, ownerID)
	if err != nil {
		c.log.Error(ctx, "bot config lookup failed", err, logger.Fields{"bot_id": botID})
		return nil, nil
	}
	if bot == nil {
		return nil, nil
	}

	normalize(bot)
	c.cacheBot(ctx, botID, *bot)
	return bot, nil
}

// cacheBot writes the record into both tiers with the standard TTL.
func (c *Cache) cacheBot(ctx context.Context, botID string, bot BotConfig) {
	cacheKey := constants.BotConfigKeyPrefix + botID

	if c.store.Available() {
		data, err := json.Marshal(bot)
		if err == nil {
			if err := c.store.Set(ctx, cacheKey, string(data), constants.BotCacheTTL); err != nil {
				c.log.Error(ctx, "durable cache write failed", err, logger.Fields{"bot_id": botID})
			}
		}
	}

	c.memory.Set(cacheKey, bot, constants.BotCacheTTL)
}

// InvalidateBot removes botID from both cache tiers. Collaborators that
// mutate bot configuration must call this after the write.
func (c *Cache) InvalidateBot(ctx context.Context, botID string) error {
	cacheKey := constants.BotConfigKeyPrefix + botID
	c.memory.Delete(cacheKey)

	if c.store.Available() {
		if err := c.store.Del(ctx, cacheKey); err != nil {
			c.log.Error(ctx, "durable cache invalidation failed", err, logger.Fields{"bot_id": botID})
			return err
		}
	}
	c.log.Debug(ctx, "bot cache invalidated", logger.Fields{"bot_id": botID})
	return nil
}

// InvalidateUserBots invalidates every bot owned by ownerID. Used after bulk
// updates.
func (c *Cache) InvalidateUserBots(ctx context.Context, ownerID string) error {
	ids, err := c.backing.ListBotIDs(ctx, ownerID)
	if err != nil {
		c.log.Error(ctx, "bot id enumeration failed", err, logger.Fields{"owner_id": ownerID})
		return err
	}
	for _, id := range ids {
		if err := c.InvalidateBot(ctx, id); err != nil {
			return err
		}
	}
	c.log.Info(ctx, "invalidated user bots", logger.Fields{"owner_id": ownerID, "count": len(ids)})
	return nil
}

// Warmup pre-populates the cache for a set of bot ids, typically at startup.
func (c *Cache) Warmup(ctx context.Context, botIDs []string) {
	for _, id := range botIDs {
		if _, err := c.fetchAndCache(ctx, id, ""); err != nil {
			c.log.Error(ctx, "cache warmup failed for bot", err, logger.Fields{"bot_id": id})
		}
	}
	c.log.Info(ctx, "cache warmup complete", logger.Fields{"count": len(botIDs)})
}

// GetStats reports current cache occupancy.
func (c *Cache) GetStats() Stats {
	return Stats{
		MemoryEntries:  c.memory.ItemCount(),
		RedisAvailable: c.store.Available(),
	}
}

// normalize applies field defaults to a record loaded from the backing store.
func normalize(bot *BotConfig) {
	if bot.Model == "" {
		bot.Model = constants.DefaultBotModel
	}
	if bot.SystemPrompt == "" {
		bot.SystemPrompt = constants.DefaultBotSystemPrompt
	}
	if bot.Temperature == 0 {
		bot.Temperature = constants.DefaultBotTemperature
	}
	if bot.MaxTokens == 0 {
		bot.MaxTokens = constants.DefaultBotMaxTokens
	}
}
