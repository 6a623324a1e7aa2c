// Package cache serves eventually consistent ticket reads and sweep locks
// from Redis. Cached reads may be stale by up to the configured TTL.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/desk-ticket-service/internal/domain"
)

const ticketKeyPrefix = "desk:ticket:"

// TicketCache is a read-through cache of single tickets. Cache failures are
// logged and treated as misses; they never fail a request.
type TicketCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewTicketCache returns nil when client is nil or ttl is zero, which
// disables caching.
func NewTicketCache(client *redis.Client, ttl time.Duration, logger *zap.Logger) *TicketCache {
	if client == nil || ttl <= 0 {
		return nil
	}
	return &TicketCache{client: client, ttl: ttl, logger: logger}
}

// Get returns the cached ticket if present.
func (c *TicketCache) Get(ctx context.Context, hotelID, id string) (*domain.Ticket, bool) {
	if c == nil {
		return nil, false
	}
	raw, err := c.client.Get(ctx, ticketKey(hotelID, id)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("ticket cache get failed", zap.String("ticket_id", id), zap.Error(err))
		}
		return nil, false
	}
	var ticket domain.Ticket
	if err := json.Unmarshal(raw, &ticket); err != nil {
		c.logger.Warn("ticket cache decode failed", zap.String("ticket_id", id), zap.Error(err))
		return nil, false
	}
	return &ticket, true
}

// Set stores ticket for the configured TTL.
func (c *TicketCache) Set(ctx context.Context, ticket *domain.Ticket) {
	if c == nil || ticket == nil {
		return
	}
	raw, err := json.Marshal(ticket)
	if err != nil {
		c.logger.Warn("ticket cache encode failed", zap.String("ticket_id", ticket.ID), zap.Error(err))
		return
	}
	if err := c.client.Set(ctx, ticketKey(ticket.HotelID, ticket.ID), raw, c.ttl).Err(); err != nil {
		c.logger.Warn("ticket cache set failed", zap.String("ticket_id", ticket.ID), zap.Error(err))
	}
}

// Invalidate drops the cached copy after a write.
func (c *TicketCache) Invalidate(ctx context.Context, hotelID, id string) {
	if c == nil {
		return
	}
	if err := c.client.Del(ctx, ticketKey(hotelID, id)).Err(); err != nil {
		c.logger.Warn("ticket cache invalidate failed", zap.String("ticket_id", id), zap.Error(err))
	}
}

func ticketKey(hotelID, id string) string {
	return ticketKeyPrefix + hotelID + ":" + id
}
