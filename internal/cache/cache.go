// Package cache tracks presence and emits telemetry through Redis. The
// process keeps an authoritative local counter so gameplay never blocks
// on Redis; the Redis side exists for dashboards and for invalidating
// sessions across restarts. A nil client degrades to local-only.
package cache

import (
	"context"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/redis/go-redis/v9"
)

const (
	ccuKey      = "tressette:ccu"
	sessionKey  = "tressette:session:" // + uid
	eventStream = "tressette:events"

	redisTimeout = 250 * time.Millisecond
	sessionTTL   = 24 * time.Hour
)

// Presence counts online users and mirrors state to Redis.
type Presence struct {
	rdb    *redis.Client
	logger *log.Logger
	online atomic.Int64
}

// New creates a presence tracker. rdb may be nil.
func New(rdb *redis.Client, logger *log.Logger) *Presence {
	return &Presence{rdb: rdb, logger: logger.WithPrefix("cache")}
}

// Online returns the current concurrent-user count.
func (p *Presence) Online() int {
	return int(p.online.Load())
}

// UserOnline records a login.
func (p *Presence) UserOnline(ctx context.Context, uid int64) {
	n := p.online.Add(1)
	p.mirrorCCU(ctx, n)
	p.Emit(ctx, "user_online", map[string]any{"uid": uid, "ccu": n})
}

// UserOffline records a logout or dropped socket.
func (p *Presence) UserOffline(ctx context.Context, uid int64) {
	n := p.online.Add(-1)
	if n < 0 {
		p.online.Store(0)
		n = 0
	}
	p.mirrorCCU(ctx, n)
	p.Emit(ctx, "user_offline", map[string]any{"uid": uid, "ccu": n})
}

func (p *Presence) mirrorCCU(ctx context.Context, n int64) {
	if p.rdb == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, redisTimeout)
	defer cancel()
	if err := p.rdb.Set(ctx, ccuKey, n, 0).Err(); err != nil {
		p.logger.Debug("ccu mirror failed", "error", err)
	}
}

// StoreSession records the active token for a user so a restarted
// server can still refuse superseded sessions.
func (p *Presence) StoreSession(ctx context.Context, uid int64, token string) {
	if p.rdb == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, redisTimeout)
	defer cancel()
	key := sessionKey + strconv.FormatInt(uid, 10)
	if err := p.rdb.Set(ctx, key, token, sessionTTL).Err(); err != nil {
		p.logger.Debug("session store failed", "uid", uid, "error", err)
	}
}

// DropSession clears the stored token on logout.
func (p *Presence) DropSession(ctx context.Context, uid int64) {
	if p.rdb == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, redisTimeout)
	defer cancel()
	key := sessionKey + strconv.FormatInt(uid, 10)
	if err := p.rdb.Del(ctx, key).Err(); err != nil {
		p.logger.Debug("session drop failed", "uid", uid, "error", err)
	}
}

// Emit appends a telemetry event to the stream. Fire and forget;
// telemetry loss is never allowed to affect gameplay.
func (p *Presence) Emit(ctx context.Context, event string, fields map[string]any) {
	if p.rdb == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, redisTimeout)
	defer cancel()
	values := map[string]any{"event": event}
	for k, v := range fields {
		values[k] = v
	}
	err := p.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: eventStream,
		MaxLen: 100_000,
		Approx: true,
		Values: values,
	}).Err()
	if err != nil {
		p.logger.Debug("telemetry emit failed", "event", event, "error", err)
	}
}
