package history

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/voxhop/ivrnav/pkg/errorsx"
	"github.com/voxhop/ivrnav/pkg/menu"
)

const (
	callKeyPrefix = "ivrnav:call:"
	recentKey     = "ivrnav:calls:recent"
)

// RedisConfig configures the Redis-backed recorder.
type RedisConfig struct {
	Addr          string `mapstructure:"addr"`
	Password      string `mapstructure:"password"`
	DB            int    `mapstructure:"db"`
	RetentionDays int    `mapstructure:"retention_days"`
	RecentLimit   int    `mapstructure:"recent_limit"`
}

func (c RedisConfig) withDefaults() RedisConfig {
	if c.Addr == "" {
		c.Addr = "localhost:6379"
	}
	if c.RetentionDays <= 0 {
		c.RetentionDays = 30
	}
	if c.RecentLimit <= 0 {
		c.RecentLimit = 200
	}
	return c
}

// RedisRecorder stores one JSON document per call plus a capped recency
// list. Events for a call arrive sequentially, so read-modify-write per
// call does not race with itself.
type RedisRecorder struct {
	cfg    RedisConfig
	client redis.Cmdable
	now    func() time.Time
}

func NewRedisRecorder(cfg RedisConfig) *RedisRecorder {
	cfg = cfg.withDefaults()
	return &RedisRecorder{
		cfg: cfg,
		client: redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		}),
		now: time.Now,
	}
}

// NewRedisRecorderWithClient injects a client; used by tests.
func NewRedisRecorderWithClient(cfg RedisConfig, client redis.Cmdable) *RedisRecorder {
	return &RedisRecorder{cfg: cfg.withDefaults(), client: client, now: time.Now}
}

func (r *RedisRecorder) StartCall(ctx context.Context, rec CallRecord) error {
	if rec.StartedAt.IsZero() {
		rec.StartedAt = r.now()
	}
	if rec.Status == "" {
		rec.Status = "in-progress"
	}
	if err := r.save(ctx, rec); err != nil {
		return err
	}
	pipe := r.client.TxPipeline()
	pipe.LPush(ctx, recentKey, rec.CallID)
	pipe.LTrim(ctx, recentKey, 0, int64(r.cfg.RecentLimit-1))
	_, err := pipe.Exec(ctx)
	return errorsx.Wrap(err, errorsx.ReasonHistoryWrite)
}

func (r *RedisRecorder) AddConversation(ctx context.Context, callID, role, text string) error {
	return r.appendEvent(ctx, callID, CallEvent{Kind: EventConversation, Role: role, Text: text})
}

func (r *RedisRecorder) AddDTMF(ctx context.Context, callID, digits, reason string) error {
	return r.appendEvent(ctx, callID, CallEvent{Kind: EventDTMF, Digits: digits, Reason: reason})
}

func (r *RedisRecorder) AddIVRMenu(ctx context.Context, callID string, options []menu.Option) error {
	return r.appendEvent(ctx, callID, CallEvent{Kind: EventIVRMenu, Options: options})
}

func (r *RedisRecorder) AddTransfer(ctx context.Context, callID, destination string) error {
	return r.appendEvent(ctx, callID, CallEvent{Kind: EventTransfer, Destination: destination})
}

func (r *RedisRecorder) AddTermination(ctx context.Context, callID, reason string) error {
	return r.appendEvent(ctx, callID, CallEvent{Kind: EventTermination, Reason: reason})
}

func (r *RedisRecorder) EndCall(ctx context.Context, callID, status string) error {
	rec, err := r.GetCall(ctx, callID)
	if err != nil {
		return err
	}
	rec.Status = status
	rec.EndedAt = r.now()
	return r.save(ctx, rec)
}

func (r *RedisRecorder) GetCall(ctx context.Context, callID string) (CallRecord, error) {
	raw, err := r.client.Get(ctx, callKeyPrefix+callID).Result()
	if errors.Is(err, redis.Nil) {
		return CallRecord{}, ErrNotFound
	}
	if err != nil {
		return CallRecord{}, errorsx.Wrap(err, errorsx.ReasonHistoryRead)
	}
	var rec CallRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return CallRecord{}, errorsx.Wrap(err, errorsx.ReasonHistoryRead)
	}
	return rec, nil
}

func (r *RedisRecorder) GetRecentCalls(ctx context.Context, limit int) ([]CallRecord, error) {
	if limit <= 0 {
		limit = r.cfg.RecentLimit
	}
	ids, err := r.client.LRange(ctx, recentKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, errorsx.Wrap(err, errorsx.ReasonHistoryRead)
	}
	out := make([]CallRecord, 0, len(ids))
	for _, id := range ids {
		rec, err := r.GetCall(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (r *RedisRecorder) appendEvent(ctx context.Context, callID string, ev CallEvent) error {
	rec, err := r.GetCall(ctx, callID)
	if err != nil {
		return err
	}
	ev.ID = uuid.NewString()
	ev.At = r.now()
	rec.Events = append(rec.Events, ev)
	return r.save(ctx, rec)
}

func (r *RedisRecorder) save(ctx context.Context, rec CallRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return errorsx.Wrap(err, errorsx.ReasonHistoryWrite)
	}
	ttl := time.Duration(r.cfg.RetentionDays) * 24 * time.Hour
	err = r.client.Set(ctx, callKeyPrefix+rec.CallID, raw, ttl).Err()
	return errorsx.Wrap(err, errorsx.ReasonHistoryWrite)
}

var _ Recorder = (*RedisRecorder)(nil)
