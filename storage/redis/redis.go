// Package redisstore keeps the ephemeral state of the app in Redis: presence entries and revoked tokens.
package redisstore

import (
	"context"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/triolingo/backend/core"
	"github.com/triolingo/backend/core/identity"
	"github.com/triolingo/backend/core/presence"
)

// Key prefixes
const (
	prefixPresence = "presence:"
	prefixRevoked  = "revoked:"

	fieldIsOnline    = "isOnline"
	fieldLastChanged = "lastChanged"
)

var nowFunc = time.Now // mockable

// Open connects to the configured Redis server.
func Open(ctx context.Context, conf core.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         conf.Address,
		Password:     conf.Password,
		DB:           conf.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "pinging redis")
	}
	return client, nil
}

func presenceKey(uid string) string    { return prefixPresence + uid }
func revokedKey(tokenID string) string { return prefixRevoked + tokenID }

// PresenceStore keeps one hash per user, expiring `ttl` after its last update.
type PresenceStore struct {
	client redis.Cmdable
	ttl    time.Duration
}

var _ presence.Store = (*PresenceStore)(nil)

func NewPresenceStore(client redis.Cmdable, ttl time.Duration) *PresenceStore {
	return &PresenceStore{client: client, ttl: ttl}
}

func (ps *PresenceStore) SetStatus(ctx context.Context, uid string, isOnline bool) error {
	key := presenceKey(uid)
	_, err := ps.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, encodeStatus(presence.Status{IsOnline: isOnline, LastChanged: nowFunc().UTC()}))
		pipe.Expire(ctx, key, ps.ttl)
		return nil
	})
	return errors.Wrap(err, "setting presence")
}

func (ps *PresenceStore) GetStatus(ctx context.Context, uid string) (presence.Status, bool, error) {
	fields, err := ps.client.HGetAll(ctx, presenceKey(uid)).Result()
	if err != nil {
		return presence.Status{}, false, errors.Wrap(err, "getting presence")
	}
	if len(fields) == 0 {
		return presence.Status{}, false, nil
	}
	st, err := decodeStatus(fields)
	if err != nil {
		return presence.Status{}, false, errors.Wrapf(err, "decoding presence of %s", uid)
	}
	return st, true, nil
}

func encodeStatus(st presence.Status) map[string]interface{} {
	return map[string]interface{}{
		fieldIsOnline:    strconv.FormatBool(st.IsOnline),
		fieldLastChanged: strconv.FormatInt(st.LastChanged.UnixNano(), 10),
	}
}

func decodeStatus(fields map[string]string) (presence.Status, error) {
	isOnline, err := strconv.ParseBool(fields[fieldIsOnline])
	if err != nil {
		return presence.Status{}, errors.Wrap(err, fieldIsOnline)
	}
	ns, err := strconv.ParseInt(fields[fieldLastChanged], 10, 64)
	if err != nil {
		return presence.Status{}, errors.Wrap(err, fieldLastChanged)
	}
	return presence.Status{IsOnline: isOnline, LastChanged: time.Unix(0, ns).UTC()}, nil
}

// Revoker stores revoked token IDs until the tokens expire.
type Revoker struct {
	client redis.Cmdable
}

var _ identity.Revoker = (*Revoker)(nil)

func NewRevoker(client redis.Cmdable) *Revoker {
	return &Revoker{client: client}
}

func (r *Revoker) Revoke(ctx context.Context, tokenID string, until time.Time) error {
	ttl := until.Sub(nowFunc())
	if ttl <= 0 {
		return nil // already expired
	}
	return errors.Wrap(r.client.Set(ctx, revokedKey(tokenID), 1, ttl).Err(), "revoking token")
}

func (r *Revoker) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	n, err := r.client.Exists(ctx, revokedKey(tokenID)).Result()
	if err != nil {
		return false, errors.Wrap(err, "checking revoked token")
	}
	return n > 0, nil
}
