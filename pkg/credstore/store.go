// Package credstore keeps named web service credentials in Redis.
//
// Each credential is a Redis hash at Key(name) with the fields username,
// password, domain and token. Store implements auth.Provider so node settings
// can reference a credential by name instead of carrying secrets.
package credstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"

	"github.com/Sternrassler/ws-nodes/pkg/auth"
)

// KeyPrefix is prepended to every credential name.
const KeyPrefix = "wsnodes:cred:"

const (
	fieldUsername = "username"
	fieldPassword = "password"
	fieldDomain   = "domain"
	fieldToken    = "token"
)

// ErrInvalidName indicates an empty or malformed credential name.
var ErrInvalidName = errors.New("invalid credential name")

// lookupsTotal tracks lookups by result ("hit", "miss", "error").
var lookupsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "wsnodes_credential_lookups_total",
		Help: "Total named credential lookups by result",
	},
	[]string{"result"},
)

// Store handles named credentials with a Redis backend.
type Store struct {
	redis *redis.Client
}

// NewStore creates a store backed by redisClient.
func NewStore(redisClient *redis.Client) *Store {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &Store{redis: redisClient}
}

// Key returns the Redis key of the named credential.
func Key(name string) string {
	return KeyPrefix + strings.TrimSpace(name)
}

func checkName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" || strings.ContainsAny(name, " \t\r\n") {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// Put stores creds under name. A ttl of zero keeps the credential until deleted.
func (s *Store) Put(ctx context.Context, name string, creds auth.Credentials, ttl time.Duration) error {
	if err := checkName(name); err != nil {
		return err
	}

	key := Key(name)
	pipe := s.redis.TxPipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key,
		fieldUsername, creds.Username,
		fieldPassword, creds.Password,
		fieldDomain, creds.Domain,
		fieldToken, creds.Token,
	)
	if ttl > 0 {
		pipe.Expire(ctx, key, ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis hset: %w", err)
	}
	return nil
}

// Resolve implements auth.Provider. It returns auth.ErrNotFound when no
// credential exists under name.
func (s *Store) Resolve(ctx context.Context, name string) (auth.Credentials, error) {
	if err := checkName(name); err != nil {
		return auth.Credentials{}, err
	}

	fields, err := s.redis.HGetAll(ctx, Key(name)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			lookupsTotal.WithLabelValues("miss").Inc()
			return auth.Credentials{}, auth.ErrNotFound
		}
		lookupsTotal.WithLabelValues("error").Inc()
		return auth.Credentials{}, fmt.Errorf("redis hgetall: %w", err)
	}
	if len(fields) == 0 {
		lookupsTotal.WithLabelValues("miss").Inc()
		return auth.Credentials{}, auth.ErrNotFound
	}

	lookupsTotal.WithLabelValues("hit").Inc()
	return auth.Credentials{
		Username: fields[fieldUsername],
		Password: fields[fieldPassword],
		Domain:   fields[fieldDomain],
		Token:    fields[fieldToken],
	}, nil
}

// Delete removes the named credential. Deleting an absent name is not an error.
func (s *Store) Delete(ctx context.Context, name string) error {
	if err := checkName(name); err != nil {
		return err
	}
	if err := s.redis.Del(ctx, Key(name)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Names lists the stored credential names.
func (s *Store) Names(ctx context.Context) ([]string, error) {
	var names []string
	iter := s.redis.Scan(ctx, 0, KeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		names = append(names, strings.TrimPrefix(iter.Val(), KeyPrefix))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis scan: %w", err)
	}
	return names, nil
}
