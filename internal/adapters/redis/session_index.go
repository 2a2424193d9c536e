package redis

// Package redis provides Redis-based adapters for the auth server.

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	domainauth "github.com/bilyanhadzhi/auth-server-mjt/internal/domain/auth"
	"github.com/bilyanhadzhi/auth-server-mjt/internal/ports"
	"github.com/redis/go-redis/v9"
)

const (
	defaultPrefix = "authsrv:"
	clearBatch    = 100
)

// releaseUserKey deletes the username key only while it still points at the given session id.
var releaseUserKey = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

var _ ports.SessionIndex = (*SessionIndex)(nil)

// SessionIndex mirrors the sessions table in Redis for O(1) lookups by id and username.
// Keys expire with their session, so the index never outlives the rows it describes.
type SessionIndex struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

// SessionIndexOptions configures a SessionIndex.
type SessionIndexOptions struct {
	Client redis.UniversalClient
	Prefix string
	Now    func() time.Time
}

// NewSessionIndex creates a Redis-backed session index.
func NewSessionIndex(opts SessionIndexOptions) (*SessionIndex, error) {
	if opts.Client == nil {
		return nil, errors.New("redis client is required")
	}
	if opts.Prefix == "" {
		opts.Prefix = defaultPrefix
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &SessionIndex{client: opts.Client, prefix: opts.Prefix, now: opts.Now}, nil
}

func (s *SessionIndex) sessionKey(id string) string { return s.prefix + "session:" + id }
func (s *SessionIndex) userKey(username string) string {
	return s.prefix + "user:" + username
}

// Put stores sess under both its id and its username with a TTL matching its expiry.
func (s *SessionIndex) Put(ctx context.Context, sess domainauth.Session) error {
	if sess.ID == "" || sess.Username == "" {
		return errors.New("session id and username are required")
	}
	ttl := sess.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return nil
	}

	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.sessionKey(sess.ID), data, ttl)
		pipe.Set(ctx, s.userKey(sess.Username), sess.ID, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis put session: %w", err)
	}
	return nil
}

// LookupID returns the session stored under id, or domainauth.ErrSessionNotFound.
func (s *SessionIndex) LookupID(ctx context.Context, id string) (domainauth.Session, error) {
	if id == "" {
		return domainauth.Session{}, domainauth.ErrSessionNotFound
	}

	data, err := s.client.Get(ctx, s.sessionKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domainauth.Session{}, domainauth.ErrSessionNotFound
		}
		return domainauth.Session{}, fmt.Errorf("redis get session: %w", err)
	}

	var sess domainauth.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return domainauth.Session{}, fmt.Errorf("unmarshal session: %w", err)
	}
	if sess.Expired(s.now()) {
		return domainauth.Session{}, domainauth.ErrSessionNotFound
	}
	return sess, nil
}

// LookupUsername returns the session owned by username, or domainauth.ErrSessionNotFound.
func (s *SessionIndex) LookupUsername(ctx context.Context, username string) (domainauth.Session, error) {
	id, err := s.client.Get(ctx, s.userKey(username)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domainauth.Session{}, domainauth.ErrSessionNotFound
		}
		return domainauth.Session{}, fmt.Errorf("redis get user session: %w", err)
	}
	return s.LookupID(ctx, id)
}

// Clear deletes every key under the index prefix. Entries left behind by a
// previous process may describe sessions that were logged out since.
func (s *SessionIndex) Clear(ctx context.Context) error {
	iter := s.client.Scan(ctx, 0, s.prefix+"*", clearBatch).Iterator()
	keys := make([]string, 0, clearBatch)
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
		if len(keys) == clearBatch {
			if err := s.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("redis clear session index: %w", err)
			}
			keys = keys[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis scan session index: %w", err)
	}
	if len(keys) > 0 {
		if err := s.client.Del(ctx, keys...).Err(); err != nil {
			return fmt.Errorf("redis clear session index: %w", err)
		}
	}
	return nil
}

// Remove deletes sess from the index. The username key is kept if it already
// points at a newer session.
func (s *SessionIndex) Remove(ctx context.Context, sess domainauth.Session) error {
	if err := s.client.Del(ctx, s.sessionKey(sess.ID)).Err(); err != nil {
		return fmt.Errorf("redis delete session: %w", err)
	}
	if sess.Username == "" {
		return nil
	}
	if err := releaseUserKey.Run(ctx, s.client, []string{s.userKey(sess.Username)}, sess.ID).Err(); err != nil &&
		!errors.Is(err, redis.Nil) {
		return fmt.Errorf("redis release user session: %w", err)
	}
	return nil
}
