package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/ayush/favorites-app/internal/models"
	"github.com/ayush/favorites-app/internal/store"
)

const (
	DefaultSessionTTL = 24 * time.Hour
	SessionCookie     = "session_id"
)

// Sessions issues, resolves and destroys server-side sessions.
type Sessions interface {
	Create(ctx context.Context, sess *models.Session) (string, error)
	// Get returns nil and no error when the token is unknown or expired.
	Get(ctx context.Context, token string) (*models.Session, error)
	Delete(ctx context.Context, token string) error
	RevokeUser(ctx context.Context, userID string) error
}

// SessionStore wraps Redis for session management. Each session lives under
// session:<token>; user_sessions:<user id> indexes a user's live tokens.
type SessionStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewSessionStore(rdb *redis.Client, ttl time.Duration) *SessionStore {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &SessionStore{rdb: rdb, ttl: ttl}
}

func sessionKey(token string) string { return "session:" + token }

func userSessionsKey(userID string) string { return "user_sessions:" + userID }

// Create stores sess under a fresh random token and returns the token.
func (s *SessionStore) Create(ctx context.Context, sess *models.Session) (string, error) {
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = time.Now().UTC()
	}
	data, err := json.Marshal(sess)
	if err != nil {
		return "", fmt.Errorf("encode session: %w", err)
	}
	if err := s.prune(ctx, sess.UserID); err != nil {
		return "", fmt.Errorf("prune sessions: %w: %w", store.ErrUnavailable, err)
	}
	token := uuid.New().String()
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, sessionKey(token), data, s.ttl)
		pipe.SAdd(ctx, userSessionsKey(sess.UserID), token)
		pipe.Expire(ctx, userSessionsKey(sess.UserID), s.ttl)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("create session: %w: %w", store.ErrUnavailable, err)
	}
	return token, nil
}

// Get returns the session for token, or nil if not found / expired.
func (s *SessionStore) Get(ctx context.Context, token string) (*models.Session, error) {
	if _, err := uuid.Parse(token); err != nil {
		return nil, nil
	}
	val, err := s.rdb.Get(ctx, sessionKey(token)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w: %w", store.ErrUnavailable, err)
	}
	var sess models.Session
	if err := json.Unmarshal(val, &sess); err != nil {
		return nil, nil
	}
	return &sess, nil
}

// Delete removes a session and its entry in the owner's token set.
func (s *SessionStore) Delete(ctx context.Context, token string) error {
	sess, err := s.Get(ctx, token)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if sess == nil {
		return nil
	}
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, sessionKey(token))
		pipe.SRem(ctx, userSessionsKey(sess.UserID), token)
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete session: %w: %w", store.ErrUnavailable, err)
	}
	return nil
}

// prune drops tokens whose session has already expired from the user's set.
func (s *SessionStore) prune(ctx context.Context, userID string) error {
	key := userSessionsKey(userID)
	tokens, err := s.rdb.SMembers(ctx, key).Result()
	if err != nil || len(tokens) == 0 {
		return err
	}
	cmds, err := s.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, t := range tokens {
			pipe.Exists(ctx, sessionKey(t))
		}
		return nil
	})
	if err != nil {
		return err
	}
	var stale []any
	for i, cmd := range cmds {
		if cmd.(*redis.IntCmd).Val() == 0 {
			stale = append(stale, tokens[i])
		}
	}
	if len(stale) == 0 {
		return nil
	}
	return s.rdb.SRem(ctx, key, stale...).Err()
}

// RevokeUser deletes every live session of the user.
func (s *SessionStore) RevokeUser(ctx context.Context, userID string) error {
	tokens, err := s.rdb.SMembers(ctx, userSessionsKey(userID)).Result()
	if err != nil {
		return fmt.Errorf("list user sessions: %w: %w", store.ErrUnavailable, err)
	}
	keys := make([]string, 0, len(tokens)+1)
	for _, t := range tokens {
		keys = append(keys, sessionKey(t))
	}
	keys = append(keys, userSessionsKey(userID))
	if err := s.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("revoke user sessions: %w: %w", store.ErrUnavailable, err)
	}
	return nil
}
