package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"articlehub/types"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Session is a verified login.
type Session struct {
	ID        string
	UserID    int64
	Username  string
	ExpiresAt time.Time
}

// Registry remembers which session IDs are still live, so a token can be
// revoked before it expires.
type Registry interface {
	Add(ctx context.Context, id string, userID int64, ttl time.Duration) error
	Active(ctx context.Context, id string) (bool, error)
	Revoke(ctx context.Context, id string) error
}

// SessionConfig holds token signing configuration.
type SessionConfig struct {
	Secret []byte
	Issuer string
	TTL    time.Duration
}

type sessionClaims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// SessionManager issues and verifies HS256 session tokens.
type SessionManager struct {
	cfg      SessionConfig
	registry Registry
	now      func() time.Time
}

func NewSessionManager(cfg SessionConfig, registry Registry) *SessionManager {
	if cfg.TTL <= 0 {
		cfg.TTL = 24 * time.Hour
	}
	if cfg.Issuer == "" {
		cfg.Issuer = "articlehub"
	}
	return &SessionManager{cfg: cfg, registry: registry, now: time.Now}
}

// TTL is how long issued sessions live.
func (m *SessionManager) TTL() time.Duration { return m.cfg.TTL }

// Issue signs a token for u and registers its session.
func (m *SessionManager) Issue(ctx context.Context, u *types.User) (string, Session, error) {
	now := m.now()
	s := Session{
		ID:        uuid.NewString(),
		UserID:    u.ID,
		Username:  u.Username,
		ExpiresAt: now.Add(m.cfg.TTL).Truncate(time.Second),
	}
	claims := sessionClaims{
		Username: u.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        s.ID,
			Issuer:    m.cfg.Issuer,
			Subject:   strconv.FormatInt(u.ID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(s.ExpiresAt),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.cfg.Secret)
	if err != nil {
		return "", Session{}, fmt.Errorf("failed to sign session: %w", err)
	}
	if err := m.registry.Add(ctx, s.ID, u.ID, m.cfg.TTL); err != nil {
		return "", Session{}, err
	}
	return token, s, nil
}

// Verify checks signature, issuer, expiry and that the session was not revoked.
func (m *SessionManager) Verify(ctx context.Context, token string) (Session, error) {
	var claims sessionClaims
	_, err := jwt.ParseWithClaims(token, &claims,
		func(*jwt.Token) (any, error) { return m.cfg.Secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.cfg.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return Session{}, fmt.Errorf("%w: %w", types.ErrUnauthorized, err)
	}

	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || claims.ID == "" {
		return Session{}, fmt.Errorf("%w: malformed session claims", types.ErrUnauthorized)
	}
	active, err := m.registry.Active(ctx, claims.ID)
	if err != nil {
		return Session{}, err
	}
	if !active {
		return Session{}, fmt.Errorf("%w: session revoked", types.ErrUnauthorized)
	}

	return Session{
		ID:        claims.ID,
		UserID:    userID,
		Username:  claims.Username,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// Revoke ends the session behind token. Invalid or expired tokens are a no-op.
func (m *SessionManager) Revoke(ctx context.Context, token string) error {
	s, err := m.Verify(ctx, token)
	if errors.Is(err, types.ErrUnauthorized) {
		return nil
	}
	if err != nil {
		return err
	}
	return m.registry.Revoke(ctx, s.ID)
}

// RedisRegistry keeps sessions as expiring Redis keys.
type RedisRegistry struct {
	client redis.Cmdable
	prefix string
}

func NewRedisRegistry(client redis.Cmdable, prefix string) *RedisRegistry {
	if prefix == "" {
		prefix = "articlehub:session:"
	}
	return &RedisRegistry{client: client, prefix: prefix}
}

func (r *RedisRegistry) Add(ctx context.Context, id string, userID int64, ttl time.Duration) error {
	if err := r.client.Set(ctx, r.prefix+id, userID, ttl).Err(); err != nil {
		return types.StorageError("store session", err)
	}
	return nil
}

func (r *RedisRegistry) Active(ctx context.Context, id string) (bool, error) {
	n, err := r.client.Exists(ctx, r.prefix+id).Result()
	if err != nil {
		return false, types.StorageError("lookup session", err)
	}
	return n > 0, nil
}

func (r *RedisRegistry) Revoke(ctx context.Context, id string) error {
	if err := r.client.Del(ctx, r.prefix+id).Err(); err != nil {
		return types.StorageError("revoke session", err)
	}
	return nil
}

// MemoryRegistry is a process-local registry for single-instance deployments.
type MemoryRegistry struct {
	mu       sync.Mutex
	sessions map[string]time.Time
	now      func() time.Time
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{sessions: make(map[string]time.Time), now: time.Now}
}

func (r *MemoryRegistry) Add(_ context.Context, id string, _ int64, ttl time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	for sid, exp := range r.sessions {
		if !now.Before(exp) {
			delete(r.sessions, sid)
		}
	}
	r.sessions[id] = now.Add(ttl)
	return nil
}

func (r *MemoryRegistry) Active(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	exp, ok := r.sessions[id]
	return ok && r.now().Before(exp), nil
}

func (r *MemoryRegistry) Revoke(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
	return nil
}
