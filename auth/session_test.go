package auth

import (
	"context"
	"strings"
	"testing"
	"time"

	"articlehub/types"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testUser = &types.User{ID: 7, Username: "admin"}

func newRedisRegistry(t *testing.T) (*RedisRegistry, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisRegistry(client, ""), mr
}

func TestSessionIssueVerifyRevoke(t *testing.T) {
	registries := map[string]Registry{"memory": NewMemoryRegistry()}
	redisReg, _ := newRedisRegistry(t)
	registries["redis"] = redisReg

	for name, reg := range registries {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			m := NewSessionManager(SessionConfig{Secret: []byte("s3cret"), TTL: time.Hour}, reg)

			token, issued, err := m.Issue(ctx, testUser)
			require.NoError(t, err)
			assert.NotEmpty(t, issued.ID)

			s, err := m.Verify(ctx, token)
			require.NoError(t, err)
			assert.Equal(t, issued.ID, s.ID)
			assert.Equal(t, int64(7), s.UserID)
			assert.Equal(t, "admin", s.Username)

			require.NoError(t, m.Revoke(ctx, token))
			_, err = m.Verify(ctx, token)
			assert.ErrorIs(t, err, types.ErrUnauthorized)

			require.NoError(t, m.Revoke(ctx, token), "revoking twice is a no-op")
		})
	}
}

func TestSessionRejectsTampering(t *testing.T) {
	ctx := context.Background()
	reg := NewMemoryRegistry()
	m := NewSessionManager(SessionConfig{Secret: []byte("one"), TTL: time.Hour}, reg)
	token, _, err := m.Issue(ctx, testUser)
	require.NoError(t, err)

	other := NewSessionManager(SessionConfig{Secret: []byte("two"), TTL: time.Hour}, reg)
	_, err = other.Verify(ctx, token)
	assert.ErrorIs(t, err, types.ErrUnauthorized)

	foreign := NewSessionManager(SessionConfig{Secret: []byte("one"), Issuer: "elsewhere", TTL: time.Hour}, reg)
	_, err = foreign.Verify(ctx, token)
	assert.ErrorIs(t, err, types.ErrUnauthorized)

	_, err = m.Verify(ctx, "not-a-token")
	assert.ErrorIs(t, err, types.ErrUnauthorized)

	parts := strings.Split(token, ".")
	require.Len(t, parts, 3)
	_, err = m.Verify(ctx, parts[0]+"."+parts[1]+".AAAA")
	assert.ErrorIs(t, err, types.ErrUnauthorized)
}

func TestSessionRejectsNoneAlgorithm(t *testing.T) {
	m := NewSessionManager(SessionConfig{Secret: []byte("k"), TTL: time.Hour}, NewMemoryRegistry())
	claims := sessionClaims{
		Username: "admin",
		RegisteredClaims: jwt.RegisteredClaims{
			ID: "x", Issuer: "articlehub", Subject: "7",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = m.Verify(context.Background(), token)
	assert.ErrorIs(t, err, types.ErrUnauthorized)
}

func TestSessionExpires(t *testing.T) {
	ctx := context.Background()
	reg := NewMemoryRegistry()
	m := NewSessionManager(SessionConfig{Secret: []byte("k"), TTL: time.Minute}, reg)

	token, _, err := m.Issue(ctx, testUser)
	require.NoError(t, err)

	later := time.Now().Add(2 * time.Minute)
	m.now = func() time.Time { return later }
	_, err = m.Verify(ctx, token)
	assert.ErrorIs(t, err, types.ErrUnauthorized)
}

func TestRedisRegistryExpiresKeys(t *testing.T) {
	ctx := context.Background()
	reg, mr := newRedisRegistry(t)

	require.NoError(t, reg.Add(ctx, "abc", 1, time.Minute))
	ok, err := reg.Active(ctx, "abc")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, mr.Exists("articlehub:session:abc"))

	mr.FastForward(2 * time.Minute)
	ok, err = reg.Active(ctx, "abc")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisRegistryFailureIsStorageError(t *testing.T) {
	reg, mr := newRedisRegistry(t)
	mr.Close()

	_, err := reg.Active(context.Background(), "abc")
	assert.ErrorIs(t, err, types.ErrStorage)
}

func TestMemoryRegistryExpiry(t *testing.T) {
	ctx := context.Background()
	reg := NewMemoryRegistry()
	now := time.Now()
	reg.now = func() time.Time { return now }

	require.NoError(t, reg.Add(ctx, "a", 1, time.Minute))
	ok, _ := reg.Active(ctx, "a")
	assert.True(t, ok)

	now = now.Add(time.Minute)
	ok, _ = reg.Active(ctx, "a")
	assert.False(t, ok)

	require.NoError(t, reg.Add(ctx, "b", 1, time.Minute))
	assert.NotContains(t, reg.sessions, "a")
}
