package insights

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPasswordHash(t *testing.T) {
	hash, err := HashPassword("correct horse")
	require.NoError(t, err)
	assert.NotEqual(t, "correct horse", hash)
	assert.True(t, CheckPassword(hash, "correct horse"))
	assert.False(t, CheckPassword(hash, "wrong horse"))
	assert.False(t, CheckPassword("not-a-hash", "correct horse"))
}

func TestClaimsIsAdmin(t *testing.T) {
	tests := []struct {
		name   string
		claims Claims
		want   bool
	}{
		{"anonymous", Claims{}, false},
		{"reader", Claims{UserID: "u1", Role: RoleReader}, false},
		{"admin", Claims{UserID: "u1", Role: RoleAdmin}, true},
		{"role without user", Claims{Role: RoleAdmin}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.claims.IsAdmin())
			if tt.want {
				assert.NoError(t, RequireAdmin(tt.claims))
			} else {
				assert.ErrorIs(t, RequireAdmin(tt.claims), ErrUnauthorized)
			}
		})
	}
}

func TestTokenRoundTrip(t *testing.T) {
	issuer := NewTokenIssuer("s3cret", time.Hour)
	want := Claims{UserID: "u1", Email: "admin@example.com", Role: RoleAdmin}

	token, exp, err := issuer.Issue(want)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), exp, 5*time.Second)

	got, err := issuer.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestTokenRejected(t *testing.T) {
	issuer := NewTokenIssuer("s3cret", time.Hour)
	token, _, err := issuer.Issue(Claims{UserID: "u1", Role: RoleAdmin})
	require.NoError(t, err)

	t.Run("wrong secret", func(t *testing.T) {
		_, err := NewTokenIssuer("other", time.Hour).Parse(token)
		assert.ErrorIs(t, err, ErrUnauthorized)
	})
	t.Run("expired", func(t *testing.T) {
		later := NewTokenIssuer("s3cret", time.Hour)
		later.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
		_, err := later.Parse(token)
		assert.ErrorIs(t, err, ErrUnauthorized)
	})
	t.Run("garbage", func(t *testing.T) {
		_, err := issuer.Parse("not.a.token")
		assert.ErrorIs(t, err, ErrUnauthorized)
	})
	t.Run("anonymous claims", func(t *testing.T) {
		anon, _, err := issuer.Issue(Claims{})
		require.NoError(t, err)
		_, err = issuer.Parse(anon)
		assert.ErrorIs(t, err, ErrUnauthorized)
	})
}
