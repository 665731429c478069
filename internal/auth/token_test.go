package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/civic-issue-service/internal/domain"
	apperrors "github.com/spec-kit/civic-issue-service/pkg/util"
)

func TestTokenRoundTrip(t *testing.T) {
	manager := NewManager("secret", 60)
	member := &domain.Member{ID: "member-1", Role: domain.MemberRoleSupervisor}

	token, err := manager.Generate(member)
	require.NoError(t, err)

	claims, err := manager.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "member-1", claims.MemberID)
	assert.Equal(t, "supervisor", claims.Role)
}

func TestParseRejectsWrongSecret(t *testing.T) {
	token, err := NewManager("secret-a", 60).Generate(&domain.Member{ID: "member-1"})
	require.NoError(t, err)

	_, err = NewManager("secret-b", 60).Parse(token)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, "UNAUTHORIZED"))
}

func TestParseRejectsExpiredToken(t *testing.T) {
	manager := NewManager("secret", -1)
	// Negative TTL falls back to the default, so force expiry by
	// issuing with a tiny window instead.
	manager.ttl = -1

	token, err := manager.Generate(&domain.Member{ID: "member-1"})
	require.NoError(t, err)

	_, err = manager.Parse(token)
	require.Error(t, err)
}

func TestParseRejectsGarbage(t *testing.T) {
	_, err := NewManager("secret", 60).Parse("not-a-token")
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, "UNAUTHORIZED"))
}

func TestPasswordHashAndCheck(t *testing.T) {
	hash, err := HashPassword("hunter2", 4)
	require.NoError(t, err)
	assert.NotEqual(t, "hunter2", hash)

	assert.True(t, CheckPassword(hash, "hunter2"))
	assert.False(t, CheckPassword(hash, "hunter3"))
}
