package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndParse(t *testing.T) {
	svc := NewService("strategyvault", []byte("test-secret"))

	token, err := svc.IssueToken("owner-1", time.Hour)
	require.NoError(t, err)

	ownerID, err := svc.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, "owner-1", ownerID)
}

func TestParseRejectsExpiredToken(t *testing.T) {
	svc := NewService("strategyvault", []byte("test-secret"))

	token, err := svc.IssueToken("owner-1", -time.Minute)
	require.NoError(t, err)

	_, err = svc.ParseToken(token)
	assert.Error(t, err)
}

func TestParseRejectsWrongSecret(t *testing.T) {
	token, err := NewService("strategyvault", []byte("secret-a")).IssueToken("owner-1", time.Hour)
	require.NoError(t, err)

	_, err = NewService("strategyvault", []byte("secret-b")).ParseToken(token)
	assert.Error(t, err)
}

func TestParseRejectsWrongIssuer(t *testing.T) {
	token, err := NewService("other-issuer", []byte("test-secret")).IssueToken("owner-1", time.Hour)
	require.NoError(t, err)

	_, err = NewService("strategyvault", []byte("test-secret")).ParseToken(token)
	assert.Error(t, err)
}
