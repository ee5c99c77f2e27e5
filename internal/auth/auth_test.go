package auth

import (
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMintAndVerify(t *testing.T) {
	clock := quartz.NewMock(t)
	svc := New("test-secret", time.Hour, clock)

	token, err := svc.Mint(42, true)
	require.NoError(t, err)

	claims, err := svc.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, int64(42), claims.UserID)
	assert.True(t, claims.Guest)
}

func TestVerifyRejectsGarbage(t *testing.T) {
	svc := New("test-secret", time.Hour, quartz.NewMock(t))

	_, err := svc.Verify("")
	assert.ErrorIs(t, err, ErrInvalidToken)
	_, err = svc.Verify("not.a.token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	clock := quartz.NewMock(t)
	token, err := New("secret-a", time.Hour, clock).Mint(7, false)
	require.NoError(t, err)

	_, err = New("secret-b", time.Hour, clock).Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsExpired(t *testing.T) {
	clock := quartz.NewMock(t)
	svc := New("test-secret", time.Hour, clock)

	token, err := svc.Mint(7, false)
	require.NoError(t, err)

	clock.Advance(2 * time.Hour)
	_, err = svc.Verify(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}
