package storage

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSignedURLSignerGenerateAndParse(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Hour)
	token, expiresAt, err := signer.Generate("run-1", "run-1/timetable.csv")
	require.NoError(t, err)
	require.NotEmpty(t, token)
	require.False(t, expiresAt.IsZero())

	ticket, err := signer.Parse(token)
	require.NoError(t, err)
	require.Equal(t, "run-1", ticket.RunID)
	require.Equal(t, "run-1/timetable.csv", ticket.Path)
	require.WithinDuration(t, expiresAt, ticket.ExpiresAt, time.Second)
}

func TestSignedURLSignerExpired(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Minute)
	token, _, err := signer.Generate("run-1", "run-1/timetable.csv")
	require.NoError(t, err)

	signer.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	ticket, err := signer.Parse(token)
	require.True(t, errors.Is(err, ErrTokenExpired))
	require.Equal(t, "run-1", ticket.RunID)
	require.Equal(t, "run-1/timetable.csv", ticket.Path)
}

func TestSignedURLSignerRejectsTampering(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Hour)
	token, _, err := signer.Generate("run-1", "run-1/timetable.csv")
	require.NoError(t, err)

	parts := strings.Split(token, ".")
	parts[0] = "run-2"
	_, err = signer.Parse(strings.Join(parts, "."))
	require.Error(t, err)

	_, err = NewSignedURLSigner("other", time.Hour).Parse(token)
	require.Error(t, err)

	_, err = signer.Parse("garbage")
	require.Error(t, err)
}

func TestSignedURLSignerValidatesInput(t *testing.T) {
	_, _, err := NewSignedURLSigner("", time.Hour).Generate("run", "file.csv")
	require.Error(t, err)
	_, _, err = NewSignedURLSigner("secret", time.Hour).Generate("run.1", "file.csv")
	require.Error(t, err)
}
