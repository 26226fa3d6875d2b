package email

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/medvault-api/internal/config"
)

func TestNewMessage(t *testing.T) {
	m := newMessage("no-reply@medvault.local", "p@x.com", "Appointment approved", "See you at 09:00")

	assert.Equal(t, []string{"no-reply@medvault.local"}, m.GetHeader("From"))
	assert.Equal(t, []string{"p@x.com"}, m.GetHeader("To"))
	assert.Equal(t, []string{"Appointment approved"}, m.GetHeader("Subject"))

	var buf bytes.Buffer
	_, err := m.WriteTo(&buf)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "See you at 09:00")
}

func TestSendCustom_CancelledContext(t *testing.T) {
	svc := NewSMTPService(config.SMTPConfig{Host: "127.0.0.1", Port: 1, From: "a@b.c"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, svc.SendCustom(ctx, "p@x.com", "s", "b"), context.Canceled)
}
