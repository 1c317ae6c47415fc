package notifier

import (
	"context"
	"encoding/base64"
	"errors"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmail_ComposeAndSend(t *testing.T) {
	var (
		gotAddr string
		gotFrom string
		gotTo   []string
		gotMsg  []byte
	)
	e := NewEmailNotifier("me@example.com", "code", "smtp.example.com", 0)
	e.now = func() time.Time { return time.Date(2024, 3, 15, 8, 0, 0, 0, time.UTC) }
	e.SendMail = func(_ context.Context, addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, msg
		return nil
	}

	require.True(t, e.Enabled())
	require.NoError(t, e.Send(context.Background(), TitleLow, "💡 light: warning, 5.0 kWh left"))

	assert.Equal(t, "smtp.example.com:465", gotAddr)
	assert.Equal(t, "me@example.com", gotFrom)
	assert.Equal(t, []string{"me@example.com"}, gotTo)

	head, body, ok := strings.Cut(string(gotMsg), "\r\n\r\n")
	require.True(t, ok)
	assert.Contains(t, head, "From: me@example.com\r\n")
	assert.Contains(t, head, "To: me@example.com\r\n")
	assert.Contains(t, head, "Subject: =?utf-8?q?")
	assert.Contains(t, head, "Content-Type: text/plain; charset=UTF-8")

	decoded, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(strings.TrimSpace(body), "\r\n", ""))
	require.NoError(t, err)
	assert.Equal(t, "💡 light: warning, 5.0 kWh left", string(decoded))
}

func TestEmail_SendErrorWrapped(t *testing.T) {
	e := NewEmailNotifier("me@example.com", "code", "smtp.example.com", 465)
	sentinel := errors.New("connection refused")
	e.SendMail = func(context.Context, string, smtp.Auth, string, []string, []byte) error { return sentinel }

	err := e.Send(context.Background(), "t", "b")
	assert.ErrorIs(t, err, sentinel)
}

func TestEmail_Enabled(t *testing.T) {
	assert.False(t, NewEmailNotifier("me@example.com", "", "smtp.example.com", 465).Enabled())
	assert.False(t, NewEmailNotifier("", "code", "smtp.example.com", 465).Enabled())
}
