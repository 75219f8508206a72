package mail

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogMailerRecordsMessage(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	m := NewLogMailer(zap.New(core))

	err := m.Send(context.Background(), Message{To: "p@example.com", Subject: "Reset", Text: "link"})
	require.NoError(t, err)

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "p@example.com", entries[0].ContextMap()["to"])
	assert.Equal(t, "Reset", entries[0].ContextMap()["subject"])
}

func TestSMTPMailerHonoursCanceledContext(t *testing.T) {
	m := NewSMTPMailer("127.0.0.1", 1, "", "", "clinic@example.com")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := m.Send(ctx, Message{To: "p@example.com", Subject: "x", Text: "y"})
	assert.ErrorIs(t, err, context.Canceled)
}
