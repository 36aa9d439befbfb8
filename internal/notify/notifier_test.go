package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSender records every message it is asked to send.
type fakeSender struct {
	name string
	err  error

	mu   sync.Mutex
	sent []string
}

func (f *fakeSender) Send(_ context.Context, title, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, title)
	return nil
}

func (f *fakeSender) Name() string { return f.name }

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNotifyFiltersEvents(t *testing.T) {
	sender := &fakeSender{name: "fake"}
	n := NewNotifier([]Sender{sender}, []string{"slip_placed", "slip_closed"}, testLogger())
	ctx := context.Background()

	require.NoError(t, n.Notify(ctx, "slip_placed", "placed", "msg"))
	require.NoError(t, n.Notify(ctx, "slip_failed", "failed", "msg"))
	require.NoError(t, n.Notify(ctx, "slip_closed", "closed", "msg"))

	assert.Equal(t, 2, sender.count())
}

func TestNotifyAggregatesSenderFailures(t *testing.T) {
	ok := &fakeSender{name: "ok"}
	broken := &fakeSender{name: "broken", err: errors.New("webhook down")}
	n := NewNotifier([]Sender{ok, broken}, []string{"slip_placed"}, testLogger())

	err := n.Notify(context.Background(), "slip_placed", "placed", "msg")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 sender(s) failed")
	assert.Equal(t, 1, ok.count())
}

func TestNotifyWithoutSendersIsNoop(t *testing.T) {
	n := NewNotifier(nil, []string{"slip_placed"}, testLogger())
	require.NoError(t, n.Notify(context.Background(), "slip_placed", "placed", "msg"))
}
