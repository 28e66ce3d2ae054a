package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/chris-alexander-pop/ratelimitcore/pkg/logger"
	"github.com/stretchr/testify/assert"
)

func TestRedactHandlerRedactsEmail(t *testing.T) {
	var buf bytes.Buffer
	h := logger.NewRedactHandler(slog.NewJSONHandler(&buf, nil))
	l := slog.New(h)

	l.InfoContext(context.Background(), "login", "email", "user@example.com")

	var out map[string]any
	assert.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	assert.Equal(t, "[REDACTED]", out["email"])
}

func TestRedactHandlerLeavesCleanFieldsAlone(t *testing.T) {
	var buf bytes.Buffer
	h := logger.NewRedactHandler(slog.NewJSONHandler(&buf, nil))
	l := slog.New(h)

	l.InfoContext(context.Background(), "decision", "key_prefix", "user:123", "allowed", true)

	var out map[string]any
	assert.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	assert.Equal(t, "user:123", out["key_prefix"])
	assert.Equal(t, true, out["allowed"])
}

func TestSamplingHandlerAlwaysKeepsWarnings(t *testing.T) {
	var buf bytes.Buffer
	h := logger.NewSamplingHandler(slog.NewJSONHandler(&buf, nil), 0.0)
	l := slog.New(h)

	l.WarnContext(context.Background(), "storage degraded")
	assert.Contains(t, buf.String(), "storage degraded")
}

func TestSamplingHandlerDropsAtZeroRate(t *testing.T) {
	var buf bytes.Buffer
	h := logger.NewSamplingHandler(slog.NewJSONHandler(&buf, nil), 0.0)
	l := slog.New(h)

	l.InfoContext(context.Background(), "cache probe")
	assert.Empty(t, buf.String())
}

// blockingHandler holds every record until release is closed, so the async
// writer goroutine stalls and the buffer fills.
type blockingHandler struct {
	slog.Handler
	release chan struct{}
}

func (b blockingHandler) Handle(ctx context.Context, r slog.Record) error {
	<-b.release
	return b.Handler.Handle(ctx, r)
}

func TestAsyncHandlerDropsWhenFull(t *testing.T) {
	var buf bytes.Buffer
	blocker := make(chan struct{})
	inner := slog.NewJSONHandler(&buf, nil)

	h := logger.NewAsyncHandler(blockingHandler{Handler: inner, release: blocker}, 1, true)

	for i := 0; i < 100; i++ {
		_ = h.Handle(context.Background(), slog.Record{Time: time.Now(), Message: "x"})
	}

	// The writer holds at most one record and the buffer one more, so the
	// rest of the 100 records must have been dropped.
	assert.Greater(t, h.Dropped(), int64(0))
	close(blocker)
}
