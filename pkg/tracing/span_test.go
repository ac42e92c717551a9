package tracing

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpanTree(t *testing.T) {
	ctx, root := StartSpan(context.Background(), "ingest", "trace-1")
	childCtx, child := StartChildSpan(ctx, "publish")
	child.SetAttr("count", 3)
	child.End()
	root.End()

	assert.Equal(t, "trace-1", TraceID(childCtx))
	require.Len(t, root.Children, 1)
	assert.Equal(t, "trace-1", root.Children[0].TraceID)

	var buf bytes.Buffer
	root.Log(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "span=ingest")
	assert.Contains(t, lines[1], "span=publish")
	assert.Contains(t, lines[1], "count=3")
	assert.Contains(t, lines[1], "depth=1")
}

func TestChildWithoutParent(t *testing.T) {
	ctx, span := StartChildSpan(context.Background(), "orphan")
	span.End()
	assert.Same(t, span, FromContext(ctx))
	assert.Empty(t, TraceID(ctx))
}

func TestNewTraceID(t *testing.T) {
	a, b := NewTraceID(), NewTraceID()
	assert.Len(t, a, 32)
	assert.NotEqual(t, a, b)
}
