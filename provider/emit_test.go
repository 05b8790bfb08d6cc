package provider

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmit(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	events := make(chan StreamEvent, 1)

	require.True(t, Emit(ctx, events, Content{Text: "a"}))

	// Channel full with nobody reading: cancellation must release the sender
	// instead of parking it.
	cancel()
	assert.False(t, Emit(ctx, events, Content{Text: "b"}))
	assert.Len(t, events, 1)
}
