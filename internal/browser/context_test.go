package browser

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type ctxKey string

func TestCombineContextCancelsOnEither(t *testing.T) {
	t.Run("primary cancellation propagates", func(t *testing.T) {
		primary, cancelPrimary := context.WithCancel(context.Background())
		combined, cleanup := CombineContext(primary, context.Background())
		defer cleanup()

		cancelPrimary()
		select {
		case <-combined.Done():
		case <-time.After(time.Second):
			t.Fatal("combined context did not observe primary cancellation")
		}
	})

	t.Run("secondary cancellation propagates", func(t *testing.T) {
		secondary, cancelSecondary := context.WithCancel(context.Background())
		combined, cleanup := CombineContext(context.Background(), secondary)
		defer cleanup()

		cancelSecondary()
		select {
		case <-combined.Done():
		case <-time.After(time.Second):
			t.Fatal("combined context did not observe secondary cancellation")
		}
	})

	t.Run("cleanup releases the watcher", func(t *testing.T) {
		combined, cleanup := CombineContext(context.Background(), context.Background())
		cleanup()
		select {
		case <-combined.Done():
		case <-time.After(time.Second):
			t.Fatal("cleanup did not cancel the combined context")
		}
	})
}

func TestCombineContextCarriesPrimaryValues(t *testing.T) {
	primary := context.WithValue(context.Background(), ctxKey("tab"), "t-1")
	combined, cleanup := CombineContext(primary, context.Background())
	defer cleanup()

	assert.Equal(t, "t-1", combined.Value(ctxKey("tab")))
}

func TestDetachKeepsValuesDropsCancellation(t *testing.T) {
	parent, cancel := context.WithCancel(
		context.WithValue(context.Background(), ctxKey("tab"), "t-2"))

	detached := Detach(parent)
	cancel()

	// Values survive so chromedp can still resolve its target...
	require.Equal(t, "t-2", detached.Value(ctxKey("tab")))
	// ...but the parent's cancellation does not propagate.
	select {
	case <-detached.Done():
		t.Fatal("detached context must not observe parent cancellation")
	default:
	}
	assert.NoError(t, detached.Err())
}
