package panicerr

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSafe(t *testing.T) {
	boom := errors.New("boom")
	assert.NoError(t, Safe(func() error { return nil })())
	assert.ErrorIs(t, Safe(func() error { return boom })(), boom)

	err := Safe(func() error { panic("walk exploded") })()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "walk exploded")
}

func TestSafeContext(t *testing.T) {
	type key struct{}
	ctx := context.WithValue(context.Background(), key{}, "v")
	err := SafeContext(func(ctx context.Context) error {
		if ctx.Value(key{}) != "v" {
			return errors.New("context not passed through")
		}
		var m map[string]int
		m["x"] = 1
		return nil
	})(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nil map")
}

func TestGo_RecoversPanic(t *testing.T) {
	done := make(chan struct{})
	Go(context.Background(), "test", func(context.Context) {
		defer close(done)
		panic("background")
	})
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("job did not run")
	}
}
