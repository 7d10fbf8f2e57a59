package mpesa

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenCache_ReusesUntilExpiry(t *testing.T) {
	var calls int32
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	c := NewTokenCache(time.Minute, func(ctx context.Context) (string, time.Duration, error) {
		n := atomic.AddInt32(&calls, 1)
		return "tok-" + string(rune('0'+n)), time.Hour, nil
	})
	c.now = func() time.Time { return now }

	tok, err := c.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-1", tok)

	now = now.Add(58 * time.Minute)
	tok, _ = c.Get(context.Background())
	assert.Equal(t, "tok-1", tok)

	// inside the skew window the cached token counts as expired
	now = now.Add(90 * time.Second)
	tok, _ = c.Get(context.Background())
	assert.Equal(t, "tok-2", tok)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestTokenCache_ConcurrentRefreshCollapses(t *testing.T) {
	var calls int32
	c := NewTokenCache(0, func(ctx context.Context) (string, time.Duration, error) {
		atomic.AddInt32(&calls, 1)
		time.Sleep(10 * time.Millisecond)
		return "tok", time.Hour, nil
	})
	wg := sync.WaitGroup{}
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tok, err := c.Get(context.Background())
			assert.NoError(t, err)
			assert.Equal(t, "tok", tok)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestTokenCache_ErrorsAndInvalidate(t *testing.T) {
	fail := true
	c := NewTokenCache(0, func(ctx context.Context) (string, time.Duration, error) {
		if fail {
			return "", 0, errors.New("boom")
		}
		return "tok", time.Hour, nil
	})
	_, err := c.Get(context.Background())
	assert.Error(t, err)

	fail = false
	tok, err := c.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok", tok)

	c.Invalidate()
	assert.Empty(t, c.token)

	expired := NewTokenCache(0, func(ctx context.Context) (string, time.Duration, error) {
		return "stale", 0, nil
	})
	_, err = expired.Get(context.Background())
	assert.Error(t, err)
}
