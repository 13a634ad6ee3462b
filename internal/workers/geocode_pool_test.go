package workers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type geocodeFunc func(ctx context.Context, lat, lng float64) (string, error)

func (f geocodeFunc) ReverseGeocode(ctx context.Context, lat, lng float64) (string, error) {
	return f(ctx, lat, lng)
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func startPool(t *testing.T, g ReverseGeocoder, size int, timeout time.Duration) (*GeocodePool, context.CancelFunc, <-chan struct{}) {
	t.Helper()
	p := NewGeocodePool(g, size, timeout, discard())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()
	require.Eventually(t, func() bool {
		p.mu.RLock()
		defer p.mu.RUnlock()
		return p.running
	}, time.Second, time.Millisecond)
	return p, cancel, done
}

func TestGeocodePool_DeliversResults(t *testing.T) {
	var calls atomic.Int32
	p, cancel, done := startPool(t, geocodeFunc(func(_ context.Context, lat, lng float64) (string, error) {
		calls.Add(1)
		if lat < 0 {
			return "", errors.New("no address")
		}
		return "somewhere", nil
	}), 2, time.Second)

	require.True(t, p.Submit(GeocodeJob{ID: 1, Lat: 1, Lng: 1}))
	require.True(t, p.Submit(GeocodeJob{ID: 2, Lat: -1, Lng: 1}))

	got := map[int64]GeocodeResult{}
	for len(got) < 2 {
		select {
		case r := <-p.Results():
			got[r.ID] = r
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out, got %v", got)
		}
	}

	assert.Equal(t, "somewhere", got[1].Address)
	assert.NoError(t, got[1].Err)
	assert.Error(t, got[2].Err)
	assert.Equal(t, int32(2), calls.Load())

	cancel()
	<-done

	_, open := <-p.Results()
	assert.False(t, open, "results must be closed after Run returns")
	assert.False(t, p.Submit(GeocodeJob{ID: 3}), "submit after stop")
}

func TestGeocodePool_PerJobTimeout(t *testing.T) {
	p, cancel, done := startPool(t, geocodeFunc(func(ctx context.Context, _, _ float64) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}), 1, 20*time.Millisecond)
	defer func() { cancel(); <-done }()

	require.True(t, p.Submit(GeocodeJob{ID: 7}))

	select {
	case r := <-p.Results():
		assert.Equal(t, int64(7), r.ID)
		assert.ErrorIs(t, r.Err, context.DeadlineExceeded)
	case <-time.After(2 * time.Second):
		t.Fatalf("job did not time out")
	}
}

func TestGeocodePool_SubmitBeforeRun(t *testing.T) {
	p := NewGeocodePool(geocodeFunc(func(context.Context, float64, float64) (string, error) { return "", nil }), 1, time.Second, discard())
	assert.False(t, p.Submit(GeocodeJob{ID: 1}))
}

func TestGeocodePool_StartStop(t *testing.T) {
	p := NewGeocodePool(geocodeFunc(func(context.Context, float64, float64) (string, error) { return "here", nil }), 1, time.Second, discard())
	p.Start(context.Background())

	require.True(t, p.Submit(GeocodeJob{ID: 9}))
	r := <-p.Results()
	assert.Equal(t, "here", r.Address)

	p.Stop()
	p.Stop()
	assert.False(t, p.Submit(GeocodeJob{ID: 10}))
	_, open := <-p.Results()
	assert.False(t, open)
}

func TestGeocodePool_DrainFinishesQueued(t *testing.T) {
	p := NewGeocodePool(geocodeFunc(func(ctx context.Context, _, _ float64) (string, error) {
		select {
		case <-time.After(20 * time.Millisecond):
			return "slow street", nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}), 1, time.Second, discard())
	p.Start(context.Background())

	for id := int64(1); id <= 3; id++ {
		require.True(t, p.Submit(GeocodeJob{ID: id}))
	}

	assert.True(t, p.Drain(2*time.Second))
	assert.False(t, p.Submit(GeocodeJob{ID: 4}))

	var got []GeocodeResult
	for r := range p.Results() {
		got = append(got, r)
	}
	require.Len(t, got, 3)
	for _, r := range got {
		assert.NoError(t, r.Err)
		assert.Equal(t, "slow street", r.Address)
	}
}

func TestGeocodePool_DrainTimeout(t *testing.T) {
	p := NewGeocodePool(geocodeFunc(func(ctx context.Context, _, _ float64) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}), 1, time.Minute, discard())
	p.Start(context.Background())

	require.True(t, p.Submit(GeocodeJob{ID: 1}))
	require.True(t, p.Submit(GeocodeJob{ID: 2}))

	start := time.Now()
	assert.False(t, p.Drain(30*time.Millisecond))
	assert.Less(t, time.Since(start), 5*time.Second)

	for r := range p.Results() {
		assert.Error(t, r.Err)
	}
}
