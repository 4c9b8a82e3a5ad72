package workerpool

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	return Config{Workers: 4, QueueSize: 16, MaxRetries: 2, RetryDelay: time.Millisecond, ShutdownTimeout: time.Second}
}

func TestPool_Do(t *testing.T) {
	p, err := New(testConfig(), func(_ context.Context, s string) (string, error) {
		return strings.ToUpper(s), nil
	}, nil, nil)
	require.NoError(t, err)
	p.Start()
	defer p.Stop()

	got, err := p.Do(context.Background(), "1", "paracetamol")
	require.NoError(t, err)
	assert.Equal(t, "PARACETAMOL", got)
}

func TestPool_ResultsRouteToTheirSubmitter(t *testing.T) {
	p, err := New(testConfig(), func(_ context.Context, n int) (int, error) {
		time.Sleep(time.Duration(n%3) * time.Millisecond)
		return n * n, nil
	}, nil, nil)
	require.NoError(t, err)
	p.Start()

	chans := make([]<-chan Result[int], 10)
	for i := range chans {
		chans[i], err = p.Submit(context.Background(), "", i)
		require.NoError(t, err)
	}
	for i, ch := range chans {
		r := <-ch
		require.NoError(t, r.Err)
		assert.Equal(t, i*i, r.Value)
	}

	require.NoError(t, p.Stop())
	assert.Equal(t, int64(10), p.Stats().TasksCompleted)
}

func TestPool_Retries(t *testing.T) {
	var calls atomic.Int32
	errTransient := errors.New("transient")

	p, err := New(testConfig(), func(context.Context, struct{}) (int, error) {
		if calls.Add(1) < 3 {
			return 0, errTransient
		}
		return 42, nil
	}, nil, nil)
	require.NoError(t, err)
	p.Start()
	defer p.Stop()

	ch, err := p.Submit(context.Background(), "r", struct{}{})
	require.NoError(t, err)
	r := <-ch
	require.NoError(t, r.Err)
	assert.Equal(t, 42, r.Value)
	assert.Equal(t, 3, r.Attempts)
}

func TestPool_NonRetryableStopsImmediately(t *testing.T) {
	errFatal := errors.New("fatal")
	var calls atomic.Int32

	p, err := New(testConfig(), func(context.Context, int) (int, error) {
		calls.Add(1)
		return 0, errFatal
	}, func(err error) bool { return !errors.Is(err, errFatal) }, nil)
	require.NoError(t, err)
	p.Start()
	defer p.Stop()

	_, err = p.Do(context.Background(), "f", 1)
	assert.ErrorIs(t, err, errFatal)
	assert.Equal(t, int32(1), calls.Load())
}

func TestPool_SubmitAfterStop(t *testing.T) {
	p, err := New(testConfig(), func(_ context.Context, n int) (int, error) { return n, nil }, nil, nil)
	require.NoError(t, err)
	p.Start()
	require.NoError(t, p.Stop())
	require.NoError(t, p.Stop())

	_, err = p.Submit(context.Background(), "late", 1)
	assert.ErrorIs(t, err, ErrStopped)
}

func TestPool_QueueFull(t *testing.T) {
	cfg := testConfig()
	cfg.QueueSize = 1
	p, err := New(cfg, func(_ context.Context, n int) (int, error) { return n, nil }, nil, nil)
	require.NoError(t, err)

	// not started, so nothing drains the queue
	_, err = p.Submit(context.Background(), "a", 1)
	require.NoError(t, err)
	_, err = p.Submit(context.Background(), "b", 2)
	assert.ErrorIs(t, err, ErrQueueFull)
	assert.False(t, p.IsHealthy())
}

func TestNew_RequiresFunc(t *testing.T) {
	_, err := New[int, int](testConfig(), nil, nil, nil)
	assert.Error(t, err)
}
