package queue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestDo_serializes(t *testing.T) {
	q := New()
	defer q.Close()

	var (
		inFlight    atomic.Int32
		maxInFlight atomic.Int32
		mu          sync.Mutex
		order       []int
	)
	var g errgroup.Group
	for i := 0; i < 20; i++ {
		i := i
		g.Go(func() error {
			v, err := Do(context.Background(), q, func(context.Context) (int, error) {
				n := inFlight.Add(1)
				defer inFlight.Add(-1)
				for {
					m := maxInFlight.Load()
					if n <= m || maxInFlight.CompareAndSwap(m, n) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				mu.Lock()
				order = append(order, i)
				mu.Unlock()
				return i * 2, nil
			})
			if err != nil {
				return err
			}
			if v != i*2 {
				return errors.New("result delivered to the wrong submitter")
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	assert.EqualValues(t, 1, maxInFlight.Load())
	assert.Len(t, order, 20)
}

func TestDo_fifo(t *testing.T) {
	q := New()
	defer q.Close()

	release := make(chan struct{})
	started := make(chan struct{})
	var order []int
	var g errgroup.Group
	g.Go(func() error {
		_, err := Do(context.Background(), q, func(context.Context) (struct{}, error) {
			close(started)
			<-release
			return struct{}{}, nil
		})
		return err
	})
	<-started
	// The worker is busy, so these are queued in send order.
	results := make([]<-chan error, 0, 5)
	for i := 0; i < 5; i++ {
		i := i
		ch := make(chan error, 1)
		results = append(results, ch)
		go func() {
			_, err := Do(context.Background(), q, func(context.Context) (struct{}, error) {
				order = append(order, i)
				return struct{}{}, nil
			})
			ch <- err
		}()
		require.Eventually(t, func() bool { return len(q.tasks) == i+1 }, time.Second, time.Millisecond)
	}
	close(release)
	require.NoError(t, g.Wait())
	for _, ch := range results {
		require.NoError(t, <-ch)
	}
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestDo_error(t *testing.T) {
	q := New()
	defer q.Close()
	boom := errors.New("boom")
	_, err := Do(context.Background(), q, func(context.Context) (string, error) {
		return "", boom
	})
	assert.ErrorIs(t, err, boom)
}

func TestDo_cancel(t *testing.T) {
	q := New()
	defer q.Close()

	t.Run("running task completes", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		started := make(chan struct{})
		finished := make(chan error, 1)
		go func() {
			_, err := Do(ctx, q, func(ctx context.Context) (struct{}, error) {
				close(started)
				time.Sleep(20 * time.Millisecond)
				finished <- ctx.Err()
				return struct{}{}, nil
			})
			assert.ErrorIs(t, err, context.Canceled)
		}()
		<-started
		cancel()
		select {
		case err := <-finished:
			assert.NoError(t, err, "task context is not canceled")
		case <-time.After(time.Second):
			t.Fatal("task did not finish")
		}
	})

	t.Run("canceled before start", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		var ran atomic.Bool
		_, err := Do(ctx, q, func(context.Context) (struct{}, error) {
			ran.Store(true)
			return struct{}{}, nil
		})
		assert.ErrorIs(t, err, context.Canceled)
		// A later task proves the worker has moved past the canceled one.
		_, err = Do(context.Background(), q, func(context.Context) (struct{}, error) { return struct{}{}, nil })
		require.NoError(t, err)
		assert.False(t, ran.Load())
	})
}

func TestClose(t *testing.T) {
	q := New()
	q.Close()
	q.Close()
	_, err := Do(context.Background(), q, func(context.Context) (int, error) { return 1, nil })
	assert.ErrorIs(t, err, ErrClosed)
}
