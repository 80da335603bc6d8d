package cache_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/m-mizutani/dossier/pkg/cache"
	"github.com/m-mizutani/dossier/pkg/model"
	"github.com/m-mizutani/gt"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestKey(t *testing.T) {
	a, err := cache.Key("filter_records", map[string]any{"tags": []any{" go "}, "limit": float64(20)})
	gt.NoError(t, err)
	b, err := cache.Key("filter_records", map[string]any{"limit": float64(20), "tags": []any{"go"}})
	gt.NoError(t, err)
	gt.Equal(t, a, b)

	c, err := cache.Key("get_records_by_date", map[string]any{"limit": float64(20), "tags": []any{"go"}})
	gt.NoError(t, err)
	gt.NotEqual(t, a, c)

	d, err := cache.Key("filter_records", map[string]any{"limit": float64(21), "tags": []any{"go"}})
	gt.NoError(t, err)
	gt.NotEqual(t, a, d)
}

func TestExpiry(t *testing.T) {
	clk := &clock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := cache.New(time.Minute, cache.WithClock(clk.Now), cache.WithJanitor(0))
	defer c.Close()

	c.Put("k", model.Success("v", nil))
	got, ok := c.Get("k")
	gt.True(t, ok)
	gt.Equal(t, got.Data(), any("v"))

	clk.Advance(59 * time.Second)
	_, ok = c.Get("k")
	gt.True(t, ok)

	clk.Advance(time.Second)
	_, ok = c.Get("k")
	gt.False(t, ok)
	gt.Equal(t, c.Len(), 0)
}

func TestPutIsInsertIfAbsent(t *testing.T) {
	c := cache.New(time.Minute, cache.WithJanitor(0))
	defer c.Close()

	first := model.Success("first", nil)
	second := model.Success("second", nil)

	gt.Equal(t, c.Put("k", first), first)
	gt.Equal(t, c.Put("k", second), first)

	got, _ := c.Get("k")
	gt.Equal(t, got, first)
}

func TestFailuresAreNotStored(t *testing.T) {
	c := cache.New(time.Minute, cache.WithJanitor(0))
	defer c.Close()

	failed := model.Failure(model.ErrorKindStoreUnavailable, "down")
	gt.Equal(t, c.Put("k", failed), failed)
	_, ok := c.Get("k")
	gt.False(t, ok)

	var calls int32
	fn := func(ctx context.Context) *model.ToolResult {
		atomic.AddInt32(&calls, 1)
		return failed
	}
	c.Do(context.Background(), "k", fn)
	c.Do(context.Background(), "k", fn)
	gt.Equal(t, atomic.LoadInt32(&calls), int32(2))
}

func TestDoSharesComputation(t *testing.T) {
	c := cache.New(time.Minute, cache.WithJanitor(0))
	defer c.Close()

	var calls int32
	release := make(chan struct{})
	fn := func(ctx context.Context) *model.ToolResult {
		atomic.AddInt32(&calls, 1)
		<-release
		return model.Success("shared", nil)
	}

	var wg sync.WaitGroup
	results := make([]*model.ToolResult, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = c.Do(context.Background(), "k", fn)
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	gt.Equal(t, atomic.LoadInt32(&calls), int32(1))
	for _, r := range results {
		gt.Equal(t, r, results[0])
	}

	_, hit := c.Do(context.Background(), "k", fn)
	gt.True(t, hit)
}

func TestJanitorSweeps(t *testing.T) {
	c := cache.New(20*time.Millisecond, cache.WithJanitor(10*time.Millisecond))
	defer c.Close()

	c.Put("k", model.Success("v", nil))
	gt.Equal(t, c.Len(), 1)

	time.Sleep(100 * time.Millisecond)
	gt.Equal(t, c.Len(), 0)
}

func TestDoOutlivesCallerThatGaveUp(t *testing.T) {
	c := cache.New(time.Minute, cache.WithJanitor(0))
	defer c.Close()

	started := make(chan struct{})
	release := make(chan struct{})
	var sharedErr error
	compute := func(ctx context.Context) *model.ToolResult {
		close(started)
		<-release
		sharedErr = ctx.Err()
		return model.Success("records", nil)
	}

	shortCtx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	firstDone := make(chan *model.ToolResult, 1)
	go func() {
		r, _ := c.Do(shortCtx, "k", compute)
		firstDone <- r
	}()
	<-started

	var calls int32
	secondDone := make(chan *model.ToolResult, 1)
	go func() {
		r, _ := c.Do(context.Background(), "k", func(ctx context.Context) *model.ToolResult {
			atomic.AddInt32(&calls, 1)
			return model.Success("again", nil)
		})
		secondDone <- r
	}()

	first := <-firstDone
	gt.False(t, first.OK())
	gt.Equal(t, first.Kind(), model.ErrorKindTimeout)

	close(release)
	second := <-secondDone
	gt.True(t, second.OK())
	gt.Equal(t, second.Data(), any("records"))
	gt.NoError(t, sharedErr)
	gt.Equal(t, atomic.LoadInt32(&calls), int32(0))

	stored, ok := c.Get("k")
	gt.True(t, ok)
	gt.Equal(t, stored.Data(), any("records"))
}
