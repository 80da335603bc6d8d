package adapter

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"golang.org/x/time/rate"
)

func TestWaitReportsDeadlineOverrun(t *testing.T) {
	g := &GeminiClient{limiter: rate.NewLimiter(rate.Limit(0.1), 1)}
	gt.True(t, g.limiter.Allow())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := g.wait(ctx)
	gt.Error(t, err)
	gt.True(t, errors.Is(err, context.DeadlineExceeded))
	gt.NoError(t, ctx.Err())
}

func TestWaitCanceled(t *testing.T) {
	g := &GeminiClient{limiter: rate.NewLimiter(rate.Limit(0.1), 1)}
	gt.True(t, g.limiter.Allow())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := g.wait(ctx)
	gt.True(t, errors.Is(err, context.Canceled))
}

func TestWaitWithoutLimiter(t *testing.T) {
	g := &GeminiClient{}
	gt.NoError(t, g.wait(context.Background()))
}
