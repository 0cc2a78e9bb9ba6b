package flows

import (
	"context"
	"time"

	"github.com/MrEthical07/tipgate/throttle"
)

// Pacer owns the timing of every login answer: the failure counter, the
// throttle delay derived from it, and the padding up to the uniform answer
// time.
type Pacer struct {
	Counter             throttle.Counter
	Sleep               throttle.Sleeper
	UniformResponseTime time.Duration
	Now                 func() time.Time
	// CounterError is told about counter backend failures. The attempt is
	// then paced with the maximum delay.
	CounterError func(context.Context, error)
}

// Settle records a failure when failed is set, then waits for the throttle
// delay plus whatever is left of the uniform answer time since start. The
// increment is committed before waiting and is not undone if ctx ends
// during the wait; the wait then returns ctx.Err().
func (p Pacer) Settle(ctx context.Context, start time.Time, failed bool) (time.Duration, error) {
	var (
		count int64
		err   error
	)
	if failed {
		// A client that goes away must not skip the increment.
		count, err = p.Counter.Increment(context.WithoutCancel(ctx))
	} else {
		count, err = p.Counter.Load(ctx)
	}

	delay := time.Duration(throttle.MaxDelaySeconds) * time.Second
	if err != nil {
		if p.CounterError != nil {
			p.CounterError(ctx, err)
		}
	} else {
		delay = throttle.Delay(count)
	}

	wait := delay
	if pad := p.UniformResponseTime - p.now().Sub(start); pad > 0 {
		wait += pad
	}

	sleep := p.Sleep
	if sleep == nil {
		sleep = throttle.Sleep
	}
	return wait, sleep(ctx, wait)
}

func (p Pacer) now() time.Time {
	if p.Now == nil {
		return time.Now()
	}
	return p.Now()
}
