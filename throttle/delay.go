package throttle

import (
	"context"
	"crypto/rand"
	"math/big"
	"time"
)

const (
	// FreeAttempts is the failure count below which no delay is applied.
	FreeAttempts = 5
	// MaxDelaySeconds caps the delay for any failure count.
	MaxDelaySeconds = 42
)

// ComputeDelay returns the delay in whole seconds for a global failure count:
//
//	x < 5        -> 0
//	5 <= x < 42  -> uniform integer in [min(x,42), min(x*x,42)]
//	x >= 42      -> 42
func ComputeDelay(failed int64) int64 {
	return computeDelay(failed, cryptoIntn)
}

// Delay is ComputeDelay as a time.Duration.
func Delay(failed int64) time.Duration {
	return time.Duration(ComputeDelay(failed)) * time.Second
}

func computeDelay(failed int64, intn func(n int64) int64) int64 {
	switch {
	case failed < FreeAttempts:
		return 0
	case failed >= MaxDelaySeconds:
		return MaxDelaySeconds
	}

	lo := min(failed, MaxDelaySeconds)
	hi := min(failed*failed, MaxDelaySeconds)
	return lo + intn(hi-lo+1)
}

// cryptoIntn draws from [0,n) using crypto/rand. On entropy failure it
// returns n-1, the longest delay in range.
func cryptoIntn(n int64) int64 {
	if n <= 1 {
		return 0
	}
	v, err := rand.Int(rand.Reader, big.NewInt(n))
	if err != nil {
		return n - 1
	}
	return v.Int64()
}

// Sleeper blocks for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Sleep waits on a timer for d. It returns ctx.Err() if the context ends
// first. A non-positive d returns immediately.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
