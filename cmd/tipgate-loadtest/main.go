// Command tipgate-loadtest measures the Redis session registry and the
// shared failed-login counter under concurrent load. Without -redis-addr or
// REDIS_ADDR it runs against an in-process miniredis.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand/v2"
	"os"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/tipgate/permission"
	"github.com/MrEthical07/tipgate/session"
	"github.com/MrEthical07/tipgate/throttle"
)

func main() {
	var (
		sessions    = flag.Int("sessions", 20000, "number of sessions to create")
		concurrency = flag.Int("concurrency", 128, "number of concurrent workers")
		ops         = flag.Int("ops", 100000, "operations per read phase")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		prefix      = flag.String("prefix", "tipgate:loadtest:session:", "session key prefix")
	)
	flag.Parse()

	if *sessions <= 0 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "sessions, concurrency, and ops must be > 0")
		os.Exit(2)
	}

	client, cleanup, err := connect(*redisAddr)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer cleanup()

	ctx := context.Background()
	registry := session.NewRedisRegistry(client, *prefix, session.Options{TTL: time.Hour})
	counter := throttle.NewRedisCounter(client, *prefix+"failed-logins")

	ids := make([]string, *sessions)
	create := runPhase(*sessions, *concurrency, func(i int, _ *rand.Rand) error {
		s, err := registry.Create(ctx, session.NewSession{
			TenantID: 1 + i%4,
			UserID:   fmt.Sprintf("user-%d", i),
			Role:     permission.RoleReceiver,
			Status:   "enabled",
		})
		if err != nil {
			return err
		}
		ids[i] = s.ID
		return nil
	})

	get := runPhase(*ops, *concurrency, func(_ int, r *rand.Rand) error {
		_, err := registry.Get(ctx, ids[r.IntN(len(ids))])
		return err
	})

	touch := runPhase(*ops, *concurrency, func(_ int, r *rand.Rand) error {
		_, err := registry.Touch(ctx, ids[r.IntN(len(ids))])
		return err
	})

	failures := runPhase(*ops, *concurrency, func(int, *rand.Rand) error {
		_, err := counter.Increment(ctx)
		return err
	})

	revoke := runPhase(*sessions, *concurrency, func(i int, _ *rand.Rand) error {
		return registry.Revoke(ctx, ids[i])
	})

	total, err := counter.Load(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load counter: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("---- results ----")
	printStats("create", create)
	printStats("get", get)
	printStats("touch", touch)
	printStats("count-failure", failures)
	printStats("revoke", revoke)
	fmt.Printf("failed-login counter: %d, sampled delay %ds\n", total, throttle.ComputeDelay(total))
}

func connect(addr string) (redis.UniversalClient, func(), error) {
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}
	if addr != "" {
		client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		fmt.Printf("using redis at %s\n", addr)
		return client, func() { _ = client.Close() }, nil
	}

	mr, err := miniredis.Run()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to start miniredis: %w", err)
	}
	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
	fmt.Printf("using miniredis at %s\n", mr.Addr())
	return client, func() {
		_ = client.Close()
		mr.Close()
	}, nil
}

// runPhase calls op n times spread across workers. Each index is used once.
func runPhase(n, concurrency int, op func(i int, r *rand.Rand) error) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    atomic.Int64
		failures  atomic.Int64
		mu        sync.Mutex
		latencies = make([]time.Duration, 0, n)
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), uint64(worker)))
			local := make([]time.Duration, 0, n/concurrency+1)
			for {
				i := int(cursor.Add(1)) - 1
				if i >= n {
					break
				}
				t0 := time.Now()
				if err := op(i, r); err != nil {
					failures.Add(1)
				}
				local = append(local, time.Since(t0))
			}
			mu.Lock()
			latencies = append(latencies, local...)
			mu.Unlock()
		}(w)
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures.Load())
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total, failures: failures}
	}
	slices.Sort(samples)
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

// percentile expects sorted samples.
func percentile(samples []time.Duration, p int) time.Duration {
	switch {
	case len(samples) == 0:
		return 0
	case p <= 0:
		return samples[0]
	case p >= 100:
		return samples[len(samples)-1]
	}
	return samples[(len(samples)-1)*p/100]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%-14s ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name+":",
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
