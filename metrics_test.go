package tipgate

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/tipgate/permission"
)

func TestMetricsDisabledNoIncrement(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: false})
	m.Inc(MetricLoginSuccess)

	if got := m.Value(MetricLoginSuccess); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
	if s := m.Snapshot(); len(s.Counters) != 0 {
		t.Fatalf("expected empty snapshot, got %v", s.Counters)
	}
}

func TestMetricsConcurrentIncrementSafe(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})

	const goroutines = 32
	const perG = 2000

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < perG; j++ {
				m.Inc(MetricSessionRefreshed)
			}
		}()
	}
	wg.Wait()

	want := uint64(goroutines * perG)
	if got := m.Value(MetricSessionRefreshed); got != want {
		t.Fatalf("expected %d, got %d", want, got)
	}
}

func TestMetricsLatencyBuckets(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true, EnableLatencyHistograms: true})

	observations := []time.Duration{
		100 * time.Millisecond,
		150 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		900 * time.Millisecond,
		5 * time.Second,
		12 * time.Second,
		30 * time.Second,
		42 * time.Second,
	}
	for _, d := range observations {
		m.Observe(MetricLoginLatency, d)
	}
	m.Observe(MetricLoginSuccess, time.Second)

	got := m.Snapshot().Histograms[MetricLoginLatency]
	want := []uint64{2, 1, 1, 1, 1, 1, 1, 1}
	if len(got) != len(want) {
		t.Fatalf("expected %d buckets, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("bucket %d: expected %d, got %d", i, want[i], got[i])
		}
	}
	if _, ok := m.Snapshot().Histograms[MetricLoginSuccess]; ok {
		t.Fatalf("counters must not grow histograms")
	}
}

func TestEngineMetricsFollowOutcomes(t *testing.T) {
	env := newTestEnv(t, testConfig(), nil)
	ctx := context.Background()
	env.addUser(t, 1, "alice", "p@ss", permission.RoleAdmin)
	env.addTip(t, 1, "R1", "S")

	desc, _ := env.engine.Login(ctx, LoginRequest{TenantID: 1, Username: "alice", Password: "p@ss"})
	_, _ = env.engine.Login(ctx, LoginRequest{TenantID: 1, Username: "alice", Password: "x"})
	_, _ = env.engine.ReceiptLogin(ctx, ReceiptLoginRequest{TenantID: 1, Receipt: "R1"})
	_, _ = env.engine.RefreshSession(ctx, desc.SessionID)
	_, _ = env.engine.RefreshSession(ctx, "missing")
	_ = env.engine.Logout(ctx, desc.SessionID)

	s := env.engine.MetricsSnapshot()
	checks := map[MetricID]uint64{
		MetricLoginSuccess:        1,
		MetricLoginFailure:        1,
		MetricReceiptLoginSuccess: 1,
		MetricSessionCreated:      2,
		MetricSessionRefreshed:    1,
		MetricSessionNotFound:     1,
		MetricLogout:              1,
		MetricThrottleDelayed:     0,
	}
	for id, want := range checks {
		if got := s.Counters[id]; got != want {
			t.Fatalf("metric %d: expected %d, got %d", id, want, got)
		}
	}
	var observed uint64
	for _, n := range s.Histograms[MetricLoginLatency] {
		observed += n
	}
	if observed != 3 {
		t.Fatalf("expected 3 latency observations, got %d", observed)
	}
}
