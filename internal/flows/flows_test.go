package flows

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrEthical07/tipgate/netpolicy"
	"github.com/MrEthical07/tipgate/password"
	"github.com/MrEthical07/tipgate/permission"
	"github.com/MrEthical07/tipgate/session"
	"github.com/MrEthical07/tipgate/store"
	"github.com/MrEthical07/tipgate/store/memory"
	"github.com/MrEthical07/tipgate/throttle"
)

type countingVerifier struct {
	*password.Verifier
	verifies atomic.Int64
	dummies  atomic.Int64
}

func (c *countingVerifier) Verify(secret, hash, salt string) (bool, error) {
	c.verifies.Add(1)
	return c.Verifier.Verify(secret, hash, salt)
}

func (c *countingVerifier) VerifyDummy(secret string) {
	c.dummies.Add(1)
	c.Verifier.VerifyDummy(secret)
}

type recordingSleeper struct {
	mu    sync.Mutex
	waits []time.Duration
	err   error
}

func (r *recordingSleeper) Sleep(_ context.Context, d time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.waits = append(r.waits, d)
	return r.err
}

func (r *recordingSleeper) last() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.waits) == 0 {
		return -1
	}
	return r.waits[len(r.waits)-1]
}

type fixture struct {
	store    *memory.Store
	verifier *countingVerifier
	counter  *throttle.LocalCounter
	sleeper  *recordingSleeper
	sessions *session.MemoryRegistry
	configs  []error
	deps     LoginDeps
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	v, err := password.NewVerifier(password.Config{
		Scheme: password.SchemeScrypt,
		Scrypt: password.ScryptConfig{N: 1 << 10, R: 8, P: 1, KeyLength: 32},
		Argon2: password.Argon2Config{Memory: 8192, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32},
	})
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}

	f := &fixture{
		store:    memory.New(),
		verifier: &countingVerifier{Verifier: v},
		counter:  throttle.NewLocalCounter(),
		sleeper:  &recordingSleeper{},
		sessions: session.NewMemoryRegistry(session.Options{TTL: time.Hour}),
	}
	f.deps = LoginDeps{
		Tenants:     f.store,
		Credentials: f.store,
		Verifier:    f.verifier,
		Sessions:    f.sessions,
		Pacer: Pacer{
			Counter:             f.counter,
			Sleep:               f.sleeper.Sleep,
			UniformResponseTime: 150 * time.Millisecond,
			Now:                 time.Now,
		},
		Now: time.Now,
		ConfigError: func(_ context.Context, _ int, err error) {
			f.configs = append(f.configs, err)
		},
	}

	ctx := context.Background()
	for _, tenant := range []store.Tenant{
		{ID: 1, Active: true, ReceiptSalt: "root", Network: netpolicy.Policy{
			WebAccess: netpolicy.RoleAccess{Admin: true, Custodian: true, Receiver: true, Whistleblower: true},
		}},
		{ID: 2, Active: true, ReceiptSalt: "S", Network: netpolicy.Policy{
			WebAccess: netpolicy.RoleAccess{Admin: true, Receiver: true},
		}},
		{ID: 3, Active: false, ReceiptSalt: "S3"},
	} {
		if err := f.store.PutTenant(ctx, tenant); err != nil {
			t.Fatalf("PutTenant: %v", err)
		}
	}
	return f
}

func (f *fixture) addUser(t *testing.T, tenant int, name, secret string, role permission.Role) string {
	t.Helper()
	hash, salt, err := f.verifier.Hash(secret)
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	id, err := f.store.PutUser(context.Background(), store.User{
		TenantID: tenant, Username: name, Role: role, PasswordHash: hash, Salt: salt,
	})
	if err != nil {
		t.Fatalf("PutUser: %v", err)
	}
	return id
}

func loadCounter(t *testing.T, c throttle.Counter) int64 {
	t.Helper()
	n, err := c.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return n
}

func TestRunLoginSuccess(t *testing.T) {
	f := newFixture(t)
	id := f.addUser(t, 2, "alice", "p@ss", permission.RoleReceiver)

	res := RunLogin(context.Background(), LoginInput{TenantID: 2, Username: "alice", Password: "p@ss"}, f.deps)
	if res.Failure != FailureNone || res.Session == nil {
		t.Fatalf("expected success, got %v err=%v", res.Failure, res.Err)
	}
	if res.Session.UserID != id || res.Session.Role != permission.RoleReceiver || res.Session.TenantID != 2 {
		t.Fatalf("unexpected session %+v", res.Session)
	}
	if res.Session.Status != store.StateEnabled {
		t.Fatalf("status = %q", res.Session.Status)
	}
	if loadCounter(t, f.counter) != 0 {
		t.Fatal("success must not advance the counter")
	}
	if res.Waited <= 0 || res.Waited > 150*time.Millisecond {
		t.Fatalf("expected padding up to the uniform answer time, waited %v", res.Waited)
	}

	u, _ := f.store.User(context.Background(), id)
	if u.LastLogin.IsZero() {
		t.Fatal("last login not recorded")
	}
}

func TestRunLoginWrongPasswordAndUnknownUserLookAlike(t *testing.T) {
	f := newFixture(t)
	f.addUser(t, 2, "alice", "p@ss", permission.RoleReceiver)
	ctx := context.Background()

	wrong := RunLogin(ctx, LoginInput{TenantID: 2, Username: "alice", Password: "wrong"}, f.deps)
	if wrong.Failure != FailurePasswordMismatch {
		t.Fatalf("Failure = %v", wrong.Failure)
	}
	if f.verifier.verifies.Load() != 1 || f.verifier.dummies.Load() != 0 {
		t.Fatalf("verifies=%d dummies=%d", f.verifier.verifies.Load(), f.verifier.dummies.Load())
	}

	unknown := RunLogin(ctx, LoginInput{TenantID: 2, Username: "mallory", Password: "wrong"}, f.deps)
	if unknown.Failure != FailureUnknownIdentity {
		t.Fatalf("Failure = %v", unknown.Failure)
	}
	if f.verifier.dummies.Load() != 1 {
		t.Fatal("unknown identity must still run the verifier")
	}
	if loadCounter(t, f.counter) != 2 {
		t.Fatalf("counter = %d, want 2", loadCounter(t, f.counter))
	}
}

func TestRunLoginThrottleAfterFourFailures(t *testing.T) {
	f := newFixture(t)
	f.addUser(t, 1, "alice", "p@ss", permission.RoleAdmin)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		if _, err := f.counter.Increment(ctx); err != nil {
			t.Fatal(err)
		}
	}

	res := RunLogin(ctx, LoginInput{TenantID: 1, Username: "alice", Password: "wrong"}, f.deps)
	if res.Failure != FailurePasswordMismatch {
		t.Fatalf("Failure = %v", res.Failure)
	}
	if loadCounter(t, f.counter) != 5 {
		t.Fatalf("counter = %d, want 5", loadCounter(t, f.counter))
	}
	if w := f.sleeper.last(); w < 5*time.Second || w > 25*time.Second+150*time.Millisecond {
		t.Fatalf("wait %v outside [5s, 25s]", w)
	}

	res = RunLogin(ctx, LoginInput{TenantID: 1, Username: "alice", Password: "p@ss"}, f.deps)
	if res.Failure != FailureNone || res.Session.Role != permission.RoleAdmin {
		t.Fatalf("expected admin session, got %v", res.Failure)
	}
	if w := f.sleeper.last(); w < 5*time.Second {
		t.Fatalf("success after a failure streak must still be delayed, waited %v", w)
	}
	if loadCounter(t, f.counter) != 5 {
		t.Fatal("success must not advance the counter")
	}
}

func TestRunLoginRootAdminCrossesTenants(t *testing.T) {
	f := newFixture(t)
	rootAdmin := f.addUser(t, 1, "root", "p@ss", permission.RoleAdmin)
	f.addUser(t, 1, "rootrecv", "p@ss", permission.RoleReceiver)
	ctx := context.Background()

	res := RunLogin(ctx, LoginInput{TenantID: 2, Username: "root", Password: "p@ss"}, f.deps)
	if res.Failure != FailureNone || res.Session.UserID != rootAdmin || res.Session.TenantID != 2 {
		t.Fatalf("root admin should log into tenant 2, got %v", res.Failure)
	}

	res = RunLogin(ctx, LoginInput{TenantID: 2, Username: "rootrecv", Password: "p@ss"}, f.deps)
	if res.Failure != FailureUnknownIdentity {
		t.Fatalf("non-admin of the root tenant must not cross tenants, got %v", res.Failure)
	}
}

func TestRunLoginNetworkPolicyDoesNotCount(t *testing.T) {
	f := newFixture(t)
	f.addUser(t, 2, "carol", "p@ss", permission.RoleCustodian)
	ctx := context.Background()

	res := RunLogin(ctx, LoginInput{TenantID: 2, Username: "carol", Password: "p@ss"}, f.deps)
	if res.Failure != FailureNetworkRequired || res.Session != nil {
		t.Fatalf("Failure = %v", res.Failure)
	}
	if loadCounter(t, f.counter) != 0 {
		t.Fatal("valid credentials denied by network policy must not advance the counter")
	}
	if f.sleeper.last() < 0 {
		t.Fatal("denials are paced like every other answer")
	}

	res = RunLogin(ctx, LoginInput{TenantID: 2, Username: "carol", Password: "p@ss", Origin: netpolicy.Origin{Tor: true}}, f.deps)
	if res.Failure != FailureNone {
		t.Fatalf("tor login should pass, got %v", res.Failure)
	}
}

func TestRunLoginAllowList(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if err := f.store.PutTenant(ctx, store.Tenant{ID: 5, Active: true, ReceiptSalt: "S5", Network: netpolicy.Policy{
		WebAccess:       netpolicy.RoleAccess{Receiver: true},
		IPFilterEnabled: true,
		IPAllowList:     "10.0.0.0/24",
	}}); err != nil {
		t.Fatal(err)
	}
	f.addUser(t, 5, "dave", "p@ss", permission.RoleReceiver)

	ok := RunLogin(ctx, LoginInput{TenantID: 5, Username: "dave", Password: "p@ss", Origin: netpolicy.Origin{ClientIP: "10.0.0.5"}}, f.deps)
	if ok.Failure != FailureNone {
		t.Fatalf("expected success, got %v", ok.Failure)
	}
	denied := RunLogin(ctx, LoginInput{TenantID: 5, Username: "dave", Password: "p@ss", Origin: netpolicy.Origin{ClientIP: "192.168.1.1"}}, f.deps)
	if denied.Failure != FailureOriginNotAllowed {
		t.Fatalf("expected origin denial, got %v", denied.Failure)
	}
	loop := RunLogin(ctx, LoginInput{TenantID: 5, Username: "dave", Password: "p@ss", Origin: netpolicy.Origin{ClientIP: "127.0.0.1"}}, f.deps)
	if loop.Failure != FailureNone {
		t.Fatalf("loopback must pass, got %v", loop.Failure)
	}
}

func TestRunLoginTokenPath(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	hash, salt, _ := f.verifier.Hash("p@ss")
	id, err := f.store.PutUser(ctx, store.User{
		TenantID: 2, Username: "erin", Role: permission.RoleReceiver, PasswordHash: hash, Salt: salt, AuthToken: "tok",
	})
	if err != nil {
		t.Fatal(err)
	}

	res := RunLogin(ctx, LoginInput{TenantID: 2, Token: "tok"}, f.deps)
	if res.Failure != FailureNone || res.Session.UserID != id {
		t.Fatalf("token login failed: %v", res.Failure)
	}

	res = RunLogin(ctx, LoginInput{TenantID: 2, Token: "nope"}, f.deps)
	if res.Failure != FailureTokenMismatch {
		t.Fatalf("Failure = %v", res.Failure)
	}
	if f.verifier.dummies.Load() != 2 {
		t.Fatalf("token path should verify once per attempt, dummies=%d", f.verifier.dummies.Load())
	}
	if loadCounter(t, f.counter) != 1 {
		t.Fatal("bad token must advance the counter")
	}
}

func TestRunLoginDisabledUserIsUnknown(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	hash, salt, _ := f.verifier.Hash("p@ss")
	if _, err := f.store.PutUser(ctx, store.User{
		TenantID: 2, Username: "dave", Role: permission.RoleReceiver, PasswordHash: hash, Salt: salt,
		AuthToken: "dave-tok", State: store.StateDisabled,
	}); err != nil {
		t.Fatal(err)
	}

	res := RunLogin(ctx, LoginInput{TenantID: 2, Username: "dave", Password: "p@ss"}, f.deps)
	if res.Failure != FailureUnknownIdentity || res.Session != nil {
		t.Fatalf("password path: Failure = %v", res.Failure)
	}
	if f.verifier.verifies.Load() != 0 || f.verifier.dummies.Load() != 1 {
		t.Fatalf("disabled user must cost one dummy verify, verifies=%d dummies=%d",
			f.verifier.verifies.Load(), f.verifier.dummies.Load())
	}

	res = RunLogin(ctx, LoginInput{TenantID: 2, Token: "dave-tok"}, f.deps)
	if res.Failure != FailureTokenMismatch || res.Session != nil {
		t.Fatalf("token path: Failure = %v", res.Failure)
	}
	if loadCounter(t, f.counter) != 2 {
		t.Fatalf("counter = %d, want 2", loadCounter(t, f.counter))
	}
}

func TestRunLoginMalformedStoredHash(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.store.PutUser(ctx, store.User{
		TenantID: 2, Username: "frank", Role: permission.RoleReceiver, PasswordHash: "not-hex!", Salt: "00",
	}); err != nil {
		t.Fatal(err)
	}

	res := RunLogin(ctx, LoginInput{TenantID: 2, Username: "frank", Password: "p@ss"}, f.deps)
	if res.Failure != FailurePasswordMismatch || res.Session != nil {
		t.Fatalf("Failure = %v", res.Failure)
	}
	if len(f.configs) != 1 || !errors.Is(f.configs[0], password.ErrMalformedHash) {
		t.Fatalf("configs = %v, want one malformed-hash report", f.configs)
	}
	if f.verifier.dummies.Load() != 1 {
		t.Fatalf("broken record must still cost a dummy verify, dummies=%d", f.verifier.dummies.Load())
	}
	if loadCounter(t, f.counter) != 1 {
		t.Fatal("broken record answers like a wrong password and advances the counter")
	}
}

func TestRunLoginTenantProblems(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res := RunLogin(ctx, LoginInput{TenantID: 42, Username: "x", Password: "y"}, f.deps)
	if res.Failure != FailureConfig || len(f.configs) != 1 {
		t.Fatalf("unknown tenant: Failure=%v configs=%d", res.Failure, len(f.configs))
	}

	res = RunLogin(ctx, LoginInput{TenantID: 3, Username: "x", Password: "y"}, f.deps)
	if res.Failure != FailureTenantInactive {
		t.Fatalf("inactive tenant: Failure=%v", res.Failure)
	}
	if loadCounter(t, f.counter) != 0 {
		t.Fatal("tenant problems are not credential failures")
	}
}

func TestRunLoginCancelledWaitKeepsIncrement(t *testing.T) {
	f := newFixture(t)
	f.sleeper.err = context.Canceled
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := RunLogin(ctx, LoginInput{TenantID: 2, Username: "ghost", Password: "x"}, f.deps)
	if !errors.Is(res.WaitErr, context.Canceled) {
		t.Fatalf("WaitErr = %v", res.WaitErr)
	}
	if loadCounter(t, f.counter) != 1 {
		t.Fatal("increment must stand after cancellation")
	}
}

type brokenCounter struct{}

func (brokenCounter) Increment(context.Context) (int64, error) { return 0, throttle.ErrBackendUnavailable }
func (brokenCounter) Load(context.Context) (int64, error)      { return 0, throttle.ErrBackendUnavailable }

func TestPacerCounterFailureUsesMaxDelay(t *testing.T) {
	var reported error
	sleeper := &recordingSleeper{}
	p := Pacer{
		Counter: brokenCounter{},
		Sleep:   sleeper.Sleep,
		Now:     time.Now,
		CounterError: func(_ context.Context, err error) {
			reported = err
		},
	}

	wait, err := p.Settle(context.Background(), time.Now(), true)
	if err != nil {
		t.Fatal(err)
	}
	if wait != throttle.MaxDelaySeconds*time.Second {
		t.Fatalf("wait = %v", wait)
	}
	if !errors.Is(reported, throttle.ErrBackendUnavailable) {
		t.Fatalf("counter error not reported: %v", reported)
	}
}

func TestRunReceiptLogin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Tenant 2 forbids whistleblowers on the clear web; tenant 1 allows it.
	hash, err := f.verifier.HashReceipt("R1", "root")
	if err != nil {
		t.Fatal(err)
	}
	tipID, err := f.store.PutTip(ctx, store.Tip{TenantID: 1, ReceiptHash: hash})
	if err != nil {
		t.Fatal(err)
	}

	res := RunReceiptLogin(ctx, ReceiptInput{TenantID: 1, Receipt: "R1"}, f.deps)
	if res.Failure != FailureNone {
		t.Fatalf("Failure = %v err=%v", res.Failure, res.Err)
	}
	if res.Session.UserID != tipID || res.Session.Role != permission.RoleWhistleblower || res.Session.Status != ReceiptStatus {
		t.Fatalf("unexpected session %+v", res.Session)
	}
	tip, _ := f.store.Tip(ctx, tipID)
	if tip.LastAccess.IsZero() {
		t.Fatal("last access not recorded")
	}

	res = RunReceiptLogin(ctx, ReceiptInput{TenantID: 1, Receipt: "R2"}, f.deps)
	if res.Failure != FailureReceiptMismatch {
		t.Fatalf("Failure = %v", res.Failure)
	}
	if loadCounter(t, f.counter) != 1 {
		t.Fatal("bad receipt must advance the counter")
	}
}

func TestRunReceiptLoginRequiresTorWhenFlagOff(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	hash, _ := f.verifier.HashReceipt("R1", "S")
	if _, err := f.store.PutTip(ctx, store.Tip{TenantID: 2, ReceiptHash: hash}); err != nil {
		t.Fatal(err)
	}

	res := RunReceiptLogin(ctx, ReceiptInput{TenantID: 2, Receipt: "R1"}, f.deps)
	if res.Failure != FailureNetworkRequired {
		t.Fatalf("Failure = %v", res.Failure)
	}
	res = RunReceiptLogin(ctx, ReceiptInput{TenantID: 2, Receipt: "R1", Origin: netpolicy.Origin{Tor: true}}, f.deps)
	if res.Failure != FailureNone {
		t.Fatalf("tor receipt login should pass, got %v", res.Failure)
	}
}

type failingRevoke struct {
	session.Registry
	err error
}

func (f failingRevoke) Revoke(context.Context, string) error { return f.err }

func TestRunRefreshReportsFailedRevoke(t *testing.T) {
	reg := session.NewMemoryRegistry(session.Options{TTL: time.Hour})
	ctx := context.Background()
	sess, err := reg.Create(ctx, session.NewSession{TenantID: 1, UserID: "u", Role: permission.RoleAdmin})
	if err != nil {
		t.Fatal(err)
	}

	denied := errors.New("principal disabled")
	deps := SessionDeps{
		Sessions:   failingRevoke{Registry: reg, err: session.ErrBackendUnavailable},
		Revalidate: func(context.Context, *session.Session) error { return denied },
	}
	_, err = RunRefresh(ctx, sess.ID, deps)
	if !errors.Is(err, denied) {
		t.Fatalf("expected revalidation error, got %v", err)
	}
	if errors.Is(err, session.ErrBackendUnavailable) {
		t.Fatal("revoke failure must not replace the revalidation error")
	}
	if !strings.Contains(err.Error(), "revoke failed") {
		t.Fatalf("revoke failure missing from %q", err)
	}
}

func TestRunRefreshAndLogout(t *testing.T) {
	reg := session.NewMemoryRegistry(session.Options{TTL: time.Hour})
	ctx := context.Background()
	sess, err := reg.Create(ctx, session.NewSession{TenantID: 1, UserID: "u", Role: permission.RoleAdmin})
	if err != nil {
		t.Fatal(err)
	}

	deps := SessionDeps{Sessions: reg}
	if _, err := RunRefresh(ctx, sess.ID, deps); err != nil {
		t.Fatalf("RunRefresh: %v", err)
	}

	denied := errors.New("principal disabled")
	deps.Revalidate = func(context.Context, *session.Session) error { return denied }
	if _, err := RunRefresh(ctx, sess.ID, deps); !errors.Is(err, denied) {
		t.Fatalf("expected revalidation error, got %v", err)
	}
	if _, err := reg.Get(ctx, sess.ID); !errors.Is(err, session.ErrNotFound) {
		t.Fatal("failed revalidation should revoke the session")
	}

	if err := RunLogout(ctx, sess.ID, deps); err != nil {
		t.Fatalf("RunLogout: %v", err)
	}
	if err := RunLogout(ctx, "", deps); err != nil {
		t.Fatalf("RunLogout empty: %v", err)
	}
}
