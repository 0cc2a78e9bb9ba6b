package sqlstore

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/MrEthical07/tipgate/netpolicy"
	"github.com/MrEthical07/tipgate/permission"
	"github.com/MrEthical07/tipgate/store"
)

func openSQLite(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), SQLite, filepath.Join(t.TempDir(), "tipgate.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedTenant(t *testing.T, s *Store, id int) store.Tenant {
	t.Helper()
	tenant := store.Tenant{
		ID:          id,
		Active:      true,
		ReceiptSalt: "S",
		Network: netpolicy.Policy{
			WebAccess:       netpolicy.RoleAccess{Admin: true, Receiver: true},
			IPFilterEnabled: true,
			IPAllowList:     "192.168.1.0/24,10.0.0.0/8",
		},
	}
	require.NoError(t, s.SaveTenant(context.Background(), tenant))
	return tenant
}

func TestOpenRejectsUnknownDialect(t *testing.T) {
	_, err := Open(context.Background(), Dialect("oracle"), "x")
	require.Error(t, err)
}

func TestOpenSQLiteAppliesPragmas(t *testing.T) {
	s := openSQLite(t)
	ctx := context.Background()

	var fk, busy int
	var journal string
	require.NoError(t, s.db.QueryRowContext(ctx, "PRAGMA foreign_keys").Scan(&fk))
	require.NoError(t, s.db.QueryRowContext(ctx, "PRAGMA busy_timeout").Scan(&busy))
	require.NoError(t, s.db.QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&journal))
	require.Equal(t, 1, fk)
	require.Equal(t, 5000, busy)
	require.Equal(t, "wal", journal)

	_, err := s.CreateUser(ctx, store.User{
		TenantID: 42, Username: "ghost", Role: permission.RoleReceiver, PasswordHash: "h",
	})
	require.Error(t, err, "users of an unknown tenant must be rejected")
}

func TestTouchUserLoginConcurrent(t *testing.T) {
	s := openSQLite(t)
	ctx := context.Background()
	seedTenant(t, s, 1)
	id, err := s.CreateUser(ctx, store.User{
		TenantID: 1, Username: "alice", Role: permission.RoleAdmin, PasswordHash: "h",
	})
	require.NoError(t, err)

	const workers = 50
	errs := make(chan error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- s.TouchUserLogin(ctx, id, time.UnixMilli(int64(1000+i)))
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
}

func TestSaveTenantRoundTripAndUpsert(t *testing.T) {
	s := openSQLite(t)
	ctx := context.Background()

	want := seedTenant(t, s, 5)
	got, err := s.Tenant(ctx, 5)
	require.NoError(t, err)
	require.Equal(t, want, got)

	want.Active = false
	want.Network.IPFilterEnabled = false
	require.NoError(t, s.SaveTenant(ctx, want))
	got, err = s.Tenant(ctx, 5)
	require.NoError(t, err)
	require.Equal(t, want, got)

	_, err = s.Tenant(ctx, 99)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestSaveTenantRejectsMalformedAllowList(t *testing.T) {
	s := openSQLite(t)
	err := s.SaveTenant(context.Background(), store.Tenant{
		ID:          2,
		ReceiptSalt: "S",
		Network:     netpolicy.Policy{IPAllowList: "10.0.0.1/8"},
	})
	require.ErrorIs(t, err, netpolicy.ErrInvalidAllowList)
}

func TestUsersByUsername(t *testing.T) {
	s := openSQLite(t)
	ctx := context.Background()
	seedTenant(t, s, 1)
	seedTenant(t, s, 2)

	adminID, err := s.CreateUser(ctx, store.User{
		TenantID: 1, Username: "alice", Role: permission.RoleAdmin, PasswordHash: "h", Salt: "s",
	})
	require.NoError(t, err)
	receiverID, err := s.CreateUser(ctx, store.User{
		TenantID: 2, Username: "alice", Role: permission.RoleReceiver, PasswordHash: "h", Salt: "s",
		PasswordChangeNeeded: true,
	})
	require.NoError(t, err)
	_, err = s.CreateUser(ctx, store.User{
		TenantID: 2, Username: "bob", Role: permission.RoleReceiver, PasswordHash: "h", State: store.StateDisabled,
	})
	require.NoError(t, err)

	users, err := s.UsersByUsername(ctx, "alice", 2, 1)
	require.NoError(t, err)
	require.Len(t, users, 2)
	require.Equal(t, adminID, users[0].ID)
	require.Equal(t, permission.RoleAdmin, users[0].Role)
	require.Equal(t, receiverID, users[1].ID)
	require.True(t, users[1].PasswordChangeNeeded)
	require.True(t, users[1].LastLogin.IsZero())

	users, err = s.UsersByUsername(ctx, "alice", 2)
	require.NoError(t, err)
	require.Len(t, users, 1)

	users, err = s.UsersByUsername(ctx, "bob", 2)
	require.NoError(t, err)
	require.Empty(t, users)
}

func TestCreateUserDuplicateIsConflict(t *testing.T) {
	s := openSQLite(t)
	ctx := context.Background()
	seedTenant(t, s, 2)

	u := store.User{TenantID: 2, Username: "alice", Role: permission.RoleReceiver, PasswordHash: "h"}
	_, err := s.CreateUser(ctx, u)
	require.NoError(t, err)
	_, err = s.CreateUser(ctx, u)
	require.ErrorIs(t, err, store.ErrConflict)
}

func TestUserByAuthToken(t *testing.T) {
	s := openSQLite(t)
	ctx := context.Background()
	seedTenant(t, s, 2)

	id, err := s.CreateUser(ctx, store.User{
		TenantID: 2, Username: "alice", Role: permission.RoleCustodian, PasswordHash: "h", AuthToken: "tok",
	})
	require.NoError(t, err)

	u, err := s.UserByAuthToken(ctx, 2, "tok")
	require.NoError(t, err)
	require.Equal(t, id, u.ID)

	_, err = s.UserByAuthToken(ctx, 2, "other")
	require.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.UserByAuthToken(ctx, 2, "")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestTipLookupAndTouches(t *testing.T) {
	s := openSQLite(t)
	ctx := context.Background()
	seedTenant(t, s, 2)
	at := time.UnixMilli(1700000000123).UTC()

	tipID, err := s.CreateTip(ctx, store.Tip{TenantID: 2, ReceiptHash: "abc"})
	require.NoError(t, err)

	_, err = s.CreateTip(ctx, store.Tip{TenantID: 2, ReceiptHash: "abc"})
	require.ErrorIs(t, err, store.ErrConflict)

	require.NoError(t, s.TouchTipAccess(ctx, tipID, at))
	tip, err := s.TipByReceiptHash(ctx, 2, "abc")
	require.NoError(t, err)
	require.Equal(t, tipID, tip.ID)
	require.True(t, tip.LastAccess.Equal(at))

	_, err = s.TipByReceiptHash(ctx, 2, "abd")
	require.ErrorIs(t, err, store.ErrNotFound)

	userID, err := s.CreateUser(ctx, store.User{
		TenantID: 2, Username: "alice", Role: permission.RoleReceiver, PasswordHash: "h",
	})
	require.NoError(t, err)
	require.NoError(t, s.TouchUserLogin(ctx, userID, at))
	users, err := s.UsersByUsername(ctx, "alice", 2)
	require.NoError(t, err)
	require.True(t, users[0].LastLogin.Equal(at))

	require.ErrorIs(t, s.TouchTipAccess(ctx, "missing", at), store.ErrNotFound)
}
