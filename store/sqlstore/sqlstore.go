// Package sqlstore implements store.Credentials and store.Tenants on
// database/sql, for Postgres (pgx stdlib driver) and SQLite (modernc).
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/MrEthical07/tipgate/permission"
	"github.com/MrEthical07/tipgate/store"
	"github.com/MrEthical07/tipgate/store/sqlstore/migrations"
)

// Dialect selects the driver and placeholder style.
type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

func (d Dialect) driver() (string, error) {
	switch d {
	case Postgres:
		return "pgx", nil
	case SQLite:
		return "sqlite", nil
	default:
		return "", fmt.Errorf("unsupported sql dialect %q", d)
	}
}

func (d Dialect) gooseDialect() string {
	if d == SQLite {
		return "sqlite3"
	}
	return "postgres"
}

// goose keeps its base FS and dialect in package globals.
var migrateMu sync.Mutex

type Store struct {
	db      *sql.DB
	dialect Dialect
}

// Open connects, pings and migrates. For SQLite the dsn is a file path.
func Open(ctx context.Context, dialect Dialect, dsn string) (*Store, error) {
	driver, err := dialect.driver()
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("database dsn is required")
	}
	if dialect == SQLite {
		// modernc applies _pragma on every new connection of the pool.
		dsn = filepath.Clean(dsn) + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s db: %w", dialect, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s db: %w", dialect, err)
	}

	s := New(db, dialect)
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an existing handle without migrating it.
func New(db *sql.DB, dialect Dialect) *Store {
	return &Store{db: db, dialect: dialect}
}

// Migrate applies the embedded schema.
func (s *Store) Migrate(ctx context.Context) error {
	migrateMu.Lock()
	defer migrateMu.Unlock()

	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect(s.dialect.gooseDialect()); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, s.db, "."); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// rebind turns $n placeholders into ?n for SQLite.
func (s *Store) rebind(query string) string {
	if s.dialect != SQLite {
		return query
	}
	return strings.ReplaceAll(query, "$", "?")
}

// SaveTenant inserts or updates a tenant. The allow-list is validated first.
func (s *Store) SaveTenant(ctx context.Context, t store.Tenant) error {
	if err := store.ValidateTenant(t); err != nil {
		return err
	}
	const q = `INSERT INTO tenants
	(id, active, receipt_salt, web_admin, web_custodian, web_receiver, web_whistleblower, ip_filter_enabled, ip_allow_list)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	ON CONFLICT (id) DO UPDATE SET
		active = excluded.active,
		receipt_salt = excluded.receipt_salt,
		web_admin = excluded.web_admin,
		web_custodian = excluded.web_custodian,
		web_receiver = excluded.web_receiver,
		web_whistleblower = excluded.web_whistleblower,
		ip_filter_enabled = excluded.ip_filter_enabled,
		ip_allow_list = excluded.ip_allow_list`

	n := t.Network
	_, err := s.db.ExecContext(ctx, s.rebind(q),
		t.ID, t.Active, t.ReceiptSalt,
		n.WebAccess.Admin, n.WebAccess.Custodian, n.WebAccess.Receiver, n.WebAccess.Whistleblower,
		n.IPFilterEnabled, n.IPAllowList,
	)
	if err != nil {
		return fmt.Errorf("save tenant %d: %w", t.ID, err)
	}
	return nil
}

// CreateUser inserts a user, generating an id when u.ID is empty.
func (s *Store) CreateUser(ctx context.Context, u store.User) (string, error) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.State == "" {
		u.State = store.StateEnabled
	}
	if err := store.ValidateUser(u); err != nil {
		return "", err
	}

	const q = `INSERT INTO users
	(id, tenant_id, username, role, password_hash, salt, state, auth_token, last_login, password_change_needed)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := s.db.ExecContext(ctx, s.rebind(q),
		u.ID, u.TenantID, u.Username, u.Role.String(), u.PasswordHash, u.Salt, u.State,
		u.AuthToken, toMillis(u.LastLogin), u.PasswordChangeNeeded,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return "", fmt.Errorf("%w: username %q in tenant %d", store.ErrConflict, u.Username, u.TenantID)
		}
		return "", fmt.Errorf("create user: %w", err)
	}
	return u.ID, nil
}

// CreateTip inserts a tip, generating an id when t.ID is empty.
func (s *Store) CreateTip(ctx context.Context, t store.Tip) (string, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if err := store.ValidateTip(t); err != nil {
		return "", err
	}

	const q = `INSERT INTO internaltips (id, tenant_id, receipt_hash, wb_last_access) VALUES ($1, $2, $3, $4)`
	if _, err := s.db.ExecContext(ctx, s.rebind(q), t.ID, t.TenantID, t.ReceiptHash, toMillis(t.LastAccess)); err != nil {
		if isUniqueViolation(err) {
			return "", fmt.Errorf("%w: receipt in tenant %d", store.ErrConflict, t.TenantID)
		}
		return "", fmt.Errorf("create tip: %w", err)
	}
	return t.ID, nil
}

func (s *Store) Tenant(ctx context.Context, id int) (store.Tenant, error) {
	const q = `SELECT id, active, receipt_salt, web_admin, web_custodian, web_receiver, web_whistleblower,
	ip_filter_enabled, ip_allow_list FROM tenants WHERE id = $1`

	var t store.Tenant
	n := &t.Network
	err := s.db.QueryRowContext(ctx, s.rebind(q), id).Scan(
		&t.ID, &t.Active, &t.ReceiptSalt,
		&n.WebAccess.Admin, &n.WebAccess.Custodian, &n.WebAccess.Receiver, &n.WebAccess.Whistleblower,
		&n.IPFilterEnabled, &n.IPAllowList,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Tenant{}, store.ErrNotFound
	}
	if err != nil {
		return store.Tenant{}, fmt.Errorf("load tenant %d: %w", id, err)
	}
	return t, nil
}

const userColumns = `id, tenant_id, username, role, password_hash, salt, state, auth_token, last_login, password_change_needed`

func (s *Store) UsersByUsername(ctx context.Context, username string, tenantIDs ...int) ([]store.User, error) {
	if len(tenantIDs) == 0 {
		return nil, nil
	}

	args := make([]any, 0, len(tenantIDs)+2)
	args = append(args, username, store.StateDisabled)
	marks := make([]string, len(tenantIDs))
	for i, tid := range tenantIDs {
		args = append(args, tid)
		marks[i] = "$" + strconv.Itoa(i+3)
	}

	q := `SELECT ` + userColumns + ` FROM users
	WHERE username = $1 AND state <> $2 AND tenant_id IN (` + strings.Join(marks, ", ") + `)
	ORDER BY tenant_id, id`

	rows, err := s.db.QueryContext(ctx, s.rebind(q), args...)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	var out []store.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	return out, nil
}

func (s *Store) UserByAuthToken(ctx context.Context, tenantID int, token string) (store.User, error) {
	if token == "" {
		return store.User{}, store.ErrNotFound
	}

	q := `SELECT ` + userColumns + ` FROM users WHERE tenant_id = $1 AND auth_token = $2 AND state <> $3`
	u, err := scanUser(s.db.QueryRowContext(ctx, s.rebind(q), tenantID, token, store.StateDisabled))
	if errors.Is(err, sql.ErrNoRows) {
		return store.User{}, store.ErrNotFound
	}
	return u, err
}

func (s *Store) TipByReceiptHash(ctx context.Context, tenantID int, hash string) (store.Tip, error) {
	const q = `SELECT id, tenant_id, receipt_hash, wb_last_access FROM internaltips WHERE tenant_id = $1 AND receipt_hash = $2`

	var (
		t    store.Tip
		last int64
	)
	err := s.db.QueryRowContext(ctx, s.rebind(q), tenantID, hash).Scan(&t.ID, &t.TenantID, &t.ReceiptHash, &last)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Tip{}, store.ErrNotFound
	}
	if err != nil {
		return store.Tip{}, fmt.Errorf("load tip: %w", err)
	}
	t.LastAccess = fromMillis(last)
	return t, nil
}

func (s *Store) TouchUserLogin(ctx context.Context, userID string, at time.Time) error {
	const q = `UPDATE users SET last_login = $1 WHERE id = $2`
	return s.touch(ctx, q, "user", userID, at)
}

func (s *Store) TouchTipAccess(ctx context.Context, tipID string, at time.Time) error {
	const q = `UPDATE internaltips SET wb_last_access = $1 WHERE id = $2`
	return s.touch(ctx, q, "tip", tipID, at)
}

func (s *Store) touch(ctx context.Context, q, kind, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, s.rebind(q), toMillis(at), id)
	if err != nil {
		return fmt.Errorf("touch %s: %w", kind, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("touch %s: %w", kind, err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (store.User, error) {
	var (
		u    store.User
		role string
		last int64
	)
	err := row.Scan(&u.ID, &u.TenantID, &u.Username, &role, &u.PasswordHash, &u.Salt, &u.State,
		&u.AuthToken, &last, &u.PasswordChangeNeeded)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.User{}, err
		}
		return store.User{}, fmt.Errorf("scan user: %w", err)
	}
	if u.Role, err = permission.ParseRole(role); err != nil {
		return store.User{}, fmt.Errorf("user %s: %w", u.ID, err)
	}
	u.LastLogin = fromMillis(last)
	return u, nil
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UTC().UnixMilli()
}

func fromMillis(v int64) time.Time {
	if v == 0 {
		return time.Time{}
	}
	return time.UnixMilli(v).UTC()
}

func isUniqueViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

var (
	_ store.Credentials = (*Store)(nil)
	_ store.Tenants     = (*Store)(nil)
)
