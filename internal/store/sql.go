package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"inventory-service/internal/domain"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "pgx"
)

// timeLayout is fixed width so TEXT comparison orders chronologically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// SQLStore is the relational Store backend. Every update is a transaction
// that re-reads the row, compares versions and writes with
// "WHERE id = ? AND version = ?", so a concurrent writer on another process
// still loses with VersionConflict.
type SQLStore struct {
	db     *sql.DB
	driver string
	logger *zap.Logger
	mu     sync.Mutex // single writer for SQLite
	now    func() time.Time

	products   *sqlRepo[domain.Product, *domain.Product, ProductFilter]
	categories *sqlRepo[domain.Category, *domain.Category, CategoryFilter]
	suppliers  *sqlRepo[domain.Supplier, *domain.Supplier, SupplierFilter]
	orders     *sqlRepo[domain.Order, *domain.Order, OrderFilter]
	users      *sqlUsers
	audit      *sqlRepo[domain.AuditEntry, *domain.AuditEntry, AuditFilter]
}

// OpenSQLite opens (or creates) a SQLite database in WAL mode with a single
// writer connection.
func OpenSQLite(path string, logger *zap.Logger) (*SQLStore, error) {
	db, err := sql.Open(DriverSQLite, path+"?_journal_mode=WAL&_foreign_keys=1&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	return newSQLStore(db, DriverSQLite, logger)
}

// OpenPostgres connects through the pgx stdlib driver, retrying the initial
// ping while the database comes up.
func OpenPostgres(ctx context.Context, dsn string, logger *zap.Logger) (*SQLStore, error) {
	db, err := sql.Open(DriverPostgres, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(4)
	db.SetConnMaxIdleTime(30 * time.Second)

	const attempts = 10
	for i := 1; ; i++ {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err = db.PingContext(pingCtx)
		cancel()
		if err == nil {
			break
		}
		if i == attempts {
			db.Close()
			return nil, fmt.Errorf("failed to connect to database after %d attempts: %w", attempts, err)
		}
		logger.Warn("Database not ready, retrying", zap.Int("attempt", i), zap.Error(err))
		select {
		case <-ctx.Done():
			db.Close()
			return nil, ctx.Err()
		case <-time.After(time.Second):
		}
	}

	return newSQLStore(db, DriverPostgres, logger)
}

func newSQLStore(db *sql.DB, driver string, logger *zap.Logger) (*SQLStore, error) {
	s := &SQLStore{
		db:     db,
		driver: driver,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
	if err := s.initSchema(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	s.wire()
	logger.Info("SQL store ready", zap.String("driver", driver))
	return s, nil
}

func (s *SQLStore) initSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLStore) Products() ProductRepository { return s.products }
func (s *SQLStore) Categories() CategoryRepository { return s.categories }
func (s *SQLStore) Suppliers() SupplierRepository { return s.suppliers }
func (s *SQLStore) Orders() OrderRepository { return s.orders }
func (s *SQLStore) Users() UserRepository { return s.users }
func (s *SQLStore) Audit() AuditRepository { return s.audit }

func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) lockWrites() func() {
	if s.driver != DriverSQLite {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

// rebind rewrites "?" placeholders into "$n" for PostgreSQL.
func (s *SQLStore) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQLStore) count(ctx context.Context, q querier, query string, args ...interface{}) (int, error) {
	var n int
	if err := q.QueryRowContext(ctx, s.rebind(query), args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// sqlRepo implements Repository over one table. columns excludes the record
// columns (id, created_at, updated_at, version), which every table leads with.
type sqlRepo[E any, P entity[E], F any] struct {
	s           *SQLStore
	name        string
	table       string
	columns     []string
	fields      func(P) []interface{}
	values      func(P) ([]interface{}, error)
	where       func(F) ([]string, []interface{})
	sortOf      func(F) Sort
	sortColumns map[SortField]string
	prepare     func(ctx context.Context, q querier, before, after P) error
	deletable   func(ctx context.Context, q querier, row P) error
}

func (r *sqlRepo[E, P, F]) selectSQL() string {
	return "SELECT id, created_at, updated_at, version, " + strings.Join(r.columns, ", ") + " FROM " + r.table
}

func (r *sqlRepo[E, P, F]) scan(sc interface{ Scan(...interface{}) error }) (P, error) {
	var e E
	row := P(&e)
	meta := row.Meta()
	dest := append([]interface{}{&meta.ID, timeColumn{&meta.CreatedAt}, timeColumn{&meta.UpdatedAt}, &meta.Version}, r.fields(row)...)
	if err := sc.Scan(dest...); err != nil {
		return nil, err
	}
	return row, nil
}

func (r *sqlRepo[E, P, F]) get(ctx context.Context, q querier, id uuid.UUID) (P, error) {
	row, err := r.scan(q.QueryRowContext(ctx, r.s.rebind(r.selectSQL()+" WHERE id = ?"), id.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewNotFound(r.name, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", r.name, err)
	}
	return row, nil
}

func (r *sqlRepo[E, P, F]) Create(ctx context.Context, entity *E) (*E, error) {
	row := P(P(entity).Clone())
	if err := row.Validate(); err != nil {
		return nil, err
	}
	meta := row.Meta()
	if meta.ID == uuid.Nil {
		meta.ID = uuid.New()
	}

	unlock := r.s.lockWrites()
	defer unlock()

	tx, err := r.s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	n, err := r.s.count(ctx, tx, "SELECT COUNT(*) FROM "+r.table+" WHERE id = ?", meta.ID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to check %s id: %w", r.name, err)
	}
	if n > 0 {
		return nil, domain.NewDuplicate(r.name+" id", meta.ID.String())
	}
	if r.prepare != nil {
		if err := r.prepare(ctx, tx, nil, row); err != nil {
			return nil, err
		}
	}

	now := r.s.now()
	meta.Version = 1
	meta.CreatedAt = now
	meta.UpdatedAt = now

	vals, err := r.values(row)
	if err != nil {
		return nil, err
	}
	args := append([]interface{}{meta.ID.String(), timeValue(now), timeValue(now), meta.Version}, vals...)
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(args)), ", ")
	query := "INSERT INTO " + r.table + " (id, created_at, updated_at, version, " + strings.Join(r.columns, ", ") + ") VALUES (" + placeholders + ")"
	if _, err := tx.ExecContext(ctx, r.s.rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", r.name, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit %s: %w", r.name, err)
	}
	return row.Clone(), nil
}

func (r *sqlRepo[E, P, F]) Get(ctx context.Context, id uuid.UUID) (*E, error) {
	row, err := r.get(ctx, r.s.db, id)
	if err != nil {
		return nil, err
	}
	return (*E)(row), nil
}

func (r *sqlRepo[E, P, F]) Update(ctx context.Context, id uuid.UUID, expectedVersion int, patch func(*E) error) (*E, error) {
	unlock := r.s.lockWrites()
	defer unlock()

	tx, err := r.s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	current, err := r.get(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	cur := current.Meta()
	if cur.Version != expectedVersion {
		return nil, domain.NewVersionConflict(r.name, id, expectedVersion, cur.Version)
	}

	next := P(current.Clone())
	if err := patch((*E)(next)); err != nil {
		return nil, err
	}
	meta := next.Meta()
	meta.ID = cur.ID
	meta.CreatedAt = cur.CreatedAt
	meta.Version = cur.Version
	if err := next.Validate(); err != nil {
		return nil, err
	}
	if r.prepare != nil {
		if err := r.prepare(ctx, tx, current, next); err != nil {
			return nil, err
		}
	}

	vals, err := r.values(next)
	if err != nil {
		return nil, err
	}
	now := r.s.now()
	sets := make([]string, 0, len(r.columns)+2)
	for _, c := range r.columns {
		sets = append(sets, c+" = ?")
	}
	sets = append(sets, "version = version + 1", "updated_at = ?")
	args := append(vals, timeValue(now), id.String(), expectedVersion)
	query := "UPDATE " + r.table + " SET " + strings.Join(sets, ", ") + " WHERE id = ? AND version = ?"

	res, err := tx.ExecContext(ctx, r.s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to update %s: %w", r.name, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to update %s: %w", r.name, err)
	}
	if affected == 0 {
		return nil, domain.NewVersionConflict(r.name, id, expectedVersion, cur.Version+1)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit %s: %w", r.name, err)
	}

	meta.Version = cur.Version + 1
	meta.UpdatedAt = now
	return next.Clone(), nil
}

func (r *sqlRepo[E, P, F]) Delete(ctx context.Context, id uuid.UUID) error {
	unlock := r.s.lockWrites()
	defer unlock()

	tx, err := r.s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	row, err := r.get(ctx, tx, id)
	if err != nil {
		return err
	}
	if r.deletable != nil {
		if err := r.deletable(ctx, tx, row); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx, r.s.rebind("DELETE FROM "+r.table+" WHERE id = ?"), id.String()); err != nil {
		return fmt.Errorf("failed to delete %s: %w", r.name, err)
	}
	return tx.Commit()
}

func (r *sqlRepo[E, P, F]) List(ctx context.Context, filter F) ([]*E, error) {
	query := r.selectSQL()
	var args []interface{}
	if r.where != nil {
		clauses, whereArgs := r.where(filter)
		if len(clauses) > 0 {
			query += " WHERE " + strings.Join(clauses, " AND ")
			args = whereArgs
		}
	}
	query += " ORDER BY " + r.orderBy(filter)

	rows, err := r.s.db.QueryContext(ctx, r.s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", r.name, err)
	}
	defer rows.Close()

	var out []*E
	for rows.Next() {
		row, err := r.scan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", r.name, err)
		}
		out = append(out, (*E)(row))
	}
	return out, rows.Err()
}

func (r *sqlRepo[E, P, F]) orderBy(filter F) string {
	var order Sort
	if r.sortOf != nil {
		order = r.sortOf(filter)
	}
	column, ok := r.sortColumns[order.Field]
	if !ok {
		column = "created_at"
	}
	dir := ""
	if order.Desc {
		dir = " DESC"
	}
	if column == "created_at" {
		return "created_at" + dir + ", id"
	}
	return column + dir + ", created_at, id"
}

type sqlUsers struct {
	*sqlRepo[domain.User, *domain.User, UserFilter]
}

func (r *sqlUsers) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	email = domain.NormalizeEmail(email)
	row, err := r.scan(r.s.db.QueryRowContext(ctx, r.s.rebind(r.selectSQL()+" WHERE email = ?"), email))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.DomainError{Kind: domain.KindNotFound, Message: "user with email " + email + " not found"}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read user: %w", err)
	}
	return row, nil
}

func timeValue(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

type timeColumn struct{ t *time.Time }

func (c timeColumn) Scan(src interface{}) error {
	switch v := src.(type) {
	case time.Time:
		*c.t = v.UTC()
		return nil
	case string:
		return c.parse(v)
	case []byte:
		return c.parse(string(v))
	default:
		return fmt.Errorf("cannot scan %T into time", src)
	}
}

func (c timeColumn) parse(s string) error {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return err
	}
	*c.t = t.UTC()
	return nil
}

// nullIDColumn scans a nullable TEXT id into a *uuid.UUID field.
type nullIDColumn struct{ dst **uuid.UUID }

func (c nullIDColumn) Scan(src interface{}) error {
	var n uuid.NullUUID
	if err := n.Scan(src); err != nil {
		return err
	}
	if !n.Valid {
		*c.dst = nil
		return nil
	}
	id := n.UUID
	*c.dst = &id
	return nil
}

func nullID(id *uuid.UUID) interface{} {
	if id == nil {
		return nil
	}
	return id.String()
}

// optionalID stores uuid.Nil as the empty string. uuid.UUID scans the empty
// string back to uuid.Nil.
func optionalID(id uuid.UUID) string {
	if id == uuid.Nil {
		return ""
	}
	return id.String()
}

// jsonColumn decodes a JSON TEXT column into v.
type jsonColumn struct{ v interface{} }

func (c jsonColumn) Scan(src interface{}) error {
	switch b := src.(type) {
	case string:
		return json.Unmarshal([]byte(b), c.v)
	case []byte:
		return json.Unmarshal(b, c.v)
	default:
		return fmt.Errorf("cannot scan %T into json", src)
	}
}

func jsonValue(v interface{}) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to encode json column: %w", err)
	}
	return string(b), nil
}

type boolColumn struct{ dst *bool }

func (c boolColumn) Scan(src interface{}) error {
	switch v := src.(type) {
	case bool:
		*c.dst = v
	case int64:
		*c.dst = v != 0
	case int32:
		*c.dst = v != 0
	default:
		return fmt.Errorf("cannot scan %T into bool", src)
	}
	return nil
}

func boolValue(b bool) int {
	if b {
		return 1
	}
	return 0
}

// pointColumn scans the lng column and combines it with lat, which
// database/sql has already scanned since columns are assigned in order.
type pointColumn struct {
	lat sql.NullFloat64
	dst **domain.GeoPoint
}

func (c *pointColumn) Scan(src interface{}) error {
	var lng sql.NullFloat64
	if err := lng.Scan(src); err != nil {
		return err
	}
	if !c.lat.Valid || !lng.Valid {
		*c.dst = nil
		return nil
	}
	*c.dst = &domain.GeoPoint{Lat: c.lat.Float64, Lng: lng.Float64}
	return nil
}
