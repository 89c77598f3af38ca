/*
Package sqlite provides the durable, SQL-backed implementation of the
storage contract.

PURPOSE:
  Implements vss.Store on SQLite via database/sql. The same statement
  patterns apply to PostgreSQL - only placeholder and dialect differences.

CONDITIONAL WRITES:
  Version checks are encoded in the statements themselves rather than as
  SELECT-then-UPDATE pairs: every conditional statement carries the
  expected version in its WHERE clause (or an ON CONFLICT clause), and the
  affected-row count decides the outcome. A count of zero inside a Put
  transaction means a conflict and rolls the whole batch back.

WAL MODE:
  The database is opened with WAL journaling for better read concurrency
  and crash recovery, plus a busy timeout so short write contention waits
  instead of failing.

CONCURRENCY:
  An RWMutex serializes write transactions; reads share the lock. The
  database/sql pool bounds concurrent connections underneath.

SEE ALSO:
  - migrations.go: schema creation and upgrades
  - vss/store.go: contract being implemented
  - store/storetest/suite.go: conformance suite
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/lightningdevkit/vss-server/vss"
)

// Store implements vss.Store on a SQLite database.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New opens (or creates) the database at path and migrates its schema.
func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, _, err := Migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// dbRecord is one row of vss_db, built once per request item at the
// commit-time instant.
type dbRecord struct {
	userToken     string
	storeID       string
	key           string
	value         []byte
	version       int64
	createdAt     time.Time
	lastUpdatedAt time.Time
}

func buildRecord(userToken, storeID string, kv *vss.KeyValue, now time.Time) dbRecord {
	return dbRecord{
		userToken:     userToken,
		storeID:       storeID,
		key:           kv.Key,
		value:         kv.Value,
		version:       kv.Version,
		createdAt:     now,
		lastUpdatedAt: now,
	}
}

// =============================================================================
// WRITE STATEMENTS
// =============================================================================

func execNonConditionalUpsert(ctx context.Context, tx *sql.Tx, r *dbRecord) (int64, error) {
	query := fmt.Sprintf(`
		INSERT INTO vss_db (user_token, store_id, key, value, version, created_at, last_updated_at)
		VALUES (?, ?, ?, ?, %d, ?, ?)
		ON CONFLICT (user_token, store_id, key) DO UPDATE
		SET value = excluded.value, version = %d, last_updated_at = excluded.last_updated_at`,
		vss.InitialRecordVersion, vss.InitialRecordVersion)
	return execCount(ctx, tx, query,
		r.userToken, r.storeID, r.key, r.value, formatTime(r.createdAt), formatTime(r.lastUpdatedAt))
}

func execConditionalInsert(ctx context.Context, tx *sql.Tx, r *dbRecord) (int64, error) {
	query := fmt.Sprintf(`
		INSERT INTO vss_db (user_token, store_id, key, value, version, created_at, last_updated_at)
		VALUES (?, ?, ?, ?, %d, ?, ?)
		ON CONFLICT DO NOTHING`, vss.InitialRecordVersion)
	return execCount(ctx, tx, query,
		r.userToken, r.storeID, r.key, r.value, formatTime(r.createdAt), formatTime(r.lastUpdatedAt))
}

func execConditionalUpdate(ctx context.Context, tx *sql.Tx, r *dbRecord) (int64, error) {
	query := `
		UPDATE vss_db SET value = ?, version = ?, last_updated_at = ?
		WHERE user_token = ? AND store_id = ? AND key = ? AND version = ?`
	return execCount(ctx, tx, query,
		r.value, r.version+1, formatTime(r.lastUpdatedAt), r.userToken, r.storeID, r.key, r.version)
}

func execPut(ctx context.Context, tx *sql.Tx, r *dbRecord) (int64, error) {
	switch {
	case r.version == -1:
		return execNonConditionalUpsert(ctx, tx, r)
	case r.version == 0:
		return execConditionalInsert(ctx, tx, r)
	default:
		return execConditionalUpdate(ctx, tx, r)
	}
}

func execNonConditionalDelete(ctx context.Context, tx *sql.Tx, r *dbRecord) (int64, error) {
	query := "DELETE FROM vss_db WHERE user_token = ? AND store_id = ? AND key = ?"
	return execCount(ctx, tx, query, r.userToken, r.storeID, r.key)
}

func execConditionalDelete(ctx context.Context, tx *sql.Tx, r *dbRecord) (int64, error) {
	query := "DELETE FROM vss_db WHERE user_token = ? AND store_id = ? AND key = ? AND version = ?"
	return execCount(ctx, tx, query, r.userToken, r.storeID, r.key, r.version)
}

func execDelete(ctx context.Context, tx *sql.Tx, r *dbRecord) (int64, error) {
	if r.version == -1 {
		return execNonConditionalDelete(ctx, tx, r)
	}
	return execConditionalDelete(ctx, tx, r)
}

func execCount(ctx context.Context, tx *sql.Tx, query string, args ...any) (int64, error) {
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func formatTime(t time.Time) string {
	return t.Format(time.RFC3339Nano)
}

// =============================================================================
// STORE OPERATIONS
// =============================================================================

// Get implements vss.Store.
func (s *Store) Get(ctx context.Context, userToken string, req *vss.GetObjectRequest) (*vss.GetObjectResponse, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := "SELECT key, value, version FROM vss_db WHERE user_token = ? AND store_id = ? AND key = ?"
	var (
		key     string
		value   []byte
		version int64
	)
	err := s.db.QueryRowContext(ctx, query, userToken, req.StoreID, req.Key).
		Scan(&key, &value, &version)
	switch {
	case err == nil:
		if value == nil {
			value = []byte{}
		}
		return &vss.GetObjectResponse{Value: &vss.KeyValue{Key: key, Version: version, Value: value}}, nil
	case err == sql.ErrNoRows:
		if req.Key == vss.GlobalVersionKey {
			return &vss.GetObjectResponse{Value: &vss.KeyValue{Key: vss.GlobalVersionKey, Version: 0}}, nil
		}
		return nil, vss.NewNoSuchKey("Requested key not found.")
	default:
		return nil, vss.NewInternal("get query failed: %v", err)
	}
}

// Put implements vss.Store. All statements run in one transaction; any
// statement that affects zero rows aborts the batch with a Conflict.
func (s *Store) Put(ctx context.Context, userToken string, req *vss.PutObjectRequest) (*vss.PutObjectResponse, error) {
	if err := vss.ValidatePut(req); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	putRecords := make([]dbRecord, 0, len(req.TransactionItems)+1)
	for i := range req.TransactionItems {
		putRecords = append(putRecords, buildRecord(userToken, req.StoreID, &req.TransactionItems[i], now))
	}
	if req.GlobalVersion != nil {
		sentinel := vss.KeyValue{Key: vss.GlobalVersionKey, Version: *req.GlobalVersion}
		putRecords = append(putRecords, buildRecord(userToken, req.StoreID, &sentinel, now))
	}
	deleteRecords := make([]dbRecord, 0, len(req.DeleteItems))
	for i := range req.DeleteItems {
		deleteRecords = append(deleteRecords, buildRecord(userToken, req.StoreID, &req.DeleteItems[i], now))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, vss.NewInternal("failed to begin transaction: %v", err)
	}
	defer tx.Rollback()

	for i := range putRecords {
		n, err := execPut(ctx, tx, &putRecords[i])
		if err != nil {
			return nil, vss.NewInternal("put statement failed: %v", err)
		}
		if n == 0 {
			return nil, vss.NewConflict("Transaction could not be completed due to a possible conflict")
		}
	}
	for i := range deleteRecords {
		n, err := execDelete(ctx, tx, &deleteRecords[i])
		if err != nil {
			return nil, vss.NewInternal("delete statement failed: %v", err)
		}
		if n == 0 {
			return nil, vss.NewConflict("Transaction could not be completed due to a possible conflict")
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, vss.NewInternal("failed to commit transaction: %v", err)
	}
	return &vss.PutObjectResponse{}, nil
}

// Delete implements vss.Store. A missing key is success; a present key
// with a mismatched version is a Conflict.
func (s *Store) Delete(ctx context.Context, userToken string, req *vss.DeleteObjectRequest) (*vss.DeleteObjectResponse, error) {
	if req.KeyValue == nil {
		return nil, vss.NewInvalidRequest("key_value missing in DeleteObjectRequest")
	}

	now := time.Now().UTC()
	record := buildRecord(userToken, req.StoreID, req.KeyValue, now)

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, vss.NewInternal("failed to begin transaction: %v", err)
	}
	defer tx.Rollback()

	n, err := execDelete(ctx, tx, &record)
	if err != nil {
		return nil, vss.NewInternal("delete statement failed: %v", err)
	}
	if n == 0 {
		// Zero rows means either the key is absent (idempotent success) or
		// it exists at a different version (conflict). Distinguish inside
		// the same transaction.
		var one int
		err := tx.QueryRowContext(ctx,
			"SELECT 1 FROM vss_db WHERE user_token = ? AND store_id = ? AND key = ?",
			record.userToken, record.storeID, record.key).Scan(&one)
		switch {
		case err == sql.ErrNoRows:
			return &vss.DeleteObjectResponse{}, nil
		case err != nil:
			return nil, vss.NewInternal("delete existence check failed: %v", err)
		default:
			return nil, vss.NewConflict("Version mismatch for delete key %s: expected %d",
				record.key, record.version)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, vss.NewInternal("failed to commit transaction: %v", err)
	}
	return &vss.DeleteObjectResponse{}, nil
}

// ListKeyVersions implements vss.Store. Pagination is a keyset scan on
// key > token; the LIKE conjunction keeps the scan inside the prefix even
// when the prefix sorts below the token.
func (s *Store) ListKeyVersions(ctx context.Context, userToken string, req *vss.ListKeyVersionsRequest) (*vss.ListKeyVersionsResponse, error) {
	limit := vss.EffectivePageSize(req.PageSize)

	s.mu.RLock()
	defer s.mu.RUnlock()

	resp := &vss.ListKeyVersionsResponse{}

	// The sentinel is read before any key versions so that clients can
	// snapshot the counter at or before the state they are about to
	// enumerate. First page only.
	if req.PageToken == nil {
		gv, err := s.sentinelVersion(ctx, userToken, req.StoreID)
		if err != nil {
			return nil, err
		}
		resp.GlobalVersion = &gv
	}

	var prefix, token string
	if req.KeyPrefix != nil {
		prefix = *req.KeyPrefix
	}
	if req.PageToken != nil {
		token = *req.PageToken
	}

	query := `
		SELECT key, version FROM vss_db
		WHERE user_token = ? AND store_id = ? AND key > ? AND key LIKE ? ESCAPE '\'
		ORDER BY key LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, userToken, req.StoreID, token, likePattern(prefix), limit)
	if err != nil {
		return nil, vss.NewInternal("list query failed: %v", err)
	}
	defer rows.Close()

	var lastKey string
	for rows.Next() {
		var (
			key     string
			version int64
		)
		if err := rows.Scan(&key, &version); err != nil {
			return nil, vss.NewInternal("list scan failed: %v", err)
		}
		lastKey = key
		if key == vss.GlobalVersionKey {
			continue
		}
		resp.KeyVersions = append(resp.KeyVersions, vss.KeyValue{Key: key, Version: version})
	}
	if err := rows.Err(); err != nil {
		return nil, vss.NewInternal("list iteration failed: %v", err)
	}

	resp.NextPageToken = &lastKey
	return resp, nil
}

// sentinelVersion reads the store-wide counter, 0 when absent.
func (s *Store) sentinelVersion(ctx context.Context, userToken, storeID string) (int64, error) {
	query := "SELECT version FROM vss_db WHERE user_token = ? AND store_id = ? AND key = ?"
	var version int64
	err := s.db.QueryRowContext(ctx, query, userToken, storeID, vss.GlobalVersionKey).Scan(&version)
	switch {
	case err == nil:
		return version, nil
	case err == sql.ErrNoRows:
		return 0, nil
	default:
		return 0, vss.NewInternal("get query failed: %v", err)
	}
}

// likePattern turns a literal key prefix into a LIKE pattern, escaping
// the wildcard characters so user keys cannot widen the match.
func likePattern(prefix string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(prefix) + "%"
}
