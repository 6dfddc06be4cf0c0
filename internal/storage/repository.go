package storage

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ExecutedAtLayout is the stored executed_at format: microseconds plus a literal UTC suffix.
const ExecutedAtLayout = "2006-01-02T15:04:05.000000 UTC"

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
	// ErrNotFound is returned by Fetch when the hash is absent.
	ErrNotFound = errors.New("storage: transaction not found")
)

const (
	existsSQL = `SELECT EXISTS (SELECT 1 FROM transactions WHERE hash = $1);`

	insertTransactionSQL = `INSERT INTO transactions (
        hash,
        from_address,
        to_address,
        block_number,
        executed_at,
        gas_cost_native,
        gas_cost_usd,
        gas_used
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8
    )
    ON CONFLICT (hash) DO NOTHING;`

	fetchTransactionSQL = `SELECT
        hash,
        from_address,
        to_address,
        block_number,
        executed_at,
        gas_used,
        gas_cost_native,
        gas_cost_usd
    FROM transactions
    WHERE hash = $1;`

	statsSQL = `SELECT
        COUNT(hash),
        COALESCE(SUM(gas_used), 0)::BIGINT,
        COALESCE(SUM(gas_cost_usd), 0)
    FROM transactions;`

	listRecentSQL = `SELECT
        hash,
        from_address,
        to_address,
        block_number,
        executed_at,
        gas_used,
        gas_cost_native,
        gas_cost_usd
    FROM transactions
    ORDER BY executed_at DESC, hash
    LIMIT $1;`

	listBetweenSQL = `SELECT
        hash,
        from_address,
        to_address,
        block_number,
        executed_at,
        gas_used,
        gas_cost_native,
        gas_cost_usd
    FROM transactions
    WHERE executed_at >= $1
      AND executed_at < $2
    ORDER BY executed_at, hash;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// DB is the subset of pgxpool.Pool the store issues queries through.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// TransactionWriter persists enriched transactions with insert-if-absent semantics.
type TransactionWriter interface {
	Insert(ctx context.Context, txn Transaction) (InsertOutcome, error)
}

// TransactionReader serves point lookups and aggregates.
type TransactionReader interface {
	Fetch(ctx context.Context, hash string) (Transaction, error)
	Stats(ctx context.Context) (Stats, error)
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store owns the transactions table.
type Store struct {
	db   DB
	pool *pgxpool.Pool

	// serialises the exists-then-insert sequence within the process
	writeMu sync.Mutex
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	if pool == nil {
		return &Store{}
	}
	return &Store{db: pool, pool: pool}
}

// NewStoreWithDB builds a Store over any DB implementation. Advisory locks
// are unavailable without a pool.
func NewStoreWithDB(db DB) *Store {
	return &Store{db: db}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) getDB() (DB, error) {
	if s == nil || s.db == nil {
		return nil, ErrNotConfigured
	}
	return s.db, nil
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	if s == nil || s.pool == nil {
		return nil, false, ErrNotConfigured
	}

	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		// the session lock is also dropped when the connection closes
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

// Insert writes txn unless its hash is already stored.
func (s *Store) Insert(ctx context.Context, txn Transaction) (InsertOutcome, error) {
	db, err := s.getDB()
	if err != nil {
		return 0, err
	}
	if txn.Hash == "" {
		return 0, errors.New("insert transaction: empty hash")
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	var exists bool
	if err := db.QueryRow(ctx, existsSQL, txn.Hash).Scan(&exists); err != nil {
		return 0, fmt.Errorf("check transaction exists: %w", err)
	}
	if exists {
		return AlreadyExists, nil
	}

	tag, err := db.Exec(ctx, insertTransactionSQL,
		txn.Hash,
		txn.FromAddress,
		txn.ToAddress,
		txn.BlockNumber,
		txn.ExecutedAt,
		txn.GasCostNative,
		txn.GasCostUSD,
		txn.GasUsed,
	)
	if err != nil {
		return 0, fmt.Errorf("insert transaction: %w", err)
	}
	// another writer got there between the check and the insert
	if tag.RowsAffected() == 0 {
		return AlreadyExists, nil
	}
	return Inserted, nil
}

// Fetch returns the stored transaction with GasCostUSD rounded to cents.
func (s *Store) Fetch(ctx context.Context, hash string) (Transaction, error) {
	db, err := s.getDB()
	if err != nil {
		return Transaction{}, err
	}

	txn, err := scanTransaction(db.QueryRow(ctx, fetchTransactionSQL, hash))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Transaction{}, ErrNotFound
		}
		return Transaction{}, fmt.Errorf("fetch transaction: %w", err)
	}
	txn.GasCostUSD = RoundCents(txn.GasCostUSD)
	return txn, nil
}

// Stats aggregates the table. An empty table yields zeros.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	db, err := s.getDB()
	if err != nil {
		return Stats{}, err
	}

	var (
		stats   Stats
		costUSD float64
	)
	// COALESCE turns the NULL sums of an empty table into zeros
	if err := db.QueryRow(ctx, statsSQL).Scan(&stats.Count, &stats.TotalGasUsed, &costUSD); err != nil {
		return Stats{}, fmt.Errorf("transaction stats: %w", err)
	}
	stats.TotalGasCostUSD = RoundCents(costUSD)
	return stats, nil
}

// ListRecent returns the latest transactions by execution time.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]Transaction, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	rows, err := db.Query(ctx, listRecentSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent transactions: %w", err)
	}
	return collectTransactions(rows, limit)
}

// ListBetween returns transactions executed in [from, to), oldest first.
func (s *Store) ListBetween(ctx context.Context, from, to time.Time) ([]Transaction, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	rows, err := db.Query(ctx, listBetweenSQL,
		from.UTC().Format(ExecutedAtLayout),
		to.UTC().Format(ExecutedAtLayout),
	)
	if err != nil {
		return nil, fmt.Errorf("list transactions between: %w", err)
	}
	return collectTransactions(rows, 0)
}

// RoundCents rounds a USD amount to two decimal places for presentation.
// The exact binary value is rounded, so 2.675 becomes 2.67 and exact ties
// such as 0.125 go to the even digit.
func RoundCents(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	r, err := strconv.ParseFloat(strconv.FormatFloat(v, 'f', 2, 64), 64)
	if err != nil {
		return v
	}
	return r
}

func collectTransactions(rows pgx.Rows, capacity int) ([]Transaction, error) {
	defer rows.Close()

	txns := make([]Transaction, 0, capacity)
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txn.GasCostUSD = RoundCents(txn.GasCostUSD)
		txns = append(txns, txn)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return txns, nil
}

func scanTransaction(row pgx.Row) (Transaction, error) {
	var txn Transaction
	if err := row.Scan(
		&txn.Hash,
		&txn.FromAddress,
		&txn.ToAddress,
		&txn.BlockNumber,
		&txn.ExecutedAt,
		&txn.GasUsed,
		&txn.GasCostNative,
		&txn.GasCostUSD,
	); err != nil {
		return Transaction{}, err
	}
	return txn, nil
}

var (
	_ TransactionWriter = (*Store)(nil)
	_ TransactionReader = (*Store)(nil)
	_ AdvisoryLocker    = (*Store)(nil)
)
