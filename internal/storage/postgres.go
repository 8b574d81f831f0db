// Package storage implements the PostgreSQL persistence layer for the
// shielded pool: the singleton pool-account row, the commitment leaf table
// backing the off-chain tree mirror, and nullifier markers (SPEC_FULL §4.7,
// §5). Each instruction's marker/leaf/state writes run inside one
// pgx.Tx via WithinTransaction, the same all-or-nothing guarantee
// internal/pool's in-memory Store gives by snapshotting and restoring on
// error.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nyxlabs/veil/internal/field"
	"github.com/nyxlabs/veil/internal/merkle"
	"github.com/nyxlabs/veil/internal/pool"
	"github.com/nyxlabs/veil/pkg/types"
)

// Common errors
var (
	ErrNotFound     = errors.New("storage: not found")
	ErrDuplicate    = errors.New("storage: duplicate entry")
	ErrInvalidData  = errors.New("storage: invalid data")
	ErrDBConnection = errors.New("storage: database connection error")
)

// poolStateID is the fixed primary key of the singleton pool_state row.
const poolStateID = 1

// querier is satisfied by both *pgxpool.Pool and pgx.Tx, letting every SQL
// helper below run unchanged whether it's called directly against the pool
// or against an open transaction handed to a WithinTransaction callback.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore implements both merkle.TreeStore and pool.Store over a
// single PostgreSQL database, satisfying both with one pgxpool connection
// pool so the pool account and its tree mirror commit atomically together.
type PostgresStore struct {
	db *pgxpool.Pool
}

var (
	_ merkle.TreeStore = (*PostgresStore)(nil)
	_ pool.Store       = (*PostgresStore)(nil)
	_ pool.Store       = (*pgTxStore)(nil)
)

// Config holds database configuration.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int32
}

// DefaultConfig returns default database configuration.
func DefaultConfig() *Config {
	return &Config{
		Host:     "localhost",
		Port:     5432,
		User:     "veil",
		Password: "",
		Database: "veil",
		SSLMode:  "disable",
		MaxConns: 20,
	}
}

// NewPostgresStore opens a connection pool and verifies connectivity.
func NewPostgresStore(ctx context.Context, cfg *Config) (*PostgresStore, error) {
	connString := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s pool_max_conns=%d",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode, cfg.MaxConns,
	)

	db, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDBConnection, err)
	}
	if err := db.Ping(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDBConnection, err)
	}

	return &PostgresStore{db: db}, nil
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() {
	s.db.Close()
}

// Migrate creates the schema if it does not already exist. Idempotent, so
// it is safe to call on every process start rather than requiring a
// separate migration tool.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS pool_state (
	id                     SMALLINT PRIMARY KEY,
	authority              BYTEA NOT NULL,
	bump                   SMALLINT NOT NULL,
	fee_bps                INTEGER NOT NULL,
	vault_balance          BIGINT NOT NULL,
	total_fees_collected   BIGINT NOT NULL,
	nullifier_count        BIGINT NOT NULL,
	next_index             BIGINT NOT NULL,
	root                   BYTEA NOT NULL,
	filled_subtrees        BYTEA[] NOT NULL,
	root_history           BYTEA[] NOT NULL,
	root_history_next      INTEGER NOT NULL,
	root_history_count     INTEGER NOT NULL,
	signature_mode_enabled BOOLEAN NOT NULL DEFAULT FALSE,
	signature_public_key   BYTEA,
	initialized            BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE TABLE IF NOT EXISTS commitments (
	leaf_index BIGINT PRIMARY KEY,
	commitment BYTEA NOT NULL
);

CREATE TABLE IF NOT EXISTS nullifier_markers (
	nullifier BYTEA PRIMARY KEY,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`
	_, err := s.db.Exec(ctx, schema)
	return err
}

// ============================================
// merkle.TreeStore
// ============================================

// LoadState returns the tree's frontier state from the pool_state row, or
// nil if the pool has not been initialized yet.
func (s *PostgresStore) LoadState(ctx context.Context) (*merkle.State, error) {
	state, err := loadPoolRow(ctx, s.db)
	if err != nil {
		return nil, err
	}
	if state == nil {
		return nil, nil
	}
	return &state.TreeState, nil
}

// SaveState is a no-op here: the tree frontier is persisted as part of the
// pool_state row by SavePool, since both are committed atomically per
// instruction. Standalone tree use (outside the pool) should use
// merkle.InMemoryTreeStore instead.
func (s *PostgresStore) SaveState(ctx context.Context, state *merkle.State) error {
	return nil
}

// AppendLeaf inserts a commitment row. Shared by merkle.TreeStore and
// pool.Store since both describe the same append-only leaf column.
func (s *PostgresStore) AppendLeaf(ctx context.Context, index uint64, leaf fr.Element) error {
	return appendLeaf(ctx, s.db, index, leaf)
}

func appendLeaf(ctx context.Context, q querier, index uint64, leaf fr.Element) error {
	leafBytes := field.ToBytesLE(leaf)
	_, err := q.Exec(ctx, `
		INSERT INTO commitments (leaf_index, commitment) VALUES ($1, $2)
		ON CONFLICT (leaf_index) DO UPDATE SET commitment = $2
	`, int64(index), leafBytes[:])
	return err
}

// Leaves returns every stored leaf in index order, zero-padding any gap
// (there should be none in a correctly operating pool).
func (s *PostgresStore) Leaves(ctx context.Context) ([]fr.Element, error) {
	return leaves(ctx, s.db)
}

func leaves(ctx context.Context, q querier) ([]fr.Element, error) {
	rows, err := q.Query(ctx, `SELECT leaf_index, commitment FROM commitments ORDER BY leaf_index ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byIndex := make(map[uint64]fr.Element)
	var maxIndex uint64
	for rows.Next() {
		var index int64
		var commitment []byte
		if err := rows.Scan(&index, &commitment); err != nil {
			return nil, err
		}
		e, err := field.FromCanonicalLE(commitment)
		if err != nil {
			return nil, err
		}
		byIndex[uint64(index)] = e
		if uint64(index) > maxIndex {
			maxIndex = uint64(index)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(byIndex) == 0 {
		return nil, nil
	}

	out := make([]fr.Element, maxIndex+1)
	for i := range out {
		if e, ok := byIndex[uint64(i)]; ok {
			out[i] = e
		} else {
			out[i] = merkle.Zeros[0]
		}
	}
	return out, nil
}

// ============================================
// pool.Store
// ============================================

// LoadPool returns the singleton pool account, or nil if Initialize has
// never run.
func (s *PostgresStore) LoadPool(ctx context.Context) (*pool.State, error) {
	return loadPoolRow(ctx, s.db)
}

// SavePool upserts the singleton pool account row.
func (s *PostgresStore) SavePool(ctx context.Context, state *pool.State) error {
	return savePool(ctx, s.db, state)
}

// CreateMarker atomically creates a nullifier marker, relying on the
// primary key constraint to fail a second insert for the same nullifier
// (SPEC_FULL §4.7, grounded on the original PDA init-constraint semantics).
func (s *PostgresStore) CreateMarker(ctx context.Context, nullifier types.Hash) (bool, error) {
	return createMarker(ctx, s.db, nullifier)
}

// WithinTransaction opens a pgx.Tx, runs fn against a Store backed by it,
// and commits only if fn succeeds; any error (fn's own, or a failed
// Commit) rolls the transaction back, so CreateMarker/AppendLeaf/SavePool
// inside fn either all land or none do (SPEC_FULL §4.7, §5).
func (s *PostgresStore) WithinTransaction(ctx context.Context, fn func(ctx context.Context, tx pool.Store) error) error {
	txn, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer txn.Rollback(ctx)

	if err := fn(ctx, &pgTxStore{tx: txn}); err != nil {
		return err
	}
	return txn.Commit(ctx)
}

// pgTxStore is the pool.Store handed to a WithinTransaction callback: the
// same SQL as PostgresStore, run against the open pgx.Tx instead of the
// pool.
type pgTxStore struct {
	tx pgx.Tx
}

func (t *pgTxStore) LoadPool(ctx context.Context) (*pool.State, error) {
	return loadPoolRow(ctx, t.tx)
}

func (t *pgTxStore) SavePool(ctx context.Context, state *pool.State) error {
	return savePool(ctx, t.tx, state)
}

func (t *pgTxStore) CreateMarker(ctx context.Context, nullifier types.Hash) (bool, error) {
	return createMarker(ctx, t.tx, nullifier)
}

func (t *pgTxStore) AppendLeaf(ctx context.Context, index uint64, leaf fr.Element) error {
	return appendLeaf(ctx, t.tx, index, leaf)
}

// WithinTransaction on a tx store just runs fn against itself: pgx does not
// support nested transactions here (a savepoint would be the way to get
// them), and nothing in internal/pool needs one.
func (t *pgTxStore) WithinTransaction(ctx context.Context, fn func(ctx context.Context, tx pool.Store) error) error {
	return fn(ctx, t)
}

func savePool(ctx context.Context, q querier, state *pool.State) error {
	rootBytes := field.ToBytesLE(state.TreeState.Root)

	filledSubtrees := make([][]byte, merkle.Depth)
	for i := 0; i < merkle.Depth; i++ {
		b := field.ToBytesLE(state.TreeState.FilledSubtrees[i])
		filledSubtrees[i] = b[:]
	}

	history, next, count := state.RootHistory.Export()
	historyBytes := make([][]byte, len(history))
	for i, h := range history {
		b := field.ToBytesLE(h)
		historyBytes[i] = b[:]
	}

	var sigPubKey []byte
	if len(state.SignaturePublicKey) > 0 {
		sigPubKey = state.SignaturePublicKey
	}

	_, err := q.Exec(ctx, `
		INSERT INTO pool_state (
			id, authority, bump, fee_bps, vault_balance, total_fees_collected,
			nullifier_count, next_index, root, filled_subtrees, root_history,
			root_history_next, root_history_count, signature_mode_enabled,
			signature_public_key, initialized
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (id) DO UPDATE SET
			authority = $2, bump = $3, fee_bps = $4, vault_balance = $5,
			total_fees_collected = $6, nullifier_count = $7, next_index = $8,
			root = $9, filled_subtrees = $10, root_history = $11,
			root_history_next = $12, root_history_count = $13,
			signature_mode_enabled = $14, signature_public_key = $15,
			initialized = $16
	`,
		poolStateID,
		state.Authority[:],
		int16(state.Bump),
		int32(state.FeeBps),
		int64(state.VaultBalance),
		int64(state.TotalFeesCollected),
		int64(state.NullifierCount),
		int64(state.TreeState.NextIndex),
		rootBytes[:],
		filledSubtrees,
		historyBytes,
		int32(next),
		int32(count),
		state.SignatureModeEnabled,
		sigPubKey,
		state.Initialized,
	)
	return err
}

func createMarker(ctx context.Context, q querier, nullifier types.Hash) (bool, error) {
	tag, err := q.Exec(ctx, `
		INSERT INTO nullifier_markers (nullifier) VALUES ($1)
		ON CONFLICT (nullifier) DO NOTHING
	`, nullifier[:])
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func loadPoolRow(ctx context.Context, q querier) (*pool.State, error) {
	row := q.QueryRow(ctx, `
		SELECT authority, bump, fee_bps, vault_balance, total_fees_collected,
			   nullifier_count, next_index, root, filled_subtrees, root_history,
			   root_history_next, root_history_count, signature_mode_enabled,
			   signature_public_key, initialized
		FROM pool_state WHERE id = $1
	`, poolStateID)

	var (
		authority            []byte
		bump                 int16
		feeBps               int32
		vaultBalance         int64
		totalFeesCollected   int64
		nullifierCount       int64
		nextIndex            int64
		root                 []byte
		filledSubtrees       [][]byte
		rootHistory          [][]byte
		rootHistoryNext      int32
		rootHistoryCount     int32
		signatureModeEnabled bool
		signaturePublicKey   []byte
		initialized          bool
	)

	err := row.Scan(
		&authority, &bump, &feeBps, &vaultBalance, &totalFeesCollected,
		&nullifierCount, &nextIndex, &root, &filledSubtrees, &rootHistory,
		&rootHistoryNext, &rootHistoryCount, &signatureModeEnabled,
		&signaturePublicKey, &initialized,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load pool state: %w", err)
	}

	state := &pool.State{
		FeeBps:               uint16(feeBps),
		VaultBalance:         uint64(vaultBalance),
		TotalFeesCollected:   uint64(totalFeesCollected),
		NullifierCount:       uint64(nullifierCount),
		Bump:                 uint8(bump),
		Initialized:          initialized,
		SignatureModeEnabled: signatureModeEnabled,
		SignaturePublicKey:   signaturePublicKey,
	}
	copy(state.Authority[:], authority)

	rootElem, err := field.FromCanonicalLE(root)
	if err != nil {
		return nil, err
	}
	state.TreeState.Root = rootElem
	state.TreeState.NextIndex = uint64(nextIndex)

	for i := 0; i < merkle.Depth && i < len(filledSubtrees); i++ {
		e, err := field.FromCanonicalLE(filledSubtrees[i])
		if err != nil {
			return nil, err
		}
		state.TreeState.FilledSubtrees[i] = e
	}

	historyElems := make([]fr.Element, len(rootHistory))
	for i, h := range rootHistory {
		e, err := field.FromCanonicalLE(h)
		if err != nil {
			return nil, err
		}
		historyElems[i] = e
	}
	state.RootHistory = pool.ImportRootHistory(historyElems, int(rootHistoryNext), int(rootHistoryCount))

	return state, nil
}
