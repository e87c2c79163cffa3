// Package sqlitevec provides a SQLite-backed vector store using sqlite-vec.
package sqlitevec

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"path/filepath"
	"regexp"
	"strconv"
	"sync"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	"github.com/mattn/go-sqlite3"

	"github.com/papercomputeco/notevec/pkg/vector"
)

const (
	// bundledDriver is the mattn/go-sqlite3 driver with sqlite-vec registered
	// as an auto extension.
	bundledDriver = "sqlite3"

	// extensionDriver loads vec0 from Config.ExtensionDir on every connection.
	extensionDriver = "sqlite3_notevec_ext"

	spansTable   = "nv_spans"
	vectorsTable = "nv_embeddings"
)

var (
	registerOnce sync.Once
	extensionDir string

	vecWidthPattern = regexp.MustCompile(`float\[(\d+)\]`)
)

// Store implements vector.Store using SQLite with sqlite-vec.
type Store struct {
	config Config
	logger *slog.Logger

	mu     sync.Mutex
	db     *sql.DB
	schema bool
}

// Config holds configuration for the SQLite vec store.
type Config struct {
	// DBPath is the path to the SQLite database file.
	// Use ":memory:" for an in-memory database.
	DBPath string

	// ExtensionDir, when set, is the directory holding the vec0 loadable
	// extension. The extension bundled with the Go bindings is used otherwise.
	ExtensionDir string

	// Dimensions is the number of components of every stored vector.
	Dimensions uint
}

// NewStore creates a SQLite vector store. No connection is opened until the
// first operation.
func NewStore(c Config, logger *slog.Logger) (*Store, error) {
	if c.DBPath == "" {
		return nil, fmt.Errorf("%w: database path is required", vector.ErrConfiguration)
	}

	if c.Dimensions == 0 {
		return nil, fmt.Errorf("%w: sqlite-vec embedding dimensions cannot be 0, must be configured", vector.ErrConfiguration)
	}

	return &Store{
		config: c,
		logger: logger,
	}, nil
}

// conn returns the database handle, opening it on first use.
func (s *Store) conn() (*sql.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		return s.db, nil
	}

	driverName := bundledDriver
	if s.config.ExtensionDir != "" {
		registerExtensionDriver(s.config.ExtensionDir)
		driverName = extensionDriver
	} else {
		// enable connection to have sqlite-vec extension
		sqlite_vec.Auto()
	}

	db, err := sql.Open(driverName, s.config.DBPath)
	if err != nil {
		return nil, vector.StorageError("opening database", err)
	}

	// A single connection keeps ":memory:" databases shared across calls and
	// serializes writers the same way SQLite would.
	db.SetMaxOpenConns(1)

	// Verify sqlite-vec is loaded
	var vecVersion string
	if err := db.QueryRow("SELECT vec_version()").Scan(&vecVersion); err != nil {
		db.Close()
		return nil, vector.StorageError("sqlite-vec not available", err)
	}

	s.logger.Info("sqlite-vec store opened",
		"db_path", s.config.DBPath,
		"dimensions", s.config.Dimensions,
		"vec_version", vecVersion,
	)

	s.db = db
	return db, nil
}

// registerExtensionDriver registers a sqlite3 driver that loads vec0 from dir.
// database/sql drivers can only be registered once per process, so the first
// directory wins.
func registerExtensionDriver(dir string) {
	registerOnce.Do(func() {
		extensionDir = dir
		sql.Register(extensionDriver, &sqlite3.SQLiteDriver{
			ConnectHook: func(conn *sqlite3.SQLiteConn) error {
				return conn.LoadExtension(filepath.Join(extensionDir, "vec0"), "sqlite3_vec_init")
			},
		})
	})
}

// ready returns the handle once the schema has been provisioned.
func (s *Store) ready(ctx context.Context) (*sql.DB, error) {
	if err := s.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	return s.conn()
}

// EnsureSchema creates the span registry and the vec0 table.
func (s *Store) EnsureSchema(ctx context.Context) error {
	db, err := s.conn()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.schema {
		return nil
	}

	width, err := existingWidth(ctx, db)
	if err != nil {
		return err
	}
	if width != 0 && width != s.config.Dimensions {
		return fmt.Errorf("%w: store at %s holds %d-dimensional vectors, configured for %d; clear the database to rebuild it",
			vector.ErrDimensionMismatch, s.config.DBPath, width, s.config.Dimensions)
	}

	if err := createSchema(ctx, db, s.config.Dimensions); err != nil {
		return err
	}

	s.schema = true
	return nil
}

// existingWidth reads the vector width from the vec0 table DDL. Returns 0 if
// the table does not exist yet.
func existingWidth(ctx context.Context, db *sql.DB) (uint, error) {
	var ddl string
	err := db.QueryRowContext(ctx,
		`SELECT sql FROM sqlite_master WHERE type = 'table' AND name = ?`, vectorsTable,
	).Scan(&ddl)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, vector.StorageError("reading existing schema", err)
	}

	m := vecWidthPattern.FindStringSubmatch(ddl)
	if m == nil {
		return 0, fmt.Errorf("%w: unrecognized vector table definition %q", vector.ErrStorage, ddl)
	}

	width, err := strconv.ParseUint(m[1], 10, 64)
	if err != nil {
		return 0, vector.StorageError("parsing vector width", err)
	}
	return uint(width), nil
}

func createSchema(ctx context.Context, db *sql.DB, dimensions uint) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return vector.StorageError("beginning transaction", err)
	}
	defer tx.Rollback()

	// vec0 virtual tables use integer rowids; the span registry owns the
	// rowid sequence and the vec0 row reuses it.
	if _, err := tx.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS `+spansTable+` (
			record_id INTEGER PRIMARY KEY AUTOINCREMENT,
			node_id TEXT NOT NULL,
			start_pos INTEGER NOT NULL,
			end_pos INTEGER NOT NULL
		)
	`); err != nil {
		return vector.StorageError("creating span registry", err)
	}

	if _, err := tx.ExecContext(ctx,
		`CREATE INDEX IF NOT EXISTS `+spansTable+`_node_id ON `+spansTable+` (node_id)`,
	); err != nil {
		return vector.StorageError("creating node index", err)
	}

	createVec := fmt.Sprintf(
		`CREATE VIRTUAL TABLE IF NOT EXISTS %s USING vec0(embedding float[%d])`,
		vectorsTable, dimensions,
	)
	if _, err := tx.ExecContext(ctx, createVec); err != nil {
		return vector.StorageError("creating vec0 table", err)
	}

	if err := tx.Commit(); err != nil {
		return vector.StorageError("committing schema", err)
	}
	return nil
}

// serializeFloat32 converts a float32 slice to a little-endian byte slice
// suitable for sqlite-vec BLOB format.
func serializeFloat32(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// deserializeFloat32 converts a little-endian byte slice back to a float32 slice.
func deserializeFloat32(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("invalid embedding blob length %d: must be divisible by 4", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v, nil
}

// Insert writes the span registry row and its vector in one transaction.
func (s *Store) Insert(ctx context.Context, nodeID string, span vector.Span, embedding []float32) (int64, error) {
	if nodeID == "" {
		return 0, fmt.Errorf("%w: node id is required", vector.ErrConfiguration)
	}
	if err := vector.CheckDimensions(embedding, s.config.Dimensions); err != nil {
		return 0, err
	}

	return s.insert(ctx, nodeID, span, embedding)
}

func (s *Store) insert(ctx context.Context, nodeID string, span vector.Span, embedding []float32) (int64, error) {
	db, err := s.ready(ctx)
	if err != nil {
		return 0, err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, vector.StorageError("beginning transaction", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`INSERT INTO `+spansTable+`(node_id, start_pos, end_pos) VALUES (?, ?, ?)`,
		nodeID, span.Start, span.End,
	)
	if err != nil {
		return 0, vector.StorageError("inserting span for node "+nodeID, err)
	}

	recordID, err := result.LastInsertId()
	if err != nil {
		return 0, vector.StorageError("getting record id for node "+nodeID, err)
	}

	// Insert embedding into vec0 table with matching rowid
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO `+vectorsTable+`(rowid, embedding) VALUES (?, ?)`,
		recordID, serializeFloat32(embedding),
	); err != nil {
		return 0, vector.StorageError("inserting embedding for node "+nodeID, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, vector.StorageError("committing transaction", err)
	}

	s.logger.Debug("inserted record",
		"record_id", recordID,
		"node_id", nodeID,
		"start", span.Start,
		"end", span.End,
	)

	return recordID, nil
}

// Clear removes every record owned by nodeID.
func (s *Store) Clear(ctx context.Context, nodeID string) error {
	db, err := s.ready(ctx)
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return vector.StorageError("beginning transaction", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx,
		`SELECT record_id FROM `+spansTable+` WHERE node_id = ?`, nodeID,
	)
	if err != nil {
		return vector.StorageError("querying records for deletion", err)
	}

	var recordIDs []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return vector.StorageError("scanning record id", err)
		}
		recordIDs = append(recordIDs, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return vector.StorageError("iterating record ids", err)
	}

	if len(recordIDs) == 0 {
		return nil
	}

	// Delete embeddings from vec0 table
	for _, id := range recordIDs {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM `+vectorsTable+` WHERE rowid = ?`, id,
		); err != nil {
			return vector.StorageError(fmt.Sprintf("deleting embedding %d", id), err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM `+spansTable+` WHERE node_id = ?`, nodeID,
	); err != nil {
		return vector.StorageError("deleting spans", err)
	}

	if err := tx.Commit(); err != nil {
		return vector.StorageError("committing transaction", err)
	}

	s.logger.Debug("cleared node records",
		"node_id", nodeID,
		"count", len(recordIDs),
	)

	return nil
}

// DropAll drops both relations in one transaction and re-provisions them at
// the configured width. This is the only way to change dimensions.
func (s *Store) DropAll(ctx context.Context) error {
	db, err := s.conn()
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.schema = false
	s.mu.Unlock()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return vector.StorageError("beginning transaction", err)
	}
	defer tx.Rollback()

	for _, table := range []string{vectorsTable, spansTable} {
		if _, err := tx.ExecContext(ctx, `DROP TABLE IF EXISTS `+table); err != nil {
			return vector.StorageError("dropping "+table, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return vector.StorageError("committing transaction", err)
	}

	s.logger.Info("dropped all records", "db_path", s.config.DBPath)

	return s.EnsureSchema(ctx)
}

// Query finds the topK nearest records using a vec0 KNN query joined back to
// the span registry.
func (s *Store) Query(ctx context.Context, embedding []float32, topK int) ([]vector.Match, error) {
	if topK <= 0 {
		topK = vector.DefaultTopK
	}
	if err := vector.CheckDimensions(embedding, s.config.Dimensions); err != nil {
		return nil, err
	}

	db, err := s.ready(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `
		SELECT
			sp.record_id,
			sp.node_id,
			sp.start_pos,
			sp.end_pos,
			knn.distance
		FROM (
			SELECT rowid, distance
			FROM `+vectorsTable+`
			WHERE embedding MATCH ?
				AND k = ?
		) knn
		INNER JOIN `+spansTable+` sp ON sp.record_id = knn.rowid
		ORDER BY knn.distance, sp.record_id
	`, serializeFloat32(embedding), topK)
	if err != nil {
		return nil, vector.StorageError("querying vectors", err)
	}
	defer rows.Close()

	matches := []vector.Match{}
	for rows.Next() {
		var m vector.Match
		if err := rows.Scan(&m.ID, &m.NodeID, &m.Start, &m.End, &m.Distance); err != nil {
			return nil, vector.StorageError("scanning query result", err)
		}
		matches = append(matches, m)
	}

	if err := rows.Err(); err != nil {
		return nil, vector.StorageError("iterating query results", err)
	}

	s.logger.Debug("queried sqlite-vec", "results", len(matches))

	return matches, nil
}

// Records returns the records owned by nodeID.
func (s *Store) Records(ctx context.Context, nodeID string) ([]vector.Record, error) {
	db, err := s.ready(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `
		SELECT record_id, node_id, start_pos, end_pos
		FROM `+spansTable+`
		WHERE node_id = ?
		ORDER BY record_id
	`, nodeID)
	if err != nil {
		return nil, vector.StorageError("querying records", err)
	}
	defer rows.Close()

	records := []vector.Record{}
	for rows.Next() {
		var r vector.Record
		if err := rows.Scan(&r.ID, &r.NodeID, &r.Start, &r.End); err != nil {
			return nil, vector.StorageError("scanning record", err)
		}
		records = append(records, r)
	}

	if err := rows.Err(); err != nil {
		return nil, vector.StorageError("iterating records", err)
	}

	return records, nil
}

// Embedding returns the stored vector for a record id.
func (s *Store) Embedding(ctx context.Context, recordID int64) ([]float32, error) {
	db, err := s.ready(ctx)
	if err != nil {
		return nil, err
	}

	var blob []byte
	err = db.QueryRowContext(ctx,
		`SELECT embedding FROM `+vectorsTable+` WHERE rowid = ?`, recordID,
	).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", vector.ErrNotFound, recordID)
	}
	if err != nil {
		return nil, vector.StorageError("reading embedding", err)
	}

	return deserializeFloat32(blob)
}

// Stats reports record and node counts.
func (s *Store) Stats(ctx context.Context) (vector.Stats, error) {
	db, err := s.ready(ctx)
	if err != nil {
		return vector.Stats{}, err
	}

	stats := vector.Stats{Dimensions: s.config.Dimensions}
	if err := db.QueryRowContext(ctx,
		`SELECT COUNT(*), COUNT(DISTINCT node_id) FROM `+spansTable,
	).Scan(&stats.Records, &stats.Nodes); err != nil {
		return vector.Stats{}, vector.StorageError("counting records", err)
	}

	return stats, nil
}

// Close releases resources held by the store.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}

	err := s.db.Close()
	s.db = nil
	s.schema = false
	return err
}

var _ vector.Store = (*Store)(nil)
