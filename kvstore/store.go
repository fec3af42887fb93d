// Package kvstore is a small versioned key-value store on top of SQLite.
//
// A database is one SQLite file; a store is one table inside it. Each store
// handle is opened at a schema version, recorded in the file's user_version.
// Opening a newer version than the one on disk drops and recreates the
// store's table, after asking every other open handle on the same file to
// close. Handles that learn about a newer version, either from such a
// request or by noticing a changed user_version written by another process,
// close themselves and fail all further operations with ErrInvalidated.
//
// Values are CBOR encoded and optionally compressed. Keys are strings and
// are returned in ascending order.
package kvstore

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

const (
	DefaultBlockedTimeout    = 5 * time.Second
	DefaultBusyTimeout       = 5 * time.Second
	DefaultCompressThreshold = 1024
)

// Options configure a Store. Database, Store and Version are required.
type Options struct {
	// Dir holds the database files. Defaults to the current directory.
	Dir      string
	Database string
	Store    string
	Version  int

	// BlockedTimeout bounds how long an upgrade waits for other open
	// handles of the same database to close.
	BlockedTimeout time.Duration
	// BusyTimeout is the SQLite busy timeout of the connection.
	BusyTimeout time.Duration

	Compression       Compression
	CompressThreshold int

	Logger *logrus.Entry

	// OnVersionChange is called once when the handle is invalidated by a
	// newer version of its database.
	OnVersionChange func(VersionChangeEvent)
}

// VersionChangeEvent describes the upgrade that invalidated a handle.
type VersionChangeEvent struct {
	Database   string
	Store      string
	OldVersion int
	NewVersion int
}

// Store is a handle on one store of one database, holding values of type T.
// It is safe for concurrent use; operations are serialised on a single
// connection.
type Store[T any] struct {
	opts Options
	path string
	log  *logrus.Entry

	initGroup singleflight.Group

	mu          sync.Mutex
	conn        *sqlite.Conn
	hasTable    bool
	invalidated bool
	invalidCh   chan struct{}
}

// New validates opts and returns a Store. No file is opened until the first
// operation (or an explicit Init).
func New[T any](opts Options) (*Store[T], error) {
	if strings.TrimSpace(opts.Database) == "" {
		return nil, fmt.Errorf("%w: database name is required", ErrInvalidOptions)
	}
	if strings.TrimSpace(opts.Store) == "" {
		return nil, fmt.Errorf("%w: store name is required", ErrInvalidOptions)
	}
	if opts.Version < 1 {
		return nil, fmt.Errorf("%w: version must be a positive integer, got %d", ErrInvalidOptions, opts.Version)
	}
	if opts.BlockedTimeout <= 0 {
		opts.BlockedTimeout = DefaultBlockedTimeout
	}
	if opts.BusyTimeout <= 0 {
		opts.BusyTimeout = DefaultBusyTimeout
	}
	if opts.Compression == "" {
		opts.Compression = CompressionZstd
	}
	switch opts.Compression {
	case CompressionNone, CompressionZstd, CompressionLZ4:
	default:
		return nil, fmt.Errorf("%w: unknown compression %q", ErrInvalidOptions, opts.Compression)
	}
	if opts.CompressThreshold == 0 {
		opts.CompressThreshold = DefaultCompressThreshold
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Store[T]{
		opts:      opts,
		path:      filepath.Join(opts.Dir, url.PathEscape(opts.Database)+".sqlite"),
		log:       logger.WithFields(logrus.Fields{"database": opts.Database, "store": opts.Store}),
		invalidCh: make(chan struct{}),
	}, nil
}

// Path is the database file backing the store.
func (s *Store[T]) Path() string { return s.path }

// Version is the schema version the store was opened with.
func (s *Store[T]) Version() int { return s.opts.Version }

// Invalidated is closed when the store has been invalidated by a version
// change.
func (s *Store[T]) Invalidated() <-chan struct{} { return s.invalidCh }

func (s *Store[T]) errorf(kind Kind, op string, err error) error {
	return &Error{Kind: kind, Op: op, Database: s.opts.Database, Store: s.opts.Store, Err: err}
}

// Init opens the database, upgrading it when the requested version is newer
// than the one on disk. It is a no-op on an open store. Concurrent callers
// share a single initialisation.
func (s *Store[T]) Init(ctx context.Context) error {
	_, err, _ := s.initGroup.Do("init", func() (any, error) {
		return nil, s.init(ctx)
	})
	return err
}

func (s *Store[T]) init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.invalidated {
		return s.errorf(KindInvalidated, "init", nil)
	}
	if s.conn != nil {
		return nil
	}
	if s.opts.Dir != "" {
		if err := os.MkdirAll(s.opts.Dir, 0o700); err != nil {
			return s.errorf(KindTransaction, "init", err)
		}
	}
	conn, err := sqlite.OpenConn(s.path)
	if err != nil {
		return s.errorf(KindTransaction, "init", fmt.Errorf("opening %s: %w", s.path, err))
	}
	if err := s.prepare(ctx, conn); err != nil {
		_ = conn.Close()
		return err
	}
	s.conn = conn
	openStores.add(s.path, s)
	s.log.WithField("version", s.opts.Version).Debug("opened store")
	return nil
}

// prepare configures conn and brings the schema to the requested version.
func (s *Store[T]) prepare(ctx context.Context, conn *sqlite.Conn) error {
	conn.SetInterrupt(ctx.Done())
	defer conn.SetInterrupt(nil)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		fmt.Sprintf("PRAGMA busy_timeout=%d", s.opts.BusyTimeout.Milliseconds()),
		"PRAGMA temp_store=MEMORY",
	}
	for _, pragma := range pragmas {
		if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
			return s.errorf(KindTransaction, "init", fmt.Errorf("%s: %w", pragma, err))
		}
	}

	current, err := userVersion(conn)
	if err != nil {
		return s.errorf(KindTransaction, "init", err)
	}
	switch {
	case s.opts.Version < current:
		return s.errorf(KindVersion, "init",
			fmt.Errorf("requested version %d is older than existing version %d", s.opts.Version, current))
	case s.opts.Version > current:
		ev := VersionChangeEvent{
			Database:   s.opts.Database,
			Store:      s.opts.Store,
			OldVersion: current,
			NewVersion: s.opts.Version,
		}
		if !openStores.broadcast(s.path, s, ev, s.opts.BlockedTimeout) {
			return s.errorf(KindBlocked, "init",
				fmt.Errorf("other connections did not close within %v", s.opts.BlockedTimeout))
		}
		if err := s.upgrade(conn); err != nil {
			return err
		}
	}
	s.hasTable, err = tableExists(conn, s.opts.Store)
	if err != nil {
		return s.errorf(KindTransaction, "init", err)
	}
	return nil
}

// upgrade recreates the store's table and records the new version. Another
// process may have upgraded the file between the version check and the
// write lock, so the version is read again inside the transaction.
func (s *Store[T]) upgrade(conn *sqlite.Conn) (err error) {
	endFn, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		if isBusy(err) {
			return s.errorf(KindBlocked, "upgrade", err)
		}
		return s.errorf(KindTransaction, "upgrade", err)
	}
	defer endFn(&err)

	current, err := userVersion(conn)
	if err != nil {
		return s.errorf(KindTransaction, "upgrade", err)
	}
	if current == s.opts.Version {
		return nil
	}
	if current > s.opts.Version {
		return s.errorf(KindVersion, "upgrade",
			fmt.Errorf("requested version %d is older than existing version %d", s.opts.Version, current))
	}

	table := quoteIdent(s.opts.Store)
	script := fmt.Sprintf(`DROP TABLE IF EXISTS %s;
CREATE TABLE %s (
	key   TEXT PRIMARY KEY NOT NULL,
	value BLOB NOT NULL
) WITHOUT ROWID;
PRAGMA user_version = %d;`, table, table, s.opts.Version)
	if err := sqlitex.ExecuteScript(conn, script, nil); err != nil {
		if isBusy(err) {
			return s.errorf(KindBlocked, "upgrade", err)
		}
		return s.errorf(KindTransaction, "upgrade", err)
	}
	s.log.WithFields(logrus.Fields{"from": current, "to": s.opts.Version}).Info("upgraded store schema")
	return nil
}

// versionChange is delivered by another handle that is about to upgrade the
// database.
func (s *Store[T]) versionChange(ev VersionChangeEvent) {
	s.mu.Lock()
	if s.conn == nil || s.invalidated {
		s.mu.Unlock()
		return
	}
	ev.Store = s.opts.Store
	ev.OldVersion = s.opts.Version
	s.invalidateLocked()
	s.mu.Unlock()
	s.notify(ev)
}

// invalidateLocked closes the connection and marks the store unusable.
// s.mu must be held.
func (s *Store[T]) invalidateLocked() {
	if s.conn != nil {
		if err := s.conn.Close(); err != nil {
			s.log.WithError(err).Warn("error closing invalidated connection")
		}
		s.conn = nil
	}
	s.invalidated = true
	openStores.remove(s.path, s)
}

// notify runs the version change callback and releases Invalidated
// waiters. s.mu must not be held.
func (s *Store[T]) notify(ev VersionChangeEvent) {
	s.log.WithFields(logrus.Fields{"oldVersion": ev.OldVersion, "newVersion": ev.NewVersion}).
		Warn("database version changed, store closed")
	if s.opts.OnVersionChange != nil {
		s.opts.OnVersionChange(ev)
	}
	close(s.invalidCh)
}

// getStore checks that the store can serve op. s.mu must be held. When a
// newer version is found on disk the store is invalidated and the returned
// event is non-nil; the caller must pass it to notify after releasing s.mu.
func (s *Store[T]) getStore(op string) (*VersionChangeEvent, error) {
	if s.invalidated {
		return nil, s.errorf(KindInvalidated, op, nil)
	}
	if s.conn == nil {
		return nil, s.errorf(KindNotInitialized, op, nil)
	}
	current, err := userVersion(s.conn)
	if err != nil {
		return nil, s.errorf(KindTransaction, op, err)
	}
	if current != s.opts.Version {
		ev := &VersionChangeEvent{
			Database:   s.opts.Database,
			Store:      s.opts.Store,
			OldVersion: s.opts.Version,
			NewVersion: current,
		}
		s.invalidateLocked()
		return ev, s.errorf(KindInvalidated, op, fmt.Errorf("database is now at version %d", current))
	}
	if !s.hasTable {
		s.hasTable, err = tableExists(s.conn, s.opts.Store)
		if err != nil {
			return nil, s.errorf(KindTransaction, op, err)
		}
		if !s.hasTable {
			return nil, s.errorf(KindSchemaMismatch, op,
				fmt.Errorf("store %q does not exist at version %d", s.opts.Store, s.opts.Version))
		}
	}
	return nil, nil
}

// do initialises the store if needed and runs fn with the connection.
func (s *Store[T]) do(ctx context.Context, op string, fn func(conn *sqlite.Conn) error) error {
	if err := s.Init(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	ev, err := s.getStore(op)
	if err != nil {
		s.mu.Unlock()
		if ev != nil {
			s.notify(*ev)
		}
		return err
	}
	s.conn.SetInterrupt(ctx.Done())
	err = fn(s.conn)
	s.conn.SetInterrupt(nil)
	s.mu.Unlock()
	if err != nil {
		if _, ok := err.(*Error); ok {
			return err
		}
		return s.errorf(KindTransaction, op, err)
	}
	return nil
}

// GetItem returns the value stored under key. The boolean is false when the
// key is absent.
func (s *Store[T]) GetItem(ctx context.Context, key string) (value T, found bool, err error) {
	query := fmt.Sprintf("SELECT value FROM %s WHERE key = ?", quoteIdent(s.opts.Store))
	err = s.do(ctx, "get", func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
			Args: []any{key},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				found = true
				return decodeValue(columnBlob(stmt, 0), &value)
			},
		})
	})
	if err != nil {
		var zero T
		return zero, false, err
	}
	return value, found, nil
}

// SetItem stores value under key, replacing any previous value.
func (s *Store[T]) SetItem(ctx context.Context, key string, value T) error {
	encoded, err := encodeValue(value, s.opts.Compression, s.opts.CompressThreshold)
	if err != nil {
		return s.errorf(KindTransaction, "set", err)
	}
	query := fmt.Sprintf("INSERT INTO %s (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		quoteIdent(s.opts.Store))
	return s.do(ctx, "set", func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, query, &sqlitex.ExecOptions{Args: []any{key, encoded}})
	})
}

// RemoveItem deletes key. Removing an absent key is not an error.
func (s *Store[T]) RemoveItem(ctx context.Context, key string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE key = ?", quoteIdent(s.opts.Store))
	return s.do(ctx, "remove", func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, query, &sqlitex.ExecOptions{Args: []any{key}})
	})
}

// Clear deletes every entry of the store.
func (s *Store[T]) Clear(ctx context.Context) error {
	query := fmt.Sprintf("DELETE FROM %s", quoteIdent(s.opts.Store))
	return s.do(ctx, "clear", func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, query, nil)
	})
}

// GetAllKeys returns every key in ascending order.
func (s *Store[T]) GetAllKeys(ctx context.Context) ([]string, error) {
	keys := []string{}
	query := fmt.Sprintf("SELECT key FROM %s ORDER BY key", quoteIdent(s.opts.Store))
	err := s.do(ctx, "keys", func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				keys = append(keys, stmt.ColumnText(0))
				return nil
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}

// GetAllValues returns every value, in the order of their keys.
func (s *Store[T]) GetAllValues(ctx context.Context) ([]T, error) {
	values := []T{}
	query := fmt.Sprintf("SELECT value FROM %s ORDER BY key", quoteIdent(s.opts.Store))
	err := s.do(ctx, "values", func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				var v T
				if err := decodeValue(columnBlob(stmt, 0), &v); err != nil {
					return err
				}
				values = append(values, v)
				return nil
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return values, nil
}

// Close releases the connection. The next operation opens it again, unless
// the store was invalidated.
func (s *Store[T]) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	s.hasTable = false
	openStores.remove(s.path, s)
	if err != nil {
		return s.errorf(KindTransaction, "close", err)
	}
	return nil
}

func userVersion(conn *sqlite.Conn) (int, error) {
	var version int
	err := sqlitex.ExecuteTransient(conn, "PRAGMA user_version", &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			version = stmt.ColumnInt(0)
			return nil
		},
	})
	if err != nil {
		return 0, fmt.Errorf("reading user_version: %w", err)
	}
	return version, nil
}

func tableExists(conn *sqlite.Conn, name string) (bool, error) {
	exists := false
	err := sqlitex.Execute(conn, "SELECT 1 FROM sqlite_master WHERE type = 'table' AND name = ?", &sqlitex.ExecOptions{
		Args: []any{name},
		ResultFunc: func(*sqlite.Stmt) error {
			exists = true
			return nil
		},
	})
	return exists, err
}

func columnBlob(stmt *sqlite.Stmt, col int) []byte {
	buf := make([]byte, stmt.ColumnLen(col))
	stmt.ColumnBytes(col, buf)
	return buf
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func isBusy(err error) bool {
	switch sqlite.ErrCode(err).ToPrimary() {
	case sqlite.ResultBusy, sqlite.ResultLocked:
		return true
	}
	return false
}
