package store

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
)

const (
	recoverySuffix = ".recovery"
	backupSuffix   = ".backup"

	// storeDirPerm is the permission mode for the database directory.
	storeDirPerm = fs.FileMode(0o700)

	// storeFilePerm is the permission mode for database files.
	storeFilePerm = fs.FileMode(0o600)

	// storeOpenTimeout is the maximum time to wait for the bolt file lock.
	storeOpenTimeout = 5 * time.Second
)

// Info is an opaque handle to a disconnected or recovery database file.
// At most one existing and one recovery handle are live per store.
type Info struct {
	Name string
	Path string
}

// Recoverable wraps one bbolt file with the lifecycle the resync engine
// needs: it can be disconnected, cloned into a fresh recovery copy,
// reconnected, and atomically replaced by the recovery copy. Leftover
// recovery or backup files at open time mean a prior run was interrupted
// mid-resync.
type Recoverable struct {
	name    string
	path    string
	buckets [][]byte

	mu          sync.Mutex
	db          *bolt.DB
	recoveryDB  *bolt.DB
	interrupted bool
}

// OpenRecoverable opens (creating if needed) the database at path and
// ensures the given buckets exist. name labels the store in handles and
// errors.
func OpenRecoverable(name, path string, buckets ...[]byte) (*Recoverable, error) {
	if err := os.MkdirAll(filepath.Dir(path), storeDirPerm); err != nil {
		return nil, fmt.Errorf("creating %s store directory: %w", name, err)
	}

	interrupted := fileExists(path+recoverySuffix) || fileExists(path+backupSuffix)

	db, err := openWithBuckets(path, buckets)
	if err != nil {
		return nil, fmt.Errorf("opening %s store: %w", name, err)
	}

	return &Recoverable{
		name:        name,
		path:        path,
		buckets:     buckets,
		db:          db,
		interrupted: interrupted,
	}, nil
}

// PreviousRunWasInterrupted reports whether leftover recovery or backup
// files were present when the store was opened.
func (r *Recoverable) PreviousRunWasInterrupted() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.interrupted
}

// DB returns the live database, or an error while the store is
// disconnected.
func (r *Recoverable) DB() (*bolt.DB, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.db == nil {
		return nil, fmt.Errorf("%s store is disconnected", r.name)
	}
	return r.db, nil
}

// RecoveryDB returns the open recovery database, or an error when no
// recovery copy exists.
func (r *Recoverable) RecoveryDB() (*bolt.DB, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.recoveryDB == nil {
		return nil, fmt.Errorf("%s store has no recovery copy", r.name)
	}
	return r.recoveryDB, nil
}

// CleanupLeftovers removes recovery and backup files left behind by an
// earlier aborted attempt. Returns whether a recovery file existed.
// Idempotent.
func (r *Recoverable) CleanupLeftovers() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.recoveryDB != nil {
		r.recoveryDB.Close()
		r.recoveryDB = nil
	}

	existed := fileExists(r.path + recoverySuffix)
	os.Remove(r.path + recoverySuffix)
	os.Remove(r.path + backupSuffix)

	return existed
}

// DisconnectExisting closes the live database and returns its handle.
// Until reconnected or replaced, DB() fails.
func (r *Recoverable) DisconnectExisting() (Info, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.db == nil {
		return Info{}, fmt.Errorf("%s store is already disconnected", r.name)
	}
	if err := r.db.Close(); err != nil {
		return Info{}, fmt.Errorf("disconnecting %s store: %w", r.name, err)
	}
	r.db = nil

	return Info{Name: r.name, Path: r.path}, nil
}

// CreateRecovery creates a fresh, empty recovery database next to the
// disconnected existing one and returns its handle.
func (r *Recoverable) CreateRecovery(nextTo Info) (Info, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.recoveryDB != nil {
		return Info{}, fmt.Errorf("%s store already has a recovery copy", r.name)
	}

	recoveryPath := nextTo.Path + recoverySuffix
	// A leftover from a crashed attempt would otherwise seed the fresh copy.
	os.Remove(recoveryPath)

	db, err := openWithBuckets(recoveryPath, r.buckets)
	if err != nil {
		return Info{}, fmt.Errorf("creating %s recovery store: %w", r.name, err)
	}
	r.recoveryDB = db

	return Info{Name: r.name + recoverySuffix, Path: recoveryPath}, nil
}

// ReconnectExistingAndDiscardRecovery reopens the untouched existing
// database and deletes the recovery copy if one was created. Used by
// rollback; the existing file was never modified, so reconnecting
// restores the exact pre-resync state.
func (r *Recoverable) ReconnectExistingAndDiscardRecovery(existing Info, recovery *Info) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.recoveryDB != nil {
		r.recoveryDB.Close()
		r.recoveryDB = nil
	}

	db, err := openWithBuckets(existing.Path, r.buckets)
	if err != nil {
		return fmt.Errorf("reconnecting %s store: %w", r.name, err)
	}
	r.db = db

	if recovery != nil {
		if err := os.Remove(recovery.Path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("discarding %s recovery store: %w", r.name, err)
		}
	}

	return nil
}

// ReplaceExistingWithRecovery atomically promotes the recovery copy to be
// the live database: existing is renamed to a backup, recovery takes its
// place, the backup is deleted, and the store reopens on the new file.
// The rename is the commit point; a crash before it leaves the original
// intact, a crash after it leaves leftovers that flag the interruption.
func (r *Recoverable) ReplaceExistingWithRecovery(existing, recovery Info) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.recoveryDB == nil {
		return fmt.Errorf("%s store has no recovery copy to promote", r.name)
	}
	if err := r.recoveryDB.Close(); err != nil {
		return fmt.Errorf("closing %s recovery store: %w", r.name, err)
	}
	r.recoveryDB = nil

	backupPath := existing.Path + backupSuffix
	if err := os.Rename(existing.Path, backupPath); err != nil {
		return fmt.Errorf("moving existing %s store to backup: %w", r.name, err)
	}

	if err := os.Rename(recovery.Path, existing.Path); err != nil {
		// Put the original back so the store is not left headless.
		if restoreErr := os.Rename(backupPath, existing.Path); restoreErr != nil {
			return fmt.Errorf("promoting %s recovery store: %w (restore also failed: %v)", r.name, err, restoreErr)
		}
		return fmt.Errorf("promoting %s recovery store: %w", r.name, err)
	}

	// Leftover backups are swept by CleanupLeftovers on the next attempt.
	os.Remove(backupPath)

	db, err := openWithBuckets(existing.Path, r.buckets)
	if err != nil {
		return fmt.Errorf("reopening %s store after swap: %w", r.name, err)
	}
	r.db = db

	return nil
}

// Close closes the live and recovery databases.
func (r *Recoverable) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.recoveryDB != nil {
		r.recoveryDB.Close()
		r.recoveryDB = nil
	}
	if r.db == nil {
		return nil
	}
	err := r.db.Close()
	r.db = nil

	return err
}

func openWithBuckets(path string, buckets [][]byte) (*bolt.DB, error) {
	db, err := bolt.Open(path, storeFilePerm, &bolt.Options{Timeout: storeOpenTimeout})
	if err != nil {
		return nil, err
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range buckets {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing buckets: %w", err)
	}

	return db, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
