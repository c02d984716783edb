package pool

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/crutech/nydus/pkg/account"
	"github.com/crutech/nydus/pkg/logger"
	"github.com/crutech/nydus/pkg/validation"
)

// Engine owns the in-memory pool and the backing file. Every public
// operation runs under one writer lock for its full duration, including the
// save at the tail; there are no reader-only fast paths. A file lock
// additionally serialises the daemon against the administrative CLI, which
// operates on the same file from its own process.
type Engine struct {
	mu       sync.Mutex
	path     string
	fileLock *flock.Flock

	// userExists checks that an allocation target refers to a real local
	// account. Replaceable so tests don't depend on host accounts.
	userExists func(string) error

	records []*Record
}

// Option configures an Engine.
type Option func(*Engine)

// WithUserCheck replaces the local-account existence check.
func WithUserCheck(fn func(string) error) Option {
	return func(e *Engine) {
		e.userExists = fn
	}
}

// NewEngine opens the pool file and loads every record. A missing file is
// an empty pool; a malformed line is fatal.
func NewEngine(path string, opts ...Option) (*Engine, error) {
	e := &Engine{
		path:       path,
		fileLock:   flock.New(path + ".lock"),
		userExists: validation.SystemUserExists,
	}
	for _, opt := range opts {
		opt(e)
	}
	if err := e.load(); err != nil {
		return nil, err
	}
	return e, nil
}

// Path returns the pool file path.
func (e *Engine) Path() string {
	return e.path
}

// load reads the backing file into memory. Called once from NewEngine,
// before any concurrent access exists.
func (e *Engine) load() error {
	if err := e.fileLock.Lock(); err != nil {
		return fmt.Errorf("failed to lock pool file %s: %w", e.path, err)
	}
	defer func() {
		if err := e.fileLock.Unlock(); err != nil {
			logger.Warnf("Failed to unlock pool file %s: %v", e.path, err)
		}
	}()

	f, err := os.Open(e.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to open pool file %s: %w", e.path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	lineno := 0
	for scanner.Scan() {
		lineno++
		line := scanner.Text()
		if lineno == 1 || line == "" {
			// Header line; blank lines only occur as a trailing newline.
			continue
		}
		record, normalised, err := unmarshalRecord(line)
		if err != nil {
			return fmt.Errorf("pool file %s line %d: %w", e.path, lineno, err)
		}
		if normalised {
			logger.Warnf("Pool file %s line %d had a partial tenancy; record %s loaded as free",
				e.path, lineno, record.UUID())
		}
		e.records = append(e.records, record)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read pool file %s: %w", e.path, err)
	}

	e.logDuplicates()
	return nil
}

// logDuplicates reports tenancy-conflict diagnostics: duplicate game UUIDs
// and multiple allocated records sharing one client address. Neither is
// fatal; operations act on all matches.
func (e *Engine) logDuplicates() {
	byUUID := make(map[string]int)
	byAddr := make(map[string]int)
	for _, r := range e.records {
		byUUID[r.UUID()]++
		if r.Allocated() {
			byAddr[r.ClientAddr()]++
		}
	}
	for id, n := range byUUID {
		if n > 1 {
			logger.Warnf("Pool has %d records with UUID %s", n, id)
		}
	}
	for addr, n := range byAddr {
		if n > 1 {
			logger.Warnf("Pool has %d records allocated to client %s", n, addr)
		}
	}
}

// save rewrites the whole backing file atomically: a sibling temp file in
// the same directory, synced, then renamed over the original. Callers hold
// the engine lock. A save failure leaves in-memory state diverged from
// disk, which the daemon must not survive; callers propagate the error.
func (e *Engine) save() error {
	if err := e.doSave(); err != nil {
		return fmt.Errorf("%w: %w", ErrSaveFailed, err)
	}
	return nil
}

func (e *Engine) doSave() error {
	if err := e.fileLock.Lock(); err != nil {
		return fmt.Errorf("failed to lock pool file %s: %w", e.path, err)
	}
	defer func() {
		if err := e.fileLock.Unlock(); err != nil {
			logger.Warnf("Failed to unlock pool file %s: %v", e.path, err)
		}
	}()

	tmp, err := os.CreateTemp(filepath.Dir(e.path), ".nydus-alloc-*")
	if err != nil {
		return fmt.Errorf("failed to create temp pool file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	writer := bufio.NewWriter(tmp)
	fmt.Fprintln(writer, headerLine())
	for _, r := range e.records {
		fmt.Fprintln(writer, marshalRecord(r))
	}
	if err := writer.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write pool file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync pool file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close pool file: %w", err)
	}
	if err := os.Rename(tmpName, e.path); err != nil {
		return fmt.Errorf("failed to replace pool file %s: %w", e.path, err)
	}
	return nil
}

// Allocate releases everything currently held by clientAddr, then marks the
// first free record allocated to (clientAddr, clientUser) and returns a
// copy of it. Records freed within this same call are only reused when no
// other free record exists, so a client asking again gets a fresh account.
// Returns ErrNoFreeRecord when the pool is exhausted.
func (e *Engine) Allocate(clientAddr, clientUser string) (*Record, error) {
	if err := validation.ValidateIPAddr(clientAddr); err != nil {
		return nil, err
	}
	if err := e.userExists(clientUser); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	justReleased := make(map[*Record]bool)
	for _, r := range e.records {
		if r.Allocated() && r.ClientAddr() == clientAddr {
			r.Release()
			justReleased[r] = true
		}
	}

	chosen := e.firstFree(func(r *Record) bool { return !justReleased[r] })
	if chosen == nil {
		chosen = e.firstFree(func(*Record) bool { return true })
	}
	if chosen == nil {
		return nil, ErrNoFreeRecord
	}

	if err := chosen.Allocate(clientAddr, clientUser); err != nil {
		return nil, err
	}
	if err := e.save(); err != nil {
		return nil, err
	}
	return chosen.Clone(), nil
}

// firstFree returns the first free record in insertion order that passes
// the filter, or nil.
func (e *Engine) firstFree(ok func(*Record) bool) *Record {
	for _, r := range e.records {
		if !r.Allocated() && ok(r) {
			return r
		}
	}
	return nil
}

// AllocateByUUID forces allocation of every record with the given UUID to
// (clientAddr, clientUser), overwriting existing tenancies. Administrative
// override; returns copies of the records touched.
func (e *Engine) AllocateByUUID(uuid, clientAddr, clientUser string) ([]*Record, error) {
	if err := validation.ValidateMinecraftUUID(uuid); err != nil {
		return nil, err
	}
	if err := validation.ValidateIPAddr(clientAddr); err != nil {
		return nil, err
	}
	if err := e.userExists(clientUser); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	var touched []*Record
	for _, r := range e.records {
		if r.UUID() != uuid {
			continue
		}
		if err := r.Allocate(clientAddr, clientUser); err != nil {
			return nil, err
		}
		touched = append(touched, r.Clone())
	}
	if len(touched) == 0 {
		return nil, nil
	}
	if err := e.save(); err != nil {
		return nil, err
	}
	return touched, nil
}

// ReleaseByUUID releases every allocated record with the given UUID and
// returns how many were released.
func (e *Engine) ReleaseByUUID(uuid string) (int, error) {
	if err := validation.ValidateMinecraftUUID(uuid); err != nil {
		return 0, err
	}
	return e.releaseMatching(func(r *Record) bool { return r.UUID() == uuid })
}

// ReleaseByAddr releases every record allocated to the given client address
// and returns how many were released.
func (e *Engine) ReleaseByAddr(clientAddr string) (int, error) {
	if err := validation.ValidateIPAddr(clientAddr); err != nil {
		return 0, err
	}
	return e.releaseMatching(func(r *Record) bool { return r.ClientAddr() == clientAddr })
}

// ReleaseExpired releases every record whose tenancy is older than limit
// and returns how many were released.
func (e *Engine) ReleaseExpired(limit time.Duration) (int, error) {
	if limit <= 0 {
		return 0, fmt.Errorf("allocation timeout must be positive, got %v", limit)
	}
	return e.releaseMatching(func(r *Record) bool { return r.TenancyExpired(limit) })
}

func (e *Engine) releaseMatching(match func(*Record) bool) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	released := 0
	for _, r := range e.records {
		if r.Allocated() && match(r) {
			r.Release()
			released++
		}
	}
	if released == 0 {
		return 0, nil
	}
	if err := e.save(); err != nil {
		return released, err
	}
	return released, nil
}

// ViewAll returns a copy of every record in pool order.
func (e *Engine) ViewAll() []*Record {
	return e.view(func(*Record) bool { return true })
}

// ViewByUUID returns copies of every record with the given UUID.
func (e *Engine) ViewByUUID(uuid string) ([]*Record, error) {
	if err := validation.ValidateMinecraftUUID(uuid); err != nil {
		return nil, err
	}
	return e.view(func(r *Record) bool { return r.UUID() == uuid }), nil
}

// ViewByAddr returns copies of every record allocated to the given address.
func (e *Engine) ViewByAddr(clientAddr string) ([]*Record, error) {
	if err := validation.ValidateIPAddr(clientAddr); err != nil {
		return nil, err
	}
	return e.view(func(r *Record) bool { return r.ClientAddr() == clientAddr }), nil
}

func (e *Engine) view(match func(*Record) bool) []*Record {
	e.mu.Lock()
	defer e.mu.Unlock()

	var out []*Record
	for _, r := range e.records {
		if match(r) {
			out = append(out, r.Clone())
		}
	}
	return out
}

// Count returns the total number of records in the pool.
func (e *Engine) Count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.records)
}

// Create populates an empty pool with one free record per bundle and writes
// the file. Used once at startup when the pool file held nothing.
func (e *Engine) Create(bundles []*account.Bundle) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.records) > 0 {
		return ErrPoolNotEmpty
	}
	for _, b := range bundles {
		record, err := NewRecord(b)
		if err != nil {
			return err
		}
		e.records = append(e.records, record)
	}
	return e.save()
}

// RefreshBundles replaces the auth bundle of every record whose upstream
// username has an entry in bundles, keeping tenancies intact. Nil entries
// (failed authentications) are skipped. Returns how many records changed.
func (e *Engine) RefreshBundles(bundles map[string]*account.Bundle) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	refreshed := 0
	for _, r := range e.records {
		b, ok := bundles[r.Bundle().Username()]
		if !ok || b == nil {
			continue
		}
		r.bundle = b.Clone()
		refreshed++
	}
	if refreshed == 0 {
		return 0, nil
	}
	if err := e.save(); err != nil {
		return refreshed, err
	}
	return refreshed, nil
}

// Mutate runs fn over the live records under the engine lock and saves the
// pool when fn reports that it changed something. fn must not retain the
// records past its return; the maintenance loop uses this to renew tokens
// and sweep dead tenancies in a single critical section.
func (e *Engine) Mutate(fn func(records []*Record) bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !fn(e.records) {
		return nil
	}
	return e.save()
}
