// Package pool implements the durable account pool: allocation records,
// the flat-file format that persists them, and the engine that serialises
// every operation behind a single writer lock.
package pool

import (
	"fmt"
	"time"

	"github.com/crutech/nydus/pkg/account"
	"github.com/crutech/nydus/pkg/validation"
)

// DefaultAllocationTimeout is how long a tenancy may stand before the next
// cleanup pass releases it.
const DefaultAllocationTimeout = 2 * time.Hour

// Record is one row of the pool file: an optional tenancy plus the auth
// bundle for one upstream account.
//
// The tenancy triple (clientAddr, clientUser, allocatedAt) is either fully
// populated (the record is allocated) or fully empty (the record is free).
type Record struct {
	clientAddr  string
	clientUser  string
	allocatedAt time.Time

	bundle *account.Bundle
}

// NewRecord creates a free record for the given bundle.
func NewRecord(bundle *account.Bundle) (*Record, error) {
	if bundle == nil {
		return nil, fmt.Errorf("a record needs an auth bundle")
	}
	return &Record{bundle: bundle}, nil
}

// Allocated reports whether the record currently has a tenancy.
func (r *Record) Allocated() bool {
	return r.clientAddr != "" && r.clientUser != "" && !r.allocatedAt.IsZero()
}

// Allocate stamps the tenancy triple with the given client and the current
// time. Calling it on an allocated record overwrites the tenancy; the
// engine uses that for administrative reassignment.
func (r *Record) Allocate(clientAddr, clientUser string) error {
	if err := validation.ValidateIPAddr(clientAddr); err != nil {
		return err
	}
	if err := validation.ValidateSystemUsername(clientUser); err != nil {
		return err
	}
	r.clientAddr = clientAddr
	r.clientUser = clientUser
	r.allocatedAt = time.Now()
	return nil
}

// Release clears the tenancy triple. The bundle is retained. Idempotent.
func (r *Record) Release() {
	r.clientAddr = ""
	r.clientUser = ""
	r.allocatedAt = time.Time{}
}

// TenancyExpired reports whether the record is allocated and its tenancy is
// older than limit.
func (r *Record) TenancyExpired(limit time.Duration) bool {
	if !r.Allocated() {
		return false
	}
	return time.Since(r.allocatedAt) > limit
}

// ClientAddr returns the tenancy's client address, or "" when free.
func (r *Record) ClientAddr() string { return r.clientAddr }

// ClientUser returns the tenancy's client user, or "" when free.
func (r *Record) ClientUser() string { return r.clientUser }

// AllocatedAt returns the tenancy timestamp, or the zero time when free.
func (r *Record) AllocatedAt() time.Time { return r.allocatedAt }

// Bundle returns the record's auth bundle.
func (r *Record) Bundle() *account.Bundle { return r.bundle }

// UUID returns the game UUID identifying this record within the pool.
func (r *Record) UUID() string { return r.bundle.Profile().UUID }

// Clone returns a deep copy. Engine operations hand clones to callers so
// no reference to pool-owned state survives lock release.
func (r *Record) Clone() *Record {
	return &Record{
		clientAddr:  r.clientAddr,
		clientUser:  r.clientUser,
		allocatedAt: r.allocatedAt,
		bundle:      r.bundle.Clone(),
	}
}
