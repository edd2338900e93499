// Package repository holds the persistence layer: the SQL and Redis
// occupancy stores and the SQL reservation ledger.  The sentinel values below
// let the service layer tell business outcomes apart from I/O failures.
package repository

import "errors"

// ErrNotFound is returned when a reservation does not exist.
var ErrNotFound = errors.New("not found")

// ErrGuardFailed is returned when a guarded multi-row update finds fewer
// rows in the expected state than it was asked to change.  Nothing is
// written in that case.
var ErrGuardFailed = errors.New("occupancy guard failed")

// ErrNotCancelled is returned when purging a reservation that is still
// confirmed.
var ErrNotCancelled = errors.New("reservation is not cancelled")
