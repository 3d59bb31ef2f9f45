package localstore

import "errors"

// ErrStorageExhausted is returned when a write would exceed the
// platform-defined size limit; the store never silently drops a write
// instead (spec §4.1).
var ErrStorageExhausted = errors.New("localstore: storage exhausted")

// ErrNotFound is returned by Get when no record exists for the given key.
var ErrNotFound = errors.New("localstore: not found")

// ErrTenantMismatch is returned when a caller's record.TenantID does not
// match the store's bound tenant.
var ErrTenantMismatch = errors.New("localstore: tenant mismatch")
