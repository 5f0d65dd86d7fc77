package model

import "time"

// StorageDisk is the only storage kind currently produced; the column exists
// so an object-store backend can be added without a schema change.
const StorageDisk = "disk"

// LogRecord points at the stored log blob for a failed job. At most one
// record exists per job; a re-fetch replaces the prior record.
type LogRecord struct {
	ID        int64
	JobID     int64
	Storage   string
	Path      string
	SizeBytes int64
	FetchedAt time.Time
}
