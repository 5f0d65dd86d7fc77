package driven

import (
	"context"

	"github.com/ericfisherdev/cihealth/internal/domain/model"
)

// LogRecordStore defines the driven port for log record persistence. At
// most one record exists per job; GetByJobID returns nil, nil when no log
// has been fetched for the job.
type LogRecordStore interface {
	Upsert(ctx context.Context, rec model.LogRecord) error
	GetByJobID(ctx context.Context, jobID int64) (*model.LogRecord, error)
}
