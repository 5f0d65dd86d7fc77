package driven

import (
	"context"
	"errors"

	"github.com/ericfisherdev/cihealth/internal/domain/model"
)

// ErrNoWebhook indicates dispatch was attempted without a webhook URL
// configured. Callers treat it as a visible skip, not a delivery failure.
var ErrNoWebhook = errors.New("no webhook configured")

// AlertNotifier defines the driven port for failure notifications.
// Dispatch is fire-and-forget from the ingestion engine's perspective:
// errors are logged by the caller and never retried or escalated.
type AlertNotifier interface {
	Dispatch(ctx context.Context, alert model.FailureAlert) error
}
