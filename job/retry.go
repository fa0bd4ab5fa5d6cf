package job

import (
	"time"

	"github.com/google/uuid"

	"github.com/quartzite/quartzite"
)

// RetryInfo records the retry bookkeeping for a failed job: how many
// retry attempts have run and when the next one is due. Rows for
// exhausted jobs are retained so operators can inspect the last error.
type RetryInfo struct {
	quartzite.Entity

	JobID       uuid.UUID `json:"job_id"`
	RetryCount  int       `json:"retry_count"`
	NextRetryAt time.Time `json:"next_retry_at"`
	LastError   string    `json:"last_error"`
}
