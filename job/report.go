package job

import (
	"github.com/google/uuid"

	"github.com/quartzite/quartzite"
)

// ReportStatus tracks whether a generated report has been fetched.
type ReportStatus string

const (
	// ReportGenerated means the report exists but has not been fetched.
	ReportGenerated ReportStatus = "generated"
	// ReportDownloaded means the report has been fetched at least once.
	ReportDownloaded ReportStatus = "downloaded"
)

// Report is an artifact produced by a job handler. Reports outlive their
// job: cleanup never deletes them.
type Report struct {
	quartzite.Entity

	ID       uuid.UUID    `json:"id"`
	JobID    uuid.UUID    `json:"job_id"`
	FileName string       `json:"file_name"`
	Content  string       `json:"content"`
	Status   ReportStatus `json:"status"`
}

// NewReport creates a report in generated status for the given job.
func NewReport(jobID uuid.UUID, fileName, content string) *Report {
	return &Report{
		Entity:   quartzite.NewEntity(),
		ID:       uuid.New(),
		JobID:    jobID,
		FileName: fileName,
		Content:  content,
		Status:   ReportGenerated,
	}
}
