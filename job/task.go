package job

import (
	"github.com/google/uuid"

	"github.com/quartzite/quartzite"
)

// TaskItem is an application work item a job may claim. The JobID field
// is a weak reference: deleting the job reverts the task to unclaimed
// rather than cascading.
type TaskItem struct {
	quartzite.Entity

	ID      uuid.UUID  `json:"id"`
	Title   string     `json:"title"`
	Content string     `json:"content"`
	Done    bool       `json:"done"`
	JobID   *uuid.UUID `json:"job_id,omitempty"`
}

// NewTask creates an unclaimed task item.
func NewTask(title, content string) *TaskItem {
	return &TaskItem{
		Entity:  quartzite.NewEntity(),
		ID:      uuid.New(),
		Title:   title,
		Content: content,
	}
}

// Claimed reports whether the task is held by a job.
func (t *TaskItem) Claimed() bool {
	return t.JobID != nil
}
