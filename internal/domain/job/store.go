package job

import (
	"context"

	"github.com/google/uuid"
)

// Store persists job state for status polling. Background tasks own their
// job row and are the only writers after creation; handlers only read.
type Store interface {
	Create(ctx context.Context, j *Job) error
	Update(ctx context.Context, j *Job) error
	Get(ctx context.Context, id uuid.UUID) (*Job, error)
}
