package meeting

import "context"

type Repository interface {
	Create(ctx context.Context, m *Meeting) error
	Get(ctx context.Context, id string) (*Meeting, error)
	Update(ctx context.Context, m *Meeting) error
	Delete(ctx context.Context, id string) error
	ListByTask(ctx context.Context, taskID string) ([]*Meeting, error)
}
