package pushsubscription

import "context"

type Repository interface {
	Create(ctx context.Context, s *Subscription) error
	Get(ctx context.Context, id string) (*Subscription, error)
	Update(ctx context.Context, s *Subscription) error
	List(ctx context.Context) ([]*Subscription, error)
	ListByMember(ctx context.Context, memberID string) ([]*Subscription, error)
	Delete(ctx context.Context, id string) error
	FindByDestination(ctx context.Context, destination string) (*Subscription, error)
	DeleteByDestination(ctx context.Context, destination string) error
}
