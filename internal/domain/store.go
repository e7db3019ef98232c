package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// OpportunityStore persists detected opportunities across refreshes.
type OpportunityStore interface {
	InsertBatch(ctx context.Context, opps []Opportunity) error
	ListRecent(ctx context.Context, limit int) ([]Opportunity, error)
	ListSince(ctx context.Context, opts ListOpts) ([]Opportunity, error)
	Count(ctx context.Context) (int64, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// AlertStore persists raised alerts.
type AlertStore interface {
	Insert(ctx context.Context, alert Alert) error
	ListRecent(ctx context.Context, limit int) ([]Alert, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}
