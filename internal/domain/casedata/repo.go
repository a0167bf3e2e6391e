package casedata

import (
	"context"
)

// Repository is the storage contract for case_data. GetByPrimaryKey returns
// (nil, nil) when no row matches; every other method propagates backing-store
// faults unchanged; isolation of per-record failures is the service's job.
type Repository interface {
	GetByPrimaryKey(ctx context.Context, key PrimaryKey) (*Record, error)
	Insert(ctx context.Context, r *Record) error
	Update(ctx context.Context, r *Record) error
	UpdateValueText(ctx context.Context, key PrimaryKey, valueText string) error
	GetByBillID(ctx context.Context, billID string) ([]*Record, error)

	// SearchBillIDs returns the bill_ids of rows matching the categorical
	// key whose parameter_printas is in parameterNames, capped at limit.
	// Duplicates may be returned; callers deduplicate.
	SearchBillIDs(ctx context.Context, f TextSearchField, parameterNames []string, limit int) ([]string, error)

	// SearchByValueRange returns rows matching the field's categorical key
	// with value_float in [min, max].
	SearchByValueRange(ctx context.Context, f SearchField, min, max float64) ([]*Record, error)
}
