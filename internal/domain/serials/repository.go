// Package serials provides the serial number registry.
package serials

import (
	"context"
	"time"

	"traceledger/internal/core/entity"
)

// Repository persists serial records and their status history.
type Repository interface {
	// CreateBatch inserts serials with status CREATED. A clash on either code
	// fails the whole batch with a DUPLICATE_IDENTIFIER AppError.
	CreateBatch(ctx context.Context, serials []entity.SerialNumber) error

	// FindExisting returns which of the given full or short codes are already
	// registered.
	FindExisting(ctx context.Context, fullCodes, shortCodes []string) ([]string, error)

	// FindByCode resolves a full or short code. Returns a NOT_FOUND AppError
	// when absent.
	FindByCode(ctx context.Context, code string) (*entity.SerialNumber, error)

	// UpdateStatus moves a serial from one status to another. It fails with a
	// CONCURRENT_MODIFICATION AppError when the stored status is not from.
	UpdateStatus(ctx context.Context, fullCode string, from, to entity.SerialStatus, actingIdentity string, at time.Time) error

	// AppendTransition writes one history row.
	AppendTransition(ctx context.Context, t entity.StatusTransition) error

	// ListTransitions returns history ordered by time.
	ListTransitions(ctx context.Context, fullCode string) ([]entity.StatusTransition, error)

	// ListByBatch returns serials minted for a batch ordered by unit sequence.
	ListByBatch(ctx context.Context, batchNumber string) ([]entity.SerialNumber, error)
}
