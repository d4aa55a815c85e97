// Package store provides persistence for the reference backend.
package store

import (
	"context"

	"github.com/ashureev/acbuy/internal/domain"
)

// Repository defines the interface for persisting customer submissions.
type Repository interface {
	// InsertSubmission stores a new submission. The ID and timestamp are set by the caller.
	InsertSubmission(ctx context.Context, sub *domain.Submission) error

	// ListSubmissions returns all submissions in insertion order.
	ListSubmissions(ctx context.Context) ([]domain.Submission, error)

	// GetSubmission retrieves a submission by ID, or nil if none exists.
	GetSubmission(ctx context.Context, id string) (*domain.Submission, error)

	// ListContacts returns customer contact details, one per submission.
	ListContacts(ctx context.Context) ([]domain.Contact, error)

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
