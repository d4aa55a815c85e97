// Package backend is the remote call surface of the acbuy backend service.
package backend

import (
	"context"

	"github.com/ashureev/acbuy/internal/domain"
)

// Actor defines the remote procedures the front desk consumes.
// It is implemented by the gRPC client.
type Actor interface {
	// SubmitAC stores a new submission and reports the backend's verdict.
	SubmitAC(ctx context.Context, req domain.SubmissionRequest) (domain.SubmissionResult, error)

	// ListSubmissions returns every stored submission in server order.
	ListSubmissions(ctx context.Context) ([]domain.Submission, error)

	// GetSubmission returns one submission, or nil when the id is unknown.
	GetSubmission(ctx context.Context, id string) (*domain.Submission, error)

	// ListCustomerContacts returns the contact details of every customer.
	ListCustomerContacts(ctx context.Context) ([]domain.Contact, error)
}

// Ensure GrpcClient implements Actor.
var _ Actor = (*GrpcClient)(nil)
