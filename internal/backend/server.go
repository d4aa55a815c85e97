package backend

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/ashureev/acbuy/internal/domain"
	"github.com/ashureev/acbuy/internal/form"
	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// Repository is the storage the reference server needs.
type Repository interface {
	InsertSubmission(ctx context.Context, sub *domain.Submission) error
	ListSubmissions(ctx context.Context) ([]domain.Submission, error)
	GetSubmission(ctx context.Context, id string) (*domain.Submission, error)
	ListContacts(ctx context.Context) ([]domain.Contact, error)
}

// ServerConfig configures the reference backend.
type ServerConfig struct {
	Schema domain.Schema
	// AdminTokens maps bearer tokens to principal names.
	AdminTokens map[string]string
}

// Server is the reference implementation of the backend service.
// It is used by cmd/backend and by end-to-end tests.
type Server struct {
	repo   Repository
	cfg    ServerConfig
	logger *slog.Logger
	now    func() time.Time
	newID  func() string
}

var errAnonymous = status.Error(codes.Unauthenticated, "anonymous caller: admin identity required")

// NewServer creates a backend server on top of repo.
func NewServer(repo Repository, cfg ServerConfig, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Schema == "" {
		cfg.Schema = domain.SchemaEnum
	}
	return &Server{
		repo:   repo,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// Register attaches the service to a gRPC server.
func (s *Server) Register(g *grpc.Server) {
	g.RegisterService(&serviceDesc, s)
}

func (s *Server) principal(ctx context.Context) (string, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", errAnonymous
	}
	for _, v := range md.Get(AuthorizationHeader) {
		token := strings.TrimSpace(strings.TrimPrefix(v, "Bearer "))
		if p, ok := s.cfg.AdminTokens[token]; ok && token != "" {
			return p, nil
		}
	}
	return "", errAnonymous
}

func storageError(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return status.FromContextError(err).Err()
	}
	return status.Errorf(codes.Unavailable, "%s: storage unavailable: %v", op, err)
}

// SubmitAC validates and stores a submission. Validation failures are
// reported inside the result, not as RPC errors.
func (s *Server) SubmitAC(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req := decodeSubmitRequest(in)
	if err := form.ValidateRequest(req, s.cfg.Schema); err != nil {
		s.logger.Info("Rejected submission", "brand", req.Brand, "error", err)
		return encodeResult(domain.SubmissionResult{Kind: domain.ResultError, Message: err.Error()}, s.cfg.Schema), nil
	}

	sub := &domain.Submission{
		ID:           s.newID(),
		Brand:        req.Brand,
		Model:        req.Model,
		Age:          req.Age,
		Condition:    req.Condition,
		CustomerName: req.CustomerName,
		Phone:        req.Phone,
		Email:        req.Email,
		Timestamp:    s.now().UnixNano(),
	}
	if err := s.repo.InsertSubmission(ctx, sub); err != nil {
		s.logger.Error("Failed to store submission", "error", err)
		return nil, storageError("submit", err)
	}

	s.logger.Info("Stored submission", "submission_id", sub.ID, "brand", sub.Brand)
	return encodeResult(domain.SubmissionResult{
		Kind:    domain.ResultSuccess,
		Message: "Submission received: " + sub.ID,
	}, s.cfg.Schema), nil
}

// ListSubmissions returns all submissions to an admin caller.
func (s *Server) ListSubmissions(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	if _, err := s.principal(ctx); err != nil {
		return nil, err
	}
	subs, err := s.repo.ListSubmissions(ctx)
	if err != nil {
		return nil, storageError("list submissions", err)
	}
	return encodeSubmissions(subs, s.cfg.Schema), nil
}

// GetSubmission returns one submission to an admin caller.
func (s *Server) GetSubmission(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if _, err := s.principal(ctx); err != nil {
		return nil, err
	}
	id := str(in, "id")
	if id == "" {
		return nil, status.Error(codes.InvalidArgument, "id is required")
	}
	sub, err := s.repo.GetSubmission(ctx, id)
	if err != nil {
		return nil, storageError("get submission", err)
	}
	out := &structpb.Struct{Fields: map[string]*structpb.Value{
		"found": structpb.NewBoolValue(sub != nil),
	}}
	if sub != nil {
		out.Fields["submission"] = structpb.NewStructValue(encodeSubmission(sub, s.cfg.Schema))
	}
	return out, nil
}

// ListCustomerContacts returns contact details to an admin caller.
func (s *Server) ListCustomerContacts(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	if _, err := s.principal(ctx); err != nil {
		return nil, err
	}
	contacts, err := s.repo.ListContacts(ctx)
	if err != nil {
		return nil, storageError("list contacts", err)
	}
	return encodeContacts(contacts), nil
}

// Whoami resolves the caller's bearer token to a principal.
func (s *Server) Whoami(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	p, err := s.principal(ctx)
	if err != nil {
		return nil, err
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"principal": structpb.NewStringValue(p),
	}}, nil
}
