package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ashureev/acbuy/internal/domain"
	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"
)

var (
	errConnectionShutdown       = errors.New("connection shutdown")
	errConnectionStateUnchanged = errors.New("connection state did not change")
)

// AuthorizationHeader is the metadata key carrying the caller's bearer token.
const AuthorizationHeader = "authorization"

// GrpcClient provides a gRPC client to the backend service.
type GrpcClient struct {
	conn   *grpc.ClientConn
	addr   string
	schema domain.Schema
	token  string
	logger *slog.Logger
}

// GrpcClientConfig holds configuration for the gRPC client.
type GrpcClientConfig struct {
	Address          string
	Schema           domain.Schema
	Token            string // empty for anonymous calls
	RequestTimeout   time.Duration
	KeepaliveTime    time.Duration
	KeepaliveTimeout time.Duration
	DialOptions      []grpc.DialOption
}

// DefaultGrpcClientConfig returns default configuration.
func DefaultGrpcClientConfig() GrpcClientConfig {
	return GrpcClientConfig{
		Address:          "localhost:50061",
		Schema:           domain.SchemaEnum,
		RequestTimeout:   30 * time.Second,
		KeepaliveTime:    2 * time.Minute,
		KeepaliveTimeout: 10 * time.Second,
	}
}

// NewGrpcClient builds a client connection to the backend. No network I/O
// happens until WaitForReady or the first call.
func NewGrpcClient(cfg GrpcClientConfig, logger *slog.Logger) (*GrpcClient, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Schema == "" {
		cfg.Schema = domain.SchemaEnum
	}

	kacp := keepalive.ClientParameters{
		Time:                cfg.KeepaliveTime,
		Timeout:             cfg.KeepaliveTimeout,
		PermitWithoutStream: false,
	}

	opts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(kacp),
	}
	if cfg.RequestTimeout > 0 {
		opts = append(opts, grpc.WithUnaryInterceptor(timeoutInterceptor(cfg.RequestTimeout)))
	}
	opts = append(opts, cfg.DialOptions...)

	conn, err := grpc.NewClient(cfg.Address, opts...)
	if err != nil {
		return nil, fmt.Errorf("create backend client for %s: %w", cfg.Address, err)
	}

	return &GrpcClient{
		conn:   conn,
		addr:   cfg.Address,
		schema: cfg.Schema,
		token:  cfg.Token,
		logger: logger,
	}, nil
}

func timeoutInterceptor(d time.Duration) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		if _, ok := ctx.Deadline(); !ok {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, d)
			defer cancel()
		}
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}

// WaitForReady drives the connection until it is ready, shut down, or ctx ends.
func (c *GrpcClient) WaitForReady(ctx context.Context) error {
	for {
		state := c.conn.GetState()
		switch state {
		case connectivity.Ready:
			return nil
		case connectivity.Idle:
			c.conn.Connect()
		case connectivity.Shutdown:
			return errConnectionShutdown
		}

		if !c.conn.WaitForStateChange(ctx, state) {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%w from %s", errConnectionStateUnchanged, state)
		}
	}
}

// State reports the underlying connectivity state.
func (c *GrpcClient) State() connectivity.State {
	return c.conn.GetState()
}

// Addr returns the backend address.
func (c *GrpcClient) Addr() string {
	return c.addr
}

// Close closes the gRPC connection.
func (c *GrpcClient) Close() {
	if c.conn != nil {
		if err := c.conn.Close(); err != nil {
			c.logger.Warn("failed to close backend connection", "error", err)
		}
	}
}

func (c *GrpcClient) invoke(ctx context.Context, method string, in *structpb.Struct, token string) (*structpb.Struct, error) {
	if token != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, AuthorizationHeader, "Bearer "+token)
	}
	out := &structpb.Struct{}
	if err := c.conn.Invoke(ctx, method, in, out); err != nil {
		return nil, err
	}
	return out, nil
}

// SubmitAC sends a submission. The request fields go out in a fixed order
// regardless of schema; only the condition encoding differs.
func (c *GrpcClient) SubmitAC(ctx context.Context, req domain.SubmissionRequest) (domain.SubmissionResult, error) {
	out, err := c.invoke(ctx, methodSubmitAC, encodeSubmitRequest(req, c.schema), c.token)
	if err != nil {
		return domain.SubmissionResult{}, fmt.Errorf("submit: %w", err)
	}
	return decodeResult(out), nil
}

// ListSubmissions returns all submissions in server order.
func (c *GrpcClient) ListSubmissions(ctx context.Context) ([]domain.Submission, error) {
	out, err := c.invoke(ctx, methodListSubmissions, &structpb.Struct{}, c.token)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	return decodeSubmissions(out)
}

// GetSubmission returns a single submission or nil if the backend has none with that id.
func (c *GrpcClient) GetSubmission(ctx context.Context, id string) (*domain.Submission, error) {
	in := &structpb.Struct{Fields: map[string]*structpb.Value{
		"id": structpb.NewStringValue(id),
	}}
	out, err := c.invoke(ctx, methodGetSubmission, in, c.token)
	if err != nil {
		return nil, fmt.Errorf("get submission: %w", err)
	}
	if !out.GetFields()["found"].GetBoolValue() {
		return nil, nil
	}
	sub, err := decodeSubmission(out.GetFields()["submission"].GetStructValue())
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// ListCustomerContacts returns customer contact details.
func (c *GrpcClient) ListCustomerContacts(ctx context.Context) ([]domain.Contact, error) {
	out, err := c.invoke(ctx, methodListCustomerContacts, &structpb.Struct{}, c.token)
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	return decodeContacts(out), nil
}

// Whoami asks the backend which principal token belongs to.
func (c *GrpcClient) Whoami(ctx context.Context, token string) (string, error) {
	out, err := c.invoke(ctx, methodWhoami, &structpb.Struct{}, token)
	if err != nil {
		return "", fmt.Errorf("whoami: %w", err)
	}
	principal := str(out, "principal")
	if principal == "" {
		return "", fmt.Errorf("%w: empty principal", errMalformed)
	}
	return principal, nil
}
