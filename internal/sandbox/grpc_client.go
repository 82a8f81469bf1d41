package sandbox

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	methodCreateFromSnapshot = "/orchestrator.sandbox.v1.SandboxService/CreateFromSnapshot"
	methodUpload             = "/orchestrator.sandbox.v1.SandboxService/Upload"
	methodRead               = "/orchestrator.sandbox.v1.SandboxService/Read"
	methodWrite              = "/orchestrator.sandbox.v1.SandboxService/Write"
	methodList               = "/orchestrator.sandbox.v1.SandboxService/List"
	methodExec               = "/orchestrator.sandbox.v1.SandboxService/Exec"
	methodExecCode           = "/orchestrator.sandbox.v1.SandboxService/ExecCode"
	methodDestroy            = "/orchestrator.sandbox.v1.SandboxService/Destroy"
)

// grpcClient implements Client over a *grpc.ClientConn using
// google.golang.org/protobuf's well-known types (structpb, wrapperspb) as
// the wire format, invoked directly via ClientConn.Invoke rather than a
// codegen'd stub — the same low-level call generated clients make.
type grpcClient struct {
	conn *grpc.ClientConn
}

// NewGRPCClient wraps an established gRPC connection to the sandbox
// service. Callers own conn's lifecycle.
func NewGRPCClient(conn *grpc.ClientConn) Client {
	return &grpcClient{conn: conn}
}

func (c *grpcClient) CreateFromSnapshot(ctx context.Context, snapshot string) (string, error) {
	req, err := structpb.NewStruct(map[string]any{"snapshot": snapshot})
	if err != nil {
		return "", fmt.Errorf("sandbox: build request: %w", err)
	}
	resp := &structpb.Struct{}
	if err := c.conn.Invoke(ctx, methodCreateFromSnapshot, req, resp); err != nil {
		return "", classifyGRPCErr(err)
	}
	return resp.Fields["sandbox_id"].GetStringValue(), nil
}

func (c *grpcClient) Upload(ctx context.Context, sandboxID, path string, data []byte) error {
	req, err := uploadRequest(sandboxID, path, data)
	if err != nil {
		return err
	}
	resp := &structpb.Struct{}
	if err := c.conn.Invoke(ctx, methodUpload, req, resp); err != nil {
		return classifyGRPCErr(err)
	}
	return nil
}

func (c *grpcClient) Read(ctx context.Context, sandboxID, path string) ([]byte, bool, error) {
	req, err := pathRequest(sandboxID, path)
	if err != nil {
		return nil, false, err
	}
	resp := &wrapperspb.BytesValue{}
	if err := c.conn.Invoke(ctx, methodRead, req, resp); err != nil {
		if errors.Is(classifyGRPCErr(err), ErrSandboxGone) {
			return nil, false, err
		}
		st, ok := status.FromError(err)
		if ok && st.Code() == codes.NotFound {
			return nil, false, nil
		}
		return nil, false, classifyGRPCErr(err)
	}
	return resp.GetValue(), true, nil
}

func (c *grpcClient) Write(ctx context.Context, sandboxID, path string, data []byte) (bool, error) {
	req, err := uploadRequest(sandboxID, path, data)
	if err != nil {
		return false, err
	}
	resp := &wrapperspb.BoolValue{}
	if err := c.conn.Invoke(ctx, methodWrite, req, resp); err != nil {
		return false, classifyGRPCErr(err)
	}
	return resp.GetValue(), nil
}

func (c *grpcClient) List(ctx context.Context, sandboxID, path string) ([]Entry, error) {
	req, err := pathRequest(sandboxID, path)
	if err != nil {
		return nil, err
	}
	resp := &structpb.Struct{}
	if err := c.conn.Invoke(ctx, methodList, req, resp); err != nil {
		return nil, classifyGRPCErr(err)
	}
	rawEntries := resp.Fields["entries"].GetListValue().GetValues()
	entries := make([]Entry, 0, len(rawEntries))
	for _, v := range rawEntries {
		fields := v.GetStructValue().GetFields()
		entries = append(entries, Entry{
			Path:  fields["path"].GetStringValue(),
			IsDir: fields["is_dir"].GetBoolValue(),
			Size:  int64(fields["size"].GetNumberValue()),
		})
	}
	return entries, nil
}

func (c *grpcClient) Exec(ctx context.Context, sandboxID, cmd string, timeout time.Duration) (string, error) {
	ctx, cancel := withOptionalTimeout(ctx, timeout)
	defer cancel()

	req, err := structpb.NewStruct(map[string]any{"sandbox_id": sandboxID, "cmd": cmd})
	if err != nil {
		return "", fmt.Errorf("sandbox: build request: %w", err)
	}
	resp := &structpb.Struct{}
	if err := c.conn.Invoke(ctx, methodExec, req, resp); err != nil {
		return "", classifyGRPCErr(err)
	}
	return resp.Fields["combined_output"].GetStringValue(), nil
}

func (c *grpcClient) ExecCode(ctx context.Context, sandboxID, code string, timeout time.Duration) (bool, string, error) {
	ctx, cancel := withOptionalTimeout(ctx, timeout)
	defer cancel()

	req, err := structpb.NewStruct(map[string]any{"sandbox_id": sandboxID, "code": code})
	if err != nil {
		return false, "", fmt.Errorf("sandbox: build request: %w", err)
	}
	resp := &structpb.Struct{}
	if err := c.conn.Invoke(ctx, methodExecCode, req, resp); err != nil {
		return false, "", classifyGRPCErr(err)
	}
	return resp.Fields["ok"].GetBoolValue(), resp.Fields["combined_output"].GetStringValue(), nil
}

func (c *grpcClient) Destroy(ctx context.Context, sandboxID string) error {
	req, err := structpb.NewStruct(map[string]any{"sandbox_id": sandboxID})
	if err != nil {
		return fmt.Errorf("sandbox: build request: %w", err)
	}
	resp := &structpb.Struct{}
	if err := c.conn.Invoke(ctx, methodDestroy, req, resp); err != nil {
		// Destroy is idempotent: a gone sandbox is a successful destroy.
		if errors.Is(classifyGRPCErr(err), ErrSandboxGone) {
			return nil
		}
		return classifyGRPCErr(err)
	}
	return nil
}

func uploadRequest(sandboxID, path string, data []byte) (*structpb.Struct, error) {
	req, err := structpb.NewStruct(map[string]any{
		"sandbox_id": sandboxID,
		"path":       path,
		"data_b64":   base64.StdEncoding.EncodeToString(data),
	})
	if err != nil {
		return nil, fmt.Errorf("sandbox: build request: %w", err)
	}
	return req, nil
}

func pathRequest(sandboxID, path string) (*structpb.Struct, error) {
	req, err := structpb.NewStruct(map[string]any{"sandbox_id": sandboxID, "path": path})
	if err != nil {
		return nil, fmt.Errorf("sandbox: build request: %w", err)
	}
	return req, nil
}

func withOptionalTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}

// classifyGRPCErr maps gRPC status codes to this package's sentinel errors
// so callers never need to import grpc/codes themselves.
func classifyGRPCErr(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return fmt.Errorf("sandbox: %w", ErrUnavailable)
	}
	switch st.Code() {
	case codes.DeadlineExceeded:
		return ErrTimeout
	case codes.ResourceExhausted:
		return ErrQuotaExceeded
	case codes.NotFound, codes.FailedPrecondition:
		return ErrSandboxGone
	case codes.Unavailable:
		return ErrUnavailable
	case codes.Unknown, codes.Internal:
		return ErrUserCodeError
	default:
		return fmt.Errorf("sandbox: %s: %w", st.Message(), ErrUnavailable)
	}
}
