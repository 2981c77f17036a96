package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/runger/fleetdash/internal/directory"
)

// Server serves the Directory service on a Unix socket.
type Server struct {
	svc        *directory.Service
	socketPath string
	logger     *slog.Logger

	grpcServer   *grpc.Server
	listener     net.Listener
	shutdownOnce sync.Once
}

// ServerConfig contains configuration options for the gRPC server.
type ServerConfig struct {
	// Service answers the lookups (required)
	Service *directory.Service

	// SocketPath is the Unix socket to listen on (required)
	SocketPath string

	// Logger is the structured logger (optional, uses default if nil)
	Logger *slog.Logger
}

var _ DirectoryServer = (*Server)(nil)

// NewServer creates a new gRPC server with the given configuration.
func NewServer(cfg *ServerConfig) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if cfg.Service == nil {
		return nil, errors.New("service is required")
	}
	if cfg.SocketPath == "" {
		return nil, errors.New("socket path is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Server{
		svc:        cfg.Service,
		socketPath: cfg.SocketPath,
		logger:     logger.With("component", "rpc"),
	}, nil
}

// Start listens on the socket and serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(s.socketPath), 0o700); err != nil {
		return fmt.Errorf("failed to create socket directory: %w", err)
	}

	// Clean up stale socket
	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		s.logger.Warn("failed to remove stale socket", "path", s.socketPath, "error", err)
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("failed to listen on socket: %w", err)
	}
	s.listener = listener

	// Readable/writable by owner only
	if err := os.Chmod(s.socketPath, 0o600); err != nil {
		listener.Close()
		return fmt.Errorf("failed to set socket permissions: %w", err)
	}

	s.grpcServer = grpc.NewServer(grpc.UnaryInterceptor(s.logCalls))
	RegisterDirectoryServer(s.grpcServer, s)

	s.logger.Info("rpc server starting", "socket", s.socketPath)

	errChan := make(chan error, 1)
	go func() {
		if err := s.grpcServer.Serve(listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			errChan <- fmt.Errorf("gRPC server error: %w", err)
		} else {
			errChan <- nil
		}
	}()

	select {
	case <-ctx.Done():
		s.Shutdown()
		<-errChan
		return nil
	case err := <-errChan:
		return err
	}
}

// Shutdown gracefully stops the server and removes the socket.
func (s *Server) Shutdown() {
	s.shutdownOnce.Do(func() {
		if s.grpcServer != nil {
			s.grpcServer.GracefulStop()
		}
		if s.listener != nil {
			s.listener.Close()
		}
		if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
			s.logger.Warn("failed to remove socket", "path", s.socketPath, "error", err)
		}
		s.logger.Info("rpc server stopped")
	})
}

// ListPage implements DirectoryServer.
func (s *Server) ListPage(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	kind, err := kindField(in)
	if err != nil {
		return nil, err
	}
	fields := in.GetFields()
	env, err := s.svc.List(ctx, kind, directory.ListParams{
		Search:  fields["search"].GetStringValue(),
		Page:    int(fields["page"].GetNumberValue()),
		PerPage: int(fields["perPage"].GetNumberValue()),
		Status:  fields["status"].GetStringValue(),
		Owner:   fields["owner"].GetStringValue(),
	})
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return toStruct(env)
}

// Get implements DirectoryServer.
func (s *Server) Get(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	kind, err := kindField(in)
	if err != nil {
		return nil, err
	}
	id := in.GetFields()["id"].GetStringValue()
	if id == "" {
		return nil, status.Error(codes.InvalidArgument, "id is required")
	}
	r, err := s.svc.Get(ctx, kind, id)
	if errors.Is(err, directory.ErrNotFound) {
		return nil, status.Error(codes.NotFound, err.Error())
	}
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return toStruct(map[string]any{"data": r})
}

func (s *Server) logCalls(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	s.logger.Debug("rpc call",
		"method", info.FullMethod,
		"duration", time.Since(start),
		"code", status.Code(err).String(),
	)
	return resp, err
}

func kindField(in *structpb.Struct) (directory.Kind, error) {
	kind, err := directory.ParseKind(in.GetFields()["kind"].GetStringValue())
	if err != nil {
		return "", status.Error(codes.InvalidArgument, err.Error())
	}
	return kind, nil
}

// toStruct converts v to a Struct through its JSON form.
func toStruct(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(b, out); err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}
