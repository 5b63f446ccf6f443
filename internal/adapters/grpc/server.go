package grpc

import (
	"context"
	"errors"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/viralforge/mesh/services/platform-ops/M18-cache-state-management/internal/application"
	"github.com/viralforge/mesh/services/platform-ops/M18-cache-state-management/internal/domain"
)

// CacheInternalService is the broker-free internal surface for sibling
// services: hot-path rate-limit checks and health probes without HTTP
// overhead.
type CacheInternalService interface {
	CheckRateLimit(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetHealth(context.Context, *emptypb.Empty) (*structpb.Struct, error)
}

type CacheInternalServer struct {
	service *application.Service
}

func NewCacheInternalServer(service *application.Service) *CacheInternalServer {
	return &CacheInternalServer{service: service}
}

func Register(server grpc.ServiceRegistrar, svc CacheInternalService) {
	server.RegisterService(&grpc.ServiceDesc{
		ServiceName: "viralforge.cache.v1.CacheInternalService",
		HandlerType: (*CacheInternalService)(nil),
		Methods: []grpc.MethodDesc{
			{
				MethodName: "CheckRateLimit",
				Handler:    checkRateLimitHandler(svc),
			},
			{
				MethodName: "GetHealth",
				Handler:    getHealthHandler(svc),
			},
		},
		Streams:  []grpc.StreamDesc{},
		Metadata: "mesh/contracts/proto/cache/v1/cache_internal.proto",
	}, svc)
}

func (s *CacheInternalServer) CheckRateLimit(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	fields := req.GetFields()
	scope := fields["scope"].GetStringValue()
	key := fields["key"].GetStringValue()
	if scope == "" || key == "" {
		return nil, status.Error(codes.InvalidArgument, "missing scope or key")
	}
	caller := fields["caller"].GetStringValue()
	if caller == "" {
		caller = "internal"
	}

	actor := application.Actor{SubjectID: caller, Role: "SERVICE"}
	decision, err := s.service.CheckRateLimit(ctx, actor, scope, key)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidInput) {
			return nil, status.Error(codes.InvalidArgument, err.Error())
		}
		return nil, status.Error(codes.Internal, "rate limit check failed")
	}

	resetAt := int64(0)
	if !decision.ResetAt.IsZero() {
		resetAt = decision.ResetAt.Unix()
	}
	resp, err := structpb.NewStruct(map[string]any{
		"allowed":        decision.Allowed,
		"limit":          decision.Limit,
		"remaining":      decision.Remaining,
		"retry_after_ms": decision.RetryAfter.Milliseconds(),
		"reset_at":       resetAt,
		"failed_open":    decision.FailedOpen,
	})
	if err != nil {
		return nil, status.Errorf(codes.Internal, "build response: %v", err)
	}
	return resp, nil
}

func (s *CacheInternalServer) GetHealth(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	report, err := s.service.CacheHealth(ctx)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "health report: %v", err)
	}
	resp, err := structpb.NewStruct(map[string]any{
		"status":         string(report.Status),
		"uptime_seconds": report.UptimeSeconds,
		"version":        report.Version,
	})
	if err != nil {
		return nil, status.Errorf(codes.Internal, "build response: %v", err)
	}
	return resp, nil
}

func checkRateLimitHandler(svc CacheInternalService) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		req := &structpb.Struct{}
		if err := dec(req); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return svc.CheckRateLimit(ctx, req)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: "/viralforge.cache.v1.CacheInternalService/CheckRateLimit",
		}
		handler := func(ctx context.Context, req any) (any, error) {
			typed, ok := req.(*structpb.Struct)
			if !ok {
				return nil, status.Error(codes.InvalidArgument, "invalid request type")
			}
			return svc.CheckRateLimit(ctx, typed)
		}
		return interceptor(ctx, req, info, handler)
	}
}

func getHealthHandler(svc CacheInternalService) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		req := &emptypb.Empty{}
		if err := dec(req); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return svc.GetHealth(ctx, req)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: "/viralforge.cache.v1.CacheInternalService/GetHealth",
		}
		handler := func(ctx context.Context, req any) (any, error) {
			typed, ok := req.(*emptypb.Empty)
			if !ok {
				return nil, status.Error(codes.InvalidArgument, "invalid request type")
			}
			return svc.GetHealth(ctx, typed)
		}
		return interceptor(ctx, req, info, handler)
	}
}
