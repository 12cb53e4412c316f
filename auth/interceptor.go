package auth

import (
	"anon-chat/domain"
	"anon-chat/errors"
	pb "anon-chat/infrastructure/grpc/chatpb"
	"context"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// Methods that do not require a session token.
var publicMethods = map[string]struct{}{
	pb.ChatService_Login_FullMethodName: {},
}

type contextKey string

const UserIDKey contextKey = "user_id"

func WithUserID(ctx context.Context, userID domain.UserID) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

// UserIDFromContext returns the authenticated user of the call.
func UserIDFromContext(ctx context.Context) (domain.UserID, error) {
	userID, ok := ctx.Value(UserIDKey).(domain.UserID)
	if !ok {
		return 0, errors.ErrUnauthenticated
	}
	return userID, nil
}

// UnaryInterceptor validates the bearer token of every non-public unary call
// and injects the user id into the context.
func UnaryInterceptor(issuer *Issuer) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if isPublicMethod(info.FullMethod) {
			return handler(ctx, req)
		}
		newCtx, err := authenticate(ctx, issuer)
		if err != nil {
			return nil, err
		}
		return handler(newCtx, req)
	}
}

// StreamInterceptor does the same for streaming calls.
func StreamInterceptor(issuer *Issuer) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		if isPublicMethod(info.FullMethod) {
			return handler(srv, ss)
		}
		newCtx, err := authenticate(ss.Context(), issuer)
		if err != nil {
			return err
		}
		return handler(srv, &authenticatedStream{ServerStream: ss, ctx: newCtx})
	}
}

type authenticatedStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *authenticatedStream) Context() context.Context {
	return s.ctx
}

func authenticate(ctx context.Context, issuer *Issuer) (context.Context, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "metadata is missing")
	}
	values := md.Get("authorization")
	if len(values) == 0 {
		return nil, status.Error(codes.Unauthenticated, "authorization token is missing")
	}

	userID, err := issuer.Validate(strings.TrimPrefix(values[0], "Bearer "))
	if err != nil {
		return nil, status.Error(codes.Unauthenticated, "invalid or expired token")
	}
	return WithUserID(ctx, userID), nil
}

func isPublicMethod(method string) bool {
	_, ok := publicMethods[method]
	return ok
}

// BearerCredentials attaches a session token to every outgoing call.
type BearerCredentials struct {
	Token string
}

func (c BearerCredentials) GetRequestMetadata(context.Context, ...string) (map[string]string, error) {
	return map[string]string{"authorization": "Bearer " + c.Token}, nil
}

func (c BearerCredentials) RequireTransportSecurity() bool {
	return false
}
