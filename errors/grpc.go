package errors

import (
	"context"
	"errors"

	"github.com/go-playground/validator/v10"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// MapToGRPCError converts a domain error into a gRPC status error.
// The original message is kept so the client can show it as a notice.
func MapToGRPCError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok && !isDomainError(err) {
		return err
	}

	var validationErrors validator.ValidationErrors

	switch {
	case errors.Is(err, ErrUnknownUser):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrNotPaired):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, ErrUnsupportedContent), errors.As(err, &validationErrors):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, ErrSearchCancelled), errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, ErrDestinationClosed):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, ErrUnauthenticated):
		return status.Error(codes.Unauthenticated, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

func isDomainError(err error) bool {
	for _, target := range []error{
		ErrUnknownUser, ErrInvalidTransition, ErrNotPaired, ErrUnsupportedContent,
		ErrSearchCancelled, ErrDestinationClosed, ErrUnauthenticated,
		context.Canceled, context.DeadlineExceeded,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
