package grpc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestStatusToHTTP(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, 200},
		{"canceled", context.Canceled, 499},
		{"deadline", fmt.Errorf("write: %w", context.DeadlineExceeded), 504},
		{"unavailable", status.Error(codes.Unavailable, "down"), 503},
		{"unauthenticated", status.Error(codes.Unauthenticated, "token"), 401},
		{"permission denied", status.Error(codes.PermissionDenied, "no"), 403},
		{"resource exhausted", status.Error(codes.ResourceExhausted, "slow down"), 429},
		{"unimplemented", status.Error(codes.Unimplemented, "rest"), 501},
		{"invalid argument", status.Error(codes.InvalidArgument, "bad"), 400},
		{"aborted", status.Error(codes.Aborted, "retry"), 409},
		{"internal", status.Error(codes.Internal, "bug"), 500},
		{"plain error", io.ErrUnexpectedEOF, 500},
		{"plain sentinel", errors.New("x"), 500},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StatusToHTTP(tt.err))
		})
	}
}
