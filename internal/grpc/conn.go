package grpc

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/keepalive"
)

// AuthenticationKey is the metadata key the collector reads the agent token from.
const AuthenticationKey = "authentication"

const defaultMaxMessageSize = 10 * 1024 * 1024

// ConnOptions configures the collector connection.
type ConnOptions struct {
	// Credentials secures the transport; nil means plaintext.
	Credentials credentials.TransportCredentials
	// Token is sent as authentication metadata on every RPC.
	Token          string
	MaxMessageSize int
	// Compression names a registered compressor applied to every call.
	Compression string
	DialOptions []grpc.DialOption
}

// tokenCredentials attaches the agent token to each RPC.
type tokenCredentials struct {
	token  string
	secure bool
}

func (t tokenCredentials) GetRequestMetadata(_ context.Context, _ ...string) (map[string]string, error) {
	return map[string]string{AuthenticationKey: t.token}, nil
}

func (t tokenCredentials) RequireTransportSecurity() bool {
	return t.secure
}

// NewConn creates the shared collector connection. The connection is lazy:
// no dial happens until the first RPC.
func NewConn(target string, opts ConnOptions) (*grpc.ClientConn, error) {
	maxSize := opts.MaxMessageSize
	if maxSize <= 0 {
		maxSize = defaultMaxMessageSize
	}

	creds := opts.Credentials
	secure := creds != nil
	if creds == nil {
		creds = insecure.NewCredentials()
	}

	callOpts := []grpc.CallOption{
		grpc.MaxCallRecvMsgSize(maxSize),
		grpc.MaxCallSendMsgSize(maxSize),
	}
	if opts.Compression != "" {
		if encoding.GetCompressor(opts.Compression) == nil {
			return nil, fmt.Errorf("unknown compressor %q", opts.Compression)
		}
		callOpts = append(callOpts, grpc.UseCompressor(opts.Compression))
	}

	dialOpts := []grpc.DialOption{
		grpc.WithTransportCredentials(creds),
		// pings only while a stream is open, to stay under the server's ping policy
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                60 * time.Second,
			Timeout:             20 * time.Second,
			PermitWithoutStream: false,
		}),
		grpc.WithDefaultCallOptions(callOpts...),
	}
	if opts.Token != "" {
		dialOpts = append(dialOpts, grpc.WithPerRPCCredentials(tokenCredentials{token: opts.Token, secure: secure}))
	}
	dialOpts = append(dialOpts, opts.DialOptions...)

	conn, err := grpc.NewClient(target, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create collector connection: %w", err)
	}
	return conn, nil
}
