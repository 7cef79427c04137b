package grpcx

import (
	"context"
	"errors"

	"golang.org/x/net/http/httpguts"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

const authorizationKey = "authorization"

// bearerAuth attaches "authorization: Bearer <token>" to every outgoing call,
// replacing any value the caller may have set.
type bearerAuth struct {
	value string
}

// newBearerAuth validates the token before any network I/O. gRPC metadata
// values must be visible ASCII, which is stricter than a plain HTTP header.
func newBearerAuth(token string) (bearerAuth, error) {
	v := "Bearer " + token
	if !httpguts.ValidHeaderFieldValue(v) {
		return bearerAuth{}, fail(KindInvalidAuthToken, errors.New("token contains characters not allowed in a header value"))
	}
	for i := 0; i < len(v); i++ {
		if v[i] < 0x20 || v[i] > 0x7e {
			return bearerAuth{}, fail(KindInvalidAuthToken, errors.New("token must be printable ASCII"))
		}
	}
	return bearerAuth{value: v}, nil
}

func (a bearerAuth) attach(ctx context.Context) context.Context {
	md, ok := metadata.FromOutgoingContext(ctx)
	if ok {
		md = md.Copy()
	} else {
		md = metadata.MD{}
	}
	md.Set(authorizationKey, a.value)
	return metadata.NewOutgoingContext(ctx, md)
}

func (a bearerAuth) unary(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
	return invoker(a.attach(ctx), method, req, reply, cc, opts...)
}

func (a bearerAuth) stream(ctx context.Context, desc *grpc.StreamDesc, cc *grpc.ClientConn, method string, streamer grpc.Streamer, opts ...grpc.CallOption) (grpc.ClientStream, error) {
	return streamer(a.attach(ctx), desc, cc, method, opts...)
}
