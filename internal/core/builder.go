package core

import "google.golang.org/grpc"

// BuildServerOptions turns the interceptor slice into grpc.ServerOption
// values for grpc.NewServer.
func BuildServerOptions(
	unary []grpc.UnaryServerInterceptor,
	chainUnary func([]grpc.UnaryServerInterceptor) grpc.UnaryServerInterceptor,
) []grpc.ServerOption {
	var opts []grpc.ServerOption
	if u := chainUnary(unary); u != nil {
		opts = append(opts, grpc.UnaryInterceptor(u))
	}
	return opts
}
