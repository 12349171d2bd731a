// Package core assembles the status server's interceptor chain.
package core

import (
	"cmp"
	"slices"

	"google.golang.org/grpc"
)

// Interceptor priorities. Lower values run first.
const (
	OrderRecovery = 0
	OrderTracing  = 10
)

type middleware struct {
	Unary grpc.UnaryServerInterceptor
	Order int
}

// MiddlewareBuilder collects interceptors and produces a slice sorted by
// priority, independent of the order options were applied in.
type MiddlewareBuilder struct {
	entries []middleware
}

// Add registers an interceptor with the given order.
func (b *MiddlewareBuilder) Add(order int, unary grpc.UnaryServerInterceptor) {
	b.entries = append(b.entries, middleware{Unary: unary, Order: order})
}

// Build sorts the collected interceptors by Order (stable).
func (b *MiddlewareBuilder) Build() []grpc.UnaryServerInterceptor {
	slices.SortStableFunc(b.entries, func(a, c middleware) int {
		return cmp.Compare(a.Order, c.Order)
	})
	out := make([]grpc.UnaryServerInterceptor, 0, len(b.entries))
	for _, m := range b.entries {
		out = append(out, m.Unary)
	}
	return out
}
