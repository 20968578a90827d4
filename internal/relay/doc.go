// Package relay implements the relay-network transport boundary: an HTTP
// client behind domain.RelayClient and an in-memory relay server used by
// relayd and the tests.
//
// The relay is dumb on purpose. It stores events and answers filters; it
// promises nothing about ordering or completeness, so everything above it
// must be idempotent and route by tags instead of trusting arrival order.
package relay
