// Package domain defines the core domain types and interfaces.
//
// This package contains the channel state model, the event-kind and
// message-type enums, the watchlist set abstraction, and the store and
// notifier contracts implemented by the redis and telegram adapters.
// No implementation code - just contracts. Prevents circular imports by
// keeping interfaces on the consumer side.
package domain
