// Package app provides the application service layer.
//
// Orchestrates use cases: dispatching verified deliveries through the
// per-channel state machine, reconciling desired subscriptions against the
// provider's registry, and watchlist management. Depends on domain
// interfaces, not concrete implementations.
package app
