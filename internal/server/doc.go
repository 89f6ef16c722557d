// Package server exposes the HTTP surface: the EventSub webhook route, the
// admin watchlist endpoints, and the observability endpoints.
package server
