// Package redis implements the persisted key-value collaborator: channel
// state, the shared app token, the watchlist and the webhook secret all live
// here. The core never assumes in-memory state survives a restart.
package redis
