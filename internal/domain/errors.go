package domain

import "errors"

var (
	// ErrChannelNotFound is returned by ChannelStore.Get for unknown channels.
	ErrChannelNotFound = errors.New("channel not found")
	// ErrTokenNotFound is returned by TokenStore.Get when no token is cached.
	ErrTokenNotFound = errors.New("app token not found")
)
