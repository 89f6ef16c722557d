// Package twitch speaks the raw Helix and OAuth protocols: app token
// issuance, EventSub subscription CRUD, channel metadata lookups, and
// webhook delivery verification.
package twitch
