// Package api exposes the HTTP surface: account registration and login,
// session logout, message history reads, message posting, and presence.
package api
