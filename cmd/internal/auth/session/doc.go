// Package session implements Parley's bearer-token session store.
//
// Tokens are opaque random strings (32 bytes, base64url) handed to the client
// once at issue time; the server persists only a SHA-256 hash. Validation is
// server-authoritative: unknown, revoked, and expired tokens all fail with
// ErrUnauthenticated, and expired records are evicted eagerly on validation
// plus periodically by a background sweep so memory stays bounded even when
// clients never log out.
package session
