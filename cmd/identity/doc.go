// Package identity manages user accounts: username canonicalization and
// validation, Argon2id password hashing, and user persistence.
package identity
