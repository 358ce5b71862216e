// Package password provides password hashing and verification for ward.
//
// It uses bcrypt with a configurable work factor. Hash strings are
// self-describing (algorithm, cost, and salt are embedded), so Verify
// needs no external parameters. Malformed hash strings are treated as a
// verification failure, never a panic.
package password
