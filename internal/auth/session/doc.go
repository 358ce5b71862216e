// Package session ties token verification to the distributed revocation
// list. It exposes the three operations the routing layer consumes:
// issue a token at login, authenticate a presented token, and revoke a
// token at logout for exactly its remaining lifetime.
package session
