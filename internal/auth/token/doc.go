// Package token issues and verifies the signed bearer tokens ward hands
// out at login. Tokens are JWTs signed with a server-held HS256 key; the
// algorithm is pinned on verification. A token's existence is computed
// from its signature and expiry, never looked up.
package token
