// Package middleware provides the HTTP middleware used by the service:
// authenticator-chain based authentication and Redis-backed rate
// limiting.
package middleware
