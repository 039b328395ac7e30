// Package postgres implements the role directory on PostgreSQL with an
// optional Redis and in-process cache in front of identity-to-role-name
// lookups. Reads are served from round-robin read replicas when
// configured; all writes go to the primary.
package postgres
