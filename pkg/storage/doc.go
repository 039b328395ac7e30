// Package storage defines the persistence configuration shared by the
// PostgreSQL role directory and its Redis/in-process caches. The
// concrete implementations live in the postgres subpackage.
package storage
