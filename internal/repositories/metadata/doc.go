// Package metadata is a key/value repository over the "metadata" table of the
// local state database. It keeps the persisted collection version counters
// and, when the OS keyring is unavailable, the OAuth tokens.
package metadata
