// Package records persists each local collection as one JSON array file
// (<dir>/<collection>-data.json). Unknown record fields survive a
// load/save round trip unchanged.
package records
