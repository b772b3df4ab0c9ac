// Package models defines the data shapes exchanged between the local
// collections, the merge engine and the remote relay: records, the per
// collection blob envelope, the cross-collection sync metadata, OAuth
// tokens and the results reported by a sync pass.
//
// JSON member names follow the remote wire format exactly, so blobs written
// by other devices decode without translation.
package models
