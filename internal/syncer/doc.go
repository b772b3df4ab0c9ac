// Package syncer runs sync passes between the local collections and the
// remote app-data area.
//
// A pass visits each collection in turn: download the remote blob, merge it
// with the local records, write the merge back locally and remotely, then
// bump the persisted version counter. Collections fail independently and
// every failure is reported as a result value, never as a returned error.
package syncer
