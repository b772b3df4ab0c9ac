// Package cli provides the fitsync command-line client.
//
// NewApp wires configuration, logging, the local state database, the OAuth
// session, the selected remote backend and the sync coordinator. The cobra
// commands built by NewRootCommand drive that App:
//
//   - login / logout / whoami
//   - sync (full pass), push (one collection), status
//   - add / delete / list over the local collection files
//   - watch: push local edits as they happen and run the periodic full sync
package cli
