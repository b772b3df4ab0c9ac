package common

const (
	// MetadataBlobName is the reserved blob name of the cross-collection
	// sync metadata inside the private app-data area.
	MetadataBlobName = "sync-metadata.json"

	// CollectionBlobSuffix is appended to a collection name to form its blob name.
	CollectionBlobSuffix = "-data.json"

	// DefaultRedirectURI is the loopback address the consent flow redirects to.
	DefaultRedirectURI = "http://127.0.0.1:8765/callback"

	// Environment variables consulted when OAuth credentials are not configured explicitly.
	EnvClientID     = "GOOGLE_CLIENT_ID"
	EnvClientSecret = "GOOGLE_CLIENT_SECRET"
)

// OAuth scopes requested by the authorization flow. Adding a scope
// invalidates tokens that were stored by earlier versions.
const (
	ScopeAppData     = "https://www.googleapis.com/auth/drive.appdata"
	ScopeAppFiles    = "https://www.googleapis.com/auth/drive.file"
	ScopeUserProfile = "https://www.googleapis.com/auth/userinfo.profile"
)

// Scopes returns the exact scope list sent with every authorization request.
func Scopes() []string {
	return []string{ScopeAppData, ScopeAppFiles, ScopeUserProfile}
}
