// Package config loads fitsync settings.
//
// Sources are applied in order, later ones winning: built-in defaults, an
// optional JSON file, FITSYNC_* environment variables (plus the
// GOOGLE_CLIENT_ID/GOOGLE_CLIENT_SECRET pair), and finally command-line flags
// that were set explicitly.
package config
