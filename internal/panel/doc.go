// Package panel serves the charger status page as an embedded asset.
//
// The page is a single index.html with a small script that reads the bay
// list from the REST API and follows charger.changed events over the
// WebSocket. It is embedded with go:embed so the bridge binary has no
// runtime file dependencies. Unknown paths fall back to index.html.
package panel
