package core

// RemoteKind classifies how a remote's key was derived.
type RemoteKind string

// RemoteKind values per spec.md 4.8.
const (
	// RemoteKindURL identifies a WebSocket/Redis-transport remote by its
	// connection URL. The URL stays the remote's key for its whole
	// lifetime; no remoteId is assigned to it after the Hello exchange.
	RemoteKindURL RemoteKind = "url"
	// RemoteKindRemoteID identifies a remote by its hex-encoded stable
	// identifier, supplied when the remote is attached programmatically.
	RemoteKindRemoteID RemoteKind = "remoteId"
)

// RemoteStatus is one configured remote's current connection state.
type RemoteStatus struct {
	// Key is the map key the Sync Service uses internally: the URL for
	// remotes attached via ConnectWebSocket, or the remoteId for remotes
	// attached via Connect. A key does not change after registration.
	Key      string
	Kind     RemoteKind
	RemoteID string
	URL      string

	Connected    bool
	LastSyncAtMs int64 // 0 means never synced
	LastError    string
}
