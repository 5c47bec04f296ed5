package ir

const (
	// SchemaVersion is the GraphSpec schema version. It is mixed into
	// GraphHash so specs from different schema versions never collide.
	SchemaVersion = "1"

	// Version is the statewire release.
	Version = "0.1.0"
)
