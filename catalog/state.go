// Package catalog: MOSI coherence states and lifetime flags.

package catalog

// State is the coherence state of one tile instance.
type State uint8

const (
	// Invalid: the instance holds no usable content.
	Invalid State = iota
	// Shared: content is valid; other Shared instances are bit-identical.
	Shared
	// OnHold: content is valid and the instance is pinned against eviction
	// until released. Read-equivalent to Shared.
	OnHold
	// Modified: the only up-to-date content; all other instances are
	// Invalid or OnHold.
	Modified
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case Shared:
		return "Shared"
	case OnHold:
		return "OnHold"
	case Modified:
		return "Modified"
	default:
		return "Invalid"
	}
}

// Readable reports whether the instance can serve reads without a fetch.
func (s State) Readable() bool { return s == Shared || s == OnHold || s == Modified }

// Life distinguishes user-visible storage from runtime-created copies.
type Life uint8

const (
	// WorkspaceLife marks a runtime-created instance, disposable in bulk.
	WorkspaceLife Life = iota
	// OriginLife marks the authoritative user-visible instance; never
	// destroyed by the runtime.
	OriginLife
)

// String returns "Workspace" or "Origin".
func (l Life) String() string {
	if l == OriginLife {
		return "Origin"
	}
	return "Workspace"
}

// AccessMode is the kind of access requested from the coherence engine.
type AccessMode uint8

const (
	// Read requires valid content; leaves the instance readable.
	Read AccessMode = iota
	// Write requires exclusive ownership; prior content need not survive a
	// fresh-instance creation, but an existing valid copy is moved here.
	Write
	// ReadWrite requires exclusive ownership with content preserved.
	ReadWrite
)

// String returns the access-mode name.
func (m AccessMode) String() string {
	switch m {
	case Write:
		return "Write"
	case ReadWrite:
		return "ReadWrite"
	default:
		return "Read"
	}
}
