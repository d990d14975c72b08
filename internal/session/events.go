package session

import (
	"ktx/internal/cloud"
	"ktx/internal/probe"
)

// State is the session's current mode. Intents are only legal from
// specific states; illegal ones are rejected with an error.
type State string

const (
	StateBrowsing           State = "browsing"
	StateSearching          State = "searching"
	StateProbing            State = "probing"
	StateDiscovering        State = "discovering"
	StateConfirmingDeletion State = "confirming-deletion"
	StateConfirmingImport   State = "confirming-import"
	StatePersisting         State = "persisting"
)

// EventType discriminates session events.
type EventType string

const (
	EventStateChanged      EventType = "state-changed"
	EventIndexUpdated      EventType = "index-updated"
	EventProbeRecord       EventType = "probe-record"
	EventDiscoveryOptions  EventType = "discovery-options"
	EventDiscoveryClusters EventType = "discovery-clusters"
	EventSaved             EventType = "saved"
	EventError             EventType = "error"
)

// Event is one notification to the UI collaborator. Only the fields
// relevant to the Type are populated.
type Event struct {
	Type  EventType
	State State

	Record probe.Record

	Provider cloud.Provider
	Path     []string
	Options  []cloud.Option
	Clusters []cloud.DiscoveredCluster

	Err error
}
