// Package session owns the lifecycle of client sessions: creation, lookup,
// activity tracking, idle eviction and shutdown.
//
// # Sessions
//
// A Session pairs a random UUIDv4 identifier with the transport.Stream that
// carries its traffic. CreatedAt is fixed at creation; LastActivity starts
// equal to CreatedAt and moves forward on every successful Registry.Get.
// Has and List never record activity.
//
// # Registry
//
// Registry maps identifiers to sessions. Create attaches the new stream to
// the Engine before the session becomes visible, so every registered id
// refers to an attached transport. If the engine rejects the stream,
// Create returns an *AttachmentError and registers nothing.
//
// Removal is decided under the registry write lock. Whichever caller
// deletes the entry (client disconnect, idle sweep or shutdown) closes the
// transport; every other caller observes a no-op. A removed id is never
// reused, so later lookups keep returning ErrNotFound.
//
// # Idle Eviction
//
// NewRegistry starts a ticker that calls Sweep every CleanupInterval. Sweep
// evicts sessions whose idle time is strictly greater than
// InactivityThreshold, so a session may stay idle for up to
// threshold + interval before it is reclaimed. With the defaults this is
// 30 minutes and 5 minutes.
//
// # Shutdown
//
// Shutdown stops the ticker and waits for it, empties the map and closes
// every transport without waiting for pending frames. It is safe to call
// more than once; Create fails with ErrRegistryClosed afterwards.
//
// # Events
//
// When Options.Bus is set, the registry publishes event.SessionCreated,
// event.SessionRejected, event.SessionClosed, event.SessionEvicted and
// event.SessionsDrained.
package session
