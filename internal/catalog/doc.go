// Package catalog defines the core domain types shared across subsystems:
// series, logical chapters, source links, library entries, and activity
// events, plus the collaborator interfaces (stores, queue, providers, clock)
// that the synchronizer, resolver, and activity engine are built against.
package catalog
