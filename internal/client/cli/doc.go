// Package cli provides the interactive HydroSync field-device client.
//
// It wires configuration, the local SQLite store, the HTTP sync transport,
// and an interactive REPL for lab technicians working offline. A background
// loop syncs with the central server on the configured interval; the same
// sync can be triggered manually from the prompt.
//
// Key features:
//   - Record / delete water-quality entities (samples, results, parameters)
//   - List locally known records, with pending-change markers
//   - Sync with the server on demand
//   - Review and acknowledge conflict notifications
//
// The REPL is started via App.Run(ctx), which blocks until the user exits.
// See App and runREPL for details.
package cli
