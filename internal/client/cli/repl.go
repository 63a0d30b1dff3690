package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

// execIface defines the minimal command surface the REPL needs to operate.
// The real App type satisfies this interface; tests can provide a lightweight stub.
type execIface interface {
	Record(ctx context.Context) error
	Delete(ctx context.Context) error
	List(ctx context.Context) error
	Show(ctx context.Context) error
	Sync(ctx context.Context) error
	Notifications(ctx context.Context) error
	MarkRead(ctx context.Context) error
}

// runREPL starts a simple read–eval–print loop for the HydroSync field client.
//
// It reads a line from the provided scanner, parses the first token as the
// command, and dispatches to methods on 'a'. Unknown commands are reported
// back to the user. The loop exits on scanner EOF or when the user types
// "exit" or "quit".
//
// Prompt & Commands
//
// The prompt shows the current status (from statusFn) and accepts commands:
//
//   - help            — show available commands
//   - record          — record or edit an entity (interactive prompts)
//   - delete          — mark an entity deleted
//   - list            — list locally known records
//   - show            — show a single record (interactive ID prompt)
//   - sync            — run a sync round against the server now
//   - notifications   — list unread conflict notifications
//   - markread        — acknowledge a notification
//   - exit | quit     — leave the program
//
// Any errors returned by command handlers are ignored here; handlers should
// log their own errors. This keeps the REPL loop resilient and focused on I/O.
func runREPL(ctx context.Context, a execIface, statusFn func() string, scanner *bufio.Scanner) {
	for {
		printlnFn(fmt.Sprintf("hydrosync %s > ", statusFn()))
		if !scanner.Scan() {
			return
		}
		line := scanner.Text()
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		cmd := parts[0]

		switch cmd {
		case "help":
			printlnFn("Available commands: record, delete, (l)ist, show, sync, (n)otifications, markread, exit")

		case "record":
			_ = a.Record(ctx)

		case "delete":
			_ = a.Delete(ctx)

		case "l", "list":
			_ = a.List(ctx)

		case "show":
			_ = a.Show(ctx)

		case "sync":
			_ = a.Sync(ctx)

		case "n", "notifications":
			_ = a.Notifications(ctx)

		case "markread":
			_ = a.MarkRead(ctx)

		case "exit", "quit":
			printlnFn("Bye!")
			return

		default:
			printlnFn("Unknown command:", cmd)
		}
	}
}
