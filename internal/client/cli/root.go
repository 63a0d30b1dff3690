package cli

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
)

func (a *App) getStatus() string {
	s := a.config.DeviceID
	pending, err := a.agent.Pending(context.Background())
	if err == nil && len(pending) > 0 {
		s = fmt.Sprintf("%s, %d pending", s, len(pending))
	}
	return fmt.Sprintf("(%s)", s)
}

// Root starts the background sync loop and runs the interactive prompt until
// the user exits or stdin closes.
func (a *App) Root(ctx context.Context) {

	log.Println("Welcome to HydroSync field client (type 'help' for commands)")
	scanner := bufio.NewScanner(os.Stdin)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		a.agent.Run(ctx, a.config.SyncInterval)
	}()

	runREPL(ctx, a, a.getStatus, scanner)
}
