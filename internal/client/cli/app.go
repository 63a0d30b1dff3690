package cli

import (
	"bufio"
	"context"
	"log"
	"log/slog"
	"os"

	"github.com/fieldlabs/hydrosync/internal/client/agent"
	"github.com/fieldlabs/hydrosync/internal/client/client"
	"github.com/fieldlabs/hydrosync/internal/client/config"
	"github.com/fieldlabs/hydrosync/internal/client/transport"
	"github.com/fieldlabs/hydrosync/internal/logging"

	_ "modernc.org/sqlite"
)

type App struct {
	config *config.Config
	agent  *agent.Agent
	reader *bufio.Reader
}

func NewApp(c *config.Config) (*App, error) {

	ctx := context.Background()

	repos, err := client.InitDatabase(ctx, c.DatabaseDSN)
	if err != nil {
		log.Printf("error initializing database: %s", err.Error())
		return nil, err
	}

	caller := transport.NewHTTPCaller(c.ServerEndpointAddr, c.AuthToken)
	logger := logging.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	ag := agent.New(repos.Records, repos.Metadata, repos.Notifications,
		caller, c.DeviceID, logger)

	return &App{config: c, agent: ag, reader: bufio.NewReader(os.Stdin)}, nil
}

func (a *App) Run(ctx context.Context) {
	a.Root(ctx)
}
