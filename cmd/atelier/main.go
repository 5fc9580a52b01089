// Command atelier runs the catalogue entity resolution service and its
// operator commands.
package main

import (
	"fmt"
	"os"

	"github.com/scrypster/atelier/internal/config"
	"github.com/scrypster/atelier/internal/logger"
	"github.com/scrypster/atelier/web/handlers"
)

// Version is set via -ldflags at build time.
var Version = "dev"

func main() {
	os.Exit(run(os.Args))
}

// run returns the process exit code so deferred cleanup, including flushing
// the logger, happens before the process exits.
func run(args []string) int {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	log, err := logger.New(cfg.Logging.Mode, cfg.Logging.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		return 1
	}
	defer log.Sync()

	handlers.Version = Version

	app := newCLIApp(cfg, log, os.Stdout)
	if err := app.Run(args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}
