package main

import (
	"context"
	"flag"
	"os"
	"path"

	"github.com/google/subcommands"
	"github.com/joho/godotenv"
)

func main() {
	// Load environment variables from .env file
	_ = godotenv.Load()

	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")
	commander.Register(&serveCmd{}, "")
	commander.Register(&migrateCmd{}, "database")
	commander.Register(&seedCmd{}, "database")
	commander.Register(&recomputeCmd{}, "ledger")

	flag.Parse()
	if flag.NArg() == 0 {
		// Default to serving, as the container entrypoint does.
		os.Exit(int((&serveCmd{}).Execute(context.Background(), flag.CommandLine)))
	}
	os.Exit(int(commander.Execute(context.Background())))
}
