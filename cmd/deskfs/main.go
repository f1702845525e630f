package main

import (
	"context"
	"fmt"
	"os"

	"deskfs/internal/app"
	"deskfs/internal/transports/cli"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func buildVersion() string {
	return fmt.Sprintf("%s (commit %s, built %s)", version, commit, date)
}

func main() {
	root := cli.New(buildVersion(), app.Options{Version: version})
	if err := root.ExecuteContext(context.Background()); err != nil {
		cli.PrintError(os.Stderr, err)
		os.Exit(1)
	}
}
