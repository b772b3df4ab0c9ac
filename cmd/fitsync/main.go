package main

import (
	"context"
	"os"

	"github.com/dmitrijs2005/fitsync/internal/cli"
)

func main() {
	if err := run(context.Background()); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	root, closer := cli.NewRootCommand(cli.NewApp, os.Stdin)
	defer closer.Close()
	return root.ExecuteContext(ctx)
}
