// Command job-worker runs only the poll/claim/execute loop, with no
// cron planners and no singleton lock contention — the horizontally
// scaled half of the deployment (spec.md §6.3's "job-worker").
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/eykd/companion-memory/internal/app"
)

var storeBackend string

func main() {
	root := &cobra.Command{
		Use:   "job-worker",
		Short: "Run a companion-memory job worker",
		RunE:  run,
	}
	root.Flags().StringVar(&storeBackend, "store", "dynamo", "backing store: dynamo or memory")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(*cobra.Command, []string) error {
	a, err := app.New(app.StoreBackend(storeBackend))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a.Logger.Info("job-worker starting", "store", storeBackend, "worker_id", a.Worker.WorkerID().String())

	return a.Worker.Run(ctx)
}
