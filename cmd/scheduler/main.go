// Command scheduler acquires the singleton lock, runs the cron planners
// while it holds leadership, and also runs a Worker so a single process
// can both plan and execute — the all-in-one deployment shape for small
// installs. Larger deployments run cmd/job-worker separately and scale it
// independently of the one scheduler leader.
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
		Use:   "scheduler",
		Short: "Run the companion-memory cron planners and a job worker",
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

	a.Logger.Info("scheduler starting", "store", storeBackend, "process_id", a.Lock.ProcessID())

	cronDone := make(chan struct{})
	go func() {
		a.Cron.Run(ctx)
		close(cronDone)
	}()

	err = a.Worker.Run(ctx)

	a.Cron.Stop()
	<-cronDone

	return err
}
