package temporal

import (
	"fmt"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
)

// StartWorker creates and starts a Temporal worker.
func StartWorker(c client.Client, taskQueue string) (worker.Worker, error) {
	w := worker.New(c, taskQueue, worker.Options{
		// Rebuilds share one collection and one database.
		MaxConcurrentActivityExecutionSize: 1,
	})

	w.RegisterWorkflow(RebuildWorkflow)
	w.RegisterActivity(RebuildActivity)
	w.RegisterActivity(ReindexActivity)
	w.RegisterActivity(VerifyActivity)

	if err := w.Start(); err != nil {
		return nil, fmt.Errorf("starting worker: %w", err)
	}
	return w, nil
}
