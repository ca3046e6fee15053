package temporal

import (
	"fmt"
	"time"

	sdktemporal "go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

// RebuildInput holds the workflow parameters.
type RebuildInput struct {
	// Paths and Dir name the export documents; both may be set.
	Paths []string
	Dir   string

	// Reindex rebuilds the index from the relational store instead of
	// reading documents.
	Reindex bool

	// Verify checks the index against the store after the rebuild.
	Verify bool
}

// RebuildOutput holds the workflow result.
type RebuildOutput struct {
	Mode         string
	Documents    int
	Commits      int
	Repositories int
	Points       int
	Duration     time.Duration

	// Verification results, set when RebuildInput.Verify is true.
	Verified bool
	Missing  int
	Orphans  int
}

// RebuildWorkflow runs one full rebuild, optionally followed by a
// verification pass. Activities are not retried: a failed rebuild points at
// a document or a configuration problem that a retry cannot fix.
func RebuildWorkflow(ctx workflow.Context, input RebuildInput) (*RebuildOutput, error) {
	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Minute,
		RetryPolicy:         &sdktemporal.RetryPolicy{MaximumAttempts: 1},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	var out RebuildOutput
	if input.Reindex {
		if err := workflow.ExecuteActivity(ctx, ReindexActivity).Get(ctx, &out); err != nil {
			return nil, fmt.Errorf("reindex: %w", err)
		}
	} else {
		if err := workflow.ExecuteActivity(ctx, RebuildActivity, input).Get(ctx, &out); err != nil {
			return nil, fmt.Errorf("rebuild: %w", err)
		}
	}

	if !input.Verify {
		return &out, nil
	}

	var v VerifyResult
	if err := workflow.ExecuteActivity(ctx, VerifyActivity).Get(ctx, &v); err != nil {
		return nil, fmt.Errorf("verify: %w", err)
	}
	out.Verified = v.OK
	out.Missing = v.Missing
	out.Orphans = v.Orphans

	workflow.GetLogger(ctx).Info("rebuild workflow finished",
		"mode", out.Mode, "points", out.Points, "verified", out.Verified)
	return &out, nil
}
