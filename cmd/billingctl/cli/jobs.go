package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"github.com/odyssey-erp/billing/jobs"
)

// QueueStats summarises the current queue state.
type QueueStats struct {
	Queue     string
	Pending   int
	Active    int
	Scheduled int
	Retry     int
}

// AsynqJobs manages billing jobs through asynq.
type AsynqJobs struct {
	client    *jobs.Client
	inspector *asynq.Inspector
}

// NewAsynqJobs connects the client and inspector to redisAddr.
func NewAsynqJobs(redisAddr string) (*AsynqJobs, error) {
	opts := asynq.RedisClientOpt{Addr: redisAddr}
	client, err := jobs.NewClient(opts)
	if err != nil {
		return nil, err
	}
	return &AsynqJobs{client: client, inspector: asynq.NewInspector(opts)}, nil
}

// Close releases underlying resources.
func (c *AsynqJobs) Close() error {
	var err error
	if c.inspector != nil {
		if closeErr := c.inspector.Close(); closeErr != nil {
			err = closeErr
		}
	}
	if c.client != nil {
		if closeErr := c.client.Close(); closeErr != nil {
			err = closeErr
		}
	}
	return err
}

// Trigger enqueues a supported job by name.
func (c *AsynqJobs) Trigger(ctx context.Context, name string, storeID int64) (*asynq.TaskInfo, error) {
	if c == nil || c.client == nil {
		return nil, errors.New("jobs: client not configured")
	}
	switch name {
	case jobs.TaskTypeOverdueScan:
		return c.client.EnqueueOverdueScan(ctx, jobs.OverdueScanPayload{StoreID: storeID})
	default:
		return nil, fmt.Errorf("jobs: unsupported job %s", name)
	}
}

// InspectQueue reports the default queue metrics.
func (c *AsynqJobs) InspectQueue(ctx context.Context) (QueueStats, error) {
	if c == nil || c.inspector == nil {
		return QueueStats{}, errors.New("jobs: inspector not configured")
	}
	info, err := c.inspector.GetQueueInfo(jobs.QueueDefault)
	if err != nil {
		return QueueStats{}, err
	}
	stats := QueueStats{Queue: jobs.QueueDefault}
	if info != nil {
		stats.Pending = info.Pending
		stats.Active = info.Active
		stats.Scheduled = info.Scheduled
		stats.Retry = info.Retry
	}
	return stats, nil
}

func newJobsCommand(open Opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Trigger and inspect background jobs",
	}

	trigger := &cobra.Command{
		Use:   "trigger <job>",
		Short: "Enqueue a job now (supported: " + jobs.TaskTypeOverdueScan + ")",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			storeID, _ := cmd.Flags().GetInt64("store")
			return withEnv(cmd, open, func(ctx context.Context, env *Env) error {
				if env.Jobs == nil {
					return errors.New("jobs: queue not configured")
				}
				info, err := env.Jobs.Trigger(ctx, args[0], storeID)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "enqueued %s id=%s queue=%s\n", info.Type, info.ID, info.Queue)
				return nil
			})
		},
	}
	trigger.Flags().Int64("store", 0, "Restrict the job to one store")

	stats := &cobra.Command{
		Use:   "stats",
		Short: "Show queue counters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withEnv(cmd, open, func(ctx context.Context, env *Env) error {
				if env.Jobs == nil {
					return errors.New("jobs: queue not configured")
				}
				s, err := env.Jobs.InspectQueue(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "queue=%s pending=%d active=%d scheduled=%d retry=%d\n",
					s.Queue, s.Pending, s.Active, s.Scheduled, s.Retry)
				return nil
			})
		},
	}

	cmd.AddCommand(trigger, stats)
	return cmd
}
