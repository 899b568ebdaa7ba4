package session

import (
	"context"
	"time"

	"github.com/manifesto-gateway/core/pkg/jobx"
	"github.com/manifesto-gateway/core/pkg/logx"
)

// CleanupJobType identifies the self-rescheduling sweep job on a jobx.Client.
const CleanupJobType = "session.cleanup_sweep"

// RegisterCleanupJob wires Registry.CleanupSweep as a jobx handler that
// re-enqueues itself delayed by interval after every run, giving a
// periodic expiry sweep without a dedicated ticker goroutine. Seed the
// first run with EnqueueCleanupJob.
func RegisterCleanupJob(client *jobx.Client, registry *Registry, interval time.Duration, log *logx.Logger) {
	client.Register(CleanupJobType, func(ctx context.Context, job *jobx.JobInfo) error {
		expired, err := registry.CleanupSweep(ctx)
		if err != nil {
			if log != nil {
				log.WithFields(logx.Fields{"error": err.Error()}).Warn("session: cleanup sweep failed")
			}
		} else if log != nil {
			log.WithFields(logx.Fields{"expired": expired}).Info("session: cleanup sweep completed")
		}
		if _, enqueueErr := client.EnqueueDelayed(ctx, jobx.Job{Type: CleanupJobType, Queue: "default"}, interval); enqueueErr != nil && log != nil {
			log.WithFields(logx.Fields{"error": enqueueErr.Error()}).Warn("session: failed to reschedule cleanup sweep")
		}
		return err
	})
}

// EnqueueCleanupJob schedules the first cleanup sweep; RegisterCleanupJob's
// handler keeps it running afterward.
func EnqueueCleanupJob(ctx context.Context, client *jobx.Client, interval time.Duration) error {
	_, err := client.EnqueueDelayed(ctx, jobx.Job{Type: CleanupJobType, Queue: "default"}, interval)
	return err
}
