package job

import (
	"context"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/maheshrc27/postflow/internal/queue"
	"github.com/maheshrc27/postflow/internal/repository"
)

// stuckAfter is how long an assignment may sit in publishing before the
// sweep assumes its task died with a worker and queues a replacement.
const stuckAfter = 15 * time.Minute

// ReconcileJob re-queues assignments orphaned by worker crashes. Requeueing
// a live assignment is safe: the publishing status re-entry is allowed and
// terminal assignments are skipped by the worker.
type ReconcileJob struct {
	ar     repository.AssignmentRepository
	client *asynq.Client
}

func NewReconcileJob(ar repository.AssignmentRepository, client *asynq.Client) *ReconcileJob {
	return &ReconcileJob{ar: ar, client: client}
}

func (j *ReconcileJob) RequeueStuck() {
	ctx := context.Background()

	stuck, err := j.ar.ListStuckPublishing(ctx, time.Now().Add(-stuckAfter))
	if err != nil {
		slog.Info(err.Error())
		return
	}

	for _, a := range stuck {
		slog.Info("requeueing stuck assignment",
			slog.Int64("assignment_id", a.ID),
			slog.Int64("post_id", a.PostID))

		err := queue.EnqueuePublishAssignment(j.client, queue.PublishAssignmentPayload{
			AssignmentID: a.ID,
			PostID:       a.PostID,
		})
		if err != nil {
			slog.Info(err.Error())
		}
	}
}
