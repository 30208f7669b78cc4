package job

import (
	"context"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/maheshrc27/postflow/internal/queue"
	"github.com/maheshrc27/postflow/internal/repository"
)

// SchedulerJob sweeps for posts whose scheduled time has arrived and hands
// them to the queue. Enqueueing is the only thing the sweep does; the status
// transition happens in the worker, so a post picked up by two overlapping
// sweeps is still published once.
type SchedulerJob struct {
	pr     repository.PostRepository
	client *asynq.Client
}

func NewSchedulerJob(pr repository.PostRepository, client *asynq.Client) *SchedulerJob {
	return &SchedulerJob{pr: pr, client: client}
}

func (j *SchedulerJob) DispatchDuePosts() {
	ctx := context.Background()

	posts, err := j.pr.ListDue(ctx, time.Now())
	if err != nil {
		slog.Info(err.Error())
		return
	}

	for _, post := range posts {
		err := queue.EnqueuePublishPost(j.client, queue.PublishPostPayload{PostID: post.ID}, 0)
		if err != nil {
			slog.Info(err.Error())
		}
	}
}
