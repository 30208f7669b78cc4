package queue

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

func EnqueuePublishPost(asynqClient *asynq.Client, payload PublishPostPayload, delay time.Duration) error {
	taskPayload, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	task := asynq.NewTask(TaskTypePublishPost, taskPayload)

	_, err = asynqClient.Enqueue(task, asynq.ProcessIn(delay), asynq.MaxRetry(DefaultMaxRetry))
	if err != nil {
		return err
	}

	slog.Info("publish task enqueued", slog.Int64("post_id", payload.PostID))
	return nil
}

func EnqueuePublishAssignment(asynqClient *asynq.Client, payload PublishAssignmentPayload) error {
	taskPayload, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	task := asynq.NewTask(TaskTypePublishAssignment, taskPayload)

	_, err = asynqClient.Enqueue(task, asynq.MaxRetry(DefaultMaxRetry))
	if err != nil {
		return err
	}

	slog.Info("assignment task enqueued",
		slog.Int64("assignment_id", payload.AssignmentID),
		slog.Int64("post_id", payload.PostID))
	return nil
}

// RetryDelay keeps a fixed pause between attempts regardless of the error.
func RetryDelay(n int, err error, task *asynq.Task) time.Duration {
	return 60 * time.Second
}
