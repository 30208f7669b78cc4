package queue

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/platform"
)

const disconnectedMessage = "Social account is disconnected"

func (o *Orchestrator) HandlePublishPostTask(ctx context.Context, task *asynq.Task) error {
	var payload PublishPostPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return err
	}
	return o.PublishPost(ctx, payload.PostID)
}

// PublishPost fans a post out into one queued task per enabled assignment.
// Redelivery is harmless: the post status guard and the per-assignment
// terminal check keep every transition at-most-once.
func (o *Orchestrator) PublishPost(ctx context.Context, postID int64) error {
	post, err := o.pr.GetByID(ctx, postID)
	if err != nil {
		return err
	}
	if post == nil {
		slog.Info("publish task for missing post", slog.Int64("post_id", postID))
		return nil
	}

	moved, err := o.pr.MarkPublishing(ctx, postID)
	if err != nil {
		return err
	}
	if !moved && post.Status != models.PostStatusPublishing {
		// already settled, or someone deleted/settled it between reads
		slog.Info("post not eligible for publishing",
			slog.Int64("post_id", postID), slog.String("status", post.Status))
		return nil
	}
	post.Status = models.PostStatusPublishing

	assignments, err := o.ar.ListEnabledByPostID(ctx, postID)
	if err != nil {
		return err
	}
	if len(assignments) == 0 {
		if err := o.pr.UpdateStatus(ctx, models.PostStatusFailed, postID); err != nil {
			return err
		}
		post.Status = models.PostStatusFailed
		o.caster.PostSettled(ctx, post)
		o.notifier.PostFailed(ctx, post.UserID, post)
		return nil
	}

	for _, a := range assignments {
		if a.Settled() {
			continue
		}
		err := o.enqueueAssignment(PublishAssignmentPayload{
			AssignmentID: a.ID,
			PostID:       postID,
		})
		if err != nil {
			return err
		}
	}

	return nil
}

func (o *Orchestrator) HandlePublishAssignmentTask(ctx context.Context, task *asynq.Task) error {
	var payload PublishAssignmentPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return err
	}

	retried, _ := asynq.GetRetryCount(ctx)
	maxRetry, _ := asynq.GetMaxRetry(ctx)

	return o.PublishAssignment(ctx, payload.AssignmentID, retried >= maxRetry)
}

// PublishAssignment drives one platform call for one assignment and persists
// the outcome. lastAttempt controls transient-failure handling: before the
// final attempt the error goes back to the queue, on the final attempt the
// failure is persisted instead.
func (o *Orchestrator) PublishAssignment(ctx context.Context, assignmentID int64, lastAttempt bool) error {
	a, err := o.ar.GetByID(ctx, assignmentID)
	if err != nil {
		return err
	}
	if a == nil || a.Settled() {
		return nil
	}

	post, err := o.pr.GetByID(ctx, a.PostID)
	if err != nil {
		return err
	}
	if post == nil {
		slog.Info("assignment without post", slog.Int64("assignment_id", assignmentID))
		return nil
	}

	acc, err := o.sa.GetByID(ctx, a.AccountID)
	if err != nil {
		return err
	}
	if acc == nil {
		return o.settleFailed(ctx, post, a, "social account not found")
	}
	if !acc.Usable() {
		// short-circuit before any network call
		return o.settleFailed(ctx, post, a, disconnectedMessage)
	}

	moved, err := o.ar.MarkPublishing(ctx, a.ID)
	if err != nil {
		return err
	}
	if !moved {
		return nil
	}
	a.Status = models.AssignmentStatusPublishing
	o.caster.AssignmentUpdated(ctx, post, a)

	media, err := o.ma.ListByPostID(ctx, post.ID)
	if err != nil {
		return err
	}

	publisher, ok := o.registry.Get(a.Platform)
	if !ok {
		return o.settleFailed(ctx, post, a, "unsupported platform: "+a.Platform)
	}

	result, err := publisher.Publish(ctx, &platform.PublishRequest{
		Post:       post,
		Assignment: a,
		Account:    acc,
		Media:      media,
	})
	if err != nil {
		return o.settleError(ctx, post, a, acc, err, lastAttempt)
	}

	now := time.Now()
	if err := o.ar.MarkPublished(ctx, a.ID, result.PostID, result.URL, now); err != nil {
		return err
	}
	a.Status = models.AssignmentStatusPublished
	a.PlatformPostID = result.PostID
	a.PlatformURL = result.URL
	a.ErrorMessage = ""
	a.PublishedAt = &now
	o.caster.AssignmentUpdated(ctx, post, a)

	return o.finalize(ctx, post.ID)
}

// settleError classifies a publish failure. Validation and auth failures are
// permanent and settle immediately; auth failures additionally disconnect the
// account. Anything else consumes the retry budget first.
func (o *Orchestrator) settleError(ctx context.Context, post *models.Post, a *models.PostPlatformAssignment, acc *models.SocialAccount, err error, lastAttempt bool) error {
	var validationErr *platform.ValidationError
	if errors.As(err, &validationErr) {
		return o.settleFailed(ctx, post, a, validationErr.Error())
	}

	var tokenErr *platform.TokenExpiredError
	if errors.As(err, &tokenErr) {
		transitioned, derr := o.sa.Disconnect(ctx, acc.ID, tokenErr.Error())
		if derr != nil {
			slog.Info(derr.Error())
		}
		if transitioned {
			o.notifier.AccountDisconnected(ctx, post.UserID, acc, tokenErr.Error())
		}
		return o.settleFailed(ctx, post, a, tokenErr.Error())
	}

	if !lastAttempt {
		slog.Info("publish attempt failed, retrying",
			slog.Int64("assignment_id", a.ID),
			slog.String("platform", a.Platform),
			slog.String("error", err.Error()))
		return err
	}

	return o.settleFailed(ctx, post, a, err.Error())
}

func (o *Orchestrator) settleFailed(ctx context.Context, post *models.Post, a *models.PostPlatformAssignment, message string) error {
	if err := o.ar.MarkFailed(ctx, a.ID, message); err != nil {
		return err
	}
	a.Status = models.AssignmentStatusFailed
	a.ErrorMessage = message
	o.caster.AssignmentUpdated(ctx, post, a)

	return o.finalize(ctx, post.ID)
}

// finalize recomputes the post's aggregate status and announces the terminal
// transition exactly once, from whichever worker settled the last assignment.
func (o *Orchestrator) finalize(ctx context.Context, postID int64) error {
	post, transitioned, err := o.pr.Finalize(ctx, postID)
	if err != nil {
		return err
	}
	if !transitioned {
		return nil
	}

	o.caster.PostSettled(ctx, post)
	if post.Status == models.PostStatusFailed {
		o.notifier.PostFailed(ctx, post.UserID, post)
	}

	return nil
}
