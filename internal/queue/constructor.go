package queue

import (
	"github.com/hibiken/asynq"

	"github.com/maheshrc27/postflow/internal/broadcast"
	"github.com/maheshrc27/postflow/internal/notify"
	"github.com/maheshrc27/postflow/internal/platform"
	"github.com/maheshrc27/postflow/internal/repository"
)

// Orchestrator owns the two-stage publish pipeline: a post task fans out to
// one task per enabled assignment, and each assignment task drives exactly
// one platform call and persists its outcome.
type Orchestrator struct {
	pr       repository.PostRepository
	ar       repository.AssignmentRepository
	sa       repository.SocialAccountRepository
	ma       repository.AssetsRepository
	registry *platform.Registry
	caster   broadcast.Broadcaster
	notifier notify.Notifier
	client   *asynq.Client

	// indirection over EnqueuePublishAssignment, swapped out in tests
	enqueueAssignment func(payload PublishAssignmentPayload) error
}

func NewOrchestrator(
	pr repository.PostRepository,
	ar repository.AssignmentRepository,
	sa repository.SocialAccountRepository,
	ma repository.AssetsRepository,
	registry *platform.Registry,
	caster broadcast.Broadcaster,
	notifier notify.Notifier,
	client *asynq.Client) *Orchestrator {
	o := &Orchestrator{
		pr:       pr,
		ar:       ar,
		sa:       sa,
		ma:       ma,
		registry: registry,
		caster:   caster,
		notifier: notifier,
		client:   client,
	}
	o.enqueueAssignment = func(payload PublishAssignmentPayload) error {
		return EnqueuePublishAssignment(o.client, payload)
	}
	return o
}

const (
	TaskTypePublishPost       = "post:publish"
	TaskTypePublishAssignment = "assignment:publish"

	// DefaultMaxRetry bounds transient-failure retries per assignment.
	DefaultMaxRetry = 3
)

type PublishPostPayload struct {
	PostID int64 `json:"post_id"`
}

type PublishAssignmentPayload struct {
	AssignmentID int64 `json:"assignment_id"`
	PostID       int64 `json:"post_id"`
}
