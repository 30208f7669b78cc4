package job

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/notify"
	"github.com/maheshrc27/postflow/internal/platform"
	"github.com/maheshrc27/postflow/internal/repository"
)

// verifyBatchTimeout bounds one workspace's verification round.
const verifyBatchTimeout = 2 * time.Minute

// VerifierJob periodically checks every connected account with one cheap
// read-only platform call. Accounts whose credentials are gone get
// disconnected before a scheduled publish trips over them. Network and
// server errors are logged but leave the account connected; only a definite
// auth failure disconnects.
type VerifierJob struct {
	sr       repository.SocialAccountRepository
	registry *platform.Registry
	notifier notify.Notifier
}

func NewVerifierJob(
	sr repository.SocialAccountRepository,
	registry *platform.Registry,
	notifier notify.Notifier) *VerifierJob {
	return &VerifierJob{
		sr:       sr,
		registry: registry,
		notifier: notifier,
	}
}

func (j *VerifierJob) VerifyAccounts() {
	ctx := context.Background()

	workspaceIDs, err := j.sr.ListWorkspaceIDs(ctx)
	if err != nil {
		slog.Info(err.Error())
		return
	}

	for _, workspaceID := range workspaceIDs {
		j.verifyWorkspace(ctx, workspaceID)
	}
}

func (j *VerifierJob) verifyWorkspace(parent context.Context, workspaceID int64) {
	ctx, cancel := context.WithTimeout(parent, verifyBatchTimeout)
	defer cancel()

	accounts, err := j.sr.ListConnectedByWorkspaceID(ctx, workspaceID)
	if err != nil {
		slog.Info(err.Error())
		return
	}

	var wg sync.WaitGroup

	concurrencyLimit := 10
	semaphore := make(chan struct{}, concurrencyLimit)

	for _, acc := range accounts {

		wg.Add(1)
		semaphore <- struct{}{}

		go func(acc *models.SocialAccount) {
			defer wg.Done()
			defer func() { <-semaphore }()

			j.verifyAccount(ctx, acc)
		}(acc)
	}

	wg.Wait()
}

func (j *VerifierJob) verifyAccount(ctx context.Context, acc *models.SocialAccount) {
	publisher, ok := j.registry.Get(acc.Platform)
	if !ok {
		slog.Info("no publisher registered", slog.String("platform", acc.Platform))
		return
	}

	err := publisher.Verify(ctx, acc)
	if err == nil {
		return
	}

	var tokenErr *platform.TokenExpiredError
	if errors.As(err, &tokenErr) {
		transitioned, derr := j.sr.Disconnect(ctx, acc.ID, tokenErr.Error())
		if derr != nil {
			slog.Info(derr.Error())
			return
		}
		if transitioned {
			j.notifier.AccountDisconnected(ctx, acc.WorkspaceID, acc, tokenErr.Error())
		}
		return
	}

	// transient failure; the account stays connected
	slog.Info("verification inconclusive",
		slog.Int64("account_id", acc.ID),
		slog.String("platform", acc.Platform),
		slog.String("error", err.Error()))
}
