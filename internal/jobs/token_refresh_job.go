package job

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/platform"
	"github.com/maheshrc27/postflow/internal/repository"
)

// TokenRefreshJob proactively refreshes tokens expiring in the next half
// hour so publish-time refreshes stay the exception.
type TokenRefreshJob struct {
	sr     repository.SocialAccountRepository
	tokens *platform.TokenManager
}

func NewTokenRefreshJob(sr repository.SocialAccountRepository, tokens *platform.TokenManager) *TokenRefreshJob {
	return &TokenRefreshJob{sr: sr, tokens: tokens}
}

func (j *TokenRefreshJob) RefreshTokens() {
	ctx := context.Background()

	cutoff := time.Now().Add(30 * time.Minute)
	accounts, err := j.sr.ListExpiringBefore(ctx, cutoff)
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

			if err := j.tokens.Refresh(ctx, acc); err != nil {
				slog.Info("unable to refresh token",
					slog.Int64("account_id", acc.ID),
					slog.String("platform", acc.Platform),
					slog.String("error", err.Error()))
			}
		}(acc)
	}

	wg.Wait()
}
