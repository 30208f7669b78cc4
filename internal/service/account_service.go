package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/platform"
	"github.com/maheshrc27/postflow/internal/repository"
)

var ErrAccountNotFound = errors.New("social account doesn't exist")

type AccountService interface {
	List(ctx context.Context, workspaceID int64) ([]*models.SocialAccount, error)
	Verify(ctx context.Context, workspaceID, accountID int64) error
	Remove(ctx context.Context, workspaceID, accountID int64) error
}

type accountService struct {
	ac       repository.SocialAccountRepository
	registry *platform.Registry
}

func NewAccountService(ac repository.SocialAccountRepository, registry *platform.Registry) AccountService {
	return &accountService{ac: ac, registry: registry}
}

func (s *accountService) List(ctx context.Context, workspaceID int64) ([]*models.SocialAccount, error) {
	accounts, err := s.ac.ListInfoByWorkspaceID(ctx, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("error getting social accounts")
	}
	return accounts, nil
}

// Verify runs one on-demand credential check and reconnects a previously
// disconnected account if the check passes.
func (s *accountService) Verify(ctx context.Context, workspaceID, accountID int64) error {
	exists, err := s.ac.CheckByWorkspaceID(ctx, accountID, workspaceID)
	if err != nil {
		return err
	}
	if !exists {
		slog.Info(ErrAccountNotFound.Error())
		return ErrAccountNotFound
	}

	acc, err := s.ac.GetByID(ctx, accountID)
	if err != nil {
		return err
	}

	publisher, ok := s.registry.Get(acc.Platform)
	if !ok {
		return fmt.Errorf("unsupported platform: %s", acc.Platform)
	}

	if err := publisher.Verify(ctx, acc); err != nil {
		return err
	}

	if acc.AccountStatus != models.AccountStatusConnected {
		return s.ac.Reconnect(ctx, accountID)
	}
	return nil
}

func (s *accountService) Remove(ctx context.Context, workspaceID, accountID int64) error {
	exists, err := s.ac.CheckByWorkspaceID(ctx, accountID, workspaceID)
	if err != nil {
		return err
	}
	if !exists {
		slog.Info(ErrAccountNotFound.Error())
		return ErrAccountNotFound
	}

	return s.ac.Remove(ctx, accountID)
}
