package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/queue"
	"github.com/maheshrc27/postflow/internal/repository"
	"github.com/maheshrc27/postflow/internal/transfer"
)

// ErrPostPublishing rejects edits and deletes while workers are mid-flight
// on the post.
var ErrPostPublishing = errors.New("post is currently publishing")

var ErrNotFound = errors.New("post doesn't exist")

type PostDetails struct {
	Post        *models.Post                     `json:"post"`
	Assignments []*models.PostPlatformAssignment `json:"assignments"`
	Media       []*models.MediaAsset             `json:"media"`
}

type PostService interface {
	CreatePost(ctx context.Context, workspaceID, userID int64, pc *transfer.PostCreation) (int64, error)
	PublishNow(ctx context.Context, userID, postID int64) error
	PostInfo(ctx context.Context, postID, userID int64) (*PostDetails, error)
	List(ctx context.Context, userID int64) ([]*models.Post, error)
	Remove(ctx context.Context, userID, postID int64) error
}

type postService struct {
	db     *sql.DB
	pr     repository.PostRepository
	ar     repository.AssignmentRepository
	ac     repository.SocialAccountRepository
	ma     repository.AssetsRepository
	pm     repository.PostMediaRepository
	client *asynq.Client
}

func NewPostService(
	db *sql.DB,
	pr repository.PostRepository,
	ar repository.AssignmentRepository,
	ac repository.SocialAccountRepository,
	ma repository.AssetsRepository,
	pm repository.PostMediaRepository,
	client *asynq.Client) PostService {
	return &postService{
		db:     db,
		pr:     pr,
		ar:     ar,
		ac:     ac,
		ma:     ma,
		pm:     pm,
		client: client,
	}
}

func parseScheduledAt(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("invalid scheduled time format: %s", raw)
}

func (s *postService) CreatePost(ctx context.Context, workspaceID, userID int64, pc *transfer.PostCreation) (int64, error) {
	if pc == nil {
		err := errors.New("post creation data is nil")
		slog.Info(err.Error())
		return 0, err
	}
	if pc.Caption == "" && len(pc.MediaIDs) == 0 {
		err := errors.New("post needs a caption or media")
		slog.Info(err.Error())
		return 0, err
	}
	if len(pc.Assignments) == 0 {
		err := errors.New("no social accounts selected")
		slog.Info(err.Error())
		return 0, err
	}

	scheduledAt, err := parseScheduledAt(pc.ScheduledAt)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}

	postType := pc.PostType
	if postType == "" {
		switch {
		case len(pc.MediaIDs) > 1:
			postType = "carousel"
		case len(pc.MediaIDs) == 1:
			postType = "image"
		default:
			postType = "text"
		}
	}

	status := models.PostStatusDraft
	if scheduledAt != nil {
		status = models.PostStatusScheduled
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return 0, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		} else if err != nil {
			tx.Rollback()
		}
	}()

	post := models.Post{
		WorkspaceID: workspaceID,
		UserID:      userID,
		PostType:    postType,
		Caption:     pc.Caption,
		Title:       pc.Title,
		Status:      status,
		ScheduledAt: scheduledAt,
	}

	postID, err := s.pr.Create(ctx, tx, &post)
	if err != nil {
		return 0, fmt.Errorf("error creating post: %w", err)
	}

	if err = s.saveAssignments(ctx, tx, workspaceID, postID, pc.Assignments); err != nil {
		return 0, err
	}

	if err = s.linkMedia(ctx, tx, userID, postID, pc.MediaIDs); err != nil {
		return 0, err
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	if pc.PublishNow {
		err := queue.EnqueuePublishPost(s.client, queue.PublishPostPayload{PostID: postID}, 0)
		if err != nil {
			slog.Info(err.Error())
			return postID, err
		}
	}

	return postID, nil
}

func (s *postService) saveAssignments(ctx context.Context, tx *sql.Tx, workspaceID, postID int64, assignments []transfer.AssignmentCreation) error {
	for _, ac := range assignments {
		exists, err := s.ac.CheckByWorkspaceID(ctx, ac.AccountID, workspaceID)
		if err != nil {
			return fmt.Errorf("error checking social account %d: %w", ac.AccountID, err)
		}
		if !exists {
			return fmt.Errorf("social account %d does not exist", ac.AccountID)
		}

		acc, err := s.ac.GetByID(ctx, ac.AccountID)
		if err != nil {
			return err
		}

		enabled := true
		if ac.Enabled != nil {
			enabled = *ac.Enabled
		}

		assignment := models.PostPlatformAssignment{
			PostID:    postID,
			AccountID: ac.AccountID,
			Platform:  acc.Platform,
			Enabled:   enabled,
			Content:   ac.Content,
		}
		if _, err := s.ar.Create(ctx, tx, &assignment); err != nil {
			return fmt.Errorf("error saving assignment for account %d: %w", ac.AccountID, err)
		}
	}
	return nil
}

func (s *postService) linkMedia(ctx context.Context, tx *sql.Tx, userID, postID int64, mediaIDs []int64) error {
	for i, assetID := range mediaIDs {
		exists, err := s.ma.CheckByUserID(ctx, assetID, userID)
		if err != nil {
			return fmt.Errorf("error checking media asset %d: %w", assetID, err)
		}
		if !exists {
			return fmt.Errorf("media asset %d does not exist", assetID)
		}

		postMedia := models.PostMedia{
			PostID:       postID,
			AssetID:      assetID,
			DisplayOrder: i,
		}
		if err := s.pm.Create(ctx, tx, &postMedia); err != nil {
			return fmt.Errorf("error saving media link: %w", err)
		}
	}
	return nil
}

func (s *postService) PublishNow(ctx context.Context, userID, postID int64) error {
	isValid, err := s.pr.CheckByUserID(ctx, postID, userID)
	if err != nil {
		return err
	}
	if !isValid {
		slog.Info(ErrNotFound.Error())
		return ErrNotFound
	}

	post, err := s.pr.GetByID(ctx, postID)
	if err != nil {
		return err
	}
	if post.Status == models.PostStatusPublishing {
		return ErrPostPublishing
	}

	return queue.EnqueuePublishPost(s.client, queue.PublishPostPayload{PostID: postID}, 0)
}

func (s *postService) PostInfo(ctx context.Context, postID, userID int64) (*PostDetails, error) {
	isValid, err := s.pr.CheckByUserID(ctx, postID, userID)
	if err != nil {
		return nil, err
	}
	if !isValid {
		slog.Info(ErrNotFound.Error())
		return nil, ErrNotFound
	}

	post, err := s.pr.GetByID(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("error getting post info")
	}

	assignments, err := s.ar.ListByPostID(ctx, postID)
	if err != nil {
		return nil, err
	}

	media, err := s.ma.ListByPostID(ctx, postID)
	if err != nil {
		return nil, err
	}

	return &PostDetails{Post: post, Assignments: assignments, Media: media}, nil
}

func (s *postService) List(ctx context.Context, userID int64) ([]*models.Post, error) {
	posts, err := s.pr.GetByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("error getting posts")
	}
	return posts, nil
}

func (s *postService) Remove(ctx context.Context, userID, postID int64) error {
	isValid, err := s.pr.CheckByUserID(ctx, postID, userID)
	if err != nil {
		return err
	}
	if !isValid {
		slog.Info(ErrNotFound.Error())
		return ErrNotFound
	}

	post, err := s.pr.GetByID(ctx, postID)
	if err != nil {
		return err
	}
	if post.Status == models.PostStatusPublishing {
		// workers are mid-flight; deleting now would orphan their writes
		return ErrPostPublishing
	}

	if err := s.pm.RemoveByPostID(ctx, nil, postID); err != nil {
		return err
	}

	if err := s.pr.Remove(ctx, postID); err != nil {
		return fmt.Errorf("error removing post")
	}

	return nil
}
