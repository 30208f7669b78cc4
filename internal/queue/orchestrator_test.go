package queue

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/platform"
)

// ---- in-memory repositories ----

type fakePostRepo struct {
	posts       map[int64]*models.Post
	assignments *fakeAssignmentRepo
}

func (f *fakePostRepo) Create(ctx context.Context, tx *sql.Tx, post *models.Post) (int64, error) {
	return 0, nil
}

func (f *fakePostRepo) GetByID(ctx context.Context, id int64) (*models.Post, error) {
	p, ok := f.posts[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (f *fakePostRepo) GetByUserID(ctx context.Context, userID int64) ([]*models.Post, error) {
	return nil, nil
}

func (f *fakePostRepo) ListDue(ctx context.Context, now time.Time) ([]*models.Post, error) {
	return nil, nil
}

func (f *fakePostRepo) MarkPublishing(ctx context.Context, postID int64) (bool, error) {
	p := f.posts[postID]
	if p.Status != models.PostStatusScheduled && p.Status != models.PostStatusDraft {
		return false, nil
	}
	p.Status = models.PostStatusPublishing
	return true, nil
}

func (f *fakePostRepo) UpdateStatus(ctx context.Context, status string, postID int64) error {
	f.posts[postID].Status = status
	return nil
}

func (f *fakePostRepo) Finalize(ctx context.Context, postID int64) (*models.Post, bool, error) {
	p := f.posts[postID]

	switch p.Status {
	case models.PostStatusPublished, models.PostStatusPartiallyPublished, models.PostStatusFailed:
		cp := *p
		return &cp, false, nil
	}

	var total, published, failed int
	for _, a := range f.assignments.assignments {
		if a.PostID != postID || !a.Enabled {
			continue
		}
		total++
		switch a.Status {
		case models.AssignmentStatusPublished:
			published++
		case models.AssignmentStatusFailed:
			failed++
		}
	}

	if published+failed < total {
		cp := *p
		return &cp, false, nil
	}

	now := time.Now()
	switch {
	case total > 0 && published == total:
		p.Status = models.PostStatusPublished
		p.PublishedAt = &now
	case published > 0:
		p.Status = models.PostStatusPartiallyPublished
		p.PublishedAt = &now
	default:
		p.Status = models.PostStatusFailed
	}

	cp := *p
	return &cp, true, nil
}

func (f *fakePostRepo) CheckByUserID(ctx context.Context, postID, userID int64) (bool, error) {
	return false, nil
}

func (f *fakePostRepo) Remove(ctx context.Context, id int64) error { return nil }

type fakeAssignmentRepo struct {
	assignments map[int64]*models.PostPlatformAssignment
}

func (f *fakeAssignmentRepo) Create(ctx context.Context, tx *sql.Tx, a *models.PostPlatformAssignment) (int64, error) {
	return 0, nil
}

func (f *fakeAssignmentRepo) GetByID(ctx context.Context, id int64) (*models.PostPlatformAssignment, error) {
	a, ok := f.assignments[id]
	if !ok {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

func (f *fakeAssignmentRepo) ListByPostID(ctx context.Context, postID int64) ([]*models.PostPlatformAssignment, error) {
	return nil, nil
}

func (f *fakeAssignmentRepo) ListEnabledByPostID(ctx context.Context, postID int64) ([]*models.PostPlatformAssignment, error) {
	var out []*models.PostPlatformAssignment
	for _, a := range f.assignments {
		if a.PostID == postID && a.Enabled {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeAssignmentRepo) MarkPublishing(ctx context.Context, id int64) (bool, error) {
	a := f.assignments[id]
	if a.Status != models.AssignmentStatusPending && a.Status != models.AssignmentStatusPublishing {
		return false, nil
	}
	a.Status = models.AssignmentStatusPublishing
	return true, nil
}

func (f *fakeAssignmentRepo) MarkPublished(ctx context.Context, id int64, platformPostID, platformURL string, publishedAt time.Time) error {
	a := f.assignments[id]
	if a.Status != models.AssignmentStatusPublishing {
		return nil
	}
	a.Status = models.AssignmentStatusPublished
	a.PlatformPostID = platformPostID
	a.PlatformURL = platformURL
	a.PublishedAt = &publishedAt
	return nil
}

func (f *fakeAssignmentRepo) MarkFailed(ctx context.Context, id int64, errorMessage string) error {
	a := f.assignments[id]
	if a.Status != models.AssignmentStatusPending && a.Status != models.AssignmentStatusPublishing {
		return nil
	}
	a.Status = models.AssignmentStatusFailed
	a.ErrorMessage = errorMessage
	return nil
}

func (f *fakeAssignmentRepo) ListStuckPublishing(ctx context.Context, olderThan time.Time) ([]*models.PostPlatformAssignment, error) {
	return nil, nil
}

type fakeSocialRepo struct {
	accounts        map[int64]*models.SocialAccount
	disconnectCalls int
}

func (f *fakeSocialRepo) Create(ctx context.Context, tx *sql.Tx, sa *models.SocialAccount) (int64, error) {
	return 0, nil
}

func (f *fakeSocialRepo) GetByID(ctx context.Context, id int64) (*models.SocialAccount, error) {
	a, ok := f.accounts[id]
	if !ok {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

func (f *fakeSocialRepo) ListInfoByWorkspaceID(ctx context.Context, workspaceID int64) ([]*models.SocialAccount, error) {
	return nil, nil
}

func (f *fakeSocialRepo) ListExpiringBefore(ctx context.Context, cutoff time.Time) ([]*models.SocialAccount, error) {
	return nil, nil
}

func (f *fakeSocialRepo) ListWorkspaceIDs(ctx context.Context) ([]int64, error) { return nil, nil }

func (f *fakeSocialRepo) ListConnectedByWorkspaceID(ctx context.Context, workspaceID int64) ([]*models.SocialAccount, error) {
	return nil, nil
}

func (f *fakeSocialRepo) CheckByWorkspaceID(ctx context.Context, accountID, workspaceID int64) (bool, error) {
	return false, nil
}

func (f *fakeSocialRepo) SetToken(ctx context.Context, accountID int64, oldAccessToken, accessToken, refreshToken string, expiresAt *time.Time) error {
	return nil
}

func (f *fakeSocialRepo) Disconnect(ctx context.Context, accountID int64, errorMessage string) (bool, error) {
	f.disconnectCalls++
	a := f.accounts[accountID]
	if a.AccountStatus == models.AccountStatusDisconnected {
		return false, nil
	}
	a.AccountStatus = models.AccountStatusDisconnected
	a.ErrorMessage = errorMessage
	return true, nil
}

func (f *fakeSocialRepo) Reconnect(ctx context.Context, accountID int64) error { return nil }
func (f *fakeSocialRepo) Remove(ctx context.Context, id int64) error           { return nil }

type fakeAssetsRepo struct{}

func (f *fakeAssetsRepo) Create(ctx context.Context, tx *sql.Tx, asset *models.MediaAsset) (int64, error) {
	return 0, nil
}
func (f *fakeAssetsRepo) GetByID(ctx context.Context, id int64) (*models.MediaAsset, error) {
	return nil, nil
}
func (f *fakeAssetsRepo) ListByUserID(ctx context.Context, userID int64) ([]*models.MediaAsset, error) {
	return nil, nil
}
func (f *fakeAssetsRepo) ListByPostID(ctx context.Context, postID int64) ([]*models.MediaAsset, error) {
	return nil, nil
}
func (f *fakeAssetsRepo) CheckByUserID(ctx context.Context, assetID, userID int64) (bool, error) {
	return false, nil
}
func (f *fakeAssetsRepo) Remove(ctx context.Context, id int64) error { return nil }

// ---- observers and publishers ----

type fakeBroadcaster struct {
	assignmentEvents []string
	settledEvents    []string
}

func (f *fakeBroadcaster) AssignmentUpdated(ctx context.Context, post *models.Post, a *models.PostPlatformAssignment) {
	f.assignmentEvents = append(f.assignmentEvents, a.Status)
}

func (f *fakeBroadcaster) PostSettled(ctx context.Context, post *models.Post) {
	f.settledEvents = append(f.settledEvents, post.Status)
}

type fakeNotifier struct {
	disconnected int
	postFailed   int
}

func (f *fakeNotifier) AccountDisconnected(ctx context.Context, userID int64, acc *models.SocialAccount, reason string) {
	f.disconnected++
}

func (f *fakeNotifier) PostFailed(ctx context.Context, userID int64, post *models.Post) {
	f.postFailed++
}

type stubPublisher struct {
	platform string
	result   *platform.PublishResult
	err      error
	calls    int
}

func (s *stubPublisher) Platform() string { return s.platform }

func (s *stubPublisher) Publish(ctx context.Context, req *platform.PublishRequest) (*platform.PublishResult, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

func (s *stubPublisher) Verify(ctx context.Context, acc *models.SocialAccount) error { return nil }

// ---- fixture ----

type fixture struct {
	orch     *Orchestrator
	posts    *fakePostRepo
	assigns  *fakeAssignmentRepo
	social   *fakeSocialRepo
	caster   *fakeBroadcaster
	notifier *fakeNotifier
	enqueued []PublishAssignmentPayload
}

func newFixture(t *testing.T, publishers ...platform.Publisher) *fixture {
	t.Helper()

	assigns := &fakeAssignmentRepo{assignments: make(map[int64]*models.PostPlatformAssignment)}
	posts := &fakePostRepo{posts: make(map[int64]*models.Post), assignments: assigns}
	social := &fakeSocialRepo{accounts: make(map[int64]*models.SocialAccount)}
	caster := &fakeBroadcaster{}
	notifier := &fakeNotifier{}

	f := &fixture{posts: posts, assigns: assigns, social: social, caster: caster, notifier: notifier}

	f.orch = NewOrchestrator(posts, assigns, social, &fakeAssetsRepo{}, platform.NewRegistry(publishers...), caster, notifier, nil)
	f.orch.enqueueAssignment = func(payload PublishAssignmentPayload) error {
		f.enqueued = append(f.enqueued, payload)
		return nil
	}

	return f
}

func (f *fixture) addPost(id int64, status string) {
	f.posts.posts[id] = &models.Post{ID: id, UserID: 1, PostType: "text", Caption: "hi", Status: status}
}

func (f *fixture) addAccount(id int64, platformTag, status string) {
	f.social.accounts[id] = &models.SocialAccount{ID: id, Platform: platformTag, AccountStatus: status}
}

func (f *fixture) addAssignment(id, postID, accountID int64, platformTag, status string, enabled bool) {
	f.assigns.assignments[id] = &models.PostPlatformAssignment{
		ID: id, PostID: postID, AccountID: accountID,
		Platform: platformTag, Status: status, Enabled: enabled,
	}
}

// ---- fan-out ----

func TestPublishPostFansOutEnabledAssignments(t *testing.T) {
	f := newFixture(t)
	f.addPost(1, models.PostStatusScheduled)
	f.addAssignment(10, 1, 100, "linkedin", models.AssignmentStatusPending, true)
	f.addAssignment(11, 1, 101, "x", models.AssignmentStatusPending, true)
	f.addAssignment(12, 1, 102, "tiktok", models.AssignmentStatusPending, false)
	f.addAssignment(13, 1, 103, "bluesky", models.AssignmentStatusPublished, true)

	require.NoError(t, f.orch.PublishPost(context.Background(), 1))

	assert.Equal(t, models.PostStatusPublishing, f.posts.posts[1].Status)
	require.Len(t, f.enqueued, 2)
	ids := []int64{f.enqueued[0].AssignmentID, f.enqueued[1].AssignmentID}
	assert.ElementsMatch(t, []int64{10, 11}, ids)
}

func TestPublishPostWithoutAssignmentsFails(t *testing.T) {
	f := newFixture(t)
	f.addPost(1, models.PostStatusScheduled)

	require.NoError(t, f.orch.PublishPost(context.Background(), 1))

	assert.Equal(t, models.PostStatusFailed, f.posts.posts[1].Status)
	assert.Equal(t, []string{models.PostStatusFailed}, f.caster.settledEvents)
	assert.Equal(t, 1, f.notifier.postFailed)
	assert.Empty(t, f.enqueued)
}

func TestPublishPostSkipsSettledPost(t *testing.T) {
	f := newFixture(t)
	f.addPost(1, models.PostStatusPublished)
	f.addAssignment(10, 1, 100, "linkedin", models.AssignmentStatusPending, true)

	require.NoError(t, f.orch.PublishPost(context.Background(), 1))
	assert.Empty(t, f.enqueued)
	assert.Equal(t, models.PostStatusPublished, f.posts.posts[1].Status)
}

// ---- assignment lifecycle ----

func TestPublishAssignmentSuccessAggregatesToPublished(t *testing.T) {
	linkedin := &stubPublisher{platform: "linkedin", result: &platform.PublishResult{PostID: "li-1", URL: "https://example.com/li-1"}}
	x := &stubPublisher{platform: "x", result: &platform.PublishResult{PostID: "x-1", URL: "https://example.com/x-1"}}

	f := newFixture(t, linkedin, x)
	f.addPost(1, models.PostStatusPublishing)
	f.addAccount(100, "linkedin", models.AccountStatusConnected)
	f.addAccount(101, "x", models.AccountStatusConnected)
	f.addAssignment(10, 1, 100, "linkedin", models.AssignmentStatusPending, true)
	f.addAssignment(11, 1, 101, "x", models.AssignmentStatusPending, true)

	require.NoError(t, f.orch.PublishAssignment(context.Background(), 10, false))

	// one settled, sibling still pending
	assert.Equal(t, models.AssignmentStatusPublished, f.assigns.assignments[10].Status)
	assert.Equal(t, "li-1", f.assigns.assignments[10].PlatformPostID)
	assert.Equal(t, models.PostStatusPublishing, f.posts.posts[1].Status)
	assert.Empty(t, f.caster.settledEvents)

	require.NoError(t, f.orch.PublishAssignment(context.Background(), 11, false))

	assert.Equal(t, models.PostStatusPublished, f.posts.posts[1].Status)
	assert.Equal(t, []string{models.PostStatusPublished}, f.caster.settledEvents)
	assert.NotNil(t, f.posts.posts[1].PublishedAt)
	assert.Zero(t, f.notifier.postFailed)
}

func TestPublishAssignmentMixedOutcomeIsPartiallyPublished(t *testing.T) {
	linkedin := &stubPublisher{platform: "linkedin", result: &platform.PublishResult{PostID: "li-1"}}
	x := &stubPublisher{platform: "x", err: &platform.ValidationError{Message: "too long"}}

	f := newFixture(t, linkedin, x)
	f.addPost(1, models.PostStatusPublishing)
	f.addAccount(100, "linkedin", models.AccountStatusConnected)
	f.addAccount(101, "x", models.AccountStatusConnected)
	f.addAssignment(10, 1, 100, "linkedin", models.AssignmentStatusPending, true)
	f.addAssignment(11, 1, 101, "x", models.AssignmentStatusPending, true)

	require.NoError(t, f.orch.PublishAssignment(context.Background(), 10, false))
	require.NoError(t, f.orch.PublishAssignment(context.Background(), 11, false))

	assert.Equal(t, models.AssignmentStatusFailed, f.assigns.assignments[11].Status)
	assert.Equal(t, "too long", f.assigns.assignments[11].ErrorMessage)
	assert.Equal(t, models.PostStatusPartiallyPublished, f.posts.posts[1].Status)
	assert.Equal(t, []string{models.PostStatusPartiallyPublished}, f.caster.settledEvents)
}

func TestPublishAssignmentTokenExpiredDisconnectsOnce(t *testing.T) {
	linkedin := &stubPublisher{platform: "linkedin", err: &platform.TokenExpiredError{Message: "token revoked", Code: 401}}

	f := newFixture(t, linkedin)
	f.addPost(1, models.PostStatusPublishing)
	f.addAccount(100, "linkedin", models.AccountStatusConnected)
	f.addAssignment(10, 1, 100, "linkedin", models.AssignmentStatusPending, true)

	require.NoError(t, f.orch.PublishAssignment(context.Background(), 10, false))

	assert.Equal(t, models.AssignmentStatusFailed, f.assigns.assignments[10].Status)
	assert.Equal(t, "token revoked", f.assigns.assignments[10].ErrorMessage)
	assert.Equal(t, models.AccountStatusDisconnected, f.social.accounts[100].AccountStatus)
	assert.Equal(t, 1, f.notifier.disconnected)
	assert.Equal(t, models.PostStatusFailed, f.posts.posts[1].Status)
	assert.Equal(t, 1, f.notifier.postFailed)
}

func TestPublishAssignmentDisconnectedAccountShortCircuits(t *testing.T) {
	linkedin := &stubPublisher{platform: "linkedin", result: &platform.PublishResult{PostID: "li-1"}}

	f := newFixture(t, linkedin)
	f.addPost(1, models.PostStatusPublishing)
	f.addAccount(100, "linkedin", models.AccountStatusDisconnected)
	f.addAssignment(10, 1, 100, "linkedin", models.AssignmentStatusPending, true)

	require.NoError(t, f.orch.PublishAssignment(context.Background(), 10, false))

	assert.Zero(t, linkedin.calls)
	assert.Equal(t, models.AssignmentStatusFailed, f.assigns.assignments[10].Status)
	assert.Equal(t, "Social account is disconnected", f.assigns.assignments[10].ErrorMessage)
	// no further disconnect, no notification
	assert.Zero(t, f.notifier.disconnected)
}

func TestPublishAssignmentTransientFailureRetriesThenSettles(t *testing.T) {
	linkedin := &stubPublisher{platform: "linkedin", err: &platform.PublishError{Platform: "linkedin", Message: "rate limited", Code: 429}}

	f := newFixture(t, linkedin)
	f.addPost(1, models.PostStatusPublishing)
	f.addAccount(100, "linkedin", models.AccountStatusConnected)
	f.addAssignment(10, 1, 100, "linkedin", models.AssignmentStatusPending, true)

	// before the final attempt, the error goes back to the queue
	err := f.orch.PublishAssignment(context.Background(), 10, false)
	require.Error(t, err)

	var publishErr *platform.PublishError
	assert.True(t, errors.As(err, &publishErr))
	assert.Equal(t, models.AssignmentStatusPublishing, f.assigns.assignments[10].Status)

	// final attempt persists the failure and settles the post
	require.NoError(t, f.orch.PublishAssignment(context.Background(), 10, true))
	assert.Equal(t, models.AssignmentStatusFailed, f.assigns.assignments[10].Status)
	assert.Equal(t, models.PostStatusFailed, f.posts.posts[1].Status)
}

func TestPublishAssignmentIgnoresSettled(t *testing.T) {
	linkedin := &stubPublisher{platform: "linkedin", result: &platform.PublishResult{PostID: "li-1"}}

	f := newFixture(t, linkedin)
	f.addPost(1, models.PostStatusPublishing)
	f.addAccount(100, "linkedin", models.AccountStatusConnected)
	f.addAssignment(10, 1, 100, "linkedin", models.AssignmentStatusPublished, true)

	require.NoError(t, f.orch.PublishAssignment(context.Background(), 10, false))
	assert.Zero(t, linkedin.calls)
}

func TestFinalizeAnnouncesTerminalOnce(t *testing.T) {
	linkedin := &stubPublisher{platform: "linkedin", result: &platform.PublishResult{PostID: "li-1"}}

	f := newFixture(t, linkedin)
	f.addPost(1, models.PostStatusPublishing)
	f.addAccount(100, "linkedin", models.AccountStatusConnected)
	f.addAssignment(10, 1, 100, "linkedin", models.AssignmentStatusPending, true)

	require.NoError(t, f.orch.PublishAssignment(context.Background(), 10, false))
	require.NoError(t, f.orch.finalize(context.Background(), 1))
	require.NoError(t, f.orch.finalize(context.Background(), 1))

	assert.Equal(t, []string{models.PostStatusPublished}, f.caster.settledEvents)
}
