package platform

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maheshrc27/postflow/internal/models"
)

func linkedinAccount(t *testing.T) *models.SocialAccount {
	t.Helper()
	return &models.SocialAccount{
		ID:            1,
		Platform:      PlatformLinkedin,
		AccountID:     "abc123",
		AccountStatus: models.AccountStatusConnected,
		AccessToken:   encrypted(t, "li-token"),
	}
}

func textRequest(t *testing.T) *PublishRequest {
	t.Helper()
	return &PublishRequest{
		Post:       &models.Post{ID: 10, PostType: ContentTypeText, Caption: "hello world"},
		Assignment: &models.PostPlatformAssignment{ID: 20, Platform: PlatformLinkedin},
		Account:    linkedinAccount(t),
	}
}

func newLinkedinPublisher(baseURL string) *LinkedinPublisher {
	p := NewLinkedinPublisher(testConfig(), NewTokenManager(testConfig(), &fakeAccountRepo{}))
	p.SetBaseURL(baseURL)
	return p
}

func TestLinkedinPublishText(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v2/ugcPosts", r.URL.Path)
		assert.Equal(t, "Bearer li-token", r.Header.Get("Authorization"))
		assert.Equal(t, "2.0.0", r.Header.Get("X-Restli-Protocol-Version"))

		var payload map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "urn:li:person:abc123", payload["author"])

		json.NewEncoder(w).Encode(map[string]string{"id": "urn:li:share:42"})
	}))
	defer server.Close()

	p := newLinkedinPublisher(server.URL)

	result, err := p.Publish(context.Background(), textRequest(t))
	require.NoError(t, err)
	assert.Equal(t, "urn:li:share:42", result.PostID)
	assert.Equal(t, "https://www.linkedin.com/feed/update/urn:li:share:42/", result.URL)
}

func TestLinkedinPublishCaptionOverride(t *testing.T) {
	var gotCaption string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload struct {
			SpecificContent struct {
				ShareContent struct {
					ShareCommentary struct {
						Text string `json:"text"`
					} `json:"shareCommentary"`
				} `json:"com.linkedin.ugc.ShareContent"`
			} `json:"specificContent"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		gotCaption = payload.SpecificContent.ShareContent.ShareCommentary.Text

		json.NewEncoder(w).Encode(map[string]string{"id": "urn:li:share:42"})
	}))
	defer server.Close()

	p := newLinkedinPublisher(server.URL)

	req := textRequest(t)
	req.Assignment.Content = "linkedin-specific caption"

	_, err := p.Publish(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "linkedin-specific caption", gotCaption)
}

func TestLinkedinPublishUnauthorized(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]interface{}{"message": "token revoked"})
	}))
	defer server.Close()

	p := newLinkedinPublisher(server.URL)

	_, err := p.Publish(context.Background(), textRequest(t))
	require.Error(t, err)

	var tokenErr *TokenExpiredError
	require.ErrorAs(t, err, &tokenErr)
	assert.Equal(t, http.StatusUnauthorized, tokenErr.Code)
}

func TestLinkedinPublishServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]interface{}{"message": "upstream exploded"})
	}))
	defer server.Close()

	p := newLinkedinPublisher(server.URL)

	_, err := p.Publish(context.Background(), textRequest(t))
	require.Error(t, err)

	var publishErr *PublishError
	require.ErrorAs(t, err, &publishErr)
	assert.Equal(t, PlatformLinkedin, publishErr.Platform)
	assert.Equal(t, http.StatusInternalServerError, publishErr.Code)
}

func TestLinkedinPublishValidationBeforeNetwork(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer server.Close()

	p := newLinkedinPublisher(server.URL)

	req := textRequest(t)
	req.Post.PostType = ContentTypeImage // requires media, none attached

	_, err := p.Publish(context.Background(), req)
	require.Error(t, err)

	var validationErr *ValidationError
	assert.ErrorAs(t, err, &validationErr)
	assert.False(t, called)
}

func TestLinkedinMediaFetchStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mediaFetched := false
	uploaded := false

	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()

	mux.HandleFunc("/v2/assets", func(w http.ResponseWriter, r *http.Request) {
		cancel()
		json.NewEncoder(w).Encode(map[string]interface{}{
			"value": map[string]interface{}{
				"asset": "urn:li:digitalmediaAsset:1",
				"uploadMechanism": map[string]interface{}{
					"com.linkedin.digitalmedia.uploading.MediaUploadHttpRequest": map[string]string{
						"uploadUrl": server.URL + "/upload",
					},
				},
			},
		})
	})
	mux.HandleFunc("/media/a.jpg", func(w http.ResponseWriter, r *http.Request) { mediaFetched = true })
	mux.HandleFunc("/upload", func(w http.ResponseWriter, r *http.Request) { uploaded = true })

	p := newLinkedinPublisher(server.URL)

	req := textRequest(t)
	req.Post.PostType = ContentTypeImage
	req.Media = []*models.MediaAsset{
		{ID: 1, FileName: "a.jpg", FileType: "image/jpeg", FileURL: server.URL + "/media/a.jpg"},
	}

	_, err := p.Publish(ctx, req)
	require.Error(t, err)
	assert.ErrorContains(t, err, "context canceled")
	assert.False(t, mediaFetched)
	assert.False(t, uploaded)
}

func TestLinkedinVerify(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v2/userinfo", r.URL.Path)
		assert.Equal(t, "Bearer li-token", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(map[string]string{"sub": "abc123"})
	}))
	defer server.Close()

	p := newLinkedinPublisher(server.URL)
	assert.NoError(t, p.Verify(context.Background(), linkedinAccount(t)))
}

func TestLinkedinVerifyRevoked(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"code":    "REVOKED_ACCESS_TOKEN",
			"message": "The token used in the request has been revoked by the member",
		})
	}))
	defer server.Close()

	p := newLinkedinPublisher(server.URL)

	err := p.Verify(context.Background(), linkedinAccount(t))
	require.Error(t, err)

	var tokenErr *TokenExpiredError
	assert.ErrorAs(t, err, &tokenErr)
}
