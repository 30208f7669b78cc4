package platform

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maheshrc27/postflow/internal/models"
)

func instagramAccount(t *testing.T) *models.SocialAccount {
	t.Helper()
	return &models.SocialAccount{
		ID:            3,
		Platform:      PlatformInstagram,
		AccountID:     "ig123",
		AccountStatus: models.AccountStatusConnected,
		AccessToken:   encrypted(t, "ig-token"),
	}
}

func instagramImageRequest(t *testing.T) *PublishRequest {
	t.Helper()
	return &PublishRequest{
		Post:       &models.Post{ID: 10, PostType: ContentTypeImage, Caption: "spring launch"},
		Assignment: &models.PostPlatformAssignment{ID: 20, Platform: PlatformInstagram},
		Account:    instagramAccount(t),
		Media: []*models.MediaAsset{
			{ID: 1, FileName: "a.jpg", FileType: "image/jpeg", FileURL: "https://cdn.example.com/a.jpg"},
		},
	}
}

func newInstagramPublisher(baseURL string) *InstagramPublisher {
	p := NewInstagramPublisher(testConfig(), NewTokenManager(testConfig(), &fakeAccountRepo{}))
	p.SetBaseURL(baseURL)
	p.SetPolling(5, time.Millisecond)
	return p
}

func TestInstagramPublishImageContainerFlow(t *testing.T) {
	polls := 0
	published := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == "POST" && r.URL.Path == "/ig123/media":
			var payload map[string]interface{}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
			assert.Equal(t, "https://cdn.example.com/a.jpg", payload["image_url"])
			assert.Equal(t, "spring launch", payload["caption"])
			assert.Equal(t, "ig-token", payload["access_token"])
			json.NewEncoder(w).Encode(map[string]string{"id": "c1"})
		case r.Method == "GET" && r.URL.Path == "/c1":
			assert.Equal(t, "status_code", r.URL.Query().Get("fields"))
			polls++
			code := "IN_PROGRESS"
			if polls >= 3 {
				code = "FINISHED"
			}
			json.NewEncoder(w).Encode(map[string]string{"status_code": code})
		case r.Method == "POST" && r.URL.Path == "/ig123/media_publish":
			var payload map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
			assert.Equal(t, "c1", payload["creation_id"])
			published = true
			json.NewEncoder(w).Encode(map[string]string{"id": "m1"})
		case r.Method == "GET" && r.URL.Path == "/m1":
			assert.Equal(t, "permalink", r.URL.Query().Get("fields"))
			json.NewEncoder(w).Encode(map[string]string{"permalink": "https://www.instagram.com/p/abc/"})
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	}))
	defer server.Close()

	p := newInstagramPublisher(server.URL)

	result, err := p.Publish(context.Background(), instagramImageRequest(t))
	require.NoError(t, err)
	assert.Equal(t, "m1", result.PostID)
	assert.Equal(t, "https://www.instagram.com/p/abc/", result.URL)
	assert.True(t, published)
	assert.Equal(t, 3, polls)
}

func TestInstagramPublishPollBudgetExhausted(t *testing.T) {
	published := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == "POST" && r.URL.Path == "/ig123/media":
			json.NewEncoder(w).Encode(map[string]string{"id": "c1"})
		case r.Method == "GET" && r.URL.Path == "/c1":
			json.NewEncoder(w).Encode(map[string]string{"status_code": "IN_PROGRESS"})
		case r.Method == "POST" && r.URL.Path == "/ig123/media_publish":
			published = true
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	}))
	defer server.Close()

	p := newInstagramPublisher(server.URL)
	p.SetPolling(3, time.Millisecond)

	_, err := p.Publish(context.Background(), instagramImageRequest(t))
	require.Error(t, err)

	var publishErr *PublishError
	require.ErrorAs(t, err, &publishErr)
	assert.Contains(t, publishErr.Message, "not ready")
	assert.False(t, published)
}

func TestInstagramPublishContainerError(t *testing.T) {
	published := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == "POST" && r.URL.Path == "/ig123/media":
			json.NewEncoder(w).Encode(map[string]string{"id": "c1"})
		case r.Method == "GET" && r.URL.Path == "/c1":
			json.NewEncoder(w).Encode(map[string]string{"status_code": "ERROR"})
		case r.Method == "POST" && r.URL.Path == "/ig123/media_publish":
			published = true
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	}))
	defer server.Close()

	p := newInstagramPublisher(server.URL)

	_, err := p.Publish(context.Background(), instagramImageRequest(t))
	require.Error(t, err)

	var publishErr *PublishError
	require.ErrorAs(t, err, &publishErr)
	assert.Contains(t, publishErr.Message, "ERROR")
	assert.False(t, published)
}
