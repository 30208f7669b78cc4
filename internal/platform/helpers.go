package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/maheshrc27/postflow/internal/models"
)

func postJSON(ctx context.Context, client *http.Client, reqURL string, headers map[string]string, payload interface{}) (int, []byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", reqURL, bytes.NewBuffer(body))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json; charset=UTF-8")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return do(client, req)
}

func postForm(ctx context.Context, client *http.Client, reqURL string, headers map[string]string, data url.Values) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, "POST", reqURL, strings.NewReader(data.Encode()))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return do(client, req)
}

func getJSON(ctx context.Context, client *http.Client, reqURL string, headers map[string]string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", reqURL, nil)
	if err != nil {
		return 0, nil, err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return do(client, req)
}

func do(client *http.Client, req *http.Request) (int, []byte, error) {
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, err
	}

	return resp.StatusCode, body, nil
}

// freshToken runs the token lifecycle check and converts a refresh failure
// into the publish/verify taxonomy.
func freshToken(ctx context.Context, tokens *TokenManager, acc *models.SocialAccount) (string, error) {
	token, err := tokens.EnsureFresh(ctx, acc)
	if err != nil {
		var refreshErr *TokenRefreshError
		if errors.As(err, &refreshErr) {
			return "", &TokenExpiredError{Message: refreshErr.Message, Code: http.StatusUnauthorized}
		}
		return "", err
	}
	return token, nil
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

// fetchMedia downloads a stored media file with the caller's context so a
// cancelled task stops streaming instead of finishing the download.
func fetchMedia(ctx context.Context, client *http.Client, fileURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", fileURL, nil)
	if err != nil {
		return nil, err
	}
	if client == nil {
		client = http.DefaultClient
	}
	return client.Do(req)
}

// pollContainer polls a graph-style media container until its status_code
// reaches FINISHED. The loop is bounded; exhausting it is a publish failure.
func pollContainer(ctx context.Context, client *http.Client, platform, statusURL string, attempts int, interval time.Duration) error {
	for i := 0; i < attempts; i++ {
		status, body, err := getJSON(ctx, client, statusURL, nil)
		if err != nil {
			return &PublishError{Platform: platform, Message: "polling container: " + err.Error()}
		}
		if status == http.StatusUnauthorized {
			return &TokenExpiredError{Message: errorMessage(body), Code: status}
		}
		if status != http.StatusOK {
			return &PublishError{Platform: platform, Message: errorMessage(body), Code: status}
		}

		var containerStatus struct {
			StatusCode string `json:"status_code"`
		}
		if err := json.Unmarshal(body, &containerStatus); err != nil {
			return &PublishError{Platform: platform, Message: "malformed container status: " + err.Error()}
		}

		switch containerStatus.StatusCode {
		case "FINISHED":
			return nil
		case "ERROR", "EXPIRED":
			return &PublishError{Platform: platform, Message: "media container reached status " + containerStatus.StatusCode}
		}

		select {
		case <-ctx.Done():
			return &PublishError{Platform: platform, Message: "polling container: " + ctx.Err().Error()}
		case <-time.After(interval):
		}
	}

	return &PublishError{Platform: platform, Message: "media container not ready after polling"}
}

// errorMessage pulls a human-readable message out of a platform error body,
// falling back to the raw body.
func errorMessage(body []byte) string {
	var envelope struct {
		Message string `json:"message"`
		Error   struct {
			Message string `json:"message"`
		} `json:"error"`
		ErrorDescription string `json:"error_description"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil {
		if envelope.Message != "" {
			return envelope.Message
		}
		if envelope.Error.Message != "" {
			return envelope.Error.Message
		}
		if envelope.ErrorDescription != "" {
			return envelope.ErrorDescription
		}
	}

	msg := strings.TrimSpace(string(body))
	if len(msg) > 300 {
		msg = msg[:300]
	}
	return msg
}
