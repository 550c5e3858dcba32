package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/pais-staff/mediaflow/internal/config"
)

// VideoGenerator produces talking-avatar videos
type VideoGenerator interface {
	GenerateVideo(ctx context.Context, req *GenerateVideoRequest) (string, error)
	PollVideoStatus(ctx context.Context, videoID string, interval, maxWait time.Duration) (*VideoResult, error)
	Download(ctx context.Context, url string) ([]byte, error)
	IsConfigured() bool
}

// VideoClient implements VideoGenerator for the HeyGen API
type VideoClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	avatarID   string
}

// GenerateVideoRequest describes one avatar video
type GenerateVideoRequest struct {
	AudioURL string
	ImageURL string
	Prompt   string
}

// VideoResult is the provider's view of a video job
type VideoResult struct {
	VideoID  string `json:"video_id"`
	Status   string `json:"status"`
	VideoURL string `json:"video_url,omitempty"`
	Error    string `json:"error,omitempty"`
}

type videoEnvelope struct {
	Data  json.RawMessage `json:"data"`
	Error interface{}     `json:"error"`
}

func NewVideoClient(cfg *config.VideoConfig) *VideoClient {
	return &VideoClient{
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:   cfg.APIKey,
		avatarID: cfg.AvatarID,
	}
}

// GenerateVideo starts a video job and returns the provider's video id
func (c *VideoClient) GenerateVideo(ctx context.Context, req *GenerateVideoRequest) (string, error) {
	character := map[string]interface{}{"type": "talking_photo", "talking_photo_url": req.ImageURL}
	if c.avatarID != "" && req.ImageURL == "" {
		character = map[string]interface{}{"type": "avatar", "avatar_id": c.avatarID}
	}

	body := map[string]interface{}{
		"video_inputs": []map[string]interface{}{
			{
				"character":  character,
				"voice":      map[string]interface{}{"type": "audio", "audio_url": req.AudioURL},
				"background": map[string]interface{}{"type": "color", "value": "#FFFFFF"},
			},
		},
		"dimension": map[string]int{"width": 1280, "height": 720},
		"title":     req.Prompt,
	}

	var result struct {
		VideoID string `json:"video_id"`
	}
	if err := c.post(ctx, "/v2/video/generate", body, &result); err != nil {
		return "", err
	}
	if result.VideoID == "" {
		return "", fmt.Errorf("video API returned no video_id")
	}
	return result.VideoID, nil
}

// GetVideoStatus retrieves the status of a video job
func (c *VideoClient) GetVideoStatus(ctx context.Context, videoID string) (*VideoResult, error) {
	var result VideoResult
	if err := c.get(ctx, "/v1/video_status.get?video_id="+videoID, &result); err != nil {
		return nil, err
	}
	if result.VideoID == "" {
		result.VideoID = videoID
	}
	return &result, nil
}

// Download fetches a finished video
func (c *VideoClient) Download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download video: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("video download failed with status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// PollVideoStatus polls until the video is completed or failed, or maxWait elapses
func (c *VideoClient) PollVideoStatus(ctx context.Context, videoID string, interval, maxWait time.Duration) (*VideoResult, error) {
	deadline := time.Now().Add(maxWait)
	attempt := 0

	for time.Now().Before(deadline) {
		attempt++
		result, err := c.GetVideoStatus(ctx, videoID)
		if err != nil {
			log.Printf("[Video API] Poll #%d (video=%s) — error: %v", attempt, videoID, err)
			return nil, err
		}

		log.Printf("[Video API] Poll #%d (video=%s) — status: %s", attempt, videoID, result.Status)

		switch result.Status {
		case "completed":
			if result.VideoURL == "" {
				return nil, fmt.Errorf("video completed without a url")
			}
			return result, nil
		case "failed":
			return nil, fmt.Errorf("video generation failed: %s", result.Error)
		}

		select {
		case <-ctx.Done():
			log.Printf("[Video API] Poll (video=%s) — context cancelled", videoID)
			return nil, ctx.Err()
		case <-time.After(interval):
		}
	}

	return nil, fmt.Errorf("video generation timed out after %v", maxWait)
}

func (c *VideoClient) post(ctx context.Context, endpoint string, body interface{}, result interface{}) error {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	return c.doRequest(req, result)
}

func (c *VideoClient) get(ctx context.Context, endpoint string, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	return c.doRequest(req, result)
}

// doRequest executes a request and unwraps the provider's {data, error} envelope
func (c *VideoClient) doRequest(req *http.Request, result interface{}) error {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Api-Key", c.apiKey)

	log.Printf("[Video API] → %s %s", req.Method, req.URL.Path)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Printf("[Video API] ✗ %s %s — request failed: %v", req.Method, req.URL.Path, err)
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	log.Printf("[Video API] ← %d %s %s", resp.StatusCode, req.Method, req.URL.Path)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("video API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var env videoEnvelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if env.Error != nil {
		return fmt.Errorf("video API error: %v", env.Error)
	}
	if len(env.Data) == 0 {
		return fmt.Errorf("video API response carried no data")
	}
	if err := json.Unmarshal(env.Data, result); err != nil {
		return fmt.Errorf("failed to unmarshal response data: %w", err)
	}
	return nil
}

// IsConfigured returns true if the client has valid configuration
func (c *VideoClient) IsConfigured() bool {
	return c.apiKey != ""
}
