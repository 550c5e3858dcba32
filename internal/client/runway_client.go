package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pais-staff/mediaflow/internal/config"
)

const defaultMotionPrompt = "natural subtle motion"

// ImageAnimator turns a still image into a short clip. No audio is involved;
// the voice track is merged later by composition.
type ImageAnimator interface {
	Animate(ctx context.Context, image, prompt string) ([]byte, error)
	IsConfigured() bool
}

// RunwayClient implements ImageAnimator for the Runway image-to-video API
type RunwayClient struct {
	httpClient   *http.Client
	baseURL      string
	apiKey       string
	duration     int
	pollInterval time.Duration
	maxWait      time.Duration
}

// Generation is the provider's view of an image-to-video task
type Generation struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Output struct {
		URL string `json:"url"`
	} `json:"output"`
	Error string `json:"error,omitempty"`
}

func NewRunwayClient(cfg *config.RunwayConfig) *RunwayClient {
	c := &RunwayClient{
		httpClient:   &http.Client{Timeout: 120 * time.Second},
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:       cfg.APIKey,
		duration:     cfg.Duration,
		pollInterval: cfg.PollInterval,
		maxWait:      cfg.MaxWait,
	}
	if c.duration <= 0 {
		c.duration = 5
	}
	if c.pollInterval <= 0 {
		c.pollInterval = 5 * time.Second
	}
	if c.maxWait <= 0 {
		c.maxWait = 5 * time.Minute
	}
	return c
}

// Animate uploads a local image when needed, starts a generation, waits for
// it and downloads the clip.
func (c *RunwayClient) Animate(ctx context.Context, image, prompt string) ([]byte, error) {
	imageURL := image
	if !strings.HasPrefix(image, "http://") && !strings.HasPrefix(image, "https://") {
		var err error
		if imageURL, err = c.UploadImage(ctx, image); err != nil {
			return nil, err
		}
	}

	id, err := c.CreateGeneration(ctx, imageURL, prompt)
	if err != nil {
		return nil, err
	}
	gen, err := c.WaitForGeneration(ctx, id)
	if err != nil {
		return nil, err
	}
	return c.download(ctx, gen.Output.URL)
}

// UploadImage sends a local file to the provider and returns its hosted URL
func (c *RunwayClient) UploadImage(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return "", fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return "", fmt.Errorf("failed to read image: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("failed to close multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/uploads", &buf)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var result struct {
		URL string `json:"url"`
	}
	if err := c.do(req, &result); err != nil {
		return "", err
	}
	if result.URL == "" {
		return "", fmt.Errorf("image upload returned no url")
	}
	return result.URL, nil
}

// CreateGeneration starts an image-to-video task and returns its id
func (c *RunwayClient) CreateGeneration(ctx context.Context, imageURL, prompt string) (string, error) {
	if prompt == "" {
		prompt = defaultMotionPrompt
	}
	body, err := json.Marshal(map[string]interface{}{
		"image_url": imageURL,
		"prompt":    prompt,
		"duration":  c.duration,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/image_to_video", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var result struct {
		ID string `json:"id"`
	}
	if err := c.do(req, &result); err != nil {
		return "", err
	}
	if result.ID == "" {
		return "", fmt.Errorf("image-to-video API returned no id")
	}
	return result.ID, nil
}

// GetGeneration fetches one status snapshot
func (c *RunwayClient) GetGeneration(ctx context.Context, id string) (*Generation, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/tasks/"+id, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	var gen Generation
	if err := c.do(req, &gen); err != nil {
		return nil, err
	}
	return &gen, nil
}

// WaitForGeneration polls until the task completes, fails or maxWait elapses
func (c *RunwayClient) WaitForGeneration(ctx context.Context, id string) (*Generation, error) {
	deadline := time.Now().Add(c.maxWait)

	for attempt := 1; time.Now().Before(deadline); attempt++ {
		gen, err := c.GetGeneration(ctx, id)
		if err != nil {
			return nil, err
		}
		log.Printf("[Runway API] Poll #%d (task=%s) status: %s", attempt, id, gen.Status)

		switch strings.ToLower(gen.Status) {
		case "completed", "succeeded":
			if gen.Output.URL == "" {
				return nil, fmt.Errorf("generation completed without a url")
			}
			return gen, nil
		case "failed":
			return nil, fmt.Errorf("image-to-video generation failed: %s", gen.Error)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.pollInterval):
		}
	}
	return nil, fmt.Errorf("image-to-video generation timed out after %v", c.maxWait)
}

func (c *RunwayClient) download(ctx context.Context, url string) ([]byte, error) {
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

func (c *RunwayClient) do(req *http.Request, result interface{}) error {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	log.Printf("[Runway API] → %s %s", req.Method, req.URL.Path)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("image-to-video API error (status %d): %s", resp.StatusCode, string(respBody))
	}
	if err := json.Unmarshal(respBody, result); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}

// IsConfigured returns true if the client has an API key
func (c *RunwayClient) IsConfigured() bool {
	return c.apiKey != ""
}
