package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/pais-staff/mediaflow/internal/apperr"
	"github.com/pais-staff/mediaflow/internal/config"
	"github.com/pais-staff/mediaflow/internal/model"
)

// Client is the stage gateway: one call per remote pipeline action.
// Every call carries the bearer credential and returns either a value
// or an *apperr.Error; it never touches presentation.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	validate   *validator.Validate
}

// New creates a gateway client for the staff backend
func New(cfg *config.ClientConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		token:      cfg.Token,
		validate:   validator.New(),
	}
}

// CreateTask asks the backend to draft copy for a topic
func (c *Client) CreateTask(ctx context.Context, topic, style, length string) (*model.Task, error) {
	const op = "create task"
	if strings.TrimSpace(topic) == "" {
		return nil, apperr.Validation(op, "topic is required")
	}

	req := model.ContentRequest{Topic: topic, Style: style, Length: length}
	var resp model.GenerateResponse
	if err := c.post(ctx, op, "/api/staff/content/generate", req, &resp); err != nil {
		return nil, err
	}
	if resp.TaskID == "" {
		return nil, apperr.ExternalService(op, "response carried no task_id")
	}

	// The draft stays a draft on this side until it is approved here.
	return &model.Task{
		ID:        resp.TaskID,
		Status:    model.TaskStatusDraft,
		Topic:     topic,
		Style:     style,
		Length:    length,
		Content:   resp.Content,
		CreatedAt: time.Now(),
	}, nil
}

// GetTask fetches the backend's current copy of a task
func (c *Client) GetTask(ctx context.Context, taskID string) (*model.Task, error) {
	const op = "get task"
	if taskID == "" {
		return nil, apperr.Validation(op, "task id is required")
	}

	var resp model.TaskResponse
	if err := c.get(ctx, op, "/api/staff/content/task/"+url.PathEscape(taskID), &resp); err != nil {
		return nil, err
	}
	if resp.Task == nil {
		return nil, &apperr.Error{Kind: apperr.KindNotFound, Op: op, Message: "task " + taskID + " not returned"}
	}
	return resp.Task, nil
}

// Approve marks a task approved
func (c *Client) Approve(ctx context.Context, taskID string) error {
	const op = "approve task"
	if taskID == "" {
		return apperr.Validation(op, "task id is required")
	}

	var resp model.ApproveResponse
	path := fmt.Sprintf("/api/staff/content/task/%s/approve", url.PathEscape(taskID))
	if err := c.post(ctx, op, path, nil, &resp); err != nil {
		return err
	}
	if !resp.Success {
		return apperr.ExternalService(op, "approval not acknowledged")
	}
	return nil
}

// StartVoiceJob starts speech synthesis for an approved task
func (c *Client) StartVoiceJob(ctx context.Context, taskID string) (*model.JobRef, error) {
	const op = "start voice job"
	if taskID == "" {
		return nil, apperr.Validation(op, "task id is required")
	}

	var resp model.MediaResponse
	path := "/api/staff/media/voice/" + url.PathEscape(taskID)
	if err := c.post(ctx, op, path, nil, &resp); err != nil {
		return nil, err
	}
	return jobRef(op, &resp, model.MediaKindVoice)
}

// StartVideoJob starts video synthesis from either a task or an uploaded audio file
func (c *Client) StartVideoJob(ctx context.Context, req model.VideoJobRequest) (*model.JobRef, error) {
	const op = "start video job"
	if err := c.validate.Struct(&req); err != nil {
		return nil, apperr.Validation(op, describeValidation(err))
	}

	var resp model.MediaResponse
	if err := c.post(ctx, op, "/api/staff/media/video", req, &resp); err != nil {
		return nil, err
	}
	return jobRef(op, &resp, model.MediaKindVideo)
}

// StartComposeJob merges a finished video with its voice track
func (c *Client) StartComposeJob(ctx context.Context, req model.ComposeJobRequest) (*model.JobRef, error) {
	const op = "start compose job"
	if err := c.validate.Struct(&req); err != nil {
		return nil, apperr.Validation(op, describeValidation(err))
	}

	var resp model.MediaResponse
	if err := c.post(ctx, op, "/api/staff/media/compose", req, &resp); err != nil {
		return nil, err
	}
	return jobRef(op, &resp, model.MediaKindComposed)
}

// FetchStatus returns every media record associated with a job ref
func (c *Client) FetchStatus(ctx context.Context, jobID string) ([]model.MediaJob, error) {
	const op = "fetch status"
	if jobID == "" {
		return nil, apperr.Validation(op, "job id is required")
	}

	var resp model.MediaStatusResponse
	if err := c.get(ctx, op, "/api/staff/media/status/"+url.PathEscape(jobID), &resp); err != nil {
		return nil, err
	}

	jobs := make([]model.MediaJob, 0, len(resp.MediaRecords))
	for _, rec := range resp.MediaRecords {
		if rec != nil {
			jobs = append(jobs, *rec)
		}
	}
	return jobs, nil
}

// UploadAsset sends a local image or audio file to the backend and returns
// the asset reference to hand to the pipeline context
func (c *Client) UploadAsset(ctx context.Context, kind model.AssetKind, filename string, body io.Reader) (*model.UploadedAsset, error) {
	const op = "upload asset"
	if kind != model.AssetKindImage && kind != model.AssetKindAudio {
		return nil, apperr.Validation(op, fmt.Sprintf("unsupported asset kind %q", kind))
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filepath.Base(filename))
	if err != nil {
		return nil, apperr.Validation(op, fmt.Sprintf("failed to build form: %v", err))
	}
	if _, err := io.Copy(part, body); err != nil {
		return nil, apperr.Validation(op, fmt.Sprintf("failed to read %s: %v", filename, err))
	}
	if err := mw.Close(); err != nil {
		return nil, apperr.Validation(op, fmt.Sprintf("failed to build form: %v", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/upload/"+string(kind), &buf)
	if err != nil {
		return nil, apperr.Network(op, fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var resp model.UploadResponse
	if err := c.doRequest(op, req, &resp); err != nil {
		return nil, err
	}
	if resp.Path == "" {
		return nil, apperr.ExternalService(op, "response carried no path")
	}
	return &model.UploadedAsset{Path: resp.Path, Kind: kind}, nil
}

func jobRef(op string, resp *model.MediaResponse, kind model.MediaKind) (*model.JobRef, error) {
	if resp.TaskID == "" {
		return nil, apperr.ExternalService(op, "response carried no job reference")
	}
	return &model.JobRef{ID: resp.TaskID, MediaID: resp.MediaID, Kind: kind}, nil
}

// post sends a POST request with an optional JSON body
func (c *Client) post(ctx context.Context, op, endpoint string, body interface{}, result interface{}) error {
	var reader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return apperr.Validation(op, fmt.Sprintf("failed to marshal request: %v", err))
		}
		reader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, reader)
	if err != nil {
		return apperr.Network(op, fmt.Errorf("failed to create request: %w", err))
	}

	return c.doRequest(op, req, result)
}

// get sends a GET request and parses the JSON response
func (c *Client) get(ctx context.Context, op, endpoint string, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, nil)
	if err != nil {
		return apperr.Network(op, fmt.Errorf("failed to create request: %w", err))
	}

	return c.doRequest(op, req, result)
}

// doRequest executes a request and classifies every failure
func (c *Client) doRequest(op string, req *http.Request, result interface{}) error {
	if req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	log.Printf("[Gateway] → %s %s", req.Method, req.URL.Path)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Printf("[Gateway] ✗ %s %s — request failed: %v", req.Method, req.URL.Path, err)
		return apperr.Network(op, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return apperr.Network(op, fmt.Errorf("failed to read response: %w", err))
	}

	log.Printf("[Gateway] ← %d %s %s", resp.StatusCode, req.Method, req.URL.Path)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return apperr.FromStatus(op, resp.StatusCode, truncate(string(respBody), 256))
	}

	if err := json.Unmarshal(respBody, result); err != nil {
		return &apperr.Error{Kind: apperr.KindExternalService, Op: op, Message: "malformed response", Err: err}
	}

	return nil
}

func describeValidation(err error) string {
	if verrs, ok := err.(validator.ValidationErrors); ok {
		parts := make([]string, 0, len(verrs))
		for _, e := range verrs {
			parts = append(parts, fmt.Sprintf("%s failed %s", e.Field(), e.Tag()))
		}
		return strings.Join(parts, "; ")
	}
	return err.Error()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
