package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pais-staff/mediaflow/internal/client"
	"github.com/pais-staff/mediaflow/internal/model"
	"github.com/pais-staff/mediaflow/internal/store"
)

// ContentService drafts, revises and approves content tasks
type ContentService struct {
	store  *store.Store
	writer client.CopyWriter
}

func NewContentService(st *store.Store, writer client.CopyWriter) *ContentService {
	return &ContentService{store: st, writer: writer}
}

var styleGuides = map[string]string{
	string(model.StylePress):     "News release: objective and formal, inverted pyramid, headline first.",
	string(model.StyleSpeech):    "Speech: spoken register, warm and persuasive, end on a shared vision.",
	string(model.StyleFacebook):  "Facebook post: friendly and lively, a few emoji, invite comments.",
	string(model.StyleInstagram): "Instagram caption: short punchy lines, emoji and three to five hashtags.",
	string(model.StylePoster):    "Poster copy: one headline, one subline, a call to action.",
	string(model.StyleFormal):    "Formal announcement: official wording suitable for a policy statement.",
}

var lengthGuides = map[string]string{
	string(model.LengthShort):  "50 to 100 words",
	string(model.LengthMedium): "150 to 300 words",
	string(model.LengthLong):   "400 to 600 words",
}

const systemPrompt = `You are the lead staff writer for a city government office.
Write accurate copy with a clear title, body and closing. Never invent figures,
dates or policy details that the request does not give you.
Return only the copy, without commentary.`

// Generate creates a task, drafts its first version and leaves it in review
func (s *ContentService) Generate(ctx context.Context, req *model.ContentRequest) (*model.GenerateResponse, error) {
	now := time.Now()
	task := &model.Task{
		ID:        newID("task"),
		Status:    model.TaskStatusDraft,
		Topic:     strings.TrimSpace(req.Topic),
		Style:     req.Style,
		Length:    req.Length,
		CreatedAt: now,
	}
	if err := s.store.SaveTask(ctx, task); err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	content, err := s.draft(ctx, task)
	if err != nil {
		s.store.UpdateTask(ctx, task.ID, func(t *model.Task) { t.Status = model.TaskStatusFailed })
		return nil, fmt.Errorf("AI generation failed: %w", err)
	}

	if err := s.store.AddVersion(ctx, &model.TaskVersion{
		ID:        newID("ver"),
		TaskID:    task.ID,
		Content:   content,
		CreatedBy: "ai",
	}); err != nil {
		return nil, err
	}

	if _, err := s.store.UpdateTask(ctx, task.ID, func(t *model.Task) {
		t.Content = content
		t.Status = model.TaskStatusReviewing
	}); err != nil {
		return nil, err
	}

	log.Printf("[Content] Drafted %s (%d chars)", task.ID, len(content))

	return &model.GenerateResponse{
		Success: true,
		TaskID:  task.ID,
		Content: content,
		Message: "Draft generated, awaiting review",
	}, nil
}

func (s *ContentService) draft(ctx context.Context, task *model.Task) (string, error) {
	if s.writer == nil || !s.writer.IsConfigured() {
		return s.draftMock(task), nil
	}

	prompt := fmt.Sprintf("Topic: %s\nStyle: %s\nLength: %s",
		task.Topic, styleGuides[task.Style], lengthGuides[task.Length])

	out, err := s.writer.Complete(ctx, client.CompletionInput{System: systemPrompt, Prompt: prompt})
	if err != nil {
		return "", err
	}
	return out.Text, nil
}

func (s *ContentService) draftMock(task *model.Task) string {
	return fmt.Sprintf("%s\n\nThis is a %s draft (%s) prepared for review. Replace it with the final copy before approval.",
		task.Topic, task.Style, lengthGuides[task.Length])
}

// List returns tasks newest first
func (s *ContentService) List(ctx context.Context, limit int) ([]*model.Task, error) {
	return s.store.ListTasks(ctx, limit)
}

func (s *ContentService) Get(ctx context.Context, taskID string) (*model.Task, error) {
	task, err := s.store.GetTask(ctx, taskID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrTaskNotFound
	}
	return task, err
}

// Update saves a manual edit as a new version
func (s *ContentService) Update(ctx context.Context, taskID string, req *model.ContentUpdateRequest) (*model.Task, error) {
	if _, err := s.Get(ctx, taskID); err != nil {
		return nil, err
	}

	editor := req.Editor
	if editor == "" {
		editor = "staff"
	}
	if err := s.store.AddVersion(ctx, &model.TaskVersion{
		ID:        newID("ver"),
		TaskID:    taskID,
		Content:   req.Content,
		CreatedBy: editor,
	}); err != nil {
		return nil, err
	}

	return s.store.UpdateTask(ctx, taskID, func(t *model.Task) {
		t.Content = req.Content
	})
}

func (s *ContentService) Versions(ctx context.Context, taskID string) ([]*model.TaskVersion, error) {
	if _, err := s.Get(ctx, taskID); err != nil {
		return nil, err
	}
	return s.store.ListVersions(ctx, taskID)
}

// Approve unlocks media generation for a task
func (s *ContentService) Approve(ctx context.Context, taskID string) (*model.Task, error) {
	task, err := s.store.UpdateTask(ctx, taskID, func(t *model.Task) {
		if !t.Status.Launchable() {
			t.Status = model.TaskStatusApproved
		}
	})
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, err
	}
	log.Printf("[Content] Approved %s", taskID)
	return task, nil
}

// newID returns prefix_ followed by 12 hex characters
func newID(prefix string) string {
	return prefix + "_" + strings.ReplaceAll(uuid.New().String(), "-", "")[:12]
}
