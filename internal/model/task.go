package model

import "time"

// TaskStatus is the lifecycle state of a content task
type TaskStatus string

const (
	TaskStatusDraft           TaskStatus = "draft"
	TaskStatusReviewing       TaskStatus = "reviewing"
	TaskStatusApproved        TaskStatus = "approved"
	TaskStatusGeneratingVoice TaskStatus = "generating_voice"
	TaskStatusGeneratingVideo TaskStatus = "generating_video"
	TaskStatusCompleted       TaskStatus = "completed"
	TaskStatusFailed          TaskStatus = "failed"
)

// Launchable reports whether media jobs may be started against a task in this status.
// The generating_* markers are set by the backend after approval.
func (s TaskStatus) Launchable() bool {
	switch s {
	case TaskStatusApproved, TaskStatusGeneratingVoice, TaskStatusGeneratingVideo, TaskStatusCompleted:
		return true
	}
	return false
}

// Content styles
type ContentStyle string

const (
	StylePress     ContentStyle = "press"
	StyleSpeech    ContentStyle = "speech"
	StyleFacebook  ContentStyle = "facebook"
	StyleInstagram ContentStyle = "instagram"
	StylePoster    ContentStyle = "poster"
	StyleFormal    ContentStyle = "formal"
)

// Content lengths
type ContentLength string

const (
	LengthShort  ContentLength = "short"
	LengthMedium ContentLength = "medium"
	LengthLong   ContentLength = "long"
)

// Task is the content draft that anchors a pipeline run
type Task struct {
	ID        string     `json:"id"`
	Status    TaskStatus `json:"status"`
	Topic     string     `json:"topic"`
	Style     string     `json:"style"`
	Length    string     `json:"length"`
	Content   string     `json:"content,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at,omitempty"`
}

// TaskVersion is one saved revision of a task's copy
type TaskVersion struct {
	ID        string    `json:"id"`
	TaskID    string    `json:"task_id"`
	Version   int       `json:"version"`
	Content   string    `json:"content"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}

// ContentRequest represents the request to generate a content draft
type ContentRequest struct {
	Topic  string `json:"topic" validate:"required"`
	Style  string `json:"style" validate:"required,oneof=press speech facebook instagram poster formal"`
	Length string `json:"length" validate:"required,oneof=short medium long"`
}

// ContentUpdateRequest represents a manual edit of a draft
type ContentUpdateRequest struct {
	Content string `json:"content" validate:"required"`
	Editor  string `json:"editor"`
}

// GenerateResponse is returned after a draft was generated
type GenerateResponse struct {
	Success bool   `json:"success"`
	TaskID  string `json:"task_id"`
	Content string `json:"content"`
	Message string `json:"message"`
}

// TaskListResponse lists tasks newest first
type TaskListResponse struct {
	Success bool    `json:"success"`
	Tasks   []*Task `json:"tasks"`
	Total   int     `json:"total"`
}

// TaskResponse wraps a single task
type TaskResponse struct {
	Success bool  `json:"success"`
	Task    *Task `json:"task"`
}

// ApproveResponse acknowledges an approval
type ApproveResponse struct {
	Success bool   `json:"success"`
	OK      bool   `json:"ok"`
	TaskID  string `json:"task_id"`
	Message string `json:"message"`
}

// VersionListResponse lists the revisions of a task
type VersionListResponse struct {
	Success  bool           `json:"success"`
	Versions []*TaskVersion `json:"versions"`
}
