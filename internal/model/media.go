package model

import "time"

// MediaKind identifies what a media job produces
type MediaKind string

const (
	MediaKindVoice    MediaKind = "voice"
	MediaKindVideo    MediaKind = "video"
	MediaKindComposed MediaKind = "composed"
)

// MediaStatus is the state of a media job
type MediaStatus string

const (
	MediaStatusPending    MediaStatus = "pending"
	MediaStatusProcessing MediaStatus = "processing"
	MediaStatusCompleted  MediaStatus = "completed"
	MediaStatusFailed     MediaStatus = "failed"
	MediaStatusTimedOut   MediaStatus = "timed_out" // client side only
)

// Terminal reports whether no further transitions can happen
func (s MediaStatus) Terminal() bool {
	switch s {
	case MediaStatusCompleted, MediaStatusFailed, MediaStatusTimedOut:
		return true
	}
	return false
}

// MediaJob is a single remote generation request tied to a task.
// On the backend it is the persisted media record; on the client the
// poller owns the Attempts/StartedAt bookkeeping.
type MediaJob struct {
	ID        string      `json:"id"`
	TaskID    string      `json:"task_id"`
	Kind      MediaKind   `json:"media_type"`
	Status    MediaStatus `json:"status"`
	FilePath  string      `json:"file_path,omitempty"`
	Error     string      `json:"error,omitempty"`
	Attempts  int         `json:"attempts,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
	StartedAt *time.Time  `json:"started_at,omitempty"`
	UpdatedAt *time.Time  `json:"updated_at,omitempty"`
}

// AssetKind classifies uploaded files
type AssetKind string

const (
	AssetKindImage AssetKind = "image"
	AssetKindAudio AssetKind = "audio"
)

// UploadedAsset is a file supplied by the upload collaborator
type UploadedAsset struct {
	Path string    `json:"path"`
	Kind AssetKind `json:"kind"`
}

// VideoJobRequest starts a video job; exactly one of TaskID/AudioPath is set
type VideoJobRequest struct {
	TaskID    string `json:"task_id,omitempty" validate:"required_without=AudioPath,excluded_with=AudioPath"`
	AudioPath string `json:"audio_path,omitempty" validate:"required_without=TaskID"`
	ImagePath string `json:"image_path" validate:"required"`
	Prompt    string `json:"prompt,omitempty"`
}

// ComposeJobRequest merges a finished video with a voice track
type ComposeJobRequest struct {
	TaskID     string  `json:"task_id" validate:"required"`
	VideoPath  string  `json:"video_path,omitempty"`
	AudioPath  string  `json:"audio_path,omitempty"`
	AudioDelay float64 `json:"audio_delay,omitempty" validate:"gte=-30,lte=30"`

	MusicPath   string  `json:"music_path,omitempty"`
	MusicVolume float64 `json:"music_volume,omitempty" validate:"gte=0,lte=1"`
}

// MediaResponse is returned when a media job was accepted
type MediaResponse struct {
	Success   bool        `json:"success"`
	TaskID    string      `json:"task_id"`
	MediaID   string      `json:"media_id"`
	MediaType MediaKind   `json:"media_type"`
	Status    MediaStatus `json:"status"`
	FilePath  string      `json:"file_path,omitempty"`
	Message   string      `json:"message"`
}

// MediaStatusResponse lists every media record of a task
type MediaStatusResponse struct {
	Success      bool        `json:"success"`
	TaskStatus   TaskStatus  `json:"task_status"`
	MediaRecords []*MediaJob `json:"media_records"`
}

// UploadResponse describes a stored upload
type UploadResponse struct {
	Path string    `json:"path"`
	Kind AssetKind `json:"kind"`
	Size int64     `json:"size"`
}

// MediaJobPayload is the asynq payload shared by the media workers
type MediaJobPayload struct {
	TaskID     string    `json:"taskId"`
	MediaID    string    `json:"mediaId"`
	Kind       MediaKind `json:"kind"`
	ImagePath  string    `json:"imagePath,omitempty"`
	AudioPath  string    `json:"audioPath,omitempty"`
	VideoPath  string    `json:"videoPath,omitempty"`
	Prompt     string    `json:"prompt,omitempty"`
	AudioDelay float64   `json:"audioDelay,omitempty"`

	MusicPath   string  `json:"musicPath,omitempty"`
	MusicVolume float64 `json:"musicVolume,omitempty"`
}

// JobRef identifies a launched media job. ID is the status-query key
// (the owning task id); MediaID pins the exact record when known.
type JobRef struct {
	ID      string    `json:"id"`
	MediaID string    `json:"media_id,omitempty"`
	Kind    MediaKind `json:"kind"`
}
