package service

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pais-staff/mediaflow/internal/client"
	"github.com/pais-staff/mediaflow/internal/config"
	"github.com/pais-staff/mediaflow/internal/model"
	"github.com/pais-staff/mediaflow/internal/store"
)

type fakeQueue struct {
	mu    sync.Mutex
	tasks []*asynq.Task
	err   error
}

func (q *fakeQueue) Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return nil, q.err
	}
	q.tasks = append(q.tasks, task)
	return &asynq.TaskInfo{ID: "q1", Type: task.Type(), Queue: MediaQueue}, nil
}

type fakeWriter struct {
	text string
	err  error
	in   client.CompletionInput
}

func (w *fakeWriter) Complete(ctx context.Context, in client.CompletionInput) (*client.Completion, error) {
	w.in = in
	if w.err != nil {
		return nil, w.err
	}
	return &client.Completion{Text: w.text}, nil
}

func (w *fakeWriter) IsConfigured() bool { return true }

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	mr := miniredis.RunT(t)
	rc := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rc.Close() })
	return store.New(rc, time.Hour)
}

func seedTask(t *testing.T, st *store.Store, id string, status model.TaskStatus, content string) {
	t.Helper()
	require.NoError(t, st.SaveTask(context.Background(), &model.Task{
		ID: id, Status: status, Topic: "park opening", Content: content, CreatedAt: time.Now(),
	}))
}

func TestContentGenerate_MockWhenUnconfigured(t *testing.T) {
	st := newTestStore(t)
	svc := NewContentService(st, client.NewGroqClient(&config.GroqConfig{}))
	ctx := context.Background()

	resp, err := svc.Generate(ctx, &model.ContentRequest{Topic: "park opening", Style: "press", Length: "short"})
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Regexp(t, `^task_[0-9a-f]{12}$`, resp.TaskID)
	assert.Contains(t, resp.Content, "park opening")

	task, err := svc.Get(ctx, resp.TaskID)
	require.NoError(t, err)
	assert.Equal(t, model.TaskStatusReviewing, task.Status)

	versions, err := svc.Versions(ctx, resp.TaskID)
	require.NoError(t, err)
	require.Len(t, versions, 1)
	assert.Equal(t, "ai", versions[0].CreatedBy)
}

func TestContentGenerate_UsesWriter(t *testing.T) {
	st := newTestStore(t)
	w := &fakeWriter{text: "Official copy"}
	svc := NewContentService(st, w)

	resp, err := svc.Generate(context.Background(), &model.ContentRequest{Topic: "bus routes", Style: "speech", Length: "long"})
	require.NoError(t, err)
	assert.Equal(t, "Official copy", resp.Content)
	assert.Contains(t, w.in.Prompt, "bus routes")
	assert.Contains(t, w.in.Prompt, "400 to 600 words")
}

func TestContentGenerate_WriterFailureMarksTaskFailed(t *testing.T) {
	st := newTestStore(t)
	svc := NewContentService(st, &fakeWriter{err: errors.New("quota")})
	ctx := context.Background()

	_, err := svc.Generate(ctx, &model.ContentRequest{Topic: "t", Style: "press", Length: "short"})
	require.Error(t, err)

	tasks, err := svc.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, model.TaskStatusFailed, tasks[0].Status)
}

func TestContentUpdateAndApprove(t *testing.T) {
	st := newTestStore(t)
	svc := NewContentService(st, nil)
	ctx := context.Background()
	seedTask(t, st, "task_1", model.TaskStatusReviewing, "v1")

	task, err := svc.Update(ctx, "task_1", &model.ContentUpdateRequest{Content: "edited", Editor: "amy"})
	require.NoError(t, err)
	assert.Equal(t, "edited", task.Content)

	versions, err := svc.Versions(ctx, "task_1")
	require.NoError(t, err)
	require.Len(t, versions, 1)
	assert.Equal(t, "amy", versions[0].CreatedBy)

	task, err = svc.Approve(ctx, "task_1")
	require.NoError(t, err)
	assert.Equal(t, model.TaskStatusApproved, task.Status)

	_, err = svc.Approve(ctx, "missing")
	assert.ErrorIs(t, err, ErrTaskNotFound)
	_, err = svc.Update(ctx, "missing", &model.ContentUpdateRequest{Content: "x"})
	assert.ErrorIs(t, err, ErrTaskNotFound)
}

func TestStartVoice_Preconditions(t *testing.T) {
	st := newTestStore(t)
	q := &fakeQueue{}
	svc := NewMediaService(st, q)
	ctx := context.Background()

	seedTask(t, st, "draft", model.TaskStatusReviewing, "copy")
	seedTask(t, st, "empty", model.TaskStatusApproved, "  ")

	_, err := svc.StartVoice(ctx, "missing")
	assert.ErrorIs(t, err, ErrTaskNotFound)
	_, err = svc.StartVoice(ctx, "draft")
	assert.ErrorIs(t, err, ErrTaskNotApproved)
	_, err = svc.StartVoice(ctx, "empty")
	assert.ErrorIs(t, err, ErrEmptyContent)
	assert.Empty(t, q.tasks)
}

func TestStartVoice_QueuesAndMarksTask(t *testing.T) {
	st := newTestStore(t)
	q := &fakeQueue{}
	svc := NewMediaService(st, q)
	ctx := context.Background()
	seedTask(t, st, "task_1", model.TaskStatusApproved, "copy")

	resp, err := svc.StartVoice(ctx, "task_1")
	require.NoError(t, err)
	assert.Equal(t, "task_1", resp.TaskID)
	assert.Equal(t, model.MediaKindVoice, resp.MediaType)
	assert.Equal(t, model.MediaStatusPending, resp.Status)

	require.Len(t, q.tasks, 1)
	assert.Equal(t, TaskTypeVoice, q.tasks[0].Type())
	assert.Contains(t, string(q.tasks[0].Payload()), resp.MediaID)

	status, err := svc.Status(ctx, "task_1")
	require.NoError(t, err)
	assert.Equal(t, model.TaskStatusGeneratingVoice, status.TaskStatus)
	require.Len(t, status.MediaRecords, 1)
	assert.Equal(t, resp.MediaID, status.MediaRecords[0].ID)
}

func TestStartVoice_EnqueueFailureFailsRecord(t *testing.T) {
	st := newTestStore(t)
	q := &fakeQueue{err: errors.New("redis down")}
	svc := NewMediaService(st, q)
	ctx := context.Background()
	seedTask(t, st, "task_1", model.TaskStatusApproved, "copy")

	_, err := svc.StartVoice(ctx, "task_1")
	require.Error(t, err)

	status, err := svc.Status(ctx, "task_1")
	require.NoError(t, err)
	assert.Equal(t, model.TaskStatusApproved, status.TaskStatus)
	require.Len(t, status.MediaRecords, 1)
	assert.Equal(t, model.MediaStatusFailed, status.MediaRecords[0].Status)
}

func TestStartVideo_UploadedAudioCreatesStandaloneTask(t *testing.T) {
	st := newTestStore(t)
	q := &fakeQueue{}
	svc := NewMediaService(st, q)
	ctx := context.Background()

	resp, err := svc.StartVideo(ctx, &model.VideoJobRequest{AudioPath: "uploads/audio/a.mp3", ImagePath: "uploads/image/i.png"})
	require.NoError(t, err)
	assert.Regexp(t, `^task_`, resp.TaskID)

	task, err := st.GetTask(ctx, resp.TaskID)
	require.NoError(t, err)
	assert.Equal(t, "uploaded audio", task.Topic)
	assert.Equal(t, model.TaskStatusGeneratingVideo, task.Status)
	assert.Contains(t, string(q.tasks[0].Payload()), "uploads/audio/a.mp3")
}

func TestStartVideo_TaskDoesNotWaitForVoice(t *testing.T) {
	st := newTestStore(t)
	q := &fakeQueue{}
	svc := NewMediaService(st, q)
	ctx := context.Background()
	seedTask(t, st, "task_1", model.TaskStatusApproved, "copy")

	_, err := svc.StartVoice(ctx, "task_1")
	require.NoError(t, err)
	_, err = svc.StartVideo(ctx, &model.VideoJobRequest{TaskID: "task_1", ImagePath: "i.png"})
	require.NoError(t, err)

	require.Len(t, q.tasks, 2)
	assert.Equal(t, TaskTypeVideo, q.tasks[1].Type())
	assert.NotContains(t, string(q.tasks[1].Payload()), "audioPath")
}

func TestStartCompose_DefaultsAndMissingInputs(t *testing.T) {
	st := newTestStore(t)
	q := &fakeQueue{}
	svc := NewMediaService(st, q)
	ctx := context.Background()
	seedTask(t, st, "task_1", model.TaskStatusApproved, "copy")

	_, err := svc.StartCompose(ctx, &model.ComposeJobRequest{TaskID: "task_1"})
	assert.ErrorIs(t, err, ErrMissingInput)

	for _, rec := range []*model.MediaJob{
		{ID: "m_voice", TaskID: "task_1", Kind: model.MediaKindVoice, Status: model.MediaStatusCompleted, FilePath: "v.mp3"},
		{ID: "m_video", TaskID: "task_1", Kind: model.MediaKindVideo, Status: model.MediaStatusCompleted, FilePath: "v.mp4"},
	} {
		require.NoError(t, st.CreateMedia(ctx, rec))
	}

	resp, err := svc.StartCompose(ctx, &model.ComposeJobRequest{TaskID: "task_1", AudioDelay: 0.5})
	require.NoError(t, err)
	assert.Equal(t, model.MediaKindComposed, resp.MediaType)
	payload := string(q.tasks[0].Payload())
	assert.Contains(t, payload, `"videoPath":"v.mp4"`)
	assert.Contains(t, payload, `"audioPath":"v.mp3"`)
	assert.Contains(t, payload, `"audioDelay":0.5`)
}

func TestWorkerTransitions_UpdateTaskStatus(t *testing.T) {
	st := newTestStore(t)
	svc := NewMediaService(st, &fakeQueue{})
	ctx := context.Background()
	seedTask(t, st, "task_1", model.TaskStatusApproved, "copy")

	voice, err := svc.StartVoice(ctx, "task_1")
	require.NoError(t, err)

	job, err := svc.MarkProcessing(ctx, voice.MediaID)
	require.NoError(t, err)
	assert.Equal(t, model.MediaStatusProcessing, job.Status)
	assert.NotNil(t, job.StartedAt)

	job, err = svc.Complete(ctx, voice.MediaID, "outputs/voice/task_1.mp3")
	require.NoError(t, err)
	assert.Equal(t, model.MediaStatusCompleted, job.Status)
	task, _ := st.GetTask(ctx, "task_1")
	assert.Equal(t, model.TaskStatusApproved, task.Status)

	video, err := svc.StartVideo(ctx, &model.VideoJobRequest{TaskID: "task_1", ImagePath: "i.png"})
	require.NoError(t, err)
	_, err = svc.Fail(ctx, video.MediaID, "provider refused")
	require.NoError(t, err)
	task, _ = st.GetTask(ctx, "task_1")
	assert.Equal(t, model.TaskStatusApproved, task.Status)

	_, err = svc.MarkProcessing(ctx, "media_missing")
	assert.ErrorIs(t, err, ErrMediaNotFound)
}

func TestParallelJobs_StatusOnlyMovesForward(t *testing.T) {
	ctx := context.Background()

	t.Run("video completes before voice", func(t *testing.T) {
		st := newTestStore(t)
		svc := NewMediaService(st, &fakeQueue{})
		seedTask(t, st, "task_1", model.TaskStatusApproved, "copy")

		voice, err := svc.StartVoice(ctx, "task_1")
		require.NoError(t, err)
		video, err := svc.StartVideo(ctx, &model.VideoJobRequest{TaskID: "task_1", ImagePath: "i.png"})
		require.NoError(t, err)

		_, err = svc.Complete(ctx, video.MediaID, "video/task_1.mp4")
		require.NoError(t, err)
		_, err = svc.Complete(ctx, voice.MediaID, "voice/task_1.mp3")
		require.NoError(t, err)

		task, _ := st.GetTask(ctx, "task_1")
		assert.Equal(t, model.TaskStatusCompleted, task.Status)
	})

	t.Run("voice completes while video runs", func(t *testing.T) {
		st := newTestStore(t)
		svc := NewMediaService(st, &fakeQueue{})
		seedTask(t, st, "task_1", model.TaskStatusApproved, "copy")

		voice, err := svc.StartVoice(ctx, "task_1")
		require.NoError(t, err)
		video, err := svc.StartVideo(ctx, &model.VideoJobRequest{TaskID: "task_1", ImagePath: "i.png"})
		require.NoError(t, err)
		_, err = svc.MarkProcessing(ctx, video.MediaID)
		require.NoError(t, err)

		_, err = svc.Complete(ctx, voice.MediaID, "voice/task_1.mp3")
		require.NoError(t, err)
		task, _ := st.GetTask(ctx, "task_1")
		assert.Equal(t, model.TaskStatusGeneratingVideo, task.Status)
	})

	t.Run("voice fails while video runs", func(t *testing.T) {
		st := newTestStore(t)
		svc := NewMediaService(st, &fakeQueue{})
		seedTask(t, st, "task_1", model.TaskStatusApproved, "copy")

		voice, err := svc.StartVoice(ctx, "task_1")
		require.NoError(t, err)
		video, err := svc.StartVideo(ctx, &model.VideoJobRequest{TaskID: "task_1", ImagePath: "i.png"})
		require.NoError(t, err)
		_, err = svc.MarkProcessing(ctx, video.MediaID)
		require.NoError(t, err)

		_, err = svc.Fail(ctx, voice.MediaID, "voice API error")
		require.NoError(t, err)
		task, _ := st.GetTask(ctx, "task_1")
		assert.Equal(t, model.TaskStatusGeneratingVideo, task.Status)

		_, err = svc.Complete(ctx, video.MediaID, "video/task_1.mp4")
		require.NoError(t, err)
		task, _ = st.GetTask(ctx, "task_1")
		assert.Equal(t, model.TaskStatusCompleted, task.Status)
	})

	t.Run("video fails then voice completes", func(t *testing.T) {
		st := newTestStore(t)
		svc := NewMediaService(st, &fakeQueue{})
		seedTask(t, st, "task_1", model.TaskStatusApproved, "copy")

		voice, err := svc.StartVoice(ctx, "task_1")
		require.NoError(t, err)
		video, err := svc.StartVideo(ctx, &model.VideoJobRequest{TaskID: "task_1", ImagePath: "i.png"})
		require.NoError(t, err)

		_, err = svc.Fail(ctx, video.MediaID, "provider refused")
		require.NoError(t, err)
		task, _ := st.GetTask(ctx, "task_1")
		assert.Equal(t, model.TaskStatusGeneratingVideo, task.Status)

		_, err = svc.Complete(ctx, voice.MediaID, "voice/task_1.mp3")
		require.NoError(t, err)
		task, _ = st.GetTask(ctx, "task_1")
		assert.Equal(t, model.TaskStatusApproved, task.Status)
	})

	t.Run("failure after completion keeps completed", func(t *testing.T) {
		st := newTestStore(t)
		svc := NewMediaService(st, &fakeQueue{})
		seedTask(t, st, "task_1", model.TaskStatusApproved, "copy")

		video, err := svc.StartVideo(ctx, &model.VideoJobRequest{TaskID: "task_1", ImagePath: "i.png"})
		require.NoError(t, err)
		_, err = svc.Complete(ctx, video.MediaID, "video/task_1.mp4")
		require.NoError(t, err)

		compose, err := svc.StartCompose(ctx, &model.ComposeJobRequest{TaskID: "task_1", AudioPath: "a.mp3"})
		require.NoError(t, err)
		_, err = svc.Fail(ctx, compose.MediaID, "ffmpeg execution failed")
		require.NoError(t, err)

		task, _ := st.GetTask(ctx, "task_1")
		assert.Equal(t, model.TaskStatusCompleted, task.Status)
	})
}

type memStorage struct {
	keys map[string]string
}

func (m *memStorage) Upload(ctx context.Context, key string, body io.Reader, contentType string) (string, error) {
	data, _ := io.ReadAll(body)
	m.keys[key] = string(data)
	return "https://cdn.test/" + key, nil
}
func (m *memStorage) Delete(ctx context.Context, key string) error { delete(m.keys, key); return nil }
func (m *memStorage) GetSignedURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	return "https://cdn.test/" + key + "?sig", nil
}
func (m *memStorage) GetPublicURL(key string) string { return "https://cdn.test/" + key }

func TestUpload_StoresUnderKindPrefix(t *testing.T) {
	storage := &memStorage{keys: map[string]string{}}
	svc := NewUploadService(storage, 1024)

	resp, err := svc.Upload(context.Background(), model.AssetKindAudio, "take.MP3", "audio/mpeg", 5, strings.NewReader("audio"))
	require.NoError(t, err)
	assert.Equal(t, model.AssetKindAudio, resp.Kind)
	assert.Regexp(t, `^https://cdn.test/uploads/audio/[A-Za-z0-9]+\.mp3$`, resp.Path)
	assert.Len(t, storage.keys, 1)
}

func TestUpload_Rejections(t *testing.T) {
	svc := NewUploadService(&memStorage{keys: map[string]string{}}, 10)
	ctx := context.Background()

	_, err := svc.Upload(ctx, model.AssetKindImage, "a.gif", "image/gif", 1, strings.NewReader("x"))
	assert.ErrorIs(t, err, ErrUnsupportedFile)

	_, err = svc.Upload(ctx, model.AssetKindAudio, "a.png", "image/png", 1, strings.NewReader("x"))
	assert.ErrorIs(t, err, ErrUnsupportedFile)

	_, err = svc.Upload(ctx, model.AssetKind("doc"), "a.txt", "text/plain", 1, strings.NewReader("x"))
	assert.ErrorIs(t, err, ErrUnsupportedFile)

	_, err = svc.Upload(ctx, model.AssetKindImage, "a.png", "image/png", 11, strings.NewReader("x"))
	assert.ErrorIs(t, err, ErrFileTooLarge)
}
