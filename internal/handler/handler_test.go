package handler_test

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pais-staff/mediaflow/internal/config"
	"github.com/pais-staff/mediaflow/internal/model"
	"github.com/pais-staff/mediaflow/internal/service"
)

func TestHealth(t *testing.T) {
	ta := setupApp(t, highLimits)

	resp, err := doRequest(ta.app, http.MethodGet, "/health", "", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body := parseJSON(t, resp)
	assert.Equal(t, "ok", body["status"])
	assert.Contains(t, body, "services")
}

func TestAuthVerify(t *testing.T) {
	ta := setupApp(t, highLimits)

	resp, err := doRequest(ta.app, http.MethodGet, "/auth/verify", "", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, err = doRequest(ta.app, http.MethodGet, "/auth/verify", "", map[string]string{"Authorization": "Bearer wrong"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, err = doRequest(ta.app, http.MethodGet, "/auth/verify", "", map[string]string{"Authorization": "Bearer " + testStaffPassword})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "staff", resp.Header.Get("X-User-Id"))
}

func TestAPI_RequiresCredential(t *testing.T) {
	ta := setupApp(t, highLimits)

	resp, err := doRequest(ta.app, http.MethodGet, "/api/staff/content/tasks", "", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "UNAUTHORIZED", errorCode(t, resp))
}

func TestContentGenerate(t *testing.T) {
	ta := setupApp(t, highLimits)

	resp := doAuthRequest(t, ta.app, http.MethodPost, "/api/staff/content/generate",
		`{"topic":"night market","style":"facebook","length":"medium"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := parseJSON(t, resp)
	assert.Equal(t, true, body["success"])
	assert.Regexp(t, `^task_[0-9a-f]{12}$`, body["task_id"])
	assert.Contains(t, body["content"], "night market")
}

func TestContentGenerate_Validation(t *testing.T) {
	ta := setupApp(t, highLimits)

	cases := map[string]string{
		"empty topic":   `{"topic":"   ","style":"press","length":"short"}`,
		"unknown style": `{"topic":"x","style":"tweet","length":"short"}`,
		"bad length":    `{"topic":"x","style":"press","length":"epic"}`,
		"not json":      `topic=x`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			resp := doAuthRequest(t, ta.app, http.MethodPost, "/api/staff/content/generate", body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Equal(t, "VALIDATION_ERROR", errorCode(t, resp))
		})
	}
}

func TestContentLifecycle(t *testing.T) {
	ta := setupApp(t, highLimits)
	id := createTask(t, ta.app)

	resp := doAuthRequest(t, ta.app, http.MethodGet, "/api/staff/content/task/"+id, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	task := parseJSON(t, resp)["task"].(map[string]interface{})
	assert.Equal(t, "reviewing", task["status"])

	resp = doAuthRequest(t, ta.app, http.MethodPut, "/api/staff/content/task/"+id, `{"content":"Final copy."}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	task = parseJSON(t, resp)["task"].(map[string]interface{})
	assert.Equal(t, "Final copy.", task["content"])

	resp = doAuthRequest(t, ta.app, http.MethodGet, "/api/staff/content/task/"+id+"/versions", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	versions := parseJSON(t, resp)["versions"].([]interface{})
	require.Len(t, versions, 2)
	latest := versions[len(versions)-1].(map[string]interface{})
	assert.Equal(t, "Staff", latest["created_by"])

	resp = doAuthRequest(t, ta.app, http.MethodPost, "/api/staff/content/task/"+id+"/approve", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	approve := parseJSON(t, resp)
	assert.Equal(t, true, approve["success"])
	assert.Equal(t, id, approve["task_id"])

	resp = doAuthRequest(t, ta.app, http.MethodGet, "/api/staff/content/tasks?limit=10", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 1, parseJSON(t, resp)["total"])
}

func TestContent_NotFound(t *testing.T) {
	ta := setupApp(t, highLimits)

	resp := doAuthRequest(t, ta.app, http.MethodGet, "/api/staff/content/task/task_missing", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = doAuthRequest(t, ta.app, http.MethodPost, "/api/staff/content/task/task_missing/approve", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "NOT_FOUND", errorCode(t, resp))
}

func TestListTasks_RejectsBadLimit(t *testing.T) {
	ta := setupApp(t, highLimits)

	resp := doAuthRequest(t, ta.app, http.MethodGet, "/api/staff/content/tasks?limit=0", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestVoice_RequiresApproval(t *testing.T) {
	ta := setupApp(t, highLimits)
	id := createTask(t, ta.app)

	resp := doAuthRequest(t, ta.app, http.MethodPost, "/api/staff/media/voice/"+id, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Empty(t, ta.queue.enqueued())

	resp = doAuthRequest(t, ta.app, http.MethodPost, "/api/staff/media/voice/task_missing", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestVoice_QueuesJob(t *testing.T) {
	ta := setupApp(t, highLimits)
	id := createTask(t, ta.app)
	doAuthRequest(t, ta.app, http.MethodPost, "/api/staff/content/task/"+id+"/approve", "")

	resp := doAuthRequest(t, ta.app, http.MethodPost, "/api/staff/media/voice/"+id, "")
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	body := parseJSON(t, resp)
	assert.Equal(t, id, body["task_id"])
	assert.Equal(t, "voice", body["media_type"])
	assert.Equal(t, "pending", body["status"])
	assert.Equal(t, []string{service.TaskTypeVoice}, ta.queue.enqueued())

	resp = doAuthRequest(t, ta.app, http.MethodGet, "/api/staff/media/status/"+id, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	status := parseJSON(t, resp)
	assert.Equal(t, "generating_voice", status["task_status"])
	records := status["media_records"].([]interface{})
	require.Len(t, records, 1)
	assert.Equal(t, body["media_id"], records[0].(map[string]interface{})["id"])
}

func TestVideo_Validation(t *testing.T) {
	ta := setupApp(t, highLimits)

	cases := map[string]string{
		"neither source": `{"image_path":"uploads/image/a.png"}`,
		"both sources":   `{"task_id":"task_1","audio_path":"a.mp3","image_path":"i.png"}`,
		"no image":       `{"audio_path":"a.mp3"}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			resp := doAuthRequest(t, ta.app, http.MethodPost, "/api/staff/media/video", body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
	assert.Empty(t, ta.queue.enqueued())
}

func TestVideo_FromUploadedAudio(t *testing.T) {
	ta := setupApp(t, highLimits)

	resp := doAuthRequest(t, ta.app, http.MethodPost, "/api/staff/media/video",
		`{"audio_path":"https://cdn.example/a.mp3","image_path":"https://cdn.example/i.png"}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	body := parseJSON(t, resp)
	taskID := body["task_id"].(string)
	assert.Regexp(t, `^task_`, taskID)
	assert.Equal(t, "video", body["media_type"])
	assert.Equal(t, []string{service.TaskTypeVideo}, ta.queue.enqueued())

	task, err := ta.store.GetTask(context.Background(), taskID)
	require.NoError(t, err)
	assert.Equal(t, model.TaskStatusGeneratingVideo, task.Status)
}

func TestCompose_MissingInputs(t *testing.T) {
	ta := setupApp(t, highLimits)
	id := createTask(t, ta.app)
	doAuthRequest(t, ta.app, http.MethodPost, "/api/staff/content/task/"+id+"/approve", "")

	resp := doAuthRequest(t, ta.app, http.MethodPost, "/api/staff/media/compose", `{"task_id":"`+id+`"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = doAuthRequest(t, ta.app, http.MethodPost, "/api/staff/media/compose",
		`{"task_id":"`+id+`","video_path":"v.mp4","audio_path":"a.mp3","music_path":"m.mp3","music_volume":1.5}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "VALIDATION_ERROR", errorCode(t, resp))

	resp = doAuthRequest(t, ta.app, http.MethodPost, "/api/staff/media/compose",
		`{"task_id":"`+id+`","video_path":"v.mp4","audio_path":"a.mp3","audio_delay":0.5,"music_path":"m.mp3"}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, "composed", parseJSON(t, resp)["media_type"])
	assert.Equal(t, []string{service.TaskTypeCompose}, ta.queue.enqueued())
}

func TestUpload(t *testing.T) {
	ta := setupApp(t, highLimits)

	resp := doUpload(t, ta.app, "image", "face.png", "image/png", []byte("png-bytes"))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	body := parseJSON(t, resp)
	assert.Equal(t, "image", body["kind"])
	assert.True(t, strings.HasSuffix(body["path"].(string), ".png"))
	assert.Contains(t, body["path"], "uploads/image/")
}

func TestUpload_Rejections(t *testing.T) {
	ta := setupApp(t, highLimits)

	resp := doUpload(t, ta.app, "image", "notes.txt", "text/plain", []byte("hi"))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = doUpload(t, ta.app, "audio", "big.mp3", "audio/mpeg", make([]byte, 2048))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = doUpload(t, ta.app, "video", "clip.mp4", "video/mp4", []byte("x"))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestContent_RateLimited(t *testing.T) {
	ta := setupApp(t, config.RateLimitConfig{ContentPerMin: 2, MediaPerHour: 10, UploadPerHour: 10})

	for i := 0; i < 2; i++ {
		resp := doAuthRequest(t, ta.app, http.MethodGet, "/api/staff/content/tasks", "")
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}

	resp := doAuthRequest(t, ta.app, http.MethodGet, "/api/staff/content/tasks", "")
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))
}
