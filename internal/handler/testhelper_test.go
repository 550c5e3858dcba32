package handler_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/pais-staff/mediaflow/internal/auth"
	"github.com/pais-staff/mediaflow/internal/client"
	"github.com/pais-staff/mediaflow/internal/config"
	"github.com/pais-staff/mediaflow/internal/handler"
	"github.com/pais-staff/mediaflow/internal/middleware"
	"github.com/pais-staff/mediaflow/internal/service"
	"github.com/pais-staff/mediaflow/internal/store"
	ws "github.com/pais-staff/mediaflow/internal/websocket"
)

const testStaffPassword = "staff-pass-for-tests"

type queue struct {
	mu    sync.Mutex
	types []string
}

func (q *queue) Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.types = append(q.types, task.Type())
	return &asynq.TaskInfo{ID: fmt.Sprintf("q%d", len(q.types)), Type: task.Type()}, nil
}

func (q *queue) enqueued() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]string(nil), q.types...)
}

// testApp holds the app plus the pieces tests inspect
type testApp struct {
	app   *fiber.App
	queue *queue
	store *store.Store
}

// setupApp builds the same app as cmd/server with unconfigured providers,
// miniredis for storage and a recording queue in place of asynq.
func setupApp(t *testing.T, limits config.RateLimitConfig) *testApp {
	t.Helper()

	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { redisClient.Close() })

	storage, err := client.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	st := store.New(redisClient, time.Hour)
	q := &queue{}
	validate := validator.New()
	authenticator := auth.NewAuthenticator(testStaffPassword, "", nil)

	app := fiber.New(fiber.Config{BodyLimit: 4 * 1024 * 1024})
	handler.SetupRoutes(app, handler.Routes{
		Content:   handler.NewContentHandler(service.NewContentService(st, client.NewGroqClient(&config.GroqConfig{})), validate),
		Media:     handler.NewMediaHandler(service.NewMediaService(st, q), validate),
		Upload:    handler.NewUploadHandler(service.NewUploadService(storage, 1024)),
		Auth:      handler.NewAuthHandler(authenticator),
		Hub:       ws.NewHub(),
		AuthMW:    middleware.NewAuthMiddleware(authenticator).Authenticate(),
		Limiter:   middleware.NewRateLimiter(redisClient),
		RateLimit: limits,
		Services:  map[string]bool{"groq": false, "auth": true},
	})

	return &testApp{app: app, queue: q, store: st}
}

// highLimits keeps the rate limiter out of the way
var highLimits = config.RateLimitConfig{ContentPerMin: 10000, MediaPerHour: 10000, UploadPerHour: 10000}

func doRequest(app *fiber.App, method, path, body string, headers map[string]string) (*http.Response, error) {
	var bodyReader io.Reader
	if body != "" {
		bodyReader = strings.NewReader(body)
	}

	req, err := http.NewRequest(method, path, bodyReader)
	if err != nil {
		return nil, err
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return app.Test(req, -1)
}

func doAuthRequest(t *testing.T, app *fiber.App, method, path, body string) *http.Response {
	t.Helper()
	resp, err := doRequest(app, method, path, body, map[string]string{
		"Authorization": "Bearer " + testStaffPassword,
	})
	require.NoError(t, err)
	return resp
}

func doUpload(t *testing.T, app *fiber.App, kind, filename, contentType string, data []byte) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, filename))
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, "/api/upload/"+kind, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+testStaffPassword)

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func parseJSON(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var result map[string]interface{}
	require.NoError(t, json.Unmarshal(b, &result), "body: %s", string(b))
	return result
}

func errorCode(t *testing.T, resp *http.Response) string {
	t.Helper()
	body := parseJSON(t, resp)
	detail, _ := body["error"].(map[string]interface{})
	code, _ := detail["code"].(string)
	return code
}

// createTask drafts a task through the API and returns its id
func createTask(t *testing.T, app *fiber.App) string {
	t.Helper()
	resp := doAuthRequest(t, app, http.MethodPost, "/api/staff/content/generate",
		`{"topic":"riverside park opening","style":"press","length":"short"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	id, _ := parseJSON(t, resp)["task_id"].(string)
	require.NotEmpty(t, id)
	return id
}
