package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fileforge/fileforge/internal/convert"
	"github.com/fileforge/fileforge/internal/dispatch"
	"github.com/fileforge/fileforge/internal/job"
	"github.com/fileforge/fileforge/internal/observability"
	"github.com/fileforge/fileforge/internal/runner"
)

type stubConverter struct{}

func (stubConverter) Convert(ctx context.Context, inputPath, targetFormat string, opts convert.Options) (*convert.Artifact, []string, error) {
	out := strings.TrimSuffix(inputPath, filepath.Ext(inputPath)) + "." + targetFormat
	if err := os.WriteFile(out, []byte("converted"), 0o644); err != nil {
		return nil, nil, err
	}
	return &convert.Artifact{Path: out, Format: targetFormat, SizeBytes: 9}, nil, nil
}

type testAPI struct {
	store  *job.MemoryStore
	runner *runner.Runner
	router http.Handler
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	store := job.NewMemoryStore()
	logger := observability.NopLogger()
	jobs := runner.New(store, convert.Registry{dispatch.FamilyImage: stubConverter{}}, logger, runner.Config{
		ArtifactDir:        t.TempDir(),
		JobTimeout:         5 * time.Second,
		MaxConcurrentJobs:  2,
		DownloadGraceDelay: 10 * time.Millisecond,
	})

	r := chi.NewRouter()
	r.Post("/api/convert", NewConvertHandler(logger, jobs, t.TempDir(), 1<<20).Convert)
	r.Get("/api/conversion/{id}", NewStatusHandler(logger, store).Status)
	r.Get("/api/download/{id}", NewDownloadHandler(logger, store, jobs).Download)
	r.Get("/api/conversions", NewRecentHandler(logger, store).Recent)

	return &testAPI{store: store, runner: jobs, router: r}
}

func multipartBody(t *testing.T, fileName string, fileBody []byte, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if fileName != "" {
		fw, err := mw.CreateFormFile("file", fileName)
		require.NoError(t, err)
		_, err = fw.Write(fileBody)
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, into any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(rec.Body).Decode(into))
}

func (a *testAPI) waitTerminal(t *testing.T, id string) *job.Job {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		j, err := a.store.Get(context.Background(), id)
		require.NoError(t, err)
		if j.Status.Terminal() {
			return j
		}
		select {
		case <-deadline:
			t.Fatalf("job %s never reached a terminal state", id)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestConvert_Accepted(t *testing.T) {
	api := newTestAPI(t)

	body, contentType := multipartBody(t, "photo.jpg", []byte("fake image"), map[string]string{
		"targetFormat": "png",
		"quality":      "high",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/convert", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	api.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp AcceptedDTO
	decodeBody(t, rec, &resp)
	assert.NotEmpty(t, resp.ConversionID)
	assert.Equal(t, "processing", resp.Status)

	cookies := rec.Result().Cookies()
	require.NotEmpty(t, cookies, "first contact mints a session cookie")
	assert.Equal(t, sessionCookie, cookies[0].Name)

	done := api.waitTerminal(t, resp.ConversionID)
	assert.Equal(t, job.StatusCompleted, done.Status)
	assert.Equal(t, "photo.jpg", done.OriginalFileName)
	assert.Equal(t, "jpg", done.OriginalFormat)
	assert.Equal(t, "png", done.TargetFormat)
}

func TestConvert_ValidationBeforeJobCreation(t *testing.T) {
	tests := []struct {
		name     string
		fileName string
		fields   map[string]string
	}{
		{name: "missing file", fileName: "", fields: map[string]string{"targetFormat": "png"}},
		{name: "missing target format", fileName: "photo.jpg", fields: map[string]string{}},
		{name: "malformed target format", fileName: "photo.jpg", fields: map[string]string{"targetFormat": "../png"}},
		{name: "bad quality", fileName: "photo.jpg", fields: map[string]string{"targetFormat": "png", "quality": "ultra"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := newTestAPI(t)

			body, contentType := multipartBody(t, tt.fileName, []byte("x"), tt.fields)
			req := httptest.NewRequest(http.MethodPost, "/api/convert", body)
			req.Header.Set("Content-Type", contentType)
			rec := httptest.NewRecorder()
			api.router.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			// Rejected submissions leave no job behind.
			jobs, err := api.store.ListBySession(context.Background(), "ignored", 10)
			require.NoError(t, err)
			assert.Empty(t, jobs)
		})
	}
}

func TestConvert_UploadTooLarge(t *testing.T) {
	api := newTestAPI(t)

	body, contentType := multipartBody(t, "big.jpg", bytes.Repeat([]byte("x"), 2<<20), map[string]string{
		"targetFormat": "png",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/convert", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	api.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestStatus_UnknownJob(t *testing.T) {
	api := newTestAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/api/conversion/no-such-id", nil)
	rec := httptest.NewRecorder()
	api.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStatus_ProcessingHasNoDownloadURL(t *testing.T) {
	api := newTestAPI(t)

	j := job.NewJob("s1", "doc.pdf", "pdf", "docx", 10, nil)
	require.NoError(t, api.store.Create(context.Background(), j))

	req := httptest.NewRequest(http.MethodGet, "/api/conversion/"+j.ID, nil)
	rec := httptest.NewRecorder()
	api.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var dto ConversionDTO
	decodeBody(t, rec, &dto)
	assert.Equal(t, "processing", dto.Status)
	assert.Empty(t, dto.DownloadURL)
	assert.Empty(t, dto.Error)
}

func TestStatus_CompletedProjection(t *testing.T) {
	api := newTestAPI(t)

	j := job.NewJob("s1", "report.pdf", "pdf", "docx", 10, nil)
	require.NoError(t, api.store.Create(context.Background(), j))
	_, err := api.store.Complete(context.Background(), j.ID, "/data/"+j.ID+"_report.docx", []string{"layout approximated"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/conversion/"+j.ID, nil)
	rec := httptest.NewRecorder()
	api.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var dto ConversionDTO
	decodeBody(t, rec, &dto)
	assert.Equal(t, "completed", dto.Status)
	assert.Equal(t, "/api/download/"+j.ID, dto.DownloadURL)
	assert.Equal(t, "report.docx", dto.FileName)
	assert.Equal(t, []string{"layout approximated"}, dto.Warnings)
	assert.NotContains(t, rec.Body.String(), "/data/", "filesystem paths never leave the server")
}

func TestStatus_FailedProjection(t *testing.T) {
	api := newTestAPI(t)

	j := job.NewJob("s1", "clip.avi", "avi", "mp4", 10, nil)
	require.NoError(t, api.store.Create(context.Background(), j))
	_, err := api.store.Fail(context.Background(), j.ID, "ffmpeg failed: unsupported codec", nil)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/conversion/"+j.ID, nil)
	rec := httptest.NewRecorder()
	api.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var dto ConversionDTO
	decodeBody(t, rec, &dto)
	assert.Equal(t, "failed", dto.Status)
	assert.Contains(t, dto.Error, "unsupported codec")
	assert.Empty(t, dto.DownloadURL)
}

func TestDownload_OnlyCompletedJobsServe(t *testing.T) {
	api := newTestAPI(t)

	processing := job.NewJob("s1", "a.pdf", "pdf", "docx", 1, nil)
	require.NoError(t, api.store.Create(context.Background(), processing))

	failed := job.NewJob("s1", "b.pdf", "pdf", "docx", 1, nil)
	require.NoError(t, api.store.Create(context.Background(), failed))
	_, err := api.store.Fail(context.Background(), failed.ID, "boom", nil)
	require.NoError(t, err)

	for _, id := range []string{processing.ID, failed.ID, "unknown-id"} {
		req := httptest.NewRequest(http.MethodGet, "/api/download/"+id, nil)
		rec := httptest.NewRecorder()
		api.router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	}
}

func TestDownload_StreamsArtifactAndSchedulesRemoval(t *testing.T) {
	api := newTestAPI(t)

	artifact := filepath.Join(t.TempDir(), "out.png")
	require.NoError(t, os.WriteFile(artifact, []byte("png bytes"), 0o644))

	j := job.NewJob("s1", "photo.jpg", "jpg", "png", 10, nil)
	require.NoError(t, api.store.Create(context.Background(), j))
	_, err := api.store.Complete(context.Background(), j.ID, artifact, nil)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/download/"+j.ID, nil)
	rec := httptest.NewRecorder()
	api.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), `attachment`)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "photo.png")
	body, _ := io.ReadAll(rec.Body)
	assert.Equal(t, "png bytes", string(body))

	// Grace delay elapses: artifact reaped, download path cleared, and a
	// repeat download 404s while the status record survives.
	require.Eventually(t, func() bool {
		_, err := os.Stat(artifact)
		return os.IsNotExist(err)
	}, 2*time.Second, 10*time.Millisecond)

	rec = httptest.NewRecorder()
	api.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/download/"+j.ID, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	api.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/conversion/"+j.ID, nil))
	assert.Equal(t, http.StatusOK, rec.Code, "the job record outlives its artifact")
}

func TestDownload_RangeRequestDoesNotScheduleRemoval(t *testing.T) {
	api := newTestAPI(t)

	artifact := filepath.Join(t.TempDir(), "out.png")
	require.NoError(t, os.WriteFile(artifact, []byte("0123456789"), 0o644))

	j := job.NewJob("s1", "photo.jpg", "jpg", "png", 10, nil)
	require.NoError(t, api.store.Create(context.Background(), j))
	_, err := api.store.Complete(context.Background(), j.ID, artifact, nil)
	require.NoError(t, err)

	// A download manager fetching the first chunk must not start the
	// reap clock.
	req := httptest.NewRequest(http.MethodGet, "/api/download/"+j.ID, nil)
	req.Header.Set("Range", "bytes=0-4")
	rec := httptest.NewRecorder()
	api.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusPartialContent, rec.Code)
	body, _ := io.ReadAll(rec.Body)
	assert.Equal(t, "01234", string(body))

	time.Sleep(50 * time.Millisecond) // well past the 10ms grace delay
	_, err = os.Stat(artifact)
	require.NoError(t, err, "partial download must not reap the artifact")

	// The full fetch does.
	rec = httptest.NewRecorder()
	api.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/download/"+j.ID, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Eventually(t, func() bool {
		_, err := os.Stat(artifact)
		return os.IsNotExist(err)
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRecent_SessionScoped(t *testing.T) {
	api := newTestAPI(t)

	mine := job.NewJob("session-a", "a.pdf", "pdf", "docx", 1, nil)
	theirs := job.NewJob("session-b", "b.pdf", "pdf", "docx", 1, nil)
	require.NoError(t, api.store.Create(context.Background(), mine))
	require.NoError(t, api.store.Create(context.Background(), theirs))

	req := httptest.NewRequest(http.MethodGet, "/api/conversions", nil)
	req.AddCookie(&http.Cookie{Name: sessionCookie, Value: "session-a"})
	rec := httptest.NewRecorder()
	api.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Conversions []ConversionDTO `json:"conversions"`
	}
	decodeBody(t, rec, &resp)
	require.Len(t, resp.Conversions, 1)
	assert.Equal(t, mine.ID, resp.Conversions[0].ConversionID)
}

func TestRecent_FirstContactIsEmptyList(t *testing.T) {
	api := newTestAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/api/conversions", nil)
	rec := httptest.NewRecorder()
	api.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Conversions []ConversionDTO `json:"conversions"`
	}
	decodeBody(t, rec, &resp)
	assert.Empty(t, resp.Conversions)
}
