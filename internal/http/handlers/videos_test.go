package handlers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"adaptrix/internal/domain"
	"adaptrix/internal/lifecycle"
	"adaptrix/internal/middleware"
	"adaptrix/internal/processor"
	"adaptrix/internal/storage"
)

func TestVideosSubmitAccepted(t *testing.T) {
	videos := newFakeVideos()
	job := sampleJob()
	job.Status = domain.JobStatusProcessing
	job.ResultPath = nil
	videos.submitJob = job
	app := newTestApp(videos)

	payload := []byte("fake-mp4-bytes")
	body, ct := multipartUpload(t, "video/mp4", payload, map[string]string{"target_language": "es", "source_language": "en"})
	req := withUser(httptest.NewRequest(http.MethodPost, "/v1/videos", body), "")
	req.Header.Set("Content-Type", ct)
	req.Header.Set("Idempotency-Key", "click-1")
	rec := httptest.NewRecorder()

	app.VideosSubmit(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("Location") != "/v1/videos/"+testJobID {
		t.Fatalf("Location = %q", rec.Header().Get("Location"))
	}
	if len(videos.submits) != 1 {
		t.Fatalf("submits = %d, want 1", len(videos.submits))
	}
	call := videos.submits[0]
	if call.key != "click-1" || call.req.OwnerID != testOwner || call.req.Filename != "talk.mp4" {
		t.Fatalf("submit call = %+v", call)
	}
	if call.req.ContentType != "video/mp4" || call.req.Size != int64(len(payload)) || !bytes.Equal(call.body, payload) {
		t.Fatalf("file = %q %d %q", call.req.ContentType, call.req.Size, call.body)
	}
	if call.req.TargetLanguage != "es" || call.req.SourceLanguage != "en" {
		t.Fatalf("languages = %q/%q", call.req.TargetLanguage, call.req.SourceLanguage)
	}
	out := decode(t, rec)
	if out["id"] != testJobID || out["status"] != "processing" || out["title"] != "talk" {
		t.Fatalf("response = %v", out)
	}
	if out["source_url"] != "https://cdn.test/user-1/1700000000000-abc.mp4" {
		t.Fatalf("source_url = %v", out["source_url"])
	}
}

func TestVideosSubmitErrorMapping(t *testing.T) {
	tests := []struct {
		kind      lifecycle.Kind
		status    int
		retryable bool
		withJob   bool
	}{
		{kind: lifecycle.KindUnauthenticated, status: http.StatusUnauthorized},
		{kind: lifecycle.KindUnsupportedFileType, status: http.StatusUnsupportedMediaType},
		{kind: lifecycle.KindFileTooLarge, status: http.StatusRequestEntityTooLarge},
		{kind: lifecycle.KindMissingTargetLanguage, status: http.StatusBadRequest},
		{kind: lifecycle.KindUploadFailed, status: http.StatusBadGateway, retryable: true},
		{kind: lifecycle.KindJobCreateFailed, status: http.StatusInternalServerError, retryable: true},
		{kind: lifecycle.KindProcessingTriggerFailed, status: http.StatusBadGateway, retryable: true, withJob: true},
	}
	for _, tc := range tests {
		t.Run(string(tc.kind), func(t *testing.T) {
			videos := newFakeVideos()
			videos.submitErr = &lifecycle.Error{Kind: tc.kind, Message: "boom"}
			if tc.withJob {
				videos.submitJob = sampleJob()
			}
			app := newTestApp(videos)
			body, ct := multipartUpload(t, "video/mp4", []byte("x"), map[string]string{"target_language": "es"})
			req := withUser(httptest.NewRequest(http.MethodPost, "/v1/videos", body), "")
			req.Header.Set("Content-Type", ct)
			rec := httptest.NewRecorder()

			app.VideosSubmit(rec, req)

			if rec.Code != tc.status {
				t.Fatalf("status = %d, want %d", rec.Code, tc.status)
			}
			out := decode(t, rec)
			if code := errorCode(t, out); code != string(tc.kind) {
				t.Fatalf("code = %q", code)
			}
			retryable, _ := out["error"].(map[string]any)["retryable"].(bool)
			if retryable != tc.retryable {
				t.Fatalf("retryable = %v, want %v", retryable, tc.retryable)
			}
			if _, ok := out["job"]; ok != tc.withJob {
				t.Fatalf("job present = %v, want %v", ok, tc.withJob)
			}
			if tc.kind == lifecycle.KindUnauthenticated && out["redirect"] != middleware.SignInPath {
				t.Fatalf("redirect = %v", out["redirect"])
			}
		})
	}
}

func TestVideosSubmitBodyTooLarge(t *testing.T) {
	videos := newFakeVideos()
	app := newTestApp(videos)
	app.MaxUploadBytes = 16
	body, ct := multipartUpload(t, "video/mp4", make([]byte, 2<<20), map[string]string{"target_language": "es"})
	req := withUser(httptest.NewRequest(http.MethodPost, "/v1/videos", body), "")
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()

	app.VideosSubmit(rec, req)

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want 413", rec.Code)
	}
	if len(videos.submits) != 0 {
		t.Fatal("oversized body must not reach the controller")
	}
}

func TestVideosSubmitRequiresFile(t *testing.T) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("target_language", "es")
	_ = mw.Close()
	app := newTestApp(newFakeVideos())
	req := withUser(httptest.NewRequest(http.MethodPost, "/v1/videos", &buf), "")
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()

	app.VideosSubmit(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestVideosSubmitReplay(t *testing.T) {
	tests := []struct {
		name   string
		job    *domain.Job
		status int
	}{
		{name: "job exists", job: sampleJob(), status: http.StatusAccepted},
		{name: "first still uploading", status: http.StatusConflict},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			videos := newFakeVideos()
			videos.submitJob = tc.job
			videos.submitErr = lifecycle.ErrAlreadyStarted
			app := newTestApp(videos)
			body, ct := multipartUpload(t, "video/mp4", []byte("x"), map[string]string{"target_language": "es"})
			req := withUser(httptest.NewRequest(http.MethodPost, "/v1/videos", body), "")
			req.Header.Set("Content-Type", ct)
			req.Header.Set("Idempotency-Key", "click-1")
			rec := httptest.NewRecorder()

			app.VideosSubmit(rec, req)

			if rec.Code != tc.status {
				t.Fatalf("status = %d, want %d", rec.Code, tc.status)
			}
			if tc.job != nil && rec.Header().Get("Idempotent-Replayed") != "true" {
				t.Fatal("replayed response must be marked")
			}
		})
	}
}

func TestVideoGetAndList(t *testing.T) {
	other := sampleJob()
	other.ID = "0d9b1a2c-3e4f-4a5b-8c6d-7e8f9a0b1c2d"
	other.OwnerID = "user-2"
	app := newTestApp(newFakeVideos(sampleJob(), other))

	rec := httptest.NewRecorder()
	app.VideoGet(rec, withUser(httptest.NewRequest(http.MethodGet, "/", nil), testJobID))
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}
	out := decode(t, rec)
	if out["result_url"] != "https://processor.example.com/out.mp4" {
		t.Fatalf("result_url = %v", out["result_url"])
	}

	for _, id := range []string{other.ID, "not-a-uuid"} {
		rec = httptest.NewRecorder()
		app.VideoGet(rec, withUser(httptest.NewRequest(http.MethodGet, "/", nil), id))
		if rec.Code != http.StatusNotFound {
			t.Fatalf("get %s status = %d, want 404", id, rec.Code)
		}
	}

	rec = httptest.NewRecorder()
	app.VideosList(rec, withUser(httptest.NewRequest(http.MethodGet, "/", nil), ""))
	items, _ := decode(t, rec)["items"].([]any)
	if len(items) != 1 {
		t.Fatalf("items = %d, want 1", len(items))
	}
}

func TestVideoDeleteForgetsThumbnail(t *testing.T) {
	videos := newFakeVideos(sampleJob())
	app := newTestApp(videos)
	thumbs := app.Thumbnails.(*fakeThumbnails)

	rec := httptest.NewRecorder()
	app.VideoDelete(rec, withUser(httptest.NewRequest(http.MethodDelete, "/", nil), testJobID))

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if len(videos.deleted) != 1 || len(thumbs.forgotten) != 1 {
		t.Fatalf("deleted=%v forgotten=%v", videos.deleted, thumbs.forgotten)
	}
}

func TestVideoCancel(t *testing.T) {
	t.Run("active", func(t *testing.T) {
		videos := newFakeVideos(sampleJob())
		app := newTestApp(videos)
		rec := httptest.NewRecorder()
		app.VideoCancel(rec, withUser(httptest.NewRequest(http.MethodPost, "/", nil), testJobID))
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		if out := decode(t, rec); out["phase"] != "cancelled" {
			t.Fatalf("phase = %v", out["phase"])
		}
	})
	t.Run("no session", func(t *testing.T) {
		videos := newFakeVideos(sampleJob())
		videos.cancelErr = lifecycle.ErrNoActiveSession
		app := newTestApp(videos)
		rec := httptest.NewRecorder()
		app.VideoCancel(rec, withUser(httptest.NewRequest(http.MethodPost, "/", nil), testJobID))
		if rec.Code != http.StatusConflict {
			t.Fatalf("status = %d, want 409", rec.Code)
		}
		if code := errorCode(t, decode(t, rec)); code != "no_active_session" {
			t.Fatalf("code = %q", code)
		}
	})
}

func TestVideoProgress(t *testing.T) {
	videos := newFakeVideos(sampleJob())
	videos.progress = lifecycle.State{Phase: lifecycle.PhaseCompleted, JobID: testJobID, ResultRef: "results/out.mp4"}
	app := newTestApp(videos)

	rec := httptest.NewRecorder()
	app.VideoProgress(rec, withUser(httptest.NewRequest(http.MethodGet, "/", nil), testJobID))

	out := decode(t, rec)
	if out["phase"] != "completed" || out["result_url"] != "https://cdn.test/results/out.mp4" {
		t.Fatalf("progress = %v", out)
	}
	if _, ok := out["elapsed_seconds"]; !ok {
		t.Fatal("elapsed_seconds missing")
	}
}

func TestVideoThumbnail(t *testing.T) {
	app := newTestApp(newFakeVideos(sampleJob()))
	rec := httptest.NewRecorder()
	app.VideoThumbnail(rec, withUser(httptest.NewRequest(http.MethodGet, "/", nil), testJobID))
	if rec.Code != http.StatusOK || decode(t, rec)["thumbnail_url"] != "https://cdn.test/thumbnails/user-1/x.jpg" {
		t.Fatalf("status = %d", rec.Code)
	}

	app.Thumbnails.(*fakeThumbnails).err = errors.New("ffmpeg exited 1")
	rec = httptest.NewRecorder()
	app.VideoThumbnail(rec, withUser(httptest.NewRequest(http.MethodGet, "/", nil), testJobID))
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
}

func TestVideoRate(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		status int
	}{
		{name: "valid", body: `{"rating":3}`, status: http.StatusOK},
		{name: "out of range", body: `{"rating":4}`, status: http.StatusBadRequest},
		{name: "missing", body: `{}`, status: http.StatusBadRequest},
		{name: "malformed", body: `{`, status: http.StatusBadRequest},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			app := newTestApp(newFakeVideos(sampleJob()))
			fb := app.Feedback.(*fakeFeedback)
			rec := httptest.NewRecorder()
			req := withUser(httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(tc.body)), testJobID)
			app.VideoRate(rec, req)
			if rec.Code != tc.status {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tc.status, rec.Body.String())
			}
			if tc.status == http.StatusOK && (len(fb.saved) != 1 || fb.saved[0].VideoID != testJobID || fb.saved[0].UserID != testOwner) {
				t.Fatalf("saved = %+v", fb.saved)
			}
		})
	}
}

// memJobs is a JobRepository held in memory for handler tests that need the
// real controller.
type memJobs struct {
	mu   sync.Mutex
	seq  int
	jobs map[string]domain.Job
}

func (m *memJobs) Create(_ context.Context, job *domain.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	job.ID = fmt.Sprintf("job-%d", m.seq)
	job.Status = domain.JobStatusProcessing
	m.jobs[job.ID] = *job
	return nil
}

func (m *memJobs) UpdateStatus(context.Context, string, domain.StatusUpdate) error { return nil }

func (m *memJobs) GetByID(_ context.Context, jobID string) (*domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[jobID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &j, nil
}

func (m *memJobs) GetForOwner(ctx context.Context, jobID, ownerID string) (*domain.Job, error) {
	j, err := m.GetByID(ctx, jobID)
	if err != nil || j.OwnerID != ownerID {
		return nil, domain.ErrNotFound
	}
	return j, nil
}

func (m *memJobs) ListByOwner(context.Context, string) ([]domain.Job, error) { return nil, nil }
func (m *memJobs) Delete(context.Context, string, string) error              { return nil }
func (m *memJobs) SetThumbnail(context.Context, string, string) error        { return nil }
func (m *memJobs) PathReferenced(context.Context, string) (bool, error)      { return false, nil }

type acceptingStore struct{ fakeStore }

func (acceptingStore) Upload(_ context.Context, key string, r io.Reader, _ int64, _ string) (string, error) {
	_, err := io.Copy(io.Discard, r)
	return key, err
}

type switchTrigger struct {
	mu    sync.Mutex
	err   error
	calls int
}

func (s *switchTrigger) Trigger(context.Context, processor.TriggerRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.err
}

func (s *switchTrigger) set(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

func TestVideosSubmitRetryAfterTriggerFailure(t *testing.T) {
	trigger := &switchTrigger{err: errors.New("processor: 502")}
	var store storage.ObjectStore = acceptingStore{}
	ctrl, err := lifecycle.New(&memJobs{jobs: map[string]domain.Job{}}, store, trigger, zerolog.Nop(), lifecycle.DefaultConfig())
	if err != nil {
		t.Fatalf("lifecycle.New: %v", err)
	}
	t.Cleanup(ctrl.Close)
	app := newTestApp(newFakeVideos())
	app.Videos = ctrl

	post := func() *httptest.ResponseRecorder {
		body, ct := multipartUpload(t, "video/mp4", []byte("fake-mp4-bytes"), map[string]string{"target_language": "es"})
		req := withUser(httptest.NewRequest(http.MethodPost, "/v1/videos", body), "")
		req.Header.Set("Content-Type", ct)
		req.Header.Set("Idempotency-Key", "click-1")
		rec := httptest.NewRecorder()
		app.VideosSubmit(rec, req)
		return rec
	}

	rec := post()
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("first status = %d, want 502", rec.Code)
	}
	out := decode(t, rec)
	if code := errorCode(t, out); code != string(lifecycle.KindProcessingTriggerFailed) {
		t.Fatalf("code = %q", code)
	}
	if e := out["error"].(map[string]any); e["retryable"] != true {
		t.Fatalf("trigger failure must be retryable: %v", e)
	}

	trigger.set(nil)
	rec = post()
	if rec.Code != http.StatusAccepted {
		t.Fatalf("retry status = %d, want 202: %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("Idempotent-Replayed") != "" {
		t.Fatal("retry must run again, not replay the failed attempt")
	}
	if loc := rec.Header().Get("Location"); loc != "/v1/videos/job-2" {
		t.Fatalf("Location = %q, want the new job", loc)
	}
	trigger.mu.Lock()
	calls := trigger.calls
	trigger.mu.Unlock()
	if calls != 2 {
		t.Fatalf("trigger calls = %d, want 2", calls)
	}
}
