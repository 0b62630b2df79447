package client

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

type uploadFixture struct {
	presignStatus int
	storageStatus int
	storageBody   string

	mu          sync.Mutex
	presignForm map[string]string
	parts       []string
	values      map[string]string
	fileData    []byte
	presigns    int
}

func (f *uploadFixture) servers(t *testing.T) (*httptest.Server, *httptest.Server) {
	t.Helper()
	storage := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mr, err := r.MultipartReader()
		if err != nil {
			t.Errorf("storage post is not multipart: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		f.values = make(map[string]string)
		for {
			part, err := mr.NextPart()
			if err == io.EOF {
				break
			}
			if err != nil {
				t.Errorf("read part: %v", err)
				return
			}
			data, _ := io.ReadAll(part)
			f.parts = append(f.parts, part.FormName())
			if part.FormName() == "file" {
				f.fileData = data
			} else {
				f.values[part.FormName()] = string(data)
			}
		}
		w.WriteHeader(f.storageStatus)
		io.WriteString(w, f.storageBody)
	}))
	t.Cleanup(storage.Close)

	app := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/upload" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		_ = r.ParseForm()
		f.mu.Lock()
		f.presigns++
		f.presignForm = map[string]string{
			"file-name":  r.PostForm.Get("file-name"),
			"file-type":  r.PostForm.Get("file-type"),
			"csrf_token": r.PostForm.Get("csrf_token"),
		}
		f.mu.Unlock()
		if f.presignStatus != http.StatusOK {
			w.WriteHeader(f.presignStatus)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"url":"`+storage.URL+`/","fields":{"key":"`+r.PostForm.Get("file-name")+
			`","acl":"public-read","policy":"p0l1cy","Content-Type":"audio/x-wav"}}`)
	}))
	t.Cleanup(app.Close)
	return app, storage
}

func newTestSession(t *testing.T, serverURL string, data []byte, progress *[]Progress) *UploadSession {
	t.Helper()
	c, err := New(serverURL, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	c.SetCSRFToken("csrf-abc")
	file := &File{Name: "My File.wav", ContentType: "audio/x-wav", Size: int64(len(data)), Body: bytes.NewReader(data)}
	var mu sync.Mutex
	s := c.NewUploadSession(file, func(p Progress) {
		mu.Lock()
		*progress = append(*progress, p)
		mu.Unlock()
	})
	s.now = func() time.Time { return time.Date(2024, 3, 5, 15, 4, 0, 0, time.Local) }
	return s
}

func TestUploadSessionSuccess(t *testing.T) {
	fx := &uploadFixture{presignStatus: http.StatusOK, storageStatus: http.StatusNoContent}
	app, _ := fx.servers(t)
	data := bytes.Repeat([]byte("a"), 256*1024)

	var (
		mu       sync.Mutex
		progress []Progress
	)
	panels := NewPanels(nil)
	s := newTestSession(t, app.URL, data, &progress)
	s.onProgress = func(p Progress) {
		mu.Lock()
		progress = append(progress, p)
		mu.Unlock()
		panels.Observe(p)
	}

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if s.Key() != "20240305/recordings/My_File.wav" {
		t.Fatalf("unexpected key %q", s.Key())
	}
	if s.State() != Succeeded || s.Percent() != 100 {
		t.Fatalf("unexpected final state %s %d", s.State(), s.Percent())
	}

	mu.Lock()
	defer mu.Unlock()

	if len(progress) == 0 || progress[0].Percent != 0 || progress[0].State != RequestingPresign {
		t.Fatalf("first report must be 0 before any request: %+v", progress)
	}
	last := -1
	for _, p := range progress {
		if p.Percent < 0 || p.Percent > 100 {
			t.Fatalf("progress out of range: %+v", p)
		}
		if p.State == Uploading && p.Percent < last {
			t.Fatalf("progress decreased: %+v", progress)
		}
		if p.State == Uploading {
			last = p.Percent
		}
	}
	if final := progress[len(progress)-1]; final.State != Succeeded || final.Percent != 100 {
		t.Fatalf("unexpected final report %+v", final)
	}
	if panel, _ := panels.Visible(); panel != PanelSucceeded {
		t.Fatalf("expected succeeded panel, got %s", panel)
	}

	fx.mu.Lock()
	defer fx.mu.Unlock()
	if fx.presignForm["file-name"] != "20240305/recordings/My_File.wav" || fx.presignForm["file-type"] != "audio/x-wav" || fx.presignForm["csrf_token"] != "csrf-abc" {
		t.Fatalf("unexpected presign form %v", fx.presignForm)
	}
	if _, ok := fx.values["acl"]; ok {
		t.Fatalf("acl must not be sent to storage")
	}
	if fx.values["key"] != "20240305/recordings/My_File.wav" || fx.values["policy"] != "p0l1cy" {
		t.Fatalf("unexpected storage fields %v", fx.values)
	}
	if fx.parts[len(fx.parts)-1] != "file" {
		t.Fatalf("file must be the last part, got %v", fx.parts)
	}
	if !bytes.Equal(fx.fileData, data) {
		t.Fatalf("file data mismatch: %d bytes", len(fx.fileData))
	}
}

func TestUploadSessionStorageNetworkError(t *testing.T) {
	fx := &uploadFixture{presignStatus: http.StatusOK, storageStatus: http.StatusNoContent}
	app, storage := fx.servers(t)
	storage.Close()

	var progress []Progress
	panels := NewPanels(nil)
	s := newTestSession(t, app.URL, []byte("RIFF"), &progress)
	s.onProgress = panels.Observe

	if err := s.Start(context.Background()); err == nil {
		t.Fatalf("expected error")
	}
	if s.State() != Failed || s.Percent() != FailedProgress {
		t.Fatalf("expected failure sentinel, got %s %d", s.State(), s.Percent())
	}
	if panel, _ := panels.Visible(); panel != PanelFailed {
		t.Fatalf("expected only the failed panel, got %s", panel)
	}
}

func TestUploadSessionStorageRejects(t *testing.T) {
	fx := &uploadFixture{
		presignStatus: http.StatusOK,
		storageStatus: http.StatusForbidden,
		storageBody:   `<?xml version="1.0" encoding="UTF-8"?><Error><Code>AccessDenied</Code><Message>Policy expired</Message></Error>`,
	}
	app, _ := fx.servers(t)
	var progress []Progress
	s := newTestSession(t, app.URL, []byte("RIFF"), &progress)
	if err := s.Start(context.Background()); err == nil {
		t.Fatalf("expected error")
	}
	if s.Percent() != FailedProgress {
		t.Fatalf("expected failure sentinel, got %d", s.Percent())
	}
	for _, p := range progress {
		if p.State == Succeeded {
			t.Fatalf("rejected upload must never report success: %+v", progress)
		}
	}
}

func TestUploadSessionPresignFailure(t *testing.T) {
	fx := &uploadFixture{presignStatus: http.StatusForbidden}
	app, _ := fx.servers(t)
	var progress []Progress
	s := newTestSession(t, app.URL, []byte("RIFF"), &progress)
	if err := s.Start(context.Background()); err == nil {
		t.Fatalf("expected error")
	}
	if s.State() != Failed {
		t.Fatalf("expected failed, got %s", s.State())
	}
	fx.mu.Lock()
	defer fx.mu.Unlock()
	if len(fx.parts) != 0 {
		t.Fatalf("storage must not be contacted")
	}
}

func TestUploadSessionRunsOnce(t *testing.T) {
	fx := &uploadFixture{presignStatus: http.StatusOK, storageStatus: http.StatusNoContent}
	app, _ := fx.servers(t)
	var progress []Progress
	s := newTestSession(t, app.URL, []byte("RIFF"), &progress)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := s.Start(context.Background()); !errors.Is(err, ErrSessionBusy) {
		t.Fatalf("expected ErrSessionBusy, got %v", err)
	}
}

func TestUploadSessionWithoutFile(t *testing.T) {
	fx := &uploadFixture{presignStatus: http.StatusOK, storageStatus: http.StatusNoContent}
	app, _ := fx.servers(t)
	c, err := New(app.URL, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	called := false
	s := c.NewUploadSession(nil, func(Progress) { called = true })
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	fx.mu.Lock()
	defer fx.mu.Unlock()
	if called || fx.presigns != 0 || s.State() != Idle {
		t.Fatalf("session without a file must be a no-op")
	}
}

func TestFieldOrder(t *testing.T) {
	got := fieldOrder(map[string]string{"policy": "p", "key": "k", "Content-Type": "c", "x-amz-date": "d"})
	want := []string{"key", "Content-Type", "policy", "x-amz-date"}
	if len(got) != len(want) {
		t.Fatalf("got %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v want %v", got, want)
		}
	}
}
