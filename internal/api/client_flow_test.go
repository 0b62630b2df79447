package api

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/tidwall/gjson"

	"recscribe/internal/client"
)

// storageStub accepts presigned posts the way S3 does and records the form.
type storageStub struct {
	mu     sync.Mutex
	fields map[string]string
	file   string
	auth   string
}

func (s *storageStub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(1 << 20); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.auth = r.Header.Get("Authorization")
	s.fields = make(map[string]string)
	for k, v := range r.MultipartForm.Value {
		s.fields[k] = v[0]
	}
	if fh := r.MultipartForm.File["file"]; len(fh) == 1 {
		if f, err := fh[0].Open(); err == nil {
			data, _ := io.ReadAll(f)
			f.Close()
			s.file = string(data)
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func TestClientAgainstRouter(t *testing.T) {
	for _, mode := range []string{gin.TestMode, gin.ReleaseMode} {
		t.Run(mode, func(t *testing.T) {
			srv := newTestServer(t)
			prev := gin.Mode()
			gin.SetMode(mode)
			t.Cleanup(func() { gin.SetMode(prev) })

			stub := &storageStub{}
			storage := httptest.NewServer(stub)
			defer storage.Close()
			srv.store.PostURL = storage.URL

			app := httptest.NewServer(srv.router)
			defer app.Close()

			ctx := context.Background()
			c, err := client.New(app.URL, nil)
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			if err := c.Login(ctx, "editor", "pass123"); err != nil {
				t.Fatalf("Login: %v", err)
			}

			dates, err := c.Dates(ctx)
			if err != nil || len(dates) != 1 || dates[0] != "20240305/" {
				t.Fatalf("Dates: %v %v", dates, err)
			}

			body := "RIFFdata"
			upload := c.NewUploadSession(&client.File{
				Name:        "My File.wav",
				ContentType: "audio/x-wav",
				Size:        int64(len(body)),
				Body:        strings.NewReader(body),
			}, nil)
			if err := upload.Start(ctx); err != nil {
				t.Fatalf("upload: %v", err)
			}
			if upload.State() != client.Succeeded || !strings.HasSuffix(upload.Key(), "/recordings/My_File.wav") {
				t.Fatalf("unexpected upload state %v key %q", upload.State(), upload.Key())
			}
			stub.mu.Lock()
			if stub.fields["key"] != upload.Key() || stub.fields["Content-Type"] != "audio/x-wav" {
				t.Fatalf("unexpected storage fields %v", stub.fields)
			}
			if _, ok := stub.fields["acl"]; ok {
				t.Fatalf("acl must not reach storage")
			}
			if stub.file != body || stub.auth != "" {
				t.Fatalf("unexpected storage request file %q auth %q", stub.file, stub.auth)
			}
			stub.mu.Unlock()

			editor, err := c.Editor(ctx, "20240305", "a.wav")
			if err != nil || len(editor.Snippets) != 2 {
				t.Fatalf("Editor: %+v %v", editor, err)
			}
			if err := c.SubmitTranscript(ctx, editor.TranscriptKey, []string{"one", "two"}, nil); err != nil {
				t.Fatalf("SubmitTranscript: %v", err)
			}
			doc, _ := srv.store.Get(ctx, editor.TranscriptKey)
			if gjson.GetBytes(doc, "results.0.results.0.alternatives.0.transcript").String() != "one" {
				t.Fatalf("edit not persisted: %s", doc)
			}
			if keys := srv.jobs.submitted(); len(keys) != 1 || keys[0] != editor.TranscriptKey {
				t.Fatalf("expected csv regeneration job, got %v", keys)
			}
		})
	}
}
