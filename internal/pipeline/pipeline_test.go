package pipeline

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"recscribe/internal/objectstore"
	"recscribe/internal/recordings"
	"recscribe/internal/speech"
	"recscribe/internal/worker"
)

type fakeRecognizer struct {
	registered  []string
	callbackURL string
	audio       string
	contentType string
	registerErr error
	createErr   error
}

func (f *fakeRecognizer) RegisterCallback(ctx context.Context, callbackURL string) error {
	f.registered = append(f.registered, callbackURL)
	return f.registerErr
}

func (f *fakeRecognizer) CreateJob(ctx context.Context, callbackURL string, audio io.Reader, contentType string) (*speech.Job, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	b, _ := io.ReadAll(audio)
	f.callbackURL, f.audio, f.contentType = callbackURL, string(b), contentType
	return &speech.Job{ID: "job-1", Status: "waiting"}, nil
}

type fakeConverter struct{ err error }

func (f fakeConverter) ConvertToOgg(ctx context.Context, audio []byte) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	return append([]byte("OggS:"), audio...), nil
}

type fakeInvalidator struct{ keys []string }

func (f *fakeInvalidator) Invalidate(ctx context.Context, key string) { f.keys = append(f.keys, key) }

const results = `{"results":[{"speaker_labels":[{"from":0.2,"speaker":1}],"results":[
{"alternatives":[{"transcript":"hi ","timestamps":[["hi",0.2,0.5]]}]}]}]}`

func newTestPipeline(rec *fakeRecognizer, conv Converter) (*Pipeline, *objectstore.MemoryStore, *fakeInvalidator) {
	store := objectstore.NewMemoryStore(map[string]*objectstore.Object{
		"20240305/recordings/My_File.wav":   {Data: []byte("RIFF")},
		"20240305/results/My_File.wav.json": {Data: []byte(results)},
	})
	inv := &fakeInvalidator{}
	p := New(store, rec, conv, inv, "https://desk.example/")
	p.now = func() time.Time { return time.Date(2024, 3, 6, 12, 0, 0, 0, time.Local) }
	return p, store, inv
}

func TestProcessAudio(t *testing.T) {
	rec := &fakeRecognizer{}
	p, _, inv := newTestPipeline(rec, fakeConverter{})

	if err := p.Handle(context.Background(), worker.Job{Kind: recordings.KindAudio, Key: "20240305/recordings/My_File.wav"}); err != nil {
		t.Fatalf("Handle audio: %v", err)
	}
	want := "https://desk.example/callback/My_File.wav/results"
	if len(rec.registered) != 1 || rec.registered[0] != want {
		t.Fatalf("unexpected registration %v", rec.registered)
	}
	if rec.callbackURL != want || rec.audio != "OggS:RIFF" || rec.contentType != "audio/ogg" {
		t.Fatalf("unexpected job submission %+v", rec)
	}
	if len(inv.keys) != 1 || inv.keys[0] != "20240305/recordings/My_File.wav" {
		t.Fatalf("recording listing not invalidated: %v", inv.keys)
	}
}

func TestProcessAudioContinuesWhenRegistrationFails(t *testing.T) {
	rec := &fakeRecognizer{registerErr: errors.New("status 400")}
	p, _, _ := newTestPipeline(rec, fakeConverter{})
	job, err := p.ProcessAudio(context.Background(), "20240305/recordings/My_File.wav")
	if err != nil || job.ID != "job-1" {
		t.Fatalf("expected job despite registration failure, got %v %v", job, err)
	}
}

func TestProcessAudioErrors(t *testing.T) {
	ctx := context.Background()

	p, _, _ := newTestPipeline(&fakeRecognizer{}, fakeConverter{})
	if _, err := p.ProcessAudio(ctx, "20240305/recordings/missing.wav"); !errors.Is(err, objectstore.ErrNoObject) {
		t.Fatalf("expected ErrNoObject, got %v", err)
	}

	p, _, _ = newTestPipeline(&fakeRecognizer{}, fakeConverter{err: errors.New("bad codec")})
	if _, err := p.ProcessAudio(ctx, "20240305/recordings/My_File.wav"); err == nil || !strings.Contains(err.Error(), "bad codec") {
		t.Fatalf("expected convert error, got %v", err)
	}

	p, _, _ = newTestPipeline(&fakeRecognizer{createErr: errors.New("status 500")}, fakeConverter{})
	if _, err := p.ProcessAudio(ctx, "20240305/recordings/My_File.wav"); err == nil {
		t.Fatalf("expected create job error")
	}

	p, _, _ = newTestPipeline(&fakeRecognizer{}, fakeConverter{})
	p.callbackHost = ""
	if _, err := p.ProcessAudio(ctx, "20240305/recordings/My_File.wav"); !errors.Is(err, ErrNoCallbackHost) {
		t.Fatalf("expected ErrNoCallbackHost, got %v", err)
	}
}

func TestProcessResults(t *testing.T) {
	p, store, inv := newTestPipeline(&fakeRecognizer{}, fakeConverter{})
	ctx := context.Background()

	if err := p.Handle(ctx, worker.Job{Kind: recordings.KindResults, Key: "20240305/results/My_File.wav.json"}); err != nil {
		t.Fatalf("Handle results: %v", err)
	}
	csv, err := store.Get(ctx, "20240306/clean/My_File.wav.csv")
	if err != nil {
		t.Fatalf("csv not written: %v", err)
	}
	if want := "speaker,transcript,start_time,end_time\n1,hi ,0.2,0.5\n"; string(csv) != want {
		t.Fatalf("unexpected csv %q", csv)
	}
	if len(inv.keys) != 1 || inv.keys[0] != "20240306/clean/My_File.wav.csv" {
		t.Fatalf("listing not invalidated: %v", inv.keys)
	}
}

func TestHandleUnknownKind(t *testing.T) {
	p, _, _ := newTestPipeline(&fakeRecognizer{}, fakeConverter{})
	if err := p.Handle(context.Background(), worker.Job{Key: "x"}); !errors.Is(err, worker.ErrUnsupportedJob) {
		t.Fatalf("expected ErrUnsupportedJob, got %v", err)
	}
}
