// Package pipeline turns uploaded recordings into transcripts: audio is
// converted and sent for recognition, returned results are rendered to CSV.
package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"recscribe/internal/objectstore"
	"recscribe/internal/recordings"
	"recscribe/internal/speech"
	"recscribe/internal/transcript"
	"recscribe/internal/worker"
)

var ErrNoCallbackHost = errors.New("callback host is not configured")

type Recognizer interface {
	RegisterCallback(ctx context.Context, callbackURL string) error
	CreateJob(ctx context.Context, callbackURL string, audio io.Reader, contentType string) (*speech.Job, error)
}

type Converter interface {
	ConvertToOgg(ctx context.Context, audio []byte) ([]byte, error)
}

// Invalidator drops cached bucket listings after a write.
type Invalidator interface {
	Invalidate(ctx context.Context, key string)
}

type Pipeline struct {
	store        objectstore.Store
	recognizer   Recognizer
	converter    Converter
	listings     Invalidator
	callbackHost string
	now          func() time.Time
}

func New(store objectstore.Store, recognizer Recognizer, converter Converter, listings Invalidator, callbackHost string) *Pipeline {
	return &Pipeline{
		store:        store,
		recognizer:   recognizer,
		converter:    converter,
		listings:     listings,
		callbackHost: strings.TrimSuffix(callbackHost, "/"),
		now:          time.Now,
	}
}

// Handle routes a worker job to its stage.
func (p *Pipeline) Handle(ctx context.Context, job worker.Job) error {
	switch job.Kind {
	case recordings.KindAudio:
		_, err := p.ProcessAudio(ctx, job.Key)
		return err
	case recordings.KindResults:
		_, err := p.ProcessResults(ctx, job.Key)
		return err
	default:
		return fmt.Errorf("%w: %s", worker.ErrUnsupportedJob, job.Key)
	}
}

// CallbackURL is where recognition results for the recording at key are posted.
func (p *Pipeline) CallbackURL(key string) string {
	return fmt.Sprintf("%s/callback/%s/results", p.callbackHost, path.Base(key))
}

// ProcessAudio submits the recording at key for recognition.
// The recording's date listing is invalidated first so a fresh upload shows
// up in the browser even when recognition fails.
func (p *Pipeline) ProcessAudio(ctx context.Context, key string) (*speech.Job, error) {
	if p.listings != nil {
		p.listings.Invalidate(ctx, key)
	}
	if p.callbackHost == "" {
		return nil, ErrNoCallbackHost
	}
	audio, err := p.store.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("fetch recording: %w", err)
	}
	callbackURL := p.CallbackURL(key)
	entry := logrus.WithFields(logrus.Fields{"key": key, "callback_url": callbackURL})

	if err := p.recognizer.RegisterCallback(ctx, callbackURL); err != nil {
		// an already whitelisted callback keeps working, so the job is still submitted
		entry.WithError(err).Warn("failure registering callback")
	}

	ogg, err := p.converter.ConvertToOgg(ctx, audio)
	if err != nil {
		return nil, fmt.Errorf("convert recording: %w", err)
	}
	job, err := p.recognizer.CreateJob(ctx, callbackURL, bytes.NewReader(ogg), "audio/ogg")
	if err != nil {
		return nil, err
	}
	entry.WithField("job_id", job.ID).Info("recognition job submitted")
	return job, nil
}

// ProcessResults renders the results document at key into today's clean CSV
// and returns the CSV key.
func (p *Pipeline) ProcessResults(ctx context.Context, key string) (string, error) {
	doc, err := p.store.Get(ctx, key)
	if err != nil {
		return "", fmt.Errorf("fetch results: %w", err)
	}
	csv, err := transcript.CleanCSV(doc)
	if err != nil {
		return "", err
	}
	csvKey := recordings.CleanKeyForResults(key, p.now())
	if err := p.store.Put(ctx, csvKey, csv, "text/csv"); err != nil {
		return "", err
	}
	if p.listings != nil {
		p.listings.Invalidate(ctx, csvKey)
	}
	logrus.WithFields(logrus.Fields{"key": key, "csv": csvKey}).Info("transcript rendered")
	return csvKey, nil
}
