// Package events turns S3 object-created notifications into pipeline jobs.
package events

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"recscribe/internal/models"
	"recscribe/internal/recordings"
)

const testEvent = "s3:TestEvent"

var ErrMalformedEvent = errors.New("malformed s3 event")

// Enqueuer accepts object keys for processing.
type Enqueuer interface {
	Submit(key string) (models.JobStatus, error)
}

// ParseS3Event returns the decoded object keys of a notification. SNS
// envelopes are unwrapped and test events yield no keys.
func ParseS3Event(body []byte) ([]string, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: invalid json", ErrMalformedEvent)
	}
	doc := gjson.ParseBytes(body)
	if doc.Get("Type").String() == "Notification" && doc.Get("Message").Exists() {
		return ParseS3Event([]byte(doc.Get("Message").String()))
	}
	if doc.Get("Event").String() == testEvent {
		return nil, nil
	}
	records := doc.Get("Records")
	if !records.IsArray() {
		return nil, fmt.Errorf("%w: missing Records", ErrMalformedEvent)
	}

	var keys []string
	for _, rec := range records.Array() {
		if name := rec.Get("eventName").String(); name != "" && !strings.HasPrefix(name, "ObjectCreated:") {
			continue
		}
		raw := rec.Get("s3.object.key").String()
		if raw == "" {
			continue
		}
		key, err := url.QueryUnescape(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: key %q: %v", ErrMalformedEvent, raw, err)
		}
		keys = append(keys, key)
	}
	return keys, nil
}

// Intake classifies notified keys and submits the ones the pipeline handles.
type Intake struct {
	jobs Enqueuer
}

func NewIntake(jobs Enqueuer) *Intake {
	return &Intake{jobs: jobs}
}

// Handle parses body and enqueues each audio or results key. It stops at
// the first submit error so the caller can ask for redelivery.
func (in *Intake) Handle(body []byte) ([]models.JobStatus, error) {
	keys, err := ParseS3Event(body)
	if err != nil {
		return nil, err
	}
	var queued []models.JobStatus
	for _, key := range keys {
		if recordings.Classify(key) == recordings.KindIgnored {
			logrus.WithField("key", key).Debug("ignoring object")
			continue
		}
		status, err := in.jobs.Submit(key)
		if err != nil {
			return queued, fmt.Errorf("enqueue %s: %w", key, err)
		}
		queued = append(queued, status)
	}
	return queued, nil
}
