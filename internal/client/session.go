package client

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"recscribe/internal/objectstore"
	"recscribe/internal/recordings"
)

// FailedProgress is the percentage reported once an upload failed.
const FailedProgress = -1

type State int

const (
	Idle State = iota
	RequestingPresign
	Uploading
	Succeeded
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case RequestingPresign:
		return "requesting-presign"
	case Uploading:
		return "uploading"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Progress is delivered to the session callback on every change.
type Progress struct {
	State   State
	Percent int
}

var ErrSessionBusy = errors.New("upload session already started")

// File is the recording handed to an UploadSession.
type File struct {
	Name        string
	ContentType string
	Size        int64
	Body        io.Reader
}

// OpenFile opens path for upload. The caller closes the returned file.
func OpenFile(path string) (*File, io.Closer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	name := filepath.Base(path)
	return &File{
		Name:        name,
		ContentType: recordings.AudioContentType(name),
		Size:        info.Size(),
		Body:        f,
	}, f, nil
}

// UploadSession drives one presigned upload from Idle to Succeeded or Failed.
type UploadSession struct {
	client     *Client
	presignURL string
	file       *File
	onProgress func(Progress)
	now        func() time.Time

	mu      sync.Mutex
	state   State
	percent int
	key     string
}

// NewUploadSession prepares an upload of file. onProgress may be nil.
func (c *Client) NewUploadSession(file *File, onProgress func(Progress)) *UploadSession {
	return &UploadSession{
		client:     c,
		presignURL: c.baseURL + "/upload",
		file:       file,
		onProgress: onProgress,
		now:        time.Now,
	}
}

func (s *UploadSession) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *UploadSession) Percent() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.percent
}

// Key is the storage key computed when the session started.
func (s *UploadSession) Key() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.key
}

// Start runs the whole upload and blocks until it finishes. Without a file
// it does nothing. A session runs once; later calls return ErrSessionBusy.
func (s *UploadSession) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != Idle {
		s.mu.Unlock()
		return ErrSessionBusy
	}
	if s.file == nil {
		s.mu.Unlock()
		return nil
	}
	s.key = recordings.StorageKey(s.file.Name, s.now())
	key := s.key
	s.mu.Unlock()

	log := logrus.WithFields(logrus.Fields{"component": "upload", "key": key})
	s.report(RequestingPresign, 0)

	post, err := s.requestPresign(ctx, key)
	if err != nil {
		log.WithError(err).Warn("presign request failed")
		s.report(Failed, FailedProgress)
		return err
	}
	delete(post.Fields, "acl")

	s.report(Uploading, 0)
	if err := s.postFile(ctx, post, log); err != nil {
		log.WithError(err).Warn("storage upload failed")
		s.report(Failed, FailedProgress)
		return err
	}
	s.report(Succeeded, 100)
	log.Info("recording uploaded")
	return nil
}

func (s *UploadSession) requestPresign(ctx context.Context, key string) (*objectstore.PresignedPost, error) {
	form := url.Values{
		"file-name":  {key},
		"file-type":  {s.file.ContentType},
		"csrf_token": {s.client.CSRFToken()},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.presignURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	s.client.authorize(req)
	resp, err := s.client.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("presign: %w", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("presign: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("presign: %w", responseError(resp.StatusCode, data))
	}
	var post objectstore.PresignedPost
	if err := json.Unmarshal(data, &post); err != nil {
		return nil, fmt.Errorf("presign: decode response: %w", err)
	}
	if post.URL == "" {
		return nil, errors.New("presign: response has no url")
	}
	if post.Fields == nil {
		post.Fields = make(map[string]string)
	}
	return &post, nil
}

// postFile sends the fields followed by the file part. The envelope is
// written up front so the request has a known length and progress covers
// every byte of the body.
func (s *UploadSession) postFile(ctx context.Context, post *objectstore.PresignedPost, log *logrus.Entry) error {
	var head bytes.Buffer
	mw := multipart.NewWriter(&head)
	for _, name := range fieldOrder(post.Fields) {
		if err := mw.WriteField(name, post.Fields[name]); err != nil {
			return err
		}
	}
	if _, err := mw.CreateFormFile("file", s.file.Name); err != nil {
		return err
	}
	prefix := append([]byte(nil), head.Bytes()...)
	head.Reset()
	if err := mw.Close(); err != nil {
		return err
	}
	trailer := head.Bytes()

	total := int64(len(prefix)) + s.file.Size + int64(len(trailer))
	body := &progressReader{
		r:     io.MultiReader(bytes.NewReader(prefix), io.LimitReader(s.file.Body, s.file.Size), bytes.NewReader(trailer)),
		total: total,
		tick:  func(pct int) { s.report(Uploading, pct) },
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, post.URL, body)
	if err != nil {
		return err
	}
	req.ContentLength = total
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := s.client.http.Do(req)
	if err != nil {
		return fmt.Errorf("storage post: %w", err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	storageResponse(data, log)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("storage post: status %d", resp.StatusCode)
	}
	return nil
}

// report records the new state and notifies the callback outside the lock.
func (s *UploadSession) report(state State, pct int) {
	s.mu.Lock()
	if state == Uploading && s.state == Uploading && pct <= s.percent {
		s.mu.Unlock()
		return
	}
	s.state, s.percent = state, pct
	cb := s.onProgress
	s.mu.Unlock()
	if cb != nil {
		cb(Progress{State: state, Percent: pct})
	}
}

// fieldOrder puts key first, the rest sorted.
func fieldOrder(fields map[string]string) []string {
	names := make([]string, 0, len(fields))
	for name := range fields {
		if name != "key" {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	if _, ok := fields["key"]; ok {
		names = append([]string{"key"}, names...)
	}
	return names
}

type progressReader struct {
	r     io.Reader
	total int64
	sent  int64
	tick  func(int)
}

// Read reports at most 99 while bytes are in flight; 100 waits for the
// storage response.
func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 && p.total > 0 {
		p.sent += int64(n)
		pct := int(math.Round(float64(p.sent) * 100 / float64(p.total)))
		if pct > 99 {
			pct = 99
		}
		p.tick(pct)
	}
	return n, err
}

type s3Error struct {
	XMLName xml.Name `xml:"Error"`
	Code    string   `xml:"Code"`
	Message string   `xml:"Message"`
}

type postResponse struct {
	XMLName  xml.Name `xml:"PostResponse"`
	Location string   `xml:"Location"`
	Key      string   `xml:"Key"`
	ETag     string   `xml:"ETag"`
}

func storageResponse(data []byte, log *logrus.Entry) {
	if len(bytes.TrimSpace(data)) == 0 {
		return
	}
	var e s3Error
	if err := xml.Unmarshal(data, &e); err == nil {
		log.WithFields(logrus.Fields{"code": e.Code, "message": e.Message}).Warn("storage returned an error document")
		return
	}
	var ok postResponse
	if err := xml.Unmarshal(data, &ok); err == nil {
		log.WithField("location", ok.Location).Debug("storage accepted upload")
		return
	}
	log.Debug("unrecognised storage response body")
}
