// Package library browses the recordings bucket and edits transcripts.
package library

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"recscribe/internal/models"
	"recscribe/internal/objectstore"
	"recscribe/internal/recordings"
	"recscribe/internal/redis"
	"recscribe/internal/transcript"
)

const (
	listingCachePrefix = "library:list:"
	datesCacheKey      = "library:dates"
)

var (
	ErrNotFound      = errors.New("transcript not found")
	ErrInvalidPrefix = errors.New("prefix is required")
)

// Options tunes URL signing and listing caching.
type Options struct {
	URLTTL   time.Duration
	CacheTTL time.Duration
}

// Library reads recordings and transcripts out of the object store.
// Listings are cached in redis when a client is provided.
type Library struct {
	store    objectstore.Store
	cache    *redis.Client
	urlTTL   time.Duration
	cacheTTL time.Duration
}

func New(store objectstore.Store, cache *redis.Client, opts Options) *Library {
	if opts.URLTTL <= 0 {
		opts.URLTTL = time.Hour
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = time.Minute
	}
	return &Library{store: store, cache: cache, urlTTL: opts.URLTTL, cacheTTL: opts.CacheTTL}
}

// Dates lists the top-level date prefixes, like "20240305/".
func (l *Library) Dates(ctx context.Context) ([]string, error) {
	listing, err := l.list(ctx, datesCacheKey, "", "/")
	if err != nil {
		return nil, err
	}
	return listing.Prefixes, nil
}

// Recordings lists every recording under prefix with signed playback URLs
// and, when present, the rendered transcript.
func (l *Library) Recordings(ctx context.Context, prefix string) ([]models.Recording, error) {
	if strings.TrimSpace(prefix) == "" {
		return nil, ErrInvalidPrefix
	}
	listing, err := l.list(ctx, listingCachePrefix+prefix, prefix, "")
	if err != nil {
		return nil, err
	}

	existing := make(map[string]struct{}, len(listing.Keys))
	for _, k := range listing.Keys {
		existing[k] = struct{}{}
	}

	out := make([]models.Recording, 0)
	for _, key := range listing.Keys {
		if strings.HasSuffix(key, "/") || !recordings.IsRecording(key) {
			continue
		}
		name := path.Base(key)
		audioURL, err := l.store.SignedURL(ctx, key, l.urlTTL)
		if err != nil {
			return nil, err
		}
		rec := models.Recording{
			Key:         key,
			Name:        name,
			AudioURL:    audioURL,
			ContentType: recordings.AudioContentType(name),
		}
		csvKey := recordings.CleanKey(key)
		if _, ok := existing[csvKey]; ok {
			rec.TranscriptCSV = path.Base(csvKey)
			if rec.TranscriptURL, err = l.store.SignedURL(ctx, csvKey, l.urlTTL); err != nil {
				return nil, err
			}
		}
		_, rec.Editable = existing[recordings.ResultsKey(recordings.DateOf(key), name)]
		out = append(out, rec)
	}
	return out, nil
}

// Editor loads the snippets of the transcript for recording under prefix.
func (l *Library) Editor(ctx context.Context, prefix, recording string) (*models.Editor, error) {
	if prefix == "" || recording == "" || strings.Contains(recording, "/") {
		return nil, ErrInvalidPrefix
	}
	key := recordings.ResultsKey(prefix, recording)
	doc, err := l.getDocument(ctx, key)
	if err != nil {
		return nil, err
	}
	snippets, err := transcript.Snippets(doc)
	if err != nil {
		return nil, err
	}
	audioKey := path.Join(strings.TrimSuffix(prefix, "/"), "recordings", recording)
	audioURL, err := l.store.SignedURL(ctx, audioKey, l.urlTTL)
	if err != nil {
		return nil, err
	}
	return &models.Editor{
		TranscriptKey: key,
		Recording:     recording,
		AudioURL:      audioURL,
		AudioType:     recordings.AudioContentType(recording),
		Snippets:      snippets,
	}, nil
}

// SaveEdits replaces the transcript text of every result in order. It
// reports false without touching the store when results is empty.
func (l *Library) SaveEdits(ctx context.Context, transcriptKey string, results []string) (bool, error) {
	if !recordings.IsResults(transcriptKey) {
		return false, fmt.Errorf("%w: %q is not a results document", recordings.ErrInvalidKey, transcriptKey)
	}
	if len(results) == 0 {
		return false, nil
	}
	doc, err := l.getDocument(ctx, transcriptKey)
	if err != nil {
		return false, err
	}
	edited, err := transcript.ApplyEdits(doc, results)
	if err != nil {
		return false, err
	}
	if err := l.store.Put(ctx, transcriptKey, edited, "application/json"); err != nil {
		return false, err
	}
	l.Invalidate(ctx, transcriptKey)
	return true, nil
}

// StoreResults writes a recognition callback payload under today's results folder.
func (l *Library) StoreResults(ctx context.Context, audioKey string, payload []byte, now time.Time) (string, error) {
	if audioKey == "" || strings.Contains(audioKey, "/") {
		return "", fmt.Errorf("%w: %q", recordings.ErrInvalidKey, audioKey)
	}
	if !gjson.ValidBytes(payload) {
		return "", transcript.ErrMalformed
	}
	key := recordings.TodayResultsKey(audioKey, now)
	if err := l.store.Put(ctx, key, payload, "application/json"); err != nil {
		return "", err
	}
	l.Invalidate(ctx, key)
	return key, nil
}

// Invalidate drops cached listings that could contain key.
func (l *Library) Invalidate(ctx context.Context, key string) {
	date := recordings.DateOf(key)
	if err := l.cache.Del(ctx, datesCacheKey, listingCachePrefix+date, listingCachePrefix+date+"/"); err != nil {
		logrus.WithError(err).WithField("key", key).Warn("listing cache invalidation failed")
	}
}

func (l *Library) getDocument(ctx context.Context, key string) ([]byte, error) {
	doc, err := l.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, objectstore.ErrNoObject) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, err
	}
	return doc, nil
}

func (l *Library) list(ctx context.Context, cacheKey, prefix, delimiter string) (*objectstore.Listing, error) {
	if raw, err := l.cache.Get(ctx, cacheKey); err == nil {
		var cached objectstore.Listing
		if err := json.Unmarshal([]byte(raw), &cached); err == nil {
			return &cached, nil
		}
	} else if !errors.Is(err, redis.ErrCacheMiss) {
		logrus.WithError(err).Debug("listing cache read failed")
	}

	listing, err := l.store.List(ctx, prefix, delimiter)
	if err != nil {
		return nil, err
	}
	if l.cache.Enabled() {
		if data, err := json.Marshal(listing); err == nil {
			if err := l.cache.Set(ctx, cacheKey, data, l.cacheTTL); err != nil {
				logrus.WithError(err).Debug("listing cache write failed")
			}
		}
	}
	return listing, nil
}
