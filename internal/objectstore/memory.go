package objectstore

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"
)

// Object is one entry of a MemoryStore.
type Object struct {
	Data        []byte
	ContentType string
}

// MemoryStore keeps objects in a map. It backs tests and local runs.
type MemoryStore struct {
	// PostURL is returned as the upload target by PresignPost.
	PostURL string
	ACL     string

	mu      sync.Mutex
	objects map[string]*Object
}

func NewMemoryStore(objects map[string]*Object) *MemoryStore {
	if objects == nil {
		objects = make(map[string]*Object)
	}
	return &MemoryStore{
		PostURL: "memory://bucket",
		ACL:     "public-read",
		objects: objects,
	}
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o := s.objects[key]
	if o == nil {
		return nil, ErrNoObject
	}
	return append([]byte(nil), o.Data...), nil
}

func (s *MemoryStore) Put(_ context.Context, key string, data []byte, contentType string) error {
	s.mu.Lock()
	s.objects[key] = &Object{Data: append([]byte(nil), data...), ContentType: contentType}
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Exists(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[key]
	return ok, nil
}

func (s *MemoryStore) List(_ context.Context, prefix, delimiter string) (*Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	listing := &Listing{}
	seen := make(map[string]struct{})
	for key := range s.objects {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		rest := key[len(prefix):]
		if delimiter != "" {
			if i := strings.Index(rest, delimiter); i >= 0 {
				p := prefix + rest[:i+len(delimiter)]
				if _, ok := seen[p]; !ok {
					seen[p] = struct{}{}
					listing.Prefixes = append(listing.Prefixes, p)
				}
				continue
			}
		}
		listing.Keys = append(listing.Keys, key)
	}
	sort.Strings(listing.Prefixes)
	sort.Strings(listing.Keys)
	return listing, nil
}

func (s *MemoryStore) SignedURL(_ context.Context, key string, ttl time.Duration) (string, error) {
	expires := time.Now().Add(ttl).Unix()
	return fmt.Sprintf("memory://bucket/%s?expires=%d", url.PathEscape(key), expires), nil
}

func (s *MemoryStore) PresignPost(_ context.Context, key, contentType string, _ time.Duration) (*PresignedPost, error) {
	fields := map[string]string{
		"key":          key,
		"Content-Type": contentType,
		"policy":       "memory-policy",
	}
	if s.ACL != "" {
		fields["acl"] = s.ACL
	}
	return &PresignedPost{URL: s.PostURL, Fields: fields}, nil
}
