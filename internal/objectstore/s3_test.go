package objectstore

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"recscribe/internal/config"
)

func newTestS3(t *testing.T, handler http.HandlerFunc) *S3 {
	t.Helper()
	t.Setenv("AWS_CONFIG_FILE", "/nonexistent")
	t.Setenv("AWS_SHARED_CREDENTIALS_FILE", "/nonexistent")
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	s, err := NewS3(context.Background(), config.StorageConfig{
		Bucket:          "recs",
		Region:          "us-east-1",
		Endpoint:        srv.URL,
		AccessKeyID:     "AKIDEXAMPLE",
		SecretAccessKey: "secret",
		UsePathStyle:    true,
		ACL:             "public-read",
	})
	if err != nil {
		t.Fatalf("NewS3: %v", err)
	}
	return s
}

func TestS3GetMissingObject(t *testing.T) {
	s := newTestS3(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>The specified key does not exist.</Message></Error>`))
	})
	if _, err := s.Get(context.Background(), "20240305/results/a.wav.json"); !errors.Is(err, ErrNoObject) {
		t.Fatalf("expected ErrNoObject, got %v", err)
	}
	ok, err := s.Exists(context.Background(), "20240305/results/a.wav.json")
	if err != nil || ok {
		t.Fatalf("expected missing object, ok=%v err=%v", ok, err)
	}
}

func TestS3ListWithDelimiter(t *testing.T) {
	var query string
	s := newTestS3(t, func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/xml")
		_, _ = w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?>
<ListBucketResult xmlns="http://s3.amazonaws.com/doc/2006-03-01/">
  <Name>recs</Name><Prefix></Prefix><KeyCount>2</KeyCount><MaxKeys>1000</MaxKeys><Delimiter>/</Delimiter><IsTruncated>false</IsTruncated>
  <Contents><Key>README</Key><Size>1</Size></Contents>
  <CommonPrefixes><Prefix>20240305/</Prefix></CommonPrefixes>
</ListBucketResult>`))
	})
	listing, err := s.List(context.Background(), "", "/")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(listing.Prefixes) != 1 || listing.Prefixes[0] != "20240305/" {
		t.Fatalf("unexpected prefixes %v", listing.Prefixes)
	}
	if len(listing.Keys) != 1 || listing.Keys[0] != "README" {
		t.Fatalf("unexpected keys %v", listing.Keys)
	}
	if !strings.Contains(query, "delimiter=%2F") {
		t.Fatalf("delimiter not sent: %s", query)
	}
}

func TestS3PresignPost(t *testing.T) {
	s := newTestS3(t, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("presigning must not call the bucket: %s %s", r.Method, r.URL)
	})
	post, err := s.PresignPost(context.Background(), "20240305/recordings/My_File.wav", "audio/wav", time.Hour)
	if err != nil {
		t.Fatalf("PresignPost: %v", err)
	}
	if !strings.Contains(post.URL, "recs") {
		t.Fatalf("url does not name the bucket: %s", post.URL)
	}
	for _, field := range []string{"key", "policy", "Content-Type", "acl"} {
		if post.Fields[field] == "" {
			t.Fatalf("missing field %s in %v", field, post.Fields)
		}
	}
	if post.Fields["key"] != "20240305/recordings/My_File.wav" || post.Fields["Content-Type"] != "audio/wav" {
		t.Fatalf("unexpected fields %v", post.Fields)
	}

	url, err := s.SignedURL(context.Background(), "20240305/recordings/My_File.wav", time.Hour)
	if err != nil {
		t.Fatalf("SignedURL: %v", err)
	}
	if !strings.Contains(url, "X-Amz-Signature=") || !strings.Contains(url, "X-Amz-Expires=3600") {
		t.Fatalf("unexpected signed url %s", url)
	}
}
