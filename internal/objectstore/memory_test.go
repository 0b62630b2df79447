package objectstore

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"
)

func TestMemoryStoreListWithDelimiter(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(nil)
	for _, key := range []string{
		"20240305/recordings/a.wav",
		"20240305/clean/a.wav.csv",
		"20240306/recordings/b.mp3",
		"README",
	} {
		if err := s.Put(ctx, key, []byte("x"), ""); err != nil {
			t.Fatalf("put %s: %v", key, err)
		}
	}

	top, err := s.List(ctx, "", "/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if want := []string{"20240305/", "20240306/"}; !reflect.DeepEqual(top.Prefixes, want) {
		t.Fatalf("prefixes: want %v got %v", want, top.Prefixes)
	}
	if want := []string{"README"}; !reflect.DeepEqual(top.Keys, want) {
		t.Fatalf("keys: want %v got %v", want, top.Keys)
	}

	day, err := s.List(ctx, "20240305/", "")
	if err != nil {
		t.Fatalf("list day: %v", err)
	}
	if want := []string{"20240305/clean/a.wav.csv", "20240305/recordings/a.wav"}; !reflect.DeepEqual(day.Keys, want) {
		t.Fatalf("day keys: want %v got %v", want, day.Keys)
	}
}

func TestMemoryStoreGetMissing(t *testing.T) {
	s := NewMemoryStore(nil)
	if _, err := s.Get(context.Background(), "nope"); !errors.Is(err, ErrNoObject) {
		t.Fatalf("expected ErrNoObject, got %v", err)
	}
	ok, err := s.Exists(context.Background(), "nope")
	if err != nil || ok {
		t.Fatalf("expected missing object, ok=%v err=%v", ok, err)
	}
}

func TestMemoryStorePresignPostIncludesACL(t *testing.T) {
	s := NewMemoryStore(nil)
	post, err := s.PresignPost(context.Background(), "20240305/recordings/a.wav", "audio/wav", time.Hour)
	if err != nil {
		t.Fatalf("presign: %v", err)
	}
	if post.Fields["key"] != "20240305/recordings/a.wav" || post.Fields["acl"] != "public-read" {
		t.Fatalf("unexpected fields %v", post.Fields)
	}
}
