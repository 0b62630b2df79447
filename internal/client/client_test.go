package client

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestLoginKeepsSession(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/login", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "auth_token", Value: "tkn", Path: "/"})
		io.WriteString(w, `{"id":1,"username":"editor","csrf_token":"c5rf"}`)
	})
	mux.HandleFunc("/api/recordings", func(w http.ResponseWriter, r *http.Request) {
		if ck, err := r.Cookie("auth_token"); err != nil || ck.Value != "tkn" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.URL.Query().Get("prefix") == "" {
			io.WriteString(w, `{"prefixes":["20240305/"]}`)
			return
		}
		io.WriteString(w, `{"prefix_date":"20240305","recordings":[{"key":"20240305/recordings/a.wav","name":"a.wav","editable":true}]}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c, err := New(srv.URL+"/", nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := c.Dates(context.Background()); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized before login, got %v", err)
	}
	if err := c.Login(context.Background(), "editor", "pw"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if c.CSRFToken() != "c5rf" {
		t.Fatalf("csrf token not captured")
	}
	dates, err := c.Dates(context.Background())
	if err != nil || len(dates) != 1 || dates[0] != "20240305/" {
		t.Fatalf("Dates: %v %v", dates, err)
	}
	recs, err := c.Recordings(context.Background(), "20240305/")
	if err != nil || len(recs) != 1 || !recs[0].Editable {
		t.Fatalf("Recordings: %+v %v", recs, err)
	}
}

func TestLoginSendsBearerWhenCookiesAreSecure(t *testing.T) {
	var storageAuth string
	storage := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		storageAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer storage.Close()

	mux := http.NewServeMux()
	mux.HandleFunc("/api/login", func(w http.ResponseWriter, r *http.Request) {
		// plain http test server, so the jar drops these
		http.SetCookie(w, &http.Cookie{Name: "auth_token", Value: "tkn", Path: "/", Secure: true})
		io.WriteString(w, `{"id":1,"username":"editor","auth_token":"tkn","csrf_token":"c5rf"}`)
	})
	authorized := func(r *http.Request) bool {
		if _, err := r.Cookie("auth_token"); err == nil {
			return false
		}
		return r.Header.Get("Authorization") == "Bearer tkn"
	}
	mux.HandleFunc("/api/recordings", func(w http.ResponseWriter, r *http.Request) {
		if !authorized(r) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		io.WriteString(w, `{"prefixes":["20240305/"]}`)
	})
	mux.HandleFunc("/upload", func(w http.ResponseWriter, r *http.Request) {
		if !authorized(r) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		io.WriteString(w, `{"url":"`+storage.URL+`","fields":{"key":"20240305/recordings/a.wav"}}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c, err := New(srv.URL, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()
	if err := c.Login(ctx, "editor", "pw"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if _, err := c.Dates(ctx); err != nil {
		t.Fatalf("Dates with bearer token: %v", err)
	}
	file := &File{Name: "a.wav", ContentType: "audio/x-wav", Size: 4, Body: strings.NewReader("RIFF")}
	if err := c.NewUploadSession(file, nil).Start(ctx); err != nil {
		t.Fatalf("upload with bearer token: %v", err)
	}
	if storageAuth != "" {
		t.Fatalf("session token leaked to storage: %q", storageAuth)
	}
}

func TestNewRejectsBadURL(t *testing.T) {
	if _, err := New("not a url", nil); err == nil {
		t.Fatalf("expected error")
	}
}
