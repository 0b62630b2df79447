package recordings

import (
	"errors"
	"testing"
	"time"
)

func TestStorageKey(t *testing.T) {
	day := time.Date(2024, time.March, 5, 23, 59, 0, 0, time.Local)
	if got := StorageKey("My File.wav", day); got != "20240305/recordings/My_File.wav" {
		t.Fatalf("unexpected key %q", got)
	}
	if got := StorageKey("a \t  b\nc.mp3", day); got != "20240305/recordings/a_b_c.mp3" {
		t.Fatalf("whitespace runs not collapsed: %q", got)
	}
}

func TestDerivedKeys(t *testing.T) {
	if got := ResultsKey("20240305/", "call.wav"); got != "20240305/results/call.wav.json" {
		t.Fatalf("results key %q", got)
	}
	if got := CleanKey("20240305/recordings/call.wav"); got != "20240305/clean/call.wav.csv" {
		t.Fatalf("clean key %q", got)
	}
	day := time.Date(2024, time.March, 6, 8, 0, 0, 0, time.UTC)
	if got := CleanKeyForResults("20240305/results/call.wav.json", day); got != "20240306/clean/call.wav.csv" {
		t.Fatalf("clean key for results %q", got)
	}
	if got := TodayResultsKey("call.wav", day); got != "20240306/results/call.wav.json" {
		t.Fatalf("today results key %q", got)
	}
}

func TestClassify(t *testing.T) {
	cases := map[string]Kind{
		"20240305/recordings/a.wav":     KindAudio,
		"20240305/recordings/a.MP3":     KindAudio,
		"20240305/results/a.wav.json":   KindResults,
		"20240305/other/a.json":         KindIgnored,
		"20240305/clean/a.wav.csv":      KindIgnored,
		"20240305/recordings/notes.txt": KindIgnored,
	}
	for key, want := range cases {
		if got := Classify(key); got != want {
			t.Errorf("Classify(%q) = %q, want %q", key, got, want)
		}
	}
}

func TestAudioContentType(t *testing.T) {
	if got := AudioContentType("a.wav"); got != "audio/x-wav" {
		t.Fatalf("wav type %q", got)
	}
	if got := AudioContentType("a.mp3"); got != "audio/mp3" {
		t.Fatalf("mp3 type %q", got)
	}
}

func TestValidateRecordingKey(t *testing.T) {
	if err := ValidateRecordingKey("20240305/recordings/My_File.wav"); err != nil {
		t.Fatalf("expected valid key: %v", err)
	}
	for _, key := range []string{
		"recordings/a.wav",
		"20241305/recordings/a.wav",
		"20240305/results/a.wav",
		"20240305/recordings/a.txt",
		"20240305/recordings/../a.wav",
	} {
		if err := ValidateRecordingKey(key); !errors.Is(err, ErrInvalidKey) {
			t.Errorf("ValidateRecordingKey(%q) = %v, want ErrInvalidKey", key, err)
		}
	}
}
