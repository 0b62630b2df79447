// Package recordings defines the bucket key layout shared by the server,
// the processing pipeline and the upload client.
//
//	<YYYYMMDD>/recordings/<file>        uploaded audio
//	<YYYYMMDD>/results/<file>.json      recognition results
//	<YYYYMMDD>/clean/<file>.csv         rendered transcript
package recordings

import (
	"errors"
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"
)

const (
	DateLayout   = "20060102"
	recordingDir = "recordings"
	resultsDir   = "results"
	cleanDir     = "clean"
)

// Kind classifies an object key for the processing pipeline.
type Kind string

const (
	KindIgnored Kind = ""
	KindAudio   Kind = "audio"
	KindResults Kind = "results"
)

var (
	whitespaceRun = regexp.MustCompile(`\s+`)
	recordingKey  = regexp.MustCompile(`^[0-9]{8}/recordings/[^/]+$`)
	audioExts     = map[string]struct{}{".wav": {}, ".mp3": {}}

	ErrInvalidKey = errors.New("invalid recording key")
)

// SanitizeFilename replaces every run of whitespace with a single underscore.
func SanitizeFilename(name string) string {
	return whitespaceRun.ReplaceAllString(name, "_")
}

// DatePrefix formats t in its own location.
func DatePrefix(t time.Time) string {
	return t.Format(DateLayout)
}

// StorageKey builds the upload key for filename on the local date of t.
func StorageKey(filename string, t time.Time) string {
	return path.Join(DatePrefix(t), recordingDir, SanitizeFilename(filename))
}

// ResultsKey is where recognition results for recording are stored under prefix.
func ResultsKey(prefix, recording string) string {
	return path.Join(strings.TrimSuffix(prefix, "/"), resultsDir, recording+".json")
}

// TodayResultsKey is where a callback payload for audioName lands on the date of t.
func TodayResultsKey(audioName string, t time.Time) string {
	return ResultsKey(DatePrefix(t), audioName)
}

// CleanKey maps a recording key to its transcript CSV key.
func CleanKey(recordingKey string) string {
	return strings.Replace(recordingKey, "/"+recordingDir+"/", "/"+cleanDir+"/", 1) + ".csv"
}

// CleanKeyForResults maps a results key to the CSV rendered on the date of t.
func CleanKeyForResults(resultsKey string, t time.Time) string {
	name := strings.TrimSuffix(path.Base(resultsKey), ".json")
	return path.Join(DatePrefix(t), cleanDir, name+".csv")
}

// IsRecording reports whether key lives in a recordings folder.
func IsRecording(key string) bool {
	return strings.Contains(key, "/"+recordingDir+"/")
}

// IsResults reports whether key is a recognition results document.
func IsResults(key string) bool {
	return strings.Contains(key, "/"+resultsDir+"/") && strings.HasSuffix(key, ".json")
}

// Classify decides which pipeline stage, if any, handles key.
func Classify(key string) Kind {
	lower := strings.ToLower(key)
	if _, ok := audioExts[path.Ext(lower)]; ok {
		return KindAudio
	}
	if strings.HasSuffix(lower, ".json") && strings.Contains(key, "/"+resultsDir+"/") {
		return KindResults
	}
	return KindIgnored
}

// AudioContentType returns the playback type of a recording file name.
func AudioContentType(name string) string {
	ext := strings.TrimPrefix(path.Ext(name), ".")
	if ext == "wav" {
		return "audio/x-wav"
	}
	return "audio/" + ext
}

// ValidateRecordingKey accepts only <YYYYMMDD>/recordings/<file.wav|file.mp3>.
func ValidateRecordingKey(key string) error {
	if !recordingKey.MatchString(key) {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	if _, err := time.Parse(DateLayout, key[:8]); err != nil {
		return fmt.Errorf("%w: bad date in %q", ErrInvalidKey, key)
	}
	if Classify(key) != KindAudio {
		return fmt.Errorf("%w: unsupported extension in %q", ErrInvalidKey, key)
	}
	return nil
}

// DateOf returns the leading date segment of key.
func DateOf(key string) string {
	if i := strings.IndexByte(key, '/'); i >= 0 {
		return key[:i]
	}
	return key
}
