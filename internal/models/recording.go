package models

import "recscribe/internal/transcript"

// Recording is one audio object in the bucket browser.
type Recording struct {
	Key           string `json:"key"`
	Name          string `json:"name"`
	AudioURL      string `json:"audio_url"`
	ContentType   string `json:"content_type"`
	TranscriptCSV string `json:"transcript_csv,omitempty"`
	TranscriptURL string `json:"transcript_url,omitempty"`
	Editable      bool   `json:"editable"`
}

// Editor is everything a client needs to review one transcript.
type Editor struct {
	TranscriptKey string               `json:"transcript_key"`
	Recording     string               `json:"recording"`
	AudioURL      string               `json:"audio_url"`
	AudioType     string               `json:"audio_type"`
	Snippets      []transcript.Snippet `json:"snippets"`
}

// TranscriptEdit is the body of an edit submission.
type TranscriptEdit struct {
	TranscriptKey string   `json:"transcript_key"`
	Results       []string `json:"results"`
}
