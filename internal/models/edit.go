package models

import "time"

// EditRecord logs who saved edits to a transcript.
type EditRecord struct {
	ID            int64     `json:"id"`
	UserID        int64     `json:"user_id"`
	TranscriptKey string    `json:"transcript_key"`
	Segments      int       `json:"segments"`
	CreatedAt     time.Time `json:"created_at"`
}
