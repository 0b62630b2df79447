package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/sirupsen/logrus"

	"recscribe/internal/models"
)

// SubmitTranscript posts the edited values of transcriptKey in order.
// panels may be nil; otherwise it is reset before sending and shows the
// outcome afterwards.
func (c *Client) SubmitTranscript(ctx context.Context, transcriptKey string, results []string, panels *Panels) error {
	if results == nil {
		results = []string{}
	}
	if panels == nil {
		panels = NewPanels(nil)
	}
	panels.Reset()
	log := logrus.WithFields(logrus.Fields{"component": "transcript", "transcript_key": transcriptKey})

	err := c.postTranscript(ctx, models.TranscriptEdit{TranscriptKey: transcriptKey, Results: results})
	if err != nil {
		log.WithError(err).Warn("transcript submission failed")
		panels.Fail()
		return err
	}
	panels.Succeed()
	log.WithField("segments", len(results)).Info("transcript submitted")
	return nil
}

func (c *Client) postTranscript(ctx context.Context, edit models.TranscriptEdit) error {
	body, err := json.Marshal(edit)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/edit", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(csrfHeader, c.CSRFToken())
	c.authorize(req)
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("submit transcript: %w", err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("submit transcript: %w", responseError(resp.StatusCode, data))
	}
	return nil
}
