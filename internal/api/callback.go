package api

import (
	"crypto/subtle"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"recscribe/internal/events"
	"recscribe/internal/logging"
	"recscribe/internal/worker"
)

const webhookSecretHeader = "X-Recscribe-Secret"

// callbackChallenge answers the recognition service's callback verification.
func (h *Handler) callbackChallenge(c *gin.Context) {
	c.Data(http.StatusOK, "text/plain; charset=utf-8", []byte(c.Query("challenge_string")))
}

// callbackResults stores posted recognition results and queues CSV rendering.
func (h *Handler) callbackResults(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}
	ctx := c.Request.Context()
	key, err := h.library.StoreResults(ctx, c.Param("audio_key"), body, h.now())
	if err != nil {
		h.storageError(c, err)
		return
	}
	entry := logrus.WithFields(logrus.Fields{"request_id": logging.RequestID(c), "key": key})
	if _, err := h.jobs.Submit(key); err != nil {
		entry.WithError(err).Warn("results job not queued")
	} else {
		entry.Info("recognition results stored")
	}
	c.JSON(http.StatusOK, gin.H{"message": "Success"})
}

// bucketEvent accepts S3 notifications forwarded over HTTP.
func (h *Handler) bucketEvent(c *gin.Context) {
	got := c.GetHeader(webhookSecretHeader)
	if h.opts.WebhookSecret == "" || subtle.ConstantTimeCompare([]byte(got), []byte(h.opts.WebhookSecret)) != 1 {
		c.JSON(http.StatusForbidden, gin.H{"error": "invalid webhook secret"})
		return
	}
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}
	queued, err := h.intake.Handle(body)
	switch {
	case errors.Is(err, events.ErrMalformedEvent):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case errors.Is(err, worker.ErrDispatcherBusy):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "server is busy, please retry", "queued": len(queued)})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	ids := make([]string, 0, len(queued))
	for _, st := range queued {
		ids = append(ids, st.ID)
	}
	c.JSON(http.StatusAccepted, gin.H{"jobs": ids})
}
