package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"recscribe/internal/library"
	"recscribe/internal/logging"
	"recscribe/internal/models"
	"recscribe/internal/recordings"
	"recscribe/internal/storage"
	"recscribe/internal/transcript"
)

func (h *Handler) listRecordings(c *gin.Context) {
	prefix := c.Query("prefix")
	if prefix == "" {
		dates, err := h.library.Dates(c.Request.Context())
		if err != nil {
			h.storageError(c, err)
			return
		}
		if dates == nil {
			dates = make([]string, 0)
		}
		c.JSON(http.StatusOK, gin.H{"prefixes": dates})
		return
	}
	recs, err := h.library.Recordings(c.Request.Context(), prefix)
	if err != nil {
		h.storageError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"prefix_date": recordings.DateOf(prefix),
		"recordings":  recs,
	})
}

type uploadRequest struct {
	FileName string `form:"file-name" binding:"required"`
	FileType string `form:"file-type" binding:"required"`
}

// presignUpload returns a presigned POST for the key the client computed.
func (h *Handler) presignUpload(c *gin.Context) {
	var req uploadRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file-name and file-type are required"})
		return
	}
	if err := recordings.ValidateRecordingKey(req.FileName); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !strings.HasPrefix(req.FileType, "audio/") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file-type must be an audio type"})
		return
	}
	post, err := h.store.PresignPost(c.Request.Context(), req.FileName, req.FileType, h.opts.PresignTTL)
	if err != nil {
		h.storageError(c, err)
		return
	}
	c.JSON(http.StatusOK, post)
}

func (h *Handler) getEditor(c *gin.Context) {
	prefix, recording := c.Query("prefix"), c.Query("recording")
	if prefix == "" || recording == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "prefix and recording are required"})
		return
	}
	editor, err := h.library.Editor(c.Request.Context(), prefix, recording)
	if err != nil {
		h.storageError(c, err)
		return
	}
	c.JSON(http.StatusOK, editor)
}

func (h *Handler) saveEdits(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	var req models.TranscriptEdit
	if err := c.ShouldBindJSON(&req); err != nil || req.TranscriptKey == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	ctx := c.Request.Context()
	saved, err := h.library.SaveEdits(ctx, req.TranscriptKey, req.Results)
	if err != nil {
		h.storageError(c, err)
		return
	}
	resp := gin.H{"message": "success", "saved": saved}
	if !saved {
		c.JSON(http.StatusOK, resp)
		return
	}

	entry := logrus.WithFields(logrus.Fields{
		"request_id":     logging.RequestID(c),
		"transcript_key": req.TranscriptKey,
	})
	if h.db != nil {
		if err := storage.RecordEdit(ctx, h.db, userID, req.TranscriptKey, len(req.Results)); err != nil {
			entry.WithError(err).Warn("edit log write failed")
		}
	}
	// the clean CSV is rendered from the results document, so it is stale now
	if status, err := h.jobs.Submit(req.TranscriptKey); err != nil {
		entry.WithError(err).Warn("csv regeneration not queued")
	} else {
		resp["job_id"] = status.ID
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) listEdits(c *gin.Context) {
	key := c.Query("transcript_key")
	if key == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "transcript_key is required"})
		return
	}
	edits, err := storage.ListEdits(c.Request.Context(), h.db, key)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if edits == nil {
		edits = make([]*models.EditRecord, 0)
	}
	c.JSON(http.StatusOK, gin.H{"edits": edits})
}

// storageError maps library and store failures to responses.
func (h *Handler) storageError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, library.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, library.ErrInvalidPrefix), errors.Is(err, recordings.ErrInvalidKey):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, transcript.ErrEditCountMismatch):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, transcript.ErrMalformed):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	default:
		logrus.WithError(err).WithField("request_id", logging.RequestID(c)).Error("storage request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "storage request failed"})
	}
}

