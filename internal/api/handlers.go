package api

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"recscribe/internal/auth"
	"recscribe/internal/events"
	"recscribe/internal/library"
	"recscribe/internal/models"
	"recscribe/internal/objectstore"
)

// JobQueue is the part of the worker manager the handlers use.
type JobQueue interface {
	Submit(key string) (models.JobStatus, error)
	Status(ctx context.Context, id string) (models.JobStatus, bool)
}

type Options struct {
	PresignTTL time.Duration
	// WebhookSecret guards POST /events/s3; the route rejects everything when empty.
	WebhookSecret string
}

// Handler wires HTTP routes to the library, the object store and the job queue.
type Handler struct {
	auth    *auth.Service
	library *library.Library
	store   objectstore.Store
	jobs    JobQueue
	intake  *events.Intake
	db      *sql.DB
	opts    Options
	now     func() time.Time
}

// NewHandler constructs a Handler instance.
func NewHandler(authService *auth.Service, lib *library.Library, store objectstore.Store, jobs JobQueue, db *sql.DB, opts Options) *Handler {
	if opts.PresignTTL <= 0 {
		opts.PresignTTL = time.Hour
	}
	return &Handler{
		auth:    authService,
		library: lib,
		store:   store,
		jobs:    jobs,
		intake:  events.NewIntake(jobs),
		db:      db,
		opts:    opts,
		now:     time.Now,
	}
}

func (h *Handler) authorizedUserID(c *gin.Context) (int64, bool) {
	userID, ok := auth.UserIDFromContext(c)
	if !ok || userID <= 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authorization required"})
		return 0, false
	}
	return userID, true
}

// RegisterRoutes attaches all HTTP routes to the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.GET("/healthcheck", h.healthcheck)

	// called by the recognition service and the bucket, no session
	router.GET("/callback/:audio_key/results", h.callbackChallenge)
	router.POST("/callback/:audio_key/results", h.callbackResults)
	router.POST("/events/s3", h.bucketEvent)

	router.POST("/api/login", h.loginUser)

	authMW := h.auth.Middleware()
	csrfMW := h.auth.CSRFMiddleware()

	api := router.Group("/api", authMW, csrfMW)
	api.POST("/logout", h.logoutUser)
	api.GET("/recordings", h.listRecordings)
	api.GET("/edits", h.listEdits)
	api.GET("/jobs/:id", h.jobStatus)

	desk := router.Group("", authMW, csrfMW)
	desk.POST("/upload", h.presignUpload)
	desk.GET("/edit", h.getEditor)
	desk.POST("/edit", h.saveEdits)
}

func (h *Handler) healthcheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type credentialsRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *Handler) loginUser(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	sess, err := h.auth.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		}
		return
	}
	h.setAuthCookies(c, sess.AuthToken, sess.CSRFToken)
	c.JSON(http.StatusOK, gin.H{
		"id":         sess.User.ID,
		"username":   sess.User.Username,
		"auth_token": sess.AuthToken,
		"csrf_token": sess.CSRFToken,
		"expires_at": sess.ExpiresAt,
	})
}

func (h *Handler) logoutUser(c *gin.Context) {
	if authToken, ok := auth.AuthTokenFromContext(c); ok {
		_ = h.auth.RevokeToken(c.Request.Context(), authToken)
	}
	h.clearAuthCookies(c)
	c.Status(http.StatusNoContent)
}

func (h *Handler) jobStatus(c *gin.Context) {
	status, ok := h.jobs.Status(c.Request.Context(), c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	c.JSON(http.StatusOK, status)
}

func (h *Handler) setAuthCookies(c *gin.Context, authToken, csrfToken string) {
	ttl := int(h.auth.TokenTTL().Seconds())
	if ttl <= 0 {
		ttl = 3600
	}
	secure := secureRequest(c)
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     h.auth.AuthCookieName(),
		Value:    authToken,
		MaxAge:   ttl,
		Path:     "/",
		Secure:   secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	// readable by clients so they can echo it in the CSRF header
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     h.auth.CSRFCookieName(),
		Value:    csrfToken,
		MaxAge:   ttl,
		Path:     "/",
		Secure:   secure,
		HttpOnly: false,
		SameSite: http.SameSiteStrictMode,
	})
}

func (h *Handler) clearAuthCookies(c *gin.Context) {
	for _, name := range []string{h.auth.AuthCookieName(), h.auth.CSRFCookieName()} {
		http.SetCookie(c.Writer, &http.Cookie{
			Name:     name,
			Value:    "",
			MaxAge:   -1,
			Path:     "/",
			Secure:   secureRequest(c),
			HttpOnly: name == h.auth.AuthCookieName(),
			SameSite: http.SameSiteStrictMode,
		})
	}
}

// secureRequest reports whether the client reached us over https, either
// directly or through a TLS-terminating proxy. Secure cookies sent over
// plain http would never be returned.
func secureRequest(c *gin.Context) bool {
	return c.Request.TLS != nil || strings.EqualFold(c.GetHeader("X-Forwarded-Proto"), "https")
}
