package api

import (
	"github.com/gin-gonic/gin"

	"recscribe/internal/logging"
)

// NewRouter builds the engine with request logging and panic recovery.
func NewRouter(h *Handler) *gin.Engine {
	router := gin.New()
	router.Use(logging.RequestLogger(), gin.Recovery())
	h.RegisterRoutes(router)
	return router
}
