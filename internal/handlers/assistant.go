package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"ramallah-time/internal/assistant"
	"ramallah-time/internal/listing"
)

// maxScanBytes bounds a photo sent for scanning.
const maxScanBytes = 10 << 20

// Guide answers visitor questions from directory data.
type Guide interface {
	Enabled() bool
	Chat(ctx context.Context, question string, places []listing.Summary) string
	ScanImage(ctx context.Context, filename string, data []byte) (*assistant.ScanResult, error)
}

// AssistantHandler serves the AI guide and photo scan endpoints
type AssistantHandler struct {
	service       *listing.Service
	guide         Guide
	contextPlaces int
}

// NewAssistantHandler creates a new assistant handler
func NewAssistantHandler(service *listing.Service, guide Guide, contextPlaces int) *AssistantHandler {
	return &AssistantHandler{service: service, guide: guide, contextPlaces: contextPlaces}
}

type chatRequest struct {
	Message string `json:"message"`
}

func unavailable() error {
	return &listing.Error{Kind: listing.ErrDependency, Message: "AI service is not available"}
}

// Chat answers a visitor question. Model failures degrade to a fallback reply.
func (h *AssistantHandler) Chat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Message) == "" {
		badRequest(c, "message is required")
		return
	}
	if !h.guide.Enabled() {
		respondError(c, unavailable())
		return
	}

	places, err := h.service.AssistantContext(c.Request.Context(), h.contextPlaces)
	if err != nil {
		log.Printf("Assistant: no directory context, answering without it: %v", err)
		places = nil
	}
	reply := h.guide.Chat(c.Request.Context(), strings.TrimSpace(req.Message), places)
	c.JSON(http.StatusOK, gin.H{"reply": reply})
}

// Scan reads business details from the uploaded photo in field "image"
func (h *AssistantHandler) Scan(c *gin.Context) {
	if !h.guide.Enabled() {
		respondError(c, unavailable())
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxScanBytes)
	fh, err := c.FormFile("image")
	if err != nil {
		badRequest(c, "image is required")
		return
	}
	data, err := readPart(fh)
	if err != nil {
		badRequest(c, "invalid upload")
		return
	}

	result, err := h.guide.ScanImage(c.Request.Context(), fh.Filename, data)
	switch {
	case errors.Is(err, assistant.ErrInvalidImage):
		badRequest(c, err.Error())
	case err != nil:
		respondError(c, unavailable())
	default:
		c.JSON(http.StatusOK, result)
	}
}
