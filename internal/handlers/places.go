package handlers

import (
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"ramallah-time/internal/listing"
)

// PlaceHandler serves the listing endpoints
type PlaceHandler struct {
	service *listing.Service
	// maxUploadBytes bounds the whole multipart body of an image upload.
	maxUploadBytes int64
}

// NewPlaceHandler creates a new place handler
func NewPlaceHandler(service *listing.Service, maxUploadBytes int64) *PlaceHandler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = 100 << 20
	}
	return &PlaceHandler{service: service, maxUploadBytes: maxUploadBytes}
}

// Create registers a place
func (h *PlaceHandler) Create(c *gin.Context) {
	var in listing.CreateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	view, err := h.service.Create(c.Request.Context(), credential(c), in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// List returns the places visible to the caller
func (h *PlaceHandler) List(c *gin.Context) {
	lat, ok := floatQuery(c, "lat")
	if !ok {
		return
	}
	lng, ok := floatQuery(c, "lng")
	if !ok {
		return
	}

	q := listing.ListQuery{
		Query:    c.Query("q"),
		Category: c.Query("cat"),
		Area:     c.Query("area"),
		Lat:      lat,
		Lng:      lng,
	}
	if limitStr := c.Query("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit < 0 {
			badRequest(c, "invalid limit")
			return
		}
		q.Limit = limit
	}
	if hidden := c.Query("include_hidden"); hidden != "" {
		includeHidden, err := strconv.ParseBool(hidden)
		if err != nil {
			badRequest(c, "invalid include_hidden")
			return
		}
		q.IncludeHidden = includeHidden
	}

	result, err := h.service.List(c.Request.Context(), credential(c), q)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Get returns a single place
func (h *PlaceHandler) Get(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}

	view, err := h.service.Get(c.Request.Context(), credential(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// Update applies a partial update
func (h *PlaceHandler) Update(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}

	var patch map[string]interface{}
	if err := c.ShouldBindJSON(&patch); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	view, err := h.service.Update(c.Request.Context(), credential(c), id, patch)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// Delete removes a place with its images
func (h *PlaceHandler) Delete(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}

	if err := h.service.Delete(c.Request.Context(), credential(c), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

// UploadImages stores the files of the multipart field "images"
func (h *PlaceHandler) UploadImages(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes)
	form, err := c.MultipartForm()
	if err != nil {
		badRequest(c, "invalid upload")
		return
	}

	uploads := make([]listing.Upload, 0, len(form.File["images"]))
	for _, fh := range form.File["images"] {
		data, err := readPart(fh)
		if err != nil {
			log.Printf("Images: failed to read upload %q: %v", fh.Filename, err)
			badRequest(c, "invalid upload")
			return
		}
		uploads = append(uploads, listing.Upload{Filename: fh.Filename, Data: data})
	}

	saved, err := h.service.UploadImages(c.Request.Context(), credential(c), id, uploads)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"uploaded": saved})
}

// DeleteImage removes one image
func (h *PlaceHandler) DeleteImage(c *gin.Context) {
	id, ok := uintParam(c, "image_id")
	if !ok {
		return
	}

	if err := h.service.DeleteImage(c.Request.Context(), credential(c), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

// Activate records a payment and extends the subscription (admin only)
func (h *PlaceHandler) Activate(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}

	var in listing.ActivateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	result, err := h.service.Activate(c.Request.Context(), credential(c), id, in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"msg":                 "activated for " + strconv.Itoa(result.Months) + " months",
		"place_id":            result.ListingID,
		"end_date":            result.EndDate.Format("2006-01-02"),
		"total_revenue":       result.TotalRevenue,
		"subscription_status": result.Status,
	})
}

// RequestRenewal puts an expired place back into the activation queue
func (h *PlaceHandler) RequestRenewal(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}

	if err := h.service.RequestRenewal(c.Request.Context(), credential(c), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"msg": "request received, we will contact you to activate"})
}

type ownerLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// OwnerLogin exchanges owner credentials for an owner token
func (h *PlaceHandler) OwnerLogin(c *gin.Context) {
	var req ownerLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	result, err := h.service.OwnerLogin(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		// A failed login is never "forbidden": the caller sent no header credential.
		c.JSON(statusOf(err, false), gin.H{"error": listing.Message(err)})
		return
	}
	c.JSON(http.StatusOK, result)
}

func readPart(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}
