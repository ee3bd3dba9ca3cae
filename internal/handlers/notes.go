package handlers

import (
	"errors"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"

	"parchment/internal/media/sniffer"
	"parchment/internal/middleware"
	"parchment/internal/response"
	"parchment/internal/service"
)

const imageField = "image"

// noteRequest binds from JSON or from a multipart form carrying an image.
type noteRequest struct {
	Title   string `json:"title" form:"title"`
	Content string `json:"content" form:"content"`
}

func (h HandlerSet) ListNotes(c *gin.Context) {
	user, _ := middleware.CurrentUser(c)

	notes, err := h.notes.List(c.Request.Context(), user.ID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, "Notes retrieved successfully", notes)
}

func (h HandlerSet) CreateNote(c *gin.Context) {
	user, _ := middleware.CurrentUser(c)

	input, cleanup, ok := h.bindNote(c)
	if !ok {
		return
	}
	defer cleanup()

	note, err := h.notes.Create(c.Request.Context(), user.ID, input)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, "Note created successfully", note)
}

func (h HandlerSet) UpdateNote(c *gin.Context) {
	user, _ := middleware.CurrentUser(c)

	input, cleanup, ok := h.bindNote(c)
	if !ok {
		return
	}
	defer cleanup()

	note, err := h.notes.Update(c.Request.Context(), user.ID, c.Param("id"), input)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, "Note updated successfully", note)
}

func (h HandlerSet) DeleteNote(c *gin.Context) {
	user, _ := middleware.CurrentUser(c)

	if err := h.notes.Delete(c.Request.Context(), user.ID, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, "Note deleted successfully", nil)
}

// bindNote reads title, content and the optional image. The returned cleanup
// closes the uploaded file.
func (h HandlerSet) bindNote(c *gin.Context) (service.NoteInput, func(), bool) {
	noop := func() {}

	var req noteRequest
	if err := c.ShouldBind(&req); err != nil {
		response.Fail(c, http.StatusBadRequest, "invalid note payload", bindingErrors(err)...)
		return service.NoteInput{}, noop, false
	}
	input := service.NoteInput{Title: req.Title, Content: req.Content}

	if c.ContentType() != gin.MIMEMultipartPOSTForm {
		return input, noop, true
	}

	header, err := c.FormFile(imageField)
	if errors.Is(err, http.ErrMissingFile) {
		return input, noop, true
	}
	if err != nil {
		response.Fail(c, http.StatusBadRequest, "invalid image upload", bindingErrors(err)...)
		return service.NoteInput{}, noop, false
	}

	file, err := header.Open()
	if err != nil {
		response.Error(c, err)
		return service.NoteInput{}, noop, false
	}

	input.Image = imageUpload(header, file)
	return input, func() { _ = file.Close() }, true
}

func imageUpload(header *multipart.FileHeader, file multipart.File) *service.ImageUpload {
	return &service.ImageUpload{
		Filename:    header.Filename,
		ContentType: sniffer.MimeTypeFromHTTP(http.Header(header.Header)),
		Body:        file,
	}
}
