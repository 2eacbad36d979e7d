package api

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"contactbox/internal/server/database"
	"contactbox/internal/server/service"

	"github.com/labstack/echo/v4"
)

const csvFilename = "contact_submissions.csv"

// Handler contains the HTTP handlers for the contact form service.
type Handler struct {
	recorder    *service.Recorder
	exporter    *service.Exporter
	attachments *service.AttachmentService
	db          database.Store
}

// NewHandler creates a new handler with the given service dependencies.
func NewHandler(recorder *service.Recorder, exporter *service.Exporter, attachments *service.AttachmentService, db database.Store) *Handler {
	return &Handler{
		recorder:    recorder,
		exporter:    exporter,
		attachments: attachments,
		db:          db,
	}
}

// HandleForm handles GET /.
func (h *Handler) HandleForm(c echo.Context) error {
	return c.Render(http.StatusOK, "form.html", nil)
}

// HandleThankYou handles GET /thankyou.
func (h *Handler) HandleThankYou(c echo.Context) error {
	return c.Render(http.StatusOK, "thankyou.html", nil)
}

// HandleSubmit handles POST /submit.
// Accepts a multipart or urlencoded form with name, email, message and an optional "file".
func (h *Handler) HandleSubmit(c echo.Context) error {
	params, err := c.FormParams()
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid form body"})
	}

	field := func(key string) *string {
		values, ok := params[key]
		if !ok || len(values) == 0 {
			return nil
		}
		v := values[0]
		return &v
	}
	form := service.Form{
		Name:    field("name"),
		Email:   field("email"),
		Message: field("message"),
	}

	var att *service.Attachment
	fileHeader, err := c.FormFile("file")
	if err == nil && fileHeader.Filename != "" {
		src, err := fileHeader.Open()
		if err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{
				"error": "failed to read uploaded file",
			})
		}
		defer src.Close()
		att = &service.Attachment{Filename: fileHeader.Filename, Content: src}
	} else if err != nil && !errors.Is(err, http.ErrMissingFile) && !errors.Is(err, http.ErrNotMultipart) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid file upload"})
	}

	if _, err := h.recorder.Record(c.Request().Context(), form, att); err != nil {
		return mapServiceError(c, err)
	}

	return c.Render(http.StatusOK, "thankyou.html", nil)
}

// HandleDownloadCSV handles GET /download_csv.
func (h *Handler) HandleDownloadCSV(c echo.Context) error {
	var buf bytes.Buffer
	if err := h.exporter.WriteCSV(c.Request().Context(), &buf); err != nil {
		return mapServiceError(c, err)
	}

	c.Response().Header().Set(echo.HeaderContentDisposition, "attachment; filename="+csvFilename)
	return c.Blob(http.StatusOK, "text/csv", buf.Bytes())
}

// HandleAllSubmissions handles GET /all_submissions.
func (h *Handler) HandleAllSubmissions(c echo.Context) error {
	views, err := h.exporter.ExportJSON(c.Request().Context())
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, views)
}

// HandleGetSubmission handles GET /api/submissions/:id.
func (h *Handler) HandleGetSubmission(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid submission id"})
	}

	view, err := h.exporter.Get(c.Request().Context(), id)
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, view)
}

// HandleUpload handles GET /uploads/:name.
// Serves the raw file bytes; there is no access control.
func (h *Handler) HandleUpload(c echo.Context) error {
	file, err := h.attachments.Resolve(c.Request().Context(), c.Param("name"))
	if err != nil {
		return mapServiceError(c, err)
	}
	setETag(c, file)
	return c.File(file.Path)
}

// HandleSubmissionAttachment handles GET /api/submissions/:id/attachment.
// Serves the file saved with that submission as an attachment.
func (h *Handler) HandleSubmissionAttachment(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid submission id"})
	}

	file, err := h.attachments.ForSubmission(c.Request().Context(), id)
	if err != nil {
		return mapServiceError(c, err)
	}
	setETag(c, file)
	return c.Attachment(file.Path, file.Filename)
}

// setETag sends the upload digest as the entity tag. The file server answers a
// matching If-None-Match with 304.
func setETag(c echo.Context, file *service.ResolvedFile) {
	if etag := file.ETag(); etag != "" {
		c.Response().Header().Set("ETag", etag)
	}
}

// HandleHealth handles GET /health.
// Returns the health status of the server, including database connectivity.
func (h *Handler) HandleHealth(c echo.Context) error {
	status := "healthy"
	dbStatus := "connected"

	if err := h.db.HealthCheck(c.Request().Context()); err != nil {
		status = "degraded"
		dbStatus = fmt.Sprintf("error: %v", err)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"status":   status,
		"database": dbStatus,
	})
}

// mapServiceError translates service-layer errors into HTTP responses. Every
// endpoint reports failures the same way: a non-2xx status and {"error": ...}.
func mapServiceError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, service.ErrMissingField):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	case errors.Is(err, service.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "not found"})
	case errors.Is(err, service.ErrFileSave):
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to save attachment"})
	case errors.Is(err, database.ErrStorage):
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": err.Error()})
	default:
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal server error"})
	}
}
