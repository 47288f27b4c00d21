package api

import (
	"context"
	"io"
	"net/http"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"

	"campusattend/internal/attendance"
	"campusattend/internal/auth"
)

type decisionRequest struct {
	Notes string `json:"notes"`
}

// documentTypes are the accepted supporting document formats, keyed by
// sniffed content type.
var documentTypes = map[string]bool{
	"application/pdf": true,
	"image/jpeg":      true,
	"image/png":       true,
}

func (s *Server) createExcuse(c *gin.Context) {
	var in attendance.NewExcuse
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	req, err := s.deps.Excuses.Create(c.Request.Context(), auth.ActorFrom(c), in)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, req)
}

func (s *Server) listExcuses(c *gin.Context) {
	f := attendance.ExcuseFilter{SectionID: c.Query("section_id")}
	if v := c.Query("status"); v != "" {
		status, err := attendance.ParseExcuseStatus(v)
		if err != nil {
			s.fail(c, err)
			return
		}
		f.Status = status
	}
	requests, err := s.deps.Excuses.List(c.Request.Context(), auth.ActorFrom(c), f)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"excuses": requests})
}

func (s *Server) myExcuses(c *gin.Context) {
	requests, err := s.deps.Excuses.Mine(c.Request.Context(), auth.ActorFrom(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"excuses": requests})
}

func (s *Server) approveExcuse(c *gin.Context) {
	s.decide(c, s.deps.Excuses.Approve)
}

func (s *Server) rejectExcuse(c *gin.Context) {
	s.decide(c, s.deps.Excuses.Reject)
}

type decideFunc func(ctx context.Context, actor attendance.Actor, requestID, notes string) (attendance.ExcuseRequest, error)

func (s *Server) decide(c *gin.Context, fn decideFunc) {
	var body decisionRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			badRequest(c, err)
			return
		}
	}
	req, err := fn(c.Request.Context(), auth.ActorFrom(c), c.Param("id"), body.Notes)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, req)
}

// uploadDocument stores a supporting document and returns the reference to
// put in an excuse request.
func (s *Server) uploadDocument(c *gin.Context) {
	if s.deps.Documents == nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "document storage not configured", "code": "unavailable"})
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.cfg.MaxDocumentBytes+64<<10)
	header, err := c.FormFile("file")
	if err != nil {
		badRequest(c, errors.Wrap(err, "file field required"))
		return
	}
	if header.Size > s.cfg.MaxDocumentBytes {
		s.fail(c, attendance.NewValidationError(errors.New("document too large"),
			attendance.FieldError{Field: "file", Error: "exceeds the upload size limit"}))
		return
	}
	f, err := header.Open()
	if err != nil {
		s.fail(c, errors.Wrap(err, "open upload"))
		return
	}
	defer f.Close()

	sniff := make([]byte, 512)
	n, _ := io.ReadFull(f, sniff)
	kind := http.DetectContentType(sniff[:n])
	if !documentTypes[kind] {
		s.fail(c, attendance.NewValidationError(errors.Errorf("unsupported document type %s", kind),
			attendance.FieldError{Field: "file", Error: "must be a PDF, JPEG or PNG"}))
		return
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		s.fail(c, errors.Wrap(err, "rewind upload"))
		return
	}

	actor := auth.ActorFrom(c)
	doc, err := s.deps.Documents.Upload(c.Request.Context(), actor.ID, filepath.Base(header.Filename), f)
	if err != nil {
		s.log.Error("document upload failed", "student", actor.ID, "error", err)
		c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": "document upload failed", "code": "upstream"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"document_ref": doc.SecureURL,
		"public_id":    doc.PublicID,
		"format":       doc.Format,
		"bytes":        doc.Bytes,
	})
}
