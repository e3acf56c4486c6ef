package server

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	notificationdomain "github.com/smallbiznis/qpayrelay/internal/notification/domain"
	"github.com/smallbiznis/qpayrelay/internal/observability/logger"
	"go.uber.org/zap"
)

type contactRequest struct {
	Name           string `json:"name"`
	Email          string `json:"email"`
	Message        string `json:"message"`
	RecaptchaToken string `json:"recaptchaToken"`
}

// SendPDF emails an uploaded PDF. The upload is staged in the temp dir and the
// notification service removes it once the send attempt finishes.
func (s *Server) SendPDF(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadBytes)

	email := strings.TrimSpace(c.PostForm("email"))
	file, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			AbortWithError(c, newValidationError("file", "too_large", "file exceeds the upload limit"))
			return
		}
		AbortWithError(c, newValidationError("file", "required", "file is required"))
		return
	}
	if email == "" {
		AbortWithError(c, newValidationError("email", "required", "email is required"))
		return
	}

	path := filepath.Join(os.TempDir(), "qpayrelay-"+uuid.NewString()+".pdf")
	if err := c.SaveUploadedFile(file, path); err != nil {
		logger.WithContext(c.Request.Context(), s.log).Error("failed to stage upload", zap.Error(err))
		AbortWithError(c, err)
		return
	}

	message, err := s.notificationSvc.SendDocument(c.Request.Context(), notificationdomain.SendDocumentRequest{
		Email:    email,
		Path:     path,
		FileName: file.Filename,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": message})
}

func (s *Server) Contact(c *gin.Context) {
	var req contactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("body", "invalid_json", "invalid request body"))
		return
	}

	message, err := s.notificationSvc.SendContact(c.Request.Context(), notificationdomain.ContactRequest{
		Name:           req.Name,
		Email:          req.Email,
		Message:        req.Message,
		RecaptchaToken: req.RecaptchaToken,
		RemoteIP:       c.ClientIP(),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": message})
}
