package handlers

import (
	"errors"
	"net/http"
	"path/filepath"
	"strings"

	"taskboard/internal/config"
	"taskboard/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/gofrs/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

var allowedAvatarExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".webp": true,
}

type RegisterHandler struct {
	db              *gorm.DB
	registerService services.RegisterService
	uploadCfg       config.UploadConfig
	log             *logrus.Logger
}

func NewRegisterHandler(db *gorm.DB, registerService services.RegisterService, uploadCfg config.UploadConfig, log *logrus.Logger) *RegisterHandler {
	return &RegisterHandler{
		db:              db,
		registerService: registerService,
		uploadCfg:       uploadCfg,
		log:             log,
	}
}

type AuthResponse struct {
	User  interface{} `json:"user"`
	Token string      `json:"token"`
}

// Registration accepts JSON or multipart form data; the multipart variant
// may carry an avatar file that is stored under the upload dir and served
// statically.
func (h *RegisterHandler) Registration(c *gin.Context) {
	var req services.RegistrationRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_failed",
			"details": err.Error(),
		})
		return
	}

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_failed",
			"details": "Name is required",
		})
		return
	}

	avatarPath, err := h.saveAvatar(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_avatar",
			"details": err.Error(),
		})
		return
	}
	req.Avatar = avatarPath

	user, token, err := h.registerService.RegisterUser(h.db, req)
	if err != nil {
		if errors.Is(err, services.ErrDuplicateEmail) {
			c.JSON(http.StatusConflict, gin.H{
				"error":   "user_exists",
				"message": "User already exists",
			})
			return
		}
		h.log.WithError(err).Error("registration failed")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "registration_failed",
			"message": "An unexpected error occurred. Please try again later.",
		})
		return
	}

	c.JSON(http.StatusCreated, AuthResponse{User: user, Token: token})
}

// saveAvatar stores the optional multipart avatar and returns its public
// path. A missing file is not an error.
func (h *RegisterHandler) saveAvatar(c *gin.Context) (string, error) {
	file, err := c.FormFile("avatar")
	if err != nil {
		return "", nil
	}

	if h.uploadCfg.MaxSizeBytes > 0 && file.Size > h.uploadCfg.MaxSizeBytes {
		return "", errors.New("avatar file is too large")
	}

	ext := strings.ToLower(filepath.Ext(file.Filename))
	if !allowedAvatarExtensions[ext] {
		return "", errors.New("avatar must be an image file")
	}

	name := uuid.Must(uuid.NewV4()).String() + ext
	dst := filepath.Join(h.uploadCfg.Dir, name)
	if err := c.SaveUploadedFile(file, dst); err != nil {
		return "", errors.New("failed to store avatar")
	}

	return filepath.ToSlash(filepath.Join("uploads", name)), nil
}
