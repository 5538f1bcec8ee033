package services

import (
	"errors"

	"taskboard/internal/config"
	"taskboard/internal/models"

	"github.com/gofrs/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type RegistrationRequest struct {
	Name     string `json:"name" form:"name" binding:"required"`
	Email    string `json:"email" form:"email" binding:"required,email"`
	Password string `json:"password" form:"password" binding:"required,min=6"`

	// Avatar is the stored path of the uploaded file, resolved by the
	// handler before the service is called. Optional.
	Avatar string `json:"-"`
}

type RegisterService interface {
	RegisterUser(db *gorm.DB, req RegistrationRequest) (*models.User, string, error)
}

type RegisterServiceImpl struct {
	cfg         config.AuthConfig
	authService AuthService
}

func NewRegisterService(cfg config.AuthConfig, authService AuthService) *RegisterServiceImpl {
	return &RegisterServiceImpl{cfg: cfg, authService: authService}
}

// RegisterUser creates an account: hash the password, persist the user,
// then issue and store the bearer token. The token is computed only after
// the user row exists so the stored token always matches the returned one.
func (s *RegisterServiceImpl) RegisterUser(db *gorm.DB, req RegistrationRequest) (*models.User, string, error) {
	var existing models.User
	if err := db.Where("email = ?", req.Email).First(&existing).Error; err == nil {
		return nil, "", ErrDuplicateEmail
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, "", err
	}

	cost := s.cfg.BCryptCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), cost)
	if err != nil {
		return nil, "", err
	}

	user := models.User{
		ID:       uuid.Must(uuid.NewV4()),
		Name:     req.Name,
		Email:    req.Email,
		Password: string(hashedPassword),
		Avatar:   req.Avatar,
	}

	if err := db.Create(&user).Error; err != nil {
		return nil, "", err
	}

	token, err := s.authService.IssueToken(user.ID)
	if err != nil {
		return nil, "", err
	}

	user.Token = token
	if err := db.Model(&user).Update("token", token).Error; err != nil {
		return nil, "", err
	}

	return &user, token, nil
}
