package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gearguard/gearguard/internal/database/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrUserExists         = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInactiveUser       = errors.New("user is inactive")
)

type Service struct {
	db  *gorm.DB
	jwt *JWTService
}

func NewService(db *gorm.DB, jwt *JWTService) *Service {
	return &Service{db: db, jwt: jwt}
}

type RegisterInput struct {
	Email    string
	Password string
	Name     string
	// Optional. When set, registration creates the organization and makes the
	// caller its admin; when empty the profile starts unaffiliated and joins
	// an organization later via a join request or invite.
	OrgName string
}

type LoginInput struct {
	Email    string
	Password string
}

type AuthResponse struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

func (s *Service) Register(ctx context.Context, input RegisterInput) (*AuthResponse, error) {
	var existing models.User
	if err := s.db.WithContext(ctx).Where("email = ?", input.Email).First(&existing).Error; err == nil {
		return nil, ErrUserExists
	}

	hash, err := HashPassword(input.Password)
	if err != nil {
		return nil, err
	}

	user := models.User{
		Email:        input.Email,
		PasswordHash: hash,
		Name:         input.Name,
		IsActive:     true,
	}

	var org *models.Organization
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if input.OrgName != "" {
			org = &models.Organization{
				Name: input.OrgName,
				Slug: generateSlug(input.OrgName),
			}
			if err := tx.Create(org).Error; err != nil {
				return err
			}
			user.OrganizationID = &org.ID
			user.Role = models.RoleAdmin
		}
		return tx.Create(&user).Error
	})
	if err != nil {
		return nil, err
	}

	orgID := uuid.Nil
	if org != nil {
		orgID = org.ID
		user.Organization = org
	}

	token, err := s.jwt.GenerateToken(user.ID, orgID, user.Email, user.Role)
	if err != nil {
		return nil, err
	}

	return &AuthResponse{
		Token: token,
		User:  &user,
	}, nil
}

func (s *Service) Login(ctx context.Context, input LoginInput) (*AuthResponse, error) {
	var user models.User
	if err := s.db.WithContext(ctx).
		Preload("Organization").
		Where("email = ?", input.Email).
		First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if !user.IsActive {
		return nil, ErrInactiveUser
	}

	if !CheckPassword(input.Password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	orgID := uuid.Nil
	if user.OrganizationID != nil {
		orgID = *user.OrganizationID
	}

	token, err := s.jwt.GenerateToken(user.ID, orgID, user.Email, user.Role)
	if err != nil {
		return nil, err
	}

	return &AuthResponse{
		Token: token,
		User:  &user,
	}, nil
}

func (s *Service) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).
		Preload("Organization").
		First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

func generateSlug(name string) string {
	slug := strings.ToLower(name)
	slug = strings.ReplaceAll(slug, " ", "-")
	slug = strings.ReplaceAll(slug, "'", "")
	// Add timestamp to ensure uniqueness
	return slug + "-" + time.Now().Format("0601021504")
}
