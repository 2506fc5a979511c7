package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"ms-docservices/internal/auth"
	"ms-docservices/internal/logger"
	"ms-docservices/internal/models"
)

var (
	ErrUsernameTaken     = errors.New("username is already taken")
	ErrEmailTaken        = errors.New("email is already registered")
	ErrInvalidCredential = errors.New("invalid username or password")
)

type UserService struct {
	DB     *DB
	Issuer *auth.TokenIssuer
	Logger *logger.Logger
}

func NewUserService(db *DB, issuer *auth.TokenIssuer, log *logger.Logger) *UserService {
	return &UserService{DB: db, Issuer: issuer, Logger: log}
}

// RegisterRequest is the self-service signup payload. Registration always
// creates a customer; admin accounts are provisioned out of band.
type RegisterRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Phone    string `json:"phone,omitempty"`
	Address  string `json:"address,omitempty"`
}

func (r *RegisterRequest) validate() error {
	if strings.TrimSpace(r.Username) == "" {
		return errors.New("username is required")
	}
	if len(r.Password) < 8 {
		return errors.New("password must be at least 8 characters")
	}
	if strings.TrimSpace(r.Name) == "" {
		return errors.New("name is required")
	}
	if !strings.Contains(r.Email, "@") {
		return errors.New("a valid email is required")
	}
	return nil
}

func (s *UserService) Register(ctx context.Context, req RegisterRequest) (*models.User, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	username := strings.ToLower(strings.TrimSpace(req.Username))
	email := strings.ToLower(strings.TrimSpace(req.Email))

	if _, err := s.DB.GetUserByUsername(ctx, username); err == nil {
		return nil, ErrUsernameTaken
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to check username: %w", err)
	}
	if _, err := s.DB.GetUserByEmail(ctx, email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to check email: %w", err)
	}

	hashed, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{
		ID:        uuid.NewString(),
		Username:  username,
		Password:  hashed,
		Name:      strings.TrimSpace(req.Name),
		Email:     email,
		Phone:     strings.TrimSpace(req.Phone),
		Address:   strings.TrimSpace(req.Address),
		Role:      models.RoleUser,
		CreatedAt: time.Now(),
	}

	if err := s.DB.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.Logger.Info("USER", fmt.Sprintf("registered user %s (%s)", user.Username, user.ID))
	return user, nil
}

// Login verifies credentials and returns the user with a signed session
// token. Unknown usernames and wrong passwords are indistinguishable to the
// caller.
func (s *UserService) Login(ctx context.Context, username, password string) (*models.User, string, error) {
	user, err := s.DB.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.Logger.LogSecurity("LOGIN", fmt.Sprintf("unknown username %q", username))
			return nil, "", ErrInvalidCredential
		}
		return nil, "", fmt.Errorf("failed to load user: %w", err)
	}

	if !auth.CheckPassword(user.Password, password) {
		s.Logger.LogSecurity("LOGIN", fmt.Sprintf("bad password for %s", user.Username))
		return nil, "", ErrInvalidCredential
	}

	token, err := s.Issuer.Issue(*user)
	if err != nil {
		return nil, "", fmt.Errorf("failed to issue token: %w", err)
	}

	s.Logger.Info("USER", fmt.Sprintf("login: %s", user.Username))
	return user, token, nil
}

func (s *UserService) GetByID(ctx context.Context, id string) (*models.User, error) {
	return s.DB.GetUserByID(ctx, id)
}
