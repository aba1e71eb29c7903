package app

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"paperchat/internal/model"
	"paperchat/internal/pkg/jwtutil"
	"paperchat/internal/workflow"
)

// UserStore persists reader accounts; *repository.UserRepository in
// production. GetBy* return nil (no error) when no row matches.
type UserStore interface {
	Create(user *model.User) error
	GetByID(id uint) (*model.User, error)
	GetByUsername(username string) (*model.User, error)
	GetByEmail(email string) (*model.User, error)
	GetByLogin(login string) (*model.User, error)
	UpdateEducationLevel(id uint, level string) error
}

type AuthService struct {
	userRepo      UserStore
	jwtSecret     string
	jwtExpiration time.Duration
}

type RegisterInput struct {
	Username string
	Email    string
	Password string
	// EducationLevel is the account default for new explanation sessions;
	// unknown values fall back to undergraduate.
	EducationLevel string
}

type LoginInput struct {
	// Login is a username or an email address.
	Login    string
	Password string
}

type AuthResult struct {
	Token string
	User  *model.User
}

func NewAuthService(userRepo UserStore, jwtSecret string, jwtExpiration time.Duration) *AuthService {
	return &AuthService{
		userRepo:      userRepo,
		jwtSecret:     jwtSecret,
		jwtExpiration: jwtExpiration,
	}
}

func (s *AuthService) Register(input RegisterInput) (*AuthResult, error) {
	username := strings.TrimSpace(input.Username)
	email := strings.TrimSpace(strings.ToLower(input.Email))
	password := strings.TrimSpace(input.Password)

	if username == "" || password == "" || len(password) < 8 {
		return nil, ErrInvalidInput
	}
	if email == "" || !strings.Contains(email, "@") {
		return nil, ErrInvalidInput
	}

	existingByName, err := s.userRepo.GetByUsername(username)
	if err != nil {
		return nil, err
	}
	if existingByName != nil {
		return nil, ErrUsernameExists
	}

	existingByEmail, err := s.userRepo.GetByEmail(email)
	if err != nil {
		return nil, err
	}
	if existingByEmail != nil {
		return nil, ErrEmailExists
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password failed: %w", err)
	}

	user := &model.User{
		Username:       username,
		Email:          email,
		PasswordHash:   string(hash),
		EducationLevel: string(workflow.ParseEducationLevel(input.EducationLevel)),
	}
	if err := s.userRepo.Create(user); err != nil {
		return nil, err
	}

	return s.issueToken(user)
}

// Login accepts a username or an email address as the login.
func (s *AuthService) Login(input LoginInput) (*AuthResult, error) {
	login := strings.TrimSpace(input.Login)
	password := strings.TrimSpace(input.Password)
	if login == "" || password == "" {
		return nil, ErrInvalidInput
	}

	user, err := s.userRepo.GetByLogin(login)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrInvalidCredential
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredential
	}

	return s.issueToken(user)
}

// SetEducationLevel updates the account's default level and issues a fresh
// token, since the level rides in the token claims.
func (s *AuthService) SetEducationLevel(userID uint, level string) (*AuthResult, error) {
	if userID == 0 {
		return nil, ErrInvalidInput
	}
	user, err := s.userRepo.GetByID(userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrInvalidInput
	}

	normalized := string(workflow.ParseEducationLevel(level))
	if err := s.userRepo.UpdateEducationLevel(userID, normalized); err != nil {
		return nil, err
	}
	user.EducationLevel = normalized

	return s.issueToken(user)
}

func (s *AuthService) GetUserByID(id uint) (*model.User, error) {
	if id == 0 {
		return nil, ErrInvalidInput
	}
	return s.userRepo.GetByID(id)
}

func (s *AuthService) issueToken(user *model.User) (*AuthResult, error) {
	token, err := jwtutil.GenerateToken(s.jwtSecret, s.jwtExpiration, user.ID, user.Username, user.EducationLevel)
	if err != nil {
		return nil, err
	}
	return &AuthResult{Token: token, User: user}, nil
}
