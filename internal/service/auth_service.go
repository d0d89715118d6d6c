package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"storefront/internal/apperr"
	"storefront/internal/auth"
	"storefront/internal/domain"
	"storefront/internal/repository"
)

// AuthService регистрация, вход и проверка токенов
type AuthService struct {
	users    repository.UserRepository
	tokens   *auth.TokenIssuer
	validate *validator.Validate
	cost     int
}

func NewAuthService(users repository.UserRepository, tokens *auth.TokenIssuer) *AuthService {
	return &AuthService{users: users, tokens: tokens, validate: validator.New(), cost: bcrypt.DefaultCost}
}

// WithHashCost меняет стоимость bcrypt (тесты используют bcrypt.MinCost)
func (s *AuthService) WithHashCost(cost int) *AuthService {
	s.cost = cost
	return s
}

// RegisterInput данные регистрации
type RegisterInput struct {
	Name      string
	Email     string
	Password  string
	Role      domain.Role
	AvatarURL string
}

// Session выданный токен и его владелец
type Session struct {
	Token     string
	ExpiresAt time.Time
	User      *domain.User
}

func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*domain.User, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if in.Role == "" {
		in.Role = domain.RoleUser
	}

	var details []string
	if len(in.Name) < 2 {
		details = append(details, "name must be at least 2 characters")
	}
	if err := s.validate.Var(in.Email, "required,email"); err != nil {
		details = append(details, "email must be a valid email")
	}
	if len(in.Password) < 6 {
		details = append(details, "password must be at least 6 characters")
	}
	if !in.Role.Valid() {
		details = append(details, "role must be SUPPLIER or USER")
	}
	if len(details) > 0 {
		return nil, apperr.InvalidRequest("validation error", details...)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cost)
	if err != nil {
		return nil, apperr.Wrap(err, "hash password")
	}
	u := domain.User{
		Name:         in.Name,
		Email:        in.Email,
		PasswordHash: string(hash),
		Role:         in.Role,
		AvatarURL:    in.AvatarURL,
	}
	if err := s.users.Create(ctx, &u); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperr.Conflict("email already used")
		}
		return nil, apperr.Wrap(err, "create user")
	}
	return &u, nil
}

func (s *AuthService) Login(ctx context.Context, email, password string) (*Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	u, err := s.users.GetByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.Unauthenticated("invalid credentials")
	}
	if err != nil {
		return nil, apperr.Wrap(err, "find user")
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return nil, apperr.Unauthenticated("invalid credentials")
	}
	token, exp, err := s.tokens.Issue(domain.Actor{ID: u.ID, Role: u.Role})
	if err != nil {
		return nil, apperr.Wrap(err, "issue token")
	}
	return &Session{Token: token, ExpiresAt: exp, User: u}, nil
}

// Authenticate превращает токен в участника запроса
func (s *AuthService) Authenticate(token string) (domain.Actor, error) {
	if token == "" {
		return domain.Actor{}, apperr.Unauthenticated("missing or invalid authorization")
	}
	actor, err := s.tokens.Parse(token)
	if err != nil {
		return domain.Actor{}, apperr.Unauthenticated("invalid token")
	}
	return actor, nil
}

// TokenTTL срок жизни сессии (для cookie)
func (s *AuthService) TokenTTL() time.Duration { return s.tokens.TTL() }

func (s *AuthService) Me(ctx context.Context, actor domain.Actor) (*domain.User, error) {
	if !actor.Authenticated() {
		return nil, apperr.Unauthenticated("login required")
	}
	u, err := s.users.GetByID(ctx, actor.ID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.NotFound("user not found")
	}
	if err != nil {
		return nil, apperr.Wrap(err, "get user")
	}
	return u, nil
}

// DeleteAccount удаляет профиль; заказы и переводы остаются в истории
func (s *AuthService) DeleteAccount(ctx context.Context, actor domain.Actor) error {
	if !actor.Authenticated() {
		return apperr.Unauthenticated("login required")
	}
	err := s.users.Delete(ctx, actor.ID)
	if errors.Is(err, repository.ErrNotFound) {
		return apperr.NotFound("user not found")
	}
	return apperr.Wrap(err, "delete user")
}
