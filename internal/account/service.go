// Package account owns user registration, login and token authentication.
package account

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"

	"github.com/greenworld/greenworld/internal/domain"
	"github.com/greenworld/greenworld/internal/errors"
)

const codeUniqueViolation = "23505"

type Config struct {
	DB       *pgxpool.Pool
	Secret   string
	TokenTTL time.Duration
}

type Service struct {
	db       *pgxpool.Pool
	secret   []byte
	tokenTTL time.Duration
}

func NewService(c Config) *Service {
	return &Service{
		db:       c.DB,
		secret:   []byte(c.Secret),
		tokenTTL: c.TokenTTL,
	}
}

type RegisterRequest struct {
	FullName string
	Email    string
	Password string
}

func (s *Service) Register(ctx context.Context, req RegisterRequest) (*domain.User, error) {
	if req.Email == "" || req.Password == "" {
		return nil, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("email and password are required"))
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	const stmt = `
INSERT INTO users (full_name, email, hashed_password, coins, create_time)
VALUES ($1, $2, $3, 0, $4)
RETURNING user_id, create_time;`

	u := &domain.User{
		FullName: req.FullName,
		Email:    req.Email,
	}

	err = s.db.QueryRow(ctx, stmt, req.FullName, req.Email, hash, time.Now()).
		Scan(&u.UserID, &u.CreatedAt)

	var pgErr *pgconn.PgError
	if stderrors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation {
		return nil, errors.New(errors.CodeAlreadyExists,
			errors.WithMessagef("email %s is already registered", req.Email),
			errors.WithCause(err))
	}
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}

	return u, nil
}

type LoginResponse struct {
	AccessToken string
	User        domain.User
}

func (s *Service) Login(ctx context.Context, email, password string) (*LoginResponse, error) {
	const stmt = `
SELECT user_id, full_name, email, hashed_password, coins, create_time
FROM users WHERE email = $1;`

	var (
		u    domain.User
		hash []byte
	)
	err := s.db.QueryRow(ctx, stmt, email).
		Scan(&u.UserID, &u.FullName, &u.Email, &hash, &u.Coins, &u.CreatedAt)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, badCredentials(err)
	}
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword(hash, []byte(password)); err != nil {
		return nil, badCredentials(err)
	}

	token, err := s.issueToken(u.UserID)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}

	return &LoginResponse{AccessToken: token, User: u}, nil
}

// Authenticate resolves a bearer token to its user.
func (s *Service) Authenticate(ctx context.Context, token string) (*domain.User, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, errors.New(errors.CodeUnauthenticated,
			errors.WithMessagef("invalid token"),
			errors.WithCause(err))
	}

	var userID int64
	if _, err := fmt.Sscanf(claims.Subject, "%d", &userID); err != nil {
		return nil, errors.New(errors.CodeUnauthenticated,
			errors.WithMessagef("invalid token subject"),
			errors.WithCause(err))
	}

	return s.Me(ctx, userID)
}

// Me loads a user by ID, coins included.
func (s *Service) Me(ctx context.Context, userID int64) (*domain.User, error) {
	const stmt = `
SELECT user_id, full_name, email, coins, create_time
FROM users WHERE user_id = $1;`

	var u domain.User
	err := s.db.QueryRow(ctx, stmt, userID).
		Scan(&u.UserID, &u.FullName, &u.Email, &u.Coins, &u.CreatedAt)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, errors.New(errors.CodeUnauthenticated,
			errors.WithMessagef("user %d not found", userID))
	}
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}

	return &u, nil
}

func (s *Service) issueToken(userID int64) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   fmt.Sprintf("%d", userID),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

func badCredentials(err error) error {
	return errors.New(errors.CodeUnauthenticated,
		errors.WithMessagef("invalid email or password"),
		errors.WithCause(err))
}
