// Package auth issues guest identities and optional registered accounts.
// Every trading row keys off a guest id; registering merely binds a
// durable login to one so it can be recovered from another browser.
package auth

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"

	"github.com/NaierGG/Nierade/internal/apperr"
)

var guestIDRe = regexp.MustCompile(`^guest_[0-9a-fA-F-]{36}$`)

// NewGuestID mints a fresh anonymous identity.
func NewGuestID() string {
	return "guest_" + uuid.NewString()
}

// ValidGuestID reports whether id has the guest_<uuid> shape. Accounts
// are created lazily, so shape is the only check the hot path does.
func ValidGuestID(id string) bool {
	return guestIDRe.MatchString(id)
}

type Service struct {
	pool   *pgxpool.Pool
	issuer string
	secret []byte
	ttl    time.Duration
}

type User struct {
	ID      string `json:"id"`
	Email   string `json:"email"`
	GuestID string `json:"guestId"`
}

func NewService(pool *pgxpool.Pool, issuer string, secret []byte, ttl time.Duration) *Service {
	return &Service{pool: pool, issuer: issuer, secret: secret, ttl: ttl}
}

// Register creates a login bound to guestID, or to a fresh guest
// identity when none is supplied.
func (s *Service) Register(ctx context.Context, email, password, guestID string) (string, User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return "", User{}, apperr.Validation("a valid email is required")
	}
	if len(password) < 8 {
		return "", User{}, apperr.Validation("password must be at least 8 characters")
	}
	if guestID == "" {
		guestID = NewGuestID()
	} else if !ValidGuestID(guestID) {
		return "", User{}, apperr.Validation("invalid guestId")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", User{}, err
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return "", User{}, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`insert into guests (id) values ($1) on conflict (id) do nothing`, guestID); err != nil {
		return "", User{}, err
	}
	var userID string
	err = tx.QueryRow(ctx,
		`insert into users (email, password_hash, guest_id) values ($1, $2, $3) returning id`,
		email, string(hash), guestID).Scan(&userID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return "", User{}, apperr.Validation("email is already registered")
		}
		return "", User{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return "", User{}, err
	}

	token, err := s.signToken(userID)
	if err != nil {
		return "", User{}, err
	}
	return token, User{ID: userID, Email: email, GuestID: guestID}, nil
}

func (s *Service) Login(ctx context.Context, email, password string) (string, User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	var u User
	var hash string
	err := s.pool.QueryRow(ctx,
		`select id, email, guest_id, password_hash from users where email = $1`,
		email).Scan(&u.ID, &u.Email, &u.GuestID, &hash)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", User{}, apperr.Unauthenticated("invalid credentials")
	}
	if err != nil {
		return "", User{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return "", User{}, apperr.Unauthenticated("invalid credentials")
	}
	token, err := s.signToken(u.ID)
	if err != nil {
		return "", User{}, err
	}
	return token, u, nil
}

// LinkGuest points an existing login at a different guest identity,
// adopting that identity's wallets and history.
func (s *Service) LinkGuest(ctx context.Context, userID, guestID string) (User, error) {
	if !ValidGuestID(guestID) {
		return User{}, apperr.Validation("invalid guestId")
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return User{}, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`insert into guests (id) values ($1) on conflict (id) do nothing`, guestID); err != nil {
		return User{}, err
	}
	var u User
	err = tx.QueryRow(ctx,
		`update users set guest_id = $2 where id = $1 returning id, email, guest_id`,
		userID, guestID).Scan(&u.ID, &u.Email, &u.GuestID)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, apperr.Unauthenticated("unknown user")
	}
	if err != nil {
		return User{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return User{}, err
	}
	return u, nil
}

func (s *Service) GetUser(ctx context.Context, userID string) (User, error) {
	var u User
	err := s.pool.QueryRow(ctx,
		`select id, email, guest_id from users where id = $1`, userID).
		Scan(&u.ID, &u.Email, &u.GuestID)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, apperr.Unauthenticated("unknown user")
	}
	return u, err
}

func (s *Service) signToken(userID string) (string, error) {
	now := time.Now().UTC()
	claims := jwt.RegisteredClaims{
		Issuer:    s.issuer,
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// ParseToken verifies signature, issuer and expiry and returns the
// subject user id.
func (s *Service) ParseToken(token string) (string, error) {
	parsed, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return s.secret, nil
	})
	if err != nil {
		return "", apperr.Unauthenticated("invalid token")
	}
	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok || !parsed.Valid || claims.Issuer != s.issuer || claims.Subject == "" {
		return "", apperr.Unauthenticated("invalid token")
	}
	return claims.Subject, nil
}
