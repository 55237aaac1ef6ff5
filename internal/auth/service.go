package auth

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"norvia-broker/internal/accounts"
	"norvia-broker/internal/apperr"
	"norvia-broker/internal/db"
	"norvia-broker/internal/httputil"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"
)

const (
	RoleTrader = "trader"
	RoleAdmin  = "admin"
)

var errInvalidCredentials = apperr.Unauthorized("invalid credentials")

type Service struct {
	pool       *pgxpool.Pool
	issuer     string
	secret     []byte
	ttl        time.Duration
	accountSvc *accounts.Service
	now        func() time.Time
}

type User struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	Handle        string    `json:"handle"`
	Roles         []string  `json:"roles"`
	EmailVerified bool      `json:"email_verified"`
	PhoneVerified bool      `json:"phone_verified"`
	CreatedAt     time.Time `json:"created_at"`
}

// Principal is the authenticated caller decoded from a bearer token.
type Principal struct {
	UserID string
	Roles  []string
}

func (p Principal) HasRole(role string) bool {
	return slices.Contains(p.Roles, role)
}

type claims struct {
	Roles []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

func NewService(pool *pgxpool.Pool, accountSvc *accounts.Service, issuer string, secret []byte, ttl time.Duration) *Service {
	return &Service{
		pool:       pool,
		issuer:     issuer,
		secret:     secret,
		ttl:        ttl,
		accountSvc: accountSvc,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

type RegisterInput struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Handle   string `json:"handle" validate:"required,alphanum,min=3,max=32"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

// Register creates the user, its credentials and its trading account in one transaction.
func (s *Service) Register(ctx context.Context, in RegisterInput) (string, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Handle = strings.ToLower(strings.TrimSpace(in.Handle))
	if err := httputil.Validate(in); err != nil {
		return "", err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	var userID string
	err = db.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, "insert into users (email, handle) values ($1, $2) returning id::text", in.Email, in.Handle).Scan(&userID)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, "insert into user_credentials (user_id, password_hash) values ($1, $2)", userID, string(hash)); err != nil {
			return err
		}
		return s.accountSvc.Create(ctx, tx, userID, in.Handle)
	})
	if err != nil {
		if db.IsUniqueViolation(err) {
			return "", apperr.Conflict("email or handle is already registered")
		}
		return "", err
	}
	return userID, nil
}

func (s *Service) Login(ctx context.Context, email, password string) (string, error) {
	var userID, hash string
	var roles []string
	err := s.pool.QueryRow(ctx, `
		select u.id::text, c.password_hash, u.roles
		from users u
		join user_credentials c on c.user_id = u.id
		where u.email = $1
	`, strings.ToLower(strings.TrimSpace(email))).Scan(&userID, &hash, &roles)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", errInvalidCredentials
		}
		return "", err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return "", errInvalidCredentials
	}
	return s.signToken(userID, roles)
}

func (s *Service) signToken(userID string, roles []string) (string, error) {
	now := s.now()
	c := claims{
		Roles: roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.secret)
}

func (s *Service) ParseToken(token string) (Principal, error) {
	parsed, err := jwt.ParseWithClaims(token, &claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return s.secret, nil
	}, jwt.WithIssuer(s.issuer), jwt.WithTimeFunc(s.now))
	if err != nil {
		return Principal{}, err
	}
	c, ok := parsed.Claims.(*claims)
	if !ok || !parsed.Valid {
		return Principal{}, errors.New("invalid token")
	}
	if c.Subject == "" {
		return Principal{}, errors.New("invalid subject")
	}
	return Principal{UserID: c.Subject, Roles: c.Roles}, nil
}

func (s *Service) GetUser(ctx context.Context, userID string) (User, error) {
	var u User
	err := s.pool.QueryRow(ctx, `
		select id::text, email, handle, roles, email_verified, phone_verified, created_at
		from users
		where id = $1
	`, userID).Scan(&u.ID, &u.Email, &u.Handle, &u.Roles, &u.EmailVerified, &u.PhoneVerified, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return u, apperr.NotFound("user")
	}
	return u, err
}

// GrantRole adds role to the user identified by email. Used by the operator CLI.
func (s *Service) GrantRole(ctx context.Context, email, role string) error {
	tag, err := s.pool.Exec(ctx, `
		update users set roles = array_append(roles, $2)
		where email = $1 and not ($2 = any(roles))
	`, strings.ToLower(strings.TrimSpace(email)), role)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := s.pool.QueryRow(ctx, "select exists(select 1 from users where email = $1)", strings.ToLower(strings.TrimSpace(email))).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return apperr.NotFound("user")
		}
	}
	return nil
}
