package credential

import (
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/kiranshivaraju/keyhub/internal/apperr"
)

const (
	DefaultTokenTTL = time.Hour
	TokenType       = "Bearer"
)

var (
	ErrTokenExpired   = apperr.New(apperr.Unauthorized, "token expired")
	ErrTokenMalformed = apperr.New(apperr.Unauthorized, "invalid token")
	ErrMissingSecret  = apperr.New(apperr.Configuration, "token signing secret is not configured")
)

// Claims identify the tenant a session token was issued to.
type Claims struct {
	SubjectID int64  `json:"id"`
	Email     string `json:"email"`
	jwt.RegisteredClaims
}

// Token is the wire form of an issued session token.
type Token struct {
	AccessToken string    `json:"accessToken"`
	TokenType   string    `json:"tokenType"`
	ExpiresIn   int64     `json:"expiresIn"`
	ExpiresAt   time.Time `json:"-"`
}

// Signer issues and verifies HS256 session tokens. It is built once at
// startup from configuration and never mutated afterwards.
type Signer struct {
	secret []byte
	ttl    time.Duration
	issuer string
	now    func() time.Time
}

func NewSigner(secret string, ttl time.Duration, issuer string) (*Signer, error) {
	if secret == "" {
		return nil, ErrMissingSecret
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &Signer{
		secret: []byte(secret),
		ttl:    ttl,
		issuer: issuer,
		now:    time.Now,
	}, nil
}

// WithClock returns a copy of s that reads time from now.
func (s *Signer) WithClock(now func() time.Time) *Signer {
	cp := *s
	cp.now = now
	return &cp
}

func (s *Signer) TTL() time.Duration { return s.ttl }

func (s *Signer) Issue(subjectID int64, email string) (Token, error) {
	return s.IssueWithTTL(subjectID, email, s.ttl)
}

func (s *Signer) IssueWithTTL(subjectID int64, email string, ttl time.Duration) (Token, error) {
	now := s.now()
	exp := now.Add(ttl)
	claims := Claims{
		SubjectID: subjectID,
		Email:     email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   strconv.FormatInt(subjectID, 10),
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return Token{}, apperr.Wrap(apperr.Storage, "sign token", err)
	}
	return Token{
		AccessToken: signed,
		TokenType:   TokenType,
		ExpiresIn:   int64(ttl / time.Second),
		ExpiresAt:   exp,
	}, nil
}

// Verify checks signature, algorithm, issuer and expiry. It returns
// ErrTokenExpired or ErrTokenMalformed on failure.
func (s *Signer) Verify(token string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenMalformed
	}
	if !parsed.Valid || claims.SubjectID <= 0 {
		return nil, ErrTokenMalformed
	}
	return claims, nil
}
