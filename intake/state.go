package intake

import (
	"crypto/rand"
	"fmt"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	errs "github.com/jrsteele09/go-credential-pool/internal/errors"
)

const stateAudience = "credential-intake"

// StateSigner issues and verifies the OAuth2 state parameter as a short
// lived HS256 JWT, so no server side state has to be kept between the
// redirect and the callback.
type StateSigner struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

type StateOption func(*StateSigner)

// WithNowTime sets the clock used for issuing and verifying (primarily for testing)
func WithNowTime(now func() time.Time) StateOption {
	return func(s *StateSigner) {
		s.now = now
	}
}

// NewStateSigner uses secret as the HMAC key. An empty secret gets a random
// per-process key, which invalidates outstanding states on restart.
func NewStateSigner(secret []byte, ttl time.Duration, opts ...StateOption) *StateSigner {
	if len(secret) == 0 {
		secret = make([]byte, 32)
		_, _ = rand.Read(secret)
	}
	s := &StateSigner{
		secret: secret,
		ttl:    ttl,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *StateSigner) Issue() (string, error) {
	now := s.now()
	claims := jwtlib.RegisteredClaims{
		Audience:  jwtlib.ClaimStrings{stateAudience},
		IssuedAt:  jwtlib.NewNumericDate(now),
		ExpiresAt: jwtlib.NewNumericDate(now.Add(s.ttl)),
		ID:        uuid.NewString(),
	}
	signed, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("[StateSigner Issue] %w", err)
	}
	return signed, nil
}

func (s *StateSigner) Verify(state string) error {
	_, err := jwtlib.ParseWithClaims(state, &jwtlib.RegisteredClaims{}, func(*jwtlib.Token) (any, error) {
		return s.secret, nil
	},
		jwtlib.WithValidMethods([]string{jwtlib.SigningMethodHS256.Alg()}),
		jwtlib.WithAudience(stateAudience),
		jwtlib.WithExpirationRequired(),
		jwtlib.WithTimeFunc(s.now),
	)
	if err != nil {
		return errs.Join(errs.ErrInvalidState, err)
	}
	return nil
}
