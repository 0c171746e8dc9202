package client

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pooly/backend/internal/dto"
)

// AuthClient signs and verifies participant credentials.
type AuthClient interface {
	Sign(identity dto.Identity) (string, error)
	Verify(token string) (dto.Identity, error)
}

type TokenExpireVerifier func(err error) bool

// IsTokenExpired reports whether a Verify error was caused by an expired credential.
func IsTokenExpired(err error) bool {
	return errors.Is(err, jwt.ErrTokenExpired)
}

type credentialClaims struct {
	EventCode string `json:"event_code"`
	UUID      string `json:"uuid"`
	Admin     bool   `json:"admin,omitempty"`
	jwt.RegisteredClaims
}

type jwtAuthClient struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewJWTAuthClient(secret []byte, ttl time.Duration) AuthClient {
	return &jwtAuthClient{secret: secret, ttl: ttl, now: time.Now}
}

func (c *jwtAuthClient) Sign(identity dto.Identity) (string, error) {
	now := c.now()
	claims := credentialClaims{
		EventCode: identity.EventCode,
		UUID:      identity.ParticipantID.String(),
		Admin:     identity.IsAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if c.ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(c.ttl))
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
}

func (c *jwtAuthClient) Verify(token string) (dto.Identity, error) {
	var claims credentialClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		return dto.Identity{}, err
	}

	participantID, err := uuid.Parse(claims.UUID)
	if err != nil {
		return dto.Identity{}, fmt.Errorf("credential uuid claim: %w", err)
	}
	if claims.EventCode == "" {
		return dto.Identity{}, errors.New("credential event_code claim missing")
	}

	return dto.Identity{
		EventCode:     claims.EventCode,
		ParticipantID: participantID,
		IsAdmin:       claims.Admin,
	}, nil
}
