package auth

import (
	"care-chat/domain"
	"care-chat/errors"
	"context"
	stderrors "errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// CustomClaims mirrors what the account service signs.
// Older tokens carry the subject in "_id" instead of "id".
type CustomClaims struct {
	UserID   string `json:"id,omitempty"`
	LegacyID string `json:"_id,omitempty"`
	jwt.RegisteredClaims
}

// Identity returns the first non-empty identity claim.
func (c CustomClaims) Identity() string {
	switch {
	case c.UserID != "":
		return c.UserID
	case c.LegacyID != "":
		return c.LegacyID
	default:
		return c.RegisteredClaims.Subject
	}
}

// Verifier checks bearer tokens against the key shared with the account service.
// It holds no state besides the key and is safe for concurrent use.
type Verifier struct {
	key    []byte
	parser *jwt.Parser
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{
		key: []byte(secret),
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithExpirationRequired(),
		),
	}
}

// Verify validates signature and expiry and returns the canonical participant identifier.
// Every failure wraps errors.ErrAuth.
func (v *Verifier) Verify(ctx context.Context, credential string) (domain.ParticipantID, error) {
	if err := ctx.Err(); err != nil {
		return "", errors.Auth(err)
	}
	fields := strings.Fields(credential)
	if len(fields) > 0 && strings.EqualFold(fields[0], "Bearer") {
		fields = fields[1:]
	}
	switch len(fields) {
	case 0:
		return "", errors.Auth(errors.ErrMissingToken)
	case 1:
		credential = fields[0]
	default:
		return "", errors.Auth(errors.ErrMalformedToken)
	}

	var claims CustomClaims
	token, err := v.parser.ParseWithClaims(credential, &claims, func(*jwt.Token) (any, error) {
		return v.key, nil
	})
	switch {
	case stderrors.Is(err, jwt.ErrTokenExpired):
		return "", errors.Auth(errors.ErrExpiredToken)
	case stderrors.Is(err, jwt.ErrTokenSignatureInvalid):
		return "", errors.Auth(errors.ErrInvalidSignature)
	case err != nil || !token.Valid:
		return "", errors.Auth(errors.ErrMalformedToken)
	}

	id, err := domain.ParseParticipantID(claims.Identity())
	if err != nil {
		return "", errors.Auth(errors.ErrInvalidSubject)
	}
	return id, nil
}

// GenerateToken signs a token the same way the account service does.
// Used by tests and local tooling; issuing credentials is not this service's job.
func GenerateToken(secret string, participantID domain.ParticipantID, duration time.Duration) (string, error) {
	now := time.Now()
	claims := &CustomClaims{
		UserID: participantID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(duration)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
