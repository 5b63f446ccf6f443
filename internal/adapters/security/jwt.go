package security

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/viralforge/mesh/services/platform-ops/M18-cache-state-management/internal/ports"
)

// JWTVerifier validates RS256 access tokens minted by the authentication
// service. Only the issuer's public key is held here; this module never signs.
type JWTVerifier struct {
	issuer    string
	publicKey *rsa.PublicKey
}

// NewJWTVerifier builds a verifier from the issuer's public key PEM.
// Issuer is optional; when set, tokens with a different iss claim are rejected.
func NewJWTVerifier(issuer, publicKeyPEM string) (*JWTVerifier, error) {
	if strings.TrimSpace(publicKeyPEM) == "" {
		return nil, errors.New("jwt public key is required")
	}
	pub, err := parseRSAPublic(publicKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}
	return &JWTVerifier{issuer: strings.TrimSpace(issuer), publicKey: pub}, nil
}

type accessTokenClaims struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

func (v *JWTVerifier) Verify(raw string) (ports.AuthClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithLeeway(30 * time.Second),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	parsed, err := jwt.ParseWithClaims(raw, &accessTokenClaims{}, func(token *jwt.Token) (any, error) {
		if token.Method.Alg() != jwt.SigningMethodRS256.Alg() {
			return nil, fmt.Errorf("unexpected signing method: %s", token.Method.Alg())
		}
		return v.publicKey, nil
	}, opts...)
	if err != nil {
		return ports.AuthClaims{}, err
	}
	claims, ok := parsed.Claims.(*accessTokenClaims)
	if !ok || !parsed.Valid {
		return ports.AuthClaims{}, errors.New("invalid token claims")
	}

	subject := claims.UserID
	if subject == "" {
		subject = claims.Subject
	}
	if subject == "" {
		return ports.AuthClaims{}, errors.New("token missing subject")
	}

	out := ports.AuthClaims{SubjectID: subject, Role: claims.Role}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time.UTC()
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time.UTC()
	}
	return out, nil
}

// PassthroughVerifier treats the bearer token itself as the subject id.
// It exists for local development when no issuer key is configured and
// must never be enabled in shared environments.
type PassthroughVerifier struct{}

func NewPassthroughVerifier() *PassthroughVerifier { return &PassthroughVerifier{} }

func (*PassthroughVerifier) Verify(raw string) (ports.AuthClaims, error) {
	subject := strings.TrimSpace(raw)
	if subject == "" {
		return ports.AuthClaims{}, errors.New("empty bearer token")
	}
	return ports.AuthClaims{SubjectID: subject, Role: "service"}, nil
}

func parseRSAPublic(raw string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(raw))
	if block == nil {
		return nil, errors.New("invalid public PEM")
	}
	if key, err := x509.ParsePKCS1PublicKey(block.Bytes); err == nil {
		return key, nil
	}
	keyAny, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	key, ok := keyAny.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("public key is not RSA")
	}
	return key, nil
}
