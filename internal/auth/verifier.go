package auth

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/RNCC-Cubesat/kubos/internal/config"
)

// VerifierConfig holds configuration for JWT verification.
type VerifierConfig struct {
	// Algorithm is "RS256" or "HS256".
	Algorithm string

	// RS256 configuration
	PublicKeyPEM string

	// HS256 configuration
	SecretKey string
}

// Verifier handles JWT token verification with support for RS256 and HS256.
type Verifier struct {
	config    VerifierConfig
	publicKey *rsa.PublicKey
}

// NewVerifier creates a new JWT verifier.
func NewVerifier(cfg VerifierConfig) (*Verifier, error) {
	v := &Verifier{config: cfg}

	switch cfg.Algorithm {
	case "RS256":
		if err := v.loadPublicKeyFromPEM(cfg.PublicKeyPEM); err != nil {
			return nil, fmt.Errorf("failed to load public key from PEM: %w", err)
		}
	case "HS256":
		if cfg.SecretKey == "" {
			return nil, fmt.Errorf("HS256 requires secret key")
		}
	default:
		return nil, fmt.Errorf("unsupported algorithm: %s", cfg.Algorithm)
	}

	return v, nil
}

// NewVerifierFromConfig builds a verifier from the service auth settings,
// reading the RS256 public key file.
func NewVerifierFromConfig(cfg config.AuthConfig) (*Verifier, error) {
	vc := VerifierConfig{
		Algorithm: cfg.Algorithm,
		SecretKey: cfg.SecretKey,
	}
	if cfg.Algorithm == "RS256" {
		data, err := os.ReadFile(cfg.PublicKeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read public key: %w", err)
		}
		vc.PublicKeyPEM = string(data)
	}
	return NewVerifier(vc)
}

// VerifyToken verifies a JWT token and returns the claims.
func (v *Verifier) VerifyToken(tokenString string) (*Claims, error) {
	if strings.TrimSpace(tokenString) == "" {
		return nil, fmt.Errorf("token cannot be empty")
	}

	token, err := jwt.ParseWithClaims(tokenString, &jwt.MapClaims{}, v.keyFunc,
		jwt.WithValidMethods([]string{v.config.Algorithm}))
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	claims, ok := token.Claims.(*jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("invalid token claims")
	}

	return v.extractClaimsFromMap(claims)
}

func (v *Verifier) keyFunc(token *jwt.Token) (interface{}, error) {
	switch v.config.Algorithm {
	case "RS256":
		return v.publicKey, nil
	case "HS256":
		return []byte(v.config.SecretKey), nil
	}
	return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
}

// extractClaimsFromMap extracts claims from JWT MapClaims.
func (v *Verifier) extractClaimsFromMap(claims *jwt.MapClaims) (*Claims, error) {
	sub, ok := (*claims)["sub"].(string)
	if !ok {
		return nil, fmt.Errorf("missing or invalid 'sub' claim")
	}

	roles, err := extractStringSlice(claims, "roles")
	if err != nil {
		return nil, fmt.Errorf("missing or invalid 'roles' claim: %w", err)
	}

	scopes, err := extractStringSlice(claims, "scopes")
	if err != nil {
		return nil, fmt.Errorf("missing or invalid 'scopes' claim: %w", err)
	}

	if !validateAll(roles, RoleViewer, RoleOperator) {
		return nil, fmt.Errorf("invalid roles: %v", roles)
	}

	if !validateAll(scopes, ScopeRead, ScopeCommand) {
		return nil, fmt.Errorf("invalid scopes: %v", scopes)
	}

	return &Claims{
		Subject: sub,
		Roles:   roles,
		Scopes:  scopes,
	}, nil
}

// extractStringSlice extracts a string slice from claims.
func extractStringSlice(claims *jwt.MapClaims, key string) ([]string, error) {
	value, ok := (*claims)[key]
	if !ok {
		return nil, fmt.Errorf("missing claim: %s", key)
	}

	switch val := value.(type) {
	case []string:
		return val, nil
	case []interface{}:
		result := make([]string, len(val))
		for i, item := range val {
			str, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("invalid %s claim: not a string", key)
			}
			result[i] = str
		}
		return result, nil
	default:
		return nil, fmt.Errorf("invalid %s claim: not a string array", key)
	}
}

// validateAll reports whether values is non-empty and every value is allowed.
func validateAll(values []string, allowed ...string) bool {
	valid := make(map[string]bool, len(allowed))
	for _, a := range allowed {
		valid[a] = true
	}
	for _, v := range values {
		if !valid[v] {
			return false
		}
	}
	return len(values) > 0
}

// loadPublicKeyFromPEM loads a public key from PEM format.
func (v *Verifier) loadPublicKeyFromPEM(pemData string) error {
	block, _ := pem.Decode([]byte(pemData))
	if block == nil {
		return fmt.Errorf("failed to decode PEM block")
	}

	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return fmt.Errorf("failed to parse public key: %w", err)
	}

	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return fmt.Errorf("not an RSA public key")
	}

	v.publicKey = rsaPub
	return nil
}
