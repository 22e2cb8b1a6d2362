// internal/auth/session.go
package auth

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrNoSubject is returned for a valid token that names no player.
var ErrNoSubject = errors.New("missing sub in jwt")

// Keys signs and verifies player tokens. The "sub" claim carries the player id.
type Keys struct {
	private ed25519.PrivateKey
	public  ed25519.PublicKey
	expire  time.Duration // 0 => never
	now     func() time.Time
}

// ParseExpire reads a TOKEN_EXPIRE_TIME value. "never", "0" and "" mean no expiry.
func ParseExpire(s string) (time.Duration, error) {
	if s == "never" || s == "0" || s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("failed to parse token expire time: %w", err)
	}
	return d, nil
}

// GenerateKeys creates a fresh ed25519 key pair at runtime.
func GenerateKeys(expire time.Duration) (*Keys, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate ed25519 key pair: %w", err)
	}
	return &Keys{private: priv, public: pub, expire: expire, now: time.Now}, nil
}

// LoadKeys reads raw ed25519 private/public keys from file.
func LoadKeys(privatePath, publicPath string, expire time.Duration) (*Keys, error) {
	privateKeyData, err := os.ReadFile(privatePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read private key file: %w", err)
	}
	publicKeyData, err := os.ReadFile(publicPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read public key file: %w", err)
	}
	if len(privateKeyData) != ed25519.PrivateKeySize || len(publicKeyData) != ed25519.PublicKeySize {
		return nil, errors.New("key files are not raw ed25519 keys")
	}
	return &Keys{
		private: ed25519.PrivateKey(privateKeyData),
		public:  ed25519.PublicKey(publicKeyData),
		expire:  expire,
		now:     time.Now,
	}, nil
}

// CreateJWT signs a token for playerID, with exp when an expiry is configured.
func (k *Keys) CreateJWT(playerID string) (string, error) {
	claims := jwt.MapClaims{"sub": playerID}
	if k.expire > 0 {
		claims["exp"] = k.now().Add(k.expire).Unix()
	}
	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	return token.SignedString(k.private)
}

// AuthenticateJWT verifies a token and returns its "sub".
func (k *Keys) AuthenticateJWT(tokenString string) (string, error) {
	t, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return k.public, nil
	}, jwt.WithTimeFunc(k.now))
	if err != nil {
		return "", fmt.Errorf("jwt parse error: %w", err)
	}
	if !t.Valid {
		return "", errors.New("invalid token")
	}

	claims, ok := t.Claims.(jwt.MapClaims)
	if !ok {
		return "", errors.New("invalid jwt claims")
	}
	playerID, ok := claims["sub"].(string)
	if !ok || playerID == "" {
		return "", ErrNoSubject
	}
	return playerID, nil
}
