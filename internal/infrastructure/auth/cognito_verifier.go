// Package auth verifies bearer tokens issued by a Cognito user pool and maps
// them to the principal the orchestrator resolves permissions for.
package auth

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/singleflight"
)

var (
	ErrMissingToken = errors.New("missing authorization token")
	ErrInvalidToken = errors.New("invalid token")
)

// Principal is the verified caller. UserID is the token subject and must
// equal the stored User id.
type Principal struct {
	UserID string
	Email  string
}

type cognitoClaims struct {
	Email    string `json:"email"`
	TokenUse string `json:"token_use"`
	jwt.RegisteredClaims
}

type CognitoVerifier struct {
	issuer string
	keys   *keySet
}

func NewCognitoVerifier(userPoolID, region string) *CognitoVerifier {
	issuer := fmt.Sprintf("https://cognito-idp.%s.amazonaws.com/%s", region, userPoolID)
	return newCognitoVerifier(issuer, issuer+"/.well-known/jwks.json", &http.Client{Timeout: 5 * time.Second})
}

func newCognitoVerifier(issuer, jwksURL string, client *http.Client) *CognitoVerifier {
	return &CognitoVerifier{issuer: issuer, keys: newKeySet(jwksURL, client)}
}

// Verify checks the Authorization header value and returns its subject.
// Cognito id and access tokens are both accepted.
func (v *CognitoVerifier) Verify(ctx context.Context, authorization string) (Principal, error) {
	raw, ok := strings.CutPrefix(strings.TrimSpace(authorization), "Bearer ")
	if !ok || strings.TrimSpace(raw) == "" {
		return Principal{}, ErrMissingToken
	}
	var claims cognitoClaims
	_, err := jwt.ParseWithClaims(strings.TrimSpace(raw), &claims, func(token *jwt.Token) (any, error) {
		kid, _ := token.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("missing kid")
		}
		return v.keys.key(ctx, kid)
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(v.issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return Principal{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.TokenUse != "" && claims.TokenUse != "id" && claims.TokenUse != "access" {
		return Principal{}, fmt.Errorf("%w: token_use %q", ErrInvalidToken, claims.TokenUse)
	}
	if claims.Subject == "" {
		return Principal{}, fmt.Errorf("%w: no subject", ErrInvalidToken)
	}
	return Principal{UserID: claims.Subject, Email: claims.Email}, nil
}

const (
	keyTTL = 15 * time.Minute
	// An unknown kid triggers a refetch at most this often.
	minRefetch = 30 * time.Second
)

// keySet caches the pool's signing keys by kid. Concurrent misses share one
// fetch.
type keySet struct {
	url    string
	client *http.Client
	group  singleflight.Group

	mu        sync.RWMutex
	keys      map[string]*rsa.PublicKey
	fetchedAt time.Time
}

func newKeySet(url string, client *http.Client) *keySet {
	return &keySet{url: url, client: client, keys: map[string]*rsa.PublicKey{}}
}

func (s *keySet) key(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	s.mu.RLock()
	key, ok := s.keys[kid]
	age := time.Since(s.fetchedAt)
	s.mu.RUnlock()
	if ok && age < keyTTL {
		return key, nil
	}
	if !ok && age < minRefetch {
		return nil, fmt.Errorf("unknown kid %q", kid)
	}

	_, err, _ := s.group.Do("fetch", func() (any, error) {
		return nil, s.fetch(ctx)
	})
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if key, ok := s.keys[kid]; ok {
		return key, nil
	}
	return nil, fmt.Errorf("unknown kid %q", kid)
}

type jwk struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Use string `json:"use"`
	N   string `json:"n"`
	E   string `json:"e"`
}

func (s *keySet) fetch(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch jwks: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch jwks: status %d", resp.StatusCode)
	}
	var body struct {
		Keys []jwk `json:"keys"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("decode jwks: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(body.Keys))
	for _, k := range body.Keys {
		if k.Kty != "RSA" || k.Kid == "" || (k.Use != "" && k.Use != "sig") {
			continue
		}
		pub, err := publicKey(k)
		if err != nil {
			continue
		}
		keys[k.Kid] = pub
	}
	if len(keys) == 0 {
		return errors.New("jwks holds no usable signing keys")
	}
	s.mu.Lock()
	s.keys = keys
	s.fetchedAt = time.Now()
	s.mu.Unlock()
	return nil
}

func publicKey(k jwk) (*rsa.PublicKey, error) {
	n, err := base64.RawURLEncoding.DecodeString(k.N)
	if err != nil {
		return nil, err
	}
	e, err := base64.RawURLEncoding.DecodeString(k.E)
	if err != nil {
		return nil, err
	}
	exp := new(big.Int).SetBytes(e)
	if len(n) == 0 || exp.Sign() == 0 || !exp.IsInt64() || exp.Int64() > 1<<31-1 {
		return nil, errors.New("malformed rsa key")
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(n), E: int(exp.Int64())}, nil
}
