// Package auth wraps bearer-token verification against an external
// JWKS-backed identity provider. It is a stateless collaborator from the
// actors' point of view: verify before upgrade, 401 on failure.
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
	"sync"
	"time"

	"github.com/form3tech-oss/jwt-go"
)

var (
	// ErrUnauthorized means the token failed verification.
	ErrUnauthorized = errors.New("auth: token rejected")
	// ErrUnavailable means the key set could not be fetched.
	ErrUnavailable = errors.New("auth: key set unavailable")
)

// Claims carries the verified identity injected into the connection context.
type Claims struct {
	UserID      string
	Email       string
	DisplayName string
}

// Verifier validates a bearer token and extracts identity claims.
type Verifier interface {
	Verify(ctx context.Context, token string) (Claims, error)
}

// JWKSVerifier verifies RS256 tokens against a remote JSON Web Key Set,
// caching fetched keys and refreshing on unknown key ids.
type JWKSVerifier struct {
	url    string
	issuer string
	client *http.Client
	ttl    time.Duration

	mu        sync.Mutex
	keys      map[string]*rsa.PublicKey
	fetchedAt time.Time
}

// NewJWKSVerifier constructs a verifier for the given key-set URL and
// expected issuer.
func NewJWKSVerifier(url, issuer string) *JWKSVerifier {
	return &JWKSVerifier{
		url:    url,
		issuer: issuer,
		client: &http.Client{Timeout: 10 * time.Second},
		ttl:    time.Hour,
	}
}

// Verify parses and validates the token, returning the identity claims.
func (v *JWKSVerifier) Verify(ctx context.Context, raw string) (Claims, error) {
	token, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Header["alg"])
		}
		kid, _ := t.Header["kid"].(string)
		return v.key(ctx, kid)
	})
	if err != nil {
		// jwt-go's ValidationError does not unwrap, so the keyfunc error has
		// to be pulled out of Inner.
		var verr *jwt.ValidationError
		if errors.As(err, &verr) && verr.Inner != nil && errors.Is(verr.Inner, ErrUnavailable) {
			return Claims{}, verr.Inner
		}
		if errors.Is(err, ErrUnavailable) {
			return Claims{}, err
		}
		return Claims{}, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return Claims{}, ErrUnauthorized
	}
	if v.issuer != "" && !claims.VerifyIssuer(v.issuer, true) {
		return Claims{}, fmt.Errorf("%w: issuer mismatch", ErrUnauthorized)
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		return Claims{}, fmt.Errorf("%w: missing subject", ErrUnauthorized)
	}
	email, _ := claims["email"].(string)
	name, _ := claims["name"].(string)
	if name == "" {
		name, _ = claims["display_name"].(string)
	}

	return Claims{UserID: sub, Email: email, DisplayName: name}, nil
}

// key returns the public key for kid, refreshing the cached set when the key
// is unknown or the cache has aged out.
func (v *JWKSVerifier) key(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	stale := time.Since(v.fetchedAt) > v.ttl
	if key, ok := v.keys[kid]; ok && !stale {
		return key, nil
	}
	if err := v.refresh(ctx); err != nil {
		return nil, err
	}
	key, ok := v.keys[kid]
	if !ok {
		return nil, fmt.Errorf("unknown key id %q", kid)
	}
	return key, nil
}

type jwksDocument struct {
	Keys []struct {
		Kty string `json:"kty"`
		Kid string `json:"kid"`
		N   string `json:"n"`
		E   string `json:"e"`
	} `json:"keys"`
}

// refresh fetches the key set. Callers hold v.mu.
func (v *JWKSVerifier) refresh(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.url, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	resp, err := v.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: key set returned %d", ErrUnavailable, resp.StatusCode)
	}

	var doc jwksDocument
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	keys := make(map[string]*rsa.PublicKey, len(doc.Keys))
	for _, k := range doc.Keys {
		if k.Kty != "RSA" {
			continue
		}
		pub, err := parseRSAKey(k.N, k.E)
		if err != nil {
			continue
		}
		keys[k.Kid] = pub
	}
	if len(keys) == 0 {
		return fmt.Errorf("%w: key set contains no usable keys", ErrUnavailable)
	}

	v.keys = keys
	v.fetchedAt = time.Now()
	return nil
}

func parseRSAKey(n, e string) (*rsa.PublicKey, error) {
	nb, err := base64.RawURLEncoding.DecodeString(n)
	if err != nil {
		return nil, fmt.Errorf("decode modulus: %w", err)
	}
	eb, err := base64.RawURLEncoding.DecodeString(e)
	if err != nil {
		return nil, fmt.Errorf("decode exponent: %w", err)
	}

	exponent := 0
	for _, b := range eb {
		exponent = exponent<<8 | int(b)
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(nb), E: exponent}, nil
}
