package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/form3tech-oss/jwt-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newKeyAndJWKS(t *testing.T, kid string) (*rsa.PrivateKey, *httptest.Server) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	n := base64.RawURLEncoding.EncodeToString(key.PublicKey.N.Bytes())
	e := base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.PublicKey.E)).Bytes())
	doc := fmt.Sprintf(`{"keys":[{"kty":"RSA","kid":%q,"n":%q,"e":%q}]}`, kid, n, e)

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(doc))
	}))
	t.Cleanup(ts.Close)
	return key, ts
}

func signToken(t *testing.T, key *rsa.PrivateKey, kid string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = kid
	raw, err := token.SignedString(key)
	require.NoError(t, err)
	return raw
}

func TestVerifyAcceptsSignedToken(t *testing.T) {
	key, ts := newKeyAndJWKS(t, "k1")
	v := NewJWKSVerifier(ts.URL, "dicee-test")

	raw := signToken(t, key, "k1", jwt.MapClaims{
		"sub":   "user-123",
		"iss":   "dicee-test",
		"email": "alice@example.com",
		"name":  "Alice",
		"exp":   time.Now().Add(time.Hour).Unix(),
	})

	claims, err := v.Verify(context.Background(), raw)
	require.NoError(t, err)
	assert.Equal(t, "user-123", claims.UserID)
	assert.Equal(t, "alice@example.com", claims.Email)
	assert.Equal(t, "Alice", claims.DisplayName)
}

func TestVerifyRejectsBadTokens(t *testing.T) {
	key, ts := newKeyAndJWKS(t, "k1")
	v := NewJWKSVerifier(ts.URL, "dicee-test")

	tests := []struct {
		name string
		raw  string
	}{
		{name: "garbage", raw: "not.a.token"},
		{name: "wrong issuer", raw: signToken(t, key, "k1", jwt.MapClaims{
			"sub": "u1", "iss": "someone-else", "exp": time.Now().Add(time.Hour).Unix(),
		})},
		{name: "expired", raw: signToken(t, key, "k1", jwt.MapClaims{
			"sub": "u1", "iss": "dicee-test", "exp": time.Now().Add(-time.Hour).Unix(),
		})},
		{name: "missing subject", raw: signToken(t, key, "k1", jwt.MapClaims{
			"iss": "dicee-test", "exp": time.Now().Add(time.Hour).Unix(),
		})},
		{name: "unknown key id", raw: signToken(t, key, "k2", jwt.MapClaims{
			"sub": "u1", "iss": "dicee-test", "exp": time.Now().Add(time.Hour).Unix(),
		})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Verify(context.Background(), tt.raw)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrUnauthorized)
		})
	}
}

func TestVerifyRejectsWrongSigningMethod(t *testing.T) {
	_, ts := newKeyAndJWKS(t, "k1")
	v := NewJWKSVerifier(ts.URL, "dicee-test")

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "u1", "iss": "dicee-test", "exp": time.Now().Add(time.Hour).Unix(),
	})
	token.Header["kid"] = "k1"
	raw, err := token.SignedString([]byte("shared-secret"))
	require.NoError(t, err)

	_, err = v.Verify(context.Background(), raw)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestVerifyUnavailableKeySet(t *testing.T) {
	key, _ := newKeyAndJWKS(t, "k1")
	v := NewJWKSVerifier("http://127.0.0.1:1/jwks.json", "dicee-test")

	raw := signToken(t, key, "k1", jwt.MapClaims{
		"sub": "u1", "iss": "dicee-test", "exp": time.Now().Add(time.Hour).Unix(),
	})

	_, err := v.Verify(context.Background(), raw)
	assert.ErrorIs(t, err, ErrUnavailable)
}
