package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testIssuer   = "https://id.example.com/"
	testAudience = "https://api.askfox.example"
)

func newTestVerifier(t *testing.T) (*Verifier, *rsa.PrivateKey) {
	t.Helper()
	return newTestVerifierFor(t, testIssuer)
}

func newTestVerifierFor(t *testing.T, issuer string) (*Verifier, *rsa.PrivateKey) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	jwks := newJWKS(key, "test-key")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(jwks)
	}))
	t.Cleanup(server.Close)

	verifier, err := NewVerifier(issuer, testAudience, server.URL)
	require.NoError(t, err)
	return verifier, key
}

func signToken(t *testing.T, key *rsa.PrivateKey, kid string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = kid
	tokenString, err := token.SignedString(key)
	require.NoError(t, err)
	return tokenString
}

func validClaims() jwt.MapClaims {
	now := time.Now()
	return jwt.MapClaims{
		"iss":   testIssuer,
		"aud":   testAudience,
		"sub":   "user-123",
		"email": "user@example.com",
		"exp":   now.Add(10 * time.Minute).Unix(),
		"iat":   now.Unix(),
	}
}

type jwksPayload struct {
	Keys []jwk `json:"keys"`
}

type jwk struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Use string `json:"use"`
	Alg string `json:"alg"`
	N   string `json:"n"`
	E   string `json:"e"`
}

func newJWKS(key *rsa.PrivateKey, kid string) jwksPayload {
	n := base64.RawURLEncoding.EncodeToString(key.PublicKey.N.Bytes())
	e := base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.PublicKey.E)).Bytes())
	return jwksPayload{
		Keys: []jwk{{Kty: "RSA", Kid: kid, Use: "sig", Alg: "RS256", N: n, E: e}},
	}
}

func TestVerify_Valid(t *testing.T) {
	verifier, key := newTestVerifier(t)

	claims, err := verifier.Verify(signToken(t, key, "test-key", validClaims()))
	require.NoError(t, err)
	assert.Equal(t, "user-123", claims.Subject)
	assert.Equal(t, "user@example.com", claims.Email)
	assert.Equal(t, testIssuer, claims.Issuer)
	assert.False(t, claims.ExpiresAt.IsZero())
}

func TestVerify_Rejects(t *testing.T) {
	verifier, key := newTestVerifier(t)
	otherKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	tests := map[string]string{
		"wrong key": signToken(t, otherKey, "test-key", validClaims()),
		"wrong issuer": signToken(t, key, "test-key", func() jwt.MapClaims {
			c := validClaims()
			c["iss"] = "https://evil.example.com/"
			return c
		}()),
		"wrong audience": signToken(t, key, "test-key", func() jwt.MapClaims {
			c := validClaims()
			c["aud"] = "someone-else"
			return c
		}()),
		"expired": signToken(t, key, "test-key", func() jwt.MapClaims {
			c := validClaims()
			c["exp"] = time.Now().Add(-time.Hour).Unix()
			return c
		}()),
		"no sub": signToken(t, key, "test-key", func() jwt.MapClaims {
			c := validClaims()
			delete(c, "sub")
			return c
		}()),
		"garbage": "not.a.jwt",
	}

	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := verifier.Verify(token)
			assert.Error(t, err)
		})
	}
}

func TestVerify_IssuerMatchesExactly(t *testing.T) {
	const bare = "https://clerk.example.com"
	verifier, key := newTestVerifierFor(t, bare)

	claims := validClaims()
	claims["iss"] = bare
	got, err := verifier.Verify(signToken(t, key, "test-key", claims))
	require.NoError(t, err)
	assert.Equal(t, bare, got.Issuer)

	claims["iss"] = bare + "/"
	_, err = verifier.Verify(signToken(t, key, "test-key", claims))
	assert.Error(t, err)
}

func TestDefaultJWKSURL(t *testing.T) {
	assert.Equal(t, "https://clerk.example.com/.well-known/jwks.json", defaultJWKSURL("https://clerk.example.com"))
	assert.Equal(t, "https://id.example.com/.well-known/jwks.json", defaultJWKSURL("https://id.example.com/"))
}

func TestVerify_HS256Refused(t *testing.T) {
	verifier, _ := newTestVerifier(t)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, validClaims())
	token.Header["kid"] = "test-key"
	signed, err := token.SignedString([]byte("shared"))
	require.NoError(t, err)

	_, err = verifier.Verify(signed)
	assert.Error(t, err)
}

func TestNewVerifier_RequiresIssuer(t *testing.T) {
	_, err := NewVerifier(" ", "", "")
	assert.Error(t, err)
}

func TestExtractBearerToken(t *testing.T) {
	token, ok := ExtractBearerToken("Bearer abc")
	if !ok || token != "abc" {
		t.Fatalf("expected token")
	}
	if _, ok := ExtractBearerToken("Bearer"); ok {
		t.Fatalf("expected invalid header")
	}
	if _, ok := ExtractBearerToken("Token abc"); ok {
		t.Fatalf("expected invalid scheme")
	}
	if _, ok := ExtractBearerToken(""); ok {
		t.Fatalf("expected empty header to be invalid")
	}
}
