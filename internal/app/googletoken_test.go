package app

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func signToken(t *testing.T, key *rsa.PrivateKey, kid string, claims map[string]any) string {
	t.Helper()
	header := map[string]any{"alg": "RS256", "kid": kid, "typ": "JWT"}
	enc := func(v any) string {
		b, err := json.Marshal(v)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		return base64.RawURLEncoding.EncodeToString(b)
	}
	signing := enc(header) + "." + enc(claims)
	digest := sha256.Sum256([]byte(signing))
	sig, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, digest[:])
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return signing + "." + base64.RawURLEncoding.EncodeToString(sig)
}

func jwksServer(t *testing.T, key *rsa.PrivateKey, kid string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"keys": []map[string]any{{
				"kid": kid,
				"kty": "RSA",
				"n":   base64.RawURLEncoding.EncodeToString(key.PublicKey.N.Bytes()),
				"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.PublicKey.E)).Bytes()),
			}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func validClaims() map[string]any {
	return map[string]any{
		"iss":            "https://accounts.google.com",
		"aud":            "client-123",
		"exp":            time.Now().Add(time.Hour).Unix(),
		"email":          "user@example.com",
		"email_verified": true,
	}
}

func newVerifier(t *testing.T, key *rsa.PrivateKey) *GoogleTokenVerifier {
	t.Helper()
	srv := jwksServer(t, key, "kid1")
	return &GoogleTokenVerifier{
		ClientID:      "client-123",
		AllowedEmails: []string{"user@example.com"},
		JWKSURL:       srv.URL,
		HTTPClient:    srv.Client(),
	}
}

func testKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return key
}

func TestVerify_ValidToken(t *testing.T) {
	key := testKey(t)
	v := newVerifier(t, key)
	token := signToken(t, key, "kid1", validClaims())
	if err := v.Verify(context.Background(), token); err != nil {
		t.Fatalf("valid token rejected: %v", err)
	}
}

func TestVerify_BadSignature(t *testing.T) {
	key := testKey(t)
	other := testKey(t)
	v := newVerifier(t, key)
	token := signToken(t, other, "kid1", validClaims())
	if err := v.Verify(context.Background(), token); err == nil {
		t.Fatalf("token signed with wrong key accepted")
	}
}

func TestVerify_Expired(t *testing.T) {
	key := testKey(t)
	v := newVerifier(t, key)
	claims := validClaims()
	claims["exp"] = time.Now().Add(-time.Minute).Unix()
	if err := v.Verify(context.Background(), signToken(t, key, "kid1", claims)); err == nil {
		t.Fatalf("expired token accepted")
	}
}

func TestVerify_WrongAudience(t *testing.T) {
	key := testKey(t)
	v := newVerifier(t, key)
	claims := validClaims()
	claims["aud"] = "someone-else"
	if err := v.Verify(context.Background(), signToken(t, key, "kid1", claims)); err == nil {
		t.Fatalf("wrong audience accepted")
	}
}

func TestVerify_EmailNotAllowed(t *testing.T) {
	key := testKey(t)
	v := newVerifier(t, key)
	claims := validClaims()
	claims["email"] = "stranger@example.com"
	if err := v.Verify(context.Background(), signToken(t, key, "kid1", claims)); err == nil {
		t.Fatalf("non-allowlisted email accepted")
	}
}

func TestVerify_UnverifiedEmail(t *testing.T) {
	key := testKey(t)
	v := newVerifier(t, key)
	claims := validClaims()
	claims["email_verified"] = false
	if err := v.Verify(context.Background(), signToken(t, key, "kid1", claims)); err == nil {
		t.Fatalf("unverified email accepted")
	}
}

func TestVerify_MalformedToken(t *testing.T) {
	key := testKey(t)
	v := newVerifier(t, key)
	for _, token := range []string{"", "only-one-part", "a.b", strings.Repeat(".", 2)} {
		if err := v.Verify(context.Background(), token); err == nil {
			t.Fatalf("malformed token %q accepted", token)
		}
	}
}
