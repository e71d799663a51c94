package app

import (
	"context"
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"
)

// googleJWKSURL serves the RSA keys Google signs identity tokens with.
const googleJWKSURL = "https://www.googleapis.com/oauth2/v3/certs"

// GoogleTokenVerifier verifies Google-issued identity tokens: RS256
// signature against Google's published keys, audience, expiry, and an email
// allowlist. Tokens are never accepted on payload parsing alone.
type GoogleTokenVerifier struct {
	// ClientID is the required aud claim.
	ClientID string
	// AllowedEmails is the whitelist; empty means any verified email.
	AllowedEmails []string
	// JWKSURL overrides the key endpoint, for tests.
	JWKSURL string
	// HTTPClient fetches the key set. Nil means a 10s default.
	HTTPClient *http.Client

	mu        sync.Mutex
	keys      map[string]*rsa.PublicKey
	fetchedAt time.Time
}

// keyCacheTTL bounds how long a fetched key set is reused.
const keyCacheTTL = time.Hour

type jwks struct {
	Keys []struct {
		Kid string `json:"kid"`
		Kty string `json:"kty"`
		N   string `json:"n"`
		E   string `json:"e"`
	} `json:"keys"`
}

type idTokenClaims struct {
	Aud           string `json:"aud"`
	Exp           int64  `json:"exp"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Iss           string `json:"iss"`
}

// Verify checks the token end to end. Any failure is a rejection; there is
// no unverified fallback.
func (v *GoogleTokenVerifier) Verify(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return errors.New("identity token required")
	}
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return errors.New("malformed identity token")
	}

	var header struct {
		Alg string `json:"alg"`
		Kid string `json:"kid"`
	}
	if err := decodeSegment(parts[0], &header); err != nil {
		return fmt.Errorf("token header: %w", err)
	}
	if header.Alg != "RS256" {
		return fmt.Errorf("unsupported token algorithm %q", header.Alg)
	}

	key, err := v.keyFor(ctx, header.Kid)
	if err != nil {
		return err
	}
	sig, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil {
		return fmt.Errorf("token signature: %w", err)
	}
	digest := sha256.Sum256([]byte(parts[0] + "." + parts[1]))
	if err := rsa.VerifyPKCS1v15(key, crypto.SHA256, digest[:], sig); err != nil {
		return errors.New("identity token signature invalid")
	}

	var claims idTokenClaims
	if err := decodeSegment(parts[1], &claims); err != nil {
		return fmt.Errorf("token claims: %w", err)
	}
	if claims.Iss != "https://accounts.google.com" && claims.Iss != "accounts.google.com" {
		return errors.New("identity token issuer not recognized")
	}
	if v.ClientID != "" && claims.Aud != v.ClientID {
		return errors.New("identity token audience mismatch")
	}
	if time.Now().Unix() >= claims.Exp {
		return errors.New("identity token expired")
	}
	if !claims.EmailVerified {
		return errors.New("identity token email not verified")
	}
	if len(v.AllowedEmails) > 0 {
		for _, allowed := range v.AllowedEmails {
			if strings.EqualFold(allowed, claims.Email) {
				return nil
			}
		}
		return errors.New("identity not on the allowlist")
	}
	return nil
}

func (v *GoogleTokenVerifier) keyFor(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.keys != nil && time.Since(v.fetchedAt) < keyCacheTTL {
		if key, ok := v.keys[kid]; ok {
			return key, nil
		}
	}
	if err := v.refreshKeysLocked(ctx); err != nil {
		return nil, err
	}
	key, ok := v.keys[kid]
	if !ok {
		return nil, fmt.Errorf("no signing key %q", kid)
	}
	return key, nil
}

func (v *GoogleTokenVerifier) refreshKeysLocked(ctx context.Context) error {
	url := v.JWKSURL
	if url == "" {
		url = googleJWKSURL
	}
	hc := v.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("fetch signing keys: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch signing keys: status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	var set jwks
	if err := json.Unmarshal(body, &set); err != nil {
		return fmt.Errorf("parse signing keys: %w", err)
	}
	keys := make(map[string]*rsa.PublicKey, len(set.Keys))
	for _, k := range set.Keys {
		if k.Kty != "RSA" {
			continue
		}
		nBytes, err := base64.RawURLEncoding.DecodeString(k.N)
		if err != nil {
			continue
		}
		eBytes, err := base64.RawURLEncoding.DecodeString(k.E)
		if err != nil {
			continue
		}
		e := 0
		for _, b := range eBytes {
			e = e<<8 | int(b)
		}
		keys[k.Kid] = &rsa.PublicKey{N: new(big.Int).SetBytes(nBytes), E: e}
	}
	if len(keys) == 0 {
		return errors.New("signing key set empty")
	}
	v.keys = keys
	v.fetchedAt = time.Now()
	return nil
}

func decodeSegment(segment string, into any) error {
	data, err := base64.RawURLEncoding.DecodeString(segment)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, into)
}
