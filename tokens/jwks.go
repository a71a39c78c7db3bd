package tokens

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/singleflight"
)

// DefaultMinRefreshInterval bounds how often an unknown kid can force a
// key set fetch
const DefaultMinRefreshInterval = time.Minute

// JWKS represents the JSON Web Key Set
type JWKS struct {
	Keys []JWK `json:"keys"`
}

// JWK represents a JSON Web Key
type JWK struct {
	Kid string `json:"kid"`
	Kty string `json:"kty"`
	Alg string `json:"alg"`
	Use string `json:"use"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// jwtClaims is the wire form of the token claims
type jwtClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
	Name  string `json:"name"`
}

// JWKSConfig holds configuration for JWKSValidator
type JWKSConfig struct {
	JWKSURL     string
	Issuer      string // optional
	Audience    string // optional
	CacheTTL    time.Duration
	HTTPTimeout time.Duration
	HTTPClient  *http.Client

	// MinRefreshInterval is the minimum time between fetches triggered by
	// a kid missing from the cached key set
	MinRefreshInterval time.Duration
}

// JWKSValidator validates RS256 JWTs against keys published at a JWKS endpoint
type JWKSValidator struct {
	jwksURL    string
	issuer     string
	audience   string
	httpClient *http.Client

	// Cache for JWKS
	jwksCache          *JWKS
	jwksCacheExp       time.Time
	jwksCacheTTL       time.Duration
	jwksFetchedAt      time.Time
	minRefreshInterval time.Duration
	cacheMu            sync.RWMutex
	fetchGroup         singleflight.Group

	// Cache for parsed public keys
	keyCache   map[string]*rsa.PublicKey
	keyCacheMu sync.RWMutex
}

// NewJWKSValidator creates a new JWKS-backed JWT validator
func NewJWKSValidator(config JWKSConfig) *JWKSValidator {
	if config.CacheTTL == 0 {
		config.CacheTTL = 1 * time.Hour
	}
	if config.HTTPTimeout == 0 {
		config.HTTPTimeout = 10 * time.Second
	}
	if config.MinRefreshInterval == 0 {
		config.MinRefreshInterval = DefaultMinRefreshInterval
	}
	client := config.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: config.HTTPTimeout}
	}

	return &JWKSValidator{
		jwksURL:            config.JWKSURL,
		issuer:             config.Issuer,
		audience:           config.Audience,
		jwksCacheTTL:       config.CacheTTL,
		minRefreshInterval: config.MinRefreshInterval,
		httpClient:         client,
		keyCache:           make(map[string]*rsa.PublicKey),
	}
}

// Verify validates a JWT and returns its claims
func (v *JWKSValidator) Verify(ctx context.Context, tokenString string) (*Claims, error) {
	var keyErr error
	token, err := jwt.ParseWithClaims(tokenString, &jwtClaims{}, func(token *jwt.Token) (interface{}, error) {
		kid, ok := token.Header["kid"].(string)
		if !ok {
			return nil, errors.New("kid header not found")
		}

		publicKey, err := v.getPublicKey(ctx, kid)
		if err != nil {
			keyErr = err
			return nil, err
		}
		return publicKey, nil
	}, jwt.WithValidMethods([]string{"RS256", "RS384", "RS512"}))

	if err != nil {
		if keyErr != nil && errors.Is(keyErr, ErrKeysUnavailable) {
			return nil, keyErr
		}
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*jwtClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	if v.issuer != "" && claims.Issuer != v.issuer {
		return nil, fmt.Errorf("%w: expected %s, got %s", ErrInvalidIssuer, v.issuer, claims.Issuer)
	}
	if v.audience != "" && !slices.Contains(claims.Audience, v.audience) {
		return nil, ErrInvalidAudience
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: sub", ErrMissingClaim)
	}

	parsed := &Claims{
		Subject: claims.Subject,
		Email:   claims.Email,
		Name:    claims.Name,
		Issuer:  claims.Issuer,
	}
	if claims.IssuedAt != nil {
		parsed.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		parsed.ExpiresAt = claims.ExpiresAt.Time
	}
	return parsed, nil
}

// FetchJWKS fetches the key set, serving it from cache while fresh
func (v *JWKSValidator) FetchJWKS(ctx context.Context) (*JWKS, error) {
	v.cacheMu.RLock()
	if v.jwksCache != nil && time.Now().Before(v.jwksCacheExp) {
		defer v.cacheMu.RUnlock()
		return v.jwksCache, nil
	}
	v.cacheMu.RUnlock()

	return v.refreshJWKS(ctx)
}

// refreshJWKS fetches the key set from the endpoint. Concurrent callers
// share one request.
func (v *JWKSValidator) refreshJWKS(ctx context.Context) (*JWKS, error) {
	res, err, _ := v.fetchGroup.Do("jwks", func() (interface{}, error) {
		return v.fetch(ctx)
	})
	if err != nil {
		return nil, err
	}
	return res.(*JWKS), nil
}

func (v *JWKSValidator) fetch(ctx context.Context) (*JWKS, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.jwksURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeysUnavailable, err)
	}

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeysUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status code %d", ErrKeysUnavailable, resp.StatusCode)
	}

	var jwks JWKS
	if err := json.NewDecoder(resp.Body).Decode(&jwks); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrKeysUnavailable, err)
	}

	now := time.Now()
	v.cacheMu.Lock()
	v.jwksCache = &jwks
	v.jwksCacheExp = now.Add(v.jwksCacheTTL)
	v.jwksFetchedAt = now
	v.cacheMu.Unlock()

	return &jwks, nil
}

// canRefresh reports whether an unknown kid may trigger a fetch
func (v *JWKSValidator) canRefresh() bool {
	v.cacheMu.RLock()
	defer v.cacheMu.RUnlock()
	return time.Since(v.jwksFetchedAt) >= v.minRefreshInterval
}

// getPublicKey retrieves the public key for a given kid. A kid missing from
// the cached key set triggers a fetch, at most once per minRefreshInterval,
// so rotated keys are picked up before the cache expires.
func (v *JWKSValidator) getPublicKey(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	v.keyCacheMu.RLock()
	if key, exists := v.keyCache[kid]; exists {
		v.keyCacheMu.RUnlock()
		return key, nil
	}
	v.keyCacheMu.RUnlock()

	jwks, err := v.FetchJWKS(ctx)
	if err != nil {
		return nil, err
	}

	jwk := findKey(jwks, kid)
	if jwk == nil && v.canRefresh() {
		if jwks, err = v.refreshJWKS(ctx); err != nil {
			return nil, err
		}
		jwk = findKey(jwks, kid)
	}
	if jwk == nil {
		return nil, fmt.Errorf("key with kid %s not found in JWKS", kid)
	}

	publicKey, err := jwkToRSAPublicKey(jwk)
	if err != nil {
		return nil, fmt.Errorf("failed to convert JWK to RSA public key: %w", err)
	}

	v.keyCacheMu.Lock()
	v.keyCache[kid] = publicKey
	v.keyCacheMu.Unlock()

	return publicKey, nil
}

func findKey(jwks *JWKS, kid string) *JWK {
	for i := range jwks.Keys {
		if jwks.Keys[i].Kid == kid {
			return &jwks.Keys[i]
		}
	}
	return nil
}

// InvalidateCache drops the cached key set and parsed keys
func (v *JWKSValidator) InvalidateCache() {
	v.cacheMu.Lock()
	defer v.cacheMu.Unlock()
	v.jwksCache = nil
	v.jwksCacheExp = time.Time{}
	v.jwksFetchedAt = time.Time{}

	v.keyCacheMu.Lock()
	defer v.keyCacheMu.Unlock()
	v.keyCache = make(map[string]*rsa.PublicKey)
}

// CachedKeys returns the number of parsed keys held in cache
func (v *JWKSValidator) CachedKeys() int {
	v.keyCacheMu.RLock()
	defer v.keyCacheMu.RUnlock()
	return len(v.keyCache)
}

func jwkToRSAPublicKey(jwk *JWK) (*rsa.PublicKey, error) {
	if jwk.Kty != "" && jwk.Kty != "RSA" {
		return nil, fmt.Errorf("unsupported key type %q", jwk.Kty)
	}

	nBytes, err := base64.RawURLEncoding.DecodeString(jwk.N)
	if err != nil {
		return nil, fmt.Errorf("failed to decode modulus: %w", err)
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(jwk.E)
	if err != nil {
		return nil, fmt.Errorf("failed to decode exponent: %w", err)
	}

	var e int
	for _, b := range eBytes {
		e = e*256 + int(b)
	}

	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nBytes),
		E: e,
	}, nil
}

// NewJWK encodes an RSA public key as a JWK
func NewJWK(kid string, key *rsa.PublicKey) JWK {
	return JWK{
		Kid: kid,
		Kty: "RSA",
		Alg: "RS256",
		Use: "sig",
		N:   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
		E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
	}
}
