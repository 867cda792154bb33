package playbackmodule

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ProtectionSystem describes one content-protection system. The systems
// differ only in name and license endpoint, so they are data on a single
// code path rather than parallel branches.
type ProtectionSystem struct {
	Name string
	// LicenseURLPattern is expanded with the license base URL and film ID.
	LicenseURLPattern string
}

// Supported protection systems.
var (
	SystemWidevine  = ProtectionSystem{Name: "widevine", LicenseURLPattern: "%s/license/widevine/%s"}
	SystemFairPlay  = ProtectionSystem{Name: "fairplay", LicenseURLPattern: "%s/license/fairplay/%s"}
	SystemPlayReady = ProtectionSystem{Name: "playready", LicenseURLPattern: "%s/license/playready/%s"}
)

// DefaultProtectionSystems is the set issued for every session.
var DefaultProtectionSystems = []ProtectionSystem{SystemWidevine, SystemFairPlay, SystemPlayReady}

// LicenseData returns the placeholder license payload. A real deployment
// would proxy the request to the system's license server instead.
func (s ProtectionSystem) LicenseData() string {
	return fmt.Sprintf("MOCK_%s_LICENSE_DATA", strings.ToUpper(s.Name))
}

// SystemByName looks up a protection system by its wire name
func SystemByName(name string) (ProtectionSystem, bool) {
	for _, s := range DefaultProtectionSystems {
		if s.Name == name {
			return s, true
		}
	}
	return ProtectionSystem{}, false
}

// StreamClaims are the validated claims of a stream token.
type StreamClaims struct {
	jwt.RegisteredClaims
	FilmID   string `json:"film_id"`
	UserID   string `json:"user_id"`
	DeviceID string `json:"device_id"`
	System   string `json:"system"`
}

// IssuedTokens bundles the per-system tokens for one (film, user, device).
type IssuedTokens struct {
	Tokens      map[string]string `json:"tokens"`
	LicenseURLs map[string]string `json:"license_urls"`
	ExpiresAt   time.Time         `json:"expires_at"`
}

// TokenIssuer mints the short-lived signed claims that downstream license
// servers validate. Token lifetime is the session TTL plus a grace period,
// so a token never expires while the session it was issued for is still
// valid.
type TokenIssuer struct {
	secret         []byte
	issuer         string
	lifetime       time.Duration
	leeway         time.Duration
	licenseBaseURL string
	now            func() time.Time
}

// NewTokenIssuer creates a token issuer
func NewTokenIssuer(secret, issuer string, lifetime, leeway time.Duration, licenseBaseURL string) *TokenIssuer {
	return &TokenIssuer{
		secret:         []byte(secret),
		issuer:         issuer,
		lifetime:       lifetime,
		leeway:         leeway,
		licenseBaseURL: licenseBaseURL,
		now:            time.Now,
	}
}

// Issue mints one token per protection system, scoped to (film, user,
// device, system). Tokens are immutable once issued.
func (t *TokenIssuer) Issue(filmID, userID, deviceID string, systems []ProtectionSystem) (*IssuedTokens, error) {
	now := t.now()
	expiresAt := now.Add(t.lifetime)

	issued := &IssuedTokens{
		Tokens:      make(map[string]string, len(systems)),
		LicenseURLs: make(map[string]string, len(systems)),
		ExpiresAt:   expiresAt,
	}

	for _, system := range systems {
		claims := StreamClaims{
			RegisteredClaims: jwt.RegisteredClaims{
				Issuer:    t.issuer,
				Subject:   userID,
				IssuedAt:  jwt.NewNumericDate(now),
				ExpiresAt: jwt.NewNumericDate(expiresAt),
			},
			FilmID:   filmID,
			UserID:   userID,
			DeviceID: deviceID,
			System:   system.Name,
		}

		signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
		if err != nil {
			return nil, fmt.Errorf("failed to sign %s token: %w", system.Name, err)
		}

		issued.Tokens[system.Name] = signed
		issued.LicenseURLs[system.Name] = fmt.Sprintf(system.LicenseURLPattern, t.licenseBaseURL, filmID)
	}

	return issued, nil
}

// Validate checks a token's signature and expiry (with leeway for clock
// skew between issuing and validating components) and that it claims the
// given film.
func (t *TokenIssuer) Validate(tokenString, filmID string) (*StreamClaims, error) {
	var claims StreamClaims
	_, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (interface{}, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(t.leeway),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrTokenUnauthorized, err)
	}

	if claims.FilmID != filmID {
		return nil, ErrTokenForbidden
	}

	return &claims, nil
}

// Lifetime returns how long issued tokens remain valid
func (t *TokenIssuer) Lifetime() time.Duration {
	return t.lifetime
}

// ExpiresAfter reports whether tokens issued now will outlive the given
// deadline. Used at startup to catch a misconfigured grace period.
func (t *TokenIssuer) ExpiresAfter(deadline time.Duration) bool {
	return t.lifetime >= deadline
}
