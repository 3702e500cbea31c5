package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/golang-jwt/jwt/v5"
)

// AccountHeader carries the caller address when token auth is disabled.
const AccountHeader = "X-Account"

var errInvalidToken = errors.New("api: invalid token")

type callerKey struct{}

// CallerFrom returns the authenticated caller, or the zero address.
func CallerFrom(ctx context.Context) common.Address {
	a, _ := ctx.Value(callerKey{}).(common.Address)
	return a
}

// WithCaller returns a context carrying the caller address.
func WithCaller(ctx context.Context, account common.Address) context.Context {
	return context.WithValue(ctx, callerKey{}, account)
}

// Auth resolves the caller identity of each request.
//
// With a secret, the caller is the "sub" claim of an HS256 bearer token and
// must be a hex address. Without one (development), the X-Account header is
// trusted as-is.
type Auth struct {
	Secret []byte
}

// Middleware attaches the caller to the request context. Requests without
// credentials pass through anonymously; invalid credentials are rejected.
func (a Auth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var caller common.Address

		if len(a.Secret) > 0 {
			if header := r.Header.Get("Authorization"); header != "" {
				const bearer = "Bearer "
				if !strings.HasPrefix(header, bearer) {
					writeMessage(w, "authorization header must start with Bearer", "Unauthorized", http.StatusUnauthorized)
					return
				}
				account, err := a.Verify(header[len(bearer):])
				if err != nil {
					msg := "invalid token"
					if errors.Is(err, jwt.ErrTokenExpired) {
						msg = "token has expired"
					}
					writeMessage(w, msg, "Unauthorized", http.StatusUnauthorized)
					return
				}
				caller = account
			}
		} else if header := r.Header.Get(AccountHeader); header != "" {
			if !common.IsHexAddress(header) {
				writeMessage(w, AccountHeader+" must be a hex address", "Unauthorized", http.StatusUnauthorized)
				return
			}
			caller = common.HexToAddress(header)
		}

		if caller != (common.Address{}) {
			r = r.WithContext(WithCaller(r.Context(), caller))
		}
		next.ServeHTTP(w, r)
	})
}

// Sign issues a token for account valid for ttl.
func (a Auth) Sign(account common.Address, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := jwt.RegisteredClaims{
		Subject:   account.Hex(),
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now.Add(-5 * time.Second)),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.Secret)
}

// Verify checks an HS256 token and returns the address in its subject.
func (a Auth) Verify(token string) (common.Address, error) {
	parsed, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return a.Secret, nil
	})
	if err != nil {
		return common.Address{}, err
	}
	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok || !parsed.Valid || !common.IsHexAddress(claims.Subject) {
		return common.Address{}, errInvalidToken
	}
	return common.HexToAddress(claims.Subject), nil
}
