// Package auth verifies the bearer tokens issued by the surrounding platform.
// The subject claim is the caller's id and the role claim one of customer,
// vendor or operator.
package auth

import (
	"net/http"
	"time"

	"foodtruck-preorder/internal/httpx"
	"foodtruck-preorder/internal/models"

	"github.com/golang-jwt/jwt/v5"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
)

// Claims is the token payload.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Middleware rejects requests without a valid HS256 token and stores the subject
// and role under "userID" and "userRole". EventSource clients cannot set headers,
// so the token is also accepted as ?token=.
func Middleware(secret string) echo.MiddlewareFunc {
	return echojwt.WithConfig(echojwt.Config{
		SigningKey:  []byte(secret),
		TokenLookup: "header:Authorization:Bearer ,query:token",
		NewClaimsFunc: func(c echo.Context) jwt.Claims {
			return new(Claims)
		},
		SuccessHandler: func(c echo.Context) {
			token, ok := c.Get("user").(*jwt.Token)
			if !ok {
				return
			}
			claims, ok := token.Claims.(*Claims)
			if !ok {
				return
			}
			role := claims.Role
			switch role {
			case httpx.RoleOperator, httpx.RoleVendor:
			default:
				role = httpx.RoleCustomer
			}
			c.Set("userID", claims.Subject)
			c.Set("userRole", role)
		},
		ErrorHandler: func(c echo.Context, err error) error {
			return c.JSON(http.StatusUnauthorized, models.ErrorResponse{Message: "Invalid or missing token"})
		},
	})
}

// RequireRole lets through only callers holding one of roles.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			_, role := httpx.Identity(c)
			for _, r := range roles {
				if role == r {
					return next(c)
				}
			}
			return c.JSON(http.StatusForbidden, models.ErrorResponse{Message: "Access denied"})
		}
	}
}

// NewToken signs a token for subject. Used by developer tooling and tests.
func NewToken(secret, subject, role string, ttl time.Duration, now time.Time) (string, error) {
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}
