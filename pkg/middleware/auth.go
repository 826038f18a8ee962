package middleware

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/prohmpiriya/venue-approval/pkg/response"
)

// Identity headers accepted in trusted gateway mode
const (
	UserIDHeader         = "X-User-ID"
	UserRoleHeader       = "X-User-Role"
	UserDepartmentHeader = "X-User-Department"
)

// Gin context keys carrying the resolved identity
const (
	ContextKeyUserID         = "user_id"
	ContextKeyUserRole       = "user_role"
	ContextKeyUserDepartment = "user_department"
)

var (
	ErrMissingIdentity = errors.New("missing identity")
	ErrInvalidToken    = errors.New("invalid token")
)

// Identity is the verified caller as supplied by the session collaborator
type Identity struct {
	UserID     string
	Role       string
	Department string
}

// IdentityConfig controls how the caller identity is resolved
type IdentityConfig struct {
	// JWTSecret enables bearer token mode. Empty means trusted headers.
	JWTSecret string
	// Issuer is checked against the iss claim when set
	Issuer string
	// Optional lets requests without identity through (health, metrics)
	Optional bool
}

// IdentityClaims are the claims issued for a verified caller
type IdentityClaims struct {
	UserID     string `json:"user_id"`
	Role       string `json:"role"`
	Department string `json:"department,omitempty"`
	jwt.RegisteredClaims
}

// Identify resolves the caller identity and stores it in the gin context.
// Requests without identity are rejected with 401 unless Optional is set.
func Identify(cfg *IdentityConfig) gin.HandlerFunc {
	if cfg == nil {
		cfg = &IdentityConfig{}
	}

	return func(c *gin.Context) {
		var (
			id  *Identity
			err error
		)
		if cfg.JWTSecret != "" {
			id, err = identityFromToken(c.GetHeader("Authorization"), cfg)
		} else {
			id, err = identityFromHeaders(c)
		}

		if err != nil {
			if cfg.Optional && errors.Is(err, ErrMissingIdentity) {
				c.Next()
				return
			}
			response.Unauthorized(c, err.Error())
			return
		}

		c.Set(ContextKeyUserID, id.UserID)
		c.Set(ContextKeyUserRole, id.Role)
		c.Set(ContextKeyUserDepartment, id.Department)
		c.Next()
	}
}

func identityFromHeaders(c *gin.Context) (*Identity, error) {
	id := &Identity{
		UserID:     strings.TrimSpace(c.GetHeader(UserIDHeader)),
		Role:       strings.ToUpper(strings.TrimSpace(c.GetHeader(UserRoleHeader))),
		Department: strings.TrimSpace(c.GetHeader(UserDepartmentHeader)),
	}
	if id.UserID == "" || id.Role == "" {
		return nil, ErrMissingIdentity
	}
	return id, nil
}

func identityFromToken(header string, cfg *IdentityConfig) (*Identity, error) {
	if header == "" {
		return nil, ErrMissingIdentity
	}
	tokenString, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || tokenString == "" {
		return nil, ErrInvalidToken
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}

	claims := &IdentityClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(cfg.JWTSecret), nil
	}, opts...)
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.UserID == "" || claims.Role == "" {
		return nil, ErrInvalidToken
	}

	return &Identity{
		UserID:     claims.UserID,
		Role:       strings.ToUpper(claims.Role),
		Department: claims.Department,
	}, nil
}

// SignIdentity issues an HS256 token for id. Used by tests and local tooling.
func SignIdentity(secret, issuer string, id Identity) (string, error) {
	claims := &IdentityClaims{
		UserID:     id.UserID,
		Role:       id.Role,
		Department: id.Department,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject: id.UserID,
			Issuer:  issuer,
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// GetIdentity returns the identity stored by Identify
func GetIdentity(c *gin.Context) (Identity, bool) {
	userID := c.GetString(ContextKeyUserID)
	if userID == "" {
		return Identity{}, false
	}
	return Identity{
		UserID:     userID,
		Role:       c.GetString(ContextKeyUserRole),
		Department: c.GetString(ContextKeyUserDepartment),
	}, true
}

// GetUserID returns the caller id stored by Identify
func GetUserID(c *gin.Context) (string, bool) {
	userID := c.GetString(ContextKeyUserID)
	return userID, userID != ""
}

// RequireRole rejects callers whose role is not one of roles
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := GetIdentity(c)
		if !ok {
			response.Unauthorized(c, ErrMissingIdentity.Error())
			return
		}
		for _, role := range roles {
			if strings.EqualFold(id.Role, role) {
				c.Next()
				return
			}
		}
		response.Forbidden(c, "role "+id.Role+" may not access this resource")
	}
}
