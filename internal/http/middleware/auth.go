package middleware

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/yungbote/store-composite/internal/http/response"
	"github.com/yungbote/store-composite/internal/platform/apierr"
	"github.com/yungbote/store-composite/internal/platform/ctxutil"
	"github.com/yungbote/store-composite/internal/platform/logger"
)

type AuthOptions struct {
	Enabled  bool
	Secret   string
	Issuer   string
	Audience string
}

// tokenClaims accepts the scope claim either as an OAuth2 space-delimited
// string ("scope") or as an array ("scp").
type tokenClaims struct {
	Scope string   `json:"scope,omitempty"`
	Scp   []string `json:"scp,omitempty"`
	jwt.RegisteredClaims
}

type AuthMiddleware struct {
	log    *logger.Logger
	opts   AuthOptions
	parser *jwt.Parser
}

func NewAuthMiddleware(log *logger.Logger, opts AuthOptions) (*AuthMiddleware, error) {
	if log == nil {
		log = logger.Nop()
	}
	if opts.Enabled && strings.TrimSpace(opts.Secret) == "" {
		return nil, errors.New("auth enabled but no signing secret configured")
	}
	parserOpts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if opts.Issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(opts.Issuer))
	}
	if opts.Audience != "" {
		parserOpts = append(parserOpts, jwt.WithAudience(opts.Audience))
	}
	return &AuthMiddleware{
		log:    log.With("Middleware", "AuthMiddleware"),
		opts:   opts,
		parser: jwt.NewParser(parserOpts...),
	}, nil
}

// RequireScope verifies the bearer token, attaches the caller's AuthContext
// and rejects callers that lack scope. With auth disabled every caller is
// anonymous and holds all scopes.
func (am *AuthMiddleware) RequireScope(scope string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ac, err := am.authenticate(c)
		if err != nil {
			am.log.Debug("Rejected bearer token", "path", c.Request.URL.Path, "error", err)
			response.RespondError(c, err)
			return
		}
		c.Request = c.Request.WithContext(ctxutil.WithAuthContext(c.Request.Context(), ac))
		if !ac.HasScope(scope) {
			response.RespondError(c, apierr.Forbidden("scope %s required", scope))
			return
		}
		c.Next()
	}
}

func (am *AuthMiddleware) authenticate(c *gin.Context) (ctxutil.AuthContext, error) {
	if !am.opts.Enabled {
		return ctxutil.Anonymous(), nil
	}
	tokenString := extractBearerToken(c)
	if tokenString == "" {
		return ctxutil.AuthContext{}, apierr.Unauthorized("missing or invalid token")
	}
	var claims tokenClaims
	_, err := am.parser.ParseWithClaims(tokenString, &claims, func(*jwt.Token) (interface{}, error) {
		return []byte(am.opts.Secret), nil
	})
	if err != nil {
		return ctxutil.AuthContext{}, apierr.Unauthorized("invalid token: %v", err)
	}
	scopes := ctxutil.ParseScopes(claims.Scope)
	scopes = append(scopes, claims.Scp...)
	return ctxutil.AuthContext{Subject: claims.Subject, Scopes: scopes}, nil
}

func extractBearerToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if len(authHeader) > 7 && strings.EqualFold(authHeader[:7], "Bearer ") {
		return strings.TrimSpace(authHeader[7:])
	}
	return ""
}
