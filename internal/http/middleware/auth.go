package middleware

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"docvault/internal/config"
	"docvault/internal/model"
	"docvault/internal/repository"
)

// PrincipalLocalKey is the key under which Auth stores the model.Principal.
const PrincipalLocalKey = "principal"

var errMissingBearer = errors.New("missing bearer token")

// Auth verifies an HMAC-signed bearer JWT and loads the caller's principal.
// The "sub" claim must be a user UUID; role, company and departments are read
// from the database on every request so revocations apply immediately.
func Auth(cfg config.AuthConfig, users repository.UserRepository, log *zap.Logger) fiber.Handler {
	secret := []byte(cfg.JWTSecret)
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
		jwt.WithExpirationRequired(),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	parser := jwt.NewParser(opts...)

	return func(c *fiber.Ctx) error {
		raw, err := bearerToken(c.Get(fiber.HeaderAuthorization))
		if err != nil {
			return unauthorized(c, "authentication required")
		}

		var claims jwt.RegisteredClaims
		if _, err := parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
			return secret, nil
		}); err != nil {
			log.Debug("jwt_rejected", zap.Error(err))
			return unauthorized(c, "invalid token")
		}
		// users.id is a UUID column; anything else can never match a user.
		if _, err := uuid.Parse(claims.Subject); err != nil {
			return unauthorized(c, "invalid token")
		}

		p, err := users.FindPrincipal(c.UserContext(), claims.Subject)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return unauthorized(c, "unknown user")
			}
			log.Error("principal_lookup_failed", zap.String("user_id", claims.Subject), zap.Error(err))
			return abort(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		}

		c.Locals(PrincipalLocalKey, *p)
		return c.Next()
	}
}

// RequireRoles rejects callers whose role is not listed. Must run after Auth.
func RequireRoles(roles ...model.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		p, ok := PrincipalFromCtx(c)
		if !ok {
			return unauthorized(c, "authentication required")
		}
		if !p.HasRole(roles...) {
			return abort(c, fiber.StatusForbidden, "FORBIDDEN", "forbidden")
		}
		return c.Next()
	}
}

// PrincipalFromCtx returns the principal stored by Auth.
func PrincipalFromCtx(c *fiber.Ctx) (model.Principal, bool) {
	p, ok := c.Locals(PrincipalLocalKey).(model.Principal)
	return p, ok
}

func bearerToken(header string) (string, error) {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", errMissingBearer
	}
	return strings.TrimSpace(token), nil
}

func unauthorized(c *fiber.Ctx, msg string) error {
	c.Set(fiber.HeaderWWWAuthenticate, `Bearer realm="docvault"`)
	return abort(c, fiber.StatusUnauthorized, "UNAUTHORIZED", msg)
}

// abort writes the same error envelope as the handlers.
func abort(c *fiber.Ctx, status int, code, msg string) error {
	rid, _ := c.Locals(RequestIDLocalKey).(string)
	return c.Status(status).JSON(fiber.Map{
		"request_id": rid,
		"error": fiber.Map{
			"code":    code,
			"message": msg,
		},
	})
}
