package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-tracker/internal/domain"
	apperrors "github.com/spec-kit/ticket-tracker/pkg/util/errorutil"
)

// ParseLevel maps a level name to its PermissionLevel.
func ParseLevel(name string) (domain.PermissionLevel, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "support":
		return domain.PermissionSupport, true
	case "admin":
		return domain.PermissionAdmin, true
	case "none":
		return domain.PermissionNone, true
	default:
		return domain.PermissionNone, false
	}
}

// RequireLevel ensures the principal holds at least the required level.
func RequireLevel(required domain.PermissionLevel) fiber.Handler {
	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok {
			return apperrors.NewUnauthorized("authentication required")
		}
		if !principal.Level.Allows(required) {
			return apperrors.NewForbidden(required.String() + " level required")
		}
		return c.Next()
	}
}
