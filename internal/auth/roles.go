package auth

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/desk-ticket-service/internal/domain"
	apperrors "github.com/spec-kit/desk-ticket-service/pkg/util"
)

// RequireHotelScope rejects callers whose token belongs to another hotel
// than the :hotelId path parameter.
func RequireHotelScope() fiber.Handler {
	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok {
			return apperrors.NewUnauthorized("authentication required")
		}
		if principal.HotelID != c.Params("hotelId") {
			return apperrors.NewForbidden("token is not scoped to this hotel")
		}
		return c.Next()
	}
}

// RequireRole ensures the principal has one of the allowed roles.
func RequireRole(allowed ...domain.ActorRole) fiber.Handler {
	allowedSet := make(map[domain.ActorRole]struct{}, len(allowed))
	for _, role := range allowed {
		allowedSet[role] = struct{}{}
	}

	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok {
			return apperrors.NewUnauthorized("authentication required")
		}
		if _, exists := allowedSet[principal.Role]; !exists {
			return apperrors.NewForbidden("insufficient role")
		}
		return c.Next()
	}
}
