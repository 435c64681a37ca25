package service

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"booking-service/internal/apperr"
	"booking-service/internal/models"
	"booking-service/internal/store"
)

// IdentityService resolves the authenticated caller forwarded by the gateway
type IdentityService struct {
	users UserRepository
}

func NewIdentityService(users UserRepository) *IdentityService {
	return &IdentityService{users: users}
}

// Resolve maps the user or guest header values to an identity. A registered user id takes
// precedence over a guest id.
func (is *IdentityService) Resolve(ctx context.Context, userID, guestID string) (models.Identity, error) {
	userID = strings.TrimSpace(userID)
	guestID = strings.TrimSpace(guestID)

	if userID != "" {
		id, err := strconv.ParseInt(userID, 10, 64)
		if err != nil || id <= 0 {
			return models.Identity{}, apperr.Unauthorized("invalid user id")
		}

		user, err := is.users.GetUserByID(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			return models.Identity{}, apperr.Unauthorized("unknown user")
		}
		if err != nil {
			return models.Identity{}, apperr.Internal("failed to load user", err)
		}
		if !user.IsActive {
			return models.Identity{}, apperr.Forbidden("account is deactivated")
		}
		if !user.Role.IsValid() {
			return models.Identity{}, apperr.Forbidden("account has no valid role")
		}
		return models.IdentityFor(user), nil
	}

	if guestID != "" {
		identity := models.GuestIdentity(guestID)
		if err := identity.Party.Validate(); err != nil {
			return models.Identity{}, apperr.Unauthorized("invalid guest id")
		}
		return identity, nil
	}

	return models.Identity{}, apperr.Unauthorized("authentication required")
}
