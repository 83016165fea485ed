package actorcontext

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/legalflow/billing-backend/api/middleware"
	"github.com/legalflow/billing-backend/internal/billing"
	"github.com/legalflow/billing-backend/pkg/enums"
	pkgerrors "github.com/legalflow/billing-backend/pkg/errors"
)

// Resolve builds the acting identity from the authenticated request context.
func Resolve(r *http.Request) (billing.Actor, error) {
	ctx := r.Context()

	rawID := middleware.UserIDFromContext(ctx)
	if rawID == "" {
		return billing.Actor{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	userID, err := uuid.Parse(rawID)
	if err != nil {
		return billing.Actor{}, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid user id")
	}

	role, err := enums.ParseActorRole(middleware.RoleFromContext(ctx))
	if err != nil {
		return billing.Actor{}, pkgerrors.Wrap(pkgerrors.CodeForbidden, err, "unknown actor role")
	}

	return billing.Actor{UserID: userID, Role: role}, nil
}

// Require resolves the actor and enforces that its role is one of the allowed set.
func Require(r *http.Request, roles ...enums.ActorRole) (billing.Actor, error) {
	actor, err := Resolve(r)
	if err != nil {
		return billing.Actor{}, err
	}
	for _, role := range roles {
		if actor.Role == role {
			return actor, nil
		}
	}
	return billing.Actor{}, pkgerrors.New(pkgerrors.CodeForbidden, "insufficient role")
}
