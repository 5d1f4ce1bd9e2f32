package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/newthinker/equicurve/internal/api/response"
	"github.com/newthinker/equicurve/internal/core"
	"go.uber.org/zap"
)

// Identity headers and their defaults.
const (
	UserIDHeader   = "X-User-Id"
	UserPlanHeader = "X-User-Plan"

	DefaultUserID = "demo-user"
	DefaultPlan   = core.PlanPro
)

type userKey struct{}

// UserStore upserts request users.
type UserStore interface {
	UpsertUser(ctx context.Context, id, plan string) (core.User, error)
}

// Identity resolves the request user from headers, upserts it and stores
// it in the request context.
func Identity(users UserStore, logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := strings.TrimSpace(r.Header.Get(UserIDHeader))
			if id == "" {
				id = DefaultUserID
			}
			plan := strings.ToLower(strings.TrimSpace(r.Header.Get(UserPlanHeader)))
			if plan == "" {
				plan = DefaultPlan
			}

			user, err := users.UpsertUser(r.Context(), id, plan)
			if err != nil {
				logger.Error("failed to upsert user", zap.String("user_id", id), zap.Error(err))
				response.Error(w, http.StatusInternalServerError, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}

// WithUser returns a context carrying user.
func WithUser(ctx context.Context, user core.User) context.Context {
	return context.WithValue(ctx, userKey{}, user)
}

// UserFrom returns the request user, or the default demo user.
func UserFrom(ctx context.Context) core.User {
	if u, ok := ctx.Value(userKey{}).(core.User); ok {
		return u
	}
	return core.User{ID: DefaultUserID, Plan: DefaultPlan}
}
