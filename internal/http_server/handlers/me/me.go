package me

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"account_service/internal/auth"
	"account_service/internal/http_server/middleware/authn"
	resp "account_service/internal/lib/api/response"
	sl "account_service/internal/lib/logger"
	"account_service/internal/models"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
)

type Response struct {
	resp.Response
	models.AuthResponse
}

type IdentityProvider interface {
	WhoAmI(ctx context.Context, username string) (models.AuthResponse, error)
}

func New(
	log *slog.Logger,
	authService IdentityProvider,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.me.New"

		log = log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		username := authn.Username(r.Context())

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		authResp, err := authService.WhoAmI(ctx, username)
		if err != nil {
			if errors.Is(err, auth.ErrUpstreamUnavailable) {
				render.Status(r, http.StatusServiceUnavailable)
				render.JSON(w, r, resp.Error("service temporarily unavailable"))

				return
			}

			// An authenticated identity must exist; anything else is an
			// internal inconsistency.
			log.Error("failed to load current user", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("Internal error"))

			return
		}

		render.JSON(w, r, Response{
			Response:     resp.OK(),
			AuthResponse: authResp,
		})
	}
}
