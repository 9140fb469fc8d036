package resetPassword

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"account_service/internal/auth"
	resp "account_service/internal/lib/api/response"
	sl "account_service/internal/lib/logger"
	"account_service/internal/storage"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
)

type Request struct {
	Password string `json:"password" validate:"required,min=6,password"`
}

type Response struct {
	resp.Response
	Success bool `json:"success"`
}

type PasswordResetter interface {
	ResetPassword(ctx context.Context, token, password string) (bool, error)
}

func New(
	log *slog.Logger,
	validate *validator.Validate,
	authService PasswordResetter,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.resetPassword.New"

		log = log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		token := r.URL.Query().Get("token")
		if token == "" {
			log.Warn("missing reset token")

			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.Error("missing token"))

			return
		}

		var req Request

		err := render.DecodeJSON(r.Body, &req)
		if err != nil {
			log.Error("Failed to decode request body", sl.Err(err))

			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.Error("Failed to decode request"))

			return
		}

		if err := validate.Struct(req); err != nil {
			validateErr := err.(validator.ValidationErrors)

			log.Error("Invalid request", sl.Err(err))

			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.ValidationError(validateErr))

			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		ok, err := authService.ResetPassword(ctx, token, req.Password)
		if err != nil {
			if errors.Is(err, auth.ErrTokenExpired) {
				log.Warn("reset token expired or unknown")

				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, resp.Error("token expired"))

				return
			}
			if errors.Is(err, storage.ErrUserNotFound) {
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, resp.Error("unauthorized"))

				return
			}
			if errors.Is(err, auth.ErrUpstreamUnavailable) {
				render.Status(r, http.StatusServiceUnavailable)
				render.JSON(w, r, resp.Error("service temporarily unavailable"))

				return
			}

			log.Error("failed to reset password", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("Internal error"))

			return
		}

		log.Info("password reset successfully")

		render.JSON(w, r, Response{
			Response: resp.OK(),
			Success:  ok,
		})
	}
}
