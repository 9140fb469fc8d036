// Package users serves public user views: the list endpoint and the
// id / username-or-email lookups.
package users

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	resp "account_service/internal/lib/api/response"
	sl "account_service/internal/lib/logger"
	"account_service/internal/models"
	"account_service/internal/storage"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/google/uuid"
)

type Response struct {
	resp.Response
	User models.PublicUser `json:"user"`
}

type ListResponse struct {
	resp.Response
	Users []models.PublicUser `json:"users"`
}

type UserProvider interface {
	Users(ctx context.Context) ([]models.User, error)
	UserByID(ctx context.Context, id string) (models.User, error)
	UserByUsernameOrEmail(ctx context.Context, username, email string) (models.User, error)
}

func All(log *slog.Logger, provider UserProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.users.All"

		log = log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		users, err := provider.Users(ctx)
		if err != nil {
			log.Error("failed to list users", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("Internal error"))

			return
		}

		public := make([]models.PublicUser, 0, len(users))
		for _, u := range users {
			public = append(public, u.Public())
		}

		render.JSON(w, r, ListResponse{
			Response: resp.OK(),
			Users:    public,
		})
	}
}

func ByID(log *slog.Logger, provider UserProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.users.ByID"

		log = log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		id := chi.URLParam(r, "id")
		if _, err := uuid.Parse(id); err != nil {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.Error("invalid id"))

			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		user, err := provider.UserByID(ctx, id)
		if err != nil {
			if errors.Is(err, storage.ErrUserNotFound) {
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, resp.Error("user not found"))

				return
			}

			log.Error("failed to get user", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("Internal error"))

			return
		}

		render.JSON(w, r, Response{
			Response: resp.OK(),
			User:     user.Public(),
		})
	}
}

// ByIdentifier looks up a user by a single path value that is treated
// as an email when it contains '@' and a username otherwise.
func ByIdentifier(log *slog.Logger, provider UserProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.users.ByIdentifier"

		log = log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		identifier := chi.URLParam(r, "user")

		var username, email string
		if strings.Contains(identifier, "@") {
			email = identifier
		} else {
			username = identifier
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		user, err := provider.UserByUsernameOrEmail(ctx, username, email)
		if err != nil {
			if errors.Is(err, storage.ErrUserNotFound) {
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, resp.Error("user not found"))

				return
			}

			log.Error("failed to get user", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("Internal error"))

			return
		}

		render.JSON(w, r, Response{
			Response: resp.OK(),
			User:     user.Public(),
		})
	}
}
