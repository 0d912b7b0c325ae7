package server

import (
	"net/http"

	apperrors "github.com/econlens/econlens/internal/errors"
)

// HandleError writes any error as an envelope response. Every server-side
// error path (middleware, routes, handlers) funnels through here so the JSON
// shape and status mapping stay in one place.
func HandleError(w http.ResponseWriter, r *http.Request, err error) {
	apperrors.RespondWithError(w, r, err)
}
