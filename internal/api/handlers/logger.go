package handlers

import (
	"net/http"

	"github.com/rs/zerolog"
)

func loggerFor(r *http.Request) *zerolog.Logger {
	return zerolog.Ctx(r.Context())
}
