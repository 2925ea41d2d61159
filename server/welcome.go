package server

import (
	"net/http"

	"github.com/julienschmidt/httprouter"
)

// Version is reported by the welcome route. It is set at link time with
// -ldflags "-X github.com/ndlib/folio/server.Version=..."
var Version = "dev"

// WelcomeHandler names the server and its version.
func WelcomeHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	writeData(w, http.StatusOK, map[string]string{
		"name":    "folio",
		"version": Version,
	})
}
