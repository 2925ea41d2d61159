package server

import (
	"net/http"

	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"

	"github.com/ndlib/folio/bundle"
	"github.com/ndlib/folio/entity"
	"github.com/ndlib/folio/failure"
	"github.com/ndlib/folio/negotiate"
	"github.com/ndlib/folio/scope"
)

// readableScope parses the :scope parameter and checks that the principal
// may read it.
func readableScope(r *http.Request, ps httprouter.Params) (scope.Scope, error) {
	sc, err := scope.Parse(ps.ByName("scope"))
	if err != nil {
		return nil, failure.Validation.Wrap(err)
	}
	p := principal(r)
	if !entity.CanReadScope(p, sc) {
		return nil, failure.Forbidden.New("%s may not read scope %s", p.UserID, sc)
	}
	return sc, nil
}

// ManifestHandler handles requests to GET /manifest/:scope. If the
// If-None-Match header holds the current fingerprint the reply is a 304.
func (s *RESTServer) ManifestHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	sc, err := readableScope(r, ps)
	if err != nil {
		writeError(w, err)
		return
	}
	result, err := s.negotiator.Manifest(r.Context(), sc, unquote(r.Header.Get("If-None-Match")))
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("ETag", etag(result.Fingerprint))
	if result.NotModified {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	writeData(w, http.StatusOK, result.Manifest)
}

// BundleHandler handles requests to GET /bundle/:scope/:typeId. If the
// If-None-Match header holds the current fingerprint the reply is a 304.
func (s *RESTServer) BundleHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	sc, err := readableScope(r, ps)
	if err != nil {
		writeError(w, err)
		return
	}
	result, err := s.negotiator.Bundle(r.Context(), ps.ByName("typeId"), sc, unquote(r.Header.Get("If-None-Match")))
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("ETag", etag(result.Fingerprint))
	if result.NotModified {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	writeData(w, http.StatusOK, result.Bundle)
}

// SyncHandler handles requests to POST /sync/:scope. The body holds the
// fingerprints the client last received.
func (s *RESTServer) SyncHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	sc, err := readableScope(r, ps)
	if err != nil {
		writeError(w, err)
		return
	}
	var req negotiate.CheckRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	resp, err := s.negotiator.Check(r.Context(), sc, req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, resp)
}

type rebuildReport struct {
	Bundles   []string `json:"bundles"`
	Manifests []string `json:"manifests"`
	Removed   []string `json:"removed"`
}

func targetNames(targets []bundle.Target) []string {
	result := []string{}
	for _, t := range targets {
		result = append(result, t.Scope.String()+"/"+t.EntityTypeID)
	}
	return result
}

// RebuildHandler handles requests to POST /admin/rebuild. Only superadmins
// may call it, and only MaxRebuilds may run at once; extra requests get a
// 409 instead of waiting.
func (s *RESTServer) RebuildHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	p := principal(r)
	if p.Role != entity.RoleSuperadmin {
		writeError(w, failure.Forbidden.New("only superadmins may rebuild bundles"))
		return
	}
	if !s.rebuilds.TryEnter() {
		writeError(w, failure.Conflict.New("a rebuild is already running"))
		return
	}
	defer s.rebuilds.Leave()
	report, err := s.Builder.RebuildStale(r.Context())
	if report == nil {
		writeError(w, err)
		return
	}
	result := rebuildReport{
		Bundles:   targetNames(report.Bundles),
		Manifests: []string{},
		Removed:   targetNames(report.Removed),
	}
	for _, sc := range report.Manifests {
		result.Manifests = append(result.Manifests, sc.String())
	}
	if err != nil {
		s.Log.Error("rebuild", zap.Error(err), zap.Int("bundles", len(result.Bundles)))
		writeError(w, err)
		return
	}
	s.Log.Info("rebuild", zap.Int("bundles", len(result.Bundles)), zap.Int("manifests", len(result.Manifests)))
	writeData(w, http.StatusOK, result)
}
