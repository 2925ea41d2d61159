package server

import (
	"net/http"
	"strconv"

	"github.com/julienschmidt/httprouter"

	"github.com/ndlib/folio/entity"
	"github.com/ndlib/folio/failure"
)

// ListTypesHandler handles requests to GET /entity-types. Inactive types
// are included for superadmins asking with ?all=1.
func (s *RESTServer) ListTypesHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	all := r.FormValue("all") != ""
	if all && principal(r).Role != entity.RoleSuperadmin {
		writeError(w, failure.Forbidden.New("only superadmins may list inactive types"))
		return
	}
	types, err := s.Entities.ListTypes(r.Context(), all)
	if err != nil {
		writeError(w, err)
		return
	}
	if types == nil {
		types = []*entity.EntityType{}
	}
	writeData(w, http.StatusOK, types)
}

// GetTypeHandler handles requests to GET /entity-types/:typeId
func (s *RESTServer) GetTypeHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	t, err := s.Entities.GetType(r.Context(), ps.ByName("typeId"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, t)
}

// PutTypeHandler handles requests to PUT /entity-types/:typeId. The id in
// the body, if given, must match the one in the path.
func (s *RESTServer) PutTypeHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var t entity.EntityType
	if err := readJSON(r, &t); err != nil {
		writeError(w, err)
		return
	}
	id := ps.ByName("typeId")
	if t.ID != "" && t.ID != id {
		writeError(w, failure.Validation.New("body id %q does not match path id %q", t.ID, id))
		return
	}
	t.ID = id
	result, err := s.Entities.PutType(r.Context(), principal(r), t)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, result)
}

type createRequest struct {
	EntityTypeID   string            `json:"entityTypeId"`
	OrganizationID string            `json:"organizationId"`
	Data           entity.Data       `json:"data"`
	Visibility     entity.Visibility `json:"visibility"`
	MembershipTier string            `json:"membershipTier"`
}

// CreateEntityHandler handles requests to POST /entities
func (s *RESTServer) CreateEntityHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var body createRequest
	if err := readJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}
	e, err := s.Entities.Create(r.Context(), principal(r), entity.CreateInput{
		EntityTypeID:   body.EntityTypeID,
		OrganizationID: body.OrganizationID,
		Data:           body.Data,
		Visibility:     body.Visibility,
		MembershipTier: body.MembershipTier,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Location", "/entities/"+e.ID)
	w.Header().Set("ETag", etag(strconv.Itoa(e.Version)))
	writeData(w, http.StatusCreated, e)
}

// ListEntitiesHandler handles requests to GET /entities. The query
// parameters are type, org, status, search, page, pageSize and sort.
func (s *RESTServer) ListEntitiesHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	opts := entity.ListOptions{
		EntityTypeID:   r.FormValue("type"),
		OrganizationID: r.FormValue("org"),
		Status:         entity.Status(r.FormValue("status")),
		Search:         r.FormValue("search"),
		Sort:           r.FormValue("sort"),
	}
	var err error
	if opts.Page, err = formInt(r, "page"); err != nil {
		writeError(w, err)
		return
	}
	if opts.PageSize, err = formInt(r, "pageSize"); err != nil {
		writeError(w, err)
		return
	}
	page, err := s.Entities.List(r.Context(), principal(r), opts)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, page)
}

// GetEntityHandler handles requests to GET /entities/:id. A particular
// version may be asked for with ?version=n.
func (s *RESTServer) GetEntityHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	version, err := formInt(r, "version")
	if err != nil {
		writeError(w, err)
		return
	}
	e, err := s.Entities.View(r.Context(), principal(r), ps.ByName("id"), version)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("ETag", etag(strconv.Itoa(e.Version)))
	writeData(w, http.StatusOK, e)
}

// VersionsHandler handles requests to GET /entities/:id/versions. The
// caller must be allowed to view the entity.
func (s *RESTServer) VersionsHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id := ps.ByName("id")
	_, err := s.Entities.View(r.Context(), principal(r), id, 0)
	if err != nil {
		writeError(w, err)
		return
	}
	versions, err := s.Entities.Versions(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, versions)
}

type updateRequest struct {
	Data           entity.Data       `json:"data"`
	Visibility     entity.Visibility `json:"visibility"`
	MembershipTier string            `json:"membershipTier"`
}

// UpdateEntityHandler handles requests to PATCH /entities/:id. An If-Match
// header holding a version number makes the update fail with a conflict if
// the entity has moved past that version.
func (s *RESTServer) UpdateEntityHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var body updateRequest
	if err := readJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}
	in := entity.UpdateInput{
		Data:           body.Data,
		Visibility:     body.Visibility,
		MembershipTier: body.MembershipTier,
	}
	if h := r.Header.Get("If-Match"); h != "" {
		v, err := strconv.Atoi(unquote(h))
		if err != nil || v < 1 {
			writeError(w, failure.Validation.New("If-Match must name a version number"))
			return
		}
		in.ExpectedVersion = v
	}
	e, err := s.Entities.Update(r.Context(), principal(r), ps.ByName("id"), in)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("ETag", etag(strconv.Itoa(e.Version)))
	writeData(w, http.StatusOK, e)
}

type transitionRequest struct {
	Feedback string `json:"feedback"`
}

// TransitionHandler handles requests to POST /entities/:id/transition/:action.
// The body is optional and may carry feedback for a rejection.
func (s *RESTServer) TransitionHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	action, ok := entity.ParseAction(ps.ByName("action"))
	if !ok {
		writeError(w, failure.Validation.New("unknown action %q", ps.ByName("action")))
		return
	}
	var body transitionRequest
	if r.ContentLength != 0 {
		if err := readJSON(r, &body); err != nil {
			writeError(w, err)
			return
		}
	}
	e, err := s.Entities.Transition(r.Context(), principal(r), ps.ByName("id"), action, body.Feedback)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, e)
}

// formInt returns the integer form value named, or 0 if it is missing.
func formInt(r *http.Request, name string) (int, error) {
	v := r.FormValue(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, failure.Validation.New("%s must be a non-negative integer", name)
	}
	return n, nil
}
