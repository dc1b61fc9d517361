package api

import (
	"net/http"
	"time"

	"github.com/cuemby/burrow/pkg/store"
	"github.com/cuemby/burrow/pkg/types"
)

type addMemoryRequest struct {
	Category     string            `json:"category"`
	Type         string            `json:"type"`
	Content      string            `json:"content"`
	Tags         []string          `json:"tags,omitempty"`
	Importance   int               `json:"importance,omitempty"`
	CadenceKind  types.CadenceKind `json:"cadence_kind,omitempty"`
	CadenceValue int               `json:"cadence_value,omitempty"`
	Context      string            `json:"context,omitempty"`
}

func (s *Server) handleAddMemory(w http.ResponseWriter, req *http.Request) {
	st, err := s.storeFrom(req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var body addMemoryRequest
	if err := decodeBody(req, &body); err != nil {
		s.writeError(w, err)
		return
	}
	m, err := st.AddMemory(req.Context(), store.AddMemoryParams{
		Category:     body.Category,
		Type:         body.Type,
		Content:      body.Content,
		Tags:         body.Tags,
		Importance:   body.Importance,
		CadenceKind:  body.CadenceKind,
		CadenceValue: body.CadenceValue,
		Context:      body.Context,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

func (s *Server) handleGetMemory(w http.ResponseWriter, req *http.Request) {
	st, err := s.storeFrom(req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	touch := req.URL.Query().Get("touch") != "false"
	m, err := st.GetMemory(req.PathValue("id"), touch)
	if err != nil {
		s.writeError(w, err)
		return
	}
	// Absent and tombstoned ids read as null rather than an error.
	writeJSON(w, http.StatusOK, m)
}

type updateMemoryRequest struct {
	Category     *string            `json:"category,omitempty"`
	Type         *string            `json:"type,omitempty"`
	Content      *string            `json:"content,omitempty"`
	Tags         *[]string          `json:"tags,omitempty"`
	Importance   *int               `json:"importance,omitempty"`
	CadenceKind  *types.CadenceKind `json:"cadence_kind,omitempty"`
	CadenceValue *int               `json:"cadence_value,omitempty"`
	Context      *string            `json:"context,omitempty"`
	Archived     *bool              `json:"archived,omitempty"`
}

func (s *Server) handleUpdateMemory(w http.ResponseWriter, req *http.Request) {
	st, err := s.storeFrom(req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var body updateMemoryRequest
	if err := decodeBody(req, &body); err != nil {
		s.writeError(w, err)
		return
	}
	m, err := st.UpdateMemory(req.Context(), req.PathValue("id"), store.UpdateMemoryParams{
		Category:     body.Category,
		Type:         body.Type,
		Content:      body.Content,
		Tags:         body.Tags,
		Importance:   body.Importance,
		CadenceKind:  body.CadenceKind,
		CadenceValue: body.CadenceValue,
		Context:      body.Context,
		Archived:     body.Archived,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleDeleteMemory(w http.ResponseWriter, req *http.Request) {
	st, err := s.storeFrom(req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	deleted, err := st.DeleteMemory(req.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": deleted})
}

func (s *Server) handleListMemories(w http.ResponseWriter, req *http.Request) {
	st, err := s.storeFrom(req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	q := req.URL.Query()
	filter := store.ListFilter{
		Category:        q.Get("category"),
		Type:            q.Get("type"),
		Tag:             q.Get("tag"),
		IncludeArchived: q.Get("include_archived") == "true",
	}
	limit := intParam(q.Get("limit"), 50)
	offset := intParam(q.Get("offset"), 0)
	writeJSON(w, http.StatusOK, st.ListMemories(filter, limit, offset))
}

type searchRequest struct {
	Query         string           `json:"query"`
	Mode          types.SearchMode `json:"mode,omitempty"`
	Limit         int              `json:"limit,omitempty"`
	Alpha         float64          `json:"alpha,omitempty"`
	MinSimilarity float64          `json:"min_similarity,omitempty"`
}

func (s *Server) handleSearch(w http.ResponseWriter, req *http.Request) {
	st, err := s.storeFrom(req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var body searchRequest
	if err := decodeBody(req, &body); err != nil {
		s.writeError(w, err)
		return
	}
	results, err := st.Search(req.Context(), store.SearchParams{
		Query:         body.Query,
		Mode:          body.Mode,
		Limit:         body.Limit,
		Alpha:         body.Alpha,
		MinSimilarity: body.MinSimilarity,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func (s *Server) handleDueMemories(w http.ResponseWriter, req *http.Request) {
	st, err := s.storeFrom(req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st.DueMemories(time.Now()))
}

type addRelationshipRequest struct {
	FromID string                 `json:"from_id"`
	ToID   string                 `json:"to_id"`
	Kind   types.RelationshipKind `json:"kind"`
}

func (s *Server) handleAddRelationship(w http.ResponseWriter, req *http.Request) {
	st, err := s.storeFrom(req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var body addRelationshipRequest
	if err := decodeBody(req, &body); err != nil {
		s.writeError(w, err)
		return
	}
	rel, err := st.AddRelationship(body.FromID, body.ToID, body.Kind)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rel)
}

func (s *Server) handleDeleteRelationship(w http.ResponseWriter, req *http.Request) {
	st, err := s.storeFrom(req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	deleted, err := st.DeleteRelationship(req.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": deleted})
}

type relationshipsResponse struct {
	Outgoing []*types.Relationship `json:"outgoing"`
	Incoming []*types.Relationship `json:"incoming"`
}

func (s *Server) handleGetRelationships(w http.ResponseWriter, req *http.Request) {
	st, err := s.storeFrom(req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	out, in := st.Relationships(req.PathValue("id"))
	writeJSON(w, http.StatusOK, relationshipsResponse{Outgoing: out, Incoming: in})
}

func (s *Server) handleRelatedMemories(w http.ResponseWriter, req *http.Request) {
	st, err := s.storeFrom(req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	depth := intParam(req.URL.Query().Get("depth"), 2)
	writeJSON(w, http.StatusOK, st.RelatedMemories(req.PathValue("id"), depth))
}

type createForkRequest struct {
	Source string `json:"source"`
	Name   string `json:"name,omitempty"`
	Note   string `json:"note,omitempty"`
	AtMS   int64  `json:"at,omitempty"` // milliseconds since epoch, PITR only
}

func (s *Server) handleCreateFork(w http.ResponseWriter, req *http.Request) {
	var body createForkRequest
	if err := decodeBody(req, &body); err != nil {
		s.writeError(w, err)
		return
	}
	if body.Source == "" {
		body.Source = types.MainStoreID
	}
	meta, err := s.registry.Fork(body.Source, body.Name, body.Note)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, meta)
}

func (s *Server) handleCreateForkPITR(w http.ResponseWriter, req *http.Request) {
	var body createForkRequest
	if err := decodeBody(req, &body); err != nil {
		s.writeError(w, err)
		return
	}
	if body.Source == "" {
		body.Source = types.MainStoreID
	}
	if body.AtMS <= 0 {
		s.writeError(w, errInvalidPITRTime)
		return
	}
	meta, err := s.registry.ForkAt(body.Source, body.Name, body.Note, time.UnixMilli(body.AtMS))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, meta)
}

func (s *Server) handleListForks(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.ListStores())
}

func (s *Server) handleDeleteFork(w http.ResponseWriter, req *http.Request) {
	if err := s.registry.DeleteFork(req.PathValue("id")); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

type createSnapshotRequest struct {
	Store string `json:"store,omitempty"`
	Name  string `json:"name"`
}

func (s *Server) handleCreateSnapshot(w http.ResponseWriter, req *http.Request) {
	var body createSnapshotRequest
	if err := decodeBody(req, &body); err != nil {
		s.writeError(w, err)
		return
	}
	if body.Store == "" {
		body.Store = types.MainStoreID
	}
	snap, err := s.registry.Snapshot(body.Store, body.Name)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, snap)
}

func (s *Server) handleListSnapshots(w http.ResponseWriter, req *http.Request) {
	id := req.URL.Query().Get("store")
	if id == "" {
		id = types.MainStoreID
	}
	snaps, err := s.registry.ListSnapshots(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snaps)
}

type restoreSnapshotRequest struct {
	Name string `json:"name,omitempty"`
}

func (s *Server) handleRestoreSnapshot(w http.ResponseWriter, req *http.Request) {
	var body restoreSnapshotRequest
	if err := decodeBody(req, &body); err != nil {
		s.writeError(w, err)
		return
	}
	meta, err := s.registry.RestoreSnapshot(req.PathValue("id"), body.Name)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, meta)
}

func (s *Server) handleVerify(w http.ResponseWriter, req *http.Request) {
	id := req.URL.Query().Get("store")
	if id == "" {
		id = types.MainStoreID
	}
	report, err := s.registry.VerifyIntegrity(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleRebuild(w http.ResponseWriter, req *http.Request) {
	id := req.URL.Query().Get("store")
	if id == "" {
		id = types.MainStoreID
	}
	if err := s.registry.RebuildIndexes(id); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleStats(w http.ResponseWriter, req *http.Request) {
	id := req.URL.Query().Get("store")
	if id == "" {
		id = types.MainStoreID
	}
	stats, err := s.registry.Stats(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
