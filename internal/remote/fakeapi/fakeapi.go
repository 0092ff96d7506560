// Package fakeapi is an in-memory claims backend used by tests and by
// `claimctl fake-remote` for field demos without a real server.
package fakeapi

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/mux"
	"github.com/xelth-com/claimsync/internal/logging"
	"github.com/xelth-com/claimsync/internal/models"
	"github.com/xelth-com/claimsync/internal/utils"
)

// RecordedRequest is one request seen by the server
type RecordedRequest struct {
	Method string
	Path   string
}

type failure struct {
	method string
	prefix string
	status int
	times  int // < 0 means forever
}

// StoredPhoto is an uploaded photo
type StoredPhoto struct {
	RemoteID    string
	LocalID     string
	ClaimID     string
	Filename    string
	ContentType string
	Data        []byte
	Metadata    string
}

type flow struct {
	current   string
	progress  int
	completed []string
	evidence  map[string][]string
	// pinned flows ignore client writes, as if another device owned them
	pinned bool
}

// Server is the fake backend. The zero value is not usable; call New.
type Server struct {
	mu       sync.Mutex
	records  map[string]map[string]json.RawMessage
	photos   map[string]*StoredPhoto
	flows    map[string]*flow
	requests []RecordedRequest
	failures []*failure
	healthy  bool
	nextID   int

	secret string
	router *mux.Router
	logger *log.Logger
}

// New creates a healthy, empty backend. When secret is set every /api call
// must carry a device token signed with it.
func New(secret string, logger *log.Logger) *Server {
	s := &Server{
		records: make(map[string]map[string]json.RawMessage),
		photos:  make(map[string]*StoredPhoto),
		flows:   make(map[string]*flow),
		healthy: true,
		secret:  secret,
		logger:  logging.OrDefault(logger),
	}

	r := mux.NewRouter()
	r.HandleFunc("/health", s.health).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()
	api.Use(s.recordAndInject)
	api.Use(s.requireToken)

	api.HandleFunc("/claims", s.create("claims")).Methods("POST")
	api.HandleFunc("/claims/{id}", s.get("claims")).Methods("GET")
	api.HandleFunc("/claims/{id}", s.update("claims")).Methods("PUT")
	api.HandleFunc("/claims/{id}", s.remove("claims")).Methods("DELETE")

	api.HandleFunc("/claims/{claimId}/photos", s.uploadPhoto).Methods("POST")
	api.HandleFunc("/claims/{claimId}/photos/{id}", s.deletePhoto).Methods("DELETE")

	api.HandleFunc("/claims/{claimId}/flow", s.updateFlow).Methods("PUT")
	api.HandleFunc("/claims/{claimId}/flow/movements/{movementId}/complete", s.completeMovement).Methods("POST")
	api.HandleFunc("/claims/{claimId}/flow/movements/{movementId}/evidence", s.attachEvidence).Methods("POST")

	for _, kind := range []string{"zones", "damage-markers", "line-items"} {
		api.HandleFunc("/claims/{claimId}/"+kind, s.create(kind)).Methods("POST")
		api.HandleFunc("/claims/{claimId}/"+kind+"/{id}", s.get(kind)).Methods("GET")
		api.HandleFunc("/claims/{claimId}/"+kind+"/{id}", s.update(kind)).Methods("PUT")
		api.HandleFunc("/claims/{claimId}/"+kind+"/{id}", s.remove(kind)).Methods("DELETE")
	}

	s.router = r
	return s
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// SetHealthy toggles the /health answer
func (s *Server) SetHealthy(healthy bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.healthy = healthy
}

// Fail makes the next times requests whose path starts with prefix answer
// status. An empty method matches any method, a negative times never expires.
func (s *Server) Fail(method, prefix string, status, times int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, &failure{method: method, prefix: prefix, status: status, times: times})
}

// ClearFailures removes every injected failure
func (s *Server) ClearFailures() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = nil
}

// Requests returns the API requests seen so far
func (s *Server) Requests() []RecordedRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]RecordedRequest(nil), s.requests...)
}

// Record returns a stored JSON record decoded into a map
func (s *Server) Record(kind, id string) (map[string]interface{}, bool) {
	s.mu.Lock()
	raw, ok := s.records[kind][id]
	s.mu.Unlock()
	if !ok {
		return nil, false
	}
	var out map[string]interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, false
	}
	return out, true
}

// Count returns the number of stored records of kind
func (s *Server) Count(kind string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if kind == "photos" {
		return len(s.photos)
	}
	return len(s.records[kind])
}

// PhotoByLocalID returns an uploaded photo by the device's id
func (s *Server) PhotoByLocalID(localID string) (*StoredPhoto, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.photos {
		if p.LocalID == localID {
			cp := *p
			return &cp, true
		}
	}
	return nil, false
}

// CompletedMovements returns the movements the backend has accepted for a claim
func (s *Server) CompletedMovements(claimID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f, ok := s.flows[claimID]; ok {
		return append([]string(nil), f.completed...)
	}
	return nil
}

// Evidence returns the remote photo ids attached to a movement
func (s *Server) Evidence(claimID, movementID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f, ok := s.flows[claimID]; ok {
		return append([]string(nil), f.evidence[movementID]...)
	}
	return nil
}

// SetFlow overrides the server's view of a claim's flow
func (s *Server) SetFlow(claimID string, snap models.FlowSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f := s.flowLocked(claimID)
	f.current = snap.CurrentMovementID
	f.progress = snap.ProgressPercent
	f.completed = append([]string(nil), snap.CompletedMovements...)
}

// PinFlow makes the server keep its view of a claim's flow whatever the
// client sends
func (s *Server) PinFlow(claimID string, snap models.FlowSnapshot) {
	s.SetFlow(claimID, snap)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flowLocked(claimID).pinned = true
}

// Flow returns the server's view of a claim's flow
func (s *Server) Flow(claimID string) models.FlowSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flowLocked(claimID).snapshot()
}

func (f *flow) snapshot() models.FlowSnapshot {
	return models.FlowSnapshot{
		CurrentMovementID:  f.current,
		ProgressPercent:    f.progress,
		CompletedMovements: append([]string(nil), f.completed...),
	}
}

func (s *Server) flowLocked(claimID string) *flow {
	f, ok := s.flows[claimID]
	if !ok {
		f = &flow{evidence: make(map[string][]string)}
		s.flows[claimID] = f
	}
	return f
}

func (s *Server) recordAndInject(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.requests = append(s.requests, RecordedRequest{Method: r.Method, Path: r.URL.Path})
		status := 0
		for _, f := range s.failures {
			if f.times == 0 {
				continue
			}
			if (f.method == "" || f.method == r.Method) && strings.HasPrefix(r.URL.Path, f.prefix) {
				status = f.status
				if f.times > 0 {
					f.times--
				}
				break
			}
		}
		s.mu.Unlock()

		if status != 0 {
			respondError(w, status, "injected failure")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.secret == "" {
			next.ServeHTTP(w, r)
			return
		}
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if _, err := utils.ValidateToken(token, s.secret); err != nil {
			respondError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	healthy := s.healthy
	s.mu.Unlock()
	if !healthy {
		respondError(w, http.StatusServiceUnavailable, "unavailable")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok", "server": "fake"})
}

func readRecord(r *http.Request) (json.RawMessage, string, error) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, "", err
	}
	var probe struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		return nil, "", err
	}
	return body, probe.ID, nil
}

func (s *Server) create(kind string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, id, err := readRecord(r)
		if err != nil || id == "" {
			respondError(w, http.StatusBadRequest, "record with id required")
			return
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.records[kind] == nil {
			s.records[kind] = make(map[string]json.RawMessage)
		}
		if _, exists := s.records[kind][id]; exists {
			respondError(w, http.StatusConflict, "already exists")
			return
		}
		s.records[kind][id] = body
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write(body)
	}
}

func (s *Server) get(kind string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]
		s.mu.Lock()
		body, ok := s.records[kind][id]
		s.mu.Unlock()
		if !ok {
			respondError(w, http.StatusNotFound, "not found")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(body)
	}
}

func (s *Server) update(kind string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]
		body, _, err := readRecord(r)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid json")
			return
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.records[kind][id]; !ok {
			respondError(w, http.StatusNotFound, "not found")
			return
		}
		s.records[kind][id] = body
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(body)
	}
}

func (s *Server) remove(kind string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.records[kind][id]; !ok {
			respondError(w, http.StatusNotFound, "not found")
			return
		}
		delete(s.records[kind], id)
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) uploadPhoto(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		respondError(w, http.StatusBadRequest, "invalid multipart body")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, "file part required")
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to read file part")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	localID := r.FormValue("id")
	remoteID := ""
	// re-uploads of the same local photo keep their server id
	for _, p := range s.photos {
		if localID != "" && p.LocalID == localID {
			remoteID = p.RemoteID
		}
	}
	if remoteID == "" {
		s.nextID++
		remoteID = fmt.Sprintf("srv-photo-%d", s.nextID)
	}
	s.photos[remoteID] = &StoredPhoto{
		RemoteID:    remoteID,
		LocalID:     localID,
		ClaimID:     mux.Vars(r)["claimId"],
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
		Metadata:    r.FormValue("metadata"),
	}
	s.logger.Printf("📷 Fake backend stored photo %s (%d bytes)", remoteID, len(data))
	respondJSON(w, http.StatusCreated, map[string]string{"id": remoteID})
}

func (s *Server) deletePhoto(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, p := range s.photos {
		if key == id || p.LocalID == id {
			delete(s.photos, key)
			w.WriteHeader(http.StatusNoContent)
			return
		}
	}
	respondError(w, http.StatusNotFound, "not found")
}

func (s *Server) updateFlow(w http.ResponseWriter, r *http.Request) {
	var body struct {
		CurrentMovementID *string `json:"currentMovementId"`
		ProgressPercent   *int    `json:"progressPercent"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "invalid flow update")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	f := s.flowLocked(mux.Vars(r)["claimId"])
	if !f.pinned {
		if body.CurrentMovementID != nil {
			f.current = *body.CurrentMovementID
		}
		if body.ProgressPercent != nil {
			f.progress = *body.ProgressPercent
		}
	}
	respondJSON(w, http.StatusOK, f.snapshot())
}

func (s *Server) completeMovement(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	var body struct {
		ProgressPercent *int `json:"progressPercent"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	s.mu.Lock()
	defer s.mu.Unlock()
	f := s.flowLocked(vars["claimId"])
	if f.pinned {
		respondJSON(w, http.StatusOK, f.snapshot())
		return
	}
	f.current = vars["movementId"]
	if body.ProgressPercent != nil {
		f.progress = *body.ProgressPercent
	}
	seen := false
	for _, id := range f.completed {
		if id == vars["movementId"] {
			seen = true
		}
	}
	if !seen {
		f.completed = append(f.completed, vars["movementId"])
	}
	respondJSON(w, http.StatusOK, f.snapshot())
}

func (s *Server) attachEvidence(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	var body struct {
		PhotoID string `json:"photoId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.PhotoID == "" {
		respondError(w, http.StatusBadRequest, "photoId required")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.photos[body.PhotoID]; !ok {
		respondError(w, http.StatusNotFound, "unknown photo")
		return
	}
	f := s.flowLocked(vars["claimId"])
	f.evidence[vars["movementId"]] = append(f.evidence[vars["movementId"]], body.PhotoID)
	w.WriteHeader(http.StatusNoContent)
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
