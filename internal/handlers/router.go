package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/xelth-com/claimsync/internal/buildinfo"
	"github.com/xelth-com/claimsync/internal/capture"
	"github.com/xelth-com/claimsync/internal/connectivity"
	"github.com/xelth-com/claimsync/internal/logging"
	"github.com/xelth-com/claimsync/internal/middleware"
	"github.com/xelth-com/claimsync/internal/models"
	"github.com/xelth-com/claimsync/internal/store"
	"github.com/xelth-com/claimsync/internal/sync"
	"github.com/xelth-com/claimsync/internal/websocket"
)

// Deps are the components served by the local API
type Deps struct {
	Capture  *capture.Service
	Store    *store.Store
	Sync     *sync.Service
	Monitor  *connectivity.Monitor
	Hub      *websocket.Hub
	APIToken string
	Secret   string
	Logger   *log.Logger
}

// Router wraps the mux router and the agent components
type Router struct {
	*mux.Router
	capture *capture.Service
	store   *store.Store
	sync    *sync.Service
	monitor *connectivity.Monitor
	hub     *websocket.Hub
	logger  *log.Logger
}

// NewRouter creates the local HTTP API used by collaborator UIs
func NewRouter(d Deps) *Router {
	r := &Router{
		Router:  mux.NewRouter(),
		capture: d.Capture,
		store:   d.Store,
		sync:    d.Sync,
		monitor: d.Monitor,
		hub:     d.Hub,
		logger:  logging.OrDefault(d.Logger),
	}
	auth := middleware.Auth(d.APIToken, d.Secret)

	// Health check endpoint
	r.HandleFunc("/health", r.healthCheck).Methods("GET")

	if r.hub != nil {
		r.Handle("/ws", auth(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			websocket.ServeWs(r.hub, w, req)
		})))
	}

	api := r.PathPrefix("/api").Subrouter()
	api.Use(auth)

	// Claims and their records
	api.HandleFunc("/claims", r.listClaims).Methods("GET")
	api.HandleFunc("/claims", r.saveClaim).Methods("POST")
	api.HandleFunc("/claims/{id}", r.getClaim).Methods("GET")
	api.HandleFunc("/claims/{id}", r.saveClaim).Methods("PUT")
	api.HandleFunc("/claims/{id}", r.deleteClaim).Methods("DELETE")
	api.HandleFunc("/claims/{id}/pending", r.pendingCount).Methods("GET")

	api.HandleFunc("/claims/{id}/zones", r.listZones).Methods("GET")
	api.HandleFunc("/claims/{id}/zones", r.saveZone).Methods("POST")
	api.HandleFunc("/zones/{zoneId}", r.saveZone).Methods("PUT")
	api.HandleFunc("/zones/{zoneId}", r.deleteZone).Methods("DELETE")

	api.HandleFunc("/claims/{id}/damage-markers", r.listDamageMarkers).Methods("GET")
	api.HandleFunc("/claims/{id}/damage-markers", r.saveDamageMarker).Methods("POST")
	api.HandleFunc("/damage-markers/{markerId}", r.saveDamageMarker).Methods("PUT")
	api.HandleFunc("/damage-markers/{markerId}", r.deleteDamageMarker).Methods("DELETE")

	api.HandleFunc("/claims/{id}/line-items", r.listLineItems).Methods("GET")
	api.HandleFunc("/claims/{id}/line-items", r.saveLineItem).Methods("POST")
	api.HandleFunc("/line-items/{itemId}", r.updateLineItem).Methods("PATCH")
	api.HandleFunc("/line-items/{itemId}", r.deleteLineItem).Methods("DELETE")

	api.HandleFunc("/claims/{id}/photos", r.listPhotos).Methods("GET")
	api.HandleFunc("/claims/{id}/photos", r.savePhoto).Methods("POST")
	api.HandleFunc("/photos/{photoId}", r.deletePhoto).Methods("DELETE")

	api.HandleFunc("/claims/{id}/flow", r.getFlow).Methods("GET")
	api.HandleFunc("/claims/{id}/flow", r.updateFlow).Methods("POST")

	// Catalog and storage
	api.HandleFunc("/catalog/search", r.searchCatalog).Methods("GET")
	api.HandleFunc("/storage/stats", r.storageStats).Methods("GET")
	api.HandleFunc("/storage", r.clearAll).Methods("DELETE")

	// Connectivity and sync control
	api.HandleFunc("/connectivity", r.getConnectivity).Methods("GET")
	api.HandleFunc("/connectivity", r.setConnectivity).Methods("POST")
	api.HandleFunc("/sync/status", r.syncStatus).Methods("GET")
	api.HandleFunc("/sync/now", r.syncNow).Methods("POST")
	api.HandleFunc("/sync/queue", r.listQueue).Methods("GET")
	api.HandleFunc("/sync/dead-letters", r.listDeadLetters).Methods("GET")
	api.HandleFunc("/sync/dead-letters/{dlId}/requeue", r.requeueDeadLetter).Methods("POST")

	return r
}

// healthCheck returns the health status of the agent
func (r *Router) healthCheck(w http.ResponseWriter, req *http.Request) {
	online := false
	if r.monitor != nil {
		online = r.monitor.IsOnline()
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"server": "local",
		"online": online,
		"build":  buildinfo.Current(),
	})
}

// decodeJSON reads a request body into v
func decodeJSON(req *http.Request, v interface{}) error {
	defer req.Body.Close()
	return json.NewDecoder(req.Body).Decode(v)
}

// respondCaptureError maps capture and store errors to status codes
func (r *Router) respondCaptureError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, capture.ErrNotCaptured):
		respondError(w, http.StatusInternalServerError, capture.ErrNotCaptured.Error())
	case errors.Is(err, capture.ErrInvalid):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrNotFound):
		respondError(w, http.StatusNotFound, "not found")
	case errors.Is(err, models.ErrInvalidTransition), errors.Is(err, store.ErrSuperseded):
		respondError(w, http.StatusConflict, err.Error())
	default:
		r.logger.Printf("❌ Request failed: %v", err)
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError sends an error response
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}
