package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
)

// getConnectivity reports the monitor state and probed routes
func (r *Router) getConnectivity(w http.ResponseWriter, req *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"state":   r.monitor.State(),
		"online":  r.monitor.IsOnline(),
		"route":   r.monitor.CurrentRoute(),
		"routes":  r.monitor.RouteStatuses(),
		"history": r.monitor.History(),
	})
}

// setConnectivity forwards the platform network signal to the monitor
func (r *Router) setConnectivity(w http.ResponseWriter, req *http.Request) {
	var body struct {
		Online *bool `json:"online"`
	}
	if err := decodeJSON(req, &body); err != nil || body.Online == nil {
		respondError(w, http.StatusBadRequest, "online is required")
		return
	}
	r.monitor.SetOnline(*body.Online)
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"state":  r.monitor.State(),
		"online": r.monitor.IsOnline(),
	})
}

func (r *Router) syncStatus(w http.ResponseWriter, req *http.Request) {
	respondJSON(w, http.StatusOK, r.sync.Snapshot())
}

// syncNow drains the queue before responding. The drain outlives a
// disconnecting caller.
func (r *Router) syncNow(w http.ResponseWriter, req *http.Request) {
	progress, ran := r.sync.ProcessQueue(context.WithoutCancel(req.Context()))
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"started":  ran,
		"progress": progress,
		"status":   r.sync.Snapshot().Status,
	})
}

func (r *Router) listQueue(w http.ResponseWriter, req *http.Request) {
	items, err := r.store.QueueItems(req.Context())
	if err != nil {
		r.respondCaptureError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, items)
}

func (r *Router) listDeadLetters(w http.ResponseWriter, req *http.Request) {
	items, err := r.store.DeadLetters(req.Context())
	if err != nil {
		r.respondCaptureError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, items)
}

func (r *Router) requeueDeadLetter(w http.ResponseWriter, req *http.Request) {
	item, err := r.store.RequeueDeadLetter(req.Context(), mux.Vars(req)["dlId"])
	if err != nil {
		r.respondCaptureError(w, err)
		return
	}
	r.sync.TriggerDrain()
	respondJSON(w, http.StatusOK, item)
}

func (r *Router) searchCatalog(w http.ResponseWriter, req *http.Request) {
	q := req.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	items, err := r.capture.SearchLineItemsOffline(req.Context(), q.Get("q"), q.Get("category"), limit)
	if err != nil {
		r.respondCaptureError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, items)
}

func (r *Router) storageStats(w http.ResponseWriter, req *http.Request) {
	stats, err := r.capture.StorageStats(req.Context())
	if err != nil {
		r.respondCaptureError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

func (r *Router) clearAll(w http.ResponseWriter, req *http.Request) {
	if err := r.capture.ClearAll(req.Context()); err != nil {
		r.respondCaptureError(w, err)
		return
	}
	r.logger.Printf("🧹 Local store cleared")
	w.WriteHeader(http.StatusNoContent)
}
