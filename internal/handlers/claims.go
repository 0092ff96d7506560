package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"github.com/xelth-com/claimsync/internal/models"
	"github.com/xelth-com/claimsync/internal/store"
)

// listByClaim responds with the live records of the claim in the URL
func (r *Router) listByClaim(w http.ResponseWriter, req *http.Request, query func(store.Filter) (interface{}, error)) {
	items, err := query(store.Filter{ClaimID: mux.Vars(req)["id"], OrderBy: "last_modified ASC"})
	if err != nil {
		r.respondCaptureError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, items)
}

func (r *Router) listClaims(w http.ResponseWriter, req *http.Request) {
	claims, err := r.store.Claims().Query(req.Context(), store.Filter{
		SyncStatus: req.URL.Query().Get("syncStatus"),
		OrderBy:    "last_modified DESC",
	})
	if err != nil {
		r.respondCaptureError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, claims)
}

func (r *Router) getClaim(w http.ResponseWriter, req *http.Request) {
	claim, err := r.store.Claims().Get(req.Context(), mux.Vars(req)["id"])
	if err != nil {
		r.respondCaptureError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, claim)
}

func (r *Router) saveClaim(w http.ResponseWriter, req *http.Request) {
	var claim models.Claim
	if err := decodeJSON(req, &claim); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	status := http.StatusCreated
	if id, ok := mux.Vars(req)["id"]; ok {
		claim.ID = id
		status = http.StatusOK
	}
	if err := r.capture.SaveClaim(req.Context(), &claim); err != nil {
		r.respondCaptureError(w, err)
		return
	}
	respondJSON(w, status, claim)
}

func (r *Router) deleteClaim(w http.ResponseWriter, req *http.Request) {
	if err := r.capture.DeleteClaim(req.Context(), mux.Vars(req)["id"]); err != nil {
		r.respondCaptureError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (r *Router) pendingCount(w http.ResponseWriter, req *http.Request) {
	claimID := mux.Vars(req)["id"]
	count, err := r.capture.PendingCountForClaim(req.Context(), claimID)
	if err != nil {
		r.respondCaptureError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"claimId": claimID, "pending": count})
}

// Zones

func (r *Router) listZones(w http.ResponseWriter, req *http.Request) {
	r.listByClaim(w, req, func(f store.Filter) (interface{}, error) {
		return r.store.Zones().Query(req.Context(), f)
	})
}

func (r *Router) saveZone(w http.ResponseWriter, req *http.Request) {
	var zone models.Zone
	if err := decodeJSON(req, &zone); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	vars := mux.Vars(req)
	status := http.StatusCreated
	if claimID, ok := vars["id"]; ok {
		zone.ClaimID = claimID
	}
	if id, ok := vars["zoneId"]; ok {
		zone.ID = id
		status = http.StatusOK
	}
	if err := r.capture.SaveZone(req.Context(), &zone); err != nil {
		r.respondCaptureError(w, err)
		return
	}
	respondJSON(w, status, zone)
}

func (r *Router) deleteZone(w http.ResponseWriter, req *http.Request) {
	if err := r.capture.DeleteZone(req.Context(), mux.Vars(req)["zoneId"]); err != nil {
		r.respondCaptureError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Damage markers

func (r *Router) listDamageMarkers(w http.ResponseWriter, req *http.Request) {
	r.listByClaim(w, req, func(f store.Filter) (interface{}, error) {
		f.ZoneID = req.URL.Query().Get("zoneId")
		return r.store.DamageMarkers().Query(req.Context(), f)
	})
}

func (r *Router) saveDamageMarker(w http.ResponseWriter, req *http.Request) {
	var marker models.DamageMarker
	if err := decodeJSON(req, &marker); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	vars := mux.Vars(req)
	status := http.StatusCreated
	if claimID, ok := vars["id"]; ok {
		marker.ClaimID = claimID
	}
	if id, ok := vars["markerId"]; ok {
		marker.ID = id
		status = http.StatusOK
	}
	if err := r.capture.SaveDamageMarker(req.Context(), &marker); err != nil {
		r.respondCaptureError(w, err)
		return
	}
	respondJSON(w, status, marker)
}

func (r *Router) deleteDamageMarker(w http.ResponseWriter, req *http.Request) {
	if err := r.capture.DeleteDamageMarker(req.Context(), mux.Vars(req)["markerId"]); err != nil {
		r.respondCaptureError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Line items

func (r *Router) listLineItems(w http.ResponseWriter, req *http.Request) {
	r.listByClaim(w, req, func(f store.Filter) (interface{}, error) {
		return r.store.LineItems().Query(req.Context(), f)
	})
}

func (r *Router) saveLineItem(w http.ResponseWriter, req *http.Request) {
	var item models.ScopeLineItem
	if err := decodeJSON(req, &item); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	item.ClaimID = mux.Vars(req)["id"]
	if err := r.capture.SaveLineItem(req.Context(), &item); err != nil {
		r.respondCaptureError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, item)
}

func (r *Router) updateLineItem(w http.ResponseWriter, req *http.Request) {
	var body struct {
		Quantity *decimal.Decimal `json:"quantity"`
	}
	if err := decodeJSON(req, &body); err != nil || body.Quantity == nil {
		respondError(w, http.StatusBadRequest, "quantity is required")
		return
	}
	item, err := r.capture.UpdateLineItem(req.Context(), mux.Vars(req)["itemId"], *body.Quantity)
	if err != nil {
		r.respondCaptureError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, item)
}

func (r *Router) deleteLineItem(w http.ResponseWriter, req *http.Request) {
	if err := r.capture.DeleteLineItem(req.Context(), mux.Vars(req)["itemId"]); err != nil {
		r.respondCaptureError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Inspection flow

func (r *Router) getFlow(w http.ResponseWriter, req *http.Request) {
	fs, err := r.store.FlowState(req.Context(), mux.Vars(req)["id"])
	if err != nil {
		r.respondCaptureError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, fs)
}

func (r *Router) updateFlow(w http.ResponseWriter, req *http.Request) {
	var update models.FlowUpdate
	if err := decodeJSON(req, &update); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	fs, err := r.capture.UpdateFlowProgress(req.Context(), mux.Vars(req)["id"], update)
	if err != nil {
		r.respondCaptureError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, fs)
}
