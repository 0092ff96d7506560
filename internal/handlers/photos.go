package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/xelth-com/claimsync/internal/models"
	"github.com/xelth-com/claimsync/internal/store"
)

// maxPhotoBytes bounds a single captured image
const maxPhotoBytes = 32 << 20

func (r *Router) listPhotos(w http.ResponseWriter, req *http.Request) {
	claimID := mux.Vars(req)["id"]
	if tag := req.URL.Query().Get("tag"); tag != "" {
		photos, err := r.store.PhotosByTag(req.Context(), claimID, tag)
		if err != nil {
			r.respondCaptureError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, photos)
		return
	}
	r.listByClaim(w, req, func(f store.Filter) (interface{}, error) {
		return r.store.Photos().Query(req.Context(), f)
	})
}

// savePhoto accepts a multipart form with a "file" part and an optional
// "metadata" JSON part describing the photo
func (r *Router) savePhoto(w http.ResponseWriter, req *http.Request) {
	req.Body = http.MaxBytesReader(w, req.Body, maxPhotoBytes+1<<20)
	if err := req.ParseMultipartForm(8 << 20); err != nil {
		respondError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	var photo models.Photo
	if meta := req.FormValue("metadata"); meta != "" {
		if err := json.Unmarshal([]byte(meta), &photo); err != nil {
			respondError(w, http.StatusBadRequest, "invalid photo metadata")
			return
		}
	}
	photo.ClaimID = mux.Vars(req)["id"]

	file, header, err := req.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	blob, err := io.ReadAll(io.LimitReader(file, maxPhotoBytes+1))
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to read file")
		return
	}
	if len(blob) > maxPhotoBytes {
		respondError(w, http.StatusRequestEntityTooLarge, "photo too large")
		return
	}
	if photo.Filename == "" {
		photo.Filename = header.Filename
	}
	if photo.ContentType == "" {
		photo.ContentType = header.Header.Get("Content-Type")
	}

	if err := r.capture.SavePhoto(req.Context(), &photo, blob); err != nil {
		r.respondCaptureError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, photo)
}

func (r *Router) deletePhoto(w http.ResponseWriter, req *http.Request) {
	if err := r.capture.DeletePhoto(req.Context(), mux.Vars(req)["photoId"]); err != nil {
		r.respondCaptureError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
