package handlers

import (
	"net/http"
	"strconv"
	"time"

	"agenthub/internal/store"
	"agenthub/pkg/api"
)

// maxPresignTTL caps caller-chosen presign lifetimes.
const maxPresignTTL = time.Hour

// PresignArtifact handles GET /artifacts/{id}/presigned. Only screenshot
// artifacts are exposed this way; binaries stay internal.
func (h *Handlers) PresignArtifact(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	artifactID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		h.httpError(w, "Invalid artifact id", http.StatusBadRequest)
		return
	}

	artifact, err := h.storage.GetArtifact(ctx, artifactID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	if artifact.Bucket != store.BucketScreenshots {
		h.httpError(w, "Presigned URLs are only available for screenshots", http.StatusBadRequest)
		return
	}

	ttl := time.Duration(queryInt(r, "ttl_seconds", int(presignTTL.Seconds()))) * time.Second
	if ttl <= 0 || ttl > maxPresignTTL {
		ttl = presignTTL
	}

	url, err := h.storage.PresignGet(ctx, artifact.Bucket, artifact.ObjectPath, ttl)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	h.respondJSON(w, http.StatusOK, api.PresignedURLResponse{URL: url})
}
