package httpadapter

import (
	"encoding/json"
	"net/http"

	"github.com/kirillkom/autofund-client/internal/core/domain"
)

const maxJSONBodyBytes = 64 << 10

type predictionRequest struct {
	Status domain.TaskStatus `json:"status"`
}

// predictStatus shows a status before the backend reports it. Watchers of
// the task receive the prediction flagged as optimistic.
func (rt *Router) predictStatus(w http.ResponseWriter, r *http.Request) {
	var req predictionRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if req.Status == "" {
		writeBadRequest(w, "field 'status' is required")
		return
	}
	task, err := rt.service.UpdateStatusOptimistically(r.PathValue("id"), req.Status)
	if err != nil {
		rt.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, task)
}

func (rt *Router) confirmPrediction(w http.ResponseWriter, r *http.Request) {
	rt.service.ConfirmStatusUpdate(r.PathValue("id"))
	w.WriteHeader(http.StatusNoContent)
}

func (rt *Router) rollbackPrediction(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	task, ok := rt.service.RollbackStatusUpdate(id)
	if !ok {
		rt.writeError(w, domain.NewFailure(domain.CodeNotFound, 0, "no pending prediction for task "+id, false))
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (rt *Router) getPreferences(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, rt.service.Preferences())
}

// patchPreferences applies the patch as pending; it is shown at once and
// kept until committed or discarded.
func (rt *Router) patchPreferences(w http.ResponseWriter, r *http.Request) {
	var patch domain.PreferencesPatch
	if !decodeJSONBody(w, r, &patch) {
		return
	}
	if patch.Theme != nil && !patch.Theme.Valid() {
		writeBadRequest(w, "theme must be light, dark or auto")
		return
	}
	writeJSON(w, http.StatusOK, rt.service.UpdatePreferences(patch))
}

func (rt *Router) commitPreferences(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, rt.service.CommitPreferences())
}

func (rt *Router) discardPreferences(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, rt.service.DiscardPreferences())
}

func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return false
	}
	return true
}
