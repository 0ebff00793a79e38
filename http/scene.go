package http

import (
	"net/http"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/scenequery/api"
	"github.com/aukilabs/scenequery/models"
)

// SceneHandler serves the JSON scene API.
type SceneHandler struct {
	Scenes *models.SceneStore
}

// Register mounts the scene API on mux.
func (h *SceneHandler) Register(mux *http.ServeMux) {
	mux.Handle("POST /scenes", HandleWithCORS(http.HandlerFunc(h.handleCreate)))
	mux.Handle("GET /scenes", HandleWithCORS(http.HandlerFunc(h.handleList)))
	mux.Handle("GET /scenes/{id}", HandleWithCORS(h.withScene(h.handleGet)))
	mux.Handle("DELETE /scenes/{id}", HandleWithCORS(h.withScene(h.handleDelete)))
	mux.Handle("POST /scenes/{id}/objects", HandleWithCORS(h.withScene(h.handleAddObjects)))
	mux.Handle("PUT /scenes/{id}/objects", HandleWithCORS(h.withScene(h.handleUpdateObjects)))
	mux.Handle("DELETE /scenes/{id}/objects", HandleWithCORS(h.withScene(h.handleRemoveObjects)))
	mux.Handle("POST /scenes/{id}/commit", HandleWithCORS(h.withScene(h.handleCommit)))
	mux.Handle("POST /scenes/{id}/raycast", HandleWithCORS(h.withScene(h.handleRaycast)))
	mux.Handle("POST /scenes/{id}/sweep", HandleWithCORS(h.withScene(h.handleSweep)))
	mux.Handle("POST /scenes/{id}/overlap", HandleWithCORS(h.withScene(h.handleOverlap)))
	mux.Handle("POST /scenes/{id}/shift", HandleWithCORS(h.withScene(h.handleShift)))
	mux.Handle("GET /scenes/{id}/debug", HandleWithCORS(h.withScene(h.handleDebug)))
	mux.Handle("OPTIONS /scenes", HandleWithCORS(http.NotFoundHandler()))
	mux.Handle("OPTIONS /scenes/", HandleWithCORS(http.NotFoundHandler()))
}

type sceneHandlerFunc func(w http.ResponseWriter, r *http.Request, id string, s *models.Scene)

func (h *SceneHandler) withScene(next sceneHandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		scene, err := h.Scenes.Get(id)
		if err != nil {
			writeError(w, err)
			return
		}
		next(w, r, id, scene)
	})
}

func (h *SceneHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	scene := h.Scenes.Create()
	id := h.Scenes.GlobalSceneID(scene.ID)

	logs.WithTag("scene_id", id).
		WithTag("scene_uuid", scene.SceneUUID).
		Info("scene created")

	writeJSON(w, http.StatusCreated, api.NewSceneResponse(id, scene, false))
}

func (h *SceneHandler) handleList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, struct {
		Scenes []string `json:"scenes"`
	}{
		Scenes: h.Scenes.Scenes(),
	})
}

func (h *SceneHandler) handleGet(w http.ResponseWriter, r *http.Request, id string, s *models.Scene) {
	writeJSON(w, http.StatusOK, api.NewSceneResponse(id, s, true))
}

func (h *SceneHandler) handleDelete(w http.ResponseWriter, r *http.Request, id string, s *models.Scene) {
	h.Scenes.Remove(s)

	logs.WithTag("scene_id", id).
		WithTag("scene_uuid", s.SceneUUID).
		Info("scene deleted")

	w.WriteHeader(http.StatusNoContent)
}

func (h *SceneHandler) handleAddObjects(w http.ResponseWriter, r *http.Request, id string, s *models.Scene) {
	var req api.ObjectsRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	res, err := req.Add(s)
	if err != nil {
		logs.WithTag("scene_id", id).
			WithTag("added", len(res.Objects)).
			Debug(err)

		writeJSON(w, StatusCode(err), struct {
			errorResponse
			api.ObjectsResponse
		}{
			errorResponse: errorResponse{
				Error: err.Error(),
				Type:  errors.Type(err),
			},
			ObjectsResponse: res,
		})
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (h *SceneHandler) handleUpdateObjects(w http.ResponseWriter, r *http.Request, id string, s *models.Scene) {
	var req api.ObjectsRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	if err := req.Update(s); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *SceneHandler) handleRemoveObjects(w http.ResponseWriter, r *http.Request, id string, s *models.Scene) {
	var req api.RemoveRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req.Remove(s))
}

func (h *SceneHandler) handleCommit(w http.ResponseWriter, r *http.Request, id string, s *models.Scene) {
	writeJSON(w, http.StatusOK, api.Commit(s))
}

func (h *SceneHandler) handleRaycast(w http.ResponseWriter, r *http.Request, id string, s *models.Scene) {
	var req api.RaycastRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	res, err := req.Raycast(s)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *SceneHandler) handleSweep(w http.ResponseWriter, r *http.Request, id string, s *models.Scene) {
	var req api.SweepRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	res, err := req.Sweep(s)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *SceneHandler) handleOverlap(w http.ResponseWriter, r *http.Request, id string, s *models.Scene) {
	var req api.OverlapRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	res, err := req.Overlap(s)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *SceneHandler) handleShift(w http.ResponseWriter, r *http.Request, id string, s *models.Scene) {
	var req api.ShiftRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	if err := req.Shift(s); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *SceneHandler) handleDebug(w http.ResponseWriter, r *http.Request, id string, s *models.Scene) {
	writeJSON(w, http.StatusOK, api.Debug(s))
}
