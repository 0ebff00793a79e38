// Package api defines the requests and responses shared by the scene
// transports.
package api

import (
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/scenequery/models"
	"github.com/aukilabs/scenequery/pruner"
	"github.com/go-gl/mathgl/mgl32"
)

const (
	ErrTypeInvalidRequest = "invalid-request"
)

type SceneResponse struct {
	ID        string          `json:"id"`
	UUID      string          `json:"uuid"`
	CreatedAt time.Time       `json:"created_at"`
	Objects   []models.Object `json:"objects,omitempty"`
}

func NewSceneResponse(id string, s *models.Scene, withObjects bool) SceneResponse {
	res := SceneResponse{
		ID:        id,
		UUID:      s.SceneUUID,
		CreatedAt: s.CreatedAt,
	}
	if withObjects {
		res.Objects = s.Objects()
	}
	return res
}

type ObjectsRequest struct {
	Objects []models.Object `json:"objects"`
}

type ObjectsResponse struct {
	Objects []models.Object `json:"objects"`
}

// Add adds the requested objects. The response holds the added objects even
// when an error is returned.
func (r ObjectsRequest) Add(s *models.Scene) (ObjectsResponse, error) {
	if len(r.Objects) == 0 {
		return ObjectsResponse{}, emptyRequest("objects")
	}

	added, err := s.AddObjects(r.Objects...)
	if added == nil {
		added = []models.Object{}
	}
	return ObjectsResponse{Objects: added}, err
}

func (r ObjectsRequest) Update(s *models.Scene) error {
	if len(r.Objects) == 0 {
		return emptyRequest("objects")
	}
	return s.UpdateObjects(r.Objects...)
}

type RemoveRequest struct {
	IDs []uint32 `json:"ids"`
}

type RemoveResponse struct {
	Removed int `json:"removed"`
}

func (r RemoveRequest) Remove(s *models.Scene) RemoveResponse {
	return RemoveResponse{Removed: s.RemoveObjects(r.IDs...)}
}

type CommitResponse struct {
	Committed bool   `json:"committed"`
	Commits   uint64 `json:"commits"`
}

func Commit(s *models.Scene) CommitResponse {
	committed := s.Commit()
	return CommitResponse{
		Committed: committed,
		Commits:   s.Commits(),
	}
}

type RaycastRequest struct {
	Origin      mgl32.Vec3 `json:"origin"`
	Direction   mgl32.Vec3 `json:"direction"`
	MaxDistance float32    `json:"max_distance,omitempty"`
	Closest     bool       `json:"closest,omitempty"`
}

type HitsResponse struct {
	Hits []models.Hit `json:"hits"`
}

func (r RaycastRequest) Raycast(s *models.Scene) (HitsResponse, error) {
	hits, err := s.Raycast(r.Origin, r.Direction, r.MaxDistance, r.Closest)
	return newHitsResponse(hits, err)
}

type SweepRequest struct {
	Shape       Shape      `json:"shape"`
	Direction   mgl32.Vec3 `json:"direction"`
	MaxDistance float32    `json:"max_distance,omitempty"`
	Closest     bool       `json:"closest,omitempty"`
}

func (r SweepRequest) Sweep(s *models.Scene) (HitsResponse, error) {
	volume, err := r.Shape.Volume()
	if err != nil {
		return HitsResponse{}, err
	}

	hits, err := s.Sweep(volume, r.Direction, r.MaxDistance, r.Closest)
	return newHitsResponse(hits, err)
}

func newHitsResponse(hits []models.Hit, err error) (HitsResponse, error) {
	if err != nil {
		return HitsResponse{}, err
	}
	if hits == nil {
		hits = []models.Hit{}
	}
	return HitsResponse{Hits: hits}, nil
}

type OverlapRequest struct {
	Shape Shape `json:"shape"`
	Limit int   `json:"limit,omitempty"`
}

type OverlapResponse struct {
	IDs []uint32 `json:"ids"`
}

func (r OverlapRequest) Overlap(s *models.Scene) (OverlapResponse, error) {
	volume, err := r.Shape.Volume()
	if err != nil {
		return OverlapResponse{}, err
	}

	ids, err := s.Overlap(volume, r.Limit)
	if err != nil {
		return OverlapResponse{}, err
	}
	if ids == nil {
		ids = []uint32{}
	}
	return OverlapResponse{IDs: ids}, nil
}

type ShiftRequest struct {
	Origin mgl32.Vec3 `json:"origin"`
}

func (r ShiftRequest) Shift(s *models.Scene) error {
	if !validVec(r.Origin) {
		return errors.New("invalid origin").
			WithType(ErrTypeInvalidRequest).
			WithTag("origin", r.Origin)
	}

	s.ShiftOrigin(r.Origin)
	return nil
}

type DebugResponse struct {
	pruner.DebugInfo
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}

func Debug(s *models.Scene) DebugResponse {
	res := DebugResponse{
		DebugInfo: s.DebugInfo(),
		Valid:     true,
	}
	if err := s.Validate(); err != nil {
		res.Valid = false
		res.Error = err.Error()
	}
	return res
}

func emptyRequest(field string) error {
	return errors.New("empty request").
		WithType(ErrTypeInvalidRequest).
		WithTag("field", field)
}
