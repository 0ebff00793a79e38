package smoketest

import (
	"context"
	"math/rand"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/scenequery/geom"
	"github.com/aukilabs/scenequery/pruner"
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

const (
	ErrTypeMismatch = "smoke-test-mismatch"

	// tolerance is the distance under which a missed hit is attributed to
	// float rounding rather than to the pruner.
	tolerance = 1e-3
)

// RunOptions configures a smoke test run.
type RunOptions struct {
	Seed      int64 `json:"seed"`
	Objects   int   `json:"objects"`
	Rounds    int   `json:"rounds"`
	Queries   int   `json:"queries"`
	WorldSize int   `json:"world_size"`

	Pruner pruner.Options `json:"-"`
}

func (o *RunOptions) setDefaults() {
	if o.Objects <= 0 {
		o.Objects = 500
	}
	if o.Rounds <= 0 {
		o.Rounds = 20
	}
	if o.Queries <= 0 {
		o.Queries = 50
	}
	if o.WorldSize <= 0 {
		o.WorldSize = 100
	}
}

// Result summarizes a smoke test run.
type Result struct {
	Seed     int64         `json:"seed"`
	Rounds   int           `json:"rounds"`
	Objects  int           `json:"objects"`
	Queries  int           `json:"queries"`
	Hits     int           `json:"hits"`
	Commits  int           `json:"commits"`
	Shifts   int           `json:"shifts"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

// Run builds a pruner with random boxes, mutates it over several rounds and
// checks every query against a brute force scan of the same boxes.
func Run(ctx context.Context, opts RunOptions) (Result, error) {
	opts.setDefaults()

	r := runner{
		opts:    opts,
		rand:    rand.New(rand.NewSource(opts.Seed)),
		pruner:  pruner.New[uint32](opts.Pruner),
		objects: make(map[uint32]geom.AABB),
		index:   make(map[uint32]int),
		result:  Result{Seed: opts.Seed},
	}

	start := time.Now()
	err := r.run(ctx)
	r.result.Duration = time.Since(start)
	r.result.Objects = len(r.objects)
	if err != nil {
		r.result.Error = err.Error()
	}

	logs.WithTag("seed", opts.Seed).
		WithTag("rounds", r.result.Rounds).
		WithTag("queries", r.result.Queries).
		WithTag("duration", r.result.Duration).
		Debug("smoke test finished")
	return r.result, err
}

type runner struct {
	opts   RunOptions
	rand   *rand.Rand
	pruner *pruner.Pruner[uint32]

	objects map[uint32]geom.AABB
	ids     []uint32
	index   map[uint32]int
	nextID  uint32

	result Result
}

func (r *runner) run(ctx context.Context) error {
	for round := 0; round < r.opts.Rounds; round++ {
		if err := ctx.Err(); err != nil {
			return errors.New("smoke test canceled").
				WithTag("round", round).
				Wrap(err)
		}

		if err := r.mutate(round); err != nil {
			return err
		}

		if r.pruner.Dirty() {
			r.pruner.Commit()
			r.result.Commits++
		}

		// Leaves a few insertions in the free buffer.
		if r.rand.Intn(2) == 0 {
			for i := r.rand.Intn(pruner.FreeBufferSize); i > 0 && !r.pruner.Dirty(); i-- {
				if err := r.add(r.randomBox()); err != nil {
					return err
				}
			}
			if r.pruner.Dirty() {
				r.pruner.Commit()
				r.result.Commits++
			}
		}

		if r.rand.Intn(4) == 0 {
			r.shift()
		}

		if err := r.pruner.Validate(); err != nil {
			return errors.New("invalid pruner").
				WithType(ErrTypeMismatch).
				WithTag("round", round).
				Wrap(err)
		}

		for q := 0; q < r.opts.Queries; q++ {
			if err := r.query(); err != nil {
				return errors.New("query mismatch").
					WithTag("round", round).
					WithTag("query", q).
					Wrap(err)
			}
			r.result.Queries++
		}
		r.result.Rounds++
	}
	return nil
}

func (r *runner) mutate(round int) error {
	adds := r.rand.Intn(r.opts.Objects/10 + 1)
	if round == 0 {
		adds = r.opts.Objects
	}
	for i := adds; i > 0; i-- {
		if err := r.add(r.randomBox()); err != nil {
			return err
		}
	}

	for i := r.rand.Intn(len(r.ids)/10 + 1); i > 0 && len(r.ids) > 0; i-- {
		id := r.ids[r.rand.Intn(len(r.ids))]
		if !r.pruner.RemoveObject(id) {
			return errors.New("removing object failed").
				WithType(ErrTypeMismatch).
				WithTag("id", id)
		}
		r.forget(id)
	}

	for i := r.rand.Intn(len(r.ids)/10 + 1); i > 0 && len(r.ids) > 0; i-- {
		id := r.ids[r.rand.Intn(len(r.ids))]
		b := r.randomBox()
		ok, err := r.pruner.UpdateObject(id, b)
		if err != nil || !ok {
			return errors.New("updating object failed").
				WithType(ErrTypeMismatch).
				WithTag("id", id).
				Wrap(err)
		}
		r.objects[id] = b
	}

	if r.pruner.RemoveObject(r.nextID + 1) {
		return errors.New("removing unknown object succeeded").
			WithType(ErrTypeMismatch)
	}
	if len(r.ids) > 0 {
		if err := r.pruner.AddObject(r.ids[0], r.randomBox()); !errors.IsType(err, pruner.ErrTypeDuplicatePayload) {
			return errors.New("adding duplicate object did not fail").
				WithType(ErrTypeMismatch).
				WithTag("id", r.ids[0])
		}
	}
	return nil
}

func (r *runner) add(b geom.AABB) error {
	id := r.nextID
	r.nextID++

	err := r.pruner.AddObject(id, b)
	if errors.IsType(err, pruner.ErrTypeCapacityExceeded) &&
		r.opts.Pruner.MaxObjects > 0 &&
		len(r.objects) >= r.opts.Pruner.MaxObjects {
		return nil
	}
	if err != nil {
		return errors.New("adding object failed").
			WithType(ErrTypeMismatch).
			WithTag("id", id).
			Wrap(err)
	}

	r.objects[id] = b
	r.index[id] = len(r.ids)
	r.ids = append(r.ids, id)
	return nil
}

func (r *runner) forget(id uint32) {
	i := r.index[id]
	last := len(r.ids) - 1
	r.ids[i] = r.ids[last]
	r.index[r.ids[i]] = i
	r.ids = r.ids[:last]
	delete(r.index, id)
	delete(r.objects, id)
}

func (r *runner) shift() {
	origin := r.randomPoint()
	r.pruner.ShiftOrigin(origin)
	for id, b := range r.objects {
		r.objects[id] = b.Translate(origin.Mul(-1))
	}
	r.result.Shifts++
}

func (r *runner) query() error {
	switch r.rand.Intn(4) {
	case 0:
		return r.checkRaycast(false)
	case 1:
		return r.checkRaycast(true)
	case 2:
		return r.checkSweep()
	default:
		return r.checkOverlap()
	}
}

func (r *runner) checkRaycast(closest bool) error {
	ray := geom.NewRay(r.randomFloatPoint(), r.randomDir())
	maxDist := r.randomMaxDist()

	hits, err := r.cast(closest, maxDist, func(budget *float32, fn pruner.RayFunc[uint32]) (bool, error) {
		return r.pruner.Raycast(ray.Origin, ray.Dir, budget, fn)
	})
	if err != nil {
		return err
	}
	return r.compareCast("raycast", closest, ray, mgl32.Vec3{}, maxDist, hits)
}

func (r *runner) checkSweep() error {
	volume := r.randomVolume()
	dir := r.randomDir()
	maxDist := r.randomMaxDist()

	hits, err := r.cast(false, maxDist, func(budget *float32, fn pruner.RayFunc[uint32]) (bool, error) {
		return r.pruner.Sweep(volume, dir, budget, fn)
	})
	if err != nil {
		return err
	}

	bounds := volume.Bounds()
	return r.compareCast("sweep", false, geom.NewRay(bounds.Center(), dir), bounds.Extents(), maxDist, hits)
}

func (r *runner) cast(closest bool, maxDist float32, query func(*float32, pruner.RayFunc[uint32]) (bool, error)) (map[uint32]float32, error) {
	hits := make(map[uint32]float32)
	var duplicates int
	_, err := query(&maxDist, func(hit pruner.RayHit[uint32], budget float32) (float32, bool) {
		if _, ok := hits[hit.Payload]; ok {
			duplicates++
		}
		hits[hit.Payload] = hit.Distance
		if closest {
			return hit.Distance, true
		}
		return budget, true
	})
	if err != nil {
		return nil, errors.New("query failed").Wrap(err)
	}
	if duplicates != 0 {
		return nil, errors.New("pruner reported objects more than once").
			WithType(ErrTypeMismatch).
			WithTag("duplicates", duplicates)
	}

	r.result.Hits += len(hits)
	return hits, nil
}

func (r *runner) compareCast(query string, closest bool, ray geom.Ray, inflate mgl32.Vec3, maxDist float32, hits map[uint32]float32) error {
	best := math32.Inf(1)
	var bestID uint32
	var found bool

	for _, id := range r.ids {
		b := r.objects[id].Inflate(inflate)
		dist, ok := ray.IntersectBox(b, maxDist)
		got, reported := hits[id]

		if reported && (!ok || got != dist) {
			return errors.New("pruner reported a wrong hit").
				WithType(ErrTypeMismatch).
				WithTag("query", query).
				WithTag("id", id).
				WithTag("distance", got).
				WithTag("expected", dist)
		}
		if !ok {
			continue
		}

		if closest {
			if dist < best {
				best, bestID, found = dist, id, true
			}
			continue
		}

		if !reported && robustHit(ray, b, maxDist) {
			return errors.New("pruner missed a hit").
				WithType(ErrTypeMismatch).
				WithTag("query", query).
				WithTag("id", id).
				WithTag("distance", dist)
		}
	}

	if !closest || !found {
		return nil
	}

	var pruned float32 = math32.Inf(1)
	for _, d := range hits {
		pruned = math32.Min(pruned, d)
	}
	if pruned > best && robustHit(ray, r.objects[bestID].Inflate(inflate), best+tolerance) {
		return errors.New("pruner missed the closest hit").
			WithType(ErrTypeMismatch).
			WithTag("query", query).
			WithTag("id", bestID).
			WithTag("distance", pruned).
			WithTag("expected", best)
	}
	return nil
}

func (r *runner) checkOverlap() error {
	volume := r.randomVolume()

	hits := make(map[uint32]struct{})
	_, err := r.pruner.Overlap(volume, func(id uint32) bool {
		hits[id] = struct{}{}
		return true
	})
	if err != nil {
		return errors.New("overlap failed").Wrap(err)
	}
	r.result.Hits += len(hits)

	for _, id := range r.ids {
		b := r.objects[id]
		_, reported := hits[id]
		overlaps := volume.Overlaps(b)

		if reported && !overlaps {
			return errors.New("pruner reported a wrong overlap").
				WithType(ErrTypeMismatch).
				WithTag("id", id)
		}
		if !reported && overlaps && robustOverlap(volume, b) {
			return errors.New("pruner missed an overlap").
				WithType(ErrTypeMismatch).
				WithTag("id", id).
				WithTag("volume", volume)
		}
	}
	if len(hits) > len(r.ids) {
		return errors.New("pruner reported unknown objects").
			WithType(ErrTypeMismatch)
	}
	return nil
}

// robustHit reports whether the ray still hits the box once the box is
// shrunk by the tolerance, making the hit independent from float rounding.
func robustHit(ray geom.Ray, b geom.AABB, maxDist float32) bool {
	shrunk := b.Inflate(mgl32.Vec3{-tolerance, -tolerance, -tolerance})
	_, ok := ray.IntersectBox(shrunk, maxDist)
	return ok
}

func robustOverlap(v geom.Volume, b geom.AABB) bool {
	shrunk := b.Inflate(mgl32.Vec3{-tolerance, -tolerance, -tolerance})
	return v.Overlaps(shrunk)
}

// randomBox returns a box with integer coordinates, which keeps the center
// and extents form of the box exact.
func (r *runner) randomBox() geom.AABB {
	w := r.opts.WorldSize
	min := mgl32.Vec3{
		float32(r.rand.Intn(w) - w/2),
		float32(r.rand.Intn(w) - w/2),
		float32(r.rand.Intn(w) - w/2),
	}
	size := w/10 + 1
	max := min.Add(mgl32.Vec3{
		float32(r.rand.Intn(size)),
		float32(r.rand.Intn(size)),
		float32(r.rand.Intn(size)),
	})
	return geom.AABB{Min: min, Max: max}
}

func (r *runner) randomPoint() mgl32.Vec3 {
	w := r.opts.WorldSize
	return mgl32.Vec3{
		float32(r.rand.Intn(w) - w/2),
		float32(r.rand.Intn(w) - w/2),
		float32(r.rand.Intn(w) - w/2),
	}
}

func (r *runner) randomFloatPoint() mgl32.Vec3 {
	w := float32(r.opts.WorldSize)
	return mgl32.Vec3{
		(r.rand.Float32() - 0.5) * w * 1.5,
		(r.rand.Float32() - 0.5) * w * 1.5,
		(r.rand.Float32() - 0.5) * w * 1.5,
	}
}

func (r *runner) randomDir() mgl32.Vec3 {
	for {
		d := mgl32.Vec3{
			r.rand.Float32()*2 - 1,
			r.rand.Float32()*2 - 1,
			r.rand.Float32()*2 - 1,
		}
		if l := d.Len(); l > 0.1 && l <= 1 {
			return d.Mul(1 / l)
		}
	}
}

func (r *runner) randomMaxDist() float32 {
	if r.rand.Intn(2) == 0 {
		return math32.Inf(1)
	}
	return r.rand.Float32() * float32(r.opts.WorldSize) * 2
}

func (r *runner) randomVolume() geom.Volume {
	w := float32(r.opts.WorldSize)
	center := r.randomFloatPoint()
	size := w / 10

	switch r.rand.Intn(4) {
	case 0:
		return geom.NewAABBFromCenter(center, mgl32.Vec3{
			r.rand.Float32() * size,
			r.rand.Float32() * size,
			r.rand.Float32() * size,
		})
	case 1:
		return geom.Sphere{
			Center: center,
			Radius: r.rand.Float32() * size,
		}
	case 2:
		axis := r.randomDir()
		return geom.OrientedBox{
			Center: center,
			Extents: mgl32.Vec3{
				r.rand.Float32() * size,
				r.rand.Float32() * size,
				r.rand.Float32() * size,
			},
			Rotation: mgl32.QuatRotate(r.rand.Float32()*math32.Pi*2, axis),
		}
	default:
		return geom.Capsule{
			P0:     center,
			P1:     center.Add(r.randomDir().Mul(r.rand.Float32() * size * 2)),
			Radius: r.rand.Float32() * size / 2,
		}
	}
}
