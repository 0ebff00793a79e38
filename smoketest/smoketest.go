package smoketest

import (
	"context"
	"io"
	"net/http"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/scenequery/pruner"
	"github.com/segmentio/encoding/json"
)

const (
	defaultMaxObjects = 10000
	defaultMaxRounds  = 200
)

type Options struct {
	// The options of the tested pruners.
	Pruner pruner.Options

	// The maximum number of objects and rounds a request can ask for.
	MaxObjects int
	MaxRounds  int

	// Called with the result of every run.
	SendResult func(context.Context, Result) error
}

// HandleSmokeTest runs a smoke test with the RunOptions found in the request
// body and replies with its result. The run stops when ctx or the request
// is canceled.
func HandleSmokeTest(ctx context.Context, opts Options) http.HandlerFunc {
	if opts.MaxObjects <= 0 {
		opts.MaxObjects = defaultMaxObjects
	}
	if opts.MaxRounds <= 0 {
		opts.MaxRounds = defaultMaxRounds
	}

	return func(w http.ResponseWriter, r *http.Request) {
		b, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
		if err != nil {
			logs.Warn(errors.New("reading body failed").Wrap(err))
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		var req RunOptions
		if len(b) != 0 {
			if err := json.Unmarshal(b, &req); err != nil {
				logs.Debug(errors.New("decoding smoke test request failed").Wrap(err))
				w.WriteHeader(http.StatusBadRequest)
				return
			}
		}

		if req.Objects > opts.MaxObjects || req.Rounds > opts.MaxRounds {
			logs.WithTag("objects", req.Objects).
				WithTag("rounds", req.Rounds).
				Debug("smoke test request is too large")
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		req.Pruner = opts.Pruner

		runCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		go func() {
			select {
			case <-r.Context().Done():
				cancel()
			case <-runCtx.Done():
			}
		}()

		res, err := Run(runCtx, req)
		status := http.StatusOK
		if err != nil {
			logs.WithTag("seed", req.Seed).Warn(err)
			status = http.StatusInternalServerError
		}

		if opts.SendResult != nil {
			if err := opts.SendResult(ctx, res); err != nil {
				logs.WithTag("seed", req.Seed).
					Warn(errors.New("sending smoke test result failed").Wrap(err))
			}
		}

		body, err := json.Marshal(res)
		if err != nil {
			logs.Warn(errors.New("encoding smoke test result failed").Wrap(err))
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write(body)
	}
}
