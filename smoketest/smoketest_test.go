package smoketest

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aukilabs/scenequery/pruner"
	"github.com/segmentio/encoding/json"
	"github.com/stretchr/testify/require"
)

func TestRun(t *testing.T) {
	tests := []struct {
		name string
		opts RunOptions
	}{
		{
			name: "default",
			opts: RunOptions{Seed: 1, Rounds: 5, Objects: 200, Queries: 30},
		},
		{
			name: "small world",
			opts: RunOptions{Seed: 2, Rounds: 5, Objects: 300, Queries: 30, WorldSize: 10},
		},
		{
			name: "free buffer only",
			opts: RunOptions{Seed: 3, Rounds: 5, Objects: 10, Queries: 30},
		},
		{
			name: "capacity",
			opts: RunOptions{
				Seed:    4,
				Rounds:  5,
				Objects: 200,
				Queries: 20,
				Pruner:  pruner.Options{MaxObjects: 150},
			},
		},
		{
			name: "without free buffer",
			opts: RunOptions{
				Seed:    5,
				Rounds:  5,
				Objects: 200,
				Queries: 20,
				Pruner:  pruner.Options{DisableFreeBuffer: true},
			},
		},
		{
			name: "without reordering",
			opts: RunOptions{
				Seed:    6,
				Rounds:  5,
				Objects: 200,
				Queries: 20,
				Pruner:  pruner.Options{DisableReorder: true},
			},
		},
		{
			name: "any sort axis",
			opts: RunOptions{
				Seed:    7,
				Rounds:  5,
				Objects: 200,
				Queries: 20,
				Pruner:  pruner.Options{SortAxisAnyDimension: true, ReorderThreshold: 1},
			},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			res, err := Run(context.Background(), test.opts)
			require.NoError(t, err)
			require.Empty(t, res.Error)
			require.Equal(t, test.opts.Rounds, res.Rounds)
			require.Equal(t, test.opts.Rounds*test.opts.Queries, res.Queries)
			require.Equal(t, test.opts.Seed, res.Seed)

			if max := test.opts.Pruner.MaxObjects; max > 0 {
				require.LessOrEqual(t, res.Objects, max)
			}
		})
	}
}

func TestRunCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := Run(ctx, RunOptions{Seed: 1})
	require.Error(t, err)
	require.NotEmpty(t, res.Error)
	require.Zero(t, res.Rounds)
}

func TestHandleSmokeTest(t *testing.T) {
	t.Run("smoke test success", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		var sent Result
		handler := HandleSmokeTest(ctx, Options{
			SendResult: func(_ context.Context, res Result) error {
				sent = res
				return nil
			},
		})

		body, err := json.Marshal(RunOptions{Seed: 42, Rounds: 3, Objects: 100, Queries: 10})
		require.NoError(t, err)

		w := httptest.NewRecorder()
		handler(w, httptest.NewRequest(http.MethodPost, "/smoke-test", bytes.NewReader(body)))
		require.Equal(t, http.StatusOK, w.Code)

		var res Result
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
		require.Equal(t, int64(42), res.Seed)
		require.Equal(t, 3, res.Rounds)
		require.Equal(t, 30, res.Queries)
		require.Empty(t, res.Error)
		require.Equal(t, res, sent)
	})

	t.Run("smoke test bad request", func(t *testing.T) {
		handler := HandleSmokeTest(context.Background(), Options{})

		w := httptest.NewRecorder()
		handler(w, httptest.NewRequest(http.MethodPost, "/smoke-test", bytes.NewReader([]byte("{"))))
		require.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("smoke test too large", func(t *testing.T) {
		handler := HandleSmokeTest(context.Background(), Options{MaxObjects: 10})

		body, err := json.Marshal(RunOptions{Objects: 11})
		require.NoError(t, err)

		w := httptest.NewRecorder()
		handler(w, httptest.NewRequest(http.MethodPost, "/smoke-test", bytes.NewReader(body)))
		require.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("smoke test canceled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		handler := HandleSmokeTest(ctx, Options{})

		w := httptest.NewRecorder()
		handler(w, httptest.NewRequest(http.MethodPost, "/smoke-test", nil))
		require.Equal(t, http.StatusInternalServerError, w.Code)

		var res Result
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
		require.NotEmpty(t, res.Error)
	})
}
