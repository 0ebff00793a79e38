package pruner_test

import (
	"context"
	"testing"

	"github.com/aukilabs/scenequery/pruner"
	"github.com/aukilabs/scenequery/smoketest"
	"github.com/stretchr/testify/require"
)

func TestBruteForceComparison(t *testing.T) {
	options := []pruner.Options{
		{},
		{ReorderThreshold: 1},
		{DisableFreeBuffer: true},
		{SortAxisAnyDimension: true},
	}

	for seed := int64(1); seed <= 8; seed++ {
		opts := options[int(seed)%len(options)]

		res, err := smoketest.Run(context.Background(), smoketest.RunOptions{
			Seed:    seed,
			Objects: 400,
			Rounds:  8,
			Queries: 40,
			Pruner:  opts,
		})
		require.NoError(t, err, "seed %d", seed)
		require.Equal(t, 8*40, res.Queries)
	}
}
