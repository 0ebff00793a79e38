package featureflag

type Flag string

const (
	FlagDisableFreeBuffer       Flag = "DISABLE_FREE_BUFFER"
	FlagDisableChildReordering  Flag = "DISABLE_CHILD_REORDERING"
	FlagSortAxisAnyDimension    Flag = "SORT_AXIS_ANY_DIMENSION"
	FlagDisableFrameCommit      Flag = "DISABLE_FRAME_COMMIT"
	FlagDisableCommitBroadcast  Flag = "DISABLE_COMMIT_BROADCAST"
	FlagDisableSmokeTestHandler Flag = "DISABLE_SMOKE_TEST_HANDLER"
)
