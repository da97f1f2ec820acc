package image

import (
	"testing"

	"github.com/containerd/errdefs"
	"github.com/stretchr/testify/require"

	"github.com/jabolina/go-rbd/pkg/rbd/definition"
	"github.com/jabolina/go-rbd/pkg/rbd/types"
)

func TestValidate_Order(t *testing.T) {
	testCases := []struct {
		order uint8
		valid bool
	}{
		{11, false},
		{12, true},
		{22, true},
		{25, true},
		{26, false},
	}

	for _, tc := range testCases {
		err := validateOrder(tc.order)
		if tc.valid {
			require.NoError(t, err, "order %d", tc.order)
		} else {
			require.Error(t, err, "order %d", tc.order)
			require.True(t, errdefs.IsOutOfRange(err), "order %d should be out of range", tc.order)
		}
	}
}

func TestValidate_Striping(t *testing.T) {
	testCases := []struct {
		name        string
		order       uint8
		stripeUnit  uint64
		stripeCount uint64
		valid       bool
	}{
		{"neither", 12, 0, 0, true},
		{"both", 12, 4096, 2, true},
		{"unit without count", 12, 4096, 0, false},
		{"count without unit", 12, 0, 5, false},
		{"unit does not divide object size", 12, 3, 1, false},
		{"unit larger than object size", 12, 8192, 1, false},
	}

	for _, tc := range testCases {
		err := validateStriping(tc.order, tc.stripeUnit, tc.stripeCount)
		if tc.valid {
			require.NoError(t, err, tc.name)
		} else {
			require.Error(t, err, tc.name)
			require.True(t, errdefs.IsInvalidArgument(err), tc.name)
		}
	}
}

func TestValidate_Features(t *testing.T) {
	testCases := []struct {
		name     string
		features uint64
		check    func(error) bool
	}{
		{"layering only", types.FeatureLayering, nil},
		{"unknown bit", uint64(1) << 60, errdefs.IsNotImplemented},
		{"fast diff without object map",
			types.FeatureFastDiff | types.FeatureExclusiveLock, errdefs.IsInvalidArgument},
		{"object map without exclusive lock",
			types.FeatureObjectMap, errdefs.IsInvalidArgument},
		{"journaling without exclusive lock",
			types.FeatureJournaling, errdefs.IsInvalidArgument},
		{"full valid set",
			types.FeatureLayering | types.FeatureExclusiveLock | types.FeatureObjectMap |
				types.FeatureFastDiff | types.FeatureJournaling, nil},
	}

	for _, tc := range testCases {
		err := validateFeatures(tc.features, false)
		if tc.check == nil {
			require.NoError(t, err, tc.name)
		} else {
			require.Error(t, err, tc.name)
			require.True(t, tc.check(err), tc.name)
		}
	}
}

func TestValidate_ForcedNonPrimaryWithoutJournalingPanics(t *testing.T) {
	defer func() {
		require.NotNil(t, recover(), "should have panicked")
	}()
	_ = validateFeatures(types.FeatureLayering, true)
}

func TestValidate_DataPool(t *testing.T) {
	cluster := definition.NewInMemoryCluster("rbd", 1)
	defer cluster.Close()
	cluster.AddPool("fast", 7)

	id, err := validateDataPool(cluster, types.FeatureDataPool, "fast")
	require.NoError(t, err)
	require.Equal(t, int64(7), id)

	_, err = validateDataPool(cluster, types.FeatureDataPool, "missing")
	require.Error(t, err)
	require.True(t, errdefs.IsNotFound(err))

	// Without the feature the pool name is not even resolved.
	id, err = validateDataPool(cluster, types.FeatureLayering, "missing")
	require.NoError(t, err)
	require.Equal(t, int64(-1), id)
}

func TestValidate_Layout(t *testing.T) {
	layout := types.Layout{ObjectSize: 4096, StripeUnit: 4096, StripeCount: 1}
	require.NoError(t, validateLayout(4096*10, layout))

	huge := (types.MaxObjectMapObjectCount + 1) * 4096
	err := validateLayout(huge, layout)
	require.Error(t, err)
	require.True(t, errdefs.IsInvalidArgument(err))
}
