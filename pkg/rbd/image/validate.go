package image

import (
	"fmt"

	"github.com/containerd/errdefs"
	"github.com/jabolina/go-rbd/pkg/rbd/types"
)

// Pure checks gating the pipeline. Every validator runs before
// the first cluster side effect, so a rejection never needs a
// rollback.

func validateFeatures(features uint64, forceNonPrimary bool) error {
	if features&^types.FeaturesAll != 0 {
		return fmt.Errorf("requested features %#x are not supported: %w",
			features&^types.FeaturesAll, errdefs.ErrNotImplemented)
	}
	if features&types.FeatureFastDiff != 0 && features&types.FeatureObjectMap == 0 {
		return fmt.Errorf("cannot use fast diff without object map: %w",
			errdefs.ErrInvalidArgument)
	}
	if features&types.FeatureObjectMap != 0 && features&types.FeatureExclusiveLock == 0 {
		return fmt.Errorf("cannot use object map without exclusive lock: %w",
			errdefs.ErrInvalidArgument)
	}
	if features&types.FeatureJournaling != 0 {
		if features&types.FeatureExclusiveLock == 0 {
			return fmt.Errorf("cannot use journaling without exclusive lock: %w",
				errdefs.ErrInvalidArgument)
		}
	} else if forceNonPrimary {
		// A non primary replica without a journal is a caller
		// bug, not a validation error. The resolver does not add
		// journaling for a replica, the caller must request it.
		panic("non primary image requested without journaling")
	}
	return nil
}

func validateOrder(order uint8) error {
	if order > 25 || order < 12 {
		return fmt.Errorf("order must be in the range [12, 25]: %w",
			errdefs.ErrOutOfRange)
	}
	return nil
}

func validateStriping(order uint8, stripeUnit, stripeCount uint64) error {
	if (stripeUnit != 0 && stripeCount == 0) ||
		(stripeUnit == 0 && stripeCount != 0) {
		return fmt.Errorf("must specify both (or neither) of stripe unit and stripe count: %w",
			errdefs.ErrInvalidArgument)
	}
	if stripeUnit != 0 || stripeCount != 0 {
		objectSize := uint64(1) << order
		if objectSize%stripeUnit != 0 || stripeUnit > objectSize {
			return fmt.Errorf("stripe unit is not a factor of the object size: %w",
				errdefs.ErrInvalidArgument)
		}
	}
	return nil
}

// Resolves the data pool when the feature is enabled, reporting
// back its numeric id.
func validateDataPool(cluster types.Cluster, features uint64, dataPool string) (int64, error) {
	if features&types.FeatureDataPool == 0 {
		return -1, nil
	}
	id, err := cluster.Resolve(dataPool)
	if err != nil {
		return -1, fmt.Errorf("data pool %s does not exist: %w", dataPool, err)
	}
	return id, nil
}

func validateLayout(size uint64, layout types.Layout) error {
	if !layout.CompatibleWithObjectMap(size) {
		return fmt.Errorf("image size not compatible with object map: %w",
			errdefs.ErrInvalidArgument)
	}
	return nil
}
