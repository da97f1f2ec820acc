package types

import "strings"

// The image feature bits. The numeric values are part of the
// on-disk header format, readers on every client rely on them.
const (
	FeatureLayering uint64 = 1 << iota
	FeatureStripingV2
	FeatureExclusiveLock
	FeatureObjectMap
	FeatureFastDiff
	FeatureDeepFlatten
	FeatureJournaling
	FeatureDataPool
)

// Every feature bit known by this library. Any requested bit
// outside this mask is rejected.
const FeaturesAll = FeatureLayering |
	FeatureStripingV2 |
	FeatureExclusiveLock |
	FeatureObjectMap |
	FeatureFastDiff |
	FeatureDeepFlatten |
	FeatureJournaling |
	FeatureDataPool

var featureNames = []struct {
	bit  uint64
	name string
}{
	{FeatureLayering, "layering"},
	{FeatureStripingV2, "striping"},
	{FeatureExclusiveLock, "exclusive-lock"},
	{FeatureObjectMap, "object-map"},
	{FeatureFastDiff, "fast-diff"},
	{FeatureDeepFlatten, "deep-flatten"},
	{FeatureJournaling, "journaling"},
	{FeatureDataPool, "data-pool"},
}

// Human readable rendering of a feature mask, used only
// for logging.
func FeatureString(features uint64) string {
	var enabled []string
	for _, f := range featureNames {
		if features&f.bit != 0 {
			enabled = append(enabled, f.name)
		}
	}
	if len(enabled) == 0 {
		return "(none)"
	}
	return strings.Join(enabled, "+")
}
