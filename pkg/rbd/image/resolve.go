package image

import "github.com/jabolina/go-rbd/pkg/rbd/types"

// Merge the caller supplied options with the configured
// defaults and compute the derived request state. This runs
// once, before any validation, so the validators and the
// pipeline only ever see the effective values.
func (r *CreateRequest) resolveOptions(opts *types.ImageOptions) {
	var ok bool
	if r.features, ok = opts.GetUint64(types.OptionFeatures); !ok {
		r.features = r.conf.DefaultFeatures
	}

	featuresSet, _ := opts.GetUint64(types.OptionFeaturesSet)
	featuresClear, _ := opts.GetUint64(types.OptionFeaturesClear)

	// A bit requested on both sides is dropped from both,
	// neither side wins.
	conflict := featuresSet & featuresClear
	featuresSet &^= conflict
	featuresClear &^= conflict
	r.features |= featuresSet
	r.features &^= featuresClear

	if r.stripeUnit, ok = opts.GetUint64(types.OptionStripeUnit); !ok || r.stripeUnit == 0 {
		r.stripeUnit = r.conf.DefaultStripeUnit
	}
	if r.stripeCount, ok = opts.GetUint64(types.OptionStripeCount); !ok || r.stripeCount == 0 {
		r.stripeCount = r.conf.DefaultStripeCount
	}
	if order, k := opts.GetUint64(types.OptionOrder); k && order != 0 {
		r.order = uint8(order)
	} else {
		r.order = r.conf.DefaultOrder
	}
	if journalOrder, k := opts.GetUint64(types.OptionJournalOrder); k {
		r.journalOrder = uint8(journalOrder)
	} else {
		r.journalOrder = r.conf.DefaultJournalOrder
	}
	if splayWidth, k := opts.GetUint64(types.OptionJournalSplayWidth); k {
		r.journalSplayWidth = uint8(splayWidth)
	} else {
		r.journalSplayWidth = r.conf.DefaultJournalSplayWidth
	}
	if r.journalPool, ok = opts.GetString(types.OptionJournalPool); !ok {
		r.journalPool = r.conf.DefaultJournalPool
	}
	if r.dataPool, ok = opts.GetString(types.OptionDataPool); !ok {
		r.dataPool = r.conf.DefaultDataPool
	}

	r.layout.ObjectSize = uint64(1) << r.order
	if r.stripeUnit == 0 || r.stripeCount == 0 {
		r.layout.StripeUnit = r.layout.ObjectSize
		r.layout.StripeCount = 1
	} else {
		r.layout.StripeUnit = r.stripeUnit
		r.layout.StripeCount = r.stripeCount
	}

	r.forceNonPrimary = len(r.nonPrimaryGlobalImageID) > 0

	if len(r.dataPool) > 0 && r.dataPool != r.cluster.PoolName() {
		r.features |= types.FeatureDataPool
	} else {
		r.dataPool = ""
		r.features &^= types.FeatureDataPool
	}

	if (r.stripeUnit != 0 && r.stripeUnit != r.layout.ObjectSize) ||
		(r.stripeCount != 0 && r.stripeCount != 1) {
		r.features |= types.FeatureStripingV2
	} else {
		r.features &^= types.FeatureStripingV2
	}
}
