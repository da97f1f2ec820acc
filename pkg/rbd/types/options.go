package types

// Identifies a single creation option inside the option map.
type Option int

const (
	// The complete feature mask to start from. When absent the
	// configured default mask is used.
	OptionFeatures Option = iota

	// Bits to turn on over the starting mask.
	OptionFeaturesSet

	// Bits to turn off over the starting mask. A bit present on
	// both the set and the clear side is dropped from both.
	OptionFeaturesClear

	// Striping parameters. Either both are given or neither.
	OptionStripeUnit
	OptionStripeCount

	// Base-2 log of the object size.
	OptionOrder

	// Journal geometry and placement.
	OptionJournalOrder
	OptionJournalSplayWidth
	OptionJournalPool

	// Pool that will hold the data objects when different from
	// the metadata pool.
	OptionDataPool
)

// The options requested by the caller when creating an image.
// This behaves like a typed map, options that were never set
// are distinguishable from options set to the zero value.
type ImageOptions struct {
	numeric map[Option]uint64
	text    map[Option]string
}

func NewImageOptions() *ImageOptions {
	return &ImageOptions{
		numeric: make(map[Option]uint64),
		text:    make(map[Option]string),
	}
}

// Set a numeric option value.
func (o *ImageOptions) SetUint64(opt Option, value uint64) {
	o.numeric[opt] = value
}

// Set a textual option value.
func (o *ImageOptions) SetString(opt Option, value string) {
	o.text[opt] = value
}

// Get a numeric option, the boolean tells if the option
// was ever set.
func (o *ImageOptions) GetUint64(opt Option) (uint64, bool) {
	if o == nil {
		return 0, false
	}
	v, ok := o.numeric[opt]
	return v, ok
}

// Get a textual option, the boolean tells if the option
// was ever set.
func (o *ImageOptions) GetString(opt Option) (string, bool) {
	if o == nil {
		return "", false
	}
	v, ok := o.text[opt]
	return v, ok
}
