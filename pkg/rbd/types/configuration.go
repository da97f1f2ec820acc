package types

// The configuration consulted for creation defaults. Every
// default field can be overridden per request through the
// image options; ValidatePool and Logger have no option.
type Configuration struct {
	// Feature mask applied when the caller does not request
	// one.
	DefaultFeatures uint64

	// Base-2 log of the object size applied when the caller
	// does not request one.
	DefaultOrder uint8

	// Striping shape applied when the caller does not request
	// one. Zero on both means one object per stripe.
	DefaultStripeUnit  uint64
	DefaultStripeCount uint64

	// Journal geometry defaults.
	DefaultJournalOrder      uint8
	DefaultJournalSplayWidth uint8
	DefaultJournalPool       string

	// Pool used for the data objects when the caller does not
	// name one. Empty keeps data next to the metadata.
	DefaultDataPool string

	// Whether the pool is checked, and bootstrapped, for self
	// managed snapshot support before the pipeline starts.
	ValidatePool bool

	// Logger used by the pipeline.
	Logger Logger
}
