package types

// Asks the journal to allocate a brand new tag class instead
// of appending to an existing one.
const TagClassNew uint64 = ^uint64(0)

// Geometry and placement of a journal.
type JournalMeta struct {
	// Base-2 log of the journal object size.
	Order uint8

	// Number of journal objects written in parallel.
	SplayWidth uint8

	// Pool holding the journal objects, empty when the journal
	// lives next to the image metadata.
	Pool string
}

// Opaque data bound to a journal tag. The mirror uuid tells
// which cluster of the replication pair produced the entries
// recorded under the tag.
type TagData struct {
	MirrorUUID string
}

// An allocated journal tag.
type Tag struct {
	// Tag id, unique inside the journal.
	ID uint64

	// Class the tag belongs to.
	Class uint64

	// Data bound at allocation time.
	Data TagData
}
