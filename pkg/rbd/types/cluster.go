package types

// Completion for an asynchronous cluster operation. Invoked
// exactly once, with a nil error on success.
type Completion func(err error)

// Fields embedded on the image header object at creation time.
type ImageHeader struct {
	// Image size in bytes.
	Size uint64

	// Base-2 log of the data object size.
	Order uint8

	// Enabled feature mask.
	Features uint64

	// Name prefix shared by every data object of the image.
	ObjectPrefix string

	// Pool holding the data objects, negative when data lives
	// next to the metadata.
	DataPoolID int64
}

// The asynchronous object store client used by the creation
// pipeline. Mutating and reading operations complete through
// callbacks invoked on the client dispatch routine, one at a
// time. Implementations must report missing objects through
// errors recognized by errdefs.IsNotFound.
type Cluster interface {
	// Name of the metadata pool this client points to.
	PoolName() string

	// Numeric id of the metadata pool.
	PoolID() int64

	// Resolve a pool name to its numeric id. Synchronous, only
	// used before the pipeline starts.
	Resolve(pool string) (int64, error)

	// Allocate one self managed snapshot id. Synchronous, only
	// used for the once per pool snapshot mode bootstrap.
	SelfManagedSnapCreate() (uint64, error)

	// Release a previously allocated self managed snapshot id.
	SelfManagedSnapRemove(snapID uint64) error

	// Stat a named object.
	Stat(obj string, done Completion)

	// Create the id object exclusively and record the image id
	// on it.
	SetID(obj, imageID string, done Completion)

	// Bind name to id on the pool directory, creating the
	// directory object when absent. Fails when either the name
	// or the id is already bound.
	DirAddImage(name, imageID string, done Completion)

	// Remove the binding from the pool directory.
	DirRemoveImage(name, imageID string, done Completion)

	// Create the header object exclusively with the given
	// fields.
	CreateImage(obj string, header ImageHeader, done Completion)

	// Persist explicit striping parameters on the header.
	SetStripeUnitCount(obj string, unit, count uint64, done Completion)

	// Initialize the object map with the given number of
	// entries, all flagged nonexistent.
	ObjectMapResize(obj string, count uint64, done Completion)

	// Read the pool wide mirror mode.
	MirrorModeGet(done func(mode MirrorMode, err error))

	// Read the mirror registration of an image.
	MirrorImageGet(imageID string, done func(image MirrorImage, err error))

	// Upsert the mirror registration of an image.
	MirrorImageSet(imageID string, image MirrorImage, done Completion)

	// Create the journal header object exclusively with its
	// geometry.
	JournalInit(obj string, meta JournalMeta, done Completion)

	// Allocate a new journal tag bound to the given class.
	JournalAllocateTag(obj string, class uint64, data TagData, done func(tag Tag, err error))

	// Register a journal client.
	JournalRegisterClient(obj, clientID string, done Completion)

	// Remove a named object.
	Remove(obj string, done Completion)
}
