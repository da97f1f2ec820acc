package definition

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ReneKroon/ttlcache"
	"github.com/containerd/errdefs"
	"github.com/wangjia184/sortedset"

	"github.com/jabolina/go-rbd/pkg/rbd/concurrent"
	"github.com/jabolina/go-rbd/pkg/rbd/helper"
	"github.com/jabolina/go-rbd/pkg/rbd/types"
)

// Operation names accepted by Inject.
const (
	OpStat                  = "stat"
	OpSetID                 = "set_id"
	OpDirAddImage           = "dir_add_image"
	OpDirRemoveImage        = "dir_remove_image"
	OpCreateImage           = "create_image"
	OpSetStripeUnitCount    = "set_stripe_unit_count"
	OpObjectMapResize       = "object_map_resize"
	OpMirrorModeGet         = "mirror_mode_get"
	OpMirrorImageGet        = "mirror_image_get"
	OpMirrorImageSet        = "mirror_image_set"
	OpJournalInit           = "journal_init"
	OpJournalAllocateTag    = "journal_allocate_tag"
	OpJournalRegisterClient = "journal_register_client"
)

// How long a resolved pool id stays cached.
const resolveCacheTTL = 10 * time.Minute

// One named object of the pool. Only the fields touched by the
// class methods issued against the object are ever filled.
type object struct {
	imageID     string
	header      *types.ImageHeader
	stripeUnit  uint64
	stripeCount uint64
	objmapSize  uint64
	journal     *types.JournalMeta
	tags        []types.Tag
	clients     map[string]bool
}

// An in memory rendition of the object store client. Class
// method calls mutate plain structures under a mutex and
// complete through a FIFO dispatch routine, so callers observe
// the same serial, asynchronous behaviour a real cluster
// client provides. Tests drive failure paths through one shot
// fault injection.
type InMemoryCluster struct {
	mutex sync.Mutex

	poolName string
	poolID   int64

	// Resolvable pools, name to numeric id.
	pools map[string]int64

	// Front cache for pool resolution.
	resolved *ttlcache.Cache

	// Every named object of the metadata pool.
	objects map[string]*object

	// The pool directory, name to image id, kept ordered so
	// listings are deterministic.
	directory *sortedset.SortedSet

	// Pool wide mirroring state. The registry object exists
	// only after mirroring was provisioned.
	mirrorMode   types.MirrorMode
	mirrorImages map[string]types.MirrorImage

	// Self managed snapshot bookkeeping.
	selfManaged  bool
	snapSeq      uint64
	allocedSnaps map[uint64]bool

	// Journal tag class allocation.
	nextTagClass uint64

	// One shot fault injection, keyed by operation name and,
	// for removals, by object name.
	faults       map[string]error
	removeFaults map[string]error

	dispatch concurrent.Scheduler
}

func NewInMemoryCluster(poolName string, poolID int64) *InMemoryCluster {
	resolved := ttlcache.NewCache()
	resolved.SetTTL(resolveCacheTTL)
	return &InMemoryCluster{
		poolName:     poolName,
		poolID:       poolID,
		pools:        map[string]int64{poolName: poolID},
		resolved:     resolved,
		objects:      make(map[string]*object),
		directory:    sortedset.New(),
		mirrorImages: make(map[string]types.MirrorImage),
		allocedSnaps: make(map[uint64]bool),
		faults:       make(map[string]error),
		removeFaults: make(map[string]error),
		dispatch:     concurrent.NewScheduler(),
	}
}

// Close releases the dispatch routine. Completions queued but
// not yet started are dropped.
func (c *InMemoryCluster) Close() {
	c.dispatch.Stop()
	c.resolved.Close()
}

// AddPool makes a pool resolvable, so it can serve as a data
// or journal pool.
func (c *InMemoryCluster) AddPool(name string, id int64) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.pools[name] = id
}

// SetMirrorMode provisions the pool wide mirror registry with
// the given mode.
func (c *InMemoryCluster) SetMirrorMode(mode types.MirrorMode) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.mirrorMode = mode
	c.ensureObject(helper.MirroringObject)
}

// Inject arms a one shot failure for the named operation. The
// next call of that operation consumes the failure.
func (c *InMemoryCluster) Inject(op string, err error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.faults[op] = err
}

// InjectRemove arms a one shot failure for the removal of the
// named object.
func (c *InMemoryCluster) InjectRemove(obj string, err error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.removeFaults[obj] = err
}

// ObjectExists tells if the named object exists.
func (c *InMemoryCluster) ObjectExists(obj string) bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	_, ok := c.objects[obj]
	return ok
}

// Header returns the stored header of the named object.
func (c *InMemoryCluster) Header(obj string) (types.ImageHeader, bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	o, ok := c.objects[obj]
	if !ok || o.header == nil {
		return types.ImageHeader{}, false
	}
	return *o.header, true
}

// StripeUnitCount returns the explicit striping persisted on
// the named header object.
func (c *InMemoryCluster) StripeUnitCount(obj string) (uint64, uint64) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	o, ok := c.objects[obj]
	if !ok {
		return 0, 0
	}
	return o.stripeUnit, o.stripeCount
}

// ObjectMapSize returns the entry count of the named object
// map object.
func (c *InMemoryCluster) ObjectMapSize(obj string) (uint64, bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	o, ok := c.objects[obj]
	if !ok {
		return 0, false
	}
	return o.objmapSize, true
}

// DirLookup resolves an image name through the directory.
func (c *InMemoryCluster) DirLookup(name string) (string, bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	node := c.directory.GetByKey(name)
	if node == nil {
		return "", false
	}
	return node.Value.(string), true
}

// DirList returns every image name of the directory in order.
func (c *InMemoryCluster) DirList() []string {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	var names []string
	for _, node := range c.directory.GetByRankRange(1, -1, false) {
		names = append(names, node.Key())
	}
	return names
}

// MirrorImage returns the mirror registration of an image id.
func (c *InMemoryCluster) MirrorImage(imageID string) (types.MirrorImage, bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	image, ok := c.mirrorImages[imageID]
	return image, ok
}

// JournalTags returns the tags allocated on the journal of the
// named object.
func (c *InMemoryCluster) JournalTags(obj string) []types.Tag {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	o, ok := c.objects[obj]
	if !ok {
		return nil
	}
	return append([]types.Tag(nil), o.tags...)
}

// SelfManagedSnapshots tells if the pool switched to self
// managed snapshot mode. The switch is sticky.
func (c *InMemoryCluster) SelfManagedSnapshots() bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.selfManaged
}

func (c *InMemoryCluster) PoolName() string {
	return c.poolName
}

func (c *InMemoryCluster) PoolID() int64 {
	return c.poolID
}

func (c *InMemoryCluster) Resolve(pool string) (int64, error) {
	if cached, ok := c.resolved.Get(pool); ok {
		return cached.(int64), nil
	}

	c.mutex.Lock()
	id, ok := c.pools[pool]
	c.mutex.Unlock()
	if !ok {
		return -1, fmt.Errorf("pool %s: %w", pool, errdefs.ErrNotFound)
	}
	c.resolved.Set(pool, id)
	return id, nil
}

func (c *InMemoryCluster) SelfManagedSnapCreate() (uint64, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.selfManaged = true
	c.snapSeq++
	c.allocedSnaps[c.snapSeq] = true
	return c.snapSeq, nil
}

func (c *InMemoryCluster) SelfManagedSnapRemove(snapID uint64) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if !c.allocedSnaps[snapID] {
		return fmt.Errorf("snapshot %d: %w", snapID, errdefs.ErrNotFound)
	}
	delete(c.allocedSnaps, snapID)
	return nil
}

func (c *InMemoryCluster) Stat(obj string, done types.Completion) {
	c.mutex.Lock()
	err := c.consumeFault(OpStat)
	if err == nil {
		if _, ok := c.objects[obj]; !ok {
			err = notFound(obj)
		}
	}
	c.mutex.Unlock()
	c.finish(done, err)
}

func (c *InMemoryCluster) SetID(obj, imageID string, done types.Completion) {
	c.mutex.Lock()
	err := c.consumeFault(OpSetID)
	if err == nil {
		if _, ok := c.objects[obj]; ok {
			err = alreadyExists(obj)
		} else {
			c.objects[obj] = &object{imageID: imageID}
		}
	}
	c.mutex.Unlock()
	c.finish(done, err)
}

func (c *InMemoryCluster) DirAddImage(name, imageID string, done types.Completion) {
	c.mutex.Lock()
	err := c.consumeFault(OpDirAddImage)
	if err == nil && c.directory.GetByKey(name) != nil {
		err = alreadyExists(name)
	}
	if err == nil {
		for _, node := range c.directory.GetByRankRange(1, -1, false) {
			if node.Value.(string) == imageID {
				err = alreadyExists(imageID)
				break
			}
		}
	}
	if err == nil {
		c.ensureObject(helper.DirectoryObject)
		c.directory.AddOrUpdate(name, 0, imageID)
	}
	c.mutex.Unlock()
	c.finish(done, err)
}

func (c *InMemoryCluster) DirRemoveImage(name, imageID string, done types.Completion) {
	c.mutex.Lock()
	err := c.consumeFault(OpDirRemoveImage)
	if err == nil {
		node := c.directory.GetByKey(name)
		if node == nil || node.Value.(string) != imageID {
			err = notFound(name)
		} else {
			c.directory.Remove(name)
		}
	}
	c.mutex.Unlock()
	c.finish(done, err)
}

func (c *InMemoryCluster) CreateImage(obj string, header types.ImageHeader, done types.Completion) {
	c.mutex.Lock()
	err := c.consumeFault(OpCreateImage)
	if err == nil {
		if _, ok := c.objects[obj]; ok {
			err = alreadyExists(obj)
		} else {
			stored := header
			c.objects[obj] = &object{header: &stored}
		}
	}
	c.mutex.Unlock()
	c.finish(done, err)
}

func (c *InMemoryCluster) SetStripeUnitCount(obj string, unit, count uint64, done types.Completion) {
	c.mutex.Lock()
	err := c.consumeFault(OpSetStripeUnitCount)
	if err == nil {
		o, ok := c.objects[obj]
		if !ok {
			err = notFound(obj)
		} else {
			o.stripeUnit = unit
			o.stripeCount = count
		}
	}
	c.mutex.Unlock()
	c.finish(done, err)
}

func (c *InMemoryCluster) ObjectMapResize(obj string, count uint64, done types.Completion) {
	c.mutex.Lock()
	err := c.consumeFault(OpObjectMapResize)
	if err == nil {
		o := c.ensureObject(obj)
		o.objmapSize = count
	}
	c.mutex.Unlock()
	c.finish(done, err)
}

func (c *InMemoryCluster) MirrorModeGet(done func(mode types.MirrorMode, err error)) {
	c.mutex.Lock()
	mode := c.mirrorMode
	err := c.consumeFault(OpMirrorModeGet)
	if err == nil {
		if _, ok := c.objects[helper.MirroringObject]; !ok {
			err = notFound(helper.MirroringObject)
		}
	}
	c.mutex.Unlock()
	c.dispatch.Schedule(func(ctx context.Context) {
		done(mode, err)
	})
}

func (c *InMemoryCluster) MirrorImageGet(imageID string, done func(image types.MirrorImage, err error)) {
	c.mutex.Lock()
	err := c.consumeFault(OpMirrorImageGet)
	var image types.MirrorImage
	if err == nil {
		stored, ok := c.mirrorImages[imageID]
		if !ok {
			err = notFound(imageID)
		} else {
			image = stored
		}
	}
	c.mutex.Unlock()
	c.dispatch.Schedule(func(ctx context.Context) {
		done(image, err)
	})
}

func (c *InMemoryCluster) MirrorImageSet(imageID string, image types.MirrorImage, done types.Completion) {
	c.mutex.Lock()
	err := c.consumeFault(OpMirrorImageSet)
	if err == nil {
		c.ensureObject(helper.MirroringObject)
		c.mirrorImages[imageID] = image
	}
	c.mutex.Unlock()
	c.finish(done, err)
}

func (c *InMemoryCluster) JournalInit(obj string, meta types.JournalMeta, done types.Completion) {
	c.mutex.Lock()
	err := c.consumeFault(OpJournalInit)
	if err == nil {
		if len(meta.Pool) > 0 {
			if _, ok := c.pools[meta.Pool]; !ok {
				err = notFound(meta.Pool)
			}
		}
	}
	if err == nil {
		if _, ok := c.objects[obj]; ok {
			err = alreadyExists(obj)
		} else {
			stored := meta
			c.objects[obj] = &object{
				journal: &stored,
				clients: make(map[string]bool),
			}
		}
	}
	c.mutex.Unlock()
	c.finish(done, err)
}

func (c *InMemoryCluster) JournalAllocateTag(obj string, class uint64, data types.TagData,
	done func(tag types.Tag, err error)) {
	c.mutex.Lock()
	err := c.consumeFault(OpJournalAllocateTag)
	var tag types.Tag
	if err == nil {
		o, ok := c.objects[obj]
		if !ok || o.journal == nil {
			err = notFound(obj)
		} else {
			if class == types.TagClassNew {
				class = c.nextTagClass
				c.nextTagClass++
			}
			tag = types.Tag{
				ID:    uint64(len(o.tags)),
				Class: class,
				Data:  data,
			}
			o.tags = append(o.tags, tag)
		}
	}
	c.mutex.Unlock()
	c.dispatch.Schedule(func(ctx context.Context) {
		done(tag, err)
	})
}

func (c *InMemoryCluster) JournalRegisterClient(obj, clientID string, done types.Completion) {
	c.mutex.Lock()
	err := c.consumeFault(OpJournalRegisterClient)
	if err == nil {
		o, ok := c.objects[obj]
		if !ok || o.journal == nil {
			err = notFound(obj)
		} else if o.clients[clientID] {
			err = alreadyExists(clientID)
		} else {
			o.clients[clientID] = true
		}
	}
	c.mutex.Unlock()
	c.finish(done, err)
}

func (c *InMemoryCluster) Remove(obj string, done types.Completion) {
	c.mutex.Lock()
	err := c.consumeRemoveFault(obj)
	if err == nil {
		if _, ok := c.objects[obj]; !ok {
			err = notFound(obj)
		} else {
			delete(c.objects, obj)
		}
	}
	c.mutex.Unlock()
	c.finish(done, err)
}

// Takes and clears the armed fault of an operation. Callers
// hold the mutex.
func (c *InMemoryCluster) consumeFault(op string) error {
	err, ok := c.faults[op]
	if !ok {
		return nil
	}
	delete(c.faults, op)
	return err
}

func (c *InMemoryCluster) consumeRemoveFault(obj string) error {
	err, ok := c.removeFaults[obj]
	if !ok {
		return nil
	}
	delete(c.removeFaults, obj)
	return err
}

// Callers hold the mutex.
func (c *InMemoryCluster) ensureObject(obj string) *object {
	o, ok := c.objects[obj]
	if !ok {
		o = &object{}
		c.objects[obj] = o
	}
	return o
}

// Queue the completion on the dispatch routine, so callers
// observe asynchronous, in order completions.
func (c *InMemoryCluster) finish(done types.Completion, err error) {
	c.dispatch.Schedule(func(ctx context.Context) {
		done(err)
	})
}

func notFound(name string) error {
	return fmt.Errorf("%s: %w", name, errdefs.ErrNotFound)
}

func alreadyExists(name string) error {
	return fmt.Errorf("%s: %w", name, errdefs.ErrAlreadyExists)
}
