package image

import (
	"context"
	"fmt"

	"github.com/containerd/errdefs"
	"github.com/google/uuid"
	"github.com/jabolina/go-rbd/pkg/rbd/concurrent"
	"github.com/jabolina/go-rbd/pkg/rbd/helper"
	"github.com/jabolina/go-rbd/pkg/rbd/journal"
	"github.com/jabolina/go-rbd/pkg/rbd/mirror"
	"github.com/jabolina/go-rbd/pkg/rbd/types"
)

// A single shot request that materializes a new image on the
// cluster. Creation spans several objects that must reach a
// consistent state together, so the request advances through
// an ordered pipeline, one asynchronous cluster operation at a
// time, and on any failure tears the prior steps down in
// reverse order before reporting the first error back.
//
// The request must be used once. All progress happens on the
// cluster completion callbacks and on jobs queued to the
// scheduler, the request never spawns a routine of its own.
type CreateRequest struct {
	cluster   types.Cluster
	conf      *types.Configuration
	log       types.Logger
	scheduler concurrent.Scheduler
	notifier  types.Notifier

	// Caller supplied identity.
	imageName string
	imageID   string
	size      uint64

	// Replication inputs. A non empty global image id flags
	// this image as a passive replica of a remote primary.
	nonPrimaryGlobalImageID string
	primaryMirrorUUID       string

	// Continuation invoked exactly once with the outcome.
	onFinish func(error)

	// Derived object names.
	idObj     string
	headerObj string
	objmapObj string

	// Effective geometry and features after resolution.
	features          uint64
	order             uint8
	stripeUnit        uint64
	stripeCount       uint64
	journalOrder      uint8
	journalSplayWidth uint8
	journalPool       string
	dataPool          string
	dataPoolID        int64
	layout            types.Layout
	forceNonPrimary   bool

	mirrorMode  types.MirrorMode
	mirrorImage types.MirrorImage

	// First forward failure, preserved across the rollback.
	savedErr error

	completed helper.Latch
}

// Builds a request ready to be sent. The options are resolved
// against the configuration immediately, so the effective
// geometry can be inspected through logs before Send.
func NewCreateRequest(cluster types.Cluster, imageName, imageID string, size uint64,
	opts *types.ImageOptions, nonPrimaryGlobalImageID, primaryMirrorUUID string,
	scheduler concurrent.Scheduler, notifier types.Notifier,
	conf *types.Configuration, onFinish func(error)) *CreateRequest {

	if conf.Logger == nil {
		conf.Logger = types.NewDefaultLogger()
	}

	r := &CreateRequest{
		cluster:                 cluster,
		conf:                    conf,
		log:                     conf.Logger,
		scheduler:               scheduler,
		notifier:                notifier,
		imageName:               imageName,
		imageID:                 imageID,
		size:                    size,
		nonPrimaryGlobalImageID: nonPrimaryGlobalImageID,
		primaryMirrorUUID:       primaryMirrorUUID,
		onFinish:                onFinish,
		dataPoolID:              -1,
	}

	r.idObj = helper.IDObjectName(imageName)
	r.headerObj = helper.HeaderObjectName(imageID)
	r.objmapObj = helper.ObjectMapName(imageID, helper.NoSnapshot)

	r.resolveOptions(opts)

	r.log.Debugf("create name=%s id=%s size=%d features=%s order=%d "+
		"stripe_unit=%d stripe_count=%d journal_order=%d journal_splay_width=%d "+
		"journal_pool=%s data_pool=%s",
		r.imageName, r.imageID, r.size, types.FeatureString(r.features), r.order,
		r.stripeUnit, r.stripeCount, r.journalOrder, r.journalSplayWidth,
		r.journalPool, r.dataPool)
	return r
}

// Send runs the validators and, when they pass, starts the
// forward pipeline. Validator rejections are delivered to the
// continuation directly, nothing was touched on the cluster
// yet.
func (r *CreateRequest) Send() {
	if err := validateFeatures(r.features, r.forceNonPrimary); err != nil {
		r.log.Errorf("invalid features: %v", err)
		r.complete(err)
		return
	}
	if err := validateOrder(r.order); err != nil {
		r.log.Errorf("invalid order: %v", err)
		r.complete(err)
		return
	}
	if err := validateStriping(r.order, r.stripeUnit, r.stripeCount); err != nil {
		r.log.Errorf("invalid striping: %v", err)
		r.complete(err)
		return
	}
	dataPoolID, err := validateDataPool(r.cluster, r.features, r.dataPool)
	if err != nil {
		r.log.Errorf("invalid data pool: %v", err)
		r.complete(err)
		return
	}
	r.dataPoolID = dataPoolID
	if err := validateLayout(r.size, r.layout); err != nil {
		r.log.Errorf("invalid layout: %v", err)
		r.complete(err)
		return
	}

	r.validatePool()
}

// Stat the pool directory. A missing directory means a fresh
// pool, which is switched to self managed snapshot mode once
// by allocating and releasing a snapshot id.
func (r *CreateRequest) validatePool() {
	if !r.conf.ValidatePool {
		r.createIDObject()
		return
	}

	r.log.Debugf("%s: validate pool", r.imageID)
	r.cluster.Stat(helper.DirectoryObject, r.handleValidatePool)
}

func (r *CreateRequest) handleValidatePool(err error) {
	if err != nil && !errdefs.IsNotFound(err) {
		r.log.Errorf("failed to stat pool directory: %v", err)
		r.complete(err)
		return
	}

	if err == nil {
		r.createIDObject()
		return
	}

	// Allocate a self managed snapshot id if this is a new pool
	// to force self managed snapshot mode. This happens just
	// once per fresh pool, so the blocking calls are tolerated
	// here.
	snapID, err := r.cluster.SelfManagedSnapCreate()
	if err != nil {
		r.log.Errorf("failed to allocate self managed snapshot: %v", err)
		r.complete(err)
		return
	}

	if err = r.cluster.SelfManagedSnapRemove(snapID); err != nil {
		// The pool already switched to self managed snapshots,
		// the leaked id is only logged.
		r.log.Warnf("failed to release self managed snapshot %d: %v", snapID, err)
	}

	r.createIDObject()
}

// Create the id object exclusively and bind the image id to
// it. The id object anchors the name to id binding.
func (r *CreateRequest) createIDObject() {
	r.log.Debugf("%s: create id object", r.imageID)
	r.cluster.SetID(r.idObj, r.imageID, r.handleCreateIDObject)
}

func (r *CreateRequest) handleCreateIDObject(err error) {
	if err != nil {
		r.log.Errorf("error creating id object: %v", err)
		r.complete(err)
		return
	}
	r.addImageToDirectory()
}

// Make the image discoverable through the pool directory.
func (r *CreateRequest) addImageToDirectory() {
	r.log.Debugf("%s: add image to directory", r.imageID)
	r.cluster.DirAddImage(r.imageName, r.imageID, r.handleAddImageToDirectory)
}

func (r *CreateRequest) handleAddImageToDirectory(err error) {
	if err != nil {
		r.log.Errorf("error adding image to directory: %v", err)
		r.savedErr = err
		r.removeIDObject()
		return
	}
	r.createImage()
}

// Write the header object, the authoritative record of the
// image geometry.
func (r *CreateRequest) createImage() {
	r.log.Debugf("%s: create header", r.imageID)

	header := types.ImageHeader{
		Size:         r.size,
		Order:        r.order,
		Features:     r.features,
		ObjectPrefix: helper.DataObjectPrefix(r.imageID, r.cluster.PoolID(), r.dataPoolID != -1),
		DataPoolID:   r.dataPoolID,
	}
	r.cluster.CreateImage(r.headerObj, header, r.handleCreateImage)
}

func (r *CreateRequest) handleCreateImage(err error) {
	if err != nil {
		r.log.Errorf("error writing header: %v", err)
		r.savedErr = err
		r.removeFromDir()
		return
	}
	r.setStripeUnitCount()
}

// Persist the explicit stripe shape on the header. Skipped when
// the effective shape is the one object per stripe default.
func (r *CreateRequest) setStripeUnitCount() {
	if (r.stripeUnit == 0 && r.stripeCount == 0) ||
		(r.stripeCount == 1 && r.stripeUnit == r.layout.ObjectSize) {
		r.objectMapResize()
		return
	}

	r.log.Debugf("%s: set stripe unit count", r.imageID)
	r.cluster.SetStripeUnitCount(r.headerObj, r.stripeUnit, r.stripeCount, r.handleSetStripeUnitCount)
}

func (r *CreateRequest) handleSetStripeUnitCount(err error) {
	if err != nil {
		r.log.Errorf("error setting stripe unit/count: %v", err)
		r.savedErr = err
		r.removeHeaderObject()
		return
	}
	r.objectMapResize()
}

// Initialize the object map with one nonexistent entry per
// data object.
func (r *CreateRequest) objectMapResize() {
	if r.features&types.FeatureObjectMap == 0 {
		r.fetchMirrorMode()
		return
	}

	r.log.Debugf("%s: object map resize", r.imageID)
	r.cluster.ObjectMapResize(r.objmapObj, r.layout.NumObjects(r.size), r.handleObjectMapResize)
}

func (r *CreateRequest) handleObjectMapResize(err error) {
	if err != nil {
		r.log.Errorf("error creating initial object map: %v", err)
		r.savedErr = err
		r.removeHeaderObject()
		return
	}
	r.fetchMirrorMode()
}

// Read the pool wide mirror mode. Journaling gates the whole
// mirroring sub protocol, without it the image is done here.
func (r *CreateRequest) fetchMirrorMode() {
	if r.features&types.FeatureJournaling == 0 {
		r.complete(nil)
		return
	}

	r.log.Debugf("%s: fetch mirror mode", r.imageID)
	r.cluster.MirrorModeGet(r.handleFetchMirrorMode)
}

func (r *CreateRequest) handleFetchMirrorMode(mode types.MirrorMode, err error) {
	if err != nil && !errdefs.IsNotFound(err) {
		r.log.Errorf("failed to retrieve mirror mode: %v", err)
		r.savedErr = err
		r.removeObjectMap()
		return
	}

	// A missing mirror registry simply means mirroring was
	// never provisioned on this pool.
	r.mirrorMode = types.MirrorModeDisabled
	if err == nil {
		switch mode {
		case types.MirrorModeDisabled, types.MirrorModeImage, types.MirrorModePool:
			r.mirrorMode = mode
		default:
			r.log.Errorf("unknown mirror mode (%d)", uint32(mode))
			r.savedErr = fmt.Errorf("unknown mirror mode %d: %w", uint32(mode),
				errdefs.ErrInvalidArgument)
			r.removeObjectMap()
			return
		}
	}

	r.journalCreate()
}

// Delegate journal creation to the journal sub service. The
// tag records which side of the replication pair owns the
// entries.
func (r *CreateRequest) journalCreate() {
	r.log.Debugf("%s: journal create", r.imageID)

	mirrorUUID := journal.LocalMirrorUUID
	if r.forceNonPrimary {
		mirrorUUID = r.primaryMirrorUUID
	}

	req := journal.NewCreateRequest(r.cluster, r.imageID,
		types.JournalMeta{
			Order:      r.journalOrder,
			SplayWidth: r.journalSplayWidth,
			Pool:       r.journalPool,
		},
		types.TagData{MirrorUUID: mirrorUUID},
		journal.ImageClientID, r.log, r.handleJournalCreate)
	req.Send()
}

func (r *CreateRequest) handleJournalCreate(err error) {
	if err != nil {
		r.log.Errorf("error creating journal: %v", err)
		r.savedErr = err
		r.removeObjectMap()
		return
	}
	r.fetchMirrorImage()
}

// Read the current mirror registration. Mirroring is only
// enabled when the pool replicates every image or when this
// image is a forced non primary replica.
func (r *CreateRequest) fetchMirrorImage() {
	if r.mirrorMode != types.MirrorModePool && !r.forceNonPrimary {
		r.complete(nil)
		return
	}

	r.log.Debugf("%s: fetch mirror image", r.imageID)
	r.cluster.MirrorImageGet(r.imageID, r.handleFetchMirrorImage)
}

func (r *CreateRequest) handleFetchMirrorImage(image types.MirrorImage, err error) {
	if err != nil && !errdefs.IsNotFound(err) {
		r.log.Errorf("cannot enable mirroring: %v", err)
		r.savedErr = err
		r.journalRemove()
		return
	}

	if err == nil {
		r.mirrorImage = image
		if image.State == types.MirrorImageEnabled {
			r.complete(nil)
			return
		}
	}

	// Enable image mirroring, the registration was either
	// absent or in a state other than enabled.
	r.mirrorImageEnable()
}

// Upsert the registration in the enabled state. Fresh primary
// images mint a brand new global id, replicas inherit the id
// of their primary.
func (r *CreateRequest) mirrorImageEnable() {
	r.log.Debugf("%s: mirror image enable", r.imageID)

	r.mirrorImage.State = types.MirrorImageEnabled
	if len(r.nonPrimaryGlobalImageID) == 0 {
		r.mirrorImage.GlobalImageID = uuid.New().String()
	} else {
		r.mirrorImage.GlobalImageID = r.nonPrimaryGlobalImageID
	}

	r.cluster.MirrorImageSet(r.imageID, r.mirrorImage, r.handleMirrorImageEnable)
}

func (r *CreateRequest) handleMirrorImageEnable(err error) {
	if err != nil {
		r.log.Errorf("cannot enable mirroring: %v", err)
		r.savedErr = err
		r.journalRemove()
		return
	}
	r.sendWatcherNotification()
}

// Publishing to the watchers is a blocking call, so it runs on
// the scheduler instead of the completion callback routine.
func (r *CreateRequest) sendWatcherNotification() {
	r.log.Debugf("%s: send watcher notification", r.imageID)

	r.scheduler.Schedule(func(ctx context.Context) {
		err := mirror.NotifyImageUpdated(r.notifier, types.MirrorImageEnabled,
			r.imageID, r.mirrorImage.GlobalImageID)
		r.handleWatcherNotify(err)
	})
}

func (r *CreateRequest) handleWatcherNotify(err error) {
	if err != nil {
		// Watchers cope with missed updates on their own, just
		// log and move on.
		r.log.Warnf("failed to send update notification: %v", err)
	} else {
		r.log.Debugf("image mirroring is enabled: global_id=%s",
			r.mirrorImage.GlobalImageID)
	}
	r.complete(nil)
}

// Rollback. Each step attempts its cleanup and moves to the
// next one even on failure, so a degraded cluster still gets a
// best effort sweep. The error reported at the end is always
// the first forward failure.

func (r *CreateRequest) journalRemove() {
	if r.features&types.FeatureJournaling == 0 {
		r.removeObjectMap()
		return
	}

	r.log.Debugf("%s: journal remove", r.imageID)
	req := journal.NewRemoveRequest(r.cluster, r.imageID, journal.ImageClientID,
		r.log, r.handleJournalRemove)
	req.Send()
}

func (r *CreateRequest) handleJournalRemove(err error) {
	if err != nil {
		r.log.Errorf("error cleaning up journal after creation failed: %v", err)
	}
	r.removeObjectMap()
}

func (r *CreateRequest) removeObjectMap() {
	if r.features&types.FeatureObjectMap == 0 {
		r.removeHeaderObject()
		return
	}

	r.log.Debugf("%s: remove object map", r.imageID)
	r.cluster.Remove(r.objmapObj, r.handleRemoveObjectMap)
}

func (r *CreateRequest) handleRemoveObjectMap(err error) {
	if err != nil {
		r.log.Errorf("error cleaning up object map after creation failed: %v", err)
	}
	r.removeHeaderObject()
}

func (r *CreateRequest) removeHeaderObject() {
	r.log.Debugf("%s: remove header object", r.imageID)
	r.cluster.Remove(r.headerObj, r.handleRemoveHeaderObject)
}

func (r *CreateRequest) handleRemoveHeaderObject(err error) {
	if err != nil {
		r.log.Errorf("error cleaning up image header after creation failed: %v", err)
	}
	r.removeFromDir()
}

func (r *CreateRequest) removeFromDir() {
	r.log.Debugf("%s: remove image from directory", r.imageID)
	r.cluster.DirRemoveImage(r.imageName, r.imageID, r.handleRemoveFromDir)
}

func (r *CreateRequest) handleRemoveFromDir(err error) {
	if err != nil {
		r.log.Errorf("error cleaning up image from directory after creation failed: %v", err)
	}
	r.removeIDObject()
}

func (r *CreateRequest) removeIDObject() {
	r.log.Debugf("%s: remove id object", r.imageID)
	r.cluster.Remove(r.idObj, r.handleRemoveIDObject)
}

func (r *CreateRequest) handleRemoveIDObject(err error) {
	if err != nil {
		r.log.Errorf("error cleaning up id object after creation failed: %v", err)
	}
	r.complete(r.savedErr)
}

// The single terminal edge. The continuation fires exactly
// once no matter which path reached it, the latch swallows any
// later arrival.
func (r *CreateRequest) complete(err error) {
	if !r.completed.Fire() {
		return
	}
	if err == nil {
		r.log.Debugf("%s: done", r.imageID)
	}
	r.onFinish(err)
}
