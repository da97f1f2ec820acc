package rbd

import (
	"github.com/jabolina/go-rbd/pkg/rbd/concurrent"
	"github.com/jabolina/go-rbd/pkg/rbd/image"
	"github.com/jabolina/go-rbd/pkg/rbd/types"
)

// Creates the default configuration for image creation. Fresh
// images get only the layering feature, four megabyte data
// objects and no explicit striping.
func DefaultConfiguration() *types.Configuration {
	return &types.Configuration{
		DefaultFeatures:          types.FeatureLayering,
		DefaultOrder:             22,
		DefaultJournalOrder:      24,
		DefaultJournalSplayWidth: 4,
		ValidatePool:             true,
		Logger:                   types.NewDefaultLogger(),
	}
}

// CreateImage drives a whole create transaction against the
// cluster and blocks until the outcome is known. Either the
// image exists with all the requested scaffolding, or the
// steps already done are rolled back. Rollback is best effort:
// an object whose removal fails is left behind and only logged.
func CreateImage(cluster types.Cluster, imageName, imageID string, size uint64,
	opts *types.ImageOptions, conf *types.Configuration) error {
	return CreateMirroredImage(cluster, nil, imageName, imageID, size, opts, "", "", conf)
}

// CreateMirroredImage is CreateImage with the replication
// inputs exposed. A non empty nonPrimaryGlobalImageID creates
// the image as a passive replica of a remote primary, and the
// notifier, when given, receives the mirror enablement event.
func CreateMirroredImage(cluster types.Cluster, notifier types.Notifier,
	imageName, imageID string, size uint64, opts *types.ImageOptions,
	nonPrimaryGlobalImageID, primaryMirrorUUID string,
	conf *types.Configuration) error {

	scheduler := concurrent.NewScheduler()
	defer scheduler.Stop()

	done := make(chan error, 1)
	CreateImageAsync(cluster, notifier, imageName, imageID, size, opts,
		nonPrimaryGlobalImageID, primaryMirrorUUID, scheduler, conf,
		func(err error) {
			done <- err
		})
	return <-done
}

// CreateImageAsync starts a create transaction and returns
// immediately. The continuation is invoked exactly once with
// the outcome, on the cluster completion routine or on the
// given scheduler. A validator rejection invokes it on the
// calling routine, before CreateImageAsync returns.
func CreateImageAsync(cluster types.Cluster, notifier types.Notifier,
	imageName, imageID string, size uint64, opts *types.ImageOptions,
	nonPrimaryGlobalImageID, primaryMirrorUUID string,
	scheduler concurrent.Scheduler, conf *types.Configuration,
	onFinish func(error)) {

	req := image.NewCreateRequest(cluster, imageName, imageID, size, opts,
		nonPrimaryGlobalImageID, primaryMirrorUUID, scheduler, notifier,
		conf, onFinish)
	req.Send()
}
