package journal

import (
	"github.com/containerd/errdefs"
	"github.com/jabolina/go-rbd/pkg/rbd/helper"
	"github.com/jabolina/go-rbd/pkg/rbd/types"
)

// Removes the journal of an image. A journal that does not
// exist is treated as already removed, the request is used by
// compensation paths that cannot know how far creation got.
type RemoveRequest struct {
	cluster  types.Cluster
	log      types.Logger
	imageID  string
	clientID string
	onFinish func(error)

	journalObj string
}

func NewRemoveRequest(cluster types.Cluster, imageID, clientID string,
	log types.Logger, onFinish func(error)) *RemoveRequest {
	return &RemoveRequest{
		cluster:    cluster,
		log:        log,
		imageID:    imageID,
		clientID:   clientID,
		onFinish:   onFinish,
		journalObj: helper.JournalObjectName(imageID),
	}
}

func (r *RemoveRequest) Send() {
	r.statJournal()
}

func (r *RemoveRequest) statJournal() {
	r.log.Debugf("%s: stat journal header", r.imageID)
	r.cluster.Stat(r.journalObj, r.handleStatJournal)
}

func (r *RemoveRequest) handleStatJournal(err error) {
	if err != nil {
		if errdefs.IsNotFound(err) {
			r.onFinish(nil)
			return
		}
		r.log.Errorf("error checking journal header: %v", err)
		r.onFinish(err)
		return
	}
	r.removeJournal()
}

func (r *RemoveRequest) removeJournal() {
	r.log.Debugf("%s: remove journal header", r.imageID)
	r.cluster.Remove(r.journalObj, r.handleRemoveJournal)
}

func (r *RemoveRequest) handleRemoveJournal(err error) {
	if err != nil {
		r.log.Errorf("error removing journal header: %v", err)
		r.onFinish(err)
		return
	}
	r.onFinish(nil)
}
