package journal

import (
	"github.com/jabolina/go-rbd/pkg/rbd/helper"
	"github.com/jabolina/go-rbd/pkg/rbd/types"
)

// Mirror uuid recorded on tags produced by the local cluster.
// Replicated entries carry the uuid of the remote primary
// instead.
const LocalMirrorUUID = ""

// Client id under which the image itself registers on its
// journal. Remote mirror daemons register under their own peer
// uuid.
const ImageClientID = ""

// Creates the journal of an image: the header object with the
// journal geometry, a fresh tag class bound to the producing
// cluster, and the image client registration. The request is a
// black box to its caller, it compensates its own partial work
// and reports a single outcome through the completion.
type CreateRequest struct {
	cluster  types.Cluster
	log      types.Logger
	imageID  string
	meta     types.JournalMeta
	tagData  types.TagData
	clientID string
	onFinish func(error)

	journalObj string
	tag        types.Tag
	savedErr   error
}

func NewCreateRequest(cluster types.Cluster, imageID string, meta types.JournalMeta,
	tagData types.TagData, clientID string, log types.Logger,
	onFinish func(error)) *CreateRequest {
	return &CreateRequest{
		cluster:    cluster,
		log:        log,
		imageID:    imageID,
		meta:       meta,
		tagData:    tagData,
		clientID:   clientID,
		onFinish:   onFinish,
		journalObj: helper.JournalObjectName(imageID),
	}
}

func (r *CreateRequest) Send() {
	r.createJournal()
}

func (r *CreateRequest) createJournal() {
	r.log.Debugf("%s: create journal header", r.imageID)
	r.cluster.JournalInit(r.journalObj, r.meta, r.handleCreateJournal)
}

func (r *CreateRequest) handleCreateJournal(err error) {
	if err != nil {
		r.log.Errorf("error creating journal header: %v", err)
		r.onFinish(err)
		return
	}
	r.allocateTag()
}

func (r *CreateRequest) allocateTag() {
	r.log.Debugf("%s: allocate journal tag", r.imageID)
	r.cluster.JournalAllocateTag(r.journalObj, types.TagClassNew, r.tagData,
		r.handleAllocateTag)
}

func (r *CreateRequest) handleAllocateTag(tag types.Tag, err error) {
	if err != nil {
		r.log.Errorf("error allocating journal tag: %v", err)
		r.savedErr = err
		r.removeJournal()
		return
	}
	r.tag = tag
	r.registerClient()
}

func (r *CreateRequest) registerClient() {
	r.log.Debugf("%s: register journal client", r.imageID)
	r.cluster.JournalRegisterClient(r.journalObj, r.clientID, r.handleRegisterClient)
}

func (r *CreateRequest) handleRegisterClient(err error) {
	if err != nil {
		r.log.Errorf("error registering journal client: %v", err)
		r.savedErr = err
		r.removeJournal()
		return
	}
	r.onFinish(nil)
}

// Compensation for a partially created journal. The first
// failure is the one reported back, a cleanup failure is only
// logged.
func (r *CreateRequest) removeJournal() {
	r.log.Debugf("%s: remove journal header after failure", r.imageID)
	r.cluster.Remove(r.journalObj, r.handleRemoveJournal)
}

func (r *CreateRequest) handleRemoveJournal(err error) {
	if err != nil {
		r.log.Errorf("error cleaning up journal header: %v", err)
	}
	r.onFinish(r.savedErr)
}
