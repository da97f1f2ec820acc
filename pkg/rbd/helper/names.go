package helper

import (
	"fmt"
	"strconv"
)

// Well known object names, shared with every client of the
// pool.
const (
	// Pool wide directory binding image names to ids.
	DirectoryObject = "rbd_directory"

	// Pool wide mirror registry.
	MirroringObject = "rbd_mirroring"

	idObjectPrefix      = "rbd_id."
	headerObjectPrefix  = "rbd_header."
	objectMapPrefix     = "rbd_object_map."
	dataObjectPrefix    = "rbd_data."
	journalHeaderPrefix = "journal."
)

// Snapshot id meaning the live image instead of a snapshot.
const NoSnapshot uint64 = ^uint64(0) - 1

// Name of the id object for an image name.
func IDObjectName(imageName string) string {
	return idObjectPrefix + imageName
}

// Name of the header object for an image id.
func HeaderObjectName(imageID string) string {
	return headerObjectPrefix + imageID
}

// Name of the object map object for an image id at the given
// snapshot.
func ObjectMapName(imageID string, snapID uint64) string {
	name := objectMapPrefix + imageID
	if snapID != NoSnapshot {
		name += fmt.Sprintf(".%016x", snapID)
	}
	return name
}

// Name of the journal header object for an image id.
func JournalObjectName(imageID string) string {
	return journalHeaderPrefix + imageID
}

// Prefix recorded on the header and shared by every data
// object of the image. When data lives on a separate pool the
// prefix also carries the metadata pool id, so data object
// names stay unique inside the data pool.
func DataObjectPrefix(imageID string, metaPoolID int64, separateDataPool bool) string {
	if separateDataPool {
		return dataObjectPrefix + strconv.FormatInt(metaPoolID, 10) + "." + imageID
	}
	return dataObjectPrefix + imageID
}
