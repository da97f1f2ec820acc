package definition_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/containerd/errdefs"
	"go.uber.org/goleak"

	"github.com/jabolina/go-rbd/pkg/rbd/definition"
	"github.com/jabolina/go-rbd/pkg/rbd/helper"
	"github.com/jabolina/go-rbd/pkg/rbd/types"
)

func wait(t *testing.T, send func(done types.Completion)) error {
	t.Helper()
	done := make(chan error, 1)
	send(func(err error) {
		done <- err
	})
	return <-done
}

func TestInMemoryCluster_StatMissingDirectory(t *testing.T) {
	defer goleak.VerifyNone(t)

	cluster := definition.NewInMemoryCluster("rbd", 1)
	defer cluster.Close()

	err := wait(t, func(done types.Completion) {
		cluster.Stat(helper.DirectoryObject, done)
	})
	if !errdefs.IsNotFound(err) {
		t.Fatalf("fresh pool should have no directory, found %v", err)
	}

	if err = wait(t, func(done types.Completion) {
		cluster.DirAddImage("a", "I1", done)
	}); err != nil {
		t.Fatalf("dir add failed: %v", err)
	}

	if err = wait(t, func(done types.Completion) {
		cluster.Stat(helper.DirectoryObject, done)
	}); err != nil {
		t.Fatalf("directory should exist after the first binding, found %v", err)
	}
}

func TestInMemoryCluster_DirectoryKeepsOrder(t *testing.T) {
	defer goleak.VerifyNone(t)

	cluster := definition.NewInMemoryCluster("rbd", 1)
	defer cluster.Close()

	for i, name := range []string{"zeta", "alpha", "mid"} {
		id := fmt.Sprintf("I%d", i)
		if err := wait(t, func(done types.Completion) {
			cluster.DirAddImage(name, id, done)
		}); err != nil {
			t.Fatalf("dir add %s failed: %v", name, err)
		}
	}

	names := cluster.DirList()
	expected := []string{"alpha", "mid", "zeta"}
	if len(names) != len(expected) {
		t.Fatalf("expected %d names, found %d", len(expected), len(names))
	}
	for i, name := range expected {
		if names[i] != name {
			t.Errorf("position %d should be %s, found %s", i, name, names[i])
		}
	}
}

func TestInMemoryCluster_DirectoryRejectsDuplicates(t *testing.T) {
	defer goleak.VerifyNone(t)

	cluster := definition.NewInMemoryCluster("rbd", 1)
	defer cluster.Close()

	if err := wait(t, func(done types.Completion) {
		cluster.DirAddImage("a", "I1", done)
	}); err != nil {
		t.Fatalf("dir add failed: %v", err)
	}

	err := wait(t, func(done types.Completion) {
		cluster.DirAddImage("a", "I2", done)
	})
	if !errdefs.IsAlreadyExists(err) {
		t.Fatalf("duplicate binding should be rejected, found %v", err)
	}
}

func TestInMemoryCluster_SelfManagedSnapshotsAreSticky(t *testing.T) {
	defer goleak.VerifyNone(t)

	cluster := definition.NewInMemoryCluster("rbd", 1)
	defer cluster.Close()

	if cluster.SelfManagedSnapshots() {
		t.Fatal("fresh pool should not be in self managed mode")
	}

	snapID, err := cluster.SelfManagedSnapCreate()
	if err != nil {
		t.Fatalf("snap create failed: %v", err)
	}
	if !cluster.SelfManagedSnapshots() {
		t.Fatal("pool should be in self managed mode after allocation")
	}

	if err = cluster.SelfManagedSnapRemove(snapID); err != nil {
		t.Fatalf("snap remove failed: %v", err)
	}
	// Releasing the id does not undo the mode switch.
	if !cluster.SelfManagedSnapshots() {
		t.Fatal("self managed mode should be sticky")
	}

	if err = cluster.SelfManagedSnapRemove(snapID); !errdefs.IsNotFound(err) {
		t.Fatalf("released id should be gone, found %v", err)
	}
}

func TestInMemoryCluster_ResolveCachesPoolIDs(t *testing.T) {
	defer goleak.VerifyNone(t)

	cluster := definition.NewInMemoryCluster("rbd", 1)
	defer cluster.Close()
	cluster.AddPool("fast", 9)

	id, err := cluster.Resolve("fast")
	if err != nil || id != 9 {
		t.Fatalf("resolve failed: %d, %v", id, err)
	}

	// A second resolution is served from the cache.
	if id, err = cluster.Resolve("fast"); err != nil || id != 9 {
		t.Fatalf("cached resolve failed: %d, %v", id, err)
	}

	if _, err = cluster.Resolve("missing"); !errdefs.IsNotFound(err) {
		t.Fatalf("unknown pool should not resolve, found %v", err)
	}
}

func TestInMemoryCluster_InjectedFaultsAreOneShot(t *testing.T) {
	defer goleak.VerifyNone(t)

	cluster := definition.NewInMemoryCluster("rbd", 1)
	defer cluster.Close()

	injected := fmt.Errorf("boom: %w", errdefs.ErrUnavailable)
	cluster.Inject(definition.OpSetID, injected)

	err := wait(t, func(done types.Completion) {
		cluster.SetID("rbd_id.a", "I1", done)
	})
	if !errors.Is(err, injected) {
		t.Fatalf("armed fault should fire, found %v", err)
	}

	// The fault was consumed, the retry succeeds.
	if err = wait(t, func(done types.Completion) {
		cluster.SetID("rbd_id.a", "I1", done)
	}); err != nil {
		t.Fatalf("retry should succeed, found %v", err)
	}
}

func TestInMemoryCluster_MirrorRegistryLifecycle(t *testing.T) {
	defer goleak.VerifyNone(t)

	cluster := definition.NewInMemoryCluster("rbd", 1)
	defer cluster.Close()

	// Unprovisioned pools have no mirror registry at all.
	modeErr := make(chan error, 1)
	cluster.MirrorModeGet(func(mode types.MirrorMode, err error) {
		modeErr <- err
	})
	if err := <-modeErr; !errdefs.IsNotFound(err) {
		t.Fatalf("unprovisioned registry should be missing, found %v", err)
	}

	cluster.SetMirrorMode(types.MirrorModePool)
	modes := make(chan types.MirrorMode, 1)
	cluster.MirrorModeGet(func(mode types.MirrorMode, err error) {
		if err != nil {
			t.Errorf("mirror mode get failed: %v", err)
		}
		modes <- mode
	})
	if mode := <-modes; mode != types.MirrorModePool {
		t.Fatalf("mirror mode should be pool, found %d", mode)
	}

	if err := wait(t, func(done types.Completion) {
		cluster.MirrorImageSet("I1", types.MirrorImage{
			GlobalImageID: "G1",
			State:         types.MirrorImageEnabled,
		}, done)
	}); err != nil {
		t.Fatalf("mirror image set failed: %v", err)
	}

	image, ok := cluster.MirrorImage("I1")
	if !ok || image.GlobalImageID != "G1" || image.State != types.MirrorImageEnabled {
		t.Fatalf("unexpected mirror image %+v (%v)", image, ok)
	}
}
