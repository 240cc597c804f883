package xattr

import (
	"errors"
	"os"

	"xattrfs/internal/logging"
)

// Coordinator keeps sidecars in step with their targets as the mounted view
// creates, removes and renames files. It shares the store's per-path locks,
// so a cascade never interleaves with an attribute call on the same target.
type Coordinator struct {
	store   *Store
	backend Backend
	logger  *logging.Logger
}

// NewCoordinator returns a coordinator bound to store.
func NewCoordinator(store *Store) *Coordinator {
	return &Coordinator{
		store:   store,
		backend: store.backend,
		logger:  logging.GetLogger().WithPrefix("lifecycle"),
	}
}

// OnCreate is called after target was created through the mount. A fresh
// target has no attributes, so a sidecar left behind by a file that was
// removed outside the mount is discarded.
func (c *Coordinator) OnCreate(target string) error {
	target = CleanPath(target)
	unlock := c.store.locks.Lock(target)
	defer unlock()

	sidecar := SidecarPath(target)
	if !c.backend.Exists(sidecar) {
		return nil
	}
	c.logger.Warn("Discarding stale sidecar %q for new file %q", sidecar, target)
	return withContext(OpCreate, target, "", c.deleteSidecar(sidecar))
}

// OnRemove deletes target's sidecar. A target without one is not an error.
func (c *Coordinator) OnRemove(target string) error {
	target = CleanPath(target)
	unlock := c.store.locks.Lock(target)
	defer unlock()

	return withContext(OpUnlink, target, "", c.deleteSidecar(SidecarPath(target)))
}

// OnRename moves oldTarget's sidecar to follow newTarget.
func (c *Coordinator) OnRename(oldTarget, newTarget string) error {
	oldTarget, newTarget = CleanPath(oldTarget), CleanPath(newTarget)
	unlock := c.store.locks.LockPair(oldTarget, newTarget)
	defer unlock()

	return withContext(OpRename, oldTarget, "", c.renameSidecar(oldTarget, newTarget))
}

// RemoveTarget runs remove and, if it succeeds, deletes the sidecar, all
// while target is locked. A failed remove leaves the attributes intact.
func (c *Coordinator) RemoveTarget(target string, remove func() error) error {
	target = CleanPath(target)
	unlock := c.store.locks.Lock(target)
	defer unlock()

	if err := remove(); err != nil {
		return err
	}

	if err := c.deleteSidecar(SidecarPath(target)); err != nil {
		c.logger.Error("Removed %q but its sidecar could not be deleted: %v", target, err)
		return withContext(OpUnlink, target, "", err)
	}
	return nil
}

// RenameTarget runs rename(oldTarget, newTarget) and moves the sidecar with
// it while both paths are locked. If the sidecar cannot follow, the target
// rename is reverted so the pair never splits.
func (c *Coordinator) RenameTarget(oldTarget, newTarget string, rename func(from, to string) error) error {
	oldTarget, newTarget = CleanPath(oldTarget), CleanPath(newTarget)
	if oldTarget == newTarget {
		return rename(oldTarget, newTarget)
	}

	unlock := c.store.locks.LockPair(oldTarget, newTarget)
	defer unlock()

	if err := rename(oldTarget, newTarget); err != nil {
		return err
	}

	if err := c.renameSidecar(oldTarget, newTarget); err != nil {
		log := c.logger.WithField("from", oldTarget).WithField("to", newTarget)
		log.Error("Sidecar did not follow rename, reverting: %v", err)
		if rbErr := rename(newTarget, oldTarget); rbErr != nil {
			log.Error("Revert failed: %v", rbErr)
		}
		return withContext(OpRename, oldTarget, "", err)
	}
	return nil
}

// renameSidecar moves the old sidecar onto the new name. When the old
// target had no attributes, any sidecar already at the destination belonged
// to the file that was just replaced and is deleted.
func (c *Coordinator) renameSidecar(oldTarget, newTarget string) error {
	oldSidecar, newSidecar := SidecarPath(oldTarget), SidecarPath(newTarget)

	if c.backend.Exists(oldSidecar) {
		c.logger.Debug("Moving sidecar %q -> %q", oldSidecar, newSidecar)
		err := c.backend.RenameFile(oldSidecar, newSidecar)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
		return nil
	}

	return c.deleteSidecar(newSidecar)
}

func (c *Coordinator) deleteSidecar(sidecar string) error {
	err := c.backend.DeleteFile(sidecar)
	if err == nil {
		c.logger.Debug("Deleted sidecar %q", sidecar)
		return nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// FilterNames drops sidecar names from a directory listing.
func FilterNames(names []string) []string {
	return FilterListing(names, func(name string) string { return name })
}

// FilterListing drops entries whose name is a sidecar name. The input is
// not modified.
func FilterListing[T any](entries []T, nameOf func(T) string) []T {
	out := make([]T, 0, len(entries))
	for _, e := range entries {
		if IsSidecarName(nameOf(e)) {
			continue
		}
		out = append(out, e)
	}
	return out
}
