// Package xattr stores extended attributes for files on filesystems that
// lack them. Each target file's attributes live in a sidecar file named
// "<target>.xattr" next to it; the sidecar exists only while the target
// has at least one attribute.
package xattr

import (
	"errors"
	"fmt"
	"os"

	"xattrfs/internal/logging"
)

// SetFlag selects create/replace semantics for Set.
type SetFlag int

const (
	// SetAny creates or replaces.
	SetAny SetFlag = iota
	// SetCreateOnly fails with EEXIST if the key exists.
	SetCreateOnly
	// SetReplaceOnly fails with ENODATA if the key is absent.
	SetReplaceOnly
)

func (f SetFlag) String() string {
	switch f {
	case SetAny:
		return "any"
	case SetCreateOnly:
		return "create"
	case SetReplaceOnly:
		return "replace"
	default:
		return fmt.Sprintf("SetFlag(%d)", int(f))
	}
}

// Options configures a Store.
type Options struct {
	Limits         Limits
	MaxSidecarSize int64
}

// DefaultOptions returns platform limits and the default sidecar ceiling.
func DefaultOptions() Options {
	return Options{
		Limits:         DefaultLimits(),
		MaxSidecarSize: DefaultMaxSidecarSize,
	}
}

// Store implements get/set/list/remove of attributes over sidecar files.
// Every call reads the sidecar afresh; calls on the same target are
// serialized, calls on different targets run independently.
type Store struct {
	backend    Backend
	limits     Limits
	maxSidecar int64
	locks      *lockArena
	logger     *logging.Logger
}

// NewStore creates a store over backend.
func NewStore(backend Backend, opts Options) *Store {
	if opts.MaxSidecarSize <= 0 {
		opts.MaxSidecarSize = DefaultMaxSidecarSize
	}
	return &Store{
		backend:    backend,
		limits:     opts.Limits,
		maxSidecar: opts.MaxSidecarSize,
		locks:      newLockArena(),
		logger:     logging.GetLogger().WithPrefix("xattr"),
	}
}

// Limits returns the key and value limits in force.
func (s *Store) Limits() Limits {
	return s.limits
}

// Set stores value under key for target, honoring flag.
func (s *Store) Set(target, key string, value []byte, flag SetFlag) error {
	target = CleanPath(target)
	s.logger.Debug("Setting %q on %q (%d bytes, flag=%v)", key, target, len(value), flag)

	if flag < SetAny || flag > SetReplaceOnly {
		return newError(OpSet, target, key, ErrInvalidFlag)
	}
	if err := Classify(key).Err(); err != nil {
		return newError(OpSet, target, key, err)
	}
	if err := s.limits.ValidateKey(key); err != nil {
		return withContext(OpSet, target, key, err)
	}
	if err := s.limits.ValidateValue(value); err != nil {
		return withContext(OpSet, target, key, err)
	}

	unlock := s.locks.Lock(target)
	defer unlock()

	attrs, err := s.load(target)
	if err != nil {
		return withContext(OpSet, target, key, err)
	}

	exists := attrs.Has(key)
	switch {
	case flag == SetCreateOnly && exists:
		s.logger.Debug("Key %q already exists on %q", key, target)
		return newError(OpSet, target, key, ErrExists)
	case flag == SetReplaceOnly && !exists:
		s.logger.Debug("Key %q not present on %q for replace", key, target)
		return newError(OpSet, target, key, ErrNoAttr)
	}

	attrs.Set(key, value)
	if err := s.persist(target, attrs); err != nil {
		return withContext(OpSet, target, key, err)
	}

	s.logger.Trace("Stored %q on %q (%d attributes)", key, target, attrs.Len())
	return nil
}

// Get returns the value stored under key for target.
func (s *Store) Get(target, key string) ([]byte, error) {
	target = CleanPath(target)
	s.logger.Debug("Getting %q on %q", key, target)

	if err := Classify(key).Err(); err != nil {
		return nil, newError(OpGet, target, key, err)
	}
	if err := s.limits.ValidateKey(key); err != nil {
		return nil, withContext(OpGet, target, key, err)
	}

	unlock := s.locks.Lock(target)
	defer unlock()

	attrs, err := s.load(target)
	if err != nil {
		return nil, withContext(OpGet, target, key, err)
	}

	value, ok := attrs.Get(key)
	if !ok {
		return nil, newError(OpGet, target, key, ErrNoAttr)
	}
	return value, nil
}

// List returns all keys of target. A target without attributes yields an
// empty, non-nil slice.
func (s *Store) List(target string) ([]string, error) {
	target = CleanPath(target)
	s.logger.Debug("Listing attributes of %q", target)

	unlock := s.locks.Lock(target)
	defer unlock()

	attrs, err := s.load(target)
	if err != nil {
		return nil, withContext(OpList, target, "", err)
	}
	return attrs.Keys(), nil
}

// Remove deletes key from target. Removing the last key deletes the
// sidecar file.
func (s *Store) Remove(target, key string) error {
	target = CleanPath(target)
	s.logger.Debug("Removing %q from %q", key, target)

	if err := Classify(key).Err(); err != nil {
		return newError(OpRemove, target, key, err)
	}
	if err := s.limits.ValidateKey(key); err != nil {
		return withContext(OpRemove, target, key, err)
	}

	unlock := s.locks.Lock(target)
	defer unlock()

	attrs, err := s.load(target)
	if err != nil {
		return withContext(OpRemove, target, key, err)
	}

	if !attrs.Delete(key) {
		return newError(OpRemove, target, key, ErrNoAttr)
	}
	if err := s.persist(target, attrs); err != nil {
		return withContext(OpRemove, target, key, err)
	}
	return nil
}

// load reads and decodes target's sidecar. A missing sidecar is the empty
// collection. Must be called with target locked.
func (s *Store) load(target string) (*Collection, error) {
	sidecar := SidecarPath(target)

	info, err := s.backend.Stat(sidecar)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return NewCollection(), nil
		}
		return nil, err
	}
	if info.Size() > s.maxSidecar {
		s.logger.WithField("sidecar", sidecar).Error("Sidecar is %d bytes, limit %d", info.Size(), s.maxSidecar)
		return nil, newError("", "", "", ErrSidecarTooLarge)
	}

	data, err := s.backend.ReadFile(sidecar)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return NewCollection(), nil
		}
		return nil, err
	}
	if int64(len(data)) > s.maxSidecar {
		return nil, newError("", "", "", ErrSidecarTooLarge)
	}

	attrs, err := Decode(data)
	if err != nil {
		s.logger.WithField("sidecar", sidecar).Error("Cannot decode sidecar: %v", err)
		return nil, &Error{Errno: Errno(ErrCorrupt), Err: err}
	}
	return attrs, nil
}

// persist writes attrs as target's sidecar, or deletes the sidecar when
// attrs is empty. Must be called with target locked.
func (s *Store) persist(target string, attrs *Collection) error {
	sidecar := SidecarPath(target)

	if attrs.Len() == 0 {
		s.logger.Debug("Last attribute removed, deleting sidecar %q", sidecar)
		if err := s.backend.DeleteFile(sidecar); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
		return nil
	}

	data, err := Encode(attrs)
	if err != nil {
		return &Error{Errno: Errno(ErrCorrupt), Err: err}
	}
	if int64(len(data)) > s.maxSidecar {
		s.logger.Warn("Sidecar for %q would grow to %d bytes, limit %d", target, len(data), s.maxSidecar)
		return newError("", "", "", ErrSidecarTooLarge)
	}

	info, err := s.backend.Stat(target)
	if err != nil {
		return err
	}
	perm := (info.Mode().Perm() | 0o600) &^ 0o111

	return s.backend.WriteFileAtomic(sidecar, data, perm)
}
