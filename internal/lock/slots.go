// Package lock bounds concurrent downloads across processes with a fixed
// set of flock-held slot files in a shared directory.
package lock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"github.com/buckos/pkgbuild/internal/log"
)

const (
	// DefaultSlots is the number of concurrent downloads when unset.
	DefaultSlots = 4
	// MaxSlots is the upper bound accepted from configuration.
	MaxSlots = 64

	slotPrefix = "download-slot-"
	slotSuffix = ".lock"
)

// Backoff bounds for the wait loop.
var (
	initialBackoff = 50 * time.Millisecond
	maxBackoff     = time.Second
)

// ErrSlotsBusy is returned by TryAcquire when every slot is held.
var ErrSlotsBusy = errors.New("all download slots are busy")

// Metadata is written into a held slot file for debugging and cleanup.
type Metadata struct {
	Slot       int       `json:"slot"`
	PID        int       `json:"pid"`
	Purpose    string    `json:"purpose"`
	AcquiredAt time.Time `json:"acquired_at"`
}

// SlotManager hands out download slots.
type SlotManager struct {
	dir    string
	slots  int
	logger log.Logger
}

// Option configures a SlotManager.
type Option func(*SlotManager)

// WithLogger sets the logger.
func WithLogger(logger log.Logger) Option {
	return func(m *SlotManager) { m.logger = logger }
}

// NewSlotManager creates a SlotManager over dir with n slots. n outside
// 1..MaxSlots is clamped. The directory is created if it doesn't exist.
func NewSlotManager(dir string, n int, opts ...Option) (*SlotManager, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}
	m := &SlotManager{dir: dir, slots: ClampSlots(n), logger: log.NewNoop()}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// ClampSlots maps n into 1..MaxSlots, with zero meaning DefaultSlots.
func ClampSlots(n int) int {
	switch {
	case n == 0:
		return DefaultSlots
	case n < 1:
		return 1
	case n > MaxSlots:
		return MaxSlots
	}
	return n
}

// Slots returns the slot count.
func (m *SlotManager) Slots() int { return m.slots }

// Dir returns the lock directory.
func (m *SlotManager) Dir() string { return m.dir }

// Slot is a held download slot.
type Slot struct {
	file  *os.File
	index int
}

// Index returns the slot number.
func (s *Slot) Index() int { return s.index }

// TryAcquire makes one non-blocking attempt on every slot.
func (m *SlotManager) TryAcquire(purpose string) (*Slot, error) {
	for i := 0; i < m.slots; i++ {
		slot, err := m.tryLock(i, purpose)
		if errors.Is(err, unix.EWOULDBLOCK) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return slot, nil
	}
	return nil, ErrSlotsBusy
}

// Acquire takes the first free slot, waiting with backoff until one frees
// or ctx is done.
func (m *SlotManager) Acquire(ctx context.Context, purpose string) (*Slot, error) {
	backoff := initialBackoff
	waiting := false
	for {
		slot, err := m.TryAcquire(purpose)
		if err == nil {
			if waiting {
				m.logger.Debug("download slot acquired after wait", "slot", slot.index, "purpose", purpose)
			}
			return slot, nil
		}
		if !errors.Is(err, ErrSlotsBusy) {
			return nil, err
		}
		if !waiting {
			m.logger.Info("waiting for a download slot", "slots", m.slots, "purpose", purpose)
			waiting = true
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

func (m *SlotManager) tryLock(i int, purpose string) (*Slot, error) {
	file, err := os.OpenFile(m.slotPath(i), os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file: %w", err)
	}
	if err := unix.Flock(int(file.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		_ = file.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to acquire lock: %w", err)
	}

	slot := &Slot{file: file, index: i}
	meta := Metadata{Slot: i, PID: os.Getpid(), Purpose: purpose, AcquiredAt: time.Now()}
	if err := writeMetadata(file, meta); err != nil {
		_ = slot.Release()
		return nil, fmt.Errorf("failed to write lock metadata: %w", err)
	}
	return slot, nil
}

func writeMetadata(file *os.File, meta Metadata) error {
	if err := file.Truncate(0); err != nil {
		return err
	}
	if _, err := file.Seek(0, 0); err != nil {
		return err
	}
	return json.NewEncoder(file).Encode(meta)
}

// Release clears the slot's metadata and unlocks it. The slot file stays
// so other processes keep contending on the same inode.
func (s *Slot) Release() error {
	if s == nil || s.file == nil {
		return nil
	}
	truncErr := s.file.Truncate(0)
	err := unix.Flock(int(s.file.Fd()), unix.LOCK_UN)
	closeErr := s.file.Close()
	s.file = nil

	if err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	if closeErr != nil {
		return fmt.Errorf("failed to close lock file: %w", closeErr)
	}
	if truncErr != nil {
		return fmt.Errorf("failed to clear lock metadata: %w", truncErr)
	}
	return nil
}

// ListLocks returns metadata for every slot file that records a holder.
func (m *SlotManager) ListLocks() ([]Metadata, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read lock directory: %w", err)
	}

	var locks []Metadata
	for _, entry := range entries {
		if entry.IsDir() || !isSlotFile(entry.Name()) {
			continue
		}
		meta, err := readMetadata(filepath.Join(m.dir, entry.Name()))
		if err != nil {
			// Released or unreadable
			continue
		}
		locks = append(locks, meta)
	}
	return locks, nil
}

// TryCleanupStale clears the metadata of slot files whose recorded holder
// process no longer exists and which nobody currently holds. Slot files are
// never removed: a process that already opened one must keep contending on
// the same inode as everyone else. It returns the slot numbers cleaned up.
func (m *SlotManager) TryCleanupStale() ([]int, error) {
	locks, err := m.ListLocks()
	if err != nil {
		return nil, err
	}

	var cleaned []int
	for _, meta := range locks {
		if isProcessRunning(meta.PID) {
			continue
		}
		ok, err := m.clearStale(meta)
		if err != nil {
			return cleaned, err
		}
		if ok {
			cleaned = append(cleaned, meta.Slot)
			m.logger.Info("cleared stale download slot", "slot", meta.Slot, "pid", meta.PID)
		}
	}
	return cleaned, nil
}

// clearStale truncates a slot file under its flock, provided it still
// names the dead holder.
func (m *SlotManager) clearStale(stale Metadata) (bool, error) {
	file, err := os.OpenFile(m.slotPath(stale.Slot), os.O_RDWR, 0o644)
	if err != nil {
		return false, nil
	}
	defer func() { _ = file.Close() }()
	if err := unix.Flock(int(file.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		return false, nil
	}
	defer func() { _ = unix.Flock(int(file.Fd()), unix.LOCK_UN) }()

	var current Metadata
	if err := json.NewDecoder(file).Decode(&current); err != nil || current.PID != stale.PID {
		// Released or taken over since it was listed.
		return false, nil
	}
	if err := file.Truncate(0); err != nil {
		return false, fmt.Errorf("failed to clear slot %d: %w", stale.Slot, err)
	}
	return true, nil
}

func (m *SlotManager) slotPath(i int) string {
	return filepath.Join(m.dir, slotPrefix+strconv.Itoa(i)+slotSuffix)
}

func isSlotFile(name string) bool {
	n, ok := strings.CutPrefix(name, slotPrefix)
	if !ok {
		return false
	}
	n, ok = strings.CutSuffix(n, slotSuffix)
	if !ok {
		return false
	}
	_, err := strconv.Atoi(n)
	return err == nil
}

func readMetadata(path string) (Metadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Metadata{}, err
	}
	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return Metadata{}, err
	}
	return meta, nil
}

// isProcessRunning checks if a process with the given PID is still running.
func isProcessRunning(pid int) bool {
	if pid <= 0 {
		return false
	}
	// Signal 0 checks existence without sending a real signal
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}
