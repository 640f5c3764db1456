package region

import (
	"bytes"
	"fmt"
	"os"

	atomicfile "github.com/natefinch/atomic"
	"golang.org/x/sys/unix"
)

// mappedFile owns one file's mmap'd bytes. It is the thin "OS glue" layer
// that internal/region builds the composite cache abstraction on top of:
// create or open a fixed-size file, golang.org/x/sys/unix mmap.
type mappedFile struct {
	file *os.File
	data []byte
	size uint64
}

// createMappedFile creates a brand-new file of the given size and maps it.
// The header page is written into a temp file and published via
// github.com/natefinch/atomic's rename-based atomic write, so a concurrent
// attacher never observes a half-initialized header (SPEC_FULL.md notes this
// closes a real gap relative to the C original).
func createMappedFile(path string, size uint64, header []byte) (*mappedFile, error) {
	if uint64(len(header)) > size {
		return nil, fmt.Errorf("region: header (%d bytes) larger than requested file size (%d)", len(header), size)
	}
	buf := make([]byte, size)
	copy(buf, header)
	if err := atomicfile.WriteFile(path, bytes.NewReader(buf)); err != nil {
		return nil, fmt.Errorf("region: atomic create %s: %w", path, err)
	}
	return openMappedFile(path)
}

// openMappedFile opens and maps an existing file read-write.
func openMappedFile(path string) (*mappedFile, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("region: open %s: %w", path, err)
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("region: stat %s: %w", path, err)
	}
	size := uint64(st.Size())
	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("region: mmap %s: %w", path, err)
	}
	return &mappedFile{file: f, data: data, size: size}, nil
}

// grow extends the backing file and remaps it. Nothing in the package
// calls it: a layer keeps the size it was created with. The metadata
// area's bump pointer would have to be adjusted by the caller since it is
// offset-from-start, not offset-from-end.
func (m *mappedFile) grow(newSize uint64) error {
	if newSize <= m.size {
		return nil
	}
	if err := m.file.Truncate(int64(newSize)); err != nil {
		return fmt.Errorf("region: truncate to %d: %w", newSize, err)
	}
	if err := unix.Munmap(m.data); err != nil {
		return fmt.Errorf("region: munmap before regrow: %w", err)
	}
	data, err := unix.Mmap(int(m.file.Fd()), 0, int(newSize), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return fmt.Errorf("region: remap to %d: %w", newSize, err)
	}
	m.data = data
	m.size = newSize
	return nil
}

// flush asks the OS to write dirty pages back (msync), used before a layer
// is sealed so a reader opening the file from a cold page cache sees a
// consistent image.
func (m *mappedFile) flush() error {
	return unix.Msync(m.data, unix.MS_SYNC)
}

func (m *mappedFile) close() error {
	var errs []error
	if err := unix.Munmap(m.data); err != nil {
		errs = append(errs, err)
	}
	if err := m.file.Close(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) != 0 {
		return fmt.Errorf("region: close: %v", errs)
	}
	return nil
}

// lockExclusive/lockShared/unlock implement the cross-process write mutex
// and read-write lock, via an advisory whole-file flock. This is the one
// place the code reaches directly for OS syscalls instead of a
// higher-level lock library: the required semantics — nestable within
// one process but exclusive across processes — is something a generic
// file-lock package would not obviously improve on (see DESIGN.md).
func (m *mappedFile) lockExclusive() error {
	return unix.Flock(int(m.file.Fd()), unix.LOCK_EX)
}

func (m *mappedFile) lockShared() error {
	return unix.Flock(int(m.file.Fd()), unix.LOCK_SH)
}

func (m *mappedFile) unlock() error {
	return unix.Flock(int(m.file.Fd()), unix.LOCK_UN)
}
