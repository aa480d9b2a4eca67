package grant

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"syscall"
)

// bytesPerPixel is the shared framebuffer's pixel format: BGRA/XRGB,
// 32 bits per pixel.
const bytesPerPixel = 4

// shmAllocator is a development/testing Allocator backed by a
// memfd-style anonymous file plus mmap. It is not the real Xen
// grant-table allocator, but gives every other component in this repo
// something concrete to run against.
type shmAllocator struct {
	dir string // XDG_RUNTIME_DIR-equivalent scratch directory
}

// NewSHMAllocator returns an Allocator that creates anonymous,
// unlinked tmpfiles under dir and mmaps them MAP_SHARED.
func NewSHMAllocator(dir string) Allocator {
	return &shmAllocator{dir: dir}
}

func (a *shmAllocator) Alloc(w, h uint32) (Buffer, error) {
	size := int64(w) * int64(h) * bytesPerPixel
	if size <= 0 {
		return nil, &ErrAllocFailed{Width: w, Height: h, Err: errors.New("non-positive area")}
	}
	file, err := createTmpfile(a.dir, size)
	if err != nil {
		return nil, &ErrAllocFailed{Width: w, Height: h, Err: err}
	}
	data, err := syscall.Mmap(int(file.Fd()), 0, int(size), syscall.PROT_READ|syscall.PROT_WRITE, syscall.MAP_SHARED)
	file.Close()
	if err != nil {
		return nil, &ErrAllocFailed{Width: w, Height: h, Err: err}
	}
	return &shmBuffer{data: data, width: w, height: h}, nil
}

// createTmpfile creates a temp file in dir, truncates it to size, then
// unlinks it so its backing space is reclaimed automatically once all
// mappings/fds go away.
func createTmpfile(dir string, size int64) (*os.File, error) {
	if dir == "" {
		dir = os.Getenv("XDG_RUNTIME_DIR")
	}
	if dir == "" {
		return nil, errors.New("grant: no scratch directory (XDG_RUNTIME_DIR unset)")
	}
	file, err := os.CreateTemp(dir, "qubes_shm_go_*")
	if err != nil {
		return nil, fmt.Errorf("grant: create tmpfile: %w", err)
	}
	if err := file.Truncate(size); err != nil {
		file.Close()
		return nil, fmt.Errorf("grant: truncate tmpfile: %w", err)
	}
	if err := os.Remove(file.Name()); err != nil {
		file.Close()
		return nil, fmt.Errorf("grant: unlink tmpfile: %w", err)
	}
	return file, nil
}

type shmBuffer struct {
	data          []byte
	width, height uint32
}

func (b *shmBuffer) Write(p []byte, offset int) {
	copy(b.data[offset:], p)
}

func (b *shmBuffer) Len() int { return len(b.data) }

// Header encodes a minimal MSG_WINDOW_DUMP payload: width, height,
// bpp, and a flags word of zero. The real protocol additionally
// carries Xen grant references, which this development allocator has
// none of (the mapping is already process-local).
func (b *shmBuffer) Header() []byte {
	hdr := make([]byte, 16)
	binary.LittleEndian.PutUint32(hdr[0:4], b.width)
	binary.LittleEndian.PutUint32(hdr[4:8], b.height)
	binary.LittleEndian.PutUint32(hdr[8:12], 32) // bpp
	binary.LittleEndian.PutUint32(hdr[12:16], 0) // flags
	return hdr
}

func (b *shmBuffer) Release() {
	if b.data != nil {
		syscall.Munmap(b.data)
		b.data = nil
	}
}
