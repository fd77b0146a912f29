package shm

import (
	"errors"
	"fmt"
	"image"
	"image/draw"
	"os"

	wl "deedles.dev/wlengine/client"
	"deedles.dev/wlengine/protocol"
	"deedles.dev/ximage/format"
	"golang.org/x/sys/unix"
)

// ImageBuffer is a wl_buffer backed by shared memory that can be drawn
// into as an image.
type ImageBuffer struct {
	w, h int32
	shm  *wl.Shm
	pool *wl.ShmPool
	buf  *wl.Buffer
	file *os.File
	mmap Mmap
}

// NewImageBuffer creates an ARGB8888 buffer of the given size.
func NewImageBuffer(shm *wl.Shm, w, h int32) (s *ImageBuffer, err error) {
	if (w <= 0) || (h <= 0) {
		return nil, fmt.Errorf("image buffer size %vx%v: %w", w, h, wl.ErrInvalidArgument)
	}

	s = &ImageBuffer{
		w:   w,
		h:   h,
		shm: shm,
	}
	defer func() {
		if err != nil {
			s.Destroy()
		}
	}()

	s.file, err = Create("wlengine-buffer", int64(s.Len()))
	if err != nil {
		return s, fmt.Errorf("create SHM file: %w", err)
	}

	s.mmap, err = Map(s.file, int(s.Len()), unix.PROT_READ|unix.PROT_WRITE)
	if err != nil {
		return s, fmt.Errorf("mmap SHM file: %w", err)
	}

	s.pool, err = shm.CreatePool(int(s.file.Fd()), s.Len())
	if err != nil {
		return s, fmt.Errorf("create pool: %w", err)
	}
	s.buf, err = s.pool.CreateBuffer(0, w, h, s.Stride(), protocol.FormatARGB8888)
	if err != nil {
		return s, fmt.Errorf("create buffer: %w", err)
	}

	return s, nil
}

// Destroy releases the buffer, its pool, and the shared memory behind
// them.
func (s *ImageBuffer) Destroy() error {
	var errs []error
	if s.buf != nil {
		errs = append(errs, s.buf.Destroy())
	}
	if s.pool != nil {
		errs = append(errs, s.pool.Destroy())
	}
	errs = append(errs, s.mmap.Unmap())
	s.mmap = nil
	if s.file != nil {
		errs = append(errs, s.file.Close())
	}
	return errors.Join(errs...)
}

func (s *ImageBuffer) Shm() *wl.Shm {
	return s.shm
}

func (s *ImageBuffer) ShmPool() *wl.ShmPool {
	return s.pool
}

func (s *ImageBuffer) Buffer() *wl.Buffer {
	return s.buf
}

func (s *ImageBuffer) Stride() int32 {
	return s.w * 4
}

func (s *ImageBuffer) Len() int32 {
	return s.Stride() * s.h
}

func (s *ImageBuffer) Bounds() image.Rectangle {
	return image.Rect(0, 0, int(s.w), int(s.h))
}

// Resize changes the size of the buffer, growing the pool if
// necessary. The previous wl_buffer is destroyed and the image's
// contents are undefined afterwards.
func (s *ImageBuffer) Resize(w, h int32) error {
	if (w == s.w) && (h == s.h) {
		return nil
	}
	if (w <= 0) || (h <= 0) {
		return fmt.Errorf("image buffer size %vx%v: %w", w, h, wl.ErrInvalidArgument)
	}

	s.w, s.h = w, h
	if s.Len() > int32(len(s.mmap)) {
		err := s.file.Truncate(int64(s.Len()))
		if err != nil {
			return fmt.Errorf("truncate: %w", err)
		}

		err = s.mmap.Unmap()
		if err != nil {
			return fmt.Errorf("unmap: %w", err)
		}
		s.mmap, err = Map(s.file, int(s.Len()), unix.PROT_READ|unix.PROT_WRITE)
		if err != nil {
			return fmt.Errorf("mmap: %w", err)
		}

		err = s.pool.Resize(s.Len())
		if err != nil {
			return fmt.Errorf("resize pool: %w", err)
		}
	}

	err := s.buf.Destroy()
	if err != nil {
		return fmt.Errorf("destroy old buffer: %w", err)
	}
	s.buf, err = s.pool.CreateBuffer(0, s.w, s.h, s.Stride(), protocol.FormatARGB8888)
	if err != nil {
		return fmt.Errorf("create buffer: %w", err)
	}

	return nil
}

// Image returns an image that draws directly into the shared memory.
func (s *ImageBuffer) Image() draw.Image {
	return &format.Image{
		Format: format.ARGB8888,
		Rect:   s.Bounds(),
		Pix:    s.mmap[:s.Len()],
	}
}
