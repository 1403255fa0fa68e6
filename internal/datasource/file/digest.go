package file

import (
	"fmt"
	"io"

	"github.com/zeebo/xxh3"
)

// Digest hashes everything read through it.
type Digest struct {
	r io.Reader
	h *xxh3.Hasher
}

// NewDigest wraps r.
func NewDigest(r io.Reader) *Digest {
	h := xxh3.New()
	return &Digest{r: io.TeeReader(r, h), h: h}
}

func (d *Digest) Read(p []byte) (int, error) { return d.r.Read(p) }

// Sum returns the 64-bit xxh3 of the bytes read so far as 16 hex digits.
func (d *Digest) Sum() string { return fmt.Sprintf("%016x", d.h.Sum64()) }
