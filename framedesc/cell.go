package framedesc

import (
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// Cell memoizes the inflation of one compressed descriptor buffer. The
// buffer is inflated on first use; concurrent first callers share one
// inflation, and the published result is returned to every later caller.
type Cell struct {
	key   string
	data  []byte
	value atomic.Pointer[Inflated]

	// inflight collapses concurrent first inflations of this cell only.
	inflight singleflight.Group

	inflations atomic.Int32
}

// NewCell creates a cell for the compressed descriptors of the aggregate
// with the given identity. The identity only labels errors; cells sharing
// one never share results. data must not be modified afterwards.
func NewCell(id uuid.UUID, data []byte) *Cell {
	return &Cell{key: id.String(), data: data}
}

// Bytes returns the compressed buffer.
func (c *Cell) Bytes() []byte {
	return c.data
}

// Get returns the inflated descriptors, inflating them if no result has been
// published yet.
func (c *Cell) Get() (*Inflated, error) {
	if in := c.value.Load(); in != nil {
		return in, nil
	}
	v, err, _ := c.inflight.Do("", func() (any, error) {
		if in := c.value.Load(); in != nil {
			return in, nil
		}
		c.inflations.Add(1)
		in, err := Inflate(c.data)
		if err != nil {
			return nil, err
		}
		if !c.value.CompareAndSwap(nil, in) {
			in = c.value.Load()
		}
		return in, nil
	})
	if err != nil {
		return nil, fmt.Errorf("inflate %s: %w", c.key, err)
	}
	return v.(*Inflated), nil
}

// Lookup returns the descriptor recorded for stop. It reports false when the
// stop has no descriptor.
func (c *Cell) Lookup(stop int) (Descriptor, bool, error) {
	in, err := c.Get()
	if err != nil {
		return Descriptor{}, false, err
	}
	if stop < 0 || stop >= in.Len() {
		return Descriptor{}, false, fmt.Errorf("%w: %d (have %d)", ErrIndexOutOfRange, stop, in.Len())
	}
	d, ok := in.At(stop)
	return d, ok, nil
}

// Inflated reports whether a result has been published.
func (c *Cell) Inflated() bool {
	return c.value.Load() != nil
}
