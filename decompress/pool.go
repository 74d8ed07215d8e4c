package decompress

import (
	roaring "github.com/RoaringBitmap/roaring/v2"
	"github.com/cockroachdb/errors"

	"github.com/rohan-flutterint/timescaledb-core/vectorized"
)

// batchPool hands out batch states. Slots are created lazily and their
// arenas are reset, not freed, when a slot is released.
type batchPool struct {
	sc     *scanContext
	slots  []*batchState
	free   *roaring.Bitmap
	memory int // arena bytes per slot
}

func newBatchPool(sc *scanContext, capacity, memory int) *batchPool {
	p := &batchPool{
		sc:     sc,
		slots:  make([]*batchState, capacity),
		free:   roaring.New(),
		memory: memory,
	}
	p.free.AddRange(0, uint64(capacity))
	return p
}

// acquire returns the lowest free slot, doubling the pool when every slot
// is taken.
func (p *batchPool) acquire() *batchState {
	if p.free.IsEmpty() {
		old := len(p.slots)
		grown := old * 2
		if grown == 0 {
			grown = 1
		}
		p.slots = append(p.slots, make([]*batchState, grown-old)...)
		p.free.AddRange(uint64(old), uint64(grown))
	}
	idx := p.free.Minimum()
	p.free.Remove(idx)

	s := p.slots[idx]
	if s == nil {
		s = newBatchState(p.sc, int(idx), vectorized.NewArena(p.memory))
		p.slots[idx] = s
	}
	s.inUse = true
	p.sc.metrics.SlotsInUse.Inc()
	return s
}

// release recycles a slot.
func (p *batchPool) release(s *batchState) {
	if !s.inUse {
		panic(errors.AssertionFailedf("batch slot %d released twice", s.slot))
	}
	s.reset()
	s.inUse = false
	p.free.Add(uint32(s.slot))
	p.sc.metrics.SlotsInUse.Dec()
}

// releaseAll recycles every slot still in use.
func (p *batchPool) releaseAll() {
	for _, s := range p.slots {
		if s != nil && s.inUse {
			p.release(s)
		}
	}
}

// close frees every arena. The pool is unusable afterwards.
func (p *batchPool) close() {
	p.releaseAll()
	for _, s := range p.slots {
		if s != nil {
			s.arena.Release()
		}
	}
	p.slots = nil
	p.free.Clear()
}

func (p *batchPool) capacity() int {
	return len(p.slots)
}

func (p *batchPool) inUse() int {
	return len(p.slots) - int(p.free.GetCardinality())
}
