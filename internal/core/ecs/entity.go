package ecs

import "strconv"

// EntityID is a stable body handle. The lower 32 bits index a slot, the upper
// 32 bits carry the slot's generation. Generation starts at 1 so the zero ID
// never names a live entity, and it increments on destroy so stale handles
// stop resolving instead of aliasing the slot's next occupant.
type EntityID uint64

func NewEntityID(index uint32, generation uint32) EntityID {
	return EntityID(uint64(generation)<<32 | uint64(index))
}

func (id EntityID) Index() uint32      { return uint32(id) }
func (id EntityID) Generation() uint32 { return uint32(id >> 32) }
func (id EntityID) IsZero() bool       { return id == 0 }

func (id EntityID) String() string { return strconv.FormatUint(uint64(id), 10) }

// EntityPool allocates handles from a slot arena with a free list.
// Not safe for concurrent use; owned by the simulation goroutine.
type EntityPool struct {
	generations []uint32
	freeList    []uint32
	live        int
}

func NewEntityPool() *EntityPool {
	return &EntityPool{
		generations: make([]uint32, 0, 64),
		freeList:    make([]uint32, 0, 16),
	}
}

func (p *EntityPool) Create() EntityID {
	p.live++
	if n := len(p.freeList); n > 0 {
		idx := p.freeList[n-1]
		p.freeList = p.freeList[:n-1]
		return NewEntityID(idx, p.generations[idx])
	}
	idx := uint32(len(p.generations))
	p.generations = append(p.generations, 1)
	return NewEntityID(idx, 1)
}

func (p *EntityPool) Alive(id EntityID) bool {
	idx := id.Index()
	if int(idx) >= len(p.generations) {
		return false
	}
	return p.generations[idx] == id.Generation()
}

// Destroy invalidates id and recycles its slot. Stale or unknown handles
// are ignored and reported as false.
func (p *EntityPool) Destroy(id EntityID) bool {
	if !p.Alive(id) {
		return false
	}
	idx := id.Index()
	p.generations[idx]++
	p.freeList = append(p.freeList, idx)
	p.live--
	return true
}

// Len returns the number of live handles.
func (p *EntityPool) Len() int { return p.live }
