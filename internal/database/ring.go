package database

import (
	"fmt"
	"hash/fnv"
	"sort"
)

// DefaultVirtualNodes is the number of ring points placed per shard.
const DefaultVirtualNodes = 150

// Ring maps keys onto a fixed number of shards by consistent hashing.
// A Ring is immutable after construction and safe for concurrent use.
type Ring struct {
	points      []uint32
	pointToNode map[uint32]int
	nodes       int
}

// NewRing builds a ring of nodes shards with virtualNodes points each.
func NewRing(nodes, virtualNodes int) *Ring {
	if nodes < 1 {
		nodes = 1
	}
	if virtualNodes < 1 {
		virtualNodes = DefaultVirtualNodes
	}

	r := &Ring{
		points:      make([]uint32, 0, nodes*virtualNodes),
		pointToNode: make(map[uint32]int, nodes*virtualNodes),
		nodes:       nodes,
	}
	for node := 0; node < nodes; node++ {
		for vn := 0; vn < virtualNodes; vn++ {
			h := hashKey(fmt.Sprintf("shard-%d-vn-%d", node, vn))
			if _, dup := r.pointToNode[h]; dup {
				continue
			}
			r.points = append(r.points, h)
			r.pointToNode[h] = node
		}
	}
	sort.Slice(r.points, func(i, j int) bool {
		return r.points[i] < r.points[j]
	})
	return r
}

// Nodes returns the number of shards on the ring.
func (r *Ring) Nodes() int {
	return r.nodes
}

// Locate returns the shard index owning key.
func (r *Ring) Locate(key string) int {
	if r.nodes == 1 {
		return 0
	}
	h := hashKey(key)
	idx := sort.Search(len(r.points), func(i int) bool {
		return r.points[i] >= h
	})
	// Wrap around past the last point.
	if idx >= len(r.points) {
		idx = 0
	}
	return r.pointToNode[r.points[idx]]
}

// Partition groups keys by owning shard. Shards owning no key are absent.
func (r *Ring) Partition(keys []string) map[int][]string {
	out := make(map[int][]string)
	for _, k := range keys {
		idx := r.Locate(k)
		out[idx] = append(out[idx], k)
	}
	return out
}

func hashKey(key string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return h.Sum32()
}
