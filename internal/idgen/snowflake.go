package idgen

import (
	"context"
	"sync"
	"time"
)

// Snowflake epoch: January 1, 2024 00:00:00 UTC
const snowflakeEpoch int64 = 1704067200000 // milliseconds

// Bit allocation for Snowflake IDs:
// - 41 bits for timestamp (milliseconds since epoch)
// - 10 bits for node ID (0-1023)
// - 12 bits for sequence number (0-4095 per millisecond)
const (
	nodeBits     = 10
	sequenceBits = 12

	maxNodeID   = (1 << nodeBits) - 1     // 1023
	maxSequence = (1 << sequenceBits) - 1 // 4095

	nodeShift      = sequenceBits
	timestampShift = nodeBits + sequenceBits
)

// SnowflakeSequence is a Sequence of time-ordered IDs that are unique across
// up to 1024 nodes without coordination. Encoded IDs are 10-11 symbols long.
type SnowflakeSequence struct {
	mu       sync.Mutex
	nodeID   int64
	sequence int64
	lastTime int64
	lastID   uint64
	now      func() int64
}

// NewSnowflakeSequence creates a SnowflakeSequence for the given node ID.
// nodeID must be between 0 and 1023 (inclusive).
func NewSnowflakeSequence(nodeID int64) (*SnowflakeSequence, error) {
	if nodeID < 0 || nodeID > maxNodeID {
		return nil, ErrInvalidNodeID
	}
	return &SnowflakeSequence{
		nodeID: nodeID,
		now:    func() int64 { return time.Now().UnixMilli() },
	}, nil
}

// Next returns the next ID. Thread-safe and increasing within the same node.
func (g *SnowflakeSequence) Next(ctx context.Context) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()

	if now == g.lastTime {
		g.sequence = (g.sequence + 1) & maxSequence
		if g.sequence == 0 {
			// Sequence overflow, wait for next millisecond
			for now <= g.lastTime {
				now = g.now()
			}
		}
	} else if now < g.lastTime {
		return 0, ErrClockMovedBackwards
	} else {
		g.sequence = 0
	}

	g.lastTime = now

	id := ((now - snowflakeEpoch) << timestampShift) |
		(g.nodeID << nodeShift) |
		g.sequence

	// #nosec G115 -- id is always positive for timestamps after the epoch
	g.lastID = uint64(id)
	return g.lastID, nil
}

// Current returns the last ID handed out.
func (g *SnowflakeSequence) Current() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lastID
}

// NodeID returns the configured node ID.
func (g *SnowflakeSequence) NodeID() int64 {
	return g.nodeID
}
