package idgen

import (
	"fmt"
	"strconv"
	"sync"
	"time"
)

// Snowflake layout: 41 bits of milliseconds since the configured epoch,
// 10 bits of machine ID, 12 bits of per-millisecond sequence. The result
// fits in a positive int64 and is strictly increasing per generator.
const (
	timestampBits = 41
	machineBits   = 10
	sequenceBits  = 12

	// MaxMachineID is the largest machine ID a generator accepts.
	MaxMachineID = (1 << machineBits) - 1

	maxSequence    = (1 << sequenceBits) - 1
	machineShift   = sequenceBits
	timestampShift = sequenceBits + machineBits
)

// DefaultEpoch is used when no epoch is configured.
var DefaultEpoch = time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)

// SnowflakeConfig configures a Snowflake generator.
type SnowflakeConfig struct {
	// MachineID distinguishes concurrent generators, 0..1023.
	MachineID int64

	// Epoch is the zero point of the timestamp bits. Must lie in the
	// past; defaults to DefaultEpoch.
	Epoch time.Time
}

// Snowflake generates 64-bit time-ordered IDs. A generator is constructed
// once at startup from configuration and injected where IDs are needed;
// it is safe for concurrent use.
type Snowflake struct {
	mu       sync.Mutex
	machine  int64
	epochMs  int64
	lastMs   int64
	sequence int64
	now      func() time.Time
}

// NewSnowflake validates the configuration and builds a generator.
func NewSnowflake(cfg SnowflakeConfig) (*Snowflake, error) {
	if cfg.MachineID < 0 || cfg.MachineID > MaxMachineID {
		return nil, fmt.Errorf("machine id %d out of range 0..%d", cfg.MachineID, MaxMachineID)
	}
	epoch := cfg.Epoch
	if epoch.IsZero() {
		epoch = DefaultEpoch
	}
	if epoch.After(time.Now()) {
		return nil, fmt.Errorf("epoch %s lies in the future", epoch.Format(time.RFC3339))
	}
	return &Snowflake{
		machine: cfg.MachineID,
		epochMs: epoch.UnixMilli(),
		now:     time.Now,
	}, nil
}

// Next returns the next ID. IDs from a single generator are strictly
// increasing; IDs from generators with distinct machine IDs never collide.
func (s *Snowflake) Next() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	ms := s.millis()
	if ms < s.lastMs {
		// Wall clock went backwards; hold the last position so the
		// sequence keeps increasing.
		ms = s.lastMs
	}
	if ms == s.lastMs {
		s.sequence = (s.sequence + 1) & maxSequence
		if s.sequence == 0 {
			for ms <= s.lastMs {
				ms = s.millis()
			}
		}
	} else {
		s.sequence = 0
	}
	s.lastMs = ms

	return ms<<timestampShift | s.machine<<machineShift | s.sequence
}

// NextString returns the next ID in its decimal string form, the encoding
// used everywhere IDs cross a serialization boundary.
func (s *Snowflake) NextString() string {
	return strconv.FormatInt(s.Next(), 10)
}

func (s *Snowflake) millis() int64 {
	return s.now().UnixMilli() - s.epochMs
}

// DecomposeSnowflake splits an ID into its timestamp (milliseconds since
// epoch), machine ID and sequence parts.
func DecomposeSnowflake(id int64) (timestampMs, machineID, sequence int64) {
	return id >> timestampShift, (id >> machineShift) & MaxMachineID, id & maxSequence
}
