// Package ids generates time-ordered document ids.
//
// Ids are UUIDv7 strings. The leading 48 bits hold the creation time in
// milliseconds and the next 12 bits a per-process sequence, so within one
// process ids are strictly increasing and their string order is creation order.
package ids

import (
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

type Generator interface {
	NewID() string
}

const maxSeq = 0x0fff

// MonotonicGenerator never hands out an id that sorts before a previous one,
// even when the clock stands still or moves backward.
type MonotonicGenerator struct {
	mu     sync.Mutex
	clock  Clock
	lastMS int64
	seq    uint16
}

func NewGenerator(clock Clock) *MonotonicGenerator {
	if clock == nil {
		clock = SystemClock{}
	}
	return &MonotonicGenerator{clock: clock}
}

func (g *MonotonicGenerator) NewID() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	ms := g.clock.Now().UnixMilli()
	if ms <= g.lastMS {
		ms = g.lastMS
		g.seq++
		if g.seq > maxSeq {
			ms++
			g.seq = 0
		}
	} else {
		g.seq = 0
	}
	g.lastMS = ms
	return build(ms, g.seq).String()
}

// At returns an id whose timestamp is t; seq orders ids sharing a millisecond.
func At(t time.Time, seq uint16) string {
	return build(t.UnixMilli(), seq&maxSeq).String()
}

func build(ms int64, seq uint16) uuid.UUID {
	var u uuid.UUID
	if _, err := rand.Read(u[8:]); err != nil {
		panic(fmt.Sprintf("ids: read random bytes: %v", err))
	}
	u[0] = byte(ms >> 40)
	u[1] = byte(ms >> 32)
	u[2] = byte(ms >> 24)
	u[3] = byte(ms >> 16)
	u[4] = byte(ms >> 8)
	u[5] = byte(ms)
	u[6] = 0x70 | byte(seq>>8)&0x0f
	u[7] = byte(seq)
	u[8] = 0x80 | u[8]&0x3f
	return u
}

// TimeOf decodes the creation time encoded in id.
func TimeOf(id string) (time.Time, error) {
	u, err := uuid.Parse(id)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse id %q: %w", id, err)
	}
	if u.Version() != 7 {
		return time.Time{}, fmt.Errorf("id %q is not time-ordered (version %d)", id, u.Version())
	}
	ms := int64(u[0])<<40 | int64(u[1])<<32 | int64(u[2])<<24 |
		int64(u[3])<<16 | int64(u[4])<<8 | int64(u[5])
	return time.UnixMilli(ms).UTC(), nil
}

// NewSetID allocates the identifier of a new set element.
func NewSetID() string {
	return uuid.NewString()
}
