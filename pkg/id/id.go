// Package id generates ULID identifiers for sessions and client order IDs.
//
// ULIDs sort lexicographically by generation time, so session and order
// records land in the journal already time-ordered.
package id

import (
	cryptorand "crypto/rand"
	"encoding/binary"
	"io"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	mu   sync.Mutex
	mono io.Reader
)

func init() {
	var seed int64
	_ = binary.Read(cryptorand.Reader, binary.LittleEndian, &seed)
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	// Monotonic entropy keeps IDs minted within the same millisecond ordered.
	mono = ulid.Monotonic(rand.New(rand.NewSource(seed)), 0)
}

// New returns a ULID string stamped with the current wall time.
func New() string {
	return NewAt(time.Now().UTC())
}

// NewAt returns a ULID string stamped with t. Simulated sessions pass the
// logical clock's time so replayed records keep their historical order.
func NewAt(t time.Time) string {
	mu.Lock()
	defer mu.Unlock()

	id, err := ulid.New(ulid.Timestamp(t), mono)
	if err != nil {
		// Only possible if t overflows the ULID epoch or entropy fails.
		panic(err)
	}
	return id.String()
}
