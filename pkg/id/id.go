package id

import (
	cryptoRand "crypto/rand"
	"encoding/binary"
	"io"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	mu   sync.Mutex
	mono io.Reader
)

func init() {
	// Monotonic entropy keeps ids minted in the same millisecond ordered.
	var seed int64
	_ = binary.Read(cryptoRand.Reader, binary.LittleEndian, &seed)
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	mono = ulid.Monotonic(rand.New(rand.NewSource(seed)), 0)
}

// New returns a ULID string whose timestamp component is t.
func New(t time.Time) string {
	mu.Lock()
	defer mu.Unlock()

	id, err := ulid.New(ulid.Timestamp(t.UTC()), mono)
	if err != nil {
		// Only possible when the monotonic entropy overflows within one millisecond.
		panic(err)
	}
	return id.String()
}

// ForPosition derives a position id from its symbol and open time,
// e.g. "BTCUSDT_01J9Z3...". Separators in the symbol are dropped.
func ForPosition(symbol string, openedAt time.Time) string {
	clean := strings.NewReplacer("/", "", "-", "", "_", "").Replace(strings.ToUpper(symbol))
	return clean + "_" + New(openedAt)
}

// Time extracts the timestamp embedded in an id produced by New or ForPosition.
func Time(s string) (time.Time, error) {
	if i := strings.LastIndexByte(s, '_'); i >= 0 {
		s = s[i+1:]
	}
	u, err := ulid.ParseStrict(s)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(u.Time()), nil
}
