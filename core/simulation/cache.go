package simulation

import (
	"encoding/binary"
	"math"
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/kilianp07/bessim/core/model"
	"github.com/kilianp07/bessim/core/strategy"
)

// Cache memoizes results by a content hash of the run inputs. It is safe
// for concurrent use. Cached results are copied on the way in and out.
//
// Entries are indexed by one 64-bit xxhash digest and carry a second,
// independently salted digest of the same material. A lookup only hits
// when both match, so a hit needs a 128-bit collision to be wrong.
type Cache struct {
	mu      sync.Mutex
	max     int
	entries map[uint64]cacheEntry
	hits    uint64
	misses  uint64
}

// NewCache returns a cache holding at most max results. max <= 0 means
// unbounded.
func NewCache(max int) *Cache {
	return &Cache{max: max, entries: make(map[uint64]cacheEntry)}
}

type cacheEntry struct {
	check uint64
	res   *model.Result
}

// runKey fingerprints the inputs of one run.
type runKey struct {
	index, check uint64
}

// Stats returns the hit and miss counters.
func (c *Cache) Stats() (hits, misses uint64) {
	if c == nil {
		return 0, 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

// Len returns the number of cached results.
func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache) get(key runKey) (*model.Result, bool) {
	if c == nil {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key.index]
	if !ok || e.check != key.check {
		c.misses++
		return nil, false
	}
	c.hits++
	return e.res.Clone(), true
}

func (c *Cache) put(key runKey, res *model.Result) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[key.index]; !ok && c.max > 0 && len(c.entries) >= c.max {
		for k := range c.entries {
			delete(c.entries, k)
			break
		}
	}
	c.entries[key.index] = cacheEntry{check: key.check, res: res.Clone()}
}

// checkSalt prefixes the material of the check digest.
const checkSalt = "bessim/cache/check"

// hasher feeds the same material into the index and check digests.
type hasher struct {
	index, check *xxhash.Digest
	buf          [8]byte
}

func newHasher() *hasher {
	h := &hasher{index: xxhash.New(), check: xxhash.New()}
	_, _ = h.check.WriteString(checkSalt)
	return h
}

func (h *hasher) write(b []byte) {
	_, _ = h.index.Write(b)
	_, _ = h.check.Write(b)
}

func (h *hasher) float(v float64) {
	binary.LittleEndian.PutUint64(h.buf[:], math.Float64bits(v))
	h.write(h.buf[:])
}

func (h *hasher) series(vs []float64) {
	// length prefix keeps nil and empty series distinct from neighbours
	h.float(float64(len(vs)))
	if vs == nil {
		h.float(-1)
	}
	for _, v := range vs {
		h.float(v)
	}
}

func (h *hasher) str(s string) {
	h.float(float64(len(s)))
	h.write([]byte(s))
}

func newRunKey(name string, p strategy.Params, startHour float64, b model.Battery, opts Options, in model.Inputs, requests []float64) runKey {
	cfg := b.Config
	h := newHasher()
	h.str(name)
	for _, v := range []float64{
		p.DayStartHour, p.DayEndHour, p.NightStartHour, p.NightEndHour,
		p.Alpha, float64(p.SubWindowSteps), p.DroopMWPerHz, p.MaxShare, p.LowPrice, p.HighPrice,
		cfg.PowerMW, cfg.DurationHours, cfg.ExportLimitMW,
		b.Technology.RoundTripEfficiency, b.Technology.SOCMin, b.Technology.SOCMax,
		b.Topology.ConversionPenalty,
		opts.SOC(), opts.DtHours, startHour,
	} {
		h.float(v)
	}
	h.str(cfg.Technology)
	h.str(cfg.Topology)
	h.series(in.Solar)
	h.series(in.Price)
	h.series(in.Frequency)
	h.series(requests)
	return runKey{index: h.index.Sum64(), check: h.check.Sum64()}
}
