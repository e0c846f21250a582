package app

import (
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/oggyb/muzz-events/internal/cache"
	"github.com/oggyb/muzz-events/internal/matching"
)

// AppContext holds shared dependencies (DB, Redis, Logger, clock, RNG)
type AppContext struct {
	DB         *gorm.DB
	RedisCache *cache.RedisCache
	Logger     *slog.Logger

	// Now is the clock every time-dependent rule reads. Always UTC.
	Now func() time.Time
	// Rand drives the matchmaker's shuffles and left-out picks.
	Rand matching.Random
}

// New creates a new AppContext with the wall clock and a process-wide RNG.
func New(db *gorm.DB, rdb *cache.RedisCache, logger *slog.Logger) *AppContext {
	return &AppContext{
		DB:         db,
		RedisCache: rdb,
		Logger:     logger,
		Now:        func() time.Time { return time.Now().UTC() },
		Rand:       NewRand(rand.Uint64(), rand.Uint64()),
	}
}

// NewRand returns a concurrency-safe matching.Random seeded with seed1 and seed2.
func NewRand(seed1, seed2 uint64) matching.Random {
	return &lockedRand{r: rand.New(rand.NewPCG(seed1, seed2))}
}

// lockedRand makes a *rand.Rand safe for concurrent requests.
type lockedRand struct {
	mu sync.Mutex
	r  *rand.Rand
}

func (l *lockedRand) IntN(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.IntN(n)
}

func (l *lockedRand) Shuffle(n int, swap func(i, j int)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.r.Shuffle(n, swap)
}
