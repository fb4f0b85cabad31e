// Package feed supplies current prices to the scan cycle.
package feed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

var ErrNoPrice = errors.New("price not found")

// PriceSource returns the latest known price of a symbol such as "BTC/USDT".
type PriceSource interface {
	Price(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// Tick is one observed price.
type Tick struct {
	Symbol string
	Time   time.Time
	Price  decimal.Decimal
}

// Cache keeps the last tick per symbol. With MaxAge set, ticks older than
// MaxAge are reported as missing so a dead stream cannot keep marking
// positions at an old price.
type Cache struct {
	mu     sync.RWMutex
	ticks  map[string]Tick
	maxAge time.Duration
	now    func() time.Time
}

func NewCache() *Cache {
	return &Cache{ticks: make(map[string]Tick), now: time.Now}
}

// SetMaxAge bounds the age of served ticks; 0 disables the bound.
func (c *Cache) SetMaxAge(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.maxAge = d
}

func (c *Cache) Set(t Tick) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ticks[t.Symbol] = t
}

func (c *Cache) Get(symbol string) (Tick, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.ticks[symbol]
	if !ok {
		return Tick{}, fmt.Errorf("%s: %w", symbol, ErrNoPrice)
	}
	if c.maxAge > 0 {
		if age := c.now().Sub(t.Time); age > c.maxAge {
			return Tick{}, fmt.Errorf("%s: stale by %s: %w", symbol, age.Round(time.Second), ErrNoPrice)
		}
	}
	return t, nil
}

func (c *Cache) Price(_ context.Context, symbol string) (decimal.Decimal, error) {
	t, err := c.Get(symbol)
	if err != nil {
		return decimal.Zero, err
	}
	return t.Price, nil
}

// Static serves fixed prices; used for dry runs.
type Static map[string]decimal.Decimal

func (s Static) Price(_ context.Context, symbol string) (decimal.Decimal, error) {
	p, ok := s[symbol]
	if !ok {
		return decimal.Zero, fmt.Errorf("%s: %w", symbol, ErrNoPrice)
	}
	return p, nil
}
