// Package workers runs accepted-connection handlers on a bounded set of
// goroutines.
package workers

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/danmuck/connprov/internal/connprov"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"
)

const DefaultSize = 64

// Pool bounds concurrent work with a weighted semaphore. Dispatch never
// blocks: when every slot is taken the work is rejected.
type Pool struct {
	size     int64
	sem      *semaphore.Weighted
	wg       sync.WaitGroup
	closed   atomic.Bool
	inFlight atomic.Int64
	rejected atomic.Uint64
}

func NewPool(size int) *Pool {
	if size <= 0 {
		size = DefaultSize
	}
	return &Pool{
		size: int64(size),
		sem:  semaphore.NewWeighted(int64(size)),
	}
}

// Dispatch runs work on a new goroutine if a slot is free.
func (p *Pool) Dispatch(work func()) error {
	if p.closed.Load() {
		return fmt.Errorf("%w: pool closed", connprov.ErrDispatchRejected)
	}
	if !p.sem.TryAcquire(1) {
		p.rejected.Add(1)
		return fmt.Errorf("%w: %d workers busy", connprov.ErrDispatchRejected, p.size)
	}
	p.wg.Add(1)
	p.inFlight.Add(1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Msg("workers.Dispatch recovered panic")
			}
			p.inFlight.Add(-1)
			p.sem.Release(1)
			p.wg.Done()
		}()
		work()
	}()
	return nil
}

// Close stops accepting work. Work already running is not interrupted.
func (p *Pool) Close() {
	p.closed.Store(true)
}

// Wait blocks until running work finishes or ctx is done.
func (p *Pool) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats is a point-in-time view for status endpoints.
type Stats struct {
	Size     int    `json:"size"`
	InFlight int64  `json:"in_flight"`
	Rejected uint64 `json:"rejected"`
}

func (p *Pool) Stats() Stats {
	return Stats{
		Size:     int(p.size),
		InFlight: p.inFlight.Load(),
		Rejected: p.rejected.Load(),
	}
}

var _ connprov.Dispatcher = (*Pool)(nil)
