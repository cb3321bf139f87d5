package connprov

import (
	"errors"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	acceptBackoffMin = 5 * time.Millisecond
	acceptBackoffMax = time.Second
)

// AcceptLoop fans connections from every listener of a provider into a
// single handling goroutine. Each listener gets a pump goroutine that does
// nothing but Accept; the per-connection work happens once, in Handle.
type AcceptLoop struct {
	Listeners []net.Listener
	// Active is polled before each connection is handled. A connection that
	// arrives after Stop flipped the state is closed unhandled.
	Active func() bool
	// Handle owns conn: it must hand it off or close it.
	Handle func(conn net.Conn)
	// OnError observes accept failures that the loop survives.
	OnError func(err error)
	Logger  zerolog.Logger

	done chan struct{}
}

type acceptResult struct {
	conn net.Conn
	err  error
}

// Start launches the loop and returns once it is ready to accept.
func (l *AcceptLoop) Start() {
	l.done = make(chan struct{})
	ready := make(chan struct{})
	go l.run(ready)
	<-ready
}

// Stop closes every listener and waits up to wait for the loop to exit. It
// reports whether the loop exited in time.
func (l *AcceptLoop) Stop(wait time.Duration) bool {
	for _, ln := range l.Listeners {
		if err := ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			l.Logger.Warn().Err(err).Str("addr", ln.Addr().String()).Msg("acceptloop close listener")
		}
	}
	if l.done == nil {
		return true
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-l.done:
		return true
	case <-timer.C:
		l.Logger.Warn().Dur("wait", wait).Msg("Timed out waiting for run thread to wake up")
		return false
	}
}

// Done is closed when the loop has exited.
func (l *AcceptLoop) Done() <-chan struct{} {
	return l.done
}

func (l *AcceptLoop) run(ready chan<- struct{}) {
	defer close(l.done)

	results := make(chan acceptResult)
	var pumps sync.WaitGroup
	for _, ln := range l.Listeners {
		pumps.Add(1)
		go func(ln net.Listener) {
			defer pumps.Done()
			l.pump(ln, results)
		}(ln)
	}
	pumpsDone := make(chan struct{})
	go func() {
		pumps.Wait()
		close(pumpsDone)
	}()

	close(ready)

	for {
		select {
		case r := <-results:
			if !l.Active() {
				if r.conn != nil {
					_ = r.conn.Close()
				}
				continue
			}
			if r.err != nil {
				l.Logger.Error().Err(r.err).Msg("Error accepting on server socket")
				if l.OnError != nil {
					l.OnError(r.err)
				}
				continue
			}
			l.Handle(r.conn)
		case <-pumpsDone:
			return
		}
	}
}

// pump accepts until its listener is closed. Failures other than closure are
// forwarded to the handling loop with a growing delay so a persistent error
// such as EMFILE does not spin.
func (l *AcceptLoop) pump(ln net.Listener, out chan<- acceptResult) {
	var delay time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			if isInterrupted(err) {
				continue
			}
			out <- acceptResult{err: err}
			if delay == 0 {
				delay = acceptBackoffMin
			} else {
				delay = min(delay*2, acceptBackoffMax)
			}
			time.Sleep(delay)
			continue
		}
		delay = 0
		out <- acceptResult{conn: conn}
	}
}
