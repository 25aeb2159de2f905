package pipeline

import (
	"io"
	log "log/slog"
	"sync"
)

// relay forwards reply chunks to a writer from its own goroutine. push never
// blocks on the writer, so a slow terminal cannot stall the engine's read
// loop.
type relay struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []string
	closed bool

	w    io.Writer
	done chan struct{}
}

func newRelay(w io.Writer) *relay {
	r := &relay{w: w, done: make(chan struct{})}
	r.cond = sync.NewCond(&r.mu)
	go r.loop()
	return r
}

func (r *relay) push(chunk string) {
	r.mu.Lock()
	if !r.closed {
		r.queue = append(r.queue, chunk)
		r.cond.Signal()
	}
	r.mu.Unlock()
}

// close flushes everything pushed so far and waits for the writer.
func (r *relay) close() {
	r.mu.Lock()
	r.closed = true
	r.cond.Broadcast()
	r.mu.Unlock()
	<-r.done
}

func (r *relay) loop() {
	defer close(r.done)

	failed := false
	for {
		r.mu.Lock()
		for len(r.queue) == 0 && !r.closed {
			r.cond.Wait()
		}
		batch := r.queue
		r.queue = nil
		closed := r.closed
		r.mu.Unlock()

		for _, c := range batch {
			if failed {
				break
			}
			if _, err := io.WriteString(r.w, c); err != nil {
				log.Warn("Failed to display reply chunk", "err", err)
				failed = true
			}
		}

		if closed && len(batch) == 0 {
			return
		}
	}
}
