package store

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/ayusman/candlelight/internal/candle"
)

// DefaultWriterQueue is the number of transitions a HistoryWriter buffers.
const DefaultWriterQueue = 64

// HistoryWriter records the transitions of one session on a background
// goroutine, in order. Record never blocks; when the queue is full the
// transition is dropped and logged.
type HistoryWriter struct {
	repo    *HistoryRepository
	session string
	logger  zerolog.Logger
	queue   chan candle.Transition
	done    chan struct{}

	mu     sync.Mutex
	closed bool
}

// NewHistoryWriter starts a writer for session. queue <= 0 uses
// DefaultWriterQueue.
func NewHistoryWriter(repo *HistoryRepository, session string, queue int, logger zerolog.Logger) *HistoryWriter {
	if queue <= 0 {
		queue = DefaultWriterQueue
	}
	w := &HistoryWriter{
		repo:    repo,
		session: session,
		logger:  logger.With().Str("component", "history").Logger(),
		queue:   make(chan candle.Transition, queue),
		done:    make(chan struct{}),
	}
	go w.run()
	return w
}

// Record queues tr. It has the signature of a candle transition listener.
func (w *HistoryWriter) Record(tr candle.Transition) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}

	select {
	case w.queue <- tr:
	default:
		w.logger.Warn().Str("to", string(tr.To)).Msg("History queue full, transition dropped")
	}
}

func (w *HistoryWriter) run() {
	defer close(w.done)
	for tr := range w.queue {
		if err := w.repo.Record(w.session, tr); err != nil {
			w.logger.Warn().Err(err).Msg("Failed to record transition")
		}
	}
}

// Close stops accepting transitions and waits until the queued ones are
// written. Safe to call more than once.
func (w *HistoryWriter) Close() {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.queue)
	}
	w.mu.Unlock()

	<-w.done
}
