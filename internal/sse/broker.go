// Package sse streams import progress and vault changes to browsers as
// Server-Sent Events.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"
)

// Event types.
const (
	ImportStarted  = "import.started"
	ImportItem     = "import.item"
	ImportFailed   = "import.failed"
	ImportFinished = "import.finished"
	ImportProgress = "import.progress"
	VaultChanged   = "vault.changed"
)

const (
	defaultProgressInterval = 500 * time.Millisecond
	defaultReplay           = 128
	defaultHeartbeat        = 30 * time.Second
	clientBuffer            = 64
	reconnectDelay          = 3 * time.Second
)

// Event is a typed payload broadcast to every subscriber.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Progress is the payload of import.progress.
type Progress struct {
	RunID string `json:"run_id"`
	Done  int    `json:"done"`
	Total int    `json:"total"`
	Title string `json:"title,omitempty"`
}

// Option configures a Broker.
type Option func(*Broker)

// WithProgressInterval sets the minimum gap between two import.progress
// frames.
func WithProgressInterval(d time.Duration) Option {
	return func(b *Broker) {
		if d > 0 {
			b.progressMin = d
		}
	}
}

// WithReplay sets how many recent frames are kept for clients that reconnect
// with a Last-Event-ID header. Zero disables replay.
func WithReplay(n int) Option {
	return func(b *Broker) {
		if n >= 0 {
			b.replay = n
		}
	}
}

// WithHeartbeat sets the interval of the comment line written to idle
// streams so proxies keep them open.
func WithHeartbeat(d time.Duration) Option {
	return func(b *Broker) {
		if d > 0 {
			b.heartbeat = d
		}
	}
}

type frame struct {
	seq uint64
	raw []byte
}

type subscription struct {
	ch    chan []byte
	after uint64
}

// Broker fans events out to SSE clients.
//
// One goroutine owns the client set, the replay log and the progress
// throttle; the exported methods only talk to it over channels.
type Broker struct {
	progressMin time.Duration
	replay      int
	heartbeat   time.Duration

	subscribeCh   chan subscription
	unsubscribeCh chan chan []byte
	publishCh     chan Event
	progressCh    chan Progress
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker starts a broker.
func NewBroker(opts ...Option) *Broker {
	b := &Broker{
		progressMin:   defaultProgressInterval,
		replay:        defaultReplay,
		heartbeat:     defaultHeartbeat,
		subscribeCh:   make(chan subscription),
		unsubscribeCh: make(chan chan []byte),
		publishCh:     make(chan Event, 256),
		progressCh:    make(chan Progress, 256),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}

	go b.run()
	return b
}

func (b *Broker) run() {
	defer close(b.stopped)

	var (
		clients = make(map[chan []byte]struct{})
		log     []frame
		seq     uint64

		lastProgress time.Time
		pending      *Progress
		flushTimer   *time.Timer
		flushCh      <-chan time.Time
	)

	send := func(ch chan []byte, raw []byte) {
		select {
		case ch <- raw:
		default:
			// Slow client; the frame is dropped rather than stalling the loop.
		}
	}

	broadcast := func(event Event) {
		payload, err := json.Marshal(event.Data)
		if err != nil {
			return
		}
		seq++
		raw := fmt.Appendf(nil, "id: %d\nevent: %s\ndata: %s\n\n", seq, event.Type, payload)

		if b.replay > 0 {
			log = append(log, frame{seq: seq, raw: raw})
			if len(log) > b.replay {
				log = log[len(log)-b.replay:]
			}
		}
		for ch := range clients {
			send(ch, raw)
		}
	}

	emitProgress := func(p Progress) {
		lastProgress = time.Now()
		pending = nil
		broadcast(Event{Type: ImportProgress, Data: p})
	}

	for {
		select {
		case <-b.stopCh:
			if flushTimer != nil {
				flushTimer.Stop()
			}
			for ch := range clients {
				close(ch)
			}
			return

		case sub := <-b.subscribeCh:
			clients[sub.ch] = struct{}{}
			if sub.after > 0 {
				for _, f := range log {
					if f.seq > sub.after {
						send(sub.ch, f.raw)
					}
				}
			}

		case ch := <-b.unsubscribeCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case event := <-b.publishCh:
			broadcast(event)

		case p := <-b.progressCh:
			wait := b.progressMin - time.Since(lastProgress)
			if wait <= 0 {
				emitProgress(p)
				continue
			}
			pending = &p
			if flushTimer == nil {
				flushTimer = time.NewTimer(wait)
				flushCh = flushTimer.C
			} else {
				flushTimer.Reset(wait)
			}

		case <-flushCh:
			if pending != nil {
				emitProgress(*pending)
			}

		case resp := <-b.countReqCh:
			resp <- len(clients)
		}
	}
}

// Close stops the loop and closes every subscriber channel.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe registers a client that only sees new frames.
func (b *Broker) Subscribe() chan []byte {
	return b.SubscribeAfter(0)
}

// SubscribeAfter registers a client and first replays the retained frames
// with an id greater than lastID.
func (b *Broker) SubscribeAfter(lastID uint64) chan []byte {
	ch := make(chan []byte, clientBuffer)
	if b.closed.Load() {
		close(ch)
		return ch
	}

	select {
	case b.subscribeCh <- subscription{ch: ch, after: lastID}:
	case <-b.stopped:
		close(ch)
	}
	return ch
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	if b.closed.Load() {
		return
	}
	select {
	case b.unsubscribeCh <- ch:
	case <-b.stopped:
	}
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	if b.closed.Load() {
		return 0
	}

	resp := make(chan int, 1)
	select {
	case b.countReqCh <- resp:
	case <-b.stopped:
		return 0
	}

	select {
	case n := <-resp:
		return n
	case <-b.stopped:
		return 0
	}
}

// Publish broadcasts event to all connected clients.
func (b *Broker) Publish(event Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.publishCh <- event:
	case <-b.stopped:
	}
}

// PublishProgress queues an import.progress frame. Within one interval only
// the newest value is delivered.
func (b *Broker) PublishProgress(p Progress) {
	if b.closed.Load() {
		return
	}
	select {
	case b.progressCh <- p:
	case <-b.stopped:
	}
}

// PublishVaultEvent announces a change to an imported note seen by the vault
// watcher.
func (b *Broker) PublishVaultEvent(kind, path string) {
	b.Publish(Event{Type: VaultChanged, Data: map[string]string{"kind": kind, "path": path}})
}

// ServeHTTP streams events to one client (GET /api/events).
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	lastID, _ := strconv.ParseUint(r.Header.Get("Last-Event-ID"), 10, 64)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "retry: %d\n\n", reconnectDelay.Milliseconds())
	flusher.Flush()

	ch := b.SubscribeAfter(lastID)
	defer b.Unsubscribe(ch)

	ping := time.NewTicker(b.heartbeat)
	defer ping.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ping.C:
			_, _ = w.Write([]byte(": ping\n\n"))
			flusher.Flush()
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}
