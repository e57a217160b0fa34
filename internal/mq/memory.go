package mq

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"
)

// MemoryBackend delivers messages in process. Messages published before a
// subscriber attaches are buffered per channel.
//
// It is a test double for Backend: Open never selects it, and a full buffer
// rejects publishes, so it is unsuitable for a running server.
type MemoryBackend struct {
	mu     sync.Mutex
	queues map[string]chan Message
	seq    int
	closed bool
	size   int
}

func NewMemoryBackend(buffer int) *MemoryBackend {
	if buffer <= 0 {
		buffer = 64
	}
	return &MemoryBackend{queues: make(map[string]chan Message), size: buffer}
}

func (b *MemoryBackend) queue(channel string) (chan Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, errors.New("memory backend closed")
	}
	return b.queueLocked(channel), nil
}

func (b *MemoryBackend) queueLocked(channel string) chan Message {
	q, ok := b.queues[channel]
	if !ok {
		q = make(chan Message, b.size)
		b.queues[channel] = q
	}
	return q
}

// enqueue never blocks; a full queue is reported as an error.
func (b *MemoryBackend) enqueue(channel string, msg Message) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return errors.New("memory backend closed")
	}
	select {
	case b.queueLocked(channel) <- msg:
		return nil
	default:
		return errors.New("memory queue full")
	}
}

// Publish enqueues data on channel.
func (b *MemoryBackend) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	if strings.TrimSpace(channel) == "" {
		return "", errors.New("memory channel is required")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	b.mu.Lock()
	b.seq++
	id := strconv.Itoa(b.seq)
	b.mu.Unlock()

	msg := Message{ID: id, Data: append([]byte(nil), data...), Attributes: attrs, PublishedAt: time.Now().UTC()}
	if err := b.enqueue(channel, msg); err != nil {
		return "", err
	}
	return id, nil
}

// Subscribe drains channel until ctx is done. Messages whose handler fails
// are put back on the queue.
func (b *MemoryBackend) Subscribe(ctx context.Context, channel string, handler Handler) error {
	if strings.TrimSpace(channel) == "" {
		return errors.New("memory channel is required")
	}
	q, err := b.queue(channel)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-q:
			if !ok {
				return errors.New("memory channel closed")
			}
			if err := handler(ctx, msg); err != nil {
				_ = b.enqueue(channel, msg)
			}
		}
	}
}

// Close releases all queues.
func (b *MemoryBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for _, q := range b.queues {
		close(q)
	}
	return nil
}
