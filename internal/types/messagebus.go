package types

import (
	"context"
	"log"
	"sync"
)

type PostFn = func(msg Message)

type MessageHandler interface {
	Run(ctx context.Context, wg *sync.WaitGroup, post PostFn)
	Receive(message Message)
}

type MessageBus struct {
	bus       chan Message
	receivers []MessageHandler
}

func NewMessageBus(bus chan Message, receivers ...MessageHandler) *MessageBus {
	return &MessageBus{bus, receivers}
}

// Post queues a message for dispatch. Safe to call from any goroutine.
func (mb *MessageBus) Post(msg Message) {
	busLen := len(mb.bus)
	busCapacity := cap(mb.bus)
	if busLen > busCapacity/2 {
		log.Printf("WARNING: Bus capacity over 50%% [ %d / %d ]", busLen, busCapacity)
	}
	mb.bus <- msg
}

func (mb *MessageBus) Run(ctx context.Context, wg *sync.WaitGroup) {
	wg.Add(1)
	defer wg.Done()

	for _, x := range mb.receivers {
		go x.Run(ctx, wg, mb.Post)
	}

	for {
		select {
		case <-ctx.Done():
			mb.drain()
			return
		case msg := <-mb.bus:
			mb.dispatch(msg)
		}
	}
}

// drain delivers whatever is still queued so the final mission messages
// reach the log and the uplinks before shutdown.
func (mb *MessageBus) drain() {
	for {
		select {
		case msg := <-mb.bus:
			mb.dispatch(msg)
		default:
			return
		}
	}
}

func (mb *MessageBus) dispatch(msg Message) {
	for _, x := range mb.receivers {
		x.Receive(msg)
	}
}
