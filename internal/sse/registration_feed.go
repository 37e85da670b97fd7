package sse

import (
	"context"
	"sync"

	"ms-registration/internal/models"
)

const clientBuffer = 10

// RegistrationFeed fans lifecycle events out to live dashboard connections, keyed by event id.
type RegistrationFeed struct {
	mu      sync.RWMutex
	clients map[string][]chan models.RegistrationEventDto
}

func NewRegistrationFeed() *RegistrationFeed {
	return &RegistrationFeed{
		clients: make(map[string][]chan models.RegistrationEventDto),
	}
}

// Subscribe registers a client for one event. The channel is closed once ctx is done.
func (f *RegistrationFeed) Subscribe(ctx context.Context, eventID string) <-chan models.RegistrationEventDto {
	clientChan := make(chan models.RegistrationEventDto, clientBuffer)

	f.mu.Lock()
	f.clients[eventID] = append(f.clients[eventID], clientChan)
	f.mu.Unlock()

	go func() {
		<-ctx.Done()
		f.unsubscribe(eventID, clientChan)
	}()

	return clientChan
}

// Emit never blocks; slow clients miss events.
func (f *RegistrationFeed) Emit(evt models.RegistrationEventDto) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	for _, clientChan := range f.clients[evt.EventID] {
		select {
		case clientChan <- evt:
		default:
		}
	}
}

func (f *RegistrationFeed) unsubscribe(eventID string, clientChan chan models.RegistrationEventDto) {
	f.mu.Lock()
	defer f.mu.Unlock()

	clients := f.clients[eventID]
	for i, ch := range clients {
		if ch == clientChan {
			f.clients[eventID] = append(clients[:i], clients[i+1:]...)
			close(clientChan)
			break
		}
	}

	if len(f.clients[eventID]) == 0 {
		delete(f.clients, eventID)
	}
}

// ClientCount returns the number of live connections for an event.
func (f *RegistrationFeed) ClientCount(eventID string) int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.clients[eventID])
}
