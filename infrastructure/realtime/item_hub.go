package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"

	"growth-automation/domain/model"
	"growth-automation/domain/repository"
)

// Hub maintains per-tenant subscribers listening for item and connection events.
type Hub struct {
	mu      sync.RWMutex
	tenants map[string]map[chan model.DomainEvent]struct{}
}

func NewHub() *Hub {
	return &Hub{tenants: make(map[string]map[chan model.DomainEvent]struct{})}
}

// Serve registers an SSE stream for the authenticated tenant (tenant_id set by middleware).
func (h *Hub) Serve(c *gin.Context) {
	tenantID := c.GetString("tenant_id")
	if tenantID == "" {
		c.Status(http.StatusUnauthorized)
		return
	}
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no") // disable nginx buffering

	ch := h.Subscribe(tenantID)
	defer h.Unsubscribe(tenantID, ch)

	// Initial comment to keep connection open
	_, _ = c.Writer.Write([]byte(":ok\n\n"))
	c.Writer.Flush()

	for {
		select {
		case <-c.Request.Context().Done():
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			data, _ := json.Marshal(evt)
			_, _ = c.Writer.Write([]byte("event: " + evt.Type + "\n"))
			_, _ = c.Writer.Write([]byte("data: "))
			_, _ = c.Writer.Write(data)
			_, _ = c.Writer.Write([]byte("\n\n"))
			c.Writer.Flush()
		}
	}
}

func (h *Hub) Subscribe(tenantID string) chan model.DomainEvent {
	ch := make(chan model.DomainEvent, 8)
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.tenants[tenantID] == nil {
		h.tenants[tenantID] = make(map[chan model.DomainEvent]struct{})
	}
	h.tenants[tenantID][ch] = struct{}{}
	return ch
}

func (h *Hub) Unsubscribe(tenantID string, ch chan model.DomainEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if subs := h.tenants[tenantID]; subs != nil {
		if _, ok := subs[ch]; !ok {
			return
		}
		delete(subs, ch)
		close(ch)
		if len(subs) == 0 {
			delete(h.tenants, tenantID)
		}
	}
}

// Publish broadcasts to every subscriber of the event's tenant. Slow subscribers miss events.
func (h *Hub) Publish(_ context.Context, evt model.DomainEvent) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.tenants[evt.TenantID] {
		select { // non-blocking
		case ch <- evt:
		default:
		}
	}
	return nil
}

func (h *Hub) Subscribers(tenantID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.tenants[tenantID])
}

var _ repository.IEventPublisher = (*Hub)(nil)
