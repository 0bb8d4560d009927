package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/erp/rostersync/internal/domain/shared"
	"github.com/erp/rostersync/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Stream error codes
const (
	ErrCodeMaxConnections = "ERR_MAX_CONNECTIONS"
	ErrCodeStreamClosed   = "ERR_STREAM_CLOSED"
)

// sseMessageBufferSize bounds how many events may queue for a slow client
const sseMessageBufferSize = 100

// ComponentRegistry is the part of the event router a stream client joins
type ComponentRegistry interface {
	RegisterComponent(name string, instance any)
	Unregister(name string)
}

// SSEMessage represents a message to be sent to SSE clients
type SSEMessage struct {
	Event string `json:"event"`
	Data  string `json:"data"`
	ID    string `json:"id,omitempty"`
}

// SSEClient is one open stream. It is registered on the router as a
// component and forwards the events it receives without blocking dispatch.
type SSEClient struct {
	ID        string
	AccountID string
	Username  string
	Kinds     []shared.EntityKind
	Chan      chan SSEMessage

	dropped atomic.Int64
	logger  *zap.Logger
}

func (cl *SSEClient) wants(kind shared.EntityKind) bool {
	return len(cl.Kinds) == 0 || slices.Contains(cl.Kinds, kind)
}

func (cl *SSEClient) deliver(event shared.SyncEvent) error {
	if !cl.wants(event.Kind) {
		return nil
	}
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	cl.offer(SSEMessage{Event: string(event.Category), ID: event.ID.String(), Data: string(data)})
	return nil
}

func (cl *SSEClient) offer(msg SSEMessage) {
	select {
	case cl.Chan <- msg:
	default:
		// Channel full, client might be slow
		if cl.dropped.Add(1) == 1 {
			cl.logger.Warn("Client channel full, dropping messages", zap.String("client_id", cl.ID))
		}
	}
}

// OnEntityCreated forwards entity.created
func (cl *SSEClient) OnEntityCreated(_ context.Context, event shared.SyncEvent) error {
	return cl.deliver(event)
}

// OnEntityUpdated forwards entity.updated
func (cl *SSEClient) OnEntityUpdated(_ context.Context, event shared.SyncEvent) error {
	return cl.deliver(event)
}

// OnEntityDeleted forwards entity.deleted
func (cl *SSEClient) OnEntityDeleted(_ context.Context, event shared.SyncEvent) error {
	return cl.deliver(event)
}

// OnFullResync forwards full.resync
func (cl *SSEClient) OnFullResync(_ context.Context, event shared.SyncEvent) error {
	return cl.deliver(event)
}

// SyncStreamHandler streams router events to browsers over Server-Sent Events
type SyncStreamHandler struct {
	BaseHandler
	registry   ComponentRegistry
	logger     *zap.Logger
	clients    sync.Map // map[string]*SSEClient
	count      atomic.Int64
	ctx        context.Context
	cancel     context.CancelFunc
	heartbeat  time.Duration
	started    bool
	startMu    sync.Mutex
	maxClients int
}

// SyncStreamOption is a functional option for configuring the handler
type SyncStreamOption func(*SyncStreamHandler)

// WithStreamLogger sets the logger for the handler
func WithStreamLogger(logger *zap.Logger) SyncStreamOption {
	return func(h *SyncStreamHandler) {
		h.logger = logger
	}
}

// WithStreamHeartbeat sets the heartbeat interval
func WithStreamHeartbeat(interval time.Duration) SyncStreamOption {
	return func(h *SyncStreamHandler) {
		if interval > 0 {
			h.heartbeat = interval
		}
	}
}

// WithStreamMaxClients sets the maximum number of concurrent stream clients.
// Zero means unlimited.
func WithStreamMaxClients(max int) SyncStreamOption {
	return func(h *SyncStreamHandler) {
		h.maxClients = max
	}
}

// NewSyncStreamHandler creates a new SSE handler backed by registry
func NewSyncStreamHandler(registry ComponentRegistry, opts ...SyncStreamOption) *SyncStreamHandler {
	ctx, cancel := context.WithCancel(context.Background())
	h := &SyncStreamHandler{
		registry:   registry,
		logger:     zap.NewNop(),
		ctx:        ctx,
		cancel:     cancel,
		heartbeat:  30 * time.Second,
		maxClients: 1000,
	}

	for _, opt := range opts {
		opt(h)
	}

	return h
}

// Start begins sending heartbeats
func (h *SyncStreamHandler) Start() error {
	h.startMu.Lock()
	defer h.startMu.Unlock()

	if h.started {
		return fmt.Errorf("sync stream handler already started")
	}

	go h.sendHeartbeats()

	h.started = true
	h.logger.Info("Sync stream handler started", zap.Duration("heartbeat", h.heartbeat))
	return nil
}

// Stop disconnects every client
func (h *SyncStreamHandler) Stop() {
	h.cancel()
	h.logger.Info("Sync stream handler stopped", zap.Int("clients", h.GetClientCount()))
}

// broadcast sends a message to all connected clients
func (h *SyncStreamHandler) broadcast(msg SSEMessage) {
	h.clients.Range(func(_, value any) bool {
		if client, ok := value.(*SSEClient); ok {
			client.offer(msg)
		}
		return true
	})
}

// sendHeartbeats periodically sends heartbeat messages to keep connections alive
func (h *SyncStreamHandler) sendHeartbeats() {
	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-h.ctx.Done():
			return
		case <-ticker.C:
			h.broadcast(SSEMessage{
				Event: "heartbeat",
				Data:  fmt.Sprintf(`{"timestamp":%d}`, time.Now().Unix()),
			})
		}
	}
}

// StreamQuery binds the optional entity kind filter
type StreamQuery struct {
	Kinds []string `form:"kind" binding:"dive,oneof=employees accounts"`
}

// Stream godoc
//
//	@Summary		Subscribe to sync events via SSE
//	@Description	Streams every router event (entity.created, entity.updated, entity.deleted, full.resync) as it is dispatched
//	@Tags			sync
//	@Produce		text/event-stream
//	@Param			kind	query		[]string	false	"Entity kinds to receive"
//	@Success		200		{string}	string		"SSE stream"
//	@Failure		401		{object}	dto.Response{error=dto.ErrorInfo}
//	@Failure		503		{object}	dto.Response{error=dto.ErrorInfo}
//	@Security		BearerAuth
//	@Router			/sync/stream [get]
func (h *SyncStreamHandler) Stream(c *gin.Context) {
	var q StreamQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.BindError(c, err)
		return
	}

	if h.ctx.Err() != nil {
		h.Error(c, http.StatusServiceUnavailable, ErrCodeStreamClosed, "Event stream is shutting down")
		return
	}
	if n := h.count.Add(1); h.maxClients > 0 && n > int64(h.maxClients) {
		h.count.Add(-1)
		h.Error(c, http.StatusServiceUnavailable, ErrCodeMaxConnections, "Maximum number of stream connections reached")
		return
	}
	defer h.count.Add(-1)

	client := &SSEClient{
		ID:        uuid.NewString(),
		AccountID: middleware.GetJWTAccountID(c),
		Username:  middleware.GetJWTUsername(c),
		Chan:      make(chan SSEMessage, sseMessageBufferSize),
		logger:    h.logger,
	}
	for _, k := range q.Kinds {
		client.Kinds = append(client.Kinds, shared.EntityKind(k))
	}
	component := "sse:" + client.ID

	h.clients.Store(client.ID, client)
	h.registry.RegisterComponent(component, client)
	defer func() {
		h.registry.Unregister(component)
		h.clients.Delete(client.ID)
	}()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering
	c.Status(http.StatusOK)

	log := h.logger.With(zap.String("client_id", client.ID), zap.String("username", client.Username))
	log.Info("SSE client connected")

	h.sendEvent(c.Writer, SSEMessage{
		Event: "connected",
		Data:  fmt.Sprintf(`{"client_id":%q,"timestamp":%d}`, client.ID, time.Now().Unix()),
	})
	c.Writer.Flush()

	reqCtx := c.Request.Context()
	for {
		select {
		case <-reqCtx.Done():
			log.Info("SSE client disconnected", zap.Int64("dropped", client.dropped.Load()))
			return
		case <-h.ctx.Done():
			log.Info("SSE handler stopped, disconnecting client")
			return
		case msg := <-client.Chan:
			h.sendEvent(c.Writer, msg)
			c.Writer.Flush()
		}
	}
}

// sendEvent writes an SSE event to the response writer
func (h *SyncStreamHandler) sendEvent(w io.Writer, msg SSEMessage) {
	if msg.Event != "" {
		fmt.Fprintf(w, "event: %s\n", msg.Event)
	}
	if msg.ID != "" {
		fmt.Fprintf(w, "id: %s\n", msg.ID)
	}
	fmt.Fprintf(w, "data: %s\n\n", msg.Data)
}

// GetClientCount returns the number of connected SSE clients
func (h *SyncStreamHandler) GetClientCount() int {
	count := 0
	h.clients.Range(func(_, _ any) bool {
		count++
		return true
	})
	return count
}
