package websocket

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/estate360/positioner/pkg/core"
	"github.com/estate360/positioner/pkg/streaming"
)

// Config holds WebSocket backend configuration.
type Config struct {
	URL    string
	Secret string
}

// Backend streams placement changes over WebSocket to the listing platform.
// It implements storage.Backend but not storage.Uploadable. Listing is
// answered from what this process has sent.
type Backend struct {
	conn *connection
	cfg  Config

	mu         sync.RWMutex
	placements map[string]core.Placement
}

// New creates a new WebSocket storage backend.
func New(cfg Config, logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{
		conn:       newConnection(logger),
		cfg:        cfg,
		placements: make(map[string]core.Placement),
	}
}

// Init connects to the WebSocket server.
func (b *Backend) Init() error {
	return b.conn.dial(b.cfg.URL, b.cfg.Secret)
}

// Close tells the server the session ends and disconnects.
func (b *Backend) Close() error {
	b.conn.setReplay(nil)
	if b.conn.connected() {
		if data, err := streaming.Marshal(streaming.TypeClose, nil); err == nil {
			_ = b.conn.sendAndWait(data, streaming.TypeClose, ackTimeout)
		}
	}
	return b.conn.close()
}

func (b *Backend) sendEnvelope(msgType string, payload any) error {
	data, err := streaming.Marshal(msgType, payload)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", msgType, err)
	}
	b.conn.send(data)
	return nil
}

// SavePanorama announces the panorama and waits for the server ack. The
// message is replayed after a reconnect.
func (b *Backend) SavePanorama(p *core.PanoramaResource) error {
	data, err := streaming.Marshal(streaming.TypeOpenPanorama, streaming.OpenPanoramaPayload{Panorama: p})
	if err != nil {
		return fmt.Errorf("marshal %s: %w", streaming.TypeOpenPanorama, err)
	}

	b.conn.setReplay(data)
	return b.conn.sendAndWait(data, streaming.TypeOpenPanorama, ackTimeout)
}

// SavePlacement streams a placement (fire-and-forget).
func (b *Backend) SavePlacement(p *core.Placement) error {
	b.mu.Lock()
	b.placements[p.PropertyID] = *p
	b.mu.Unlock()
	return b.sendEnvelope(streaming.TypeSetPlacement, p)
}

// DeletePlacement streams a removal (fire-and-forget).
func (b *Backend) DeletePlacement(p *core.Placement) error {
	b.mu.Lock()
	delete(b.placements, p.PropertyID)
	b.mu.Unlock()
	return b.sendEnvelope(streaming.TypeDeletePlacement, streaming.DeletePlacementPayload{PropertyID: p.PropertyID})
}

// ListPlacements returns the placements sent for a panorama.
func (b *Backend) ListPlacements(panoramaID string) ([]core.Placement, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []core.Placement
	for _, p := range b.placements {
		if p.PanoramaID == panoramaID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PropertyID < out[j].PropertyID })
	return out, nil
}

// HTTPToWS rewrites an http(s) URL to its ws(s) equivalent.
func HTTPToWS(u string) string {
	switch {
	case strings.HasPrefix(u, "https://"):
		return "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		return "ws://" + strings.TrimPrefix(u, "http://")
	default:
		return u
	}
}
