package streaming

import (
	"encoding/json"

	"github.com/estate360/positioner/pkg/core"
)

// Message type constants matching the streaming protocol.
const (
	TypeOpenPanorama    = "open_panorama"
	TypeSetPlacement    = "set_placement"
	TypeDeletePlacement = "delete_placement"
	TypeClose           = "close"
)

// Envelope wraps all messages sent over the WebSocket.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// AckMessage is the server's acknowledgement response.
type AckMessage struct {
	Type string `json:"type"` // always "ack"
	For  string `json:"for"`  // the message type being acknowledged
}

// OpenPanoramaPayload announces the panorama that following placements refer to.
type OpenPanoramaPayload struct {
	Panorama *core.PanoramaResource `json:"panorama"`
}

// DeletePlacementPayload identifies a removed marker.
type DeletePlacementPayload struct {
	PropertyID string `json:"propertyId"`
}

// Marshal builds a JSON-encoded Envelope from a message type and payload.
func Marshal(msgType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: msgType, Payload: raw})
}
