package signal

import (
	"bytes"
	"encoding/json"

	"streamfy/internal/core/domain"
)

// Relay forwards an offer, answer or ice-candidate to the target
// connection. A missing target is not an error for the sender; the
// message is dropped and counted.
func (h *Hub) Relay(from *Client, kind string, target domain.ConnectionID, payload json.RawMessage) error {
	data, err := encodeSignal(kind, from.ID, payload)
	if err != nil {
		return err
	}

	return h.call(func() {
		t, ok := h.clients[target]
		if !ok || t.dropped {
			h.metrics.IncSignalDropped(kind)
			h.logger.Debugw("Signal target not connected", "type", kind, "from", from.ID, "target", target)
			return
		}
		h.deliver(t, data)
		h.metrics.IncSignalRelayed(kind)
	})
}

// encodeSignal writes the envelope by hand so the payload bytes reach the
// peer exactly as they were sent.
func encodeSignal(kind string, from domain.ConnectionID, payload json.RawMessage) ([]byte, error) {
	head, err := json.Marshal(struct {
		Type string              `json:"type"`
		From domain.ConnectionID `json:"from"`
	}{kind, from})
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(payload)) == 0 {
		payload = json.RawMessage("null")
	}

	var buf bytes.Buffer
	buf.Grow(len(head) + len(payload) + 12)
	buf.Write(head[:len(head)-1])
	buf.WriteString(`,"payload":`)
	buf.Write(payload)
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
