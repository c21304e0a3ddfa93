// broadcast/broadcast.go
package broadcast

import (
	"encoding/json"
	"errors"

	"github.com/wfunc/drawserver/logger"
	"github.com/wfunc/drawserver/network"
	"github.com/wfunc/drawserver/session"
)

// Broadcaster fans outbound events out to their recipients.
type Broadcaster interface {
	Deliver(outs []network.Outbound)
}

// Fanout delivers events to sessions by connection id. Each payload is
// encoded once no matter how many recipients it has.
type Fanout struct {
	sessions *session.Manager
}

func NewFanout(sessions *session.Manager) *Fanout {
	return &Fanout{sessions: sessions}
}

func (f *Fanout) Deliver(outs []network.Outbound) {
	for _, out := range outs {
		data, err := Encode(out.Payload)
		if err != nil {
			logger.Log.Errorf("Failed to encode msg %d: %v", out.MsgID, err)
			continue
		}
		if len(data) > network.MaxPayloadSize {
			logger.Log.Errorf("Dropped msg %d for %d recipients: payload of %d bytes does not fit a frame", out.MsgID, len(out.To), len(data))
			continue
		}
		for _, connID := range out.To {
			f.send(connID, out.MsgID, data)
		}
	}
}

func (f *Fanout) send(connID string, msgID uint16, data []byte) {
	s, ok := f.sessions.Get(connID)
	if !ok {
		return
	}
	err := s.Enqueue(msgID, data)
	switch {
	case err == nil:
	case errors.Is(err, session.ErrQueueFull):
		logger.Log.Warnf("Session %s send queue full, closing slow connection", connID)
		s.Close()
	case errors.Is(err, session.ErrSessionClosed):
	default:
		logger.Log.Errorf("Failed to queue msg %d for session %s: %v", msgID, connID, err)
	}
}

// Encode turns a payload into wire bytes. Raw payloads pass through untouched.
func Encode(payload interface{}) ([]byte, error) {
	switch p := payload.(type) {
	case nil:
		return nil, nil
	case network.Raw:
		return []byte(p), nil
	}
	return json.Marshal(payload)
}
