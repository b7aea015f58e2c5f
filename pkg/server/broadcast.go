package server

import (
	"go.uber.org/zap"

	"github.com/aeolun/lobbyd/pkg/lobby"
	"github.com/aeolun/lobbyd/pkg/protocol"
)

// Delivery reports the outcome of a broadcast per player id
type Delivery struct {
	Delivered []string
	Failed    []string
}

// broadcast encodes msg once and queues it to every connected seat of l
// except exclude. A failing peer is marked disconnected and its session
// closed; the rest of the batch still goes out.
func (h *Hub) broadcast(l *lobby.Lobby, msg protocol.Message, exclude string) Delivery {
	var d Delivery
	frame, err := protocol.Encode(msg)
	if err != nil {
		h.log.Error("encode broadcast", zap.String("type", msg.Type().String()), zap.Error(err))
		return d
	}

	typ := msg.Type().String()
	for _, m := range l.Recipients(exclude) {
		if err := m.Peer.Send(frame); err != nil {
			d.Failed = append(d.Failed, m.ID)
			h.dropPeer(l, m, typ, err)
			continue
		}
		d.Delivered = append(d.Delivered, m.ID)
		h.metrics.RecordMessageSent(typ)
	}
	h.metrics.RecordBroadcastFanout(typ, len(d.Delivered))
	return d
}

// unicast queues msg to one session. Failures are logged and counted, never returned.
func (h *Hub) unicast(sess *Session, msg protocol.Message) bool {
	typ := msg.Type().String()
	frame, err := protocol.Encode(msg)
	if err != nil {
		h.log.Error("encode unicast", zap.String("type", typ), zap.Error(err))
		return false
	}
	if err := sess.Send(frame); err != nil {
		h.metrics.RecordDeliveryFailure(typ)
		h.log.Warn("send failed",
			zap.String("player_id", sess.PlayerID),
			zap.String("type", typ),
			zap.Error(err))
		sess.Close()
		return false
	}
	h.metrics.RecordMessageSent(typ)
	return true
}

// dropPeer handles a seat whose session could not take a frame. The seat
// stops receiving; the disconnect flow runs once the transport reports closed.
func (h *Hub) dropPeer(l *lobby.Lobby, m *lobby.Member, typ string, err error) {
	h.metrics.RecordDeliveryFailure(typ)
	h.log.Warn("broadcast delivery failed",
		zap.String("player_id", m.ID),
		zap.String("type", typ),
		zap.Error(err))
	l.MarkUnreachable(m.ID)
	if sess, ok := m.Peer.(*Session); ok {
		sess.Close()
	}
}
