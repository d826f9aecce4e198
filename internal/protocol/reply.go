package protocol

import (
	"fmt"
	"strings"
)

// ReplyKind is the first field of a seller reply
type ReplyKind string

// Reply kinds
const (
	ReplyConfirmed             ReplyKind = "CONFIRMED"
	ReplyRejected              ReplyKind = "REJECTED"
	ReplyReserved              ReplyKind = "RESERVED"
	ReplyInsufficientInventory ReplyKind = "INSUFFICIENT_INVENTORY"
	ReplyCommitted             ReplyKind = "COMMITTED"
	ReplyRolledBack            ReplyKind = "ROLLED_BACK"
	ReplyHealthy               ReplyKind = "HEALTHY"
	ReplyStatus                ReplyKind = "STATUS"
	ReplyUnknownCommand        ReplyKind = "UNKNOWN_COMMAND"
	ReplyError                 ReplyKind = "ERROR"
)

// Reply is a parsed seller reply
type Reply struct {
	Kind ReplyKind
	// OrderID is empty for bare replies such as RESERVED
	OrderID string
	// Payload carries the ERROR reason or the STATUS listing
	Payload string
}

// Confirmed replies to a reserve depending on its form
func Confirmed(req Request) Reply {
	if req.Batched {
		return Reply{Kind: ReplyReserved, OrderID: req.OrderID}
	}
	return Reply{Kind: ReplyConfirmed, OrderID: req.OrderID}
}

// Rejected replies to a reserve depending on its form
func Rejected(req Request) Reply {
	if req.Batched {
		return Reply{Kind: ReplyInsufficientInventory, OrderID: req.OrderID}
	}
	return Reply{Kind: ReplyRejected, OrderID: req.OrderID}
}

// Errorf builds an ERROR reply
func Errorf(format string, args ...interface{}) Reply {
	reason := fmt.Sprintf(format, args...)
	return Reply{Kind: ReplyError, Payload: strings.NewReplacer("\n", " ", "\r", " ").Replace(reason)}
}

// String encodes the reply in wire form
func (r Reply) String() string {
	switch r.Kind {
	case ReplyError, ReplyStatus:
		return string(r.Kind) + fieldSep + r.Payload
	case ReplyHealthy, ReplyUnknownCommand:
		return string(r.Kind)
	}
	if r.OrderID == "" {
		return string(r.Kind)
	}
	return string(r.Kind) + fieldSep + r.OrderID
}

// Affirmative reports whether the reply confirms a reservation
func (r Reply) Affirmative() bool {
	return r.Kind == ReplyConfirmed || r.Kind == ReplyReserved
}

// Matches reports whether the reply belongs to orderID. Bare replies match any order.
func (r Reply) Matches(orderID string) bool {
	return r.OrderID == "" || r.OrderID == orderID
}

// ParseReply decodes a raw reply
func ParseReply(raw string) (Reply, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Reply{}, fmt.Errorf("%w: empty reply", ErrMalformed)
	}

	kind, rest, _ := strings.Cut(raw, fieldSep)
	reply := Reply{Kind: ReplyKind(kind)}
	switch reply.Kind {
	case ReplyConfirmed, ReplyRejected, ReplyReserved, ReplyInsufficientInventory, ReplyCommitted, ReplyRolledBack:
		reply.OrderID = rest
	case ReplyError, ReplyStatus:
		reply.Payload = rest
	case ReplyHealthy, ReplyUnknownCommand:
	default:
		return Reply{}, fmt.Errorf("%w: unexpected reply %q", ErrMalformed, raw)
	}
	return reply, nil
}
