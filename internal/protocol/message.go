// Package protocol implements the colon-delimited text messages exchanged
// between the marketplace and its sellers.
//
//	RESERVE:<orderId>:<product>:<quantity>        -> CONFIRMED:<orderId> | REJECTED:<orderId>
//	RESERVE:<orderId>;<product>:<qty>;...          -> RESERVED:<orderId> | INSUFFICIENT_INVENTORY:<orderId>
//	COMMIT:<orderId>[:<product>:<quantity>]        -> COMMITTED:<orderId>
//	CANCEL:<orderId>[...] (alias ROLLBACK)         -> ROLLED_BACK:<orderId>
//	HEALTH_CHECK | PING                            -> HEALTHY
//	STATUS                                         -> STATUS:<product>=<available>/<total>,...
//
// Anything else is answered with UNKNOWN_COMMAND or ERROR:<reason>.
package protocol

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"marketplace/internal/models"
)

const (
	fieldSep = ":"
	itemSep  = ";"
)

var (
	ErrMalformed   = errors.New("malformed message")
	ErrUnknownVerb = errors.New("unknown command")
)

// Verb is the first field of a request
type Verb string

// Request verbs
const (
	VerbReserve     Verb = "RESERVE"
	VerbCommit      Verb = "COMMIT"
	VerbCancel      Verb = "CANCEL"
	VerbRollback    Verb = "ROLLBACK"
	VerbHealthCheck Verb = "HEALTH_CHECK"
	VerbPing        Verb = "PING"
	VerbStatus      Verb = "STATUS"
)

// Request is a parsed seller request
type Request struct {
	Verb    Verb
	OrderID string
	Items   []models.LineItem
	// Batched selects the ';' separated RESERVE form and its RESERVED/INSUFFICIENT_INVENTORY replies
	Batched bool
}

// NewReserve builds a RESERVE request, batched unless it carries exactly one item
func NewReserve(orderID string, items []models.LineItem) Request {
	return Request{Verb: VerbReserve, OrderID: orderID, Items: items, Batched: len(items) != 1}
}

// NewCommit builds a token based COMMIT request
func NewCommit(orderID string) Request {
	return Request{Verb: VerbCommit, OrderID: orderID}
}

// NewCancel builds a token based CANCEL request
func NewCancel(orderID string) Request {
	return Request{Verb: VerbCancel, OrderID: orderID}
}

// String encodes the request in wire form
func (r Request) String() string {
	switch r.Verb {
	case VerbHealthCheck, VerbPing, VerbStatus:
		return string(r.Verb)
	}

	var b strings.Builder
	b.WriteString(string(r.Verb))
	b.WriteString(fieldSep)
	b.WriteString(r.OrderID)

	if r.Batched {
		for _, item := range r.Items {
			b.WriteString(itemSep)
			b.WriteString(item.Product)
			b.WriteString(fieldSep)
			b.WriteString(strconv.Itoa(item.Quantity))
		}
		return b.String()
	}

	if len(r.Items) > 0 {
		b.WriteString(fieldSep)
		b.WriteString(r.Items[0].Product)
		b.WriteString(fieldSep)
		b.WriteString(strconv.Itoa(r.Items[0].Quantity))
	}
	return b.String()
}

// ParseRequest decodes a raw request. ROLLBACK is normalised to CANCEL.
func ParseRequest(raw string) (Request, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Request{}, fmt.Errorf("%w: empty request", ErrMalformed)
	}

	verb, payload, hasPayload := strings.Cut(raw, fieldSep)
	switch Verb(verb) {
	case VerbHealthCheck, VerbPing, VerbStatus:
		return Request{Verb: Verb(verb)}, nil
	case VerbReserve, VerbCommit, VerbCancel, VerbRollback:
	default:
		return Request{}, fmt.Errorf("%w: %q", ErrUnknownVerb, verb)
	}

	if !hasPayload || payload == "" {
		return Request{}, fmt.Errorf("%w: %s without order id", ErrMalformed, verb)
	}

	req := Request{Verb: Verb(verb)}
	if req.Verb == VerbRollback {
		req.Verb = VerbCancel
	}

	if req.Verb == VerbReserve {
		return parseReserve(req, payload)
	}

	// COMMIT and CANCEL are token based; trailing product fields are accepted and ignored.
	orderID := payload
	if i := strings.IndexAny(payload, fieldSep+itemSep); i >= 0 {
		orderID = payload[:i]
	}
	if orderID == "" {
		return Request{}, fmt.Errorf("%w: empty order id", ErrMalformed)
	}
	req.OrderID = orderID
	return req, nil
}

func parseReserve(req Request, payload string) (Request, error) {
	if strings.Contains(payload, itemSep) {
		segments := strings.Split(payload, itemSep)
		req.OrderID = segments[0]
		req.Batched = true
		if req.OrderID == "" || strings.Contains(req.OrderID, fieldSep) {
			return Request{}, fmt.Errorf("%w: bad order id %q", ErrMalformed, req.OrderID)
		}
		for _, segment := range segments[1:] {
			product, qty, ok := strings.Cut(segment, fieldSep)
			if !ok {
				return Request{}, fmt.Errorf("%w: bad item %q", ErrMalformed, segment)
			}
			item, err := parseItem(product, qty)
			if err != nil {
				return Request{}, err
			}
			req.Items = append(req.Items, item)
		}
		if len(req.Items) == 0 {
			return Request{}, fmt.Errorf("%w: reserve without items", ErrMalformed)
		}
		return req, nil
	}

	fields := strings.Split(payload, fieldSep)
	if len(fields) != 3 || fields[0] == "" {
		return Request{}, fmt.Errorf("%w: expected RESERVE:<orderId>:<product>:<quantity>", ErrMalformed)
	}
	item, err := parseItem(fields[1], fields[2])
	if err != nil {
		return Request{}, err
	}
	req.OrderID = fields[0]
	req.Items = []models.LineItem{item}
	return req, nil
}

func parseItem(product, quantity string) (models.LineItem, error) {
	if product == "" {
		return models.LineItem{}, fmt.Errorf("%w: empty product", ErrMalformed)
	}
	qty, err := strconv.Atoi(quantity)
	if err != nil || qty <= 0 {
		return models.LineItem{}, fmt.Errorf("%w: bad quantity %q for %s", ErrMalformed, quantity, product)
	}
	return models.LineItem{Product: product, Quantity: qty}, nil
}

// ValidProductName reports whether a product name can travel in a message
func ValidProductName(name string) bool {
	return name != "" && !strings.ContainsAny(name, fieldSep+itemSep+"\n\r")
}
