// Package net is the TCP order-entry transport: a small fixed-width binary
// protocol for NewOrder/CancelOrder/LogBook requests and ExecutionReport/
// ErrorReport responses, adapted from the teacher's internal/net/messages.go
// and internal/net/server.go. Like the REST/WebSocket transports named in
// spec.md §1, this is an external collaborator layered on top of the
// coordinator — none of the matching logic lives here.
package net

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	"fenrir/internal/common"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidMessageType = errors.New("invalid message type")
	ErrMessageTooShort    = errors.New("message too short for specified username length")
)

type MessageType int

const (
	Heartbeat MessageType = iota
	NewOrder
	CancelOrder
	LogBook
)

type ReportMessageType int

const (
	ExecutionReport ReportMessageType = iota
	ErrorReport
)

type Message interface {
	GetType() MessageType
}

// Message format constants. NewOrderMessageHeaderLen covers: reserved(2) +
// OrderType(2) + Ticker(4) + LimitPrice(8) + Quantity(8, IEEE-754 float64
// bits) + Side(1) + UsernameLen(1).
const (
	BaseMessageHeaderLen        = 2
	NewOrderMessageHeaderLen    = 2 + 2 + 4 + 8 + 8 + 1 + 1
	CancelOrderMessageHeaderLen = 2 + 16
)

type BaseMessage struct {
	TypeOf MessageType
}

func (m BaseMessage) GetType() MessageType {
	return m.TypeOf
}

func ParseMessage(msg []byte) (Message, error) {
	if len(msg) < BaseMessageHeaderLen {
		return BaseMessage{}, errors.New("net: message too short to contain header")
	}

	typeOf := MessageType(binary.BigEndian.Uint16(msg[0:2]))
	body := msg[2:]
	switch typeOf {
	case NewOrder:
		return parseNewOrder(body)
	case CancelOrder:
		return parseCancelOrder(body)
	case LogBook:
		return BaseMessage{TypeOf: LogBook}, nil
	default:
		return BaseMessage{}, ErrInvalidMessageType
	}
}

// NewOrderMessage is the wire form of an order-entry request. Price and
// Quantity travel as IEEE-754 float64 bits; they are converted to
// decimal.Decimal on arrival, at the transport boundary, which is the only
// place this repo tolerates float64 order data.
type NewOrderMessage struct {
	BaseMessage
	OrderType   common.OrderType
	Ticker      string
	LimitPrice  float64
	HasPrice    bool
	Quantity    float64
	Side        common.Side
	UsernameLen uint8
	Username    string
}

// Request converts the wire message into the OrderRequest the coordinator
// expects.
func (m *NewOrderMessage) Request() common.OrderRequest {
	req := common.OrderRequest{
		Symbol:   m.Ticker,
		Side:     m.Side,
		Type:     m.OrderType,
		Quantity: decimal.NewFromFloat(m.Quantity),
		Owner:    m.Username,
	}
	if m.HasPrice {
		price := decimal.NewFromFloat(m.LimitPrice)
		req.Price = &price
	}
	return req
}

func parseNewOrder(msg []byte) (NewOrderMessage, error) {
	if len(msg) < NewOrderMessageHeaderLen {
		return NewOrderMessage{}, ErrMessageTooShort
	}
	m := NewOrderMessage{BaseMessage: BaseMessage{TypeOf: NewOrder}}

	// msg[0:2] reserved (was AssetType in the teacher's layout).
	m.OrderType = common.OrderType(binary.BigEndian.Uint16(msg[2:4]))
	m.Ticker = string(msg[4:8])
	m.LimitPrice = math.Float64frombits(binary.BigEndian.Uint64(msg[8:16]))
	m.HasPrice = m.OrderType != common.MarketOrder
	m.Quantity = math.Float64frombits(binary.BigEndian.Uint64(msg[16:24]))
	m.Side = common.Side(msg[24])
	m.UsernameLen = msg[25]

	expectedTotalLen := int(NewOrderMessageHeaderLen) + int(m.UsernameLen)
	if len(msg) < expectedTotalLen {
		return NewOrderMessage{}, ErrMessageTooShort
	}
	m.Username = string(msg[26:expectedTotalLen])

	return m, nil
}

type CancelOrderMessage struct {
	BaseMessage
	OrderID string
}

func parseCancelOrder(msg []byte) (CancelOrderMessage, error) {
	if len(msg) < CancelOrderMessageHeaderLen {
		return CancelOrderMessage{}, ErrMessageTooShort
	}
	m := CancelOrderMessage{BaseMessage: BaseMessage{TypeOf: CancelOrder}}
	// msg[0:2] reserved (was AssetType).
	idBytes := msg[2:18]
	end := len(idBytes)
	for end > 0 && idBytes[end-1] == 0 {
		end--
	}
	m.OrderID = string(idBytes[:end])
	return m, nil
}

// Report is an ExecutionReport or ErrorReport sent back to a client.
type Report struct {
	MessageType     ReportMessageType
	Side            common.Side
	Timestamp       uint64
	Quantity        float64
	Price           float64
	CounterpartyLen uint16
	ErrStrLen       uint32
	Ticker          string
	OrderID         string
	Err             string
	Counterparty    string
}

const reportFixedHeaderLen = 1 + 1 + 8 + 8 + 8 + 2 + 4 + 4 + 16

// Serialize packs the report into its wire form.
func (r *Report) Serialize() ([]byte, error) {
	totalSize := reportFixedHeaderLen + len(r.Err) + len(r.Counterparty)
	buf := make([]byte, totalSize)

	buf[0] = byte(r.MessageType)
	buf[1] = byte(r.Side)
	binary.BigEndian.PutUint64(buf[2:10], r.Timestamp)
	binary.BigEndian.PutUint64(buf[10:18], math.Float64bits(r.Quantity))
	binary.BigEndian.PutUint64(buf[18:26], math.Float64bits(r.Price))
	binary.BigEndian.PutUint16(buf[26:28], r.CounterpartyLen)
	binary.BigEndian.PutUint32(buf[28:32], r.ErrStrLen)

	tickerBytes := make([]byte, 4)
	copy(tickerBytes, r.Ticker)
	copy(buf[32:36], tickerBytes)

	idBytes := make([]byte, 16)
	copy(idBytes, r.OrderID)
	copy(buf[36:52], idBytes)

	offset := reportFixedHeaderLen
	copy(buf[offset:], r.Err)
	offset += int(r.ErrStrLen)
	copy(buf[offset:], r.Counterparty)

	return buf, nil
}

// generateWireTradeReport builds the execution report sent to one side of a
// trade, addressed from that side's perspective.
func generateWireTradeReport(symbol string, trade common.Trade, side common.Side, orderID, counterpartyOwner string) ([]byte, error) {
	price, _ := trade.Price.Float64()
	qty, _ := trade.Quantity.Float64()

	report := Report{
		MessageType:     ExecutionReport,
		Side:            side,
		Timestamp:       uint64(trade.Timestamp.Unix()),
		Quantity:        qty,
		Price:           price,
		CounterpartyLen: uint16(len(counterpartyOwner)),
		Ticker:          padOrTruncate(symbol, 4),
		OrderID:         padOrTruncate(orderID, 16),
		Counterparty:    counterpartyOwner,
	}
	return report.Serialize()
}

func generateWireErrorReport(sourceErr error) ([]byte, error) {
	errStr := fmt.Sprintf("%v", sourceErr)
	report := Report{
		MessageType: ErrorReport,
		Timestamp:   uint64(time.Now().UnixNano()),
		ErrStrLen:   uint32(len(errStr)),
		Err:         errStr,
	}
	return report.Serialize()
}

func padOrTruncate(s string, n int) string {
	if len(s) >= n {
		return s[:n]
	}
	return s
}
