package net

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"fenrir/internal/common"
	"fenrir/internal/utils"

	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"
)

const (
	MaxRecvSize        = 4 * 1024
	defaultNWorkers    = 10
	defaultConnTimeout = time.Second
)

var (
	ErrImproperConversion = errors.New("improper type conversion")
	ErrClientDoesNotExist = errors.New("client does not exist")
)

// ClientSession tracks an individual connected TCP session. It is keyed by
// the connection's remote address on accept, and additionally by the
// username carried in the connection's NewOrder messages once one arrives.
type ClientSession struct {
	conn net.Conn
}

// ClientMessage links a parsed message to the connection that sent it.
type ClientMessage struct {
	clientAddress string
	owner         string
	message       Message
}

// Coordinator is the subset of coordinator.Coordinator the TCP transport
// depends on. Accepting the interface here (instead of the concrete type)
// keeps this package import-cycle-free from internal/coordinator.
type Coordinator interface {
	Submit(ctx context.Context, req common.OrderRequest) (common.SubmissionResult, error)
	Cancel(ctx context.Context, orderID string) (common.SubmissionResult, error)
}

type Server struct {
	address            string
	port               int
	coordinator        Coordinator
	pool               utils.WorkerPool
	cancel             context.CancelFunc
	clientSessions     map[string]ClientSession
	clientSessionsLock sync.Mutex
	clientMessages     chan ClientMessage
	ownerByAddress     map[string]string
}

func New(address string, port int, coordinator Coordinator) *Server {
	return &Server{
		address:        address,
		port:           port,
		coordinator:    coordinator,
		pool:           utils.NewWorkerPool(defaultNWorkers),
		clientSessions: make(map[string]ClientSession),
		ownerByAddress: make(map[string]string),
		clientMessages: make(chan ClientMessage, 1),
	}
}

func (s *Server) Shutdown() {
	log.Info().Msg("server shutting down")
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *Server) Run(ctx context.Context) {
	defer s.Shutdown()

	ctx, s.cancel = context.WithCancel(ctx)
	t, ctx := tomb.WithContext(ctx)

	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", fmt.Sprintf("%s:%d", s.address, s.port))
	if err != nil {
		log.Error().Err(err).Msg("unable to start listener")
		return
	}
	defer func() {
		if err := listener.Close(); err != nil {
			log.Error().Err(err).Msg("unable to close listener")
		}
	}()

	t.Go(func() error {
		s.pool.Setup(t, s.handleConnection)
		return nil
	})

	t.Go(func() error {
		return s.sessionHandler(t)
	})

	log.Info().Msg("server running")

	for {
		select {
		case <-ctx.Done():
			return
		default:
			conn, err := listener.Accept()
			if err != nil {
				log.Error().Err(err).Msg("error accepting client")
				continue
			}

			log.Info().
				Str("address", conn.RemoteAddr().String()).
				Msg("new client added")
			s.addClientSession(conn)
			s.pool.AddTask(conn)
		}
	}
}

// ReportTrade sends an execution report for a trade to one party, addressed
// by owner username. partyOwner/partyOrderID/partySide describe the side
// being reported to; counterpartyOwner is written into the report's
// counterparty field (handleMessage passes the maker's order id there, as a
// Trade carries no owner).
func (s *Server) ReportTrade(trade common.Trade, partyOwner, partyOrderID string, partySide common.Side, counterpartyOwner string) error {
	s.clientSessionsLock.Lock()
	defer s.clientSessionsLock.Unlock()

	report, err := generateWireTradeReport(trade.Symbol, trade, partySide, partyOrderID, counterpartyOwner)
	if err != nil {
		return err
	}

	party, ok := s.clientSessions[partyOwner]
	if !ok {
		return ErrClientDoesNotExist
	}

	if _, err := party.conn.Write(report); err != nil {
		delete(s.clientSessions, partyOwner)
		return fmt.Errorf("unable to send report: %w", err)
	}
	return nil
}

func (s *Server) ReportError(owner string, sourceErr error) error {
	s.clientSessionsLock.Lock()
	defer s.clientSessionsLock.Unlock()

	report, err := generateWireErrorReport(sourceErr)
	if err != nil {
		return err
	}

	client, ok := s.clientSessions[owner]
	if !ok {
		return ErrClientDoesNotExist
	}

	if _, err := client.conn.Write(report); err != nil {
		delete(s.clientSessions, owner)
		return fmt.Errorf("unable to send report: %w", err)
	}
	return nil
}

// sessionHandler reads off incoming messages from clients and handles
// high-level session logic. Messages are received from the pool of workers.
func (s *Server) sessionHandler(t *tomb.Tomb) error {
	for {
		select {
		case <-t.Dying():
			return nil
		case message := <-s.clientMessages:
			if err := s.handleMessage(message); err != nil {
				log.Error().
					Err(err).
					Str("clientAddress", message.clientAddress).
					Msg("error handling message")
				s.ReportError(message.owner, err)
			}
		}
	}
}

func (s *Server) handleMessage(message ClientMessage) error {
	ctx := context.Background()
	switch message.message.GetType() {
	case NewOrder:
		order, ok := message.message.(NewOrderMessage)
		if !ok {
			return ErrInvalidMessageType
		}
		result, err := s.coordinator.Submit(ctx, order.Request())
		if err != nil {
			return err
		}
		for _, trade := range result.Trades {
			side := order.Side
			counterparty := trade.MakerOrderID
			if trade.TakerOrderID == result.OrderID {
				counterparty = trade.MakerOrderID
			}
			if err := s.ReportTrade(trade, message.owner, result.OrderID, side, counterparty); err != nil {
				log.Error().Err(err).Str("clientAddress", message.clientAddress).Msg("error reporting trade")
			}
		}
	case CancelOrder:
		order, ok := message.message.(CancelOrderMessage)
		if !ok {
			return ErrInvalidMessageType
		}
		if _, err := s.coordinator.Cancel(ctx, order.OrderID); err != nil {
			return err
		}
	case LogBook:
		log.Info().Str("clientAddress", message.clientAddress).Msg("log book requested, not wired to a transport snapshot")
	default:
		log.Error().
			Int("messageType", int(message.message.GetType())).
			Any("message", message).
			Msg("invalid message type")
		return ErrInvalidMessageType
	}
	return nil
}

// handleConnection is a short-lived worker method which reads the next
// message off the connection, parses and passes it forward to
// sessionHandler to handle it. If the connection dies, the client session
// is cleaned up. Any error returned from here is fatal to the worker pool.
func (s *Server) handleConnection(t *tomb.Tomb, task any) error {
	conn, ok := task.(net.Conn)
	if !ok {
		return ErrImproperConversion
	}

	closeConn := func() {
		if err := conn.Close(); err != nil {
			log.Error().Str("address", conn.RemoteAddr().String()).Err(err).Msg("error closing connection")
		}
	}

	if err := conn.SetDeadline(time.Now().Add(defaultConnTimeout)); err != nil {
		log.Error().
			Str("address", conn.RemoteAddr().String()).
			Err(err).
			Msg("failed setting deadline for connection")
		closeConn()
		return nil
	}

	buffer := make([]byte, MaxRecvSize)
	select {
	case <-t.Dying():
		closeConn()
		return nil
	default:
		n, err := conn.Read(buffer)
		if err != nil {
			log.Error().
				Err(err).
				Str("address", conn.RemoteAddr().String()).
				Msg("error reading from connection")
			s.deleteClientSession(conn.RemoteAddr().String())
			closeConn()
			return nil
		}

		message, err := ParseMessage(buffer[:n])
		if err != nil {
			log.Error().
				Err(err).
				Str("address", conn.RemoteAddr().String()).
				Msg("error parsing message")
			s.deleteClientSession(conn.RemoteAddr().String())
			closeConn()
			return nil
		}

		owner := s.ownerFor(conn.RemoteAddr().String())
		if order, ok := message.(NewOrderMessage); ok {
			owner = order.Username
			s.bindOwner(conn.RemoteAddr().String(), owner)
		}

		s.clientMessages <- ClientMessage{
			message:       message,
			clientAddress: conn.RemoteAddr().String(),
			owner:         owner,
		}

		s.pool.AddTask(conn)
	}
	return nil
}

func (s *Server) addClientSession(conn net.Conn) {
	s.clientSessionsLock.Lock()
	defer s.clientSessionsLock.Unlock()
	s.clientSessions[conn.RemoteAddr().String()] = ClientSession{conn: conn}
}

func (s *Server) deleteClientSession(address string) {
	s.clientSessionsLock.Lock()
	defer s.clientSessionsLock.Unlock()
	delete(s.clientSessions, address)
	owner, ok := s.ownerByAddress[address]
	if ok {
		delete(s.clientSessions, owner)
		delete(s.ownerByAddress, address)
	}
}

func (s *Server) bindOwner(address, owner string) {
	s.clientSessionsLock.Lock()
	defer s.clientSessionsLock.Unlock()
	s.ownerByAddress[address] = owner
	if session, ok := s.clientSessions[address]; ok {
		s.clientSessions[owner] = session
	}
}

func (s *Server) ownerFor(address string) string {
	s.clientSessionsLock.Lock()
	defer s.clientSessionsLock.Unlock()
	return s.ownerByAddress[address]
}
