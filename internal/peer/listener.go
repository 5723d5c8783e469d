package peer

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"net"
	"strings"
)

// Handler processes one inbound Message for accountID and returns the reply
// to write back to the peer, or ok=false to send nothing.
type Handler func(ctx context.Context, accountID string, msg Message) (reply Message, ok bool, err error)

// Listener accepts peer TCP connections and dispatches each inbound message
// to a Handler, one connection-handling goroutine per accepted connection.
type Listener struct {
	logger  *slog.Logger
	handler Handler
}

// NewListener builds a Listener that dispatches inbound messages to handler.
func NewListener(logger *slog.Logger, handler Handler) *Listener {
	return &Listener{logger: logger.With("component", "peer"), handler: handler}
}

// Run accepts connections on addr until ctx is canceled, serving each on its
// own goroutine. Returns when the listener is closed by context cancellation.
func (l *Listener) Run(ctx context.Context, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	l.logger.Info("peer listener listening", "addr", addr)

	go func() {
		<-ctx.Done()
		_ = lis.Close()
	}()

	for {
		conn, err := lis.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			l.logger.Warn("accept failed", "error", err)
			continue
		}
		go l.serve(ctx, conn)
	}
}

// newConnectionID generates a short random identifier for a connection whose
// first message declares no channel yet, i.e. a brand-new account with
// nothing persisted to resolve back to.
func newConnectionID() string {
	var buf [8]byte
	_, _ = rand.Read(buf[:])
	return hex.EncodeToString(buf[:])
}

// accountIDFromMessage derives a stable accountId from a peer's declared
// channel, so a dropped and re-established TCP connection resolves back to
// the same persisted account instead of minting a new one. A peer proves
// ownership of the channel id it declares here via channel_signature before
// any of it is trusted (see handleChannel/verifyChannelSignature); this only
// picks which persisted account a connection speaks for.
func accountIDFromMessage(msg Message) string {
	if channelProto, ok := msg.Get(ProtocolChannel); ok && len(channelProto.Data) > 0 {
		return strings.ToLower(string(channelProto.Data))
	}
	return newConnectionID()
}

// serve reads and dispatches messages from one connection until it closes or
// ctx is canceled. The accountId is fixed from the connection's first
// message and reused for every message after it.
func (l *Listener) serve(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	msg, err := ReadMessage(conn)
	if err != nil {
		l.logger.Info("peer disconnected before handshake", "remote", conn.RemoteAddr().String(), "error", err)
		return
	}

	accountID := accountIDFromMessage(msg)
	connLogger := l.logger.With("accountId", accountID, "remote", conn.RemoteAddr().String())
	connLogger.Info("peer connected")

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		reply, ok, err := l.handler(ctx, accountID, msg)
		if err != nil {
			connLogger.Warn("handler error", "error", err)
		} else if ok {
			if err := WriteMessage(conn, reply); err != nil {
				connLogger.Warn("write reply failed", "error", err)
				return
			}
		}

		msg, err = ReadMessage(conn)
		if err != nil {
			connLogger.Info("peer disconnected", "error", err)
			return
		}
	}
}
