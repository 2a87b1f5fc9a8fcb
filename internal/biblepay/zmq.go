package biblepay

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	zmq "github.com/pebbe/zmq4"
)

// ZMQNotifier subscribes to a BiblePay Core daemon's ZMQ feed. The pool
// uses hashblock notifications to trigger block discovery instead of
// polling the daemon on a timer.
type ZMQNotifier struct {
	socket   *zmq.Socket
	endpoint string
	network  string
	logger   *slog.Logger
}

// NewZMQNotifier creates a new ZMQ notifier for one network's daemon
func NewZMQNotifier(network, endpoint string, logger *slog.Logger) (*ZMQNotifier, error) {
	socket, err := zmq.NewSocket(zmq.SUB)
	if err != nil {
		return nil, fmt.Errorf("failed to create ZMQ socket: %w", err)
	}

	return &ZMQNotifier{
		socket:   socket,
		endpoint: endpoint,
		network:  network,
		logger:   logger.With("network", network),
	}, nil
}

// Subscribe subscribes to a specific topic
func (z *ZMQNotifier) Subscribe(topic string) error {
	if err := z.socket.SetSubscribe(topic); err != nil {
		return fmt.Errorf("failed to subscribe to topic %s: %w", topic, err)
	}
	z.logger.Info("subscribed to ZMQ topic", "topic", topic)
	return nil
}

// Connect connects to the ZMQ endpoint
func (z *ZMQNotifier) Connect() error {
	if err := z.socket.Connect(z.endpoint); err != nil {
		return fmt.Errorf("failed to connect to ZMQ endpoint %s: %w", z.endpoint, err)
	}
	z.logger.Info("connected to ZMQ endpoint", "endpoint", z.endpoint)
	return nil
}

// Listen starts listening for ZMQ messages
func (z *ZMQNotifier) Listen(ctx context.Context, handler func(topic string, data []byte) error) error {
	z.logger.Info("starting ZMQ listener")

	for {
		select {
		case <-ctx.Done():
			z.logger.Info("ZMQ listener stopping")
			return ctx.Err()
		default:
		}

		// Receive message with timeout
		msg, err := z.socket.RecvMessageBytes(zmq.DONTWAIT)
		if err != nil {
			if err.Error() == "resource temporarily unavailable" {
				// No message available, continue
				continue
			}
			z.logger.Error("failed to receive ZMQ message", "error", err)
			continue
		}

		if len(msg) < 2 {
			z.logger.Warn("received malformed ZMQ message", "parts", len(msg))
			continue
		}

		topic := string(msg[0])
		data := msg[1]

		z.logger.Debug("received ZMQ message", "topic", topic, "size", len(data))

		if err := handler(topic, data); err != nil {
			z.logger.Error("failed to handle ZMQ message", "topic", topic, "error", err)
		}
	}
}

// Close closes the ZMQ socket
func (z *ZMQNotifier) Close() error {
	if z.socket != nil {
		return z.socket.Close()
	}
	return nil
}

// BlockNotificationHandler routes hashblock notifications to the block
// discovery trigger for one network.
type BlockNotificationHandler struct {
	logger     *slog.Logger
	network    string
	onNewBlock func(network, blockHash string) error
}

// NewBlockNotificationHandler creates a new block notification handler
func NewBlockNotificationHandler(network string, logger *slog.Logger) *BlockNotificationHandler {
	return &BlockNotificationHandler{
		logger:  logger.With("network", network),
		network: network,
	}
}

// SetNewBlockHandler sets the handler for new block notifications
func (h *BlockNotificationHandler) SetNewBlockHandler(handler func(network, blockHash string) error) {
	h.onNewBlock = handler
}

// HandleMessage handles a ZMQ message
func (h *BlockNotificationHandler) HandleMessage(topic string, data []byte) error {
	switch topic {
	case "hashblock":
		if len(data) != chainhash.HashSize {
			return fmt.Errorf("invalid block hash length: %d", len(data))
		}

		// ZMQ delivers the hash in internal byte order
		hash, err := chainhash.NewHash(data)
		if err != nil {
			return fmt.Errorf("invalid block hash: %w", err)
		}

		h.logger.Info("new block notification", "hash", hash.String())

		if h.onNewBlock != nil {
			return h.onNewBlock(h.network, hash.String())
		}

	case "hashtx", "rawtx", "rawblock":
		// Not used by the settlement pipeline

	default:
		h.logger.Warn("unknown ZMQ topic", "topic", topic)
	}

	return nil
}
