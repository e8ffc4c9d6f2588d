package manifest

import (
	"encoding/json"
	"fmt"
	"net"
	"time"

	clientv2 "github.com/elastic/go-lumber/client/v2"
	srv2 "github.com/elastic/go-lumber/server/v2"
)

// BroadcastReceiver runs on a worker node in broadcast mode: it accepts
// one connection from the driver and receives the manifest as a stream
// of lumberjack batches, acking each as it arrives. Grounded directly on
// ingestor.TCPIngestor — same listener/server/ack-loop shape, with batch
// events decoded into Entry instead of into an HTTP log Request.
type BroadcastReceiver struct {
	listener net.Listener
	server   *srv2.Server
	entries  chan Entry
}

// NewBroadcastReceiver binds addr and prepares to receive the manifest
// pushed by the driver's BroadcastSender.
func NewBroadcastReceiver(addr string) (*BroadcastReceiver, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("manifest: listen on %s: %w", addr, err)
	}
	return &BroadcastReceiver{listener: ln, entries: make(chan Entry, 1024)}, nil
}

// Addr returns the bound listen address, for a driver configured with a
// dynamic port.
func (b *BroadcastReceiver) Addr() string { return b.listener.Addr().String() }

// Accept starts the lumberjack v2 server and returns a channel of decoded
// entries; the channel closes once the driver disconnects.
func (b *BroadcastReceiver) Accept(readTimeout time.Duration) (<-chan Entry, error) {
	srv, err := srv2.NewWithListener(b.listener, srv2.Timeout(readTimeout))
	if err != nil {
		return nil, fmt.Errorf("manifest: start broadcast receiver: %w", err)
	}
	b.server = srv

	go func() {
		defer close(b.entries)
		for batch := range srv.ReceiveChan() {
			for _, raw := range batch.Events {
				if e, ok := decodeBroadcastEvent(raw); ok {
					b.entries <- e
				}
			}
			batch.ACK()
		}
	}()

	return b.entries, nil
}

// Close stops the listener.
func (b *BroadcastReceiver) Close() error { return b.listener.Close() }

func decodeBroadcastEvent(raw interface{}) (Entry, bool) {
	evt, ok := raw.(map[string]interface{})
	if !ok {
		return Entry{}, false
	}
	msg, ok := evt["message"].(string)
	if !ok {
		return Entry{}, false
	}
	var e Entry
	if err := json.Unmarshal([]byte(msg), &e); err != nil {
		return Entry{}, false
	}
	return e, true
}

// BroadcastSender runs on the driver node: it loads the manifest once and
// pushes it to every connected worker node as lumberjack batches.
type BroadcastSender struct {
	entries []Entry
}

// NewBroadcastSender loads filename, ready to push to worker addresses.
func NewBroadcastSender(filename string) (*BroadcastSender, error) {
	entries, err := Load(filename)
	if err != nil {
		return nil, err
	}
	return &BroadcastSender{entries: entries}, nil
}

// sendBatchSize caps how many entries travel in one lumberjack batch, so
// a manifest of millions of entries does not build one giant in-memory
// event slice per send.
const sendBatchSize = 1024

// SendTo dials addr and pushes the whole manifest in sendBatchSize-sized
// batches, synchronously waiting for each batch's ack before sending the
// next.
func (s *BroadcastSender) SendTo(addr string, dialTimeout time.Duration) error {
	conn, err := net.DialTimeout("tcp", addr, dialTimeout)
	if err != nil {
		return fmt.Errorf("manifest: dial worker %s: %w", addr, err)
	}
	defer conn.Close()

	client, err := clientv2.NewWithConn(conn, clientv2.Timeout(dialTimeout))
	if err != nil {
		return fmt.Errorf("manifest: create broadcast client for %s: %w", addr, err)
	}
	defer client.Close()

	for start := 0; start < len(s.entries); start += sendBatchSize {
		end := start + sendBatchSize
		if end > len(s.entries) {
			end = len(s.entries)
		}
		events := make([]interface{}, 0, end-start)
		for _, e := range s.entries[start:end] {
			raw, err := json.Marshal(e)
			if err != nil {
				return fmt.Errorf("manifest: marshal entry: %w", err)
			}
			events = append(events, map[string]interface{}{"message": string(raw)})
		}
		if _, err := client.Send(events); err != nil {
			return fmt.Errorf("manifest: send batch to %s: %w", addr, err)
		}
	}
	return nil
}

// Len reports how many entries this driver will broadcast.
func (s *BroadcastSender) Len() int { return len(s.entries) }
