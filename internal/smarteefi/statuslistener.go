package smarteefi

import (
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// Listener tuning constants.
const (
	// datagramBufferSize is the read buffer for one status datagram.
	// Status payloads are small JSON objects; 1KB leaves ample headroom.
	datagramBufferSize = 1024

	// statusQueueSize is the buffer size for the status callback queue.
	statusQueueSize = 100

	// DefaultStatusPort is the UDP port Smarteefi controllers broadcast
	// status datagrams on.
	DefaultStatusPort = 23294
)

// ListenerConfig holds UDP status listener configuration.
type ListenerConfig struct {
	// Bind is the local address to bind, e.g. "0.0.0.0".
	Bind string

	// Port is the UDP port to listen on. Default: DefaultStatusPort.
	Port int
}

// ListenerStats holds operational statistics for the status listener.
type ListenerStats struct {
	DatagramsRx      uint64
	DatagramsDropped uint64 // Dropped due to full callback queue
	ParseErrors      uint64
	LastActivity     time.Time
}

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// StatusListener receives push status datagrams broadcast by Smarteefi
// controllers on the local network.
//
// Controllers announce state changes as small JSON datagrams carrying the
// controller serial, the switch map, and the new status word. Listening for
// them gives immediate entity updates between cloud polls.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - Status callbacks are invoked from a single dedicated goroutine, so a
//     callback never runs concurrently with itself.
type StatusListener struct {
	cfg  ListenerConfig
	conn *net.UDPConn

	// Status handler callback
	onStatus   func(DeviceStatus)
	callbackMu sync.RWMutex

	// Callback queue decouples the read loop from slow handlers.
	statusQueue chan DeviceStatus

	// Shutdown coordination
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	// Logger (optional)
	logger   Logger
	loggerMu sync.RWMutex

	// Statistics
	datagramsRx      atomic.Uint64
	datagramsDropped atomic.Uint64
	parseErrors      atomic.Uint64
	lastActivity     atomic.Int64 // Unix timestamp
}

// Listen binds the UDP socket and starts receiving status datagrams.
//
// Parameters:
//   - cfg: Listener configuration (bind address and port)
//
// Returns:
//   - *StatusListener: Running listener
//   - error: If the socket cannot be bound
//
// Port 0 binds an ephemeral port (useful in tests); production deployments
// use DefaultStatusPort via config defaults.
func Listen(cfg ListenerConfig) (*StatusListener, error) {
	if cfg.Bind == "" {
		cfg.Bind = "0.0.0.0"
	}

	addr := &net.UDPAddr{
		IP:   net.ParseIP(cfg.Bind),
		Port: cfg.Port,
	}
	if addr.IP == nil {
		return nil, fmt.Errorf("invalid bind address %q", cfg.Bind)
	}

	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("binding status listener: %w", err)
	}

	l := &StatusListener{
		cfg:         cfg,
		conn:        conn,
		done:        make(chan struct{}),
		statusQueue: make(chan DeviceStatus, statusQueueSize),
	}
	l.lastActivity.Store(time.Now().Unix())

	l.wg.Add(1)
	go l.callbackWorker()

	l.wg.Add(1)
	go l.readLoop()

	return l, nil
}

// SetOnStatus sets the callback invoked for each received status datagram.
func (l *StatusListener) SetOnStatus(callback func(DeviceStatus)) {
	l.callbackMu.Lock()
	l.onStatus = callback
	l.callbackMu.Unlock()
}

// SetLogger sets a logger for parse errors and drops.
func (l *StatusListener) SetLogger(logger Logger) {
	l.loggerMu.Lock()
	l.logger = logger
	l.loggerMu.Unlock()
}

// Addr returns the local address the listener is bound to.
func (l *StatusListener) Addr() net.Addr {
	return l.conn.LocalAddr()
}

// Stats returns a snapshot of listener statistics.
func (l *StatusListener) Stats() ListenerStats {
	return ListenerStats{
		DatagramsRx:      l.datagramsRx.Load(),
		DatagramsDropped: l.datagramsDropped.Load(),
		ParseErrors:      l.parseErrors.Load(),
		LastActivity:     time.Unix(l.lastActivity.Load(), 0),
	}
}

// Close stops the listener and waits for its goroutines to exit.
// Safe to call multiple times.
func (l *StatusListener) Close() error {
	var err error
	l.stopOnce.Do(func() {
		close(l.done)
		err = l.conn.Close()
		l.wg.Wait()
	})
	return err
}

// readLoop receives datagrams until the socket is closed.
func (l *StatusListener) readLoop() {
	defer l.wg.Done()
	defer close(l.statusQueue)

	buf := make([]byte, datagramBufferSize)
	for {
		n, remote, err := l.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-l.done:
				return // Shutting down
			default:
			}
			// Transient read error on a UDP socket; keep going.
			l.logWarn("status listener read error", "error", err)
			continue
		}

		l.datagramsRx.Add(1)
		l.lastActivity.Store(time.Now().Unix())

		status, err := parseStatusDatagram(buf[:n])
		if err != nil {
			l.parseErrors.Add(1)
			l.logDebug("ignoring malformed status datagram",
				"remote", remote.String(),
				"error", err,
			)
			continue
		}

		select {
		case l.statusQueue <- status:
		default:
			l.datagramsDropped.Add(1)
			l.logWarn("status queue full, dropping datagram",
				"serial", status.Serial,
				"smap", status.Smap,
			)
		}
	}
}

// callbackWorker delivers queued statuses to the callback.
func (l *StatusListener) callbackWorker() {
	defer l.wg.Done()

	for status := range l.statusQueue {
		l.callbackMu.RLock()
		callback := l.onStatus
		l.callbackMu.RUnlock()

		if callback != nil {
			callback(status)
		}
	}
}

// parseStatusDatagram decodes one JSON status datagram.
func parseStatusDatagram(data []byte) (DeviceStatus, error) {
	var status DeviceStatus
	if err := json.Unmarshal(data, &status); err != nil {
		return DeviceStatus{}, fmt.Errorf("decoding datagram: %w", err)
	}
	if status.Serial == "" {
		return DeviceStatus{}, fmt.Errorf("datagram missing serial")
	}
	if status.Smap == 0 {
		return DeviceStatus{}, fmt.Errorf("datagram missing smap")
	}
	return status, nil
}

func (l *StatusListener) logDebug(msg string, args ...any) {
	l.loggerMu.RLock()
	logger := l.logger
	l.loggerMu.RUnlock()
	if logger != nil {
		logger.Debug(msg, args...)
	}
}

func (l *StatusListener) logWarn(msg string, args ...any) {
	l.loggerMu.RLock()
	logger := l.logger
	l.loggerMu.RUnlock()
	if logger != nil {
		logger.Warn(msg, args...)
	}
}
