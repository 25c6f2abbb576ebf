package notify

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"

	"github.com/tailored-agentic-units/backlog/orchestrate/config"
	"github.com/tailored-agentic-units/backlog/orchestrate/state"
)

// SocketIOConfig configures the socket.io completion push. An empty URL
// disables it.
//
// Example YAML:
//
//	socketio:
//	  url: https://hub.internal:3000/socket.io/
//	  namespace: /backlog
//	  event: task.completed
type SocketIOConfig struct {
	URL                string          `json:"url" yaml:"url" validate:"omitempty,url"`
	Namespace          string          `json:"namespace,omitempty" yaml:"namespace,omitempty"`
	Event              string          `json:"event,omitempty" yaml:"event,omitempty"`
	InsecureSkipVerify bool            `json:"insecure_skip_verify,omitempty" yaml:"insecure_skip_verify,omitempty"`
	ConnectTimeout     config.Duration `json:"connect_timeout,omitempty" yaml:"connect_timeout,omitempty"`
}

// Enabled reports whether a URL is configured.
func (c SocketIOConfig) Enabled() bool { return c.URL != "" }

// EmitFunc sends one event with its payload.
type EmitFunc func(event string, payload any)

// SocketIONotifier pushes a Summary for every finished run.
type SocketIONotifier struct {
	emit   EmitFunc
	event  string
	close  func()
	logger *slog.Logger
}

// NewSocketIONotifier creates a notifier over an arbitrary emitter. event
// defaults to EventTaskCompleted.
func NewSocketIONotifier(emit EmitFunc, event string, logger *slog.Logger) *SocketIONotifier {
	if event == "" {
		event = EventTaskCompleted
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SocketIONotifier{emit: emit, event: event, close: func() {}, logger: logger}
}

// DialSocketIO connects to the hub named by cfg and returns a notifier that
// emits on the connected socket. It waits for the connect event, ctx, or
// the connect timeout, whichever comes first.
func DialSocketIO(ctx context.Context, cfg SocketIOConfig, logger *slog.Logger) (*SocketIONotifier, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("notifier", "socketio", "url", cfg.URL)

	parsedURL, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}

	opts := socket.DefaultOptions()
	opts.SetPath(parsedURL.Path)
	if cfg.InsecureSkipVerify {
		logger.Warn("Skipping TLS certificate verification")
		opts.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	}
	opts.SetTransports(types.NewSet(transports.WebSocket))

	connectChan := make(chan error, 1)

	baseURL := fmt.Sprintf("%s://%s", parsedURL.Scheme, parsedURL.Host)
	manager := socket.NewManager(baseURL, opts)
	io := manager.Socket(cfg.Namespace, opts)

	io.Once(types.EventName("connect"), func(...any) {
		logger.Info("Connected", "sid", io.Id())
		connectChan <- nil
	})
	io.Once(types.EventName("connect_error"), func(errs ...any) {
		err, ok := errs[0].(error)
		if !ok {
			err = fmt.Errorf("%v", errs[0])
		}
		connectChan <- err
	})

	io.Connect()

	timeout := cfg.ConnectTimeout.Std()
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	select {
	case err := <-connectChan:
		if err != nil {
			io.Disconnect()
			return nil, fmt.Errorf("socket.io connection failed: %w", err)
		}
	case <-ctx.Done():
		io.Disconnect()
		return nil, fmt.Errorf("context cancelled while waiting for socket.io connection: %w", ctx.Err())
	case <-time.After(timeout):
		io.Disconnect()
		return nil, fmt.Errorf("timed out after %v waiting for socket.io connection", timeout)
	}

	n := NewSocketIONotifier(func(event string, payload any) {
		if !io.Connected() {
			logger.Warn("Dropping event on disconnected socket", "event", event)
			return
		}
		io.Emit(event, payload)
	}, cfg.Event, logger)
	n.close = func() { io.Disconnect() }
	return n, nil
}

func (n *SocketIONotifier) OnComplete(_ context.Context, final *state.PipelineState) {
	n.logger.Debug("Emitting completion", "event", n.event, "task_id", final.TaskID())
	n.emit(n.event, Summarize(final))
}

// Close disconnects the socket.
func (n *SocketIONotifier) Close() error {
	n.close()
	return nil
}
