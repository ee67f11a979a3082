package platform

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// UpdateCallback receives the raw JSON payload of one update. The
// feed does not parse payloads; malformed ones are the normalizer's
// problem.
type UpdateCallback func(data []byte)

type StateCallback func(state FeedState)

type updateCallbackEntry struct {
	id       int
	callback UpdateCallback
}

type stateCallbackEntry struct {
	id       int
	callback StateCallback
}

// UpdateFeed is a websocket subscription to the webhook gateway that
// fronts the bot API. It reconnects with a bounded number of attempts
// and hands every frame to the registered callbacks.
type UpdateFeed struct {
	wsURL                string
	conn                 *websocket.Conn
	state                FeedState
	stateMu              sync.RWMutex
	updateCallbacks      []updateCallbackEntry
	stateCallbacks       []stateCallbackEntry
	nextCallbackID       int
	callbacksMu          sync.RWMutex
	reconnectAttempts    int
	maxReconnectAttempts int
	reconnectDelay       time.Duration
	logger               *zap.Logger
	stopCh               chan struct{}
	stopOnce             sync.Once
	listenerWg           sync.WaitGroup
}

func NewUpdateFeed(wsURL string, maxReconnectAttempts int, reconnectDelay time.Duration, logger *zap.Logger) *UpdateFeed {
	return &UpdateFeed{
		wsURL:                wsURL,
		state:                FeedStateDisconnected,
		maxReconnectAttempts: maxReconnectAttempts,
		reconnectDelay:       reconnectDelay,
		logger:               logger,
		stopCh:               make(chan struct{}),
		updateCallbacks:      make([]updateCallbackEntry, 0),
		stateCallbacks:       make([]stateCallbackEntry, 0),
		nextCallbackID:       1,
	}
}

func (f *UpdateFeed) Connect(ctx context.Context) error {
	f.stateMu.Lock()
	if f.state == FeedStateConnected || f.state == FeedStateConnecting {
		f.stateMu.Unlock()
		f.logger.Warn("Update feed already connected or connecting")
		return nil
	}
	f.stateMu.Unlock()

	f.setState(FeedStateConnecting)

	dialer := websocket.DefaultDialer
	dialer.HandshakeTimeout = 10 * time.Second

	conn, _, err := dialer.DialContext(ctx, f.wsURL, nil)
	if err != nil {
		f.logger.Error("Failed to connect update feed", zap.Error(err))
		f.setState(FeedStateFailed)
		f.scheduleReconnect(ctx)
		return err
	}

	f.conn = conn
	f.setState(FeedStateConnected)
	f.reconnectAttempts = 0

	f.logger.Info("Update feed connected", zap.String("url", f.wsURL))

	f.listenerWg.Add(1)
	go f.listen(ctx)

	return nil
}

func (f *UpdateFeed) listen(ctx context.Context) {
	defer f.listenerWg.Done()
	defer f.logger.Info("Update feed listener stopped")

	for {
		select {
		case <-ctx.Done():
			return
		case <-f.stopCh:
			return
		default:
			if f.conn == nil {
				return
			}

			_, payload, err := f.conn.ReadMessage()
			if err != nil {
				select {
				case <-f.stopCh:
					return
				default:
				}
				f.logger.Error("Update feed read error", zap.Error(err))
				f.setState(FeedStateDisconnected)
				f.scheduleReconnect(ctx)
				return
			}

			f.deliver(payload)
		}
	}
}

func (f *UpdateFeed) deliver(payload []byte) {
	f.callbacksMu.RLock()
	callbacks := make([]updateCallbackEntry, len(f.updateCallbacks))
	copy(callbacks, f.updateCallbacks)
	f.callbacksMu.RUnlock()

	for _, entry := range callbacks {
		entry.callback(payload)
	}
}

func (f *UpdateFeed) scheduleReconnect(ctx context.Context) {
	f.reconnectAttempts++

	if f.reconnectAttempts > f.maxReconnectAttempts {
		f.logger.Error("Max reconnect attempts reached",
			zap.Int("attempts", f.reconnectAttempts),
		)
		f.setState(FeedStateFailed)
		return
	}

	f.setState(FeedStateReconnecting)

	f.logger.Info("Scheduling feed reconnect",
		zap.Int("attempt", f.reconnectAttempts),
		zap.Int("max", f.maxReconnectAttempts),
		zap.Duration("delay", f.reconnectDelay),
	)

	go func() {
		select {
		case <-time.After(f.reconnectDelay):
			if err := f.Connect(ctx); err != nil {
				f.logger.Error("Feed reconnect failed", zap.Error(err))
			}
		case <-ctx.Done():
			return
		case <-f.stopCh:
			return
		}
	}()
}

// OnUpdate registers a callback and returns its unsubscribe func.
func (f *UpdateFeed) OnUpdate(callback UpdateCallback) func() {
	f.callbacksMu.Lock()
	id := f.nextCallbackID
	f.nextCallbackID++
	f.updateCallbacks = append(f.updateCallbacks, updateCallbackEntry{
		id:       id,
		callback: callback,
	})
	f.callbacksMu.Unlock()

	return func() {
		f.callbacksMu.Lock()
		defer f.callbacksMu.Unlock()
		for i, entry := range f.updateCallbacks {
			if entry.id == id {
				f.updateCallbacks = append(f.updateCallbacks[:i], f.updateCallbacks[i+1:]...)
				break
			}
		}
	}
}

func (f *UpdateFeed) OnStateChange(callback StateCallback) func() {
	f.callbacksMu.Lock()
	id := f.nextCallbackID
	f.nextCallbackID++
	f.stateCallbacks = append(f.stateCallbacks, stateCallbackEntry{
		id:       id,
		callback: callback,
	})
	f.callbacksMu.Unlock()

	return func() {
		f.callbacksMu.Lock()
		defer f.callbacksMu.Unlock()
		for i, entry := range f.stateCallbacks {
			if entry.id == id {
				f.stateCallbacks = append(f.stateCallbacks[:i], f.stateCallbacks[i+1:]...)
				break
			}
		}
	}
}

func (f *UpdateFeed) setState(newState FeedState) {
	f.stateMu.Lock()
	oldState := f.state
	f.state = newState
	f.stateMu.Unlock()

	if oldState == newState {
		return
	}

	f.logger.Info("Update feed state changed",
		zap.String("from", oldState.String()),
		zap.String("to", newState.String()),
	)

	f.callbacksMu.RLock()
	callbacks := make([]stateCallbackEntry, len(f.stateCallbacks))
	copy(callbacks, f.stateCallbacks)
	f.callbacksMu.RUnlock()

	for _, entry := range callbacks {
		entry.callback(newState)
	}
}

func (f *UpdateFeed) GetState() FeedState {
	f.stateMu.RLock()
	defer f.stateMu.RUnlock()
	return f.state
}

func (f *UpdateFeed) IsConnected() bool {
	return f.GetState() == FeedStateConnected
}

func (f *UpdateFeed) Disconnect() error {
	f.stopOnce.Do(func() {
		close(f.stopCh)
	})

	if f.conn != nil {
		if err := f.conn.Close(); err != nil {
			f.logger.Error("Failed to close update feed", zap.Error(err))
			return err
		}
		f.conn = nil
	}

	f.reconnectAttempts = 0
	f.setState(FeedStateDisconnected)
	f.logger.Info("Update feed disconnected")

	done := make(chan struct{})
	go func() {
		f.listenerWg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		f.logger.Warn("Timeout waiting for feed listener to stop")
	}

	return nil
}
