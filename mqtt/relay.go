// Package mqtt implements the command relay between the cloud MQTT broker
// and the door stations. A single long-lived connection subscribes to every
// device's bound topic and maps inbound textual commands to unlock and
// status calls.
//
// The relay is an explicit state machine driven by a run loop on a
// dedicated goroutine; broker callbacks only post events into the loop.
package mqtt

import (
	"fmt"
	"sync"
	"time"

	"github.com/vtolink/vto-panel/logger"
	"github.com/vtolink/vto-panel/util/common"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/eclipse/paho.mqtt.golang/packets"
)

// State of the relay connection.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Subscribing
	Subscribed
	Reconnecting
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Subscribing:
		return "subscribing"
	case Subscribed:
		return "subscribed"
	case Reconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// Config is the broker configuration the relay runs with. PrivateKey is the
// cloud account credential and doubles as the client id, as the broker
// requires.
type Config struct {
	Enabled    bool
	PrivateKey string
	Broker     string
	Port       int
}

func (c Config) addr() string {
	return fmt.Sprintf("tcp://%s:%d", c.Broker, c.Port)
}

// CommandHandler executes relay commands against the device registry.
// Implementations must be safe for concurrent use.
type CommandHandler interface {
	// Unlock triggers the unlock for the device bound to topic and returns
	// a human-readable outcome.
	Unlock(topic string) (msg string, ok bool)
	// Status probes the device bound to topic. known is false when no
	// device owns the topic.
	Status(topic string) (online, known bool)
}

const (
	connectTimeout = 10 * time.Second
	tokenTimeout   = 5 * time.Second
	minBackoff     = 1 * time.Second
	maxBackoff     = 30 * time.Second
)

type eventKind int

const (
	evApply eventKind = iota
	evTopics
	evConnected
	evConnLost
	evRetry
	evMessage
)

type event struct {
	kind    eventKind
	gen     uint64
	cfg     Config
	topics  []string
	err     error
	topic   string
	payload string
}

// Relay owns the broker connection and its state machine.
type Relay struct {
	handler CommandHandler

	events chan event
	stop   chan struct{}
	done   chan struct{}

	// run loop state, touched only inside loop()
	cfg        Config
	client     paho.Client
	gen        uint64
	backoff    time.Duration
	subscribed map[string]struct{}
	desired    []string
	retryTimer *time.Timer

	mu      sync.RWMutex
	state   State
	lastErr error
}

// NewRelay creates a relay and starts its run loop. The relay stays
// Disconnected until a config with Enabled and a private key is applied.
func NewRelay(handler CommandHandler) *Relay {
	r := &Relay{
		handler:    handler,
		events:     make(chan event, 64),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
		backoff:    minBackoff,
		subscribed: make(map[string]struct{}),
	}
	go r.loop()
	return r
}

// Apply pushes a (possibly unchanged) broker configuration into the relay.
func (r *Relay) Apply(cfg Config) {
	r.post(event{kind: evApply, cfg: cfg})
}

// SyncTopics pushes the desired topic set; the relay diffs it against its
// current subscriptions.
func (r *Relay) SyncTopics(topics []string) {
	r.post(event{kind: evTopics, topics: topics})
}

// State returns the current connection state.
func (r *Relay) State() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// LastErr returns the most recent connection failure, if any.
func (r *Relay) LastErr() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastErr
}

// Shutdown disconnects cleanly and stops the run loop.
func (r *Relay) Shutdown() {
	close(r.stop)
	<-r.done
}

func (r *Relay) post(ev event) {
	select {
	case r.events <- ev:
	case <-r.stop:
	}
}

func (r *Relay) setState(s State, err error) {
	r.mu.Lock()
	r.state = s
	r.lastErr = err
	r.mu.Unlock()
}

func (r *Relay) loop() {
	defer close(r.done)
	for {
		select {
		case ev := <-r.events:
			r.handleEvent(ev)
		case <-r.stop:
			r.disconnect()
			return
		}
	}
}

func (r *Relay) handleEvent(ev event) {
	// Connection events from a previous client generation are stale.
	if ev.kind == evConnected || ev.kind == evConnLost || ev.kind == evRetry {
		if ev.gen != r.gen {
			return
		}
	}

	switch ev.kind {
	case evApply:
		r.applyConfig(ev.cfg)
	case evTopics:
		r.desired = ev.topics
		if r.State() == Subscribed || r.State() == Connected {
			r.syncSubscriptions()
		}
	case evConnected:
		logger.Info("mqtt relay connected to", r.cfg.addr())
		r.backoff = minBackoff
		r.setState(Connected, nil)
		r.syncSubscriptions()
	case evConnLost:
		r.onConnLost(ev.err)
	case evRetry:
		if r.cfg.Enabled && r.State() == Reconnecting {
			r.startConnect()
		}
	case evMessage:
		r.dispatch(ev.topic, ev.payload)
	}
}

func (r *Relay) applyConfig(cfg Config) {
	active := cfg.Enabled && cfg.PrivateKey != ""
	changed := cfg != r.cfg
	r.cfg = cfg

	if !active {
		if r.client != nil {
			logger.Info("mqtt relay disabled, disconnecting")
		}
		r.disconnect()
		r.setState(Disconnected, nil)
		return
	}

	if changed {
		// Dropping the old client also cancels a pending backoff retry, so
		// leave Reconnecting behind or nothing will ever dial the new broker.
		r.disconnect()
		r.setState(Disconnected, nil)
	}
	if r.client == nil && r.State() != Reconnecting {
		r.startConnect()
	}
}

// startConnect launches an async broker connect for the current generation.
func (r *Relay) startConnect() {
	r.gen++
	gen := r.gen
	r.setState(Connecting, nil)

	opts := paho.NewClientOptions().
		AddBroker(r.cfg.addr()).
		SetClientID(r.cfg.PrivateKey).
		SetUsername(r.cfg.PrivateKey).
		SetCleanSession(true).
		SetAutoReconnect(false).
		SetConnectTimeout(connectTimeout).
		SetKeepAlive(60 * time.Second).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			r.post(event{kind: evConnLost, gen: gen, err: err})
		})

	client := paho.NewClient(opts)
	r.mu.Lock()
	r.client = client
	r.mu.Unlock()

	go func() {
		token := client.Connect()
		if !token.WaitTimeout(connectTimeout + time.Second) {
			r.post(event{kind: evConnLost, gen: gen, err: fmt.Errorf("connect timed out")})
			return
		}
		if err := token.Error(); err != nil {
			r.post(event{kind: evConnLost, gen: gen, err: err})
			return
		}
		r.post(event{kind: evConnected, gen: gen})
	}()
}

func (r *Relay) onConnLost(err error) {
	logger.Warning("mqtt relay connection lost:", err)
	r.teardownClient()

	if !r.cfg.Enabled {
		r.setState(Disconnected, err)
		return
	}
	if isAuthErr(err) {
		// Bad private key: surface it and wait for a config change instead
		// of hammering the broker.
		logger.Error("mqtt relay authentication rejected, check the private key")
		r.setState(Disconnected, err)
		return
	}

	r.setState(Reconnecting, err)
	gen := r.gen
	d := r.backoff
	r.backoff = nextBackoff(r.backoff)
	if r.retryTimer != nil {
		r.retryTimer.Stop()
	}
	r.retryTimer = time.AfterFunc(d, func() {
		r.post(event{kind: evRetry, gen: gen})
	})
}

func nextBackoff(d time.Duration) time.Duration {
	d *= 2
	if d > maxBackoff {
		d = maxBackoff
	}
	return d
}

func isAuthErr(err error) bool {
	return err == packets.ErrorRefusedBadUsernameOrPassword ||
		err == packets.ErrorRefusedNotAuthorised ||
		err == packets.ErrorRefusedIDRejected
}

// syncSubscriptions diffs desired topics against current subscriptions.
func (r *Relay) syncSubscriptions() {
	if r.client == nil || !r.client.IsConnected() {
		return
	}
	r.setState(Subscribing, nil)

	desired := make(map[string]struct{}, len(r.desired))
	for _, t := range r.desired {
		if t != "" {
			desired[t] = struct{}{}
		}
	}

	for t := range r.subscribed {
		if _, ok := desired[t]; ok {
			continue
		}
		if token := r.client.Unsubscribe(t); token.WaitTimeout(tokenTimeout) && token.Error() == nil {
			logger.Info("mqtt relay unsubscribed from", t)
		}
		delete(r.subscribed, t)
	}

	for t := range desired {
		if _, ok := r.subscribed[t]; ok {
			continue
		}
		topic := t
		token := r.client.Subscribe(topic, 1, func(_ paho.Client, msg paho.Message) {
			r.post(event{kind: evMessage, topic: msg.Topic(), payload: string(msg.Payload())})
		})
		if token.WaitTimeout(tokenTimeout) && token.Error() == nil {
			r.subscribed[topic] = struct{}{}
			logger.Info("mqtt relay subscribed to", topic)
		} else {
			logger.Warning("mqtt relay subscribe failed for", topic, token.Error())
		}
	}

	r.setState(Subscribed, nil)
}

// dispatch classifies an inbound payload and runs the command on a worker
// goroutine so a slow device call never blocks the relay loop. Repeated
// open commands each trigger an independent unlock attempt.
func (r *Relay) dispatch(topic, payload string) {
	cmd := ParseCommand(payload)
	logger.Infof("mqtt relay message on %s: %q -> %s", topic, payload, cmd)

	switch cmd {
	case CommandOpen:
		go func() {
			defer common.Recover("mqtt relay unlock command")
			msg, ok := r.handler.Unlock(topic)
			if ok {
				// Strike relocks on its own, acknowledge as closed.
				r.publish(ResponseTopic(topic), "off")
			} else {
				logger.Warningf("relay unlock for topic %s failed: %s", topic, msg)
			}
		}()
	case CommandClose:
		// No lock command exists on the hardware; advisory ack only.
		go func() {
			defer common.Recover("mqtt relay close command")
			r.publish(ResponseTopic(topic), "off")
		}()
	case CommandStatus:
		go func() {
			defer common.Recover("mqtt relay status command")
			online, known := r.handler.Status(topic)
			if !known {
				logger.Warning("relay status request for unknown topic", topic)
				return
			}
			if online {
				r.publish(ResponseTopic(topic), "on")
			} else {
				r.publish(ResponseTopic(topic), "off")
			}
		}()
	default:
		logger.Debugf("mqtt relay dropping unknown payload %q on %s", payload, topic)
	}
}

func (r *Relay) publish(topic, payload string) {
	r.mu.RLock()
	client := r.client
	r.mu.RUnlock()
	if client == nil || !client.IsConnected() {
		return
	}
	token := client.Publish(topic, 1, false, payload)
	if token.WaitTimeout(tokenTimeout) && token.Error() != nil {
		logger.Warning("mqtt relay publish failed:", token.Error())
	}
}

func (r *Relay) teardownClient() {
	if r.retryTimer != nil {
		r.retryTimer.Stop()
		r.retryTimer = nil
	}
	if r.client != nil {
		if r.client.IsConnected() {
			r.client.Disconnect(250)
		}
		r.mu.Lock()
		r.client = nil
		r.mu.Unlock()
	}
	r.subscribed = make(map[string]struct{})
}

func (r *Relay) disconnect() {
	r.gen++
	r.teardownClient()
	r.backoff = minBackoff
}
