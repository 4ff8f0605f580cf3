package mqtt

import (
	"errors"
	"io"
	"net"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/vtolink/vto-panel/logger"

	"github.com/eclipse/paho.mqtt.golang/packets"
	"github.com/op/go-logging"
)

func TestMain(m *testing.M) {
	logger.InitLogger(logging.DEBUG)
	os.Exit(m.Run())
}

type nopHandler struct{}

func (nopHandler) Unlock(topic string) (string, bool) { return "", false }
func (nopHandler) Status(topic string) (bool, bool)   { return false, false }

// funcHandler lets a test observe the commands the relay dispatches.
type funcHandler struct {
	unlock func(topic string) (string, bool)
	status func(topic string) (bool, bool)
}

func (h funcHandler) Unlock(topic string) (string, bool) {
	if h.unlock != nil {
		return h.unlock(topic)
	}
	return "", false
}

func (h funcHandler) Status(topic string) (bool, bool) {
	if h.status != nil {
		return h.status(topic)
	}
	return false, false
}

// startFakeBroker accepts TCP connections and answers the MQTT CONNECT
// with a successful CONNACK, enough for the client to consider itself
// connected.
func startFakeBroker(t *testing.T) (string, int) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				buf := make([]byte, 1024)
				if _, err := c.Read(buf); err != nil {
					return
				}
				c.Write([]byte{0x20, 0x02, 0x00, 0x00})
				io.Copy(io.Discard, c)
			}(conn)
		}
	}()

	host, portStr, _ := net.SplitHostPort(ln.Addr().String())
	port, _ := strconv.Atoi(portStr)
	return host, port
}

// deadPort returns a port nothing listens on.
func deadPort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	_, portStr, _ := net.SplitHostPort(ln.Addr().String())
	ln.Close()
	port, _ := strconv.Atoi(portStr)
	return port
}

func TestNextBackoff(t *testing.T) {
	tests := []struct {
		in       time.Duration
		expected time.Duration
	}{
		{1 * time.Second, 2 * time.Second},
		{2 * time.Second, 4 * time.Second},
		{8 * time.Second, 16 * time.Second},
		{16 * time.Second, 30 * time.Second},
		{30 * time.Second, 30 * time.Second},
	}
	for _, tc := range tests {
		if got := nextBackoff(tc.in); got != tc.expected {
			t.Errorf("nextBackoff(%v) = %v, expected %v", tc.in, got, tc.expected)
		}
	}
}

func TestStateString(t *testing.T) {
	tests := []struct {
		state    State
		expected string
	}{
		{Disconnected, "disconnected"},
		{Connecting, "connecting"},
		{Connected, "connected"},
		{Subscribing, "subscribing"},
		{Subscribed, "subscribed"},
		{Reconnecting, "reconnecting"},
		{State(99), "unknown"},
	}
	for _, tc := range tests {
		if got := tc.state.String(); got != tc.expected {
			t.Errorf("State(%d).String() = %q, expected %q", tc.state, got, tc.expected)
		}
	}
}

func TestIsAuthErr(t *testing.T) {
	if !isAuthErr(packets.ErrorRefusedBadUsernameOrPassword) {
		t.Error("bad username/password not classified as auth error")
	}
	if !isAuthErr(packets.ErrorRefusedNotAuthorised) {
		t.Error("not authorised not classified as auth error")
	}
	if !isAuthErr(packets.ErrorRefusedIDRejected) {
		t.Error("id rejected not classified as auth error")
	}
	if isAuthErr(errors.New("connection refused")) {
		t.Error("plain network error classified as auth error")
	}
	if isAuthErr(nil) {
		t.Error("nil classified as auth error")
	}
}

func waitForState(t *testing.T, r *Relay, expected State) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if r.State() == expected {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("relay never reached %v, stuck at %v", expected, r.State())
}

func TestRelayStaysDisconnectedWhenDisabled(t *testing.T) {
	r := NewRelay(nopHandler{})
	defer r.Shutdown()

	r.Apply(Config{Enabled: false})
	waitForState(t, r, Disconnected)
	if err := r.LastErr(); err != nil {
		t.Errorf("disabled relay carries an error: %v", err)
	}
}

func TestRelayIgnoresEnabledWithoutKey(t *testing.T) {
	r := NewRelay(nopHandler{})
	defer r.Shutdown()

	r.Apply(Config{Enabled: true, Broker: "bemfa.com", Port: 9501})
	waitForState(t, r, Disconnected)
}

func TestRelayShutdownStopsLoop(t *testing.T) {
	r := NewRelay(nopHandler{})
	done := make(chan struct{})
	go func() {
		r.Shutdown()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Shutdown did not return")
	}
}

func TestConfigAddr(t *testing.T) {
	cfg := Config{Broker: "bemfa.com", Port: 9501}
	if got := cfg.addr(); got != "tcp://bemfa.com:9501" {
		t.Errorf("addr() = %q", got)
	}
}

func TestRelayConnectsToBroker(t *testing.T) {
	host, port := startFakeBroker(t)

	r := NewRelay(nopHandler{})
	defer r.Shutdown()

	r.Apply(Config{Enabled: true, PrivateKey: "key", Broker: host, Port: port})
	waitForState(t, r, Subscribed)
}

// A config change arriving while the relay waits out a retry backoff must
// cause a dial of the new broker instead of leaving the relay parked in
// Reconnecting with no pending timer.
func TestRelayRedialsAfterConfigChangeDuringBackoff(t *testing.T) {
	host, port := startFakeBroker(t)

	r := NewRelay(nopHandler{})
	defer r.Shutdown()

	r.Apply(Config{Enabled: true, PrivateKey: "key", Broker: "127.0.0.1", Port: deadPort(t)})
	waitForState(t, r, Reconnecting)

	r.Apply(Config{Enabled: true, PrivateKey: "key", Broker: host, Port: port})
	waitForState(t, r, Subscribed)
}

func TestDispatchStatusCommand(t *testing.T) {
	queried := make(chan string, 1)
	r := NewRelay(funcHandler{status: func(topic string) (bool, bool) {
		queried <- topic
		return true, true
	}})
	defer r.Shutdown()

	r.post(event{kind: evMessage, topic: "vto001", payload: "状态"})

	select {
	case topic := <-queried:
		if topic != "vto001" {
			t.Errorf("status handler got topic %q", topic)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("status command never reached the handler")
	}
}

func TestDispatchUnlockCommand(t *testing.T) {
	unlocked := make(chan string, 1)
	r := NewRelay(funcHandler{unlock: func(topic string) (string, bool) {
		unlocked <- topic
		return "", true
	}})
	defer r.Shutdown()

	r.post(event{kind: evMessage, topic: "vto002", payload: "打开"})

	select {
	case topic := <-unlocked:
		if topic != "vto002" {
			t.Errorf("unlock handler got topic %q", topic)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("open command never reached the handler")
	}
}

// Two open commands in a row must run as independent unlock attempts, not
// queue behind each other.
func TestDispatchOpensRunConcurrently(t *testing.T) {
	entered := make(chan struct{}, 2)
	release := make(chan struct{})
	r := NewRelay(funcHandler{unlock: func(string) (string, bool) {
		entered <- struct{}{}
		<-release
		return "", true
	}})
	defer r.Shutdown()
	defer close(release)

	r.post(event{kind: evMessage, topic: "vto001", payload: "open"})
	r.post(event{kind: evMessage, topic: "vto001", payload: "open"})

	for i := 0; i < 2; i++ {
		select {
		case <-entered:
		case <-time.After(2 * time.Second):
			t.Fatal("second unlock queued behind the first")
		}
	}
}

func TestDispatchIgnoresUnknownPayload(t *testing.T) {
	called := make(chan struct{}, 2)
	r := NewRelay(funcHandler{
		unlock: func(string) (string, bool) {
			called <- struct{}{}
			return "", true
		},
		status: func(string) (bool, bool) {
			called <- struct{}{}
			return true, true
		},
	})
	defer r.Shutdown()

	r.post(event{kind: evMessage, topic: "vto001", payload: "gibberish"})

	select {
	case <-called:
		t.Error("unknown payload dispatched a command")
	case <-time.After(200 * time.Millisecond):
	}
}

// A panicking handler must not take the relay down.
func TestDispatchSurvivesHandlerPanic(t *testing.T) {
	calls := make(chan struct{}, 2)
	r := NewRelay(funcHandler{status: func(string) (bool, bool) {
		calls <- struct{}{}
		panic("device registry unavailable")
	}})
	defer r.Shutdown()

	for i := 0; i < 2; i++ {
		r.post(event{kind: evMessage, topic: "vto001", payload: "status"})
		select {
		case <-calls:
		case <-time.After(2 * time.Second):
			t.Fatalf("dispatch %d never ran", i+1)
		}
	}
}
