// Package vto implements the HTTP control client for VTO door stations.
//
// The device exposes a JSON-RPC style API on port 80: a two-step MD5
// challenge/response login on /RPC2_Login followed by method calls on /RPC2.
// An unlock is login -> accessControl.factory.instance ->
// accessControl.openDoor -> accessControl.destroy -> global.logout.
// The handshake lives behind Login so a different firmware scheme can
// replace it without touching callers.
package vto

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const (
	defaultPort    = 80
	requestTimeout = 10 * time.Second

	// Remote unlock identity sent with accessControl.openDoor.
	defaultShortNumber = "04001010001"
)

// Result is the outcome of an unlock attempt. Failures carry a
// human-readable reason, never a raised fault.
type Result struct {
	Success bool   `json:"success"`
	Msg     string `json:"msg"`
}

// Status is the outcome of a best-effort device probe.
type Status struct {
	Online bool `json:"online"`
}

// Client talks to a single door station. It is not safe for concurrent use;
// create one per logical operation. Credentials are held only for the
// lifetime of the client and are never logged.
type Client struct {
	host     string
	username string
	password string

	http    *http.Client
	session json.RawMessage
	reqID   int
}

// NewClient creates a client for the device at host. Host may carry an
// explicit port, otherwise 80 is assumed.
func NewClient(host, username, password string) *Client {
	if !strings.Contains(host, ":") {
		host = fmt.Sprintf("%s:%d", host, defaultPort)
	}
	return &Client{
		host:     host,
		username: username,
		password: password,
		http:     &http.Client{Timeout: requestTimeout},
		session:  json.RawMessage("0"),
		reqID:    1000,
	}
}

type rpcRequest struct {
	Method  string          `json:"method"`
	Params  any             `json:"params,omitempty"`
	Object  json.RawMessage `json:"object,omitempty"`
	Id      int             `json:"id"`
	Session json.RawMessage `json:"session"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	Id      int             `json:"id"`
	Session json.RawMessage `json:"session"`
	Result  json.RawMessage `json:"result"`
	Params  json.RawMessage `json:"params"`
	Error   *rpcError       `json:"error"`
}

// resultBool reports whether the result field is the JSON literal true.
func (r *rpcResponse) resultBool() bool {
	var ok bool
	if err := json.Unmarshal(r.Result, &ok); err != nil {
		return false
	}
	return ok
}

type loginParams struct {
	UserName      string `json:"userName"`
	Password      string `json:"password"`
	ClientType    string `json:"clientType"`
	Realm         string `json:"realm,omitempty"`
	Random        string `json:"random,omitempty"`
	PasswordType  string `json:"passwordType,omitempty"`
	AuthorityType string `json:"authorityType,omitempty"`
}

type loginChallenge struct {
	Realm      string `json:"realm"`
	Random     string `json:"random"`
	Encryption string `json:"encryption"`
}

func (c *Client) loginURL() string {
	return fmt.Sprintf("http://%s/RPC2_Login", c.host)
}

func (c *Client) rpcURL() string {
	return fmt.Sprintf("http://%s/RPC2", c.host)
}

func (c *Client) nextID() int {
	c.reqID++
	return c.reqID
}

// call posts one RPC request and decodes the response, classifying
// transport and shape failures.
func (c *Client) call(ctx context.Context, url string, req *rpcRequest) (*rpcResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnknown, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnknown, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrProtocol, resp.StatusCode)
	}

	out := &rpcResponse{}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProtocol, err)
	}
	return out, nil
}

// Login performs the challenge/response handshake and stores the session
// for subsequent calls.
func (c *Client) Login(ctx context.Context) error {
	first := &rpcRequest{
		Method: "global.login",
		Params: loginParams{
			UserName:   c.username,
			Password:   "",
			ClientType: "GUI",
		},
		Id:      c.nextID(),
		Session: json.RawMessage("0"),
	}

	resp, err := c.call(ctx, c.loginURL(), first)
	if err != nil {
		return err
	}
	if len(resp.Session) > 0 {
		c.session = resp.Session
	}
	if resp.resultBool() {
		// Device accepted the login without a password round.
		return nil
	}

	var ch loginChallenge
	if err := json.Unmarshal(resp.Params, &ch); err != nil || ch.Random == "" {
		return fmt.Errorf("%w: malformed login challenge", ErrProtocol)
	}

	second := &rpcRequest{
		Method: "global.login",
		Params: loginParams{
			UserName:      c.username,
			Password:      passwordDigest(c.username, c.password, ch.Realm, ch.Random),
			ClientType:    "GUI",
			Realm:         ch.Realm,
			Random:        ch.Random,
			PasswordType:  "Default",
			AuthorityType: ch.Encryption,
		},
		Id:      c.nextID(),
		Session: c.session,
	}

	resp, err = c.call(ctx, c.loginURL(), second)
	if err != nil {
		return err
	}
	if len(resp.Session) > 0 {
		c.session = resp.Session
	}
	if !resp.resultBool() {
		if resp.Error != nil && resp.Error.Message != "" {
			return fmt.Errorf("%w: %s", ErrAuth, resp.Error.Message)
		}
		return ErrAuth
	}
	return nil
}

// passwordDigest computes the two-stage MD5 digest the firmware expects:
// MD5(user:realm:password) uppercased, then MD5(user:random:stage1) uppercased.
func passwordDigest(user, password, realm, random string) string {
	h1 := md5Upper(user + ":" + realm + ":" + password)
	return md5Upper(user + ":" + random + ":" + h1)
}

func md5Upper(s string) string {
	sum := md5.Sum([]byte(s))
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}

// doorInstance obtains the access-control object handle for channel 0.
func (c *Client) doorInstance(ctx context.Context) (json.RawMessage, error) {
	req := &rpcRequest{
		Method:  "accessControl.factory.instance",
		Params:  map[string]any{"channel": 0},
		Id:      c.nextID(),
		Session: c.session,
	}
	resp, err := c.call(ctx, c.rpcURL(), req)
	if err != nil {
		return nil, err
	}
	if len(resp.Result) == 0 || string(resp.Result) == "null" {
		if resp.Error != nil && resp.Error.Message != "" {
			return nil, fmt.Errorf("%w: %s", ErrProtocol, resp.Error.Message)
		}
		return nil, fmt.Errorf("%w: no door handle", ErrProtocol)
	}
	return resp.Result, nil
}

// openDoor releases the strike on the given door handle.
func (c *Client) openDoor(ctx context.Context, handle json.RawMessage) error {
	req := &rpcRequest{
		Method: "accessControl.openDoor",
		Object: handle,
		Params: map[string]any{
			"DoorIndex":   0,
			"ShortNumber": defaultShortNumber,
			"Type":        "Remote",
		},
		Id:      c.nextID(),
		Session: c.session,
	}
	resp, err := c.call(ctx, c.rpcURL(), req)
	if err != nil {
		return err
	}
	if !resp.resultBool() {
		if resp.Error != nil && resp.Error.Message != "" {
			return fmt.Errorf("%w: %s", ErrUnknown, resp.Error.Message)
		}
		return fmt.Errorf("%w: unlock rejected", ErrUnknown)
	}
	return nil
}

// destroyDoor releases the door handle, best effort.
func (c *Client) destroyDoor(ctx context.Context, handle json.RawMessage) {
	req := &rpcRequest{
		Method:  "accessControl.destroy",
		Object:  handle,
		Id:      c.nextID(),
		Session: c.session,
	}
	_, _ = c.call(ctx, c.rpcURL(), req)
}

// logout terminates the device session, best effort.
func (c *Client) logout(ctx context.Context) {
	req := &rpcRequest{
		Method:  "global.logout",
		Id:      c.nextID(),
		Session: c.session,
	}
	_, _ = c.call(ctx, c.rpcURL(), req)
}

// reset drops session state so a retry starts from a fresh login.
func (c *Client) reset() {
	c.session = json.RawMessage("0")
}

// unlockFlow runs the full unlock sequence against a logged-out client.
func (c *Client) unlockFlow(ctx context.Context) error {
	if err := c.Login(ctx); err != nil {
		return err
	}
	defer c.logout(ctx)

	handle, err := c.doorInstance(ctx)
	if err != nil {
		return err
	}
	defer c.destroyDoor(ctx, handle)

	return c.openDoor(ctx, handle)
}

// Unlock performs an authenticated unlock. Transient network failures are
// retried once with a fresh login while the context still has budget; all
// other failures are final. The outcome is always a Result, never a panic
// or a propagated fault.
func (c *Client) Unlock(ctx context.Context) Result {
	err := c.unlockFlow(ctx)
	if err != nil && errors.Is(err, ErrNetwork) && ctx.Err() == nil {
		c.reset()
		err = c.unlockFlow(ctx)
	}
	if err != nil {
		return Result{Success: false, Msg: err.Error()}
	}
	return Result{Success: true, Msg: "unlocked"}
}

// QueryStatus probes the device with a login round trip. Any failure maps
// to offline; it never returns an error.
func (c *Client) QueryStatus(ctx context.Context) Status {
	if err := c.Login(ctx); err != nil {
		return Status{Online: false}
	}
	c.logout(ctx)
	return Status{Online: true}
}
