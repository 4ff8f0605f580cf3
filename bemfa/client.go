// Package bemfa implements the Bemfa cloud HTTP API client. The MQTT relay
// carries the live command channel; this API manages the topic registry on
// the cloud side and pushes device state changes (with an optional WeChat
// notification) after an unlock.
package bemfa

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const (
	defaultAPIBase = "https://apis.bemfa.com"
	defaultProBase = "https://pro.bemfa.com"

	// typeMQTT selects MQTT-protocol topics in every API call.
	typeMQTT = 1

	codeOK = 0
	// codeTopicExists is returned by createTopic for an already registered
	// topic; callers treat it as success.
	codeTopicExists = 40006

	requestTimeout = 30 * time.Second
)

// Topic is one cloud-side topic registration.
type Topic struct {
	Topic string `json:"topic"`
	Name  string `json:"name"`
}

type apiResponse struct {
	Code    int     `json:"code"`
	Message string  `json:"message"`
	Data    []Topic `json:"data"`
}

// Client talks to the Bemfa cloud HTTP API. The zero value is not usable;
// construct with NewClient.
type Client struct {
	http    *http.Client
	apiBase string
	proBase string
}

func NewClient() *Client {
	return &Client{
		http:    &http.Client{Timeout: requestTimeout},
		apiBase: defaultAPIBase,
		proBase: defaultProBase,
	}
}

// AllTopics lists every MQTT topic registered under the private key.
func (c *Client) AllTopics(ctx context.Context, uid string) ([]Topic, error) {
	q := url.Values{}
	q.Set("uid", uid)
	q.Set("type", strconv.Itoa(typeMQTT))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiBase+"/va/alltopic?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// CreateTopic registers a topic with a display name. An already existing
// topic is not an error.
func (c *Client) CreateTopic(ctx context.Context, uid, topic, name string) error {
	body := map[string]any{
		"uid":   uid,
		"topic": topic,
		"type":  typeMQTT,
	}
	if name != "" {
		body["name"] = name
	}
	_, err := c.postJSON(ctx, c.proBase+"/v1/createTopic", body)
	return err
}

// ModifyTopicName updates the display name of an existing topic.
func (c *Client) ModifyTopicName(ctx context.Context, uid, topic, name string) error {
	_, err := c.postJSON(ctx, c.apiBase+"/va/modifyName", map[string]any{
		"uid":   uid,
		"topic": topic,
		"type":  typeMQTT,
		"name":  name,
	})
	return err
}

// DeleteTopic removes a topic registration.
func (c *Client) DeleteTopic(ctx context.Context, uid, topic string) error {
	_, err := c.postJSON(ctx, c.proBase+"/v1/deleteTopic", map[string]any{
		"uid":   uid,
		"topic": topic,
		"type":  typeMQTT,
	})
	return err
}

// SendStatusMessage pushes a state payload for a topic; wemsg, when set,
// additionally triggers a WeChat notification to the account owner.
func (c *Client) SendStatusMessage(ctx context.Context, uid, topic, msg, wemsg string) error {
	body := map[string]any{
		"uid":   uid,
		"topic": topic,
		"type":  typeMQTT,
		"msg":   msg,
	}
	if wemsg != "" {
		body["wemsg"] = wemsg
	}
	_, err := c.postJSON(ctx, c.apiBase+"/va/postJsonMsg", body)
	return err
}

func (c *Client) postJSON(ctx context.Context, url string, body map[string]any) (*apiResponse, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	return c.do(req)
}

func (c *Client) do(req *http.Request) (*apiResponse, error) {
	httpResp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("bemfa api status %d", httpResp.StatusCode)
	}
	resp := &apiResponse{}
	if err := json.NewDecoder(httpResp.Body).Decode(resp); err != nil {
		return nil, fmt.Errorf("bemfa api: %w", err)
	}
	if resp.Code != codeOK && resp.Code != codeTopicExists {
		return nil, fmt.Errorf("bemfa api code %d: %s", resp.Code, resp.Message)
	}
	return resp, nil
}
