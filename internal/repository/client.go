package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/cloudwego/hertz/pkg/app/client"
	"github.com/cloudwego/hertz/pkg/protocol"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/mbeoliero/kit/log"

	"github.com/mbeoliero/chatsync/pkg/errcode"
)

// Client is a thin hertz client for the backend REST API
type Client struct {
	baseURL    string
	httpClient *client.Client
	token      string
}

// ClientOption is a function to configure the client
type ClientOption func(*Client)

// WithToken sets the authentication token
func WithToken(token string) ClientOption {
	return func(c *Client) {
		c.token = token
	}
}

// NewClient creates a new REST client
func NewClient(baseURL string, requestTimeout time.Duration, opts ...ClientOption) (*Client, error) {
	if requestTimeout <= 0 {
		requestTimeout = 30 * time.Second
	}
	httpClient, err := client.NewClient(
		client.WithDialTimeout(10*time.Second),
		client.WithClientReadTimeout(requestTimeout),
		client.WithWriteTimeout(requestTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http client: %w", err)
	}

	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// do sends req and decodes the {code,msg,data} envelope into result
func (c *Client) do(ctx context.Context, req *protocol.Request, result interface{}) error {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp := &protocol.Response{}
	if err := c.httpClient.Do(ctx, req, resp); err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}

	var apiResp Response
	if err := json.Unmarshal(resp.Body(), &apiResp); err != nil {
		switch resp.StatusCode() {
		case consts.StatusUnauthorized:
			return errcode.ErrUnauthorized.Wrap(err)
		case consts.StatusNotFound:
			return errcode.ErrNotFound.Wrap(err)
		}
		return fmt.Errorf("failed to decode response: http %d: %w", resp.StatusCode(), err)
	}

	if apiResp.Code != 0 {
		log.CtxDebug(ctx, "api error: uri=%s, code=%d, msg=%s", string(req.RequestURI()), apiResp.Code, apiResp.Msg)
		return errcode.New(apiResp.Code, apiResp.Msg)
	}

	if result != nil && len(apiResp.Data) > 0 && string(apiResp.Data) != "null" {
		if err := json.Unmarshal(apiResp.Data, result); err != nil {
			return fmt.Errorf("failed to decode response data: %w", err)
		}
	}

	return nil
}

// get makes a GET request with query parameters
func (c *Client) get(ctx context.Context, path string, params url.Values, result interface{}) error {
	reqURL := c.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	req := &protocol.Request{}
	req.SetMethod(consts.MethodGet)
	req.SetRequestURI(reqURL)

	return c.do(ctx, req, result)
}

// post makes a POST request with a JSON body
func (c *Client) post(ctx context.Context, path string, body interface{}, result interface{}) error {
	req := &protocol.Request{}
	req.SetMethod(consts.MethodPost)
	req.SetRequestURI(c.baseURL + path)
	req.Header.Set("Content-Type", consts.MIMEApplicationJSON)

	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		req.SetBody(jsonBody)
	}

	return c.do(ctx, req, result)
}
