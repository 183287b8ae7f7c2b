package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/pkg/errors"

	"github.com/chinmay1088/odyssey-core/chains"
)

// maxBody caps how much of a provider response is read.
const maxBody = 8 << 20

// Call performs a JSON-RPC 2.0 call against endpoint and decodes the result
// into result. A JSON-RPC error object is returned as *RPCError; a body that
// is not a valid envelope is wrapped in chains.ErrMalformedResponse.
func (c *Client) Call(ctx context.Context, endpoint, method string, params []interface{}, result interface{}) error {
	if params == nil {
		params = []interface{}{}
	}
	payload, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      c.requestID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return errors.Wrap(err, "failed to marshal request")
	}

	body, err := c.do(ctx, http.MethodPost, endpoint, "application/json", payload)
	if err != nil {
		// bitcoind answers RPC errors with a 500 and a valid envelope
		var httpErr *HTTPError
		if !errors.As(err, &httpErr) || !strings.HasPrefix(strings.TrimSpace(httpErr.Body), "{") {
			return errors.Wrapf(err, "%s", method)
		}
		body = []byte(httpErr.Body)
	}

	var resp rpcResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return chains.Wrap(chains.ErrMalformedResponse, errors.Wrapf(err, "%s: failed to parse response", method))
	}
	if resp.Error != nil {
		return resp.Error
	}
	if result == nil {
		return nil
	}
	if len(resp.Result) == 0 {
		return chains.Wrap(chains.ErrMalformedResponse, errors.Errorf("%s: no result in response", method))
	}
	if err := json.Unmarshal(resp.Result, result); err != nil {
		return chains.Wrap(chains.ErrMalformedResponse, errors.Wrapf(err, "%s: failed to parse result", method))
	}
	return nil
}

// getJSON fetches url and decodes the JSON body into out.
func (c *Client) getJSON(ctx context.Context, url string, out interface{}) error {
	body, err := c.do(ctx, http.MethodGet, url, "", nil)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return chains.Wrap(chains.ErrMalformedResponse, errors.Wrapf(err, "failed to parse response from %s", url))
	}
	return nil
}

// getText fetches url and returns the trimmed body.
func (c *Client) getText(ctx context.Context, url string) (string, error) {
	body, err := c.do(ctx, http.MethodGet, url, "", nil)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(body)), nil
}

func (c *Client) do(ctx context.Context, method, url, contentType string, payload []byte) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "failed to send request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, errors.Wrap(err, "failed to read response")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}
