package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// drainClose fully reads and closes a response body so the underlying
// connection can be reused.
func drainClose(body io.ReadCloser) {
	io.Copy(io.Discard, body)
	body.Close()
}

// getJSON performs a GET request and decodes the JSON response into result.
// Returns the HTTP status code; callers map expected non-2xx codes to
// sentinel errors.
func (c *Client) getJSON(path string, result any) (int, error) {
	resp, err := c.http.Get(c.baseURL + path)
	if err != nil {
		return 0, fmt.Errorf("GET %s:\n%w", path, err)
	}
	defer drainClose(resp.Body)

	if resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return resp.StatusCode, fmt.Errorf("decode GET %s response:\n%w", path, err)
		}
	}

	return resp.StatusCode, nil
}

// postJSON performs a POST request with an optional JSON body and decodes
// the JSON response into result. Returns the HTTP status code.
func (c *Client) postJSON(path string, body, result any) (int, error) {
	var reader io.Reader

	if body != nil {
		jsonBytes, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("marshal POST %s body:\n%w", path, err)
		}
		reader = bytes.NewReader(jsonBytes)
	} else {
		reader = bytes.NewReader([]byte("{}"))
	}

	resp, err := c.http.Post(c.baseURL+path, "application/json", reader)
	if err != nil {
		return 0, fmt.Errorf("POST %s:\n%w", path, err)
	}
	defer drainClose(resp.Body)

	if resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return resp.StatusCode, fmt.Errorf("decode POST %s response:\n%w", path, err)
		}
	}

	return resp.StatusCode, nil
}
