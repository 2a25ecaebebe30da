package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
)

// DoJSON executes the request and decodes the 2xx response body into
// out. Pass a nil out to discard the body. The request body, when
// given as reqBody, is JSON-encoded.
func (c *Client) DoJSON(ctx context.Context, req Request, reqBody, out any) error {
	if reqBody != nil {
		data, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("httpapi: encoding request body: %w", err)
		}

		req.Body = bytes.NewReader(data)
	}

	resp, err := c.Do(ctx, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("httpapi: decoding response: %w", err)
	}

	return nil
}
