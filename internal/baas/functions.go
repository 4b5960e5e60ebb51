package baas

import (
	"context"
	"net/http"
	"net/url"
)

// Invoke calls a serverless function with a JSON body and decodes the JSON
// answer into out (which may be nil).
func (c *Client) Invoke(ctx context.Context, token, name string, body, out any) error {
	return c.do(ctx, request{
		kind:   "functions",
		method: http.MethodPost,
		path:   "/functions/v1/" + url.PathEscape(name),
		token:  token,
		body:   body,
	}, out)
}
