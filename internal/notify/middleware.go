package notify

import "github.com/gin-gonic/gin"

// InjectClientMiddleware makes the webhook client reachable from request
// contexts, so handlers can emit ops events without extra plumbing.
func InjectClientMiddleware(c *Client) gin.HandlerFunc {
	return func(gc *gin.Context) {
		if c != nil && gc.Request != nil {
			gc.Request = gc.Request.WithContext(WithClient(gc.Request.Context(), c))
		}
		gc.Next()
	}
}

func ClientFromGin(gc *gin.Context) *Client {
	if gc == nil || gc.Request == nil {
		return nil
	}
	return ClientFromContext(gc.Request.Context())
}
