package gateway

import (
	"context"
	"net/http"
)

const AuthExpiryInterceptor = "auth-expiry"

// SessionEnder ends the session a rejected request was sent with.
type SessionEnder interface {
	Expire(ctx context.Context, token string) (bool, error)
}

// InstallAuthExpiry installs the process-wide 401 policy on c. It reports
// false when the policy was already installed. Only the session whose token
// the rejected request was sent with is ever ended; a 401 on a tokenless or
// superseded request still fails with AuthExpiredError but leaves the current
// session alone.
func InstallAuthExpiry(c *Client, sessions SessionEnder) bool {
	return c.Install(AuthExpiryInterceptor, func(ctx context.Context, resp *Response) error {
		if resp.Status != http.StatusUnauthorized {
			return nil
		}
		ended, err := sessions.Expire(ctx, resp.Token)
		if err != nil {
			c.log.Error("end expired session failed", "path", resp.Path, "error", err)
		}
		return &AuthExpiredError{Ended: ended}
	})
}
