package stdio

import (
	"context"
	"os/user"
	"time"

	"github.com/mcp-obs/mcp-server-go/auth"
)

// UserProvider provides a string user ID to associate with the stdio peer
// when tokens are not validated.
type UserProvider interface {
	CurrentUserID() (string, error)
}

// OSUserProvider resolves the user ID using the operating system's current user.
// The returned ID is user.Username when available; falling back to user.Uid.
type OSUserProvider struct{}

func (OSUserProvider) CurrentUserID() (string, error) {
	u, err := user.Current()
	if err != nil {
		return "", err
	}
	if u.Username != "" {
		return u.Username, nil
	}
	return u.Uid, nil
}

// localClientID marks identities derived from the local process rather than
// a token.
const localClientID = "stdio-local"

// localIdentity attaches the OS user as the caller. It stands in for the
// auth middleware when none is configured.
func localIdentity(up UserProvider) auth.HandlerMiddleware {
	return func(next auth.Handler) auth.Handler {
		return func(ctx context.Context, req *auth.Request) (any, error) {
			id, err := up.CurrentUserID()
			if err != nil || id == "" {
				id = "unknown"
			}
			ac := &auth.AuthContext{
				UserID:    id,
				Email:     "unknown",
				Scopes:    []string{},
				ClientID:  localClientID,
				ExpiresAt: time.Now().Add(time.Hour).UnixMilli(),
			}
			return next(auth.WithAuthContext(ctx, ac), req)
		}
	}
}
