package middleware

import tele "gopkg.in/telebot.v4"

// OwnerOptions defines how owner-only checks behave.
type OwnerOptions struct {
	IsOwner  func(userID int64) bool
	OnReject tele.HandlerFunc
}

// OwnerOnlyMiddleware lets only owners reach downstream handlers.
func OwnerOnlyMiddleware(opts OwnerOptions) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			u := c.Sender()
			if opts.IsOwner == nil || u == nil || !opts.IsOwner(u.ID) {
				if opts.OnReject != nil {
					return opts.OnReject(c)
				}
				return nil
			}
			return next(c)
		}
	}
}
