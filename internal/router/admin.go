package router

import (
	"context"
)

// BroadcastText sends text verbatim to every registered identity except from.
// It returns the number of successful deliveries.
func (r *Router) BroadcastText(ctx context.Context, from, text string) int {
	data := []byte(text)
	delivered := 0
	for _, id := range r.reg.Identities() {
		if id == from {
			continue
		}
		if r.deliver(ctx, id, data) {
			delivered++
		}
	}
	return delivered
}

// SendText sends text verbatim to one identity. An offline target yields a
// *registry.DeliveryError wrapping registry.ErrNotConnected.
func (r *Router) SendText(ctx context.Context, to, text string) error {
	err := r.reg.Deliver(ctx, to, []byte(text))
	if err != nil {
		r.log.Debug("admin send failed", "user_id", to, "err", err)
	}
	return err
}

// Online lists the registered identities in registration order.
func (r *Router) Online() []string {
	return r.reg.Identities()
}
