package devices

import (
	"context"
	"fmt"
	"time"

	"github.com/sidereal-labs/opskit/internal/retry"
)

// CommandSender issues a command to a power strip controller and
// returns the decoded reply.
type CommandSender interface {
	Send(ctx context.Context, command string) (map[string]any, error)
}

// Outlet is the state of one power strip outlet.
type Outlet struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	State bool   `json:"state"`
}

// NPS is a client for a network power strip.
type NPS struct {
	name    string
	sender  CommandSender
	retrier retry.Retrier
}

// NewNPS creates a power strip client.
func NewNPS(name string, sender CommandSender) *NPS {
	return &NPS{
		name:   name,
		sender: sender,
		retrier: retry.Retrier{
			MaxAttempts:        3,
			Delay:              time.Second,
			RaiseOnMaxAttempts: true,
		},
	}
}

// Name returns the strip name.
func (n *NPS) Name() string { return n.name }

// Outlets returns the state of every outlet keyed by outlet name.
func (n *NPS) Outlets(ctx context.Context) (map[string]Outlet, error) {
	send := retry.WrapContext(n.retrier, func(ctx context.Context) (map[string]any, error) {
		return n.sender.Send(ctx, "status")
	})

	reply, err := send(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", n.name, err)
	}

	return decodeOutlets(reply)
}

// decodeOutlets extracts outlet states from a status reply.
func decodeOutlets(reply map[string]any) (map[string]Outlet, error) {
	raw, ok := reply["outlets"].([]any)
	if !ok {
		return nil, fmt.Errorf("malformed status reply: missing outlets")
	}

	outlets := make(map[string]Outlet, len(raw))
	for _, item := range raw {
		entry, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("malformed outlet entry %v", item)
		}

		name, _ := entry["normalised_name"].(string)
		if name == "" {
			name, _ = entry["name"].(string)
		}
		if name == "" {
			return nil, fmt.Errorf("outlet entry without name: %v", entry)
		}

		id, _ := entry["id"].(float64)
		state, _ := entry["state"].(bool)

		outlets[name] = Outlet{ID: int(id), Name: name, State: state}
	}
	return outlets, nil
}

// SetOutlet switches a single outlet on or off.
func (n *NPS) SetOutlet(ctx context.Context, outlet string, on bool) error {
	verb := "off"
	if on {
		verb = "on"
	}
	if _, err := n.sender.Send(ctx, fmt.Sprintf("%s %s", verb, outlet)); err != nil {
		return fmt.Errorf("failed to switch outlet %s on %s: %w", outlet, n.name, err)
	}
	return nil
}

// CycleOutlet power-cycles an outlet with a short off interval.
func (n *NPS) CycleOutlet(ctx context.Context, outlet string, wait time.Duration) error {
	if err := n.SetOutlet(ctx, outlet, false); err != nil {
		return err
	}

	if wait <= 0 {
		wait = 3 * time.Second
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(wait):
	}

	return n.SetOutlet(ctx, outlet, true)
}
