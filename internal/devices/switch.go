package devices

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Session runs commands on the managed switch and returns the combined
// output.
type Session interface {
	Run(ctx context.Context, commands ...string) (string, error)
}

// cameraName matches telescope camera identifiers such as "sci-east",
// "sci e", "skyw" or "spec_west".
var cameraName = regexp.MustCompile(`^(sci|skye|skyw|spec)[-_ ]?(east|west|e|w)?$`)

// NormalizeCameraName canonicalizes a camera identifier to the
// "<telescope>-<side>" form used in the port map.
func NormalizeCameraName(name string) (string, error) {
	m := cameraName.FindStringSubmatch(strings.ToLower(strings.TrimSpace(name)))
	if m == nil {
		return "", fmt.Errorf("invalid camera name %q", name)
	}

	telescope, side := m[1], m[2]
	switch side {
	case "":
		return telescope, nil
	case "e":
		side = "east"
	case "w":
		side = "west"
	}
	return telescope + "-" + side, nil
}

// Off time between the PoE power-off and power-on commands.
var poeCycleWait = 5 * time.Second

// Switch manages PoE power to the cameras through the network switch.
type Switch struct {
	cfg     SwitchConfig
	session Session
}

// NewSwitch creates a switch client.
func NewSwitch(cfg SwitchConfig, session Session) *Switch {
	return &Switch{cfg: cfg, session: session}
}

// port resolves a camera name to its switch port.
func (s *Switch) port(camera string) (int, error) {
	name, err := NormalizeCameraName(camera)
	if err != nil {
		return 0, err
	}
	port, ok := s.cfg.Ports[name]
	if !ok {
		return 0, fmt.Errorf("no switch port mapped for camera %q", name)
	}
	return port, nil
}

// CyclePoE power-cycles the PoE port of a camera.
func (s *Switch) CyclePoE(ctx context.Context, camera string) error {
	port, err := s.port(camera)
	if err != nil {
		return err
	}

	iface := fmt.Sprintf("interface gi%d", port)

	if _, err := s.session.Run(ctx, "configure", iface, "power inline never", "exit"); err != nil {
		return fmt.Errorf("failed to power off port gi%d: %w", port, err)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(poeCycleWait):
	}

	if _, err := s.session.Run(ctx, "configure", iface, "power inline auto", "exit"); err != nil {
		return fmt.Errorf("failed to power on port gi%d: %w", port, err)
	}
	return nil
}

// PortInfo returns the switch's PoE status output for a camera port.
func (s *Switch) PortInfo(ctx context.Context, camera string) (string, error) {
	port, err := s.port(camera)
	if err != nil {
		return "", err
	}

	out, err := s.session.Run(ctx, fmt.Sprintf("show power inline gi%d", port))
	if err != nil {
		return "", fmt.Errorf("failed to query port gi%d: %w", port, err)
	}
	return out, nil
}
