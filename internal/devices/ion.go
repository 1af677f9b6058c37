package devices

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/sidereal-labs/opskit/internal/metrics"
	"github.com/sidereal-labs/opskit/internal/retry"
)

// RegisterClient reads and writes holding registers on an ion pump
// controller.
type RegisterClient interface {
	ReadRegisters(ctx context.Context, address, count uint16) ([]uint16, error)
	WriteRegister(ctx context.Context, address, value uint16) error
}

// Signal calibration of the controller's analogue pressure output.
const (
	ionCalibrationM = 2.04545
	ionCalibrationB = -6.86373

	paToTorr = 0.00750062
)

// IonPump is a client for one ion pump controller.
type IonPump struct {
	name    string
	cfg     IonPumpConfig
	client  RegisterClient
	retrier retry.Retrier
}

// NewIonPump creates an ion pump client.
func NewIonPump(name string, cfg IonPumpConfig, client RegisterClient) *IonPump {
	return &IonPump{
		name:   name,
		cfg:    cfg,
		client: client,
		retrier: retry.Retrier{
			MaxAttempts:        3,
			Delay:              time.Second,
			RaiseOnMaxAttempts: true,
		},
	}
}

// Name returns the pump name.
func (p *IonPump) Name() string { return p.name }

// DecodeFloat32 combines two big-endian holding registers into a
// float32.
func DecodeFloat32(regs []uint16) (float32, error) {
	if len(regs) != 2 {
		return 0, fmt.Errorf("expected 2 registers, got %d", len(regs))
	}
	bits := uint32(regs[0])<<16 | uint32(regs[1])
	return math.Float32frombits(bits), nil
}

// ConvertPressure converts the controller's analogue voltage signal to
// a pressure in Torr.
func ConvertPressure(volts float64) float64 {
	pa := math.Pow(10, ionCalibrationM*volts+ionCalibrationB)
	return pa * paToTorr
}

// Pressure reads the current pump pressure in Torr.
func (p *IonPump) Pressure(ctx context.Context) (float64, error) {
	started := time.Now()
	defer func() {
		metrics.DeviceReadLatency.WithLabelValues("ion_" + p.name).
			Observe(time.Since(started).Seconds())
	}()

	read := retry.WrapContext(p.retrier, func(ctx context.Context) ([]uint16, error) {
		return p.client.ReadRegisters(ctx, p.cfg.PressureRegister, 2)
	})

	regs, err := read(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to read pressure from %s: %w", p.name, err)
	}

	volts, err := DecodeFloat32(regs)
	if err != nil {
		return 0, fmt.Errorf("failed to decode pressure from %s: %w", p.name, err)
	}

	return ConvertPressure(float64(volts)), nil
}

// SetOn turns the pump on or off.
func (p *IonPump) SetOn(ctx context.Context, on bool) error {
	var value uint16
	if on {
		value = math.MaxUint16
	}

	if err := p.client.WriteRegister(ctx, p.cfg.OnOffRegister, value); err != nil {
		return fmt.Errorf("failed to toggle %s: %w", p.name, err)
	}
	return nil
}
