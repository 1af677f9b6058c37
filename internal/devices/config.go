// Package devices provides thin clients for the hardware the toolkit
// monitors: ion pump controllers, thermistor boards, network power
// strips and the managed PoE switch. Wire transports are injected
// through narrow interfaces so the clients stay testable.
package devices

// Config holds device addresses and mappings.
type Config struct {
	IonPumps    map[string]IonPumpConfig `yaml:"ion_pumps"`
	MaxPressure float64                  `yaml:"max_pressure"`
	Thermistors ThermistorsConfig        `yaml:"thermistors"`
	NPS         map[string]NPSConfig     `yaml:"nps"`
	Switch      SwitchConfig             `yaml:"switch"`
}

// IonPumpConfig identifies one ion pump controller.
type IonPumpConfig struct {
	Address          string `yaml:"address"`
	PressureRegister uint16 `yaml:"pressure_register"`
	OnOffRegister    uint16 `yaml:"onoff_register"`
}

// ThermistorsConfig holds the thermistor board address and the mapping
// from board channel to valve name.
type ThermistorsConfig struct {
	Address  string         `yaml:"address"`
	Channels map[int]string `yaml:"channels"`
}

// NPSConfig identifies one network power strip.
type NPSConfig struct {
	Address string `yaml:"address"`
}

// SwitchConfig holds the managed switch connection and the mapping
// from camera name to switch port.
type SwitchConfig struct {
	Address  string         `yaml:"address"`
	Username string         `yaml:"username"`
	Password string         `yaml:"password"`
	Ports    map[string]int `yaml:"ports"`
}
