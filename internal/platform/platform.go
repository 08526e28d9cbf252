// Package platform declares the hardware sources the cooling core consumes.
// Implementations live in the sub-packages (hwmon, nvml, api) and in statedb.
package platform

import "context"

// FanDevice is a single fan as seen by an in-process inventory or the
// platform API.
type FanDevice interface {
	Name() string
	Presence() (bool, error)
	Status() (bool, error)
	// Speed returns the current speed in percent
	Speed() (float64, error)
	SetSpeed(speed float64) error
}

// TempDevice is a temperature sensor with its two high thresholds.
type TempDevice interface {
	Name() string
	Temperature() (float64, error)
	HighThreshold() (float64, error)
	HighCriticalThreshold() (float64, error)
}

// TargetProvider is implemented by sensors whose descriptor carries an
// explicit target temperature.
type TargetProvider interface {
	TargetTemperature() float64
}

// PsuDevice is a power supply.
type PsuDevice interface {
	Name() string
	Presence() (bool, error)
	Status() (bool, error)
}

// PsuSlot is a PSU bay. Psu and Inventory return nil while no supply is
// identified in the slot.
type PsuSlot interface {
	Presence() (bool, error)
	Psu() PsuDevice
	Inventory() Inventory
}

// Inventory enumerates the hardware owned by one component.
type Inventory interface {
	Fans() []FanDevice
	Temps() []TempDevice
	PsuSlots() []PsuSlot
}

// Card is the inventory of a chassis card. Slot 0 is the local card.
type Card struct {
	Slot      int
	Inventory Inventory
}

// Platform is the in-process view of the hardware.
type Platform interface {
	Inventory() Inventory
	// Cards returns the card inventories managed by a chassis supervisor
	Cards() []Card
}

// Chassis is the cross-process hardware abstraction API.
type Chassis interface {
	AllFans() ([]FanDevice, error)
	AllFanDrawers() ([]FanDrawer, error)
	AllPsus() ([]Psu, error)
	AllThermals() ([]TempDevice, error)
	AllSfps() ([]Sfp, error)
	AllModules() ([]Module, error)
	MySlot() (int, error)
	NumModules() (int, error)
}

type FanDrawer interface {
	Name() string
	AllFans() ([]FanDevice, error)
}

type Psu interface {
	PsuDevice
	AllFans() ([]FanDevice, error)
	AllThermals() ([]TempDevice, error)
}

type Module interface {
	Name() string
	Slot() int
	AllFans() ([]FanDevice, error)
	AllThermals() ([]TempDevice, error)
}

// Sfp is a transceiver cage. ThresholdInfo returns the raw DOM threshold
// fields, values may be the literal "N/A".
type Sfp interface {
	Name() string
	Presence() (bool, error)
	Temperature() (float64, error)
	ThresholdInfo() (map[string]string, error)
}

// StateDB is a read view on a shared state database made of tables of rows
// addressed by key, each row a set of string fields.
type StateDB interface {
	Tables(ctx context.Context) ([]string, error)
	Keys(ctx context.Context, table string) ([]string, error)
	Row(ctx context.Context, table, key string) (map[string]string, error)
}

// Databases groups the primary state DB and, on a chassis supervisor, the
// chassis DB holding per-slot tables. Either may be nil.
type Databases struct {
	State   StateDB
	Chassis StateDB
}

// State DB tables
const (
	TableFanInfo          = "FAN_INFO"
	TablePsuInfo          = "PSU_INFO"
	TableTemperatureInfo  = "TEMPERATURE_INFO"
	TableXcvrDomSensor    = "TRANSCEIVER_DOM_SENSOR"
	TableXcvrDomThreshold = "TRANSCEIVER_DOM_THRESHOLD"
)
