package capability

// ServiceKind identifies the semantic accessory service a set of capabilities
// resolves into.
type ServiceKind string

// Service kinds.
const (
	KindDoorControl     ServiceKind = "door_control"
	KindLock            ServiceKind = "lock"
	KindWindowShade     ServiceKind = "window_shade"
	KindMotion          ServiceKind = "motion"
	KindLeakSensor      ServiceKind = "leak_sensor"
	KindSmokeDetector   ServiceKind = "smoke_detector"
	KindCODetector      ServiceKind = "co_detector"
	KindOccupancySensor ServiceKind = "occupancy_sensor"
	KindTemperature     ServiceKind = "temperature"
	KindHumidity        ServiceKind = "humidity"
	KindIlluminance     ServiceKind = "illuminance"
	KindContactSensor   ServiceKind = "contact_sensor"
	KindStatelessButton ServiceKind = "stateless_button"
	KindBattery         ServiceKind = "battery"
	KindValve           ServiceKind = "valve"
	KindSwitch          ServiceKind = "switch"
	KindFanWithLevel    ServiceKind = "fan_with_level"
	KindFanSpeed        ServiceKind = "fan_speed"
	KindLight           ServiceKind = "light"
	KindThermostat      ServiceKind = "thermostat"
)

// Capability identifiers reported by the cloud API.
const (
	DoorControl                 = "doorControl"
	Lock                        = "lock"
	WindowShadeLevel            = "windowShadeLevel"
	MotionSensor                = "motionSensor"
	WaterSensor                 = "waterSensor"
	SmokeDetector               = "smokeDetector"
	CarbonMonoxideDetector      = "carbonMonoxideDetector"
	PresenceSensor              = "presenceSensor"
	TemperatureMeasurement      = "temperatureMeasurement"
	RelativeHumidityMeasurement = "relativeHumidityMeasurement"
	IlluminanceMeasurement      = "illuminanceMeasurement"
	ContactSensor               = "contactSensor"
	Button                      = "button"
	Battery                     = "battery"
	Valve                       = "valve"
	Switch                      = "switch"
	SwitchLevel                 = "switchLevel"
	FanSpeed                    = "fanSpeed"
	ColorControl                = "colorControl"
	ColorTemperature            = "colorTemperature"
	ThermostatMode              = "thermostatMode"
	ThermostatHeatingSetpoint   = "thermostatHeatingSetpoint"
	ThermostatCoolingSetpoint   = "thermostatCoolingSetpoint"
)

// SingleRule maps exactly one capability to a service kind.
type SingleRule struct {
	Capability string
	Kind       ServiceKind
}

// ComboRule maps a required capability subset to a service kind.
type ComboRule struct {
	Requires []string
	Kind     ServiceKind
}

// SingleCapabilities is the ordered single-capability catalog.
// Primary services come first; auxiliary ones such as battery and contact
// sensor must stay at the end so they register after the device they belong to.
var SingleCapabilities = []SingleRule{
	{Capability: DoorControl, Kind: KindDoorControl},
	{Capability: Lock, Kind: KindLock},
	{Capability: WindowShadeLevel, Kind: KindWindowShade},
	{Capability: MotionSensor, Kind: KindMotion},
	{Capability: WaterSensor, Kind: KindLeakSensor},
	{Capability: SmokeDetector, Kind: KindSmokeDetector},
	{Capability: CarbonMonoxideDetector, Kind: KindCODetector},
	{Capability: PresenceSensor, Kind: KindOccupancySensor},
	{Capability: TemperatureMeasurement, Kind: KindTemperature},
	{Capability: RelativeHumidityMeasurement, Kind: KindHumidity},
	{Capability: IlluminanceMeasurement, Kind: KindIlluminance},
	{Capability: ContactSensor, Kind: KindContactSensor},
	{Capability: Button, Kind: KindStatelessButton},
	{Capability: Battery, Kind: KindBattery},
	{Capability: Valve, Kind: KindValve},
}

// ComboCapabilities is the ordered combination catalog. The first rule whose
// requirements are all present wins, so more specific rules precede general ones.
var ComboCapabilities = []ComboRule{
	{Requires: []string{Switch, FanSpeed, SwitchLevel}, Kind: KindFanWithLevel},
	{Requires: []string{Switch, FanSpeed}, Kind: KindFanSpeed},
	{Requires: []string{Switch, SwitchLevel}, Kind: KindLight},
	{Requires: []string{Switch, ColorControl}, Kind: KindLight},
	{Requires: []string{Switch, ColorTemperature}, Kind: KindLight},
	{Requires: []string{Switch, Valve}, Kind: KindValve},
	{Requires: []string{Switch}, Kind: KindSwitch},
	{Requires: []string{TemperatureMeasurement, ThermostatMode, ThermostatHeatingSetpoint, ThermostatCoolingSetpoint}, Kind: KindThermostat},
}

// comboTriggers are the capabilities that make a component eligible for
// combination resolution.
var comboTriggers = []string{Switch, ThermostatMode}

// singleByCapability is built once at init for membership checks.
var singleByCapability map[string]ServiceKind

func init() {
	singleByCapability = make(map[string]ServiceKind, len(SingleCapabilities))
	for _, r := range SingleCapabilities {
		singleByCapability[r.Capability] = r.Kind
	}
}
