package catalog

// Standard OBD2 service 01 PIDs, scalings per SAE J1979. Width is the raw
// reading width in bytes on the wire protocol; CBF stores the raw integer
// as decimal ASCII but the scaling rule is the same.
var obd2Definitions = []Definition{
	{PID: 0x04, Name: "Calculated Load Value", Unit: "%", Width: 1, Scale: 100.0 / 255.0, Decimals: 1},
	{PID: 0x05, Name: "Engine Coolant Temperature", Unit: "deg C", Width: 1, Offset: -40, Decimals: 0},
	{PID: 0x06, Name: "Short Term Fuel Trim Bank 1", Unit: "%", Width: 1, Scale: 100.0 / 128.0, Offset: -100, Decimals: 1},
	{PID: 0x07, Name: "Long Term Fuel Trim Bank 1", Unit: "%", Width: 1, Scale: 100.0 / 128.0, Offset: -100, Decimals: 1},
	{PID: 0x08, Name: "Short Term Fuel Trim Bank 2", Unit: "%", Width: 1, Scale: 100.0 / 128.0, Offset: -100, Decimals: 1},
	{PID: 0x09, Name: "Long Term Fuel Trim Bank 2", Unit: "%", Width: 1, Scale: 100.0 / 128.0, Offset: -100, Decimals: 1},
	{PID: 0x0A, Name: "Fuel Pressure", Unit: "kPa", Width: 1, Scale: 3, Decimals: 0},
	{PID: 0x0B, Name: "Intake Manifold Pressure", Unit: "kPa", Width: 1, Decimals: 0},
	{PID: 0x0C, Name: "Engine RPM", Unit: "rpm", Width: 2, Scale: 0.25, Decimals: 2},
	{PID: 0x0D, Name: "Vehicle Speed", Unit: "km/h", Width: 1, Decimals: 0},
	{PID: 0x0E, Name: "Ignition Timing Advance", Unit: "deg", Width: 1, Scale: 0.5, Offset: -64, Decimals: 1},
	{PID: 0x0F, Name: "Intake Air Temperature", Unit: "deg C", Width: 1, Offset: -40, Decimals: 0},
	{PID: 0x10, Name: "Mass Air Flow Rate", Unit: "g/s", Width: 2, Scale: 0.01, Decimals: 2},
	{PID: 0x11, Name: "Absolute Throttle Position", Unit: "%", Width: 1, Scale: 100.0 / 255.0, Decimals: 1},
	{PID: 0x1F, Name: "Time Since Engine Start", Unit: "s", Width: 2, Decimals: 0},
	{PID: 0x21, Name: "Distance Travelled While MIL Activated", Unit: "km", Width: 2, Decimals: 0},
	{PID: 0x2F, Name: "Fuel Level Input", Unit: "%", Width: 1, Scale: 100.0 / 255.0, Decimals: 1},
	{PID: 0x33, Name: "Barometric Pressure", Unit: "kPa", Width: 1, Decimals: 0},
	{PID: 0x42, Name: "Control Module Voltage", Unit: "V", Width: 2, Scale: 0.001, Decimals: 3},
	{PID: 0x46, Name: "Ambient Air Temperature", Unit: "deg C", Width: 1, Offset: -40, Decimals: 0},
	{PID: 0x5C, Name: "Engine Oil Temperature", Unit: "deg C", Width: 1, Offset: -40, Decimals: 0},
}

// Honda module parameters as they appear in NT520 Pro captures. The Honda
// software writes no PID descriptors, so entries resolve by name.
var hondaDefinitions = []Definition{
	{Name: "ENGINE SPEED", Unit: "rpm", Width: 2, Decimals: 0},
	{Name: "VSS", Unit: "km/h", Width: 1, Decimals: 0},
	{Name: "ECT SENSOR", Unit: "deg C", Width: 1, Offset: -40, Decimals: 0},
	{Name: "IAT SENSOR", Unit: "deg C", Width: 1, Offset: -40, Decimals: 0},
	{Name: "MAP SENSOR", Unit: "kPa", Width: 1, Decimals: 0},
	{Name: "TP SENSOR", Unit: "%", Width: 1, Scale: 100.0 / 255.0, Decimals: 1},
	{Name: "BATTERY VOLTAGE", Unit: "V", Width: 1, Scale: 0.1, Decimals: 1},
	{Name: "ALTERNATOR FR DUTY", Unit: "%", Width: 1, Scale: 100.0 / 255.0, Decimals: 1},
	{Name: "INJECTOR PULSE WIDTH", Unit: "ms", Width: 2, Scale: 0.1, Decimals: 1},
	{Name: "IGNITION TIMING", Unit: "deg", Width: 1, Scale: 0.5, Offset: -64, Decimals: 1},
	{Name: "FUEL SYSTEM STATUS", Unit: "", Width: 1, Decimals: 0},
	{Name: "SHORT TERM FUEL TRIM", Unit: "%", Width: 1, Scale: 100.0 / 128.0, Offset: -100, Decimals: 1},
	{Name: "LONG TERM FUEL TRIM", Unit: "%", Width: 1, Scale: 100.0 / 128.0, Offset: -100, Decimals: 1},
	{Name: "O2 SENSOR", Unit: "V", Width: 1, Scale: 0.005, Decimals: 3},
	{Name: "CLV", Unit: "%", Width: 1, Scale: 100.0 / 255.0, Decimals: 1},
	{Name: "ELD", Unit: "A", Width: 1, Scale: 0.1, Decimals: 1},
}
