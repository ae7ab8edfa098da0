package shell

import (
	"slices"
	"strings"
)

// Signal names accepted by SendSignal.
const (
	SignalInterrupt = "interrupt"
	SignalSuspend   = "suspend"
	SignalQuit      = "quit"
)

// signalBytes maps each signal to the control byte the terminal line
// discipline turns into it: ^C, ^Z and ^\.
var signalBytes = map[string]byte{
	SignalInterrupt: 0x03,
	SignalSuspend:   0x1A,
	SignalQuit:      0x1C,
}

// SignalByte returns the control byte for a signal name. Names are case
// insensitive.
func SignalByte(name string) (byte, bool) {
	b, ok := signalBytes[strings.ToLower(strings.TrimSpace(name))]
	return b, ok
}

// SignalNames returns the supported signal names, sorted.
func SignalNames() []string {
	names := make([]string, 0, len(signalBytes))
	for name := range signalBytes {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
