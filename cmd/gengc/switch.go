package main

import (
	"fmt"
	"os"
	"strings"
)

// outputSwitch is the value of an auto|on|off flag such as --color or --ui.
type outputSwitch int8

const (
	switchAuto outputSwitch = iota
	switchOn
	switchOff
)

var switchValues = map[string]outputSwitch{
	"":      switchAuto,
	"auto":  switchAuto,
	"on":    switchOn,
	"true":  switchOn,
	"off":   switchOff,
	"false": switchOff,
}

func parseSwitch(flag, value string) (outputSwitch, error) {
	s, ok := switchValues[strings.ToLower(strings.TrimSpace(value))]
	if !ok {
		return switchAuto, fmt.Errorf("--%s must be auto, on or off, got %q", flag, value)
	}
	return s, nil
}

// enabledFor resolves the switch against f. Auto means f is an interactive
// terminal that is not TERM=dumb.
func (s outputSwitch) enabledFor(f *os.File) bool {
	switch s {
	case switchOn:
		return true
	case switchOff:
		return false
	}
	return isTerminal(f) && os.Getenv("TERM") != "dumb"
}

func (s outputSwitch) String() string {
	switch s {
	case switchOn:
		return "on"
	case switchOff:
		return "off"
	}
	return "auto"
}
