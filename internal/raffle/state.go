package raffle

import "fmt"

// RoundState is the lifecycle position of the current round.
type RoundState uint8

const (
	// StateOpen accepts entries.
	StateOpen RoundState = iota
	// StateClosing waits for the randomness callback. Entries are frozen.
	StateClosing
)

func (s RoundState) String() string {
	switch s {
	case StateOpen:
		return "OPEN"
	case StateClosing:
		return "CLOSING"
	default:
		return fmt.Sprintf("RoundState(%d)", uint8(s))
	}
}

// MarshalText encodes the state by name.
func (s RoundState) MarshalText() ([]byte, error) {
	switch s {
	case StateOpen, StateClosing:
		return []byte(s.String()), nil
	default:
		return nil, fmt.Errorf("unknown round state %d", uint8(s))
	}
}

// UnmarshalText decodes a state name.
func (s *RoundState) UnmarshalText(text []byte) error {
	parsed, err := ParseRoundState(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseRoundState converts a state name into a RoundState.
func ParseRoundState(input string) (RoundState, error) {
	switch input {
	case "OPEN":
		return StateOpen, nil
	case "CLOSING":
		return StateClosing, nil
	default:
		return 0, fmt.Errorf("unknown round state %q", input)
	}
}
