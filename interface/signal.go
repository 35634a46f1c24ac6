package iface

import (
	"fmt"
	"strconv"
	"strings"
)

// SignalID names one approach of the junction. The set is fixed: A, B, C, D.
type SignalID string

const (
	SignalA SignalID = "A"
	SignalB SignalID = "B"
	SignalC SignalID = "C"
	SignalD SignalID = "D"
)

func AllSignals() []SignalID {
	return []SignalID{SignalA, SignalB, SignalC, SignalD}
}

// ParseSignalID accepts a letter in any case or the equivalent number 1-4.
func ParseSignalID(s string) (SignalID, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if n, err := strconv.Atoi(s); err == nil {
		if n < 1 || n > len(AllSignals()) {
			return "", fmt.Errorf("signal number %d out of range 1-%d", n, len(AllSignals()))
		}
		return SignalID(rune('A' + n - 1)), nil
	}
	id := SignalID(s)
	if !id.Valid() {
		return "", fmt.Errorf("invalid signal id %q, must be one of A, B, C, D", s)
	}
	return id, nil
}

func (s SignalID) Valid() bool {
	switch s {
	case SignalA, SignalB, SignalC, SignalD:
		return true
	}
	return false
}

// Number maps A..D to 1..4. Invalid ids map to 0.
func (s SignalID) Number() int {
	if !s.Valid() {
		return 0
	}
	return int(s[0]-'A') + 1
}
