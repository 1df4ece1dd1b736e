package governance

import (
	"fmt"
	"strings"
	"time"
)

// ProposalType classifies a proposal
type ProposalType int

const (
	TypeFinancial ProposalType = iota
	TypeOperational
	TypeStrategic
	TypeGovernance
	TypeEmergency
)

var typeNames = []string{"financial", "operational", "strategic", "governance", "emergency"}

func (t ProposalType) String() string {
	if t < 0 || int(t) >= len(typeNames) {
		return "unknown"
	}
	return typeNames[t]
}

// Valid reports whether t is a known type
func (t ProposalType) Valid() bool {
	return t >= TypeFinancial && t <= TypeEmergency
}

// ParseType parses a proposal type name, case-insensitively
func ParseType(s string) (ProposalType, error) {
	i, err := parseName(typeNames, s)
	return ProposalType(i), err
}

func (t ProposalType) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

func (t *ProposalType) UnmarshalText(b []byte) error {
	v, err := ParseType(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// Urgency selects the voting period
type Urgency int

const (
	UrgencyLow Urgency = iota
	UrgencyMedium
	UrgencyHigh
	UrgencyEmergency
)

var urgencyNames = []string{"low", "medium", "high", "emergency"}

var votingPeriods = map[Urgency]time.Duration{
	UrgencyLow:       14 * 24 * time.Hour,
	UrgencyMedium:    7 * 24 * time.Hour,
	UrgencyHigh:      3 * 24 * time.Hour,
	UrgencyEmergency: 24 * time.Hour,
}

func (u Urgency) String() string {
	if u < 0 || int(u) >= len(urgencyNames) {
		return "unknown"
	}
	return urgencyNames[u]
}

// Valid reports whether u is a known urgency
func (u Urgency) Valid() bool {
	_, ok := votingPeriods[u]
	return ok
}

// Period returns how long voting stays open
func (u Urgency) Period() time.Duration {
	return votingPeriods[u]
}

// ParseUrgency parses an urgency name
func ParseUrgency(s string) (Urgency, error) {
	i, err := parseName(urgencyNames, s)
	return Urgency(i), err
}

func (u Urgency) MarshalText() ([]byte, error) { return []byte(u.String()), nil }

func (u *Urgency) UnmarshalText(b []byte) error {
	v, err := ParseUrgency(string(b))
	if err != nil {
		return err
	}
	*u = v
	return nil
}

// Choice is a vote direction
type Choice int

const (
	ChoiceAgainst Choice = iota
	ChoiceFor
	ChoiceAbstain
)

var choiceNames = []string{"against", "for", "abstain"}

func (c Choice) String() string {
	if c < 0 || int(c) >= len(choiceNames) {
		return "unknown"
	}
	return choiceNames[c]
}

// Valid reports whether c is a known choice
func (c Choice) Valid() bool {
	return c >= ChoiceAgainst && c <= ChoiceAbstain
}

// ParseChoice parses a choice name
func ParseChoice(s string) (Choice, error) {
	i, err := parseName(choiceNames, s)
	return Choice(i), err
}

func (c Choice) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

func (c *Choice) UnmarshalText(b []byte) error {
	v, err := ParseChoice(string(b))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// Status is the derived lifecycle stage of a proposal
type Status int

const (
	StatusActive Status = iota
	StatusSucceeded
	StatusDefeated
	StatusExecuted
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusSucceeded:
		return "succeeded"
	case StatusDefeated:
		return "defeated"
	case StatusExecuted:
		return "executed"
	case StatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func parseName(names []string, s string) (int, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, n := range names {
		if n == s {
			return i, nil
		}
	}
	return -1, fmt.Errorf("unknown value %q", s)
}
