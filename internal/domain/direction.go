package domain

import (
	"encoding/json"
	"fmt"
)

// Direction tells a verifier on which side a sibling hash is combined
// when recomputing a parent node.
type Direction uint8

const (
	DirectionLeft Direction = iota
	DirectionRight
)

func (d Direction) String() string {
	switch d {
	case DirectionLeft:
		return "left"
	case DirectionRight:
		return "right"
	}
	return fmt.Sprintf("direction(%d)", uint8(d))
}

func ParseDirection(s string) (Direction, error) {
	switch s {
	case "left":
		return DirectionLeft, nil
	case "right":
		return DirectionRight, nil
	}
	return 0, fmt.Errorf("unknown direction %q", s)
}

func (d Direction) MarshalJSON() ([]byte, error) {
	switch d {
	case DirectionLeft, DirectionRight:
		return json.Marshal(d.String())
	}
	return nil, fmt.Errorf("unknown direction %d", uint8(d))
}

func (d *Direction) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseDirection(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
