// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"fmt"
	"strconv"
	"strings"
)

// FramingMode selects how the ingestion handler decides a frame is complete.
type FramingMode int

const (
	// FramingFixed completes a frame after a configured number of bytes.
	FramingFixed FramingMode = iota
	// FramingSentinel completes a frame when the source runs empty.
	FramingSentinel
)

// DefaultFrameSize is the length of "+RECV=0,8,COMMANDS,-54,40".
const DefaultFrameSize = 25

// Framing is the completion policy. Only one policy is active at a time.
type Framing struct {
	Mode FramingMode
	Size int // FramingFixed only
}

// FixedFraming completes a frame every size bytes.
func FixedFraming(size int) Framing {
	return Framing{Mode: FramingFixed, Size: size}
}

// SentinelFraming completes a frame on an empty read.
func SentinelFraming() Framing {
	return Framing{Mode: FramingSentinel}
}

// ParseFraming parses "fixed", "fixed:<size>" or "sentinel".
func ParseFraming(s string) (Framing, error) {
	name, arg, hasArg := strings.Cut(strings.ToLower(strings.TrimSpace(s)), ":")
	switch name {
	case "sentinel":
		if hasArg {
			return Framing{}, fmt.Errorf("sentinel framing takes no size")
		}
		return SentinelFraming(), nil
	case "fixed":
		if !hasArg {
			return FixedFraming(DefaultFrameSize), nil
		}
		size, err := strconv.Atoi(arg)
		if err != nil {
			return Framing{}, fmt.Errorf("invalid frame size %q: %w", arg, err)
		}
		return FixedFraming(size), nil
	default:
		return Framing{}, fmt.Errorf("unknown framing %q (use fixed[:size] or sentinel)", s)
	}
}

// Validate checks the policy against the buffer capacity.
func (f Framing) Validate(capacity int) error {
	switch f.Mode {
	case FramingSentinel:
		return nil
	case FramingFixed:
		if f.Size <= 0 || f.Size > capacity {
			return fmt.Errorf("fixed frame size %d out of range (1-%d)", f.Size, capacity)
		}
		return nil
	default:
		return fmt.Errorf("invalid framing mode %d", f.Mode)
	}
}

func (f Framing) String() string {
	if f.Mode == FramingSentinel {
		return "sentinel"
	}
	return fmt.Sprintf("fixed:%d", f.Size)
}
