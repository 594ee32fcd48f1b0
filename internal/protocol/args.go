package protocol

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidArguments is returned when an agent requires arguments it did not get.
var ErrInvalidArguments = errors.New("invalid agent arguments")

const (
	DefaultMessageCount = 1
	DefaultPayloadSize  = 3
	DefaultQuota        = 1
)

// ProducerArgs are the positional start arguments of a producer.
type ProducerArgs struct {
	MessageCount int
	PayloadSize  int
}

// ParseProducerArgs reads (messageCount, payloadSize). The count must be
// positive. Mismatched or unparseable arguments yield the defaults (1, 3)
// with ok=false.
func ParseProducerArgs(args []string) (ProducerArgs, bool) {
	defaults := ProducerArgs{MessageCount: DefaultMessageCount, PayloadSize: DefaultPayloadSize}
	if len(args) != 2 {
		return defaults, len(args) == 0
	}
	count, err := parseNonNegative(args[0])
	if err != nil || count < 1 {
		return defaults, false
	}
	size, err := parseNonNegative(args[1])
	if err != nil {
		return defaults, false
	}
	return ProducerArgs{MessageCount: count, PayloadSize: size}, true
}

// ParseConsumerArgs reads the baseline consumer quota from exactly one
// argument. Any other arity or an invalid quota yields the default of 1 with
// ok=false.
func ParseConsumerArgs(args []string) (int, bool) {
	if len(args) != 1 {
		return DefaultQuota, len(args) == 0
	}
	quota, err := strconv.Atoi(strings.TrimSpace(args[0]))
	if err != nil || quota < 1 {
		return DefaultQuota, false
	}
	return quota, true
}

// PriorityArgs are the required start arguments of a priority consumer.
type PriorityArgs struct {
	Quota          int
	PrioritySender string
}

// ParsePriorityArgs requires exactly (messageCount, priorityProducerName).
func ParsePriorityArgs(args []string) (PriorityArgs, error) {
	if len(args) != 2 {
		return PriorityArgs{}, fmt.Errorf("%w: priority consumer expects 2 arguments, got %d", ErrInvalidArguments, len(args))
	}
	quota, err := strconv.Atoi(strings.TrimSpace(args[0]))
	if err != nil || quota < 1 {
		return PriorityArgs{}, fmt.Errorf("%w: message count %q", ErrInvalidArguments, args[0])
	}
	sender := strings.TrimSpace(args[1])
	if sender == "" {
		return PriorityArgs{}, fmt.Errorf("%w: empty priority producer name", ErrInvalidArguments)
	}
	return PriorityArgs{Quota: quota, PrioritySender: sender}, nil
}

// SplitArgs splits a comma separated argument string, as accepted on the
// command line for single-agent runs.
func SplitArgs(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func parseNonNegative(s string) (int, error) {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	if v < 0 {
		return 0, fmt.Errorf("negative value %d", v)
	}
	return v, nil
}
