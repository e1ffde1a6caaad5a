package cron

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

const (
	triggerSeparator       = ";"
	operationSeparator     = ":"
	operationListSeparator = ","
	// allOperations selects the whole build.
	allOperations = "*"
)

// TriggerSpec is a cron schedule and the operations it runs. Empty Operations
// means every operation.
type TriggerSpec struct {
	Operations []string
	CronSpec   string
}

// ParseTriggerSpecs parses a multi-trigger specification string into individual trigger specs.
// The format is: operation1,operation2:cron_expression;operation3:cron_expression2
// and * selects every operation.
//
// Example:
//
//	"deploy,swap:0 2 * * *;*:0 3 * * 0"
//
// Returns an error if:
//   - Any trigger is missing operations or cron expression
//   - Any operation name is not in available
//   - Any cron expression is invalid
//   - Any trigger has duplicate operations
func ParseTriggerSpecs(spec string, available map[string]bool) ([]TriggerSpec, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, errors.New("cron spec cannot be empty")
	}

	triggerStrs := strings.Split(spec, triggerSeparator)
	specs := make([]TriggerSpec, 0, len(triggerStrs))

	for _, triggerStr := range triggerStrs {
		triggerStr = strings.TrimSpace(triggerStr)
		if triggerStr == "" {
			continue // trailing semicolon
		}

		triggerSpec, err := parseSingleTrigger(triggerStr, available)
		if err != nil {
			return nil, err
		}
		specs = append(specs, triggerSpec)
	}

	if len(specs) == 0 {
		return nil, errors.New("no valid triggers found in cron spec")
	}

	return specs, nil
}

func parseSingleTrigger(triggerStr string, available map[string]bool) (TriggerSpec, error) {
	// The operation list cannot contain a colon, so everything after the first one is the schedule.
	opsStr, cronSpec, found := strings.Cut(triggerStr, operationSeparator)
	if !found {
		return TriggerSpec{}, fmt.Errorf("invalid trigger spec: expected format 'operations:cron', got '%s'", triggerStr)
	}
	opsStr = strings.TrimSpace(opsStr)
	cronSpec = strings.TrimSpace(cronSpec)

	if opsStr == "" {
		return TriggerSpec{}, fmt.Errorf("invalid trigger spec: missing operations in '%s'", triggerStr)
	}
	if cronSpec == "" {
		return TriggerSpec{}, fmt.Errorf("invalid trigger spec: missing cron schedule in '%s'", triggerStr)
	}

	var operations []string
	if opsStr != allOperations {
		for _, op := range strings.Split(opsStr, operationListSeparator) {
			if op = strings.TrimSpace(op); op != "" {
				operations = append(operations, op)
			}
		}
		if len(operations) == 0 {
			return TriggerSpec{}, fmt.Errorf("invalid trigger spec: no valid operations in '%s'", triggerStr)
		}
	}

	ts := TriggerSpec{Operations: operations, CronSpec: cronSpec}
	if err := ValidateTriggerSpec(ts, available); err != nil {
		return TriggerSpec{}, fmt.Errorf("invalid trigger spec '%s': %w", triggerStr, err)
	}
	return ts, nil
}

// ValidateTriggerSpec checks the schedule and that every operation exists
// and appears once.
func ValidateTriggerSpec(ts TriggerSpec, available map[string]bool) error {
	seen := make(map[string]bool, len(ts.Operations))
	for _, op := range ts.Operations {
		if seen[op] {
			return fmt.Errorf("duplicate operation '%s'", op)
		}
		seen[op] = true

		if !available[op] {
			return fmt.Errorf("unknown operation '%s' (available: %s)", op, formatAvailable(available))
		}
	}

	if _, err := parser.Parse(ts.CronSpec); err != nil {
		return errors.Join(ErrInvalidCronSpec, err)
	}
	return nil
}

func formatAvailable(available map[string]bool) string {
	names := make([]string, 0, len(available))
	for name := range available {
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}
