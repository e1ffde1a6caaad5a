// Package statusmap converts a decoded operation status document into an
// operation.Status.
//
// By default the document's status field is matched case-insensitively:
// InProgress, Running, NotStarted and Accepted are in progress, Succeeded is
// success, Failed and Canceled are failure. Services with a different shape
// can supply boolean expr expressions instead, evaluated against
//
//	status  the status field as a string, or "" if missing
//	body    the whole document
//
// for example:
//
//	m, err := statusmap.New(`body.progress >= 100`, `body.error != nil`)
package statusmap

import (
	"fmt"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/nomis52/cloudops/operation"
)

// StatusFields are the document keys consulted, in order, for the status string.
var StatusFields = []string{"status", "Status", "provisioningState", "state"}

var defaultStatuses = map[string]operation.Status{
	"inprogress": operation.StatusInProgress,
	"running":    operation.StatusInProgress,
	"notstarted": operation.StatusInProgress,
	"accepted":   operation.StatusInProgress,
	"succeeded":  operation.StatusSucceeded,
	"failed":     operation.StatusFailed,
	"canceled":   operation.StatusFailed,
	"cancelled":  operation.StatusFailed,
}

// Mapper maps status documents. The zero value is not usable; use Default or New.
type Mapper struct {
	succeeded *vm.Program
	failed    *vm.Program
}

// Default returns a Mapper using only the status field.
func Default() *Mapper {
	return &Mapper{}
}

// New compiles the two expressions. Both must be empty or both set; a document
// matching neither is in progress. failedWhen is evaluated first.
func New(succeededWhen, failedWhen string) (*Mapper, error) {
	succeededWhen = strings.TrimSpace(succeededWhen)
	failedWhen = strings.TrimSpace(failedWhen)

	if succeededWhen == "" && failedWhen == "" {
		return Default(), nil
	}
	if succeededWhen == "" || failedWhen == "" {
		return nil, fmt.Errorf("succeeded and failed expressions must be set together")
	}

	succeeded, err := compile(succeededWhen)
	if err != nil {
		return nil, fmt.Errorf("compiling succeeded expression: %w", err)
	}
	failed, err := compile(failedWhen)
	if err != nil {
		return nil, fmt.Errorf("compiling failed expression: %w", err)
	}
	return &Mapper{succeeded: succeeded, failed: failed}, nil
}

func compile(src string) (*vm.Program, error) {
	return expr.Compile(src,
		expr.Env(env{}),
		expr.AllowUndefinedVariables(),
		expr.AsBool(),
	)
}

type env struct {
	Status string         `expr:"status"`
	Body   map[string]any `expr:"body"`
}

// Map returns the status for doc. Unrecognised status strings are an error
// wrapping operation.ErrUnknownStatus.
func (m *Mapper) Map(doc map[string]any) (operation.Status, error) {
	status := statusField(doc)

	if m.succeeded == nil {
		s, ok := defaultStatuses[strings.ToLower(status)]
		if !ok {
			return 0, fmt.Errorf("%w: %q", operation.ErrUnknownStatus, status)
		}
		return s, nil
	}

	e := env{Status: status, Body: doc}
	failed, err := run(m.failed, e)
	if err != nil {
		return 0, fmt.Errorf("evaluating failed expression: %w", err)
	}
	if failed {
		return operation.StatusFailed, nil
	}
	succeeded, err := run(m.succeeded, e)
	if err != nil {
		return 0, fmt.Errorf("evaluating succeeded expression: %w", err)
	}
	if succeeded {
		return operation.StatusSucceeded, nil
	}
	return operation.StatusInProgress, nil
}

func run(p *vm.Program, e env) (bool, error) {
	out, err := expr.Run(p, e)
	if err != nil {
		return false, err
	}
	b, _ := out.(bool)
	return b, nil
}

func statusField(doc map[string]any) string {
	for _, key := range StatusFields {
		if v, ok := doc[key]; ok {
			if s, ok := v.(string); ok {
				return s
			}
		}
	}
	if props, ok := doc["properties"].(map[string]any); ok {
		if s, ok := props["provisioningState"].(string); ok {
			return s
		}
	}
	return ""
}
