package harness

import (
	"context"
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/roach88/nsboot/internal/ir"
	"github.com/roach88/nsboot/internal/ledger/memledger"
	"github.com/roach88/nsboot/internal/namehash"
	"github.com/roach88/nsboot/internal/store"
)

// validIdentifier matches valid SQL identifiers (table/column names).
// Only allows alphanumeric and underscore, must start with letter or underscore.
// This prevents SQL injection via identifier interpolation.
var validIdentifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string          // Assertion type for categorization
	Expected string          // Human-readable expected outcome
	Actual   string          // Human-readable actual outcome
	Trace    []ir.StepRecord // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, rec := range e.Trace {
			fmt.Fprintf(&buf, "  [%s %d] %s %s %v\n", rec.RunID, rec.Index, rec.Status, rec.Key, rec.Args)
		}
	}

	return buf.String()
}

// AssertionContext provides the state assertions are evaluated against.
type AssertionContext struct {
	Ctx    context.Context
	Store  *store.Store
	Ledger *memledger.Ledger

	// RunID scopes final_state queries on tables with a run column.
	RunID string
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertResolved:
			err = assertResolved(result, assertion)
		case AssertTraceContains:
			err = assertTraceContains(result, assertion)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, assertion)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, assertion)
		case AssertFinalState:
			if actx == nil || actx.Store == nil {
				err = fmt.Errorf("assertion[%d]: final_state requires a journal", i)
			} else {
				err = assertFinalState(actx.Ctx, actx.Store, actx.RunID, assertion)
			}
		case AssertOwner, AssertResolver:
			if actx == nil || actx.Ledger == nil {
				err = fmt.Errorf("assertion[%d]: %s requires a ledger", i, assertion.Type)
			} else {
				err = assertLedgerState(actx.Ledger, result, assertion)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}

// assertResolved checks the final resolution table, kinds in deployment order.
func assertResolved(result *Result, assertion Assertion) error {
	actual := make([]string, len(result.Resolved))
	for i, dc := range result.Resolved {
		actual[i] = string(dc.Kind)
	}
	expected := assertion.Kinds
	if expected == nil {
		expected = []string{}
	}
	if !reflect.DeepEqual(expected, actual) {
		return &AssertionError{
			Type:     AssertResolved,
			Expected: fmt.Sprintf("resolved %v", expected),
			Actual:   fmt.Sprintf("resolved %v", actual),
		}
	}
	return nil
}

// assertTraceContains checks if the trace contains a record for the step key
// with matching status and args.
func assertTraceContains(result *Result, assertion Assertion) error {
	for _, rec := range result.Trace {
		if rec.Key != assertion.Key {
			continue
		}
		if assertion.Status != "" && string(rec.Status) != assertion.Status {
			continue
		}
		ok, err := matchArgs(rec.Args, assertion.Args, result.Resolved)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
	}

	expected := assertion.Key
	if assertion.Status != "" {
		expected += " [" + assertion.Status + "]"
	}
	if assertion.Args != nil {
		expected += fmt.Sprintf(" with args %v", assertion.Args)
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: expected,
		Actual:   "not found in trace",
		Trace:    result.Trace,
	}
}

// assertTraceOrder checks if steps appear in the specified order.
// Steps don't need to be consecutive (intervening steps are allowed).
func assertTraceOrder(trace []ir.StepRecord, assertion Assertion) error {
	// First position of each expected key, 1-indexed for readability.
	positions := make(map[string]int)
	for i, rec := range trace {
		if positions[rec.Key] == 0 {
			positions[rec.Key] = i + 1
		}
	}

	for _, key := range assertion.Keys {
		if positions[key] == 0 {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("all steps present: %v", assertion.Keys),
				Actual:   fmt.Sprintf("missing step: %s", key),
				Trace:    trace,
			}
		}
	}

	for i := 1; i < len(assertion.Keys); i++ {
		prev := assertion.Keys[i-1]
		curr := assertion.Keys[i]

		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("steps in order: %v", assertion.Keys),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					prev, positions[prev], curr, positions[curr]),
				Trace: trace,
			}
		}
	}

	return nil
}

// assertTraceCount checks how many records match the status and step type.
func assertTraceCount(trace []ir.StepRecord, assertion Assertion) error {
	count := 0
	for _, rec := range trace {
		if assertion.Status != "" && string(rec.Status) != assertion.Status {
			continue
		}
		if assertion.StepType != "" && string(rec.Type) != assertion.StepType {
			continue
		}
		count++
	}

	if count != assertion.Count {
		filter := formatWhereClause(map[string]any{"status": assertion.Status, "step_type": assertion.StepType})
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d records where %s", assertion.Count, filter),
			Actual:   fmt.Sprintf("%d records", count),
			Trace:    trace,
		}
	}

	return nil
}

// assertFinalState checks a journal row using subset semantics. Tables with
// a run column are scoped to runID unless where names the run itself.
//
// Security: Table and column names are validated against a whitelist pattern
// to prevent SQL injection via identifier interpolation.
func assertFinalState(ctx context.Context, st *store.Store, runID string, assertion Assertion) error {
	if !validIdentifier.MatchString(assertion.Table) {
		return fmt.Errorf("invalid table name %q: must match pattern %s", assertion.Table, validIdentifier.String())
	}

	where := make(map[string]any, len(assertion.Where)+1)
	for k, v := range assertion.Where {
		where[k] = v
	}
	switch assertion.Table {
	case "runs":
		if _, ok := where["id"]; !ok {
			where["id"] = runID
		}
	case "steps", "resolutions":
		if _, ok := where["run_id"]; !ok {
			where["run_id"] = runID
		}
	}

	// Values are always bound as parameters
	whereSQL, whereArgs, err := buildWhereClause(where)
	if err != nil {
		return err
	}

	query := fmt.Sprintf("SELECT * FROM %s", assertion.Table)
	if whereSQL != "" {
		query += " WHERE " + whereSQL
	}

	rows, err := st.Query(ctx, query, whereArgs...)
	if err != nil {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("query table %s", assertion.Table),
			Actual:   fmt.Sprintf("query error: %v", err),
		}
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return fmt.Errorf("get columns: %w", err)
	}

	if !rows.Next() {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("row in %s where %s", assertion.Table, formatWhereClause(where)),
			Actual:   "row not found",
		}
	}

	values := make([]any, len(columns))
	valuePtrs := make([]any, len(columns))
	for i := range values {
		valuePtrs[i] = &values[i]
	}
	if err := rows.Scan(valuePtrs...); err != nil {
		return fmt.Errorf("scan row: %w", err)
	}

	// Multiple matching rows would make the assertion ambiguous
	if rows.Next() {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("exactly one row in %s where %s", assertion.Table, formatWhereClause(where)),
			Actual:   "multiple rows matched (assertion is ambiguous)",
		}
	}

	actualRow := make(map[string]any)
	for i, col := range columns {
		actualRow[col] = values[i]
	}

	keys := sortedKeys(assertion.Expect)
	for _, key := range keys {
		expectedValue := assertion.Expect[key]
		actualValue, exists := actualRow[key]
		if !exists {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("field %q to exist", key),
				Actual:   fmt.Sprintf("field %q not present in result columns: %v", key, columns),
			}
		}

		if !stateValuesEqual(expectedValue, actualValue) {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("field %q = %v (type %T)", key, expectedValue, expectedValue),
				Actual:   fmt.Sprintf("field %q = %v (type %T)", key, actualValue, actualValue),
			}
		}
	}

	return nil
}

// assertLedgerState checks the owner or resolver of a name in a deployed
// registry.
func assertLedgerState(l *memledger.Ledger, result *Result, assertion Assertion) error {
	registry, ok := lookupResolved(result.Resolved, ir.ComponentKind(assertion.Registry))
	if !ok {
		return &AssertionError{
			Type:     assertion.Type,
			Expected: fmt.Sprintf("%s to be deployed", assertion.Registry),
			Actual:   "not resolved",
		}
	}

	var want common.Address
	switch assertion.Is {
	case "none":
	case "operator":
		want = l.Operator()
	default:
		addr, ok := lookupResolved(result.Resolved, ir.ComponentKind(assertion.Is))
		if !ok {
			return &AssertionError{
				Type:     assertion.Type,
				Expected: fmt.Sprintf("%s to be deployed", assertion.Is),
				Actual:   "not resolved",
			}
		}
		want = addr
	}

	node := namehash.NameHash(assertion.Name)
	got := l.Owner(registry, node)
	if assertion.Type == AssertResolver {
		got = l.Resolver(registry, node)
	}
	if got != want {
		return &AssertionError{
			Type:     assertion.Type,
			Expected: fmt.Sprintf("%s of %q in %s = %s (%s)", assertion.Type, assertion.Name, assertion.Registry, want.Hex(), assertion.Is),
			Actual:   fmt.Sprintf("%s (%s)", got.Hex(), describeAddress(got, l, result.Resolved)),
		}
	}
	return nil
}

func describeAddress(addr common.Address, l *memledger.Ledger, resolved []ir.DeployedComponent) string {
	if addr == (common.Address{}) {
		return "none"
	}
	if addr == l.Operator() {
		return "operator"
	}
	for _, dc := range resolved {
		if common.HexToAddress(dc.Address) == addr {
			return string(dc.Kind)
		}
	}
	return "unknown"
}

func lookupResolved(resolved []ir.DeployedComponent, kind ir.ComponentKind) (common.Address, bool) {
	for _, dc := range resolved {
		if dc.Kind == kind {
			return common.HexToAddress(dc.Address), true
		}
	}
	return common.Address{}, false
}

// matchArgs compares rendered args position by position. "*" matches any
// value and ${kind} placeholders expand to resolved addresses. A nil
// expectation matches everything.
func matchArgs(actual, expected []string, resolved []ir.DeployedComponent) (bool, error) {
	if expected == nil {
		return true, nil
	}
	if len(actual) != len(expected) {
		return false, nil
	}
	for i, want := range expected {
		if want == "*" {
			continue
		}
		expanded, err := ir.ExpandTemplate(want, func(k ir.ComponentKind) (string, error) {
			addr, ok := lookupResolved(resolved, k)
			if !ok {
				return "", fmt.Errorf("args: %s is not resolved", k)
			}
			return addr.Hex(), nil
		})
		if err != nil {
			return false, err
		}
		if actual[i] != expanded {
			return false, nil
		}
	}
	return true, nil
}

// buildWhereClause constructs a parameterized WHERE clause.
// Keys are sorted for deterministic query generation.
func buildWhereClause(where map[string]any) (string, []any, error) {
	if len(where) == 0 {
		return "", nil, nil
	}

	keys := sortedKeys(where)
	clauses := make([]string, 0, len(keys))
	args := make([]any, 0, len(keys))

	for _, key := range keys {
		// Column names can't be parameterized
		if !validIdentifier.MatchString(key) {
			return "", nil, fmt.Errorf("invalid column name %q in where clause: must match pattern %s", key, validIdentifier.String())
		}
		clauses = append(clauses, fmt.Sprintf("%s = ?", key))
		args = append(args, toSQLValue(where[key]))
	}

	return strings.Join(clauses, " AND "), args, nil
}

// toSQLValue converts a YAML-decoded value to a SQL-compatible value.
func toSQLValue(v any) any {
	switch val := v.(type) {
	case string, int, int64, bool:
		return val
	default:
		return fmt.Sprintf("%v", val)
	}
}

// formatWhereClause creates a human-readable description of conditions.
// Empty values are omitted.
func formatWhereClause(where map[string]any) string {
	var parts []string
	for _, k := range sortedKeys(where) {
		if s, ok := where[k].(string); ok && s == "" {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s=%v", k, where[k]))
	}
	if len(parts) == 0 {
		return "(no conditions)"
	}
	return strings.Join(parts, " AND ")
}

// stateValuesEqual compares a YAML-decoded expectation with a value read
// from SQLite, which returns integers as int64 and text as string or []byte.
func stateValuesEqual(expected, actual any) bool {
	if expected == nil || actual == nil {
		return expected == nil && actual == nil
	}

	if b, ok := actual.([]byte); ok {
		actual = string(b)
	}

	switch exp := expected.(type) {
	case string:
		actualStr, ok := actual.(string)
		return ok && exp == actualStr
	case int:
		actualInt, ok := actual.(int64)
		return ok && int64(exp) == actualInt
	case int64:
		actualInt, ok := actual.(int64)
		return ok && exp == actualInt
	case bool:
		if actualBool, ok := actual.(bool); ok {
			return exp == actualBool
		}
		// SQLite stores booleans as integers
		if actualInt, ok := actual.(int64); ok {
			return exp == (actualInt != 0)
		}
		return false
	}

	return reflect.DeepEqual(expected, actual)
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
