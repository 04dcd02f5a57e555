package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// ErrorKind classifies why a calculation could not produce a value.
type ErrorKind int

const (
	KindTooFewNumbers ErrorKind = iota + 1
	KindUnsupportedOperation
	KindDivisionByZero
	KindInvalidArgument
)

func (k ErrorKind) String() string {
	switch k {
	case KindTooFewNumbers:
		return "too_few_numbers"
	case KindUnsupportedOperation:
		return "unsupported_operation"
	case KindDivisionByZero:
		return "division_by_zero"
	case KindInvalidArgument:
		return "invalid_argument"
	default:
		return "unknown"
	}
}

// CalcError is returned by Calculate. Its message is what the user sees,
// prefixed with "Error: " by the dispatcher.
type CalcError struct {
	Kind ErrorKind
	Msg  string
}

func (e *CalcError) Error() string { return e.Msg }

var (
	errTooFewNumbers = &CalcError{Kind: KindTooFewNumbers, Msg: "Provide at least two numbers."}
	errUnsupportedOp = &CalcError{Kind: KindUnsupportedOperation, Msg: "Unsupported operation. Use 'add', 'subtract', 'multiply', or 'divide'."}
	errDivideByZero  = &CalcError{Kind: KindDivisionByZero, Msg: "Division by zero is not allowed."}
	errOutOfRange    = &CalcError{Kind: KindInvalidArgument, Msg: "Result is out of range."}
)

// Calculate folds numbers left to right with the named operation. A result
// that overflows to an infinity is reported as out of range.
func Calculate(operation string, numbers []float64) (float64, error) {
	result, err := fold(operation, numbers)
	if err != nil {
		return 0, err
	}
	if math.IsInf(result, 0) || math.IsNaN(result) {
		return 0, errOutOfRange
	}
	return result, nil
}

func fold(operation string, numbers []float64) (float64, error) {
	if len(numbers) < 2 {
		return 0, errTooFewNumbers
	}

	switch operation {
	case "add":
		var sum float64
		for _, n := range numbers {
			sum += n
		}
		return sum, nil
	case "subtract":
		result := numbers[0]
		var rest float64
		for _, n := range numbers[1:] {
			rest += n
		}
		return result - rest, nil
	case "multiply":
		result := 1.0
		for _, n := range numbers {
			result *= n
		}
		return result, nil
	case "divide":
		result := numbers[0]
		for _, n := range numbers[1:] {
			if n == 0 {
				return 0, errDivideByZero
			}
			result /= n
		}
		return result, nil
	default:
		return 0, errUnsupportedOp
	}
}

// FormatNumber renders a result without a trailing ".0" or exponent noise.
func FormatNumber(v float64) string {
	if v == 0 {
		v = 0 // drop the sign of -0
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Calculator exposes Calculate as the "calculate" tool.
type Calculator struct{}

// NewCalculator creates the calculate tool.
func NewCalculator() *Calculator { return &Calculator{} }

func (c *Calculator) Name() string        { return "calculate" }
func (c *Calculator) Description() string { return "Perform mathematical calculations" }
func (c *Calculator) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"operation": {"type": "string", "enum": ["add", "subtract", "multiply", "divide"], "description": "The operation to perform (add, subtract, multiply, divide)"},
			"numbers": {"type": "array", "items": {"type": "number"}, "description": "A list of numbers to process"}
		},
		"required": ["operation", "numbers"]
	}`)
}

func (c *Calculator) Execute(_ context.Context, args map[string]any) (string, error) {
	operation, numbers, err := decodeCalculateArgs(args)
	if err != nil {
		return "", err
	}
	result, err := Calculate(operation, numbers)
	if err != nil {
		return "", err
	}
	return FormatNumber(result), nil
}

// decodeCalculateArgs validates the loosely typed argument map. A missing or
// non-list "numbers" is reported like a short list.
func decodeCalculateArgs(args map[string]any) (string, []float64, error) {
	var raw []any
	switch v := args["numbers"].(type) {
	case []any:
		raw = v
	case []float64:
		raw = make([]any, len(v))
		for i, n := range v {
			raw[i] = n
		}
	case []int:
		raw = make([]any, len(v))
		for i, n := range v {
			raw[i] = n
		}
	default:
		return "", nil, errTooFewNumbers
	}
	if len(raw) < 2 {
		return "", nil, errTooFewNumbers
	}

	operation, _ := args["operation"].(string)
	switch operation {
	case "add", "subtract", "multiply", "divide":
	default:
		return "", nil, errUnsupportedOp
	}

	// Elements are checked in fold order, so a zero divisor is reported
	// before a bad element that follows it.
	numbers := make([]float64, len(raw))
	for i, v := range raw {
		n, ok := toFloat(v)
		if !ok {
			return "", nil, &CalcError{
				Kind: KindInvalidArgument,
				Msg:  fmt.Sprintf("numbers[%d] is not a number (got %T).", i, v),
			}
		}
		if operation == "divide" && i > 0 && n == 0 {
			return "", nil, errDivideByZero
		}
		numbers[i] = n
	}
	return operation, numbers, nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
