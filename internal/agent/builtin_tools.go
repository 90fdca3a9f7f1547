package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"strings"
	"time"
)

// ClockTool reports the current wallclock time, optionally in a named
// IANA timezone.
type ClockTool struct{}

func (ClockTool) Name() string        { return "get_current_time" }
func (ClockTool) Description() string { return "Get the current date and time (ISO-8601, UTC by default)." }

func (ClockTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"timezone": {
				"type": "string",
				"description": "IANA timezone name, e.g. Europe/Berlin. Defaults to UTC."
			}
		},
		"additionalProperties": false
	}`)
}

func (ClockTool) Execute(ctx context.Context, args map[string]any) (any, error) {
	location := time.UTC
	if name, ok := args["timezone"].(string); ok && name != "" {
		loc, err := time.LoadLocation(name)
		if err != nil {
			return nil, fmt.Errorf("unknown timezone %q", name)
		}
		location = loc
	}

	now := time.Now().In(location)
	return map[string]any{
		"time":     now.Format(time.RFC3339),
		"timezone": location.String(),
	}, nil
}

// SystemInfoTool reports host runtime facts.
type SystemInfoTool struct{}

func (SystemInfoTool) Name() string        { return "get_system_info" }
func (SystemInfoTool) Description() string { return "Get host operating system, architecture, and CPU count." }

func (SystemInfoTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {},
		"additionalProperties": false
	}`)
}

func (SystemInfoTool) Execute(ctx context.Context, args map[string]any) (any, error) {
	return map[string]any{
		"os":         runtime.GOOS,
		"arch":       runtime.GOARCH,
		"cpu_count":  runtime.NumCPU(),
		"go_version": runtime.Version(),
	}, nil
}

// CalculatorTool evaluates basic arithmetic. Input is restricted to
// digits, the four operators, parentheses, dots, and spaces before any
// parsing happens.
type CalculatorTool struct{}

func (CalculatorTool) Name() string { return "calculate_expression" }
func (CalculatorTool) Description() string {
	return "Evaluate a basic arithmetic expression with +, -, *, / and parentheses."
}

func (CalculatorTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"expression": {
				"type": "string",
				"description": "Arithmetic expression, e.g. \"2 + 3 * 4\"."
			}
		},
		"required": ["expression"],
		"additionalProperties": false
	}`)
}

const calculatorCharset = "0123456789+-*/.() "

func (CalculatorTool) Execute(ctx context.Context, args map[string]any) (any, error) {
	expr, _ := args["expression"].(string)
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, errors.New("expression is empty")
	}
	for _, r := range expr {
		if !strings.ContainsRune(calculatorCharset, r) {
			return nil, fmt.Errorf("disallowed character %q: only digits, + - * / . ( ) and spaces are accepted", r)
		}
	}

	value, err := evalExpression(expr)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"expression": expr,
		"result":     value,
	}, nil
}

// evalExpression parses and evaluates with standard precedence:
// unary sign, then * and /, then + and -.
func evalExpression(src string) (float64, error) {
	p := &exprParser{src: src}
	value, err := p.parseSum()
	if err != nil {
		return 0, err
	}
	p.skipSpaces()
	if p.pos != len(p.src) {
		return 0, fmt.Errorf("syntax error at position %d", p.pos)
	}
	return value, nil
}

type exprParser struct {
	src string
	pos int
}

func (p *exprParser) parseSum() (float64, error) {
	value, err := p.parseProduct()
	if err != nil {
		return 0, err
	}
	for {
		p.skipSpaces()
		op := p.peek()
		if op != '+' && op != '-' {
			return value, nil
		}
		p.pos++
		rhs, err := p.parseProduct()
		if err != nil {
			return 0, err
		}
		if op == '+' {
			value += rhs
		} else {
			value -= rhs
		}
	}
}

func (p *exprParser) parseProduct() (float64, error) {
	value, err := p.parseUnary()
	if err != nil {
		return 0, err
	}
	for {
		p.skipSpaces()
		op := p.peek()
		if op != '*' && op != '/' {
			return value, nil
		}
		p.pos++
		rhs, err := p.parseUnary()
		if err != nil {
			return 0, err
		}
		if op == '*' {
			value *= rhs
		} else {
			if rhs == 0 {
				return 0, errors.New("division by zero")
			}
			value /= rhs
		}
	}
}

func (p *exprParser) parseUnary() (float64, error) {
	p.skipSpaces()
	switch p.peek() {
	case '-':
		p.pos++
		value, err := p.parseUnary()
		return -value, err
	case '+':
		p.pos++
		return p.parseUnary()
	}
	return p.parseAtom()
}

func (p *exprParser) parseAtom() (float64, error) {
	p.skipSpaces()
	if p.peek() == '(' {
		p.pos++
		value, err := p.parseSum()
		if err != nil {
			return 0, err
		}
		p.skipSpaces()
		if p.peek() != ')' {
			return 0, fmt.Errorf("missing closing parenthesis at position %d", p.pos)
		}
		p.pos++
		return value, nil
	}

	start := p.pos
	for p.pos < len(p.src) && (p.src[p.pos] == '.' || (p.src[p.pos] >= '0' && p.src[p.pos] <= '9')) {
		p.pos++
	}
	if p.pos == start {
		return 0, fmt.Errorf("syntax error at position %d", start)
	}
	value, err := strconv.ParseFloat(p.src[start:p.pos], 64)
	if err != nil {
		return 0, fmt.Errorf("malformed number %q", p.src[start:p.pos])
	}
	return value, nil
}

func (p *exprParser) peek() byte {
	if p.pos < len(p.src) {
		return p.src[p.pos]
	}
	return 0
}

func (p *exprParser) skipSpaces() {
	for p.pos < len(p.src) && p.src[p.pos] == ' ' {
		p.pos++
	}
}

// cityDirectory is the canned dataset behind CityInfoTool.
var cityDirectory = map[string]map[string]any{
	"paris": {
		"country":     "France",
		"population":  "2,161,000",
		"temperature": "15°C",
		"weather":     "Partly cloudy",
		"timezone":    "Europe/Paris",
	},
	"london": {
		"country":     "United Kingdom",
		"population":  "8,982,000",
		"temperature": "12°C",
		"weather":     "Rainy",
		"timezone":    "Europe/London",
	},
	"tokyo": {
		"country":     "Japan",
		"population":  "13,960,000",
		"temperature": "22°C",
		"weather":     "Sunny",
		"timezone":    "Asia/Tokyo",
	},
	"new york": {
		"country":     "United States",
		"population":  "8,336,000",
		"temperature": "18°C",
		"weather":     "Cloudy",
		"timezone":    "America/New_York",
	},
}

// CityInfoTool stands in for a slow external API during demos. The
// dataset is canned and the latency simulated.
type CityInfoTool struct{}

func (CityInfoTool) Name() string { return "complex_api_call" }
func (CityInfoTool) Description() string {
	return "Look up country, population, weather, and timezone for a city (demo dataset: Paris, London, Tokyo, New York)."
}

func (CityInfoTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"city": {
				"type": "string",
				"description": "City name, case-insensitive."
			}
		},
		"required": ["city"],
		"additionalProperties": false
	}`)
}

func (CityInfoTool) Execute(ctx context.Context, args map[string]any) (any, error) {
	name, _ := args["city"].(string)

	// Simulated network latency, cancellable through the tool context.
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(100 * time.Millisecond):
	}

	data, ok := cityDirectory[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return map[string]any{
			"found":     false,
			"city":      name,
			"available": []string{"Paris", "London", "Tokyo", "New York"},
		}, nil
	}

	out := map[string]any{"found": true, "city": name}
	for k, v := range data {
		out[k] = v
	}
	return out, nil
}

// RegisterBuiltins installs the built-in tools on a registry.
func RegisterBuiltins(registry *ToolRegistry) error {
	for _, tool := range []Tool{CalculatorTool{}, CityInfoTool{}, ClockTool{}, SystemInfoTool{}} {
		if err := registry.Register(tool); err != nil {
			return err
		}
	}
	return nil
}
