package workload

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/mpisim/internal/mpi"
)

// Expr is an integer expression over the executing rank and the World size.
// YAML accepts both plain integers and strings for it.
type Expr string

// UnmarshalYAML accepts any scalar.
func (e *Expr) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: expected a scalar expression", node.Line)
	}
	*e = Expr(node.Value)
	return nil
}

// Eval evaluates e for the given rank and size.
//
// Grammar: operands are integer literals, "rank", "size" and "any" (the
// wildcard, -1); operators are + - * / %. Operators apply strictly left to
// right with no precedence, so "rank+1%size" is (rank+1) mod size.
func (e Expr) Eval(rank, size int) (int, error) {
	s := strings.ReplaceAll(string(e), " ", "")
	if s == "" {
		return 0, fmt.Errorf("empty expression")
	}

	var (
		acc   int
		op    byte = '+'
		start int
	)
	for i := 0; i <= len(s); i++ {
		if i < len(s) && !isOperator(s[i]) || i == start && i < len(s) && s[i] == '-' {
			continue
		}
		v, err := operand(s[start:i], rank, size)
		if err != nil {
			return 0, fmt.Errorf("expression %q: %w", string(e), err)
		}
		if acc, err = apply(acc, op, v); err != nil {
			return 0, fmt.Errorf("expression %q: %w", string(e), err)
		}
		if i < len(s) {
			op = s[i]
			start = i + 1
		}
	}
	return acc, nil
}

func isOperator(c byte) bool {
	return strings.IndexByte("+-*/%", c) >= 0
}

func operand(tok string, rank, size int) (int, error) {
	switch tok {
	case "rank":
		return rank, nil
	case "size":
		return size, nil
	case "any":
		return mpi.AnySource, nil
	case "":
		return 0, fmt.Errorf("missing operand")
	}
	v, err := strconv.Atoi(tok)
	if err != nil {
		return 0, fmt.Errorf("bad operand %q", tok)
	}
	return v, nil
}

func apply(acc int, op byte, v int) (int, error) {
	switch op {
	case '+':
		return acc + v, nil
	case '-':
		return acc - v, nil
	case '*':
		return acc * v, nil
	case '/', '%':
		if v == 0 {
			return 0, fmt.Errorf("division by zero")
		}
		if op == '/' {
			return acc / v, nil
		}
		return acc % v, nil
	}
	return 0, fmt.Errorf("unknown operator %q", op)
}
