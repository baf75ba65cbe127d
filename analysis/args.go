package analysis

import "fmt"

func arg(args []any, i int) (any, error) {
	if i >= len(args) {
		return nil, fmt.Errorf("%w: missing argument %d", ErrInvalidArgs, i)
	}
	return args[i], nil
}

func argInt(args []any, i int) (int, error) {
	v, err := arg(args, i)
	if err != nil {
		return 0, err
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		return int(n), nil
	}
	return 0, fmt.Errorf("%w: argument %d is %T, want integer", ErrInvalidArgs, i, v)
}

func argFloat(args []any, i int) (float64, error) {
	v, err := arg(args, i)
	if err != nil {
		return 0, err
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	}
	return 0, fmt.Errorf("%w: argument %d is %T, want number", ErrInvalidArgs, i, v)
}

func argString(args []any, i int) (string, error) {
	v, err := arg(args, i)
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%w: argument %d is %T, want string", ErrInvalidArgs, i, v)
	}
	return s, nil
}

func argBool(args []any, i int) (bool, error) {
	v, err := arg(args, i)
	if err != nil {
		return false, err
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("%w: argument %d is %T, want bool", ErrInvalidArgs, i, v)
	}
	return b, nil
}
