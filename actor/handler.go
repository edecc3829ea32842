package actor

import (
	"context"
	"errors"
	"fmt"
	"math"
	"reflect"
	"unicode"
	"unicode/utf8"
)

// ErrBadArgument is returned by a bound handler when a decoded argument cannot
// be converted to the Go parameter type.
var ErrBadArgument = errors.New("actor: argument does not fit parameter")

// Handler runs one method on decoded positional arguments.
type Handler func(ctx context.Context, args []any) (any, error)

// Handlers maps method names to handlers.
type Handlers map[string]Handler

var (
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
)

// Bind builds handlers for every method of spec from the exported methods of
// rcvr. Method "add" binds to rcvr.Add, which must look like
//
//	func (r *T) Add(ctx context.Context, a A, b B, ...) (R, error)
//	func (r *T) Add(ctx context.Context, a A, b B, ...) error
//
// Decoded arguments are converted to the parameter types: numbers to any
// numeric kind they fit exactly, []any to typed slices, nil to the zero value.
func Bind(spec *Spec, rcvr any) (Handlers, error) {
	val := reflect.ValueOf(rcvr)
	if val.Kind() != reflect.Ptr {
		return nil, fmt.Errorf("actor: rcvr must be a pointer, got %s", val.Kind())
	}

	handlers := make(Handlers, len(spec.methods))
	for name := range spec.methods {
		goName := exportedName(name)
		m := val.MethodByName(goName)
		if !m.IsValid() {
			return nil, fmt.Errorf("actor: %T has no method %s for %s.%s", rcvr, goName, spec.TypeName, name)
		}
		h, err := wrap(m)
		if err != nil {
			return nil, fmt.Errorf("actor: %T.%s: %w", rcvr, goName, err)
		}
		handlers[name] = h
	}
	return handlers, nil
}

func exportedName(name string) string {
	r, size := utf8.DecodeRuneInString(name)
	return string(unicode.ToUpper(r)) + name[size:]
}

func wrap(m reflect.Value) (Handler, error) {
	mt := m.Type()
	if mt.IsVariadic() {
		return nil, errors.New("variadic methods are not supported")
	}
	if mt.NumIn() < 1 || mt.In(0) != contextType {
		return nil, errors.New("first parameter must be context.Context")
	}
	switch {
	case mt.NumOut() == 1 && mt.Out(0) == errorType:
	case mt.NumOut() == 2 && mt.Out(1) == errorType:
	default:
		return nil, errors.New("results must be (R, error) or error")
	}

	params := make([]reflect.Type, mt.NumIn()-1)
	for i := range params {
		params[i] = mt.In(i + 1)
	}

	return func(ctx context.Context, args []any) (any, error) {
		if ctx == nil {
			ctx = context.Background()
		}
		in := make([]reflect.Value, 1+len(params))
		in[0] = reflect.ValueOf(ctx)
		for i, pt := range params {
			var arg any
			if i < len(args) {
				arg = args[i]
			}
			v, err := convert(arg, pt)
			if err != nil {
				return nil, fmt.Errorf("argument %d: %w", i, err)
			}
			in[i+1] = v
		}

		out := m.Call(in)
		errv := out[len(out)-1]
		if !errv.IsNil() {
			return nil, errv.Interface().(error)
		}
		if len(out) == 1 {
			return nil, nil
		}
		return out[0].Interface(), nil
	}, nil
}

func convert(arg any, t reflect.Type) (reflect.Value, error) {
	if arg == nil {
		return reflect.Zero(t), nil
	}
	v := reflect.ValueOf(arg)
	if v.Type().AssignableTo(t) {
		return v, nil
	}

	switch {
	case isNumeric(v.Kind()) && isNumeric(t.Kind()):
		return convertNumber(v, t)
	case v.Kind() == reflect.Slice && t.Kind() == reflect.Slice:
		out := reflect.MakeSlice(t, v.Len(), v.Len())
		for i := 0; i < v.Len(); i++ {
			elem, err := convert(v.Index(i).Interface(), t.Elem())
			if err != nil {
				return reflect.Value{}, err
			}
			out.Index(i).Set(elem)
		}
		return out, nil
	case t.Kind() == reflect.Ptr && v.Type().AssignableTo(t.Elem()):
		p := reflect.New(t.Elem())
		p.Elem().Set(v)
		return p, nil
	}
	return reflect.Value{}, fmt.Errorf("%w: %T into %s", ErrBadArgument, arg, t)
}

// convertNumber refuses conversions that would change the value: fractions
// into integers, and values outside the target's range.
func convertNumber(v reflect.Value, t reflect.Type) (reflect.Value, error) {
	out := reflect.New(t).Elem()
	ok := false
	switch {
	case v.CanFloat():
		ok = setFromFloat(out, v.Float())
	case v.CanInt():
		n := v.Int()
		switch {
		case out.CanInt():
			ok = !out.OverflowInt(n)
			if ok {
				out.SetInt(n)
			}
		case out.CanUint():
			ok = n >= 0 && !out.OverflowUint(uint64(n))
			if ok {
				out.SetUint(uint64(n))
			}
		default:
			ok = setFromFloat(out, float64(n))
		}
	default:
		n := v.Uint()
		switch {
		case out.CanInt():
			ok = n <= math.MaxInt64 && !out.OverflowInt(int64(n))
			if ok {
				out.SetInt(int64(n))
			}
		case out.CanUint():
			ok = !out.OverflowUint(n)
			if ok {
				out.SetUint(n)
			}
		default:
			ok = setFromFloat(out, float64(n))
		}
	}
	if !ok {
		return reflect.Value{}, fmt.Errorf("%w: %v into %s", ErrBadArgument, v.Interface(), t)
	}
	return out, nil
}

func setFromFloat(out reflect.Value, f float64) bool {
	switch {
	case out.CanInt():
		if f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 || out.OverflowInt(int64(f)) {
			return false
		}
		out.SetInt(int64(f))
	case out.CanUint():
		if f != math.Trunc(f) || f < 0 || f >= math.MaxUint64 || out.OverflowUint(uint64(f)) {
			return false
		}
		out.SetUint(uint64(f))
	default:
		if out.OverflowFloat(f) {
			return false
		}
		out.SetFloat(f)
	}
	return true
}

func isNumeric(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}
