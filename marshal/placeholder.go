package marshal

import (
	"errors"
	"fmt"
	"reflect"
	"sync"

	"mini-rdp/types"
)

// ErrNotOptions is returned when an Option's argument is not an options object.
var ErrNotOptions = errors.New("argument is not an options object")

// Placeholder binds a template leaf to an argument slot.
//
// Encode converts the selected argument into the wire value stored under key;
// ok reports whether the key should appear in the packet at all. Decode is the
// inverse: ok reports whether the key was present in the packet, and the
// decoded value is stored into args.
type Placeholder interface {
	Index() int
	Encode(arg any, ctx any, key string) (wire any, ok bool, err error)
	Decode(wire any, ok bool, ctx any, args []any, key string) error
}

// wireType resolves a type name against a registry the first time it is
// needed and remembers the outcome, lookup errors included.
type wireType struct {
	name string
	reg  *types.Registry

	once sync.Once
	typ  types.Type
	err  error
}

// bind sets the registry used for resolution unless one is already set.
// Only called while a template is being built.
func (w *wireType) bind(reg *types.Registry) {
	if w.reg == nil {
		w.reg = reg
	}
}

func (w *wireType) resolve() (types.Type, error) {
	w.once.Do(func() {
		reg := w.reg
		if reg == nil {
			reg = types.Default
		}
		w.typ, w.err = reg.Lookup(w.name)
	})
	return w.typ, w.err
}

// TypeName returns the declared wire type name.
func (w *wireType) TypeName() string { return w.name }

type binder interface {
	bind(reg *types.Registry)
}

// Arg binds a packet field to the argument at a fixed position.
type Arg struct {
	index int
	wireType
}

// NewArg returns a placeholder for argument index encoded as typeName.
// It panics if index is negative.
func NewArg(index int, typeName string) *Arg {
	if index < 0 {
		panic(fmt.Sprintf("marshal: negative argument index %d", index))
	}
	return &Arg{index: index, wireType: wireType{name: typeName}}
}

// Index returns the argument position.
func (a *Arg) Index() int { return a.index }

// Encode writes arg with the wire type. The field is always present.
func (a *Arg) Encode(arg any, ctx any, _ string) (any, bool, error) {
	t, err := a.resolve()
	if err != nil {
		return nil, false, err
	}
	v, err := t.Write(arg, ctx)
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

// Decode reads wire into args[Index()]. A missing field leaves the slot nil.
func (a *Arg) Decode(wire any, ok bool, ctx any, args []any, _ string) error {
	t, err := a.resolve()
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	v, err := t.Read(wire, ctx)
	if err != nil {
		return err
	}
	args[a.index] = v
	return nil
}

// Option binds a packet field to the property of the same name in an options
// object argument. Absent and nil properties are left out of the packet, and a
// field missing from a packet creates no property, so "not provided" stays
// distinct from a zero value.
type Option struct {
	Arg
}

// NewOption returns a placeholder for a property of the options object at
// argument index. It panics if index is negative.
func NewOption(index int, typeName string) *Option {
	if index < 0 {
		panic(fmt.Sprintf("marshal: negative argument index %d", index))
	}
	return &Option{Arg{index: index, wireType: wireType{name: typeName}}}
}

// Encode writes arg[key]. The options object may be any map keyed by
// strings. A nil options object or a nil/absent property yields ok == false.
func (o *Option) Encode(arg any, ctx any, key string) (any, bool, error) {
	if arg == nil {
		return nil, false, nil
	}
	v, err := property(arg, key)
	if err != nil {
		return nil, false, fmt.Errorf("%w: argument %d is %T", err, o.index, arg)
	}
	if v == nil {
		return nil, false, nil
	}
	t, err := o.resolve()
	if err != nil {
		return nil, false, err
	}
	wire, err := t.Write(v, ctx)
	if err != nil {
		return nil, false, err
	}
	return wire, true, nil
}

// property returns opts[key] for any map keyed by strings, or nil when the key
// is absent.
func property(opts any, key string) (any, error) {
	if m, ok := opts.(map[string]any); ok {
		return m[key], nil
	}
	rv := reflect.ValueOf(opts)
	if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
		return nil, ErrNotOptions
	}
	v := rv.MapIndex(reflect.ValueOf(key).Convert(rv.Type().Key()))
	if !v.IsValid() {
		return nil, nil
	}
	if (v.Kind() == reflect.Interface || v.Kind() == reflect.Ptr) && v.IsNil() {
		return nil, nil
	}
	return v.Interface(), nil
}

// Decode ensures args[Index()] is an options object and sets key on it when
// the field was present.
func (o *Option) Decode(wire any, ok bool, ctx any, args []any, key string) error {
	opts, isMap := args[o.index].(map[string]any)
	if !isMap {
		opts = make(map[string]any)
		args[o.index] = opts
	}
	if !ok {
		return nil
	}
	t, err := o.resolve()
	if err != nil {
		return err
	}
	v, err := t.Read(wire, ctx)
	if err != nil {
		return err
	}
	opts[key] = v
	return nil
}

// RetVal marks where a return value lives in a response template.
type RetVal struct {
	wireType
}

// NewRetVal returns a return value placeholder encoded as typeName.
func NewRetVal(typeName string) *RetVal {
	return &RetVal{wireType: wireType{name: typeName}}
}

func (r *RetVal) write(v any, ctx any) (any, error) {
	t, err := r.resolve()
	if err != nil {
		return nil, err
	}
	return t.Write(v, ctx)
}

func (r *RetVal) read(v any, ctx any) (any, error) {
	t, err := r.resolve()
	if err != nil {
		return nil, err
	}
	return t.Read(v, ctx)
}
