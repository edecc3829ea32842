package types

import (
	"encoding/base64"
	"reflect"
)

func primitives() []Type {
	identity := func(v any, _ any) (any, error) { return v, nil }
	return []Type{
		&Func{TypeName: "json", WriteFunc: identity, ReadFunc: identity},
		&Func{TypeName: "string", WriteFunc: checkString, ReadFunc: checkString},
		&Func{TypeName: "number", WriteFunc: toNumber, ReadFunc: toNumber},
		&Func{TypeName: "boolean", WriteFunc: checkBool, ReadFunc: checkBool},
		&Func{TypeName: "bytes", WriteFunc: writeBytes, ReadFunc: readBytes},
	}
}

// Primitives pass nil through so that a missing argument stays missing.

func checkString(v any, _ any) (any, error) {
	switch v.(type) {
	case nil, string:
		return v, nil
	}
	return nil, mismatch("string", v)
}

func checkBool(v any, _ any) (any, error) {
	switch v.(type) {
	case nil, bool:
		return v, nil
	}
	return nil, mismatch("boolean", v)
}

// toNumber normalizes every Go numeric kind to float64. JSON decoding yields
// float64 while msgpack decoding yields int64 or uint64.
func toNumber(v any, _ any) (any, error) {
	if v == nil {
		return nil, nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return float64(rv.Uint()), nil
	case reflect.Float32, reflect.Float64:
		return rv.Float(), nil
	}
	return nil, mismatch("number", v)
}

func writeBytes(v any, _ any) (any, error) {
	switch b := v.(type) {
	case nil:
		return nil, nil
	case []byte:
		return base64.StdEncoding.EncodeToString(b), nil
	}
	return nil, mismatch("bytes", v)
}

func readBytes(v any, _ any) (any, error) {
	switch b := v.(type) {
	case nil:
		return nil, nil
	case []byte:
		return b, nil
	case string:
		out, err := base64.StdEncoding.DecodeString(b)
		if err != nil {
			return nil, mismatch("bytes", v)
		}
		return out, nil
	}
	return nil, mismatch("bytes", v)
}

type arrayType struct {
	name string
	elem Type
}

func (t *arrayType) Name() string { return t.name }

func (t *arrayType) Write(v any, ctx any) (any, error) { return t.each(v, ctx, t.elem.Write) }

func (t *arrayType) Read(v any, ctx any) (any, error) { return t.each(v, ctx, t.elem.Read) }

func (t *arrayType) each(v any, ctx any, conv func(any, any) (any, error)) (any, error) {
	items, ok := v.([]any)
	if !ok {
		rv := reflect.ValueOf(v)
		if v == nil || rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
			return nil, mismatch(t.name, v)
		}
		items = make([]any, rv.Len())
		for i := range items {
			items[i] = rv.Index(i).Interface()
		}
	}
	out := make([]any, len(items))
	for i, item := range items {
		c, err := conv(item, ctx)
		if err != nil {
			return nil, err
		}
		out[i] = c
	}
	return out, nil
}

type nullableType struct {
	name string
	elem Type
}

func (t *nullableType) Name() string { return t.name }

func (t *nullableType) Write(v any, ctx any) (any, error) {
	if v == nil {
		return nil, nil
	}
	return t.elem.Write(v, ctx)
}

func (t *nullableType) Read(v any, ctx any) (any, error) {
	if v == nil {
		return nil, nil
	}
	return t.elem.Read(v, ctx)
}

// mapType is dict:T, an object with arbitrary keys and uniformly typed values.
type mapType struct {
	name string
	elem Type
}

func (t *mapType) Name() string { return t.name }

func (t *mapType) Write(v any, ctx any) (any, error) { return t.each(v, ctx, t.elem.Write) }

func (t *mapType) Read(v any, ctx any) (any, error) { return t.each(v, ctx, t.elem.Read) }

func (t *mapType) each(v any, ctx any, conv func(any, any) (any, error)) (any, error) {
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, mismatch(t.name, v)
	}
	out := make(map[string]any, len(obj))
	for k, item := range obj {
		c, err := conv(item, ctx)
		if err != nil {
			return nil, err
		}
		out[k] = c
	}
	return out, nil
}

// dictType is a named object type with a declared type per field.
type dictType struct {
	name   string
	fields map[string]string
	reg    *Registry
}

func (t *dictType) Name() string { return t.name }

func (t *dictType) Write(v any, ctx any) (any, error) {
	return t.each(v, ctx, func(ft Type, item any) (any, error) { return ft.Write(item, ctx) })
}

func (t *dictType) Read(v any, ctx any) (any, error) {
	return t.each(v, ctx, func(ft Type, item any) (any, error) { return ft.Read(item, ctx) })
}

func (t *dictType) each(v any, _ any, conv func(Type, any) (any, error)) (any, error) {
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, mismatch(t.name, v)
	}
	out := make(map[string]any, len(obj))
	for k, item := range obj {
		typeName, typed := t.fields[k]
		if !typed {
			out[k] = item
			continue
		}
		ft, err := t.reg.Lookup(typeName)
		if err != nil {
			return nil, err
		}
		c, err := conv(ft, item)
		if err != nil {
			return nil, err
		}
		out[k] = c
	}
	return out, nil
}
