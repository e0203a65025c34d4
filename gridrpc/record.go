// Copyright 2025-2026, GridMesh Labs
// SPDX-License-Identifier: Apache-2.0

package gridrpc

import (
	"fmt"
	"reflect"
	"sync"
)

// Record structs are declared with `gridrpc` struct tags naming each wire
// field:
//
//	type Shard struct {
//		Rank  int64    `gridrpc:"rank"`
//		Hosts []string `gridrpc:"hosts"`
//		notes string   // untagged: never crosses the wire
//	}
//	gridrpc.RegisterRecord[Shard]("cluster.Shard")
//
// A registered record encodes as a named wire token and decodes back to
// *Shard on any worker that registered the same name. Record symbol names,
// like callable symbols, are an out-of-band agreement between the two
// sides; decoding an unregistered name yields a SymbolResolutionError
// failure value.

var (
	recordsMu         sync.RWMutex
	recordTypesByName = make(map[string]reflect.Type)
	recordNamesByType = make(map[reflect.Type]string)
)

// RegisterRecord registers the struct type T under a wire symbol name.
// Call it once per type at startup, before any codec use; registering the
// same name for a different type panics.
func RegisterRecord[T any](name string) {
	t := reflect.TypeOf((*T)(nil)).Elem()
	if t.Kind() != reflect.Struct {
		panic(fmt.Sprintf("gridrpc: RegisterRecord requires a struct type, got %s", t))
	}
	recordsMu.Lock()
	defer recordsMu.Unlock()
	if prev, ok := recordTypesByName[name]; ok && prev != t {
		panic(fmt.Sprintf("gridrpc: record name %q already registered for %s", name, prev))
	}
	recordTypesByName[name] = t
	recordNamesByType[t] = name
}

// recordOf reports whether rv (a struct or pointer to struct) is a
// registered record, returning its wire name and the struct value.
func recordOf(rv reflect.Value) (string, reflect.Value, bool) {
	t := rv.Type()
	if t.Kind() == reflect.Ptr && t.Elem().Kind() == reflect.Struct {
		if rv.IsNil() {
			return "", reflect.Value{}, false
		}
		t = t.Elem()
		rv = rv.Elem()
	}
	if t.Kind() != reflect.Struct {
		return "", reflect.Value{}, false
	}
	recordsMu.RLock()
	name, ok := recordNamesByType[t]
	recordsMu.RUnlock()
	return name, rv, ok
}

func lookupRecordType(name string) (reflect.Type, bool) {
	recordsMu.RLock()
	t, ok := recordTypesByName[name]
	recordsMu.RUnlock()
	return t, ok
}

// fieldWireName returns the wire name for a struct field, or false for
// fields that do not cross the wire (untagged, or tagged "-").
func fieldWireName(f reflect.StructField) (string, bool) {
	tag := f.Tag.Get("gridrpc")
	if tag == "" || tag == "-" || !f.IsExported() {
		return "", false
	}
	return tag, true
}

// flattenRecord walks a record's tagged fields in declaration order (the
// canonical pre-order for buffer index assignment) into a record token.
func (c *Codec) flattenRecord(name string, st reflect.Value, ectx *EncodeContext) (any, error) {
	t := st.Type()
	fields := make(map[string]any, t.NumField())
	for i := range t.NumField() {
		wireName, ok := fieldWireName(t.Field(i))
		if !ok {
			continue
		}
		fv, err := c.flatten(st.Field(i).Interface(), ectx)
		if err != nil {
			return nil, fmt.Errorf("gridrpc: record %s field %q: %w", name, wireName, err)
		}
		fields[wireName] = fv
	}
	return recordToken{Name: name, Fields: fields}, nil
}

// buildRecord reconstructs a registered record from its wire token,
// returning a pointer to the concrete struct. Fields absent from the token
// keep their zero value, so adding fields is forward compatible.
func (c *Codec) buildRecord(tok recordToken, dctx *DecodeContext) (any, error) {
	t, ok := lookupRecordType(tok.Name)
	if !ok {
		return nil, &symbolError{what: "record type", symbol: tok.Name}
	}
	ptr := reflect.New(t)
	st := ptr.Elem()
	for i := range t.NumField() {
		wireName, ok := fieldWireName(t.Field(i))
		if !ok {
			continue
		}
		fv, ok := tok.Fields[wireName]
		if !ok {
			continue
		}
		rv, err := c.rebuild(fv, dctx)
		if err != nil {
			return nil, fmt.Errorf("gridrpc: record %s field %q: %w", tok.Name, wireName, err)
		}
		if err := assignValue(st.Field(i), rv); err != nil {
			return nil, fmt.Errorf("gridrpc: record %s field %q: %w", tok.Name, wireName, err)
		}
	}
	return ptr.Interface(), nil
}

// assignValue sets a struct field from a rebuilt canonical value,
// converting between the canonical scalar widths and the field's declared
// type.
func assignValue(field reflect.Value, v any) error {
	if v == nil {
		return nil
	}
	ft := field.Type()
	vv := reflect.ValueOf(v)
	if vv.Type().AssignableTo(ft) {
		field.Set(vv)
		return nil
	}

	switch ft.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, ok := v.(int64)
		if !ok {
			return fmt.Errorf("cannot assign %T to %s", v, ft)
		}
		if field.OverflowInt(n) {
			return fmt.Errorf("value %d overflows %s", n, ft)
		}
		field.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, ok := v.(int64)
		if !ok || n < 0 {
			return fmt.Errorf("cannot assign %T (%v) to %s", v, v, ft)
		}
		if field.OverflowUint(uint64(n)) {
			return fmt.Errorf("value %d overflows %s", n, ft)
		}
		field.SetUint(uint64(n))
	case reflect.Float32, reflect.Float64:
		switch n := v.(type) {
		case float64:
			field.SetFloat(n)
		case int64:
			field.SetFloat(float64(n))
		default:
			return fmt.Errorf("cannot assign %T to %s", v, ft)
		}
	case reflect.Slice:
		if ft.Elem().Kind() == reflect.Uint8 {
			b, ok := v.([]byte)
			if !ok {
				return fmt.Errorf("cannot assign %T to %s", v, ft)
			}
			field.SetBytes(b)
			return nil
		}
		els, ok := v.([]any)
		if !ok {
			return fmt.Errorf("cannot assign %T to %s", v, ft)
		}
		out := reflect.MakeSlice(ft, len(els), len(els))
		for i, el := range els {
			if err := assignValue(out.Index(i), el); err != nil {
				return fmt.Errorf("element %d: %w", i, err)
			}
		}
		field.Set(out)
	case reflect.Map:
		if ft.Key().Kind() != reflect.String {
			return fmt.Errorf("cannot assign %T to %s", v, ft)
		}
		els, ok := v.(map[string]any)
		if !ok {
			return fmt.Errorf("cannot assign %T to %s", v, ft)
		}
		out := reflect.MakeMapWithSize(ft, len(els))
		for k, el := range els {
			ev := reflect.New(ft.Elem()).Elem()
			if err := assignValue(ev, el); err != nil {
				return fmt.Errorf("key %q: %w", k, err)
			}
			out.SetMapIndex(reflect.ValueOf(k).Convert(ft.Key()), ev)
		}
		field.Set(out)
	case reflect.Ptr:
		el := reflect.New(ft.Elem())
		if err := assignValue(el.Elem(), v); err != nil {
			return err
		}
		field.Set(el)
	default:
		// Includes non-empty interface fields: the assignability check above
		// is the only way to satisfy an interface, so reaching here means
		// the wire value cannot implement it.
		return fmt.Errorf("cannot assign %T to %s", v, ft)
	}
	return nil
}
