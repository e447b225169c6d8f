// Package keyof derives key functions for record types from struct fields and
// keeps one key definition per type.
//
// A key field is either named explicitly or marked with the struct tag
// `series:"key"`. The field must be exported and of a signed integer kind.
package keyof

import (
	"errors"
	"fmt"
	"reflect"
	"sync"
	"unsafe"

	"golang.org/x/exp/constraints"
)

// TagName is the struct tag key that marks a key field.
const TagName = "series"

const tagKey = "key"

// Sentinel errors.
var (
	// ErrNotStruct is returned for record types that are not structs.
	ErrNotStruct = errors.New("keyof: record type is not a struct")
	// ErrNoField is returned when the key field does not exist or is unexported.
	ErrNoField = errors.New("keyof: key field not found")
	// ErrFieldType is returned when the key field is not a signed integer.
	ErrFieldType = errors.New("keyof: key field is not a signed integer")
	// ErrInconsistentKey is returned when a type is registered again with a
	// different field or key type.
	ErrInconsistentKey = errors.New("keyof: inconsistent key for registered type")
	// ErrNotRegistered is returned by Lookup for unknown types.
	ErrNotRegistered = errors.New("keyof: type not registered")
)

// Field returns a function reading the named field of T as K. An empty name
// selects the field tagged `series:"key"`.
func Field[T any, K constraints.Signed](name string) (func(T) K, error) {
	field, err := resolve(reflect.TypeFor[T](), name)
	if err != nil {
		return nil, err
	}

	if len(field.Index) == 1 {
		return direct[T, K](field.Type.Kind(), field.Offset), nil
	}

	index := field.Index

	return func(v T) K {
		return K(reflect.ValueOf(v).FieldByIndex(index).Int())
	}, nil
}

// direct reads a top-level field at offset without boxing the record.
func direct[T any, K constraints.Signed](kind reflect.Kind, offset uintptr) func(T) K {
	switch kind {
	case reflect.Int8:
		return func(v T) K { return K(*(*int8)(unsafe.Add(unsafe.Pointer(&v), offset))) }
	case reflect.Int16:
		return func(v T) K { return K(*(*int16)(unsafe.Add(unsafe.Pointer(&v), offset))) }
	case reflect.Int32:
		return func(v T) K { return K(*(*int32)(unsafe.Add(unsafe.Pointer(&v), offset))) }
	case reflect.Int:
		return func(v T) K { return K(*(*int)(unsafe.Add(unsafe.Pointer(&v), offset))) }
	default:
		return func(v T) K { return K(*(*int64)(unsafe.Add(unsafe.Pointer(&v), offset))) }
	}
}

func resolve(typ reflect.Type, name string) (reflect.StructField, error) {
	if typ.Kind() != reflect.Struct {
		return reflect.StructField{}, fmt.Errorf("%w: %s", ErrNotStruct, typ)
	}

	var (
		field reflect.StructField
		found bool
	)

	if name == "" {
		for i := range typ.NumField() {
			if typ.Field(i).Tag.Get(TagName) == tagKey {
				field, found = typ.Field(i), true

				break
			}
		}
	} else {
		field, found = typ.FieldByName(name)
	}

	if !found || !field.IsExported() {
		return reflect.StructField{}, fmt.Errorf("%w: %s.%q", ErrNoField, typ, name)
	}

	switch field.Type.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return field, nil
	default:
		return reflect.StructField{}, fmt.Errorf("%w: %s.%s is %s", ErrFieldType, typ, field.Name, field.Type)
	}
}

type entry struct {
	field   string
	keyType reflect.Type
	fn      any
}

// Registry maps record types to their key functions. It is safe for
// concurrent use.
type Registry struct {
	mu      sync.Mutex
	entries map[reflect.Type]entry
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[reflect.Type]entry)}
}

// Default is the process-wide registry.
var Default = NewRegistry()

// Register binds T to the key field name (empty for the tagged field) with
// key type K and returns the key function. Registering T again with the same
// field and key type returns the existing function.
func Register[T any, K constraints.Signed](r *Registry, name string) (func(T) K, error) {
	typ := reflect.TypeFor[T]()

	field, err := resolve(typ, name)
	if err != nil {
		return nil, err
	}

	keyType := reflect.TypeFor[K]()

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.entries[typ]; ok {
		if existing.field != field.Name || existing.keyType != keyType {
			return nil, fmt.Errorf("%w: %s keyed by %s (%s), not %s (%s)",
				ErrInconsistentKey, typ, existing.field, existing.keyType, field.Name, keyType)
		}

		fn, _ := existing.fn.(func(T) K)

		return fn, nil
	}

	fn, err := Field[T, K](field.Name)
	if err != nil {
		return nil, err
	}

	r.entries[typ] = entry{field: field.Name, keyType: keyType, fn: fn}

	return fn, nil
}

// Lookup returns the key function registered for T.
func Lookup[T any, K constraints.Signed](r *Registry) (func(T) K, error) {
	typ := reflect.TypeFor[T]()

	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.entries[typ]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotRegistered, typ)
	}

	fn, ok := existing.fn.(func(T) K)
	if !ok {
		return nil, fmt.Errorf("%w: %s keyed by %s", ErrInconsistentKey, typ, existing.keyType)
	}

	return fn, nil
}

// Must panics if err is non-nil and returns fn otherwise.
func Must[T any, K constraints.Signed](fn func(T) K, err error) func(T) K {
	if err != nil {
		panic(err)
	}

	return fn
}
