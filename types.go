/*
 * Copyright (c) 2023 Zander Schwid & Co. LLC.
 * SPDX-License-Identifier: BUSL-1.1
 */

package sprout

import (
	"reflect"
	"sync"

	"github.com/pkg/errors"
)

var errorClass = reflect.TypeOf((*error)(nil)).Elem()

/**
Default type registry implementation.

Definitions keep type names as plain strings, this registry is the single place
where a name becomes a loaded type. Registration usually happens at program start,
resolution happens on first use of a definition.
*/

type typeRegistry struct {
	sync.RWMutex
	types map[string]reflect.Type
	ctors map[string][]reflect.Value
	funcs map[string][]reflect.Value
}

func NewTypeRegistry() TypeRegistry {
	return &typeRegistry{
		types: make(map[string]reflect.Type),
		ctors: make(map[string][]reflect.Value),
		funcs: make(map[string][]reflect.Value),
	}
}

func (t *typeRegistry) Register(name string, template interface{}) error {
	if name == "" {
		return errors.New("empty type name")
	}
	classPtr := reflect.TypeOf(template)
	if classPtr == nil || classPtr.Kind() != reflect.Ptr || classPtr.Elem().Kind() != reflect.Struct {
		return errors.Errorf("type template for '%s' must be a pointer to struct, but was '%v'", name, classPtr)
	}
	t.Lock()
	defer t.Unlock()
	if known, ok := t.types[name]; ok && known != classPtr {
		return errors.Errorf("type name '%s' already registered with '%v'", name, known)
	}
	t.types[name] = classPtr
	return nil
}

func (t *typeRegistry) RegisterConstructor(typeName string, ctor interface{}) error {
	fn, err := checkFactoryFunc(ctor)
	if err != nil {
		return errors.Errorf("constructor for type '%s': %v", typeName, err)
	}
	t.Lock()
	defer t.Unlock()
	t.ctors[typeName] = append(t.ctors[typeName], fn)
	return nil
}

func (t *typeRegistry) RegisterFunc(name string, fn interface{}) error {
	val, err := checkFactoryFunc(fn)
	if err != nil {
		return errors.Errorf("factory func '%s': %v", name, err)
	}
	t.Lock()
	defer t.Unlock()
	t.funcs[name] = append(t.funcs[name], val)
	return nil
}

func (t *typeRegistry) Resolve(name string) (reflect.Type, error) {
	t.RLock()
	defer t.RUnlock()
	if classPtr, ok := t.types[name]; ok {
		return classPtr, nil
	}
	return nil, errors.Errorf("type name '%s' is not registered", name)
}

func (t *typeRegistry) Constructors(typeName string) []reflect.Value {
	t.RLock()
	defer t.RUnlock()
	return append([]reflect.Value(nil), t.ctors[typeName]...)
}

func (t *typeRegistry) Funcs(name string) []reflect.Value {
	t.RLock()
	defer t.RUnlock()
	return append([]reflect.Value(nil), t.funcs[name]...)
}

/**
A factory func returns the object, optionally followed by an error.
*/

func checkFactoryFunc(fn interface{}) (reflect.Value, error) {
	val := reflect.ValueOf(fn)
	if !val.IsValid() || val.Kind() != reflect.Func {
		return reflect.Value{}, errors.Errorf("expected function, but was '%v'", reflect.TypeOf(fn))
	}
	ft := val.Type()
	switch ft.NumOut() {
	case 1:
		if ft.Out(0) == errorClass {
			return reflect.Value{}, errors.New("function returns only an error")
		}
	case 2:
		if ft.Out(1) != errorClass {
			return reflect.Value{}, errors.Errorf("second result must be an error, but was '%v'", ft.Out(1))
		}
	default:
		return reflect.Value{}, errors.Errorf("function must return the object and an optional error, but has %d results", ft.NumOut())
	}
	return val, nil
}

/**
callFactoryFunc invokes the candidate and normalizes the (object, error) results.
*/

func callFactoryFunc(fn reflect.Value, args []reflect.Value) (interface{}, error) {
	results := fn.Call(args)
	switch len(results) {
	case 1:
		return results[0].Interface(), nil
	case 2:
		if !results[1].IsNil() {
			return nil, results[1].Interface().(error)
		}
		return results[0].Interface(), nil
	default:
		return nil, errors.Errorf("unexpected results count %d from factory function", len(results))
	}
}
