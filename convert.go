/*
 * Copyright (c) 2023 Zander Schwid & Co. LLC.
 * SPDX-License-Identifier: BUSL-1.1
 */

package sprout

import (
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

var (
	durationClass = reflect.TypeOf(time.Millisecond)
	timeClass     = reflect.TypeOf(time.Time{})
)

/**
Default type converter.

String literals are parsed per target kind, everything else relies on assignability
with a numeric widening fallback. An empty string never coerces to a non-string type,
it is a type mismatch rather than a zero value.
*/

type defaultConverter struct {

	/**
	Layout for time.Time parsing, RFC3339 unless replaced
	*/
	layout string
}

func NewTypeConverter() TypeConverter {
	return &defaultConverter{layout: time.RFC3339}
}

func (t *defaultConverter) Convert(value interface{}, target reflect.Type) (reflect.Value, error) {

	if value == nil {
		switch target.Kind() {
		case reflect.Ptr, reflect.Interface, reflect.Slice, reflect.Map, reflect.Func, reflect.Chan:
			return reflect.Zero(target), nil
		}
		return reflect.Value{}, &TypeMismatchError{Value: value, TargetType: target.String()}
	}

	val := reflect.ValueOf(value)
	if val.Type() == target {
		return val, nil
	}
	if val.Type().AssignableTo(target) {
		return val, nil
	}

	if s, ok := value.(string); ok && target.Kind() != reflect.String {
		out, err := t.convertString(s, target)
		if err != nil {
			return reflect.Value{}, &TypeMismatchError{Value: value, TargetType: target.String(), Err: err}
		}
		return out, nil
	}

	if isNumeric(val.Type()) && isNumeric(target) && val.Type().ConvertibleTo(target) {
		return val.Convert(target), nil
	}
	if target.Kind() == reflect.String && val.Type().Kind() == reflect.String {
		return val.Convert(target), nil
	}

	return reflect.Value{}, &TypeMismatchError{Value: value, TargetType: target.String()}
}

func (t *defaultConverter) convertString(s string, target reflect.Type) (val reflect.Value, err error) {
	var v interface{}

	if s == "" && target.Kind() != reflect.String && !isArray(target) {
		return reflect.Value{}, errors.Errorf("empty string is not a valid '%v' literal", target)
	}

	switch {

	case isArray(target):
		parts := trimSplit(s, ";")
		slice := reflect.MakeSlice(target, 0, len(parts))
		for _, part := range parts {
			item, err := t.convertString(part, target.Elem())
			if err != nil {
				return slice, err
			}
			slice = reflect.Append(slice, item)
		}
		return slice, nil

	case isDuration(target):
		v, err = time.ParseDuration(s)

	case isTime(target):
		v, err = time.Parse(t.layout, s)

	case isBool(target):
		v, err = parseBool(s)

	case isString(target):
		v, err = s, nil

	case isFloat(target):
		v, err = strconv.ParseFloat(s, 64)

	case isInt(target):
		v, err = strconv.ParseInt(s, 10, 64)

	case isUint(target):
		v, err = strconv.ParseUint(s, 10, 64)

	default:
		return reflect.Zero(target), errors.Errorf("unsupported conversion target %s", target)
	}

	if err != nil {
		return reflect.Zero(target), err
	}

	return reflect.ValueOf(v).Convert(target), nil
}

func isBool(t reflect.Type) bool {
	return t.Kind() == reflect.Bool
}

func isString(t reflect.Type) bool {
	return t.Kind() == reflect.String
}

func isFloat(t reflect.Type) bool {
	return t.Kind() == reflect.Float32 || t.Kind() == reflect.Float64
}

func isInt(t reflect.Type) bool {
	return t.Kind() == reflect.Int || t.Kind() == reflect.Int8 || t.Kind() == reflect.Int16 || t.Kind() == reflect.Int32 || t.Kind() == reflect.Int64
}

func isUint(t reflect.Type) bool {
	return t.Kind() == reflect.Uint || t.Kind() == reflect.Uint8 || t.Kind() == reflect.Uint16 || t.Kind() == reflect.Uint32 || t.Kind() == reflect.Uint64
}

func isNumeric(t reflect.Type) bool {
	return isInt(t) || isUint(t) || isFloat(t)
}

func isDuration(t reflect.Type) bool {
	return t == durationClass
}

func isTime(t reflect.Type) bool {
	return t == timeClass
}

func isArray(t reflect.Type) bool {
	return t.Kind() == reflect.Slice
}

/**
Simple types in the dependency check sense, values rather than collaborators.
*/

func isSimpleType(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return t == timeClass || t == durationClass
}

func parseBool(str string) (bool, error) {
	switch str {
	case "1", "t", "T", "true", "TRUE", "True", "on", "ON", "On":
		return true, nil
	case "0", "f", "F", "false", "FALSE", "False", "off", "OFF", "Off":
		return false, nil
	}
	return false, errors.Errorf("invalid syntax '%s'", str)
}

func trimSplit(s string, sep string) []string {
	var a []string
	for _, v := range strings.Split(s, sep) {
		if v = strings.TrimSpace(v); v != "" {
			a = append(a, v)
		}
	}
	return a
}
