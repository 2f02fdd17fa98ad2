/*
 * Copyright (c) 2023 Zander Schwid & Co. LLC.
 * SPDX-License-Identifier: BUSL-1.1
 */

package sprout

import (
	"reflect"
	"strings"

	"github.com/pkg/errors"
)

/**
PlaceholderConfigurer substitutes ${key} and ${key:default} markers in string
values of pending property sets with values from the property source. Nested
markers resolve innermost first. An unresolvable marker without a default fails
the bean unless IgnoreUnresolvable is set.
*/

type PlaceholderConfigurer struct {
	Source             Properties
	IgnoreUnresolvable bool
}

func NewPlaceholderConfigurer(source Properties) *PlaceholderConfigurer {
	return &PlaceholderConfigurer{Source: source}
}

func (t *PlaceholderConfigurer) BeforeInstantiation(beanType reflect.Type, beanName string) (Processed, error) {
	return Keep, nil
}

func (t *PlaceholderConfigurer) AfterInstantiation(obj interface{}, beanName string) (bool, error) {
	return true, nil
}

func (t *PlaceholderConfigurer) ProcessProperties(pvs *PropertyValues, obj interface{}, beanName string) (*PropertyValues, error) {
	for _, pv := range pvs.List() {
		resolved, err := t.resolveValue(pv.Value)
		if err != nil {
			return nil, errors.Errorf("placeholder in property '%s' of bean '%s': %v", pv.Name, beanName, err)
		}
		pv.Value = resolved
	}
	return pvs, nil
}

func (t *PlaceholderConfigurer) resolveValue(value interface{}) (interface{}, error) {
	switch v := value.(type) {

	case string:
		return t.resolveString(v)

	case TypedString:
		resolved, err := t.resolveString(v.Value)
		if err != nil {
			return nil, err
		}
		return TypedString{Value: resolved, TypeName: v.TypeName}, nil

	case *ManagedList:
		values, err := t.resolveSlice(v.Values)
		if err != nil {
			return nil, err
		}
		return &ManagedList{MergeEnabled: v.MergeEnabled, ElemTypeName: v.ElemTypeName, Values: values}, nil

	case *ManagedSet:
		values, err := t.resolveSlice(v.Values)
		if err != nil {
			return nil, err
		}
		return &ManagedSet{MergeEnabled: v.MergeEnabled, ElemTypeName: v.ElemTypeName, Values: values}, nil

	case *ManagedMap:
		out := &ManagedMap{MergeEnabled: v.MergeEnabled, KeyTypeName: v.KeyTypeName, ValueTypeName: v.ValueTypeName}
		for _, entry := range v.Entries {
			key, err := t.resolveValue(entry.Key)
			if err != nil {
				return nil, err
			}
			val, err := t.resolveValue(entry.Value)
			if err != nil {
				return nil, err
			}
			out.Entries = append(out.Entries, ManagedEntry{Key: key, Value: val})
		}
		return out, nil

	case *ManagedProps:
		out := &ManagedProps{MergeEnabled: v.MergeEnabled}
		for _, entry := range v.Entries {
			key, err := t.resolveValue(entry.Key)
			if err != nil {
				return nil, err
			}
			val, err := t.resolveValue(entry.Value)
			if err != nil {
				return nil, err
			}
			out.Entries = append(out.Entries, ManagedEntry{Key: key, Value: val})
		}
		return out, nil

	default:
		return value, nil
	}
}

func (t *PlaceholderConfigurer) resolveSlice(values []interface{}) ([]interface{}, error) {
	out := make([]interface{}, 0, len(values))
	for _, item := range values {
		resolved, err := t.resolveValue(item)
		if err != nil {
			return nil, err
		}
		out = append(out, resolved)
	}
	return out, nil
}

/**
resolveString substitutes all markers in the string. Innermost markers resolve
first, so a resolved key can form the name of an outer marker.
*/

func (t *PlaceholderConfigurer) resolveString(s string) (string, error) {

	for {
		open, end := innermostMarker(s)
		if open < 0 {
			return s, nil
		}

		expr := s[open+2 : end]
		key, def := expr, ""
		hasDefault := false
		if sep := strings.IndexByte(expr, ':'); sep >= 0 {
			key, def = expr[:sep], expr[sep+1:]
			hasDefault = true
		}

		value, ok := t.Source.Get(key)
		if !ok {
			if hasDefault {
				value = def
			} else if t.IgnoreUnresolvable {
				return s, nil
			} else {
				return "", errors.Errorf("unresolvable placeholder '${%s}'", key)
			}
		}

		s = s[:open] + value + s[end+1:]
	}
}

/**
innermostMarker finds an innermost ${...} occurrence, -1 when none are left.
*/

func innermostMarker(s string) (int, int) {
	open := -1
	for i := 0; i+1 < len(s); i++ {
		if s[i] == '$' && s[i+1] == '{' {
			open = i
			i++
			continue
		}
		if s[i] == '}' && open >= 0 {
			return open, i
		}
	}
	if open >= 0 {
		if rel := strings.IndexByte(s[open:], '}'); rel >= 0 {
			return open, open + rel
		}
	}
	return -1, -1
}

/**
PropertyOverrideConfigurer pushes 'beanName.property=value' entries from the
property source into matching definitions before instantiation. Keys without a
dot or keys of unknown beans are left alone.
*/

type PropertyOverrideConfigurer struct {
	Source Properties
}

func NewPropertyOverrideConfigurer(source Properties) *PropertyOverrideConfigurer {
	return &PropertyOverrideConfigurer{Source: source}
}

func (t *PropertyOverrideConfigurer) ProcessDefinition(def *BeanDefinition, beanName string) error {
	prefix := beanName + "."
	for _, key := range t.Source.Keys() {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		property := key[len(prefix):]
		if property == "" {
			continue
		}
		if value, ok := t.Source.Get(key); ok {
			def.Properties.Add(property, TypedString{Value: value})
		}
	}
	return nil
}
