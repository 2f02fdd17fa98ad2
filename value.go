/*
 * Copyright (c) 2023 Zander Schwid & Co. LLC.
 * SPDX-License-Identifier: BUSL-1.1
 */

package sprout

import (
	"fmt"
)

/**
Value descriptors used in property values and constructor arguments.

A leaf value is exactly one of: a plain literal, a typed string literal, a runtime
reference to another bean, or a nested anonymous definition. Managed collections
hold descriptors recursively and carry the merge flag for parent/child combination.
*/

/**
Reference to another bean in the factory, resolved lazily on population.
ToParent restricts the lookup to the parent factory.
*/

type RuntimeRef struct {
	BeanName string
	ToParent bool
}

func (t RuntimeRef) String() string {
	if t.ToParent {
		return fmt.Sprintf("<ref parent:%s>", t.BeanName)
	}
	return fmt.Sprintf("<ref %s>", t.BeanName)
}

/**
String literal with an optional target type name, converted on population.
*/

type TypedString struct {
	Value    string
	TypeName string
}

func (t TypedString) String() string {
	if t.TypeName != "" {
		return fmt.Sprintf("<value %q type=%s>", t.Value, t.TypeName)
	}
	return fmt.Sprintf("<value %q>", t.Value)
}

/**
Nested anonymous definition, instantiated per its own scope when the outer value is resolved.
*/

type InnerBean struct {
	BeanName   string
	Definition *BeanDefinition
}

func (t InnerBean) String() string {
	return fmt.Sprintf("<bean %s>", t.BeanName)
}

type ManagedList struct {
	MergeEnabled bool
	ElemTypeName string
	Values       []interface{}
}

type ManagedSet struct {
	MergeEnabled bool
	ElemTypeName string
	Values       []interface{}
}

type ManagedEntry struct {
	Key   interface{}
	Value interface{}
}

type ManagedMap struct {
	MergeEnabled  bool
	KeyTypeName   string
	ValueTypeName string
	Entries       []ManagedEntry
}

type ManagedProps struct {
	MergeEnabled bool
	Entries      []ManagedEntry
}

/**
Merge returns the parent collection entries followed by this collection entries.
Used on definition merge when the child value has the merge flag enabled.
*/

func (t *ManagedList) Merge(parent interface{}) interface{} {
	p, ok := parent.(*ManagedList)
	if !ok {
		return t
	}
	out := &ManagedList{MergeEnabled: t.MergeEnabled, ElemTypeName: t.ElemTypeName}
	out.Values = append(out.Values, p.Values...)
	out.Values = append(out.Values, t.Values...)
	return out
}

func (t *ManagedSet) Merge(parent interface{}) interface{} {
	p, ok := parent.(*ManagedSet)
	if !ok {
		return t
	}
	out := &ManagedSet{MergeEnabled: t.MergeEnabled, ElemTypeName: t.ElemTypeName}
	out.Values = append(out.Values, p.Values...)
	out.Values = append(out.Values, t.Values...)
	return out
}

func (t *ManagedMap) Merge(parent interface{}) interface{} {
	p, ok := parent.(*ManagedMap)
	if !ok {
		return t
	}
	out := &ManagedMap{MergeEnabled: t.MergeEnabled, KeyTypeName: t.KeyTypeName, ValueTypeName: t.ValueTypeName}
	out.Entries = append(out.Entries, p.Entries...)
	for _, e := range t.Entries {
		out.put(e)
	}
	return out
}

func (t *ManagedMap) put(entry ManagedEntry) {
	for i, e := range t.Entries {
		if e.Key == entry.Key {
			t.Entries[i] = entry
			return
		}
	}
	t.Entries = append(t.Entries, entry)
}

func (t *ManagedProps) Merge(parent interface{}) interface{} {
	p, ok := parent.(*ManagedProps)
	if !ok {
		return t
	}
	out := &ManagedProps{MergeEnabled: t.MergeEnabled}
	out.Entries = append(out.Entries, p.Entries...)
	for _, e := range t.Entries {
		for i, pe := range out.Entries {
			if pe.Key == e.Key {
				out.Entries[i] = e
				e.Key = nil
				break
			}
		}
		if e.Key != nil {
			out.Entries = append(out.Entries, e)
		}
	}
	return out
}

/**
Mergeable is the common capability of managed collection values.
*/

type Mergeable interface {
	Merge(parent interface{}) interface{}
}

func mergeEnabled(value interface{}) bool {
	switch v := value.(type) {
	case *ManagedList:
		return v.MergeEnabled
	case *ManagedSet:
		return v.MergeEnabled
	case *ManagedMap:
		return v.MergeEnabled
	case *ManagedProps:
		return v.MergeEnabled
	default:
		return false
	}
}

/**
Single named property value with the resolved conversion cached on the holder,
so prototype instances populated from the same definition do not re-run conversion.
*/

type PropertyValue struct {
	Name  string
	Value interface{}

	converted    interface{}
	convertedSet bool
}

func (t *PropertyValue) String() string {
	return fmt.Sprintf("property '%s' = %v", t.Name, t.Value)
}

func (t *PropertyValue) copy() *PropertyValue {
	return &PropertyValue{Name: t.Name, Value: t.Value}
}

/**
Ordered set of property values.
*/

type PropertyValues struct {
	list []*PropertyValue
}

func NewPropertyValues() *PropertyValues {
	return &PropertyValues{}
}

func (t *PropertyValues) Add(name string, value interface{}) *PropertyValues {
	t.AddValue(&PropertyValue{Name: name, Value: value})
	return t
}

func (t *PropertyValues) AddValue(pv *PropertyValue) {
	for i, item := range t.list {
		if item.Name == pv.Name {
			if mergeEnabled(pv.Value) {
				if m, ok := pv.Value.(Mergeable); ok {
					pv = &PropertyValue{Name: pv.Name, Value: m.Merge(item.Value)}
				}
			}
			t.list[i] = pv
			return
		}
	}
	t.list = append(t.list, pv)
}

func (t *PropertyValues) Get(name string) (*PropertyValue, bool) {
	for _, item := range t.list {
		if item.Name == name {
			return item, true
		}
	}
	return nil, false
}

func (t *PropertyValues) Contains(name string) bool {
	_, ok := t.Get(name)
	return ok
}

func (t *PropertyValues) Remove(name string) bool {
	for i, item := range t.list {
		if item.Name == name {
			t.list = append(t.list[:i], t.list[i+1:]...)
			return true
		}
	}
	return false
}

func (t *PropertyValues) List() []*PropertyValue {
	return t.list
}

func (t *PropertyValues) Len() int {
	if t == nil {
		return 0
	}
	return len(t.list)
}

func (t *PropertyValues) Names() []string {
	names := make([]string, 0, len(t.list))
	for _, item := range t.list {
		names = append(names, item.Name)
	}
	return names
}

/**
Copy returns a deep enough copy for definition merging, holders are copied
without the conversion cache.
*/

func (t *PropertyValues) Copy() *PropertyValues {
	out := &PropertyValues{}
	for _, item := range t.list {
		out.list = append(out.list, item.copy())
	}
	return out
}

/**
MergeFrom overlays this value set on top of the parent one.
A child value with the merge flag appends the parent collection entries first,
otherwise the child fully replaces the parent value of the same name.
*/

func (t *PropertyValues) MergeFrom(parent *PropertyValues) *PropertyValues {
	out := parent.Copy()
	for _, item := range t.list {
		out.AddValue(item.copy())
	}
	return out
}

/**
Constructor argument value holder, either indexed or generic.
The resolution algorithm never assigns the same holder to two parameter slots.
*/

type ValueHolder struct {
	Value    interface{}
	TypeName string
	Name     string

	converted    interface{}
	convertedSet bool
}

func (t *ValueHolder) copy() *ValueHolder {
	return &ValueHolder{Value: t.Value, TypeName: t.TypeName, Name: t.Name}
}

func (t *ValueHolder) String() string {
	switch {
	case t.Name != "":
		return fmt.Sprintf("arg %s=%v", t.Name, t.Value)
	default:
		return fmt.Sprintf("arg %v", t.Value)
	}
}

type ConstructorArgs struct {
	Indexed map[int]*ValueHolder
	Generic []*ValueHolder
}

func NewConstructorArgs() *ConstructorArgs {
	return &ConstructorArgs{Indexed: make(map[int]*ValueHolder)}
}

func (t *ConstructorArgs) AddIndexed(index int, holder *ValueHolder) {
	if t.Indexed == nil {
		t.Indexed = make(map[int]*ValueHolder)
	}
	t.Indexed[index] = holder
}

func (t *ConstructorArgs) AddGeneric(holder *ValueHolder) {
	t.Generic = append(t.Generic, holder)
}

func (t *ConstructorArgs) Empty() bool {
	return t == nil || (len(t.Indexed) == 0 && len(t.Generic) == 0)
}

func (t *ConstructorArgs) Count() int {
	if t == nil {
		return 0
	}
	return len(t.Indexed) + len(t.Generic)
}

func (t *ConstructorArgs) Copy() *ConstructorArgs {
	if t == nil {
		return nil
	}
	out := NewConstructorArgs()
	for i, holder := range t.Indexed {
		out.Indexed[i] = holder.copy()
	}
	for _, holder := range t.Generic {
		out.Generic = append(out.Generic, holder.copy())
	}
	return out
}

/**
MergeFrom overlays child argument values on the parent ones, indexed slots
override by index, generic holders are appended after the parent holders.
*/

func (t *ConstructorArgs) MergeFrom(parent *ConstructorArgs) *ConstructorArgs {
	if parent.Empty() {
		return t.Copy()
	}
	out := parent.Copy()
	if t == nil {
		return out
	}
	for i, holder := range t.Indexed {
		out.Indexed[i] = holder.copy()
	}
	for _, holder := range t.Generic {
		out.Generic = append(out.Generic, holder.copy())
	}
	return out
}
