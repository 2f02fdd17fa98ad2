/*
 * Copyright (c) 2023 Zander Schwid & Co. LLC.
 * SPDX-License-Identifier: BUSL-1.1
 */

package sprout

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/pkg/errors"
)

/**
Method override records, realized through exported func-typed fields of the bean struct.

A lookup override installs a closure performing a factory lookup on every call,
a replaced override installs the given replacer. The field must share the method name.
*/

type MethodOverride struct {

	/**
	Name of the func field on the bean struct
	*/
	MethodName string

	/**
	Bean name to look up on each call, for lookup overrides
	*/
	LookupBean string

	/**
	Replacer invoked instead of the original behavior, for replaced overrides
	*/
	Replacer MethodReplacer
}

type MethodReplacer interface {

	/**
	Reimplements the overridden method, args are the original call arguments
	*/

	Reimplement(obj interface{}, method string, args []interface{}) (interface{}, error)
}

/**
BeanDefinition is the declarative recipe for constructing one bean.

Type resolution is deferred: the definition stores the type name as a string and the
instantiation stage resolves it through the type registry. A definition with a parent
must be merged before any instantiation decision, merging happens once per name and
the merged result is cached by the factory.
*/

type BeanDefinition struct {

	/**
	Registered type name, resolved lazily through the type registry
	*/
	TypeName string

	/**
	Parent definition name for attribute inheritance
	*/
	Parent string

	/**
	Abstract definitions are merge templates only and can not be instantiated
	*/
	Abstract bool

	Scope           string
	LazyInit        bool
	Autowire        AutowireMode
	DependencyCheck DependencyCheck
	DependsOn       []string

	/**
	Primary definitions win by-type autowiring ambiguity
	*/
	Primary bool

	/**
	Excluded from by-type autowiring candidates when false
	*/
	AutowireCandidate bool

	/**
	Direct supplier callback, first choice of the instantiation strategy
	*/
	Supplier func() (interface{}, error)

	/**
	Factory method instantiation: a registered function name when FactoryBean is empty,
	otherwise a method of the named factory bean
	*/
	FactoryBeanName   string
	FactoryMethodName string

	ConstructorArgs *ConstructorArgs
	Properties      *PropertyValues

	MethodOverrides []MethodOverride

	InitMethodName    string
	EnforceInitMethod bool
	DestroyMethodName string

	/**
	Resolved type cache, does not change definition semantics
	*/
	resolvedType reflect.Type

	merged        bool
	postProcessed bool
	postProcessMu sync.Mutex
}

func NewBeanDefinition(typeName string) *BeanDefinition {
	return &BeanDefinition{
		TypeName:          typeName,
		Scope:             ScopeSingleton,
		AutowireCandidate: true,
		ConstructorArgs:   NewConstructorArgs(),
		Properties:        NewPropertyValues(),
	}
}

func (t *BeanDefinition) String() string {
	return fmt.Sprintf("BeanDefinition [type=%s, scope=%s, parent=%s, abstract=%v, lazy=%v, autowire=%v]",
		t.TypeName, t.Scope, t.Parent, t.Abstract, t.LazyInit, t.Autowire)
}

func (t *BeanDefinition) IsSingleton() bool {
	return t.Scope == "" || t.Scope == ScopeSingleton
}

func (t *BeanDefinition) IsPrototype() bool {
	return t.Scope == ScopePrototype
}

func (t *BeanDefinition) Merged() bool {
	return t.merged
}

/**
Resolves and caches the bean type through the registry.
Redundant concurrent resolution is harmless, the cache is overwritten with an equal value.
*/

func (t *BeanDefinition) resolveType(registry TypeRegistry) (reflect.Type, error) {
	if rt := t.resolvedType; rt != nil {
		return rt, nil
	}
	if t.TypeName == "" {
		return nil, errors.Errorf("definition has no type name to resolve")
	}
	rt, err := registry.Resolve(t.TypeName)
	if err != nil {
		return nil, err
	}
	t.resolvedType = rt
	return rt, nil
}

/**
Copy produces an independent definition with fresh value holders,
conversion caches are not carried over.
*/

func (t *BeanDefinition) Copy() *BeanDefinition {
	out := &BeanDefinition{
		TypeName:          t.TypeName,
		Parent:            t.Parent,
		Abstract:          t.Abstract,
		Scope:             t.Scope,
		LazyInit:          t.LazyInit,
		Autowire:          t.Autowire,
		DependencyCheck:   t.DependencyCheck,
		Primary:           t.Primary,
		AutowireCandidate: t.AutowireCandidate,
		Supplier:          t.Supplier,
		FactoryBeanName:   t.FactoryBeanName,
		FactoryMethodName: t.FactoryMethodName,
		InitMethodName:    t.InitMethodName,
		EnforceInitMethod: t.EnforceInitMethod,
		DestroyMethodName: t.DestroyMethodName,
	}
	out.DependsOn = append(out.DependsOn, t.DependsOn...)
	out.MethodOverrides = append(out.MethodOverrides, t.MethodOverrides...)
	out.ConstructorArgs = t.ConstructorArgs.Copy()
	if out.ConstructorArgs == nil {
		out.ConstructorArgs = NewConstructorArgs()
	}
	if t.Properties != nil {
		out.Properties = t.Properties.Copy()
	} else {
		out.Properties = NewPropertyValues()
	}
	return out
}

/**
mergeWith combines the parent definition with this child, parent attributes first,
child overrides. Collection property values honor the merge flag. The result is a
new definition marked as merged, attribute-for-attribute deterministic so repeated
merges of the same pair are identical.
*/

func (t *BeanDefinition) mergeWith(parent *BeanDefinition) *BeanDefinition {
	out := parent.Copy()
	out.Parent = ""
	out.Abstract = t.Abstract

	if t.TypeName != "" {
		out.TypeName = t.TypeName
	}
	if t.Scope != "" {
		out.Scope = t.Scope
	}
	if t.LazyInit {
		out.LazyInit = t.LazyInit
	}
	if t.Autowire != AutowireNo {
		out.Autowire = t.Autowire
	}
	if t.DependencyCheck != DependencyCheckNone {
		out.DependencyCheck = t.DependencyCheck
	}
	if len(t.DependsOn) > 0 {
		out.DependsOn = append([]string(nil), t.DependsOn...)
	}
	if t.Primary {
		out.Primary = t.Primary
	}
	out.AutowireCandidate = t.AutowireCandidate
	if t.Supplier != nil {
		out.Supplier = t.Supplier
	}
	if t.FactoryBeanName != "" {
		out.FactoryBeanName = t.FactoryBeanName
	}
	if t.FactoryMethodName != "" {
		out.FactoryMethodName = t.FactoryMethodName
	}
	if t.InitMethodName != "" {
		out.InitMethodName = t.InitMethodName
		out.EnforceInitMethod = t.EnforceInitMethod
	}
	if t.DestroyMethodName != "" {
		out.DestroyMethodName = t.DestroyMethodName
	}
	if len(t.MethodOverrides) > 0 {
		out.MethodOverrides = append(out.MethodOverrides, t.MethodOverrides...)
	}
	out.ConstructorArgs = t.ConstructorArgs.MergeFrom(parent.ConstructorArgs)
	if out.ConstructorArgs == nil {
		out.ConstructorArgs = NewConstructorArgs()
	}
	out.Properties = t.Properties.MergeFrom(parent.Properties)
	out.merged = true
	return out
}

/**
applyDefinitionProcessors runs the processors against this merged definition once.
Concurrent creations from the same definition, as with prototypes, serialize here
so the processors never observe the definition mid-modification.
*/

func (t *BeanDefinition) applyDefinitionProcessors(beanName string, processors []DefinitionPostProcessor) error {
	t.postProcessMu.Lock()
	defer t.postProcessMu.Unlock()
	if t.postProcessed {
		return nil
	}
	for _, pp := range processors {
		if err := pp.ProcessDefinition(t, beanName); err != nil {
			return err
		}
	}
	t.postProcessed = true
	return nil
}

/**
findMethodOverride returns the override matching the func field name, if any.
*/

func (t *BeanDefinition) findMethodOverride(name string) (MethodOverride, bool) {
	for _, mo := range t.MethodOverrides {
		if mo.MethodName == name {
			return mo, true
		}
	}
	return MethodOverride{}, false
}
