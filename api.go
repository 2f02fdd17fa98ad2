/*
 * Copyright (c) 2023 Zander Schwid & Co. LLC.
 * SPDX-License-Identifier: BUSL-1.1
 */

package sprout

import (
	"io"
	"reflect"
)

/**
Bean scopes supported by the factory out of the box.
Singleton beans share one instance per factory, prototype beans are created on every request.
*/

const (
	ScopeSingleton = "singleton"
	ScopePrototype = "prototype"
)

/**
Prefix used to address the factory bean itself instead of the object it produces.
*/

const FactoryDeref = "&"

type AutowireMode int

const (
	AutowireNo AutowireMode = iota
	AutowireByName
	AutowireByType
	AutowireConstructor
)

func (t AutowireMode) String() string {
	switch t {
	case AutowireNo:
		return "no"
	case AutowireByName:
		return "byName"
	case AutowireByType:
		return "byType"
	case AutowireConstructor:
		return "constructor"
	default:
		return "unknown"
	}
}

type DependencyCheck int

const (
	DependencyCheckNone DependencyCheck = iota
	DependencyCheckObjects
	DependencyCheckSimple
	DependencyCheckAll
)

func (t DependencyCheck) String() string {
	switch t {
	case DependencyCheckNone:
		return "none"
	case DependencyCheckObjects:
		return "objects"
	case DependencyCheckSimple:
		return "simple"
	case DependencyCheckAll:
		return "all"
	default:
		return "unknown"
	}
}

/**
This interface uses to run required method on post-construct stage, after all properties were populated.
*/

var InitializingBeanClass = reflect.TypeOf((*InitializingBean)(nil)).Elem()

type InitializingBean interface {

	/**
	Runs this method automatically after populating properties of the bean
	*/

	PostConstruct() error
}

/**
This interface uses to select objects that could free resources on factory teardown
*/

var DisposableBeanClass = reflect.TypeOf((*DisposableBean)(nil)).Elem()

type DisposableBean interface {

	/**
	During destroy singletons would be called for each registered singleton in reverse order.
	*/

	Destroy() error
}

/**
The bean object would be created by calling Object() function, that is the object exposed in the factory under the bean name.
The factory bean itself is reachable with the '&' prefix.
*/

var FactoryBeanClass = reflect.TypeOf((*FactoryBean)(nil)).Elem()

type FactoryBean interface {

	/**
	Returns an object produced by the factory, and this is the object that will be used under the bean name
	*/

	Object() (interface{}, error)

	/**
	Returns the type of object that this FactoryBean produces
	*/

	ObjectType() reflect.Type

	/**
	Denotes if the object produced by this FactoryBean is a singleton
	*/

	Singleton() bool
}

/**
Aware interfaces are injected before any initialization callback runs.
*/

var BeanNameAwareClass = reflect.TypeOf((*BeanNameAware)(nil)).Elem()

type BeanNameAware interface {

	/**
	Receives the name of the bean in the factory that created it
	*/

	SetBeanName(name string)
}

var TypeRegistryAwareClass = reflect.TypeOf((*TypeRegistryAware)(nil)).Elem()

type TypeRegistryAware interface {

	/**
	Receives the type registry used to resolve type names of definitions
	*/

	SetTypeRegistry(registry TypeRegistry)
}

var BeanFactoryAwareClass = reflect.TypeOf((*BeanFactoryAware)(nil)).Elem()

type BeanFactoryAware interface {

	/**
	Receives the owning factory, could be used for manual lookups on runtime
	*/

	SetBeanFactory(factory *BeanFactory)
}

/**
Tagged outcome of a post processor call.
Keep means the instance stays as it is, Replace substitutes the instance for all later stages.
*/

type Processed struct {
	replaced bool
	object   interface{}
}

var Keep = Processed{}

func Replace(obj interface{}) Processed {
	return Processed{replaced: true, object: obj}
}

func (t Processed) Replaced() (interface{}, bool) {
	return t.object, t.replaced
}

/**
Post processor called around the initialization stage.
Any processor may replace the instance outright, for example by a generated proxy.
*/

var BeanPostProcessorClass = reflect.TypeOf((*BeanPostProcessor)(nil)).Elem()

type BeanPostProcessor interface {

	/**
	Runs after aware injections and before init callbacks
	*/

	BeforeInitialization(obj interface{}, beanName string) (Processed, error)

	/**
	Runs after init callbacks
	*/

	AfterInitialization(obj interface{}, beanName string) (Processed, error)
}

/**
Post processor called around the instantiation stage.
*/

var InstantiationPostProcessorClass = reflect.TypeOf((*InstantiationPostProcessor)(nil)).Elem()

type InstantiationPostProcessor interface {

	/**
	Shortcut before the factory instantiates the bean.
	A replacement skips the regular instantiation and population path entirely.
	*/

	BeforeInstantiation(beanType reflect.Type, beanName string) (Processed, error)

	/**
	Veto point after the raw instance exists, return false to skip property population
	*/

	AfterInstantiation(obj interface{}, beanName string) (bool, error)

	/**
	Rewrites pending property values before they are applied, nil result keeps the current set
	*/

	ProcessProperties(pvs *PropertyValues, obj interface{}, beanName string) (*PropertyValues, error)
}

/**
Extended instantiation post processor that participates in circular reference resolution
and constructor selection.
*/

var SmartInstantiationPostProcessorClass = reflect.TypeOf((*SmartInstantiationPostProcessor)(nil)).Elem()

type SmartInstantiationPostProcessor interface {
	InstantiationPostProcessor

	/**
	Called when an early reference of the bean leaks to a dependent during a reference cycle
	*/

	EarlyReference(obj interface{}, beanName string) (interface{}, error)

	/**
	Nominates candidate constructor functions for the bean type, nil means no opinion
	*/

	CandidateConstructors(beanType reflect.Type, beanName string) []interface{}
}

/**
Post processor of the merged bean definition, runs exactly once per definition
before the first instance is created from it.
*/

var DefinitionPostProcessorClass = reflect.TypeOf((*DefinitionPostProcessor)(nil)).Elem()

type DefinitionPostProcessor interface {
	ProcessDefinition(def *BeanDefinition, beanName string) error
}

/**
Type registry resolves type names stored in definitions to concrete reflect types
and keeps candidate constructor functions registered per type name.
*/

var TypeRegistryClass = reflect.TypeOf((*TypeRegistry)(nil)).Elem()

type TypeRegistry interface {

	/**
	Register the struct type of the template under the name, template must be a pointer to the struct
	*/

	Register(name string, template interface{}) error

	/**
	Register a candidate constructor function for the type name, multiple candidates are allowed
	*/

	RegisterConstructor(typeName string, ctor interface{}) error

	/**
	Register a package level factory function under its own name, used by static factory-method definitions
	*/

	RegisterFunc(name string, fn interface{}) error

	/**
	Resolve the type name to a pointer type of the registered struct
	*/

	Resolve(name string) (reflect.Type, error)

	/**
	Candidate constructors registered for the type name
	*/

	Constructors(typeName string) []reflect.Value

	/**
	Factory function candidates registered under the name
	*/

	Funcs(name string) []reflect.Value
}

/**
Type converter coerces raw configuration values to the declared target type.
*/

var TypeConverterClass = reflect.TypeOf((*TypeConverter)(nil)).Elem()

type TypeConverter interface {

	/**
	Converts the value to the target type or fails with a type mismatch error
	*/

	Convert(value interface{}, target reflect.Type) (reflect.Value, error)
}

/**
Marker instance used in place of a nil object produced by a supplier or a factory bean,
so that population and lifecycle stages still operate on a real reference.
*/

type NullBean struct {
}

func (t *NullBean) String() string {
	return "<NullBean>"
}

/**
Property resolver interface used to chain additional sources of placeholder properties.
*/

var PropertyResolverClass = reflect.TypeOf((*PropertyResolver)(nil)).Elem()

type PropertyResolver interface {

	/**
	Priority in property resolving, the higher priority look first.
	*/

	Priority() int

	/**
	Resolves the property
	*/

	GetProperty(key string) (value string, ok bool)
}

const defaultPropertyResolverPriority = 100

/**
Placeholder property storage with pluggable resolvers, used by the placeholder configurer
and available as a managed 'props' value type.
*/

var PropertiesClass = reflect.TypeOf((*Properties)(nil)).Elem()

type Properties interface {
	PropertyResolver

	/**
	Register additional property resolver. It would be sorted by priority.
	*/

	Register(PropertyResolver)
	PropertyResolvers() []PropertyResolver

	/**
	Loads properties from a nested map, keys are joined with dots
	*/

	LoadMap(source map[string]interface{})

	/**
	Parsing content in properties format as an UTF-8 string
	*/

	Parse(content string) error

	/**
	Parsing properties content from the reader
	*/

	Load(reader io.Reader) error

	/**
	Gets length of the properties
	*/

	Len() int

	/**
	Gets all keys associated with properties
	*/

	Keys() []string

	/**
	Return copy of properties as Map
	*/

	Map() map[string]string

	/**
	Checks if property contains the key
	*/

	Contains(key string) bool

	/**
	Gets property value looking through all resolvers in priority order
	*/

	Get(key string) (value string, ok bool)
	GetString(key, def string) string

	/**
	Sets property value
	*/

	Set(key string, value string)

	/**
	Remove property by key
	*/

	Remove(key string) bool
}
