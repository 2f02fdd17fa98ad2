/*
 * Copyright (c) 2023 Zander Schwid & Co. LLC.
 * SPDX-License-Identifier: BUSL-1.1
 */

package sprout

import (
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

/**
BeanFactory resolves named requests into merged definitions, drives instantiation,
population and lifecycle of beans, and owns the singleton registry.

Multiple goroutines of an embedding application may request beans concurrently,
registration of definitions and post processors is expected to happen up front.
*/

type BeanFactory struct {
	parent    *BeanFactory
	types     TypeRegistry
	converter TypeConverter
	registry  *singletonRegistry

	defMu       sync.RWMutex
	definitions map[string]*BeanDefinition
	defOrder    []string
	aliases     map[string]string
	mergedDefs  map[string]*BeanDefinition

	processors      []BeanPostProcessor
	instProcessors  []InstantiationPostProcessor
	smartProcessors []SmartInstantiationPostProcessor
	defProcessors   []DefinitionPostProcessor

	/**
	Produced objects of singleton factory beans, applied post processing exactly once
	*/
	factoryMu    sync.Mutex
	factoryCache map[string]interface{}

	/**
	Early reference exposure for setter reference cycles is enabled unless disabled here
	*/
	allowCircularReferences bool

	/**
	Policy knob for the raw injection sharp edge: when a wrapper replaced the instance
	after a raw early reference already leaked to a dependent, fail unless allowed
	*/
	allowRawInjection bool

	/**
	Non-strict property application skips individually invalid literal entries
	*/
	ignoreInvalidProperties bool

	anonymousCounter int64
}

func NewBeanFactory() *BeanFactory {
	return &BeanFactory{
		types:                   NewTypeRegistry(),
		converter:               NewTypeConverter(),
		registry:                newSingletonRegistry(),
		definitions:             make(map[string]*BeanDefinition),
		aliases:                 make(map[string]string),
		mergedDefs:              make(map[string]*BeanDefinition),
		factoryCache:            make(map[string]interface{}),
		allowCircularReferences: true,
	}
}

func (t *BeanFactory) String() string {
	t.defMu.RLock()
	defer t.defMu.RUnlock()
	return fmt.Sprintf("BeanFactory [definitions=%d, aliases=%d, hasParent=%v]", len(t.definitions), len(t.aliases), t.parent != nil)
}

func (t *BeanFactory) SetParent(parent *BeanFactory) {
	t.parent = parent
}

func (t *BeanFactory) Parent() (*BeanFactory, bool) {
	if t.parent != nil {
		return t.parent, true
	}
	return nil, false
}

func (t *BeanFactory) TypeRegistry() TypeRegistry {
	return t.types
}

func (t *BeanFactory) SetTypeConverter(converter TypeConverter) {
	t.converter = converter
}

func (t *BeanFactory) TypeConverter() TypeConverter {
	return t.converter
}

func (t *BeanFactory) SetAllowCircularReferences(allow bool) {
	t.allowCircularReferences = allow
}

func (t *BeanFactory) SetAllowRawInjection(allow bool) {
	t.allowRawInjection = allow
}

func (t *BeanFactory) SetIgnoreInvalidProperties(ignore bool) {
	t.ignoreInvalidProperties = ignore
}

/**
AddPostProcessor registers the processor for every extension point it implements,
in registration order per extension point.
*/

func (t *BeanFactory) AddPostProcessor(pp interface{}) error {
	known := false
	if p, ok := pp.(BeanPostProcessor); ok {
		t.processors = append(t.processors, p)
		known = true
	}
	if p, ok := pp.(InstantiationPostProcessor); ok {
		t.instProcessors = append(t.instProcessors, p)
		known = true
	}
	if p, ok := pp.(SmartInstantiationPostProcessor); ok {
		t.smartProcessors = append(t.smartProcessors, p)
		known = true
	}
	if p, ok := pp.(DefinitionPostProcessor); ok {
		t.defProcessors = append(t.defProcessors, p)
		known = true
	}
	if !known {
		return errors.Errorf("object of type '%v' does not implement any post processor interface", reflect.TypeOf(pp))
	}
	return nil
}

/**
RegisterDefinition binds the definition to a unique name within this factory.
*/

func (t *BeanFactory) RegisterDefinition(name string, def *BeanDefinition) error {
	if name == "" {
		return errors.New("empty bean name")
	}
	if def == nil {
		return errors.Errorf("nil definition for bean name '%s'", name)
	}
	t.defMu.Lock()
	defer t.defMu.Unlock()
	if _, ok := t.definitions[name]; ok {
		return errors.Errorf("bean name '%s' is already bound to another definition", name)
	}
	if _, ok := t.aliases[name]; ok {
		return errors.Errorf("bean name '%s' is already used as an alias", name)
	}
	t.definitions[name] = def
	t.defOrder = append(t.defOrder, name)
	t.invalidateMergedLocked(name)
	return nil
}

/**
invalidateMergedLocked drops the cached merged definition of the name and of every
definition whose parent chain reaches that name, so a later binding shadowing a
parent resolved elsewhere is picked up on the next merge. Callers hold defMu.
*/

func (t *BeanFactory) invalidateMergedLocked(name string) {
	delete(t.mergedDefs, name)
	for childName := range t.mergedDefs {
		if t.parentChainReachesLocked(childName, name) {
			delete(t.mergedDefs, childName)
		}
	}
}

func (t *BeanFactory) parentChainReachesLocked(childName, name string) bool {
	seen := make(map[string]bool)
	for cur := childName; ; {
		def, ok := t.definitions[cur]
		if !ok || def.Parent == "" {
			return false
		}
		parent := def.Parent
		for strings.HasPrefix(parent, FactoryDeref) {
			parent = parent[len(FactoryDeref):]
		}
		for {
			next, ok := t.aliases[parent]
			if !ok {
				break
			}
			parent = next
		}
		if parent == name {
			return true
		}
		if seen[parent] {
			return false
		}
		seen[parent] = true
		cur = parent
	}
}

/**
RegisterAlias binds the alias to the name. Alias resolution is transitive but must not cycle.
*/

func (t *BeanFactory) RegisterAlias(name string, alias string) error {
	if alias == "" || name == "" {
		return errors.New("empty bean name or alias")
	}
	if alias == name {
		return nil
	}
	t.defMu.Lock()
	defer t.defMu.Unlock()
	if _, ok := t.definitions[alias]; ok {
		return errors.Errorf("alias '%s' collides with a registered bean name", alias)
	}
	if known, ok := t.aliases[alias]; ok && known != name {
		return errors.Errorf("alias '%s' is already bound to name '%s'", alias, known)
	}
	// walk the chain from name, arriving back at alias means a cycle
	seen := map[string]bool{alias: true}
	for next, ok := t.aliases[name]; ok; next, ok = t.aliases[next] {
		if seen[next] {
			return errors.Errorf("alias '%s' for name '%s' would create a cycle", alias, name)
		}
		seen[next] = true
	}
	t.aliases[alias] = name
	return nil
}

/**
RegisterSingleton places a fully constructed object in the registry under the name,
bypassing definition based creation.
*/

func (t *BeanFactory) RegisterSingleton(name string, obj interface{}) error {
	if obj == nil {
		return errors.Errorf("nil singleton object for bean name '%s'", name)
	}
	return t.registry.register(name, obj)
}

func (t *BeanFactory) DefinitionNames() []string {
	t.defMu.RLock()
	defer t.defMu.RUnlock()
	return append([]string(nil), t.defOrder...)
}

func (t *BeanFactory) ContainsDefinition(name string) bool {
	t.defMu.RLock()
	defer t.defMu.RUnlock()
	_, ok := t.definitions[name]
	return ok
}

func (t *BeanFactory) ContainsBean(name string) bool {
	beanName := t.canonicalName(name)
	if t.registry.containsSingleton(beanName) || t.ContainsDefinition(beanName) {
		return true
	}
	if t.parent != nil {
		return t.parent.ContainsBean(name)
	}
	return false
}

/**
canonicalName strips the factory dereference prefix and resolves aliases transitively.
*/

func (t *BeanFactory) canonicalName(name string) string {
	for strings.HasPrefix(name, FactoryDeref) {
		name = name[len(FactoryDeref):]
	}
	t.defMu.RLock()
	defer t.defMu.RUnlock()
	for {
		next, ok := t.aliases[name]
		if !ok {
			return name
		}
		name = next
	}
}

/**
GetBean resolves the named request into a fully initialized bean instance.
A nil produced by a supplier or factory bean comes back as a nil interface.
*/

func (t *BeanFactory) GetBean(name string) (interface{}, error) {
	return t.GetBeanWithArgs(name, nil)
}

/**
GetBeanWithArgs passes explicit constructor or factory arguments,
only meaningful for prototype scoped definitions.
*/

func (t *BeanFactory) GetBeanWithArgs(name string, args []interface{}) (interface{}, error) {
	obj, err := t.doGetBean(name, args, newCreation())
	if err != nil {
		return nil, err
	}
	if _, isNull := obj.(*NullBean); isNull {
		return nil, nil
	}
	return obj, nil
}

func (t *BeanFactory) doGetBean(name string, args []interface{}, c *creation) (interface{}, error) {

	beanName := t.canonicalName(name)

	if args == nil {
		shared, ok, err := t.registry.getSingleton(beanName, t.allowCircularReferences)
		if err != nil {
			return nil, creationError(beanName, PhaseInstantiation, err)
		}
		if ok {
			if verbose != nil && t.registry.isInCreation(beanName) {
				verbose.Printf("Returning early reference of singleton bean '%s'\n", beanName)
			}
			return t.objectForInstance(shared, name, beanName, nil, c)
		}
	}

	if c.contains(beanName) {
		return nil, creationError(beanName, PhaseInstantiation,
			&CircularDependencyError{BeanName: beanName, Stack: c.path(beanName)})
	}

	if !t.ContainsDefinition(beanName) {
		if t.parent != nil {
			return t.parent.doGetBean(name, args, c)
		}
		if obj, ok, _ := t.registry.getSingleton(beanName, false); ok {
			return t.objectForInstance(obj, name, beanName, nil, c)
		}
		return nil, &NoSuchBeanError{BeanName: beanName}
	}

	mbd, err := t.MergedDefinition(beanName)
	if err != nil {
		return nil, err
	}
	if mbd.Abstract {
		return nil, errors.Errorf("bean definition '%s' is abstract and can not be instantiated", beanName)
	}

	for _, dep := range mbd.DependsOn {
		if t.registry.isDependent(beanName, dep) {
			return nil, creationError(beanName, PhaseInstantiation,
				errors.Errorf("circular depends-on relationship between '%s' and '%s'", beanName, dep))
		}
		t.registry.registerDependent(dep, beanName)
		if _, err := t.doGetBean(dep, nil, c); err != nil {
			return nil, creationError(beanName, PhaseInstantiation,
				errors.Errorf("depends-on bean '%s' failed, %v", dep, err))
		}
	}

	switch {
	case mbd.IsSingleton():
		shared, err := t.registry.getOrCreate(beanName, c, func() (interface{}, error) {
			c.push(beanName)
			defer c.pop()
			return t.createBean(beanName, mbd, args, c)
		})
		if err != nil {
			return nil, err
		}
		return t.objectForInstance(shared, name, beanName, mbd, c)

	case mbd.IsPrototype():
		c.push(beanName)
		obj, err := t.createBean(beanName, mbd, args, c)
		c.pop()
		if err != nil {
			return nil, err
		}
		return t.objectForInstance(obj, name, beanName, mbd, c)

	default:
		return nil, errors.Errorf("unsupported scope '%s' of bean '%s'", mbd.Scope, beanName)
	}
}

/**
objectForInstance applies the factory bean indirection: a plain bean is returned as is,
a factory bean is asked for the object it produces unless the request used the '&' prefix.
*/

func (t *BeanFactory) objectForInstance(instance interface{}, requestedName, beanName string, mbd *BeanDefinition, c *creation) (interface{}, error) {

	if strings.HasPrefix(requestedName, FactoryDeref) {
		if _, isNull := instance.(*NullBean); isNull {
			return instance, nil
		}
		if _, ok := instance.(FactoryBean); !ok {
			return nil, errors.Errorf("bean named '%s' with '%s' prefix is not a factory bean, but '%v'",
				beanName, FactoryDeref, reflect.TypeOf(instance))
		}
		return instance, nil
	}

	factory, ok := instance.(FactoryBean)
	if !ok {
		return instance, nil
	}

	return t.getObjectFromFactory(factory, beanName, true, c)
}

/**
MergedDefinition returns the merged definition for the name, combining parent and child
attributes once and caching the result. Concurrent first time merges are idempotent.
*/

func (t *BeanFactory) MergedDefinition(name string) (*BeanDefinition, error) {

	t.defMu.RLock()
	if mbd, ok := t.mergedDefs[name]; ok {
		t.defMu.RUnlock()
		return mbd, nil
	}
	def, ok := t.definitions[name]
	t.defMu.RUnlock()

	if !ok {
		return nil, &NoSuchBeanError{BeanName: name}
	}

	mbd, err := t.mergeDefinition(def)
	if err != nil {
		return nil, errors.Errorf("merge of bean definition '%s' failed, %v", name, err)
	}

	t.defMu.Lock()
	if known, ok := t.mergedDefs[name]; ok {
		mbd = known
	} else {
		t.mergedDefs[name] = mbd
	}
	t.defMu.Unlock()
	return mbd, nil
}

/**
mergeDefinition combines the definition with its merged parent, or copies it when standalone.
Used for registered and for inner anonymous definitions alike.
*/

func (t *BeanFactory) mergeDefinition(def *BeanDefinition) (*BeanDefinition, error) {
	if def.Parent == "" {
		mbd := def.Copy()
		if mbd.Scope == "" {
			mbd.Scope = ScopeSingleton
		}
		mbd.merged = true
		return mbd, nil
	}

	parentName := t.canonicalName(def.Parent)
	var parentDef *BeanDefinition
	var err error
	if t.ContainsDefinition(parentName) {
		parentDef, err = t.MergedDefinition(parentName)
	} else if t.parent != nil {
		parentDef, err = t.parent.MergedDefinition(parentName)
	} else {
		err = errors.Errorf("parent definition '%s' not found", parentName)
	}
	if err != nil {
		return nil, err
	}

	mbd := def.mergeWith(parentDef)
	if mbd.Scope == "" {
		mbd.Scope = ScopeSingleton
	}
	return mbd, nil
}

/**
createBean runs the pre-instantiation shortcut then the regular creation pipeline.
*/

func (t *BeanFactory) createBean(beanName string, mbd *BeanDefinition, args []interface{}, c *creation) (interface{}, error) {

	if verbose != nil {
		verbose.Printf("%sCreate bean '%s' %v\n", indent(len(c.stack)-1), beanName, mbd)
	}

	if shortcut, err := t.resolveBeforeInstantiation(beanName, mbd); err != nil {
		return nil, creationError(beanName, PhaseInstantiation, err)
	} else if shortcut != nil {
		return shortcut, nil
	}

	return t.doCreateBean(beanName, mbd, args, c)
}

func (t *BeanFactory) resolveBeforeInstantiation(beanName string, mbd *BeanDefinition) (interface{}, error) {
	if len(t.instProcessors) == 0 || mbd.TypeName == "" {
		return nil, nil
	}
	beanType, err := mbd.resolveType(t.types)
	if err != nil {
		// type resolution failures surface on the regular path
		return nil, nil
	}
	for _, pp := range t.instProcessors {
		res, err := pp.BeforeInstantiation(beanType, beanName)
		if err != nil {
			return nil, err
		}
		if obj, replaced := res.Replaced(); replaced && obj != nil {
			if verbose != nil {
				verbose.Printf("Bean '%s' replaced before instantiation by %v\n", beanName, reflect.TypeOf(pp))
			}
			return t.applyAfterInitialization(obj, beanName)
		}
	}
	return nil, nil
}

func (t *BeanFactory) doCreateBean(beanName string, mbd *BeanDefinition, args []interface{}, c *creation) (interface{}, error) {

	bi, err := t.createBeanInstance(beanName, mbd, args, c)
	if err != nil {
		return nil, creationError(beanName, PhaseInstantiation, err)
	}

	if err := mbd.applyDefinitionProcessors(beanName, t.defProcessors); err != nil {
		return nil, creationError(beanName, PhaseInstantiation,
			errors.Errorf("definition post processing failed, %v", err))
	}

	earlyExposure := mbd.IsSingleton() && t.allowCircularReferences && t.registry.isInCreation(beanName)
	if earlyExposure {
		if verbose != nil {
			verbose.Printf("%sEagerly caching bean '%s' to allow resolving of circular references\n", indent(len(c.stack)-1), beanName)
		}
		raw := bi.obj
		t.registry.addSingletonFactory(beanName, func() (interface{}, error) {
			return t.earlyReference(raw, beanName)
		})
	}

	if err := t.populateBean(beanName, mbd, bi, c); err != nil {
		return nil, creationError(beanName, PhasePopulation, err)
	}

	exposed, err := t.initializeBean(beanName, bi.obj, mbd)
	if err != nil {
		return nil, creationError(beanName, PhaseInitialization, err)
	}

	if earlyExposure {
		if earlyRef, ok := t.registry.earlyReference(beanName); ok {
			if exposed == bi.obj {
				exposed = earlyRef
			} else if !t.allowRawInjection {
				var holders []string
				for _, dep := range t.dependentsOf(beanName) {
					if t.registry.containsSingleton(dep) {
						holders = append(holders, dep)
					}
				}
				if len(holders) > 0 {
					return nil, creationError(beanName, PhaseInitialization,
						errors.Errorf("bean '%s' was wrapped after its raw version was injected into other beans [%s], "+
							"those beans do not use the final version of the bean", beanName, strings.Join(holders, ", ")))
				}
			}
		}
	}

	t.registerDisposableIfNecessary(beanName, exposed, mbd)
	return exposed, nil
}

func (t *BeanFactory) dependentsOf(beanName string) []string {
	t.registry.mu.Lock()
	defer t.registry.mu.Unlock()
	out := make([]string, 0, len(t.registry.dependents[beanName]))
	for dep := range t.registry.dependents[beanName] {
		out = append(out, dep)
	}
	return out
}

/**
earlyReference gives smart processors the chance to wrap the raw instance
before it leaks to a dependent during a reference cycle.
*/

func (t *BeanFactory) earlyReference(obj interface{}, beanName string) (interface{}, error) {
	exposed := obj
	for _, pp := range t.smartProcessors {
		out, err := pp.EarlyReference(exposed, beanName)
		if err != nil {
			return nil, err
		}
		if out != nil {
			exposed = out
		}
	}
	return exposed, nil
}

func (t *BeanFactory) applyAfterInitialization(obj interface{}, beanName string) (interface{}, error) {
	exposed := obj
	for _, pp := range t.processors {
		res, err := pp.AfterInitialization(exposed, beanName)
		if err != nil {
			return nil, err
		}
		if out, replaced := res.Replaced(); replaced && out != nil {
			exposed = out
		}
	}
	return exposed, nil
}

/**
BeanNamesForType returns names of definitions and registered singletons assignable
to the required type, in registration order, including ancestor factories.
Factory bean definitions match by their declared object type.
*/

func (t *BeanFactory) BeanNamesForType(required reflect.Type) []string {
	var out []string
	seen := make(map[string]bool)

	for _, name := range t.DefinitionNames() {
		mbd, err := t.MergedDefinition(name)
		if err != nil || mbd.Abstract {
			continue
		}
		match, err := t.definitionMatchesType(name, mbd, required)
		if err != nil {
			continue
		}
		if match && !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}

	for _, name := range t.registry.singletonNames() {
		if seen[name] {
			continue
		}
		if obj, ok, _ := t.registry.getSingleton(name, false); ok {
			objType := reflect.TypeOf(obj)
			if objType != nil && assignableTo(objType, required) {
				seen[name] = true
				out = append(out, name)
			}
		}
	}

	if t.parent != nil {
		for _, name := range t.parent.BeanNamesForType(required) {
			if !seen[name] && !t.ContainsDefinition(name) {
				seen[name] = true
				out = append(out, name)
			}
		}
	}
	return out
}

func (t *BeanFactory) definitionMatchesType(name string, mbd *BeanDefinition, required reflect.Type) (bool, error) {
	if mbd.TypeName == "" {
		// supplier or factory method definitions without a declared type can not be
		// matched without instantiation, skip them for by-type requests
		return false, nil
	}
	beanType, err := mbd.resolveType(t.types)
	if err != nil {
		return false, err
	}
	if beanType.Implements(FactoryBeanClass) {
		if t.registry.isInCreation(name) {
			// type can not be determined while the factory bean itself is in creation
			return false, nil
		}
		// ask the factory bean for its object type, instantiating it if needed
		obj, err := t.GetBean(FactoryDeref + name)
		if err != nil {
			return false, err
		}
		factory, ok := obj.(FactoryBean)
		if !ok {
			return false, nil
		}
		objType := factory.ObjectType()
		return objType != nil && assignableTo(objType, required), nil
	}
	return assignableTo(beanType, required), nil
}

func assignableTo(objType, required reflect.Type) bool {
	if required.Kind() == reflect.Interface {
		return objType.Implements(required)
	}
	return objType.AssignableTo(required)
}

/**
resolveDependencyType satisfies a by-type request with exactly one candidate.
Zero candidates is not found, several are disambiguated by the primary flag,
remaining ambiguity is an error naming the candidates.
*/

func (t *BeanFactory) resolveDependencyType(required reflect.Type, beanName, site string, c *creation) (interface{}, bool, error) {

	if t.factoryRequested(required) {
		return t, true, nil
	}

	candidates := t.candidateNamesForType(required)
	// a bean never satisfies its own dependency
	for i, name := range candidates {
		if name == beanName {
			candidates = append(candidates[:i], candidates[i+1:]...)
			break
		}
	}
	switch len(candidates) {
	case 0:
		return nil, false, nil
	case 1:
		obj, err := t.doGetBean(candidates[0], nil, c)
		if err != nil {
			return nil, false, err
		}
		t.registry.registerDependent(candidates[0], beanName)
		return obj, true, nil
	}

	var primary []string
	for _, name := range candidates {
		if mbd, err := t.MergedDefinition(name); err == nil && mbd.Primary {
			primary = append(primary, name)
		}
	}
	if len(primary) == 1 {
		obj, err := t.doGetBean(primary[0], nil, c)
		if err != nil {
			return nil, false, err
		}
		t.registry.registerDependent(primary[0], beanName)
		return obj, true, nil
	}

	return nil, false, &AmbiguousDependencyError{BeanName: beanName, Site: site, Candidates: candidates}
}

func (t *BeanFactory) factoryRequested(required reflect.Type) bool {
	return required == reflect.TypeOf(t)
}

func (t *BeanFactory) candidateNamesForType(required reflect.Type) []string {
	var out []string
	for _, name := range t.BeanNamesForType(required) {
		if mbd, err := t.MergedDefinition(name); err == nil && !mbd.AutowireCandidate {
			continue
		}
		out = append(out, name)
	}
	return out
}

/**
PreInstantiateSingletons eagerly creates all non-lazy singleton definitions in
registration order. On failure the singletons created so far are destroyed before
the error is reported, leaving the registry clean.
*/

func (t *BeanFactory) PreInstantiateSingletons() error {
	for _, name := range t.DefinitionNames() {
		mbd, err := t.MergedDefinition(name)
		if err != nil {
			t.destroyAfterFailure()
			return err
		}
		if mbd.Abstract || mbd.LazyInit || !mbd.IsSingleton() {
			continue
		}
		if _, err := t.GetBean(name); err != nil {
			t.destroyAfterFailure()
			return err
		}
	}
	return nil
}

func (t *BeanFactory) destroyAfterFailure() {
	if err := t.DestroySingletons(); err != nil && verbose != nil {
		verbose.Printf("Destroy singletons after pre-instantiation failure error, %v\n", err)
	}
}

/**
DestroySingletons tears the registry down, see the singleton registry for ordering.
*/

func (t *BeanFactory) DestroySingletons() error {
	t.factoryMu.Lock()
	t.factoryCache = make(map[string]interface{})
	t.factoryMu.Unlock()
	return t.registry.destroySingletons()
}

func indent(n int) string {
	if n <= 0 {
		return ""
	}
	var out []byte
	for i := 0; i < n; i++ {
		out = append(out, ' ', ' ')
	}
	return string(out)
}
