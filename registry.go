/*
 * Copyright (c) 2023 Zander Schwid & Co. LLC.
 * SPDX-License-Identifier: BUSL-1.1
 */

package sprout

import (
	"sync"

	"github.com/pkg/errors"
)

/**
Explicit per-request creation context threaded through the call chain.

Nested creation of different beans on the same context is how dependency graphs
resolve, re-entering the same name on the same context is the circular case.
*/

type creation struct {
	stack []string
}

func newCreation() *creation {
	return &creation{}
}

func (t *creation) contains(name string) bool {
	for _, item := range t.stack {
		if item == name {
			return true
		}
	}
	return false
}

func (t *creation) push(name string) {
	t.stack = append(t.stack, name)
}

func (t *creation) pop() {
	if n := len(t.stack); n > 0 {
		t.stack = t.stack[:n-1]
	}
}

func (t *creation) path(name string) []string {
	for i, item := range t.stack {
		if item == name {
			out := append([]string(nil), t.stack[i:]...)
			return append(out, name)
		}
	}
	return append(append([]string(nil), t.stack...), name)
}

/**
Process-wide registry of fully constructed singleton instances plus the bookkeeping
for names currently in creation, used to detect and break circular references.

All mutation is guarded by a single coarse mutex. A request for a name in creation
on another context blocks on the condition variable until that creation completes
or fails, a request on the owning context is resolved with the early reference.
*/

type singletonRegistry struct {
	mu   sync.Mutex
	cond *sync.Cond

	singletons map[string]interface{}
	order      []string

	/**
	Early reference caches for circular resolution: a factory callback is published
	first and promoted to an early singleton on first lookup.
	*/
	earlySingletons map[string]interface{}
	factories       map[string]func() (interface{}, error)

	inCreation map[string]*creation

	disposables      map[string]*disposableAdapter
	disposablesOrder []string

	/**
	beanName -> names of beans depending on it, destruction destroys dependents first
	*/
	dependents   map[string]map[string]bool
	dependencies map[string]map[string]bool
}

func newSingletonRegistry() *singletonRegistry {
	t := &singletonRegistry{
		singletons:      make(map[string]interface{}),
		earlySingletons: make(map[string]interface{}),
		factories:       make(map[string]func() (interface{}, error)),
		inCreation:      make(map[string]*creation),
		disposables:     make(map[string]*disposableAdapter),
		dependents:      make(map[string]map[string]bool),
		dependencies:    make(map[string]map[string]bool),
	}
	t.cond = sync.NewCond(&t.mu)
	return t
}

/**
getSingleton returns the finished singleton, or the early reference of a name in
creation when allowEarly is set. The early factory callback is invoked at most once.
*/

func (t *singletonRegistry) getSingleton(name string, allowEarly bool) (interface{}, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.getSingletonLocked(name, allowEarly)
}

func (t *singletonRegistry) getSingletonLocked(name string, allowEarly bool) (interface{}, bool, error) {
	if obj, ok := t.singletons[name]; ok {
		return obj, true, nil
	}
	if _, creating := t.inCreation[name]; !creating {
		return nil, false, nil
	}
	if obj, ok := t.earlySingletons[name]; ok {
		return obj, true, nil
	}
	if !allowEarly {
		return nil, false, nil
	}
	if factory, ok := t.factories[name]; ok {
		obj, err := factory()
		if err != nil {
			return nil, false, err
		}
		t.earlySingletons[name] = obj
		delete(t.factories, name)
		return obj, true, nil
	}
	return nil, false, nil
}

/**
addSingletonFactory publishes the early reference callback for a name in creation.
*/

func (t *singletonRegistry) addSingletonFactory(name string, factory func() (interface{}, error)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.singletons[name]; !ok {
		t.factories[name] = factory
		delete(t.earlySingletons, name)
	}
}

func (t *singletonRegistry) earlyReference(name string) (interface{}, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	obj, ok := t.earlySingletons[name]
	return obj, ok
}

/**
register transitions the name to the registered state. Re-registration of the
identical instance is not an error, a different instance is.
*/

func (t *singletonRegistry) register(name string, obj interface{}) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.registerLocked(name, obj)
}

func (t *singletonRegistry) registerLocked(name string, obj interface{}) error {
	if known, ok := t.singletons[name]; ok {
		if known == obj {
			return nil
		}
		return errors.Errorf("could not register object under bean name '%s': there is already a different object bound", name)
	}
	t.singletons[name] = obj
	t.order = append(t.order, name)
	delete(t.earlySingletons, name)
	delete(t.factories, name)
	return nil
}

func (t *singletonRegistry) containsSingleton(name string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.singletons[name]
	return ok
}

func (t *singletonRegistry) singletonNames() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.order...)
}

func (t *singletonRegistry) isInCreation(name string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.inCreation[name]
	return ok
}

/**
getOrCreate resolves the singleton for the name, running the producer under the
in-creation mark of the given context when the name is not yet registered.
A concurrent creation of the same name on another context blocks until it either
completes or fails, then the registry is re-checked.
*/

func (t *singletonRegistry) getOrCreate(name string, c *creation, producer func() (interface{}, error)) (interface{}, error) {

	t.mu.Lock()
	for {
		if obj, ok := t.singletons[name]; ok {
			t.mu.Unlock()
			return obj, nil
		}
		owner := t.inCreation[name]
		if owner == nil {
			break
		}
		if owner == c {
			t.mu.Unlock()
			return nil, &CurrentlyInCreationError{BeanName: name}
		}
		t.cond.Wait()
	}
	t.markInCreationLocked(name, c)
	t.mu.Unlock()

	if verbose != nil {
		verbose.Printf("Creating singleton bean '%s'\n", name)
	}

	obj, err := producer()

	t.mu.Lock()
	t.unmarkInCreationLocked(name)
	delete(t.earlySingletons, name)
	delete(t.factories, name)
	if err == nil {
		err = t.registerLocked(name, obj)
	}
	t.mu.Unlock()

	if err != nil {
		return nil, err
	}
	return obj, nil
}

/**
markInCreation and unmarkInCreation bracket the construction of a bean name
on behalf of the owning creation context.
*/

func (t *singletonRegistry) markInCreationLocked(name string, c *creation) {
	t.inCreation[name] = c
}

func (t *singletonRegistry) unmarkInCreationLocked(name string) {
	delete(t.inCreation, name)
	t.cond.Broadcast()
}

func (t *singletonRegistry) registerDisposable(name string, d *disposableAdapter) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.disposables[name]; !ok {
		t.disposablesOrder = append(t.disposablesOrder, name)
	}
	t.disposables[name] = d
}

func (t *singletonRegistry) registerDependent(name string, dependentName string) {
	if name == dependentName {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	set, ok := t.dependents[name]
	if !ok {
		set = make(map[string]bool)
		t.dependents[name] = set
	}
	set[dependentName] = true

	deps, ok := t.dependencies[dependentName]
	if !ok {
		deps = make(map[string]bool)
		t.dependencies[dependentName] = deps
	}
	deps[name] = true
}

/**
isDependent reports whether dependentName transitively depends on name,
used to reject circular depends-on declarations.
*/

func (t *singletonRegistry) isDependent(name string, dependentName string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.isDependentLocked(name, dependentName, make(map[string]bool))
}

func (t *singletonRegistry) isDependentLocked(name string, dependentName string, seen map[string]bool) bool {
	if seen[name] {
		return false
	}
	seen[name] = true
	set, ok := t.dependents[name]
	if !ok {
		return false
	}
	if set[dependentName] {
		return true
	}
	for transitive := range set {
		if t.isDependentLocked(transitive, dependentName, seen) {
			return true
		}
	}
	return false
}

/**
destroySingletons destroys registered disposables in reverse registration order,
destroying dependents of each bean before the bean itself. Destruction errors are
logged and collected, they never abort the teardown of the remaining beans.
Afterwards the registry holds no singleton state.
*/

func (t *singletonRegistry) destroySingletons() error {

	t.mu.Lock()
	names := append([]string(nil), t.disposablesOrder...)
	t.mu.Unlock()

	var listErr []error
	for j := len(names) - 1; j >= 0; j-- {
		if err := t.destroySingleton(names[j]); err != nil {
			listErr = append(listErr, err)
		}
	}

	t.mu.Lock()
	t.singletons = make(map[string]interface{})
	t.order = nil
	t.earlySingletons = make(map[string]interface{})
	t.factories = make(map[string]func() (interface{}, error))
	t.disposables = make(map[string]*disposableAdapter)
	t.disposablesOrder = nil
	t.dependents = make(map[string]map[string]bool)
	t.dependencies = make(map[string]map[string]bool)
	t.mu.Unlock()

	return multipleErr(listErr)
}

func (t *singletonRegistry) destroySingleton(name string) error {

	t.mu.Lock()
	d := t.disposables[name]
	delete(t.disposables, name)
	dependents := make([]string, 0, len(t.dependents[name]))
	for dep := range t.dependents[name] {
		dependents = append(dependents, dep)
	}
	delete(t.dependents, name)
	delete(t.singletons, name)
	t.mu.Unlock()

	var listErr []error
	for _, dep := range dependents {
		if err := t.destroySingleton(dep); err != nil {
			listErr = append(listErr, err)
		}
	}

	if d != nil {
		if verbose != nil {
			verbose.Printf("Destroy bean '%s'\n", name)
		}
		if err := d.destroy(); err != nil {
			if verbose != nil {
				verbose.Printf("Destroy bean '%s' error, %v\n", name, err)
			}
			listErr = append(listErr, errors.Errorf("destruction of bean '%s' failed, %v", name, err))
		}
	}

	return multipleErr(listErr)
}
