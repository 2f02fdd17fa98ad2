/*
 * Copyright (c) 2023 Zander Schwid & Co. LLC.
 * SPDX-License-Identifier: BUSL-1.1
 */

package sprout

import (
	"fmt"
	"reflect"
	"sort"

	"github.com/pkg/errors"
)

/**
Raw unpopulated instance wrapper produced by the instantiation strategy.
*/

type beanInstance struct {
	obj interface{}
	val reflect.Value
}

func wrapInstance(obj interface{}) *beanInstance {
	return &beanInstance{obj: obj, val: reflect.ValueOf(obj)}
}

/**
elem returns the addressable struct value of a pointer instance, if any.
*/

func (t *beanInstance) elem() (reflect.Value, bool) {
	if t.val.Kind() == reflect.Ptr && !t.val.IsNil() && t.val.Elem().Kind() == reflect.Struct {
		return t.val.Elem(), true
	}
	return reflect.Value{}, false
}

/**
createBeanInstance chooses the instantiation strategy for the merged definition.
Decision order: supplier callback, factory method, constructor autowiring when
constructor argument values or candidates demand it, plain struct instantiation.
*/

func (t *BeanFactory) createBeanInstance(beanName string, mbd *BeanDefinition, args []interface{}, c *creation) (*beanInstance, error) {

	if mbd.Supplier != nil {
		return t.obtainFromSupplier(beanName, mbd, c)
	}

	if mbd.FactoryMethodName != "" {
		return t.instantiateUsingFactoryMethod(beanName, mbd, args, c)
	}

	candidates := t.constructorCandidates(beanName, mbd)
	if len(candidates) > 0 && (len(args) > 0 || !mbd.ConstructorArgs.Empty() || mbd.Autowire == AutowireConstructor) {
		return t.autowireConstructor(beanName, mbd, candidates, args, c)
	}
	if len(candidates) == 0 && (!mbd.ConstructorArgs.Empty() || mbd.Autowire == AutowireConstructor) {
		return nil, errors.Errorf("definition of bean '%s' demands constructor instantiation, "+
			"but no constructor is registered for type '%s'", beanName, mbd.TypeName)
	}

	return t.instantiateDefault(beanName, mbd, c)
}

func (t *BeanFactory) obtainFromSupplier(beanName string, mbd *BeanDefinition, c *creation) (*beanInstance, error) {
	obj, err := mbd.Supplier()
	if err != nil {
		return nil, errors.Errorf("supplier of bean '%s' failed, %v", beanName, err)
	}
	if obj == nil {
		obj = &NullBean{}
	}
	return wrapInstance(obj), nil
}

/**
constructorCandidates collects registered constructors of the bean type plus any
candidates nominated by smart post processors.
*/

func (t *BeanFactory) constructorCandidates(beanName string, mbd *BeanDefinition) []reflect.Value {
	candidates := t.types.Constructors(mbd.TypeName)
	if len(t.smartProcessors) > 0 && mbd.TypeName != "" {
		if beanType, err := mbd.resolveType(t.types); err == nil {
			for _, pp := range t.smartProcessors {
				for _, ctor := range pp.CandidateConstructors(beanType, beanName) {
					if fn, err := checkFactoryFunc(ctor); err == nil {
						candidates = append(candidates, fn)
					}
				}
			}
		}
	}
	return candidates
}

func (t *BeanFactory) instantiateDefault(beanName string, mbd *BeanDefinition, c *creation) (*beanInstance, error) {
	beanType, err := mbd.resolveType(t.types)
	if err != nil {
		return nil, err
	}
	obj := reflect.New(beanType.Elem()).Interface()
	bi := wrapInstance(obj)
	if len(mbd.MethodOverrides) > 0 {
		if err := t.applyMethodOverrides(beanName, mbd, bi, c); err != nil {
			return nil, err
		}
	}
	return bi, nil
}

/**
instantiateUsingFactoryMethod resolves the factory method either as a registered
package level function (static style) or as a method on the factory bean instance.
When several candidates with satisfiable signatures exist, the one with the lowest
argument conversion weight must be unique.
*/

func (t *BeanFactory) instantiateUsingFactoryMethod(beanName string, mbd *BeanDefinition, args []interface{}, c *creation) (*beanInstance, error) {

	var candidates []reflect.Value

	if mbd.FactoryBeanName != "" {
		factoryObj, err := t.doGetBean(mbd.FactoryBeanName, nil, c)
		if err != nil {
			return nil, errors.Errorf("factory bean '%s' of bean '%s' failed, %v", mbd.FactoryBeanName, beanName, err)
		}
		t.registry.registerDependent(mbd.FactoryBeanName, beanName)
		method := reflect.ValueOf(factoryObj).MethodByName(mbd.FactoryMethodName)
		if !method.IsValid() {
			return nil, errors.Errorf("factory bean '%s' has no method '%s' requested by bean '%s'",
				mbd.FactoryBeanName, mbd.FactoryMethodName, beanName)
		}
		candidates = append(candidates, method)
	} else {
		candidates = t.types.Funcs(mbd.FactoryMethodName)
		if len(candidates) == 0 {
			return nil, errors.Errorf("no factory function registered under name '%s' requested by bean '%s'",
				mbd.FactoryMethodName, beanName)
		}
	}

	chosen, argv, err := t.matchCallable(beanName, mbd, candidates, args, c, true)
	if err != nil {
		return nil, err
	}

	obj, err := callFactoryFunc(chosen, argv)
	if err != nil {
		return nil, errors.Errorf("factory method '%s' of bean '%s' failed, %v", mbd.FactoryMethodName, beanName, err)
	}
	if obj == nil {
		obj = &NullBean{}
	}
	return wrapInstance(obj), nil
}

/**
autowireConstructor satisfies every parameter of a candidate constructor from
explicit arguments, declared constructor argument values, or recursive by-type
autowiring. Candidates are tried widest parameter count first, the satisfiable
one with the fewest conversion steps wins.
*/

func (t *BeanFactory) autowireConstructor(beanName string, mbd *BeanDefinition, candidates []reflect.Value, args []interface{}, c *creation) (*beanInstance, error) {

	chosen, argv, err := t.matchCallable(beanName, mbd, candidates, args, c, false)
	if err != nil {
		return nil, err
	}

	obj, err := callFactoryFunc(chosen, argv)
	if err != nil {
		return nil, errors.Errorf("constructor of bean '%s' failed, %v", beanName, err)
	}
	if obj == nil {
		obj = &NullBean{}
	}
	bi := wrapInstance(obj)
	if len(mbd.MethodOverrides) > 0 {
		if err := t.applyMethodOverrides(beanName, mbd, bi, c); err != nil {
			return nil, err
		}
	}
	return bi, nil
}

type callableMatch struct {
	fn     reflect.Value
	argv   []reflect.Value
	weight int
}

/**
matchCallable selects among candidate functions. With strictAmbiguity, several
satisfiable candidates sharing the minimal weight and arity are an error instead
of a positional tie break.
*/

func (t *BeanFactory) matchCallable(beanName string, mbd *BeanDefinition, candidates []reflect.Value, args []interface{}, c *creation, strictAmbiguity bool) (reflect.Value, []reflect.Value, error) {

	sorted := append([]reflect.Value(nil), candidates...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Type().NumIn() > sorted[j].Type().NumIn()
	})

	var best *callableMatch
	var ambiguous []reflect.Value
	var lastErr error

	for _, cand := range sorted {
		if best != nil && cand.Type().NumIn() < best.fn.Type().NumIn() {
			// a narrower candidate never beats a satisfiable wider one
			break
		}
		argv, weight, err := t.matchArgs(beanName, mbd, cand.Type(), args, c)
		if err != nil {
			lastErr = err
			continue
		}
		switch {
		case best == nil || weight < best.weight:
			best = &callableMatch{fn: cand, argv: argv, weight: weight}
			ambiguous = nil
		case weight == best.weight:
			ambiguous = append(ambiguous, cand)
		}
	}

	if best == nil {
		if lastErr != nil {
			return reflect.Value{}, nil, lastErr
		}
		return reflect.Value{}, nil, errors.Errorf("no satisfiable constructor or factory method found for bean '%s'", beanName)
	}
	if strictAmbiguity && len(ambiguous) > 0 {
		return reflect.Value{}, nil, errors.Errorf("ambiguous factory method candidates for bean '%s': %d equally specific signatures with %d arguments",
			beanName, len(ambiguous)+1, best.fn.Type().NumIn())
	}
	return best.fn, best.argv, nil
}

/**
matchArgs attempts to satisfy every parameter of the signature. The weight counts
conversion distance: 0 exact type, 1 assignable, 2 converted, 3 autowired.
A generic value holder is never assigned to two parameter slots.
*/

func (t *BeanFactory) matchArgs(beanName string, mbd *BeanDefinition, ft reflect.Type, args []interface{}, c *creation) ([]reflect.Value, int, error) {

	if ft.IsVariadic() {
		return nil, 0, errors.Errorf("variadic constructor is not supported for bean '%s'", beanName)
	}

	numIn := ft.NumIn()
	if numIn < len(args) {
		return nil, 0, errors.Errorf("bean '%s' received %d explicit arguments, but the candidate takes %d", beanName, len(args), numIn)
	}
	for index := range mbd.ConstructorArgs.Indexed {
		if index >= numIn {
			return nil, 0, errors.Errorf("bean '%s' declares a constructor argument at index %d, but the candidate takes %d", beanName, index, numIn)
		}
	}
	argv := make([]reflect.Value, numIn)
	weight := 0
	usedHolders := make(map[*ValueHolder]bool)

	for i := 0; i < numIn; i++ {
		ptype := ft.In(i)
		site := fmt.Sprintf("constructor parameter %d of type '%v'", i, ptype)

		// explicit arguments are positional and take precedence
		if i < len(args) {
			val, w, err := t.convertArg(args[i], ptype)
			if err != nil {
				return nil, 0, &UnsatisfiedDependencyError{BeanName: beanName, Site: site, Err: err}
			}
			argv[i] = val
			weight += w
			continue
		}

		if holder, ok := mbd.ConstructorArgs.Indexed[i]; ok {
			val, w, err := t.resolveHolder(beanName, mbd, holder, ptype, c)
			if err != nil {
				return nil, 0, &UnsatisfiedDependencyError{BeanName: beanName, Site: site, Err: err}
			}
			argv[i] = val
			weight += w
			continue
		}

		if holder := t.findGenericHolder(mbd, ptype, usedHolders); holder != nil {
			val, w, err := t.resolveHolder(beanName, mbd, holder, ptype, c)
			if err != nil {
				return nil, 0, &UnsatisfiedDependencyError{BeanName: beanName, Site: site, Err: err}
			}
			usedHolders[holder] = true
			argv[i] = val
			weight += w
			continue
		}

		obj, found, err := t.resolveDependencyType(ptype, beanName, site, c)
		if err != nil {
			return nil, 0, &UnsatisfiedDependencyError{BeanName: beanName, Site: site, Err: err}
		}
		if !found {
			return nil, 0, &UnsatisfiedDependencyError{BeanName: beanName, Site: site,
				Err: errors.Errorf("no qualifying bean of type '%v' available", ptype)}
		}
		if _, isNull := obj.(*NullBean); isNull {
			argv[i] = reflect.Zero(ptype)
		} else {
			argv[i] = reflect.ValueOf(obj)
			if !argv[i].Type().AssignableTo(ptype) {
				return nil, 0, &UnsatisfiedDependencyError{BeanName: beanName, Site: site,
					Err: errors.Errorf("autowired bean of type '%v' is not assignable", argv[i].Type())}
			}
		}
		weight += 3
	}

	return argv, weight, nil
}

func (t *BeanFactory) convertArg(value interface{}, ptype reflect.Type) (reflect.Value, int, error) {
	if value == nil {
		val, err := t.converter.Convert(nil, ptype)
		return val, 2, err
	}
	vt := reflect.TypeOf(value)
	switch {
	case vt == ptype:
		return reflect.ValueOf(value), 0, nil
	case assignableTo(vt, ptype):
		return reflect.ValueOf(value), 1, nil
	default:
		val, err := t.converter.Convert(value, ptype)
		return val, 2, err
	}
}

/**
resolveHolder resolves the descriptor held by a constructor argument value and
converts it to the parameter type, caching the conversion on the holder.
*/

func (t *BeanFactory) resolveHolder(beanName string, mbd *BeanDefinition, holder *ValueHolder, ptype reflect.Type, c *creation) (reflect.Value, int, error) {
	if holder.convertedSet {
		val := reflect.ValueOf(holder.converted)
		if val.IsValid() && val.Type().AssignableTo(ptype) {
			return val, 2, nil
		}
	}
	val, err := t.resolveAndConvert(beanName, mbd, "constructor argument", holder.Value, ptype, c)
	if err != nil {
		return reflect.Value{}, 0, err
	}
	if isCacheableLiteral(holder.Value) && val.IsValid() {
		holder.converted = val.Interface()
		holder.convertedSet = true
	}
	return val, 2, nil
}

/**
findGenericHolder picks the first unused generic holder matching by declared type
name, then by value compatibility with the parameter type.
*/

func (t *BeanFactory) findGenericHolder(mbd *BeanDefinition, ptype reflect.Type, used map[*ValueHolder]bool) *ValueHolder {
	for _, holder := range mbd.ConstructorArgs.Generic {
		if used[holder] || holder.TypeName == "" {
			continue
		}
		if holder.TypeName == ptype.String() || holder.TypeName == typeShortName(ptype) {
			return holder
		}
	}
	for _, holder := range mbd.ConstructorArgs.Generic {
		if used[holder] {
			continue
		}
		if holder.TypeName != "" && holder.TypeName != ptype.String() && holder.TypeName != typeShortName(ptype) {
			continue
		}
		if t.holderCompatible(holder, ptype) {
			return holder
		}
	}
	return nil
}

func (t *BeanFactory) holderCompatible(holder *ValueHolder, ptype reflect.Type) bool {
	switch v := holder.Value.(type) {
	case RuntimeRef, InnerBean:
		return true
	case TypedString:
		_, err := t.converter.Convert(v.Value, ptype)
		return err == nil
	case *ManagedList, *ManagedSet:
		return ptype.Kind() == reflect.Slice
	case *ManagedMap:
		return ptype.Kind() == reflect.Map
	case *ManagedProps:
		return ptype == PropertiesClass || ptype.Kind() == reflect.Map
	default:
		if holder.Value == nil {
			return true
		}
		vt := reflect.TypeOf(holder.Value)
		if assignableTo(vt, ptype) {
			return true
		}
		_, err := t.converter.Convert(holder.Value, ptype)
		return err == nil
	}
}

func typeShortName(t reflect.Type) string {
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64, reflect.Bool, reflect.String:
		return t.Kind().String()
	default:
		return t.String()
	}
}

func isCacheableLiteral(value interface{}) bool {
	switch value.(type) {
	case TypedString, string, bool, int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64, float32, float64:
		return true
	default:
		return false
	}
}

/**
applyMethodOverrides installs delegation closures on exported func fields named
after the overridden methods. A lookup override performs a factory lookup per call,
a replaced override delegates to the configured replacer.
*/

func (t *BeanFactory) applyMethodOverrides(beanName string, mbd *BeanDefinition, bi *beanInstance, c *creation) error {

	elem, ok := bi.elem()
	if !ok {
		return errors.Errorf("method overrides of bean '%s' require a struct instance, but was '%v'", beanName, bi.val.Type())
	}

	for _, mo := range mbd.MethodOverrides {
		field := elem.FieldByName(mo.MethodName)
		if !field.IsValid() || field.Kind() != reflect.Func {
			return errors.Errorf("method override '%s' of bean '%s' has no matching func field", mo.MethodName, beanName)
		}
		if !field.CanSet() {
			return errors.Errorf("method override func field '%s' of bean '%s' is not settable", mo.MethodName, beanName)
		}

		fn, err := t.buildOverride(beanName, mo, field.Type(), bi.obj)
		if err != nil {
			return err
		}
		field.Set(fn)
	}
	return nil
}

func (t *BeanFactory) buildOverride(beanName string, mo MethodOverride, ft reflect.Type, obj interface{}) (reflect.Value, error) {

	if ft.NumOut() < 1 || ft.NumOut() > 2 {
		return reflect.Value{}, errors.Errorf("method override '%s' of bean '%s' must return the object and an optional error", mo.MethodName, beanName)
	}
	if ft.NumOut() == 2 && ft.Out(1) != errorClass {
		return reflect.Value{}, errors.Errorf("method override '%s' of bean '%s' second result must be an error", mo.MethodName, beanName)
	}
	outType := ft.Out(0)
	withErr := ft.NumOut() == 2

	if mo.Replacer != nil {
		replacer := mo.Replacer
		methodName := mo.MethodName
		return reflect.MakeFunc(ft, func(in []reflect.Value) []reflect.Value {
			args := make([]interface{}, 0, len(in))
			for _, v := range in {
				args = append(args, v.Interface())
			}
			out, err := replacer.Reimplement(obj, methodName, args)
			return overrideResults(outType, withErr, out, err)
		}), nil
	}

	lookup := mo.LookupBean
	return reflect.MakeFunc(ft, func(in []reflect.Value) []reflect.Value {
		var out interface{}
		var err error
		if lookup != "" {
			out, err = t.GetBean(lookup)
		} else {
			var found bool
			out, found, err = t.resolveDependencyType(outType, beanName, fmt.Sprintf("lookup method '%s'", mo.MethodName), newCreation())
			if err == nil && !found {
				err = errors.Errorf("no qualifying bean of type '%v' for lookup method '%s'", outType, mo.MethodName)
			}
		}
		return overrideResults(outType, withErr, out, err)
	}), nil
}

func overrideResults(outType reflect.Type, withErr bool, out interface{}, err error) []reflect.Value {
	outVal := reflect.Zero(outType)
	if err == nil && out != nil {
		v := reflect.ValueOf(out)
		if v.Type().AssignableTo(outType) {
			outVal = v
		} else {
			err = errors.Errorf("lookup result of type '%v' is not assignable to '%v'", v.Type(), outType)
		}
	}
	if !withErr {
		if err != nil {
			panic(err)
		}
		return []reflect.Value{outVal}
	}
	errVal := reflect.Zero(errorClass)
	if err != nil {
		errVal = reflect.ValueOf(err)
	}
	return []reflect.Value{outVal, errVal}
}
