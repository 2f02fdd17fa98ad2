/*
 * Copyright (c) 2023 Zander Schwid & Co. LLC.
 * SPDX-License-Identifier: BUSL-1.1
 */

package sprout

import (
	"fmt"
	"reflect"
	"strings"
	"sync/atomic"

	"github.com/pkg/errors"
)

/**
populateBean fills struct fields of a fresh instance from the merged definition.
Autowired values are computed first, explicit property values win over them.
Null placeholder instances are left untouched.
*/

func (t *BeanFactory) populateBean(beanName string, mbd *BeanDefinition, bi *beanInstance, c *creation) error {

	if _, isNull := bi.obj.(*NullBean); isNull {
		return nil
	}

	for _, pp := range t.instProcessors {
		proceed, err := pp.AfterInstantiation(bi.obj, beanName)
		if err != nil {
			return err
		}
		if !proceed {
			return nil
		}
	}

	pvs := mbd.Properties.Copy()

	switch mbd.Autowire {
	case AutowireByName:
		autowired, err := t.autowireByName(beanName, mbd, bi, c)
		if err != nil {
			return err
		}
		pvs = merged(autowired, pvs)
	case AutowireByType:
		autowired, err := t.autowireByType(beanName, mbd, bi, c)
		if err != nil {
			return err
		}
		pvs = merged(autowired, pvs)
	}

	for _, pp := range t.instProcessors {
		replacement, err := pp.ProcessProperties(pvs, bi.obj, beanName)
		if err != nil {
			return err
		}
		if replacement != nil {
			pvs = replacement
		}
	}

	if mbd.DependencyCheck != DependencyCheckNone {
		if err := t.checkDependencies(beanName, mbd, bi, pvs); err != nil {
			return err
		}
	}

	return t.applyPropertyValues(beanName, mbd, bi, pvs, c)
}

/**
merged overlays explicit property values on the autowired baseline.
*/

func merged(autowired, explicit *PropertyValues) *PropertyValues {
	if autowired.Len() == 0 {
		return explicit
	}
	return explicit.MergeFrom(autowired)
}

/**
autowireByName matches each unset exported bean-like field against a bean registered
under the lower-cased field name. Simple typed fields and missing names are skipped.
*/

func (t *BeanFactory) autowireByName(beanName string, mbd *BeanDefinition, bi *beanInstance, c *creation) (*PropertyValues, error) {

	pvs := NewPropertyValues()
	elem, ok := bi.elem()
	if !ok {
		return pvs, nil
	}

	for _, field := range wireableFields(elem, mbd) {
		if isSimpleType(field.Type) {
			continue
		}
		propertyName := lowerFirst(field.Name)
		if !t.ContainsBean(propertyName) {
			continue
		}
		obj, err := t.doGetBean(propertyName, nil, c)
		if err != nil {
			return nil, &UnsatisfiedDependencyError{BeanName: beanName,
				Site: fmt.Sprintf("field '%s'", field.Name), Err: err}
		}
		t.registry.registerDependent(propertyName, beanName)
		pvs.Add(propertyName, obj)
	}
	return pvs, nil
}

/**
autowireByType resolves each unset exported field of bean-like type by unique
type match among candidates. Ambiguity is an error, absence is skipped.
*/

func (t *BeanFactory) autowireByType(beanName string, mbd *BeanDefinition, bi *beanInstance, c *creation) (*PropertyValues, error) {

	pvs := NewPropertyValues()
	elem, ok := bi.elem()
	if !ok {
		return pvs, nil
	}

	for _, field := range wireableFields(elem, mbd) {
		if isSimpleType(field.Type) {
			continue
		}
		site := fmt.Sprintf("field '%s' of type '%v'", field.Name, field.Type)
		obj, found, err := t.resolveDependencyType(field.Type, beanName, site, c)
		if err != nil {
			if _, ambiguous := errors.Cause(err).(*AmbiguousDependencyError); ambiguous {
				return nil, err
			}
			return nil, &UnsatisfiedDependencyError{BeanName: beanName, Site: site, Err: err}
		}
		if !found {
			continue
		}
		pvs.Add(lowerFirst(field.Name), obj)
	}
	return pvs, nil
}

/**
wireableFields lists exported settable struct fields not already covered by an
explicit property value of the definition.
*/

func wireableFields(elem reflect.Value, mbd *BeanDefinition) []reflect.StructField {
	var fields []reflect.StructField
	st := elem.Type()
	for i := 0; i < st.NumField(); i++ {
		field := st.Field(i)
		if field.PkgPath != "" || field.Anonymous {
			continue
		}
		if field.Type.Kind() == reflect.Func {
			continue
		}
		if mbd.Properties.Contains(lowerFirst(field.Name)) {
			continue
		}
		if !elem.Field(i).IsZero() {
			continue
		}
		fields = append(fields, field)
	}
	return fields
}

/**
checkDependencies verifies that every field in scope of the configured dependency
check mode received a value.
*/

func (t *BeanFactory) checkDependencies(beanName string, mbd *BeanDefinition, bi *beanInstance, pvs *PropertyValues) error {

	elem, ok := bi.elem()
	if !ok {
		return nil
	}

	st := elem.Type()
	for i := 0; i < st.NumField(); i++ {
		field := st.Field(i)
		if field.PkgPath != "" || field.Anonymous {
			continue
		}
		if pvs.Contains(lowerFirst(field.Name)) {
			continue
		}
		if !elem.Field(i).IsZero() {
			continue
		}
		simple := isSimpleType(field.Type)
		unsatisfied := mbd.DependencyCheck == DependencyCheckAll ||
			(simple && mbd.DependencyCheck == DependencyCheckSimple) ||
			(!simple && mbd.DependencyCheck == DependencyCheckObjects)
		if unsatisfied {
			return &UnsatisfiedDependencyError{BeanName: beanName,
				Site: fmt.Sprintf("field '%s'", field.Name),
				Err:  errors.Errorf("dependency check (%s) failed, no value set", mbd.DependencyCheck)}
		}
	}
	return nil
}

/**
applyPropertyValues resolves each value descriptor, converts it to the field type
and assigns it. In lenient mode a type mismatch logs and skips the entry instead
of failing the bean.
*/

func (t *BeanFactory) applyPropertyValues(beanName string, mbd *BeanDefinition, bi *beanInstance, pvs *PropertyValues, c *creation) error {

	if pvs.Len() == 0 {
		return nil
	}

	elem, ok := bi.elem()
	if !ok {
		return errors.Errorf("bean '%s' of type '%v' can not accept property values", beanName, bi.val.Type())
	}

	for _, pv := range pvs.List() {

		fieldName := upperFirst(pv.Name)
		field := elem.FieldByName(fieldName)
		if !field.IsValid() {
			if t.ignoreInvalidProperties {
				if verbose != nil {
					verbose.Printf("bean '%s' has no field '%s', skipping property\n", beanName, fieldName)
				}
				continue
			}
			return errors.Errorf("bean '%s' has no field '%s' for property '%s'", beanName, fieldName, pv.Name)
		}
		if !field.CanSet() {
			return errors.Errorf("field '%s' of bean '%s' is not settable", fieldName, beanName)
		}

		// the conversion cache lives on the definition holder so that every
		// population from the same merged definition reuses it, the working
		// copies handed to post processors are discarded after the pass
		origin, hasOrigin := mbd.Properties.Get(pv.Name)

		var val reflect.Value
		if hasOrigin && origin.convertedSet && origin.Value == pv.Value {
			val = reflect.ValueOf(origin.converted)
		}
		if !val.IsValid() || !val.Type().AssignableTo(field.Type()) {
			site := fmt.Sprintf("property '%s'", pv.Name)
			resolved, err := t.resolveAndConvert(beanName, mbd, site, pv.Value, field.Type(), c)
			if err != nil {
				if _, mismatch := errors.Cause(err).(*TypeMismatchError); mismatch && t.ignoreInvalidProperties {
					if verbose != nil {
						verbose.Printf("bean '%s' property '%s' type mismatch, skipping: %v\n", beanName, pv.Name, err)
					}
					continue
				}
				return &UnsatisfiedDependencyError{BeanName: beanName, Site: site, Err: err}
			}
			val = resolved
			if hasOrigin && isCacheableLiteral(pv.Value) && origin.Value == pv.Value && val.IsValid() {
				origin.converted = val.Interface()
				origin.convertedSet = true
			}
		}

		if !val.IsValid() {
			field.Set(reflect.Zero(field.Type()))
			continue
		}
		field.Set(val)
	}
	return nil
}

/**
resolveAndConvert turns a value descriptor into a concrete value of the target
type. References and inner beans recurse through the factory, managed collections
resolve element-wise.
*/

func (t *BeanFactory) resolveAndConvert(beanName string, mbd *BeanDefinition, site string, value interface{}, targetType reflect.Type, c *creation) (reflect.Value, error) {

	switch v := value.(type) {

	case RuntimeRef:
		obj, err := t.resolveReference(beanName, v, c)
		if err != nil {
			return reflect.Value{}, err
		}
		if obj == nil {
			return reflect.Zero(targetType), nil
		}
		ov := reflect.ValueOf(obj)
		if !ov.Type().AssignableTo(targetType) {
			return reflect.Value{}, &TypeMismatchError{Value: obj, TargetType: targetType.String(),
				Err: errors.Errorf("referenced bean '%s' of type '%v' is not assignable", v.BeanName, ov.Type())}
		}
		return ov, nil

	case InnerBean:
		obj, err := t.resolveInnerBean(beanName, v, c)
		if err != nil {
			return reflect.Value{}, err
		}
		if _, isNull := obj.(*NullBean); isNull || obj == nil {
			return reflect.Zero(targetType), nil
		}
		ov := reflect.ValueOf(obj)
		if !ov.Type().AssignableTo(targetType) {
			return reflect.Value{}, &TypeMismatchError{Value: obj, TargetType: targetType.String(),
				Err: errors.Errorf("inner bean of type '%v' is not assignable", ov.Type())}
		}
		return ov, nil

	case TypedString:
		declared := targetType
		if v.TypeName != "" {
			if resolved, ok := simpleTypeByName(v.TypeName); ok {
				declared = resolved
			}
		}
		converted, err := t.converter.Convert(v.Value, declared)
		if err != nil {
			return reflect.Value{}, err
		}
		if declared != targetType {
			return t.converter.Convert(converted.Interface(), targetType)
		}
		return converted, nil

	case *ManagedList:
		return t.resolveManagedSlice(beanName, mbd, site, v.Values, v.ElemTypeName, targetType, c)

	case *ManagedSet:
		return t.resolveManagedSlice(beanName, mbd, site, v.Values, v.ElemTypeName, targetType, c)

	case *ManagedMap:
		return t.resolveManagedMap(beanName, mbd, site, v, targetType, c)

	case *ManagedProps:
		return t.resolveManagedProps(v, targetType)

	case nil:
		return reflect.Zero(targetType), nil

	default:
		return t.converter.Convert(value, targetType)
	}
}

func (t *BeanFactory) resolveReference(beanName string, ref RuntimeRef, c *creation) (interface{}, error) {
	if ref.ToParent {
		if t.parent == nil {
			return nil, errors.Errorf("bean '%s' references '%s' in a parent factory, but no parent is set", beanName, ref.BeanName)
		}
		obj, err := t.parent.GetBean(ref.BeanName)
		if err != nil {
			return nil, err
		}
		return obj, nil
	}
	obj, err := t.doGetBean(ref.BeanName, nil, c)
	if err != nil {
		return nil, err
	}
	t.registry.registerDependent(t.canonicalName(ref.BeanName), beanName)
	if _, isNull := obj.(*NullBean); isNull {
		return nil, nil
	}
	return obj, nil
}

/**
resolveInnerBean creates an anonymous nested bean bound to the lifecycle of its
outer bean. Inner singletons requiring destruction are destroyed with the outer.
*/

func (t *BeanFactory) resolveInnerBean(outerName string, inner InnerBean, c *creation) (interface{}, error) {

	innerName := inner.BeanName
	if innerName == "" {
		innerName = fmt.Sprintf("(inner bean)#%d", atomic.AddInt64(&t.anonymousCounter, 1))
	}

	mbd, err := t.mergeDefinition(inner.Definition)
	if err != nil {
		return nil, err
	}

	if c.contains(innerName) {
		return nil, &CircularDependencyError{BeanName: innerName, Stack: c.path(innerName)}
	}
	c.push(innerName)
	obj, err := t.createBean(innerName, mbd, nil, c)
	c.pop()
	if err != nil {
		return nil, err
	}

	t.registry.registerDependent(innerName, outerName)
	if mbd.IsSingleton() {
		t.registerDisposableIfNecessary(innerName, obj, mbd)
	}
	return obj, nil
}

func (t *BeanFactory) resolveManagedSlice(beanName string, mbd *BeanDefinition, site string, values []interface{}, elemTypeName string, targetType reflect.Type, c *creation) (reflect.Value, error) {

	if targetType.Kind() != reflect.Slice {
		return reflect.Value{}, &TypeMismatchError{Value: values, TargetType: targetType.String(),
			Err: errors.Errorf("managed collection requires a slice target")}
	}
	elemType := targetType.Elem()
	if elemTypeName != "" {
		if declared, ok := simpleTypeByName(elemTypeName); ok && declared.AssignableTo(elemType) {
			elemType = declared
		}
	}

	out := reflect.MakeSlice(targetType, 0, len(values))
	for i, item := range values {
		val, err := t.resolveAndConvert(beanName, mbd, fmt.Sprintf("%s[%d]", site, i), item, elemType, c)
		if err != nil {
			return reflect.Value{}, err
		}
		if !val.IsValid() {
			val = reflect.Zero(elemType)
		}
		out = reflect.Append(out, val)
	}
	return out, nil
}

func (t *BeanFactory) resolveManagedMap(beanName string, mbd *BeanDefinition, site string, mm *ManagedMap, targetType reflect.Type, c *creation) (reflect.Value, error) {

	if targetType.Kind() != reflect.Map {
		return reflect.Value{}, &TypeMismatchError{Value: mm, TargetType: targetType.String(),
			Err: errors.Errorf("managed map requires a map target")}
	}
	keyType := targetType.Key()
	valType := targetType.Elem()

	out := reflect.MakeMapWithSize(targetType, len(mm.Entries))
	for i, entry := range mm.Entries {
		key, err := t.resolveAndConvert(beanName, mbd, fmt.Sprintf("%s key[%d]", site, i), entry.Key, keyType, c)
		if err != nil {
			return reflect.Value{}, err
		}
		val, err := t.resolveAndConvert(beanName, mbd, fmt.Sprintf("%s value[%d]", site, i), entry.Value, valType, c)
		if err != nil {
			return reflect.Value{}, err
		}
		if !val.IsValid() {
			val = reflect.Zero(valType)
		}
		out.SetMapIndex(key, val)
	}
	return out, nil
}

func (t *BeanFactory) resolveManagedProps(mp *ManagedProps, targetType reflect.Type) (reflect.Value, error) {

	switch {
	case targetType == PropertiesClass:
		props := NewProperties()
		for _, entry := range mp.Entries {
			props.Set(fmt.Sprint(entry.Key), fmt.Sprint(entry.Value))
		}
		return reflect.ValueOf(props), nil
	case targetType.Kind() == reflect.Map && targetType.Key().Kind() == reflect.String && targetType.Elem().Kind() == reflect.String:
		out := reflect.MakeMapWithSize(targetType, len(mp.Entries))
		for _, entry := range mp.Entries {
			out.SetMapIndex(reflect.ValueOf(fmt.Sprint(entry.Key)), reflect.ValueOf(fmt.Sprint(entry.Value)))
		}
		return out, nil
	default:
		return reflect.Value{}, &TypeMismatchError{Value: mp, TargetType: targetType.String(),
			Err: errors.Errorf("props value requires a Properties or map[string]string target")}
	}
}

/**
simpleTypeByName resolves a primitive type alias used in declarations.
*/

func simpleTypeByName(name string) (reflect.Type, bool) {
	switch name {
	case "string":
		return reflect.TypeOf(""), true
	case "bool":
		return reflect.TypeOf(false), true
	case "int":
		return reflect.TypeOf(int(0)), true
	case "int32":
		return reflect.TypeOf(int32(0)), true
	case "int64":
		return reflect.TypeOf(int64(0)), true
	case "uint":
		return reflect.TypeOf(uint(0)), true
	case "uint32":
		return reflect.TypeOf(uint32(0)), true
	case "uint64":
		return reflect.TypeOf(uint64(0)), true
	case "float32":
		return reflect.TypeOf(float32(0)), true
	case "float64":
		return reflect.TypeOf(float64(0)), true
	case "duration", "time.Duration":
		return durationClass, true
	default:
		return nil, false
	}
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}

func upperFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
