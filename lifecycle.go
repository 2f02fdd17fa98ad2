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

/**
initializeBean runs the initialization pipeline on a populated instance:
aware callbacks, before-initialization processors, the PostConstruct contract,
the custom init method, after-initialization processors. Processors may replace
the object, the final object is returned.
*/

func (t *BeanFactory) initializeBean(beanName string, obj interface{}, mbd *BeanDefinition) (interface{}, error) {

	if _, isNull := obj.(*NullBean); isNull {
		return obj, nil
	}

	t.invokeAware(beanName, obj)

	wrapped := obj
	for _, pp := range t.processors {
		result, err := pp.BeforeInitialization(wrapped, beanName)
		if err != nil {
			return nil, err
		}
		if replacement, replaced := result.Replaced(); replaced && replacement != nil {
			wrapped = replacement
		}
	}

	if err := t.invokeInitMethods(beanName, mbd, wrapped); err != nil {
		return nil, err
	}

	for _, pp := range t.processors {
		result, err := pp.AfterInitialization(wrapped, beanName)
		if err != nil {
			return nil, err
		}
		if replacement, replaced := result.Replaced(); replaced && replacement != nil {
			wrapped = replacement
		}
	}

	return wrapped, nil
}

func (t *BeanFactory) invokeAware(beanName string, obj interface{}) {
	if aware, ok := obj.(BeanNameAware); ok {
		aware.SetBeanName(beanName)
	}
	if aware, ok := obj.(TypeRegistryAware); ok {
		aware.SetTypeRegistry(t.types)
	}
	if aware, ok := obj.(BeanFactoryAware); ok {
		aware.SetBeanFactory(t)
	}
}

/**
invokeInitMethods calls PostConstruct when implemented, then the custom init
method unless it duplicates the interface callback. A missing custom method is
fatal only for enforced definitions.
*/

func (t *BeanFactory) invokeInitMethods(beanName string, mbd *BeanDefinition, obj interface{}) error {

	implemented := false
	if initializing, ok := obj.(InitializingBean); ok {
		implemented = true
		if err := initializing.PostConstruct(); err != nil {
			return errors.Errorf("PostConstruct of bean '%s' failed, %v", beanName, err)
		}
	}

	methodName := mbd.InitMethodName
	if methodName == "" || (methodName == "PostConstruct" && implemented) {
		return nil
	}

	method := reflect.ValueOf(obj).MethodByName(methodName)
	if !method.IsValid() {
		if mbd.EnforceInitMethod {
			return errors.Errorf("bean '%s' has no init method '%s'", beanName, methodName)
		}
		if verbose != nil {
			verbose.Printf("bean '%s' has no init method '%s', skipping\n", beanName, methodName)
		}
		return nil
	}
	if err := invokeNiladic(method); err != nil {
		return errors.Errorf("init method '%s' of bean '%s' failed, %v", methodName, beanName, err)
	}
	return nil
}

/**
invokeNiladic calls a no-argument method returning nothing or an error.
*/

func invokeNiladic(method reflect.Value) error {
	mt := method.Type()
	if mt.NumIn() != 0 {
		return errors.Errorf("method must not take arguments")
	}
	switch mt.NumOut() {
	case 0:
		method.Call(nil)
		return nil
	case 1:
		if mt.Out(0) != errorClass {
			return errors.Errorf("method single result must be an error")
		}
		out := method.Call(nil)
		if !out[0].IsNil() {
			return out[0].Interface().(error)
		}
		return nil
	default:
		return errors.Errorf("method must return nothing or an error")
	}
}

/**
disposableAdapter joins the Destroy contract and the custom destroy method of a
singleton into a single idempotent destruction callback.
*/

type disposableAdapter struct {
	obj           interface{}
	beanName      string
	destroyMethod string
	once          sync.Once
	err           error
}

func (t *disposableAdapter) destroy() error {
	t.once.Do(func() {
		t.err = t.doDestroy()
	})
	return t.err
}

func (t *disposableAdapter) doDestroy() error {

	var list []error

	implemented := false
	if disposable, ok := t.obj.(DisposableBean); ok {
		implemented = true
		if err := disposable.Destroy(); err != nil {
			list = append(list, errors.Errorf("Destroy of bean '%s' failed, %v", t.beanName, err))
		}
	}

	if t.destroyMethod != "" && !(t.destroyMethod == "Destroy" && implemented) {
		method := reflect.ValueOf(t.obj).MethodByName(t.destroyMethod)
		if method.IsValid() {
			if err := invokeNiladic(method); err != nil {
				list = append(list, errors.Errorf("destroy method '%s' of bean '%s' failed, %v", t.destroyMethod, t.beanName, err))
			}
		} else if verbose != nil {
			verbose.Printf("bean '%s' has no destroy method '%s', skipping\n", t.beanName, t.destroyMethod)
		}
	}

	return multipleErr(list)
}

/**
registerDisposableIfNecessary enrolls a managed instance in the destruction plan.
Prototype instances are never tracked, their teardown belongs to the caller.
*/

func (t *BeanFactory) registerDisposableIfNecessary(beanName string, obj interface{}, mbd *BeanDefinition) {

	if mbd.IsPrototype() {
		return
	}
	if _, isNull := obj.(*NullBean); isNull {
		return
	}

	_, disposable := obj.(DisposableBean)
	if !disposable && mbd.DestroyMethodName == "" {
		return
	}

	t.registry.registerDisposable(beanName, &disposableAdapter{
		obj:           obj,
		beanName:      beanName,
		destroyMethod: mbd.DestroyMethodName,
	})
}
