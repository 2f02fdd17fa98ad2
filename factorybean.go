/*
 * Copyright (c) 2023 Zander Schwid & Co. LLC.
 * SPDX-License-Identifier: BUSL-1.1
 */

package sprout

import (
	"github.com/pkg/errors"
)

/**
getObjectFromFactory dereferences a factory bean into its produced object.
Objects of singleton factories registered as singletons are produced once and
cached. A nil product while the factory itself is still in creation is a cycle,
otherwise it collapses to the null placeholder.
*/

func (t *BeanFactory) getObjectFromFactory(factory FactoryBean, beanName string, shouldPostProcess bool, c *creation) (interface{}, error) {

	if factory.Singleton() && t.registry.containsSingleton(beanName) {

		t.factoryMu.Lock()
		if obj, ok := t.factoryCache[beanName]; ok {
			t.factoryMu.Unlock()
			return obj, nil
		}
		t.factoryMu.Unlock()

		// the lock is not held across Object() and post processing, a product
		// that resolves another factory bean product re-enters here on the
		// same goroutine
		obj, err := t.produceObject(factory, beanName)
		if err != nil {
			return nil, err
		}

		if shouldPostProcess {
			if t.registry.isInCreation(beanName) {
				// temporarily exposed product of a factory in a reference cycle,
				// returned as is and never cached
				return obj, nil
			}
			obj, err = t.applyAfterInitialization(obj, beanName)
			if err != nil {
				return nil, &BeanCreationError{BeanName: beanName, Phase: PhaseInitialization,
					Err: errors.Errorf("post processing of the factory bean product failed, %v", err)}
			}
		}

		t.factoryMu.Lock()
		defer t.factoryMu.Unlock()
		if known, ok := t.factoryCache[beanName]; ok {
			return known, nil
		}
		t.factoryCache[beanName] = obj
		return obj, nil
	}

	obj, err := t.produceObject(factory, beanName)
	if err != nil {
		return nil, err
	}
	if shouldPostProcess {
		obj, err = t.applyAfterInitialization(obj, beanName)
		if err != nil {
			return nil, &BeanCreationError{BeanName: beanName, Phase: PhaseInitialization,
				Err: errors.Errorf("post processing of the factory bean product failed, %v", err)}
		}
	}
	return obj, nil
}

func (t *BeanFactory) produceObject(factory FactoryBean, beanName string) (interface{}, error) {
	obj, err := factory.Object()
	if err != nil {
		return nil, errors.Errorf("factory bean '%s' failed to produce the object, %v", beanName, err)
	}
	if obj == nil {
		if t.registry.isInCreation(beanName) {
			return nil, &CurrentlyInCreationError{BeanName: beanName}
		}
		obj = &NullBean{}
	}
	return obj, nil
}
