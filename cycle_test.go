/*
 * Copyright (c) 2023 Zander Schwid & Co. LLC.
 * SPDX-License-Identifier: BUSL-1.1
 */

package sprout_test

import (
	"testing"

	"github.com/codeallergy/sprout"
	"github.com/stretchr/testify/require"
)

type pingBean struct {
	Pong *pongBean
}

type pongBean struct {
	Ping *pingBean
}

func newCycleFactory(t *testing.T) *sprout.BeanFactory {
	factory := sprout.NewBeanFactory()
	require.NoError(t, factory.TypeRegistry().Register("pingBean", (*pingBean)(nil)))
	require.NoError(t, factory.TypeRegistry().Register("pongBean", (*pongBean)(nil)))
	return factory
}

func TestSetterCycleResolved(t *testing.T) {

	factory := newCycleFactory(t)

	ping := sprout.NewBeanDefinition("pingBean")
	ping.Properties.Add("pong", sprout.RuntimeRef{BeanName: "pong"})
	require.NoError(t, factory.RegisterDefinition("ping", ping))

	pong := sprout.NewBeanDefinition("pongBean")
	pong.Properties.Add("ping", sprout.RuntimeRef{BeanName: "ping"})
	require.NoError(t, factory.RegisterDefinition("pong", pong))

	obj, err := factory.GetBean("ping")
	require.NoError(t, err)

	p := obj.(*pingBean)
	require.NotNil(t, p.Pong)
	require.True(t, p.Pong.Ping == p)
}

func TestSetterCycleAutowired(t *testing.T) {

	factory := newCycleFactory(t)

	ping := sprout.NewBeanDefinition("pingBean")
	ping.Autowire = sprout.AutowireByType
	require.NoError(t, factory.RegisterDefinition("ping", ping))

	pong := sprout.NewBeanDefinition("pongBean")
	pong.Autowire = sprout.AutowireByType
	require.NoError(t, factory.RegisterDefinition("pong", pong))

	obj, err := factory.GetBean("ping")
	require.NoError(t, err)

	p := obj.(*pingBean)
	require.NotNil(t, p.Pong)
	require.True(t, p.Pong.Ping == p)
}

func TestSetterCycleDisallowed(t *testing.T) {

	factory := newCycleFactory(t)
	factory.SetAllowCircularReferences(false)

	ping := sprout.NewBeanDefinition("pingBean")
	ping.Properties.Add("pong", sprout.RuntimeRef{BeanName: "pong"})
	require.NoError(t, factory.RegisterDefinition("ping", ping))

	pong := sprout.NewBeanDefinition("pongBean")
	pong.Properties.Add("ping", sprout.RuntimeRef{BeanName: "ping"})
	require.NoError(t, factory.RegisterDefinition("pong", pong))

	_, err := factory.GetBean("ping")
	require.Error(t, err)
	require.Contains(t, err.Error(), "circular")
}

func TestConstructorCycleFails(t *testing.T) {

	factory := newCycleFactory(t)

	require.NoError(t, factory.TypeRegistry().RegisterConstructor("pingBean", func(pong *pongBean) *pingBean {
		return &pingBean{Pong: pong}
	}))
	require.NoError(t, factory.TypeRegistry().RegisterConstructor("pongBean", func(ping *pingBean) *pongBean {
		return &pongBean{Ping: ping}
	}))

	ping := sprout.NewBeanDefinition("pingBean")
	ping.Autowire = sprout.AutowireConstructor
	require.NoError(t, factory.RegisterDefinition("ping", ping))

	pong := sprout.NewBeanDefinition("pongBean")
	pong.Autowire = sprout.AutowireConstructor
	require.NoError(t, factory.RegisterDefinition("pong", pong))

	_, err := factory.GetBean("ping")
	require.Error(t, err)
	require.Contains(t, err.Error(), "circular")
}

func TestSelfReferenceFails(t *testing.T) {

	factory := newCycleFactory(t)

	require.NoError(t, factory.TypeRegistry().RegisterConstructor("pingBean", func(other *pingBean) *pingBean {
		return &pingBean{}
	}))

	ping := sprout.NewBeanDefinition("pingBean")
	ping.Autowire = sprout.AutowireConstructor
	require.NoError(t, factory.RegisterDefinition("ping", ping))

	_, err := factory.GetBean("ping")
	require.Error(t, err)
}
