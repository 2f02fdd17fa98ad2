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

type lifecycleBean struct {
	Label string

	events   *[]string
	beanName string
}

func (t *lifecycleBean) SetBeanName(name string) {
	t.beanName = name
	t.record("aware:" + name)
}

func (t *lifecycleBean) PostConstruct() error {
	t.record("post-construct")
	return nil
}

func (t *lifecycleBean) Warmup() {
	t.record("warmup")
}

func (t *lifecycleBean) Destroy() error {
	t.record("destroy")
	return nil
}

func (t *lifecycleBean) Shutdown() {
	t.record("shutdown")
}

func (t *lifecycleBean) record(event string) {
	if t.events != nil {
		*t.events = append(*t.events, event)
	}
}

func TestLifecycleOrdering(t *testing.T) {

	factory := sprout.NewBeanFactory()
	var events []string

	def := sprout.NewBeanDefinition("")
	def.Supplier = func() (interface{}, error) {
		return &lifecycleBean{events: &events}, nil
	}
	def.InitMethodName = "Warmup"
	def.DestroyMethodName = "Shutdown"
	require.NoError(t, factory.RegisterDefinition("service", def))

	_, err := factory.GetBean("service")
	require.NoError(t, err)
	require.Equal(t, []string{"aware:service", "post-construct", "warmup"}, events)

	require.NoError(t, factory.DestroySingletons())
	require.Equal(t, []string{"aware:service", "post-construct", "warmup", "destroy", "shutdown"}, events)
}

func TestDestroyReverseOrder(t *testing.T) {

	factory := sprout.NewBeanFactory()
	var events []string

	for _, name := range []string{"first", "second", "third"} {
		name := name
		def := sprout.NewBeanDefinition("")
		def.Supplier = func() (interface{}, error) {
			return &trackingDisposable{name: name, events: &events}, nil
		}
		require.NoError(t, factory.RegisterDefinition(name, def))
	}

	require.NoError(t, factory.PreInstantiateSingletons())
	require.NoError(t, factory.DestroySingletons())
	require.Equal(t, []string{"third", "second", "first"}, events)
}

type trackingDisposable struct {
	name   string
	events *[]string
}

func (t *trackingDisposable) Destroy() error {
	*t.events = append(*t.events, t.name)
	return nil
}

func TestDependentDestroyedBeforeDependency(t *testing.T) {

	factory := sprout.NewBeanFactory()
	var events []string

	poolDef := sprout.NewBeanDefinition("")
	poolDef.Supplier = func() (interface{}, error) {
		return &trackingDisposable{name: "pool", events: &events}, nil
	}
	require.NoError(t, factory.RegisterDefinition("pool", poolDef))

	repoDef := sprout.NewBeanDefinition("")
	repoDef.Supplier = func() (interface{}, error) {
		return &trackingDisposable{name: "repo", events: &events}, nil
	}
	repoDef.DependsOn = []string{"pool"}
	require.NoError(t, factory.RegisterDefinition("repo", repoDef))

	// pool is created first, repo depends on it
	_, err := factory.GetBean("repo")
	require.NoError(t, err)

	require.NoError(t, factory.DestroySingletons())
	require.Equal(t, []string{"repo", "pool"}, events)
}

func TestPreInstantiateFailureCleansUp(t *testing.T) {

	factory := sprout.NewBeanFactory()
	var events []string

	for _, name := range []string{"first", "second"} {
		name := name
		def := sprout.NewBeanDefinition("")
		def.Supplier = func() (interface{}, error) {
			return &trackingDisposable{name: name, events: &events}, nil
		}
		require.NoError(t, factory.RegisterDefinition(name, def))
	}

	broken := sprout.NewBeanDefinition("")
	broken.Supplier = func() (interface{}, error) {
		return &failingInit{}, nil
	}
	require.NoError(t, factory.RegisterDefinition("broken", broken))

	err := factory.PreInstantiateSingletons()
	require.Error(t, err)
	require.Equal(t, []string{"second", "first"}, events)
}

type failingInit struct {
}

func (t *failingInit) PostConstruct() error {
	return errTestInit
}

var errTestInit = &testInitError{}

type testInitError struct {
}

func (t *testInitError) Error() string {
	return "init failed on purpose"
}

func TestLazySingletonSkippedOnPreInstantiate(t *testing.T) {

	factory := sprout.NewBeanFactory()
	created := false

	def := sprout.NewBeanDefinition("")
	def.LazyInit = true
	def.Supplier = func() (interface{}, error) {
		created = true
		return &plainService{}, nil
	}
	require.NoError(t, factory.RegisterDefinition("lazy", def))

	require.NoError(t, factory.PreInstantiateSingletons())
	require.False(t, created)

	_, err := factory.GetBean("lazy")
	require.NoError(t, err)
	require.True(t, created)
}

func TestMissingInitMethodEnforced(t *testing.T) {

	factory := sprout.NewBeanFactory()

	def := sprout.NewBeanDefinition("")
	def.Supplier = func() (interface{}, error) {
		return &plainService{}, nil
	}
	def.InitMethodName = "DoesNotExist"
	def.EnforceInitMethod = true
	require.NoError(t, factory.RegisterDefinition("service", def))

	_, err := factory.GetBean("service")
	require.Error(t, err)
	require.Contains(t, err.Error(), "DoesNotExist")
}

func TestMissingInitMethodLenient(t *testing.T) {

	factory := sprout.NewBeanFactory()

	def := sprout.NewBeanDefinition("")
	def.Supplier = func() (interface{}, error) {
		return &plainService{}, nil
	}
	def.InitMethodName = "DoesNotExist"
	require.NoError(t, factory.RegisterDefinition("service", def))

	_, err := factory.GetBean("service")
	require.NoError(t, err)
}

func TestDestroyIdempotent(t *testing.T) {

	factory := sprout.NewBeanFactory()
	var events []string

	def := sprout.NewBeanDefinition("")
	def.Supplier = func() (interface{}, error) {
		return &trackingDisposable{name: "bean", events: &events}, nil
	}
	require.NoError(t, factory.RegisterDefinition("bean", def))

	_, err := factory.GetBean("bean")
	require.NoError(t, err)

	require.NoError(t, factory.DestroySingletons())
	require.NoError(t, factory.DestroySingletons())
	require.Equal(t, []string{"bean"}, events)
}
