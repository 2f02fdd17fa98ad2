/*
 * Copyright (c) 2023 Zander Schwid & Co. LLC.
 * SPDX-License-Identifier: BUSL-1.1
 */

package sprout_test

import (
	"reflect"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/codeallergy/sprout"
	"github.com/stretchr/testify/require"
)

type plainService struct {
}

type serverBean struct {
	Host string
	Port int
}

type clientBean struct {
	Server *serverBean
}

func newFactoryWithTypes(t *testing.T) *sprout.BeanFactory {
	factory := sprout.NewBeanFactory()
	require.NoError(t, factory.TypeRegistry().Register("plainService", (*plainService)(nil)))
	require.NoError(t, factory.TypeRegistry().Register("serverBean", (*serverBean)(nil)))
	require.NoError(t, factory.TypeRegistry().Register("clientBean", (*clientBean)(nil)))
	return factory
}

func TestSingletonSameInstance(t *testing.T) {

	factory := newFactoryWithTypes(t)
	require.NoError(t, factory.RegisterDefinition("service", sprout.NewBeanDefinition("plainService")))

	first, err := factory.GetBean("service")
	require.NoError(t, err)
	require.NotNil(t, first)

	second, err := factory.GetBean("service")
	require.NoError(t, err)
	require.True(t, first == second)
}

func TestPrototypeFreshInstance(t *testing.T) {

	factory := newFactoryWithTypes(t)
	def := sprout.NewBeanDefinition("plainService")
	def.Scope = sprout.ScopePrototype
	require.NoError(t, factory.RegisterDefinition("service", def))

	first, err := factory.GetBean("service")
	require.NoError(t, err)
	second, err := factory.GetBean("service")
	require.NoError(t, err)
	require.False(t, first == second)
}

func TestNoSuchBean(t *testing.T) {

	factory := newFactoryWithTypes(t)

	_, err := factory.GetBean("unknown")
	require.Error(t, err)
	require.Contains(t, err.Error(), "no bean named 'unknown'")
}

func TestConcurrentSingletonUniqueness(t *testing.T) {

	factory := newFactoryWithTypes(t)
	require.NoError(t, factory.RegisterDefinition("service", sprout.NewBeanDefinition("plainService")))

	const n = 32
	results := make([]interface{}, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = factory.GetBean("service")
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		require.True(t, results[0] == results[i])
	}
}

func TestPropertyPopulation(t *testing.T) {

	factory := newFactoryWithTypes(t)

	def := sprout.NewBeanDefinition("serverBean")
	def.Properties.Add("host", sprout.TypedString{Value: "localhost"})
	def.Properties.Add("port", sprout.TypedString{Value: "8080"})
	require.NoError(t, factory.RegisterDefinition("server", def))

	obj, err := factory.GetBean("server")
	require.NoError(t, err)

	server := obj.(*serverBean)
	require.Equal(t, "localhost", server.Host)
	require.Equal(t, 8080, server.Port)
}

func TestEmptyStringToIntFails(t *testing.T) {

	factory := newFactoryWithTypes(t)

	def := sprout.NewBeanDefinition("serverBean")
	def.Properties.Add("port", sprout.TypedString{Value: ""})
	require.NoError(t, factory.RegisterDefinition("server", def))

	_, err := factory.GetBean("server")
	require.Error(t, err)
}

func TestReferenceProperty(t *testing.T) {

	factory := newFactoryWithTypes(t)

	require.NoError(t, factory.RegisterDefinition("server", sprout.NewBeanDefinition("serverBean")))

	def := sprout.NewBeanDefinition("clientBean")
	def.Properties.Add("server", sprout.RuntimeRef{BeanName: "server"})
	require.NoError(t, factory.RegisterDefinition("client", def))

	obj, err := factory.GetBean("client")
	require.NoError(t, err)

	server, err := factory.GetBean("server")
	require.NoError(t, err)
	require.True(t, obj.(*clientBean).Server == server)
}

func TestAutowireByType(t *testing.T) {

	factory := newFactoryWithTypes(t)

	require.NoError(t, factory.RegisterDefinition("server", sprout.NewBeanDefinition("serverBean")))

	def := sprout.NewBeanDefinition("clientBean")
	def.Autowire = sprout.AutowireByType
	require.NoError(t, factory.RegisterDefinition("client", def))

	obj, err := factory.GetBean("client")
	require.NoError(t, err)
	require.NotNil(t, obj.(*clientBean).Server)
}

func TestAutowireByTypeAmbiguous(t *testing.T) {

	factory := newFactoryWithTypes(t)

	require.NoError(t, factory.RegisterDefinition("serverA", sprout.NewBeanDefinition("serverBean")))
	require.NoError(t, factory.RegisterDefinition("serverB", sprout.NewBeanDefinition("serverBean")))

	def := sprout.NewBeanDefinition("clientBean")
	def.Autowire = sprout.AutowireByType
	require.NoError(t, factory.RegisterDefinition("client", def))

	_, err := factory.GetBean("client")
	require.Error(t, err)
	require.Contains(t, err.Error(), "expected single matching bean")
}

func TestAutowireByTypePrimaryWins(t *testing.T) {

	factory := newFactoryWithTypes(t)

	require.NoError(t, factory.RegisterDefinition("serverA", sprout.NewBeanDefinition("serverBean")))

	primaryDef := sprout.NewBeanDefinition("serverBean")
	primaryDef.Primary = true
	require.NoError(t, factory.RegisterDefinition("serverB", primaryDef))

	def := sprout.NewBeanDefinition("clientBean")
	def.Autowire = sprout.AutowireByType
	require.NoError(t, factory.RegisterDefinition("client", def))

	obj, err := factory.GetBean("client")
	require.NoError(t, err)

	serverB, err := factory.GetBean("serverB")
	require.NoError(t, err)
	require.True(t, obj.(*clientBean).Server == serverB)
}

func TestAutowireByName(t *testing.T) {

	factory := newFactoryWithTypes(t)

	require.NoError(t, factory.RegisterDefinition("server", sprout.NewBeanDefinition("serverBean")))

	def := sprout.NewBeanDefinition("clientBean")
	def.Autowire = sprout.AutowireByName
	require.NoError(t, factory.RegisterDefinition("client", def))

	obj, err := factory.GetBean("client")
	require.NoError(t, err)
	// no bean named 'server' matches the field name 'Server' lower-cased
	server, err := factory.GetBean("server")
	require.NoError(t, err)
	require.True(t, obj.(*clientBean).Server == server)
}

func TestAutowireCandidateExcluded(t *testing.T) {

	factory := newFactoryWithTypes(t)

	require.NoError(t, factory.RegisterDefinition("serverA", sprout.NewBeanDefinition("serverBean")))

	hidden := sprout.NewBeanDefinition("serverBean")
	hidden.AutowireCandidate = false
	require.NoError(t, factory.RegisterDefinition("serverB", hidden))

	def := sprout.NewBeanDefinition("clientBean")
	def.Autowire = sprout.AutowireByType
	require.NoError(t, factory.RegisterDefinition("client", def))

	obj, err := factory.GetBean("client")
	require.NoError(t, err)

	serverA, err := factory.GetBean("serverA")
	require.NoError(t, err)
	require.True(t, obj.(*clientBean).Server == serverA)
}

func TestDependsOnOrdering(t *testing.T) {

	factory := newFactoryWithTypes(t)
	var order []string

	first := sprout.NewBeanDefinition("")
	first.Supplier = func() (interface{}, error) {
		order = append(order, "first")
		return &plainService{}, nil
	}
	require.NoError(t, factory.RegisterDefinition("first", first))

	second := sprout.NewBeanDefinition("")
	second.DependsOn = []string{"first"}
	second.Supplier = func() (interface{}, error) {
		order = append(order, "second")
		return &plainService{}, nil
	}
	require.NoError(t, factory.RegisterDefinition("second", second))

	_, err := factory.GetBean("second")
	require.NoError(t, err)
	require.Equal(t, []string{"first", "second"}, order)
}

func TestDependsOnCycleRejected(t *testing.T) {

	factory := newFactoryWithTypes(t)

	a := sprout.NewBeanDefinition("plainService")
	a.DependsOn = []string{"b"}
	require.NoError(t, factory.RegisterDefinition("a", a))

	b := sprout.NewBeanDefinition("plainService")
	b.DependsOn = []string{"a"}
	require.NoError(t, factory.RegisterDefinition("b", b))

	_, err := factory.GetBean("a")
	require.Error(t, err)
	require.Contains(t, err.Error(), "depends-on")
}

func TestSupplierNilBecomesNil(t *testing.T) {

	factory := newFactoryWithTypes(t)

	def := sprout.NewBeanDefinition("")
	def.Supplier = func() (interface{}, error) {
		return nil, nil
	}
	require.NoError(t, factory.RegisterDefinition("empty", def))

	obj, err := factory.GetBean("empty")
	require.NoError(t, err)
	require.Nil(t, obj)
}

func TestRegisteredSingletonLookup(t *testing.T) {

	factory := newFactoryWithTypes(t)

	manual := &plainService{}
	require.NoError(t, factory.RegisterSingleton("manual", manual))

	obj, err := factory.GetBean("manual")
	require.NoError(t, err)
	require.True(t, obj == manual)
}

func TestBeanFactorySelfInjection(t *testing.T) {

	factory := sprout.NewBeanFactory()
	require.NoError(t, factory.TypeRegistry().Register("holder", (*factoryHolder)(nil)))

	def := sprout.NewBeanDefinition("holder")
	def.Autowire = sprout.AutowireByType
	require.NoError(t, factory.RegisterDefinition("holder", def))

	obj, err := factory.GetBean("holder")
	require.NoError(t, err)
	require.True(t, obj.(*factoryHolder).Factory == factory)
}

type factoryHolder struct {
	Factory *sprout.BeanFactory
}

func TestParentFactoryFallback(t *testing.T) {

	parent := sprout.NewBeanFactory()
	require.NoError(t, parent.TypeRegistry().Register("plainService", (*plainService)(nil)))
	require.NoError(t, parent.RegisterDefinition("shared", sprout.NewBeanDefinition("plainService")))

	child := sprout.NewBeanFactory()
	child.SetParent(parent)

	fromChild, err := child.GetBean("shared")
	require.NoError(t, err)
	fromParent, err := parent.GetBean("shared")
	require.NoError(t, err)
	require.True(t, fromChild == fromParent)
}

type countingConverter struct {
	delegate sprout.TypeConverter
	calls    int32
}

func (t *countingConverter) Convert(value interface{}, target reflect.Type) (reflect.Value, error) {
	atomic.AddInt32(&t.calls, 1)
	return t.delegate.Convert(value, target)
}

func TestPrototypeConversionCached(t *testing.T) {

	factory := newFactoryWithTypes(t)
	converter := &countingConverter{delegate: factory.TypeConverter()}
	factory.SetTypeConverter(converter)

	def := sprout.NewBeanDefinition("serverBean")
	def.Scope = sprout.ScopePrototype
	def.Properties.Add("port", sprout.TypedString{Value: "8080"})
	require.NoError(t, factory.RegisterDefinition("server", def))

	first, err := factory.GetBean("server")
	require.NoError(t, err)
	require.Equal(t, 8080, first.(*serverBean).Port)
	require.Equal(t, int32(1), atomic.LoadInt32(&converter.calls))

	second, err := factory.GetBean("server")
	require.NoError(t, err)
	require.Equal(t, 8080, second.(*serverBean).Port)
	require.Equal(t, int32(1), atomic.LoadInt32(&converter.calls))
}

func TestAutowireByNameSkipsSimpleFields(t *testing.T) {

	factory := newFactoryWithTypes(t)
	require.NoError(t, factory.RegisterSingleton("host", &plainService{}))

	def := sprout.NewBeanDefinition("serverBean")
	def.Autowire = sprout.AutowireByName
	require.NoError(t, factory.RegisterDefinition("server", def))

	obj, err := factory.GetBean("server")
	require.NoError(t, err)
	require.Equal(t, "", obj.(*serverBean).Host)
}

func TestMergedDefinitionRefreshedOnShadowingParent(t *testing.T) {

	parent := sprout.NewBeanFactory()
	baseDef := sprout.NewBeanDefinition("serverBean")
	baseDef.Properties.Add("host", sprout.TypedString{Value: "parent.example.org"})
	require.NoError(t, parent.RegisterDefinition("base", baseDef))

	child := sprout.NewBeanFactory()
	child.SetParent(parent)
	childDef := sprout.NewBeanDefinition("")
	childDef.Parent = "base"
	require.NoError(t, child.RegisterDefinition("server", childDef))

	merged, err := child.MergedDefinition("server")
	require.NoError(t, err)
	pv, ok := merged.Properties.Get("host")
	require.True(t, ok)
	require.Equal(t, "parent.example.org", pv.Value.(sprout.TypedString).Value)

	localBase := sprout.NewBeanDefinition("serverBean")
	localBase.Properties.Add("host", sprout.TypedString{Value: "local.example.org"})
	require.NoError(t, child.RegisterDefinition("base", localBase))

	merged, err = child.MergedDefinition("server")
	require.NoError(t, err)
	pv, ok = merged.Properties.Get("host")
	require.True(t, ok)
	require.Equal(t, "local.example.org", pv.Value.(sprout.TypedString).Value)
}

type countingDefProcessor struct {
	calls int32
}

func (t *countingDefProcessor) ProcessDefinition(def *sprout.BeanDefinition, beanName string) error {
	atomic.AddInt32(&t.calls, 1)
	return nil
}

func TestDefinitionProcessorsRunOncePerDefinition(t *testing.T) {

	factory := newFactoryWithTypes(t)
	counter := &countingDefProcessor{}
	require.NoError(t, factory.AddPostProcessor(counter))

	def := sprout.NewBeanDefinition("plainService")
	def.Scope = sprout.ScopePrototype
	require.NoError(t, factory.RegisterDefinition("service", def))

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = factory.GetBean("service")
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	require.Equal(t, int32(1), atomic.LoadInt32(&counter.calls))
}
