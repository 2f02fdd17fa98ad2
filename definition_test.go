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

func TestDefinitionDefaults(t *testing.T) {

	def := sprout.NewBeanDefinition("someService")

	require.Equal(t, "someService", def.TypeName)
	require.Equal(t, sprout.ScopeSingleton, def.Scope)
	require.True(t, def.IsSingleton())
	require.False(t, def.IsPrototype())
	require.True(t, def.AutowireCandidate)
	require.False(t, def.Abstract)
}

func TestMergedDefinitionOverlay(t *testing.T) {

	factory := sprout.NewBeanFactory()

	parent := sprout.NewBeanDefinition("baseService")
	parent.Abstract = true
	parent.InitMethodName = "Setup"
	parent.Properties.Add("host", sprout.TypedString{Value: "localhost"})
	parent.Properties.Add("port", sprout.TypedString{Value: "8080"})
	require.NoError(t, factory.RegisterDefinition("base", parent))

	child := sprout.NewBeanDefinition("childService")
	child.Parent = "base"
	child.Properties.Add("port", sprout.TypedString{Value: "9090"})
	require.NoError(t, factory.RegisterDefinition("child", child))

	mbd, err := factory.MergedDefinition("child")
	require.NoError(t, err)

	require.Equal(t, "childService", mbd.TypeName)
	require.False(t, mbd.Abstract)
	require.Equal(t, "Setup", mbd.InitMethodName)
	require.True(t, mbd.Merged())

	host, ok := mbd.Properties.Get("host")
	require.True(t, ok)
	require.Equal(t, sprout.TypedString{Value: "localhost"}, host.Value)

	port, ok := mbd.Properties.Get("port")
	require.True(t, ok)
	require.Equal(t, sprout.TypedString{Value: "9090"}, port.Value)
}

func TestMergedDefinitionIdempotent(t *testing.T) {

	factory := sprout.NewBeanFactory()

	parent := sprout.NewBeanDefinition("baseService")
	require.NoError(t, factory.RegisterDefinition("base", parent))

	child := sprout.NewBeanDefinition("childService")
	child.Parent = "base"
	require.NoError(t, factory.RegisterDefinition("child", child))

	first, err := factory.MergedDefinition("child")
	require.NoError(t, err)
	second, err := factory.MergedDefinition("child")
	require.NoError(t, err)

	require.True(t, first == second)
}

func TestCollectionMerge(t *testing.T) {

	factory := sprout.NewBeanFactory()

	parent := sprout.NewBeanDefinition("baseService")
	parent.Properties.Add("tags", &sprout.ManagedList{
		Values: []interface{}{
			sprout.TypedString{Value: "x"},
			sprout.TypedString{Value: "y"},
		},
	})
	require.NoError(t, factory.RegisterDefinition("base", parent))

	child := sprout.NewBeanDefinition("childService")
	child.Parent = "base"
	child.Properties.Add("tags", &sprout.ManagedList{
		MergeEnabled: true,
		Values: []interface{}{
			sprout.TypedString{Value: "z"},
		},
	})
	require.NoError(t, factory.RegisterDefinition("child", child))

	mbd, err := factory.MergedDefinition("child")
	require.NoError(t, err)

	pv, ok := mbd.Properties.Get("tags")
	require.True(t, ok)

	list, ok := pv.Value.(*sprout.ManagedList)
	require.True(t, ok)
	require.Equal(t, 3, len(list.Values))
	require.Equal(t, sprout.TypedString{Value: "x"}, list.Values[0])
	require.Equal(t, sprout.TypedString{Value: "y"}, list.Values[1])
	require.Equal(t, sprout.TypedString{Value: "z"}, list.Values[2])
}

func TestCollectionReplaceWithoutMerge(t *testing.T) {

	factory := sprout.NewBeanFactory()

	parent := sprout.NewBeanDefinition("baseService")
	parent.Properties.Add("tags", &sprout.ManagedList{
		Values: []interface{}{sprout.TypedString{Value: "x"}},
	})
	require.NoError(t, factory.RegisterDefinition("base", parent))

	child := sprout.NewBeanDefinition("childService")
	child.Parent = "base"
	child.Properties.Add("tags", &sprout.ManagedList{
		Values: []interface{}{sprout.TypedString{Value: "z"}},
	})
	require.NoError(t, factory.RegisterDefinition("child", child))

	mbd, err := factory.MergedDefinition("child")
	require.NoError(t, err)

	pv, ok := mbd.Properties.Get("tags")
	require.True(t, ok)

	list, ok := pv.Value.(*sprout.ManagedList)
	require.True(t, ok)
	require.Equal(t, 1, len(list.Values))
	require.Equal(t, sprout.TypedString{Value: "z"}, list.Values[0])
}

func TestAbstractDefinitionNotInstantiable(t *testing.T) {

	factory := sprout.NewBeanFactory()

	def := sprout.NewBeanDefinition("baseService")
	def.Abstract = true
	require.NoError(t, factory.RegisterDefinition("base", def))

	_, err := factory.GetBean("base")
	require.Error(t, err)
	require.Contains(t, err.Error(), "abstract")
}

func TestDuplicateDefinitionName(t *testing.T) {

	factory := sprout.NewBeanFactory()

	require.NoError(t, factory.RegisterDefinition("one", sprout.NewBeanDefinition("someService")))
	err := factory.RegisterDefinition("one", sprout.NewBeanDefinition("otherService"))
	require.Error(t, err)
}

func TestAliasResolution(t *testing.T) {

	factory := sprout.NewBeanFactory()
	require.NoError(t, factory.TypeRegistry().Register("plainService", (*plainService)(nil)))

	require.NoError(t, factory.RegisterDefinition("service", sprout.NewBeanDefinition("plainService")))
	require.NoError(t, factory.RegisterAlias("service", "svc"))
	require.NoError(t, factory.RegisterAlias("svc", "s"))

	direct, err := factory.GetBean("service")
	require.NoError(t, err)
	byAlias, err := factory.GetBean("s")
	require.NoError(t, err)
	require.True(t, direct == byAlias)
}

func TestAliasCycleRejected(t *testing.T) {

	factory := sprout.NewBeanFactory()

	require.NoError(t, factory.RegisterAlias("b", "a"))
	err := factory.RegisterAlias("a", "b")
	require.Error(t, err)
}
