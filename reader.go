/*
 * Copyright (c) 2023 Zander Schwid & Co. LLC.
 * SPDX-License-Identifier: BUSL-1.1
 */

package sprout

import (
	"fmt"
	"io"
	"io/ioutil"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

/**
DefinitionRegistry accepts parsed bean definitions. Implemented by BeanFactory.
*/

type DefinitionRegistry interface {
	RegisterDefinition(name string, def *BeanDefinition) error
	RegisterAlias(name string, alias string) error
	ContainsDefinition(name string) bool
}

/**
Problem is a single recoverable parse issue with its document position.
*/

type Problem struct {
	Message string
	Line    int
	Column  int
}

func (t Problem) String() string {
	return fmt.Sprintf("line %d column %d: %s", t.Line, t.Column, t.Message)
}

/**
DefinitionReader parses bean definition documents in YAML form and registers the
results. Recoverable issues are collected per pass and reported together, a
document with problems registers nothing beyond the valid prefix.
*/

type DefinitionReader struct {
	registry DefinitionRegistry

	problems []Problem

	usedNames map[string]int
}

func NewDefinitionReader(registry DefinitionRegistry) *DefinitionReader {
	return &DefinitionReader{
		registry:  registry,
		usedNames: make(map[string]int),
	}
}

func (t *DefinitionReader) report(node *yaml.Node, format string, args ...interface{}) {
	p := Problem{Message: fmt.Sprintf(format, args...)}
	if node != nil {
		p.Line = node.Line
		p.Column = node.Column
	}
	t.problems = append(t.problems, p)
}

func (t *DefinitionReader) Problems() []Problem {
	return t.problems
}

/**
Load parses the document and registers all definitions and aliases found in it.
Returns the number of definitions registered.
*/

func (t *DefinitionReader) Load(reader io.Reader) (int, error) {
	content, err := ioutil.ReadAll(reader)
	if err != nil {
		return 0, err
	}
	return t.LoadString(string(content))
}

func (t *DefinitionReader) LoadString(content string) (int, error) {

	t.problems = nil

	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(content), &doc); err != nil {
		return 0, errors.Errorf("definition document parse error, %v", err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return 0, nil
	}

	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return 0, errors.Errorf("definition document root must be a mapping, line %d", root.Line)
	}

	count := 0
	for i := 0; i+1 < len(root.Content); i += 2 {
		key, value := root.Content[i], root.Content[i+1]
		switch key.Value {
		case "beans":
			count += t.loadBeans(value)
		case "aliases":
			t.loadAliases(value)
		default:
			t.report(key, "unknown document section '%s'", key.Value)
		}
	}

	if len(t.problems) > 0 {
		lines := make([]string, 0, len(t.problems))
		for _, p := range t.problems {
			lines = append(lines, p.String())
		}
		return count, errors.Errorf("definition document has %d problem(s):\n%s",
			len(t.problems), strings.Join(lines, "\n"))
	}
	return count, nil
}

func (t *DefinitionReader) loadBeans(node *yaml.Node) int {
	if node.Kind != yaml.SequenceNode {
		t.report(node, "'beans' must be a sequence")
		return 0
	}
	count := 0
	for _, beanNode := range node.Content {
		if t.loadBean(beanNode) {
			count++
		}
	}
	return count
}

func (t *DefinitionReader) loadAliases(node *yaml.Node) {
	if node.Kind != yaml.MappingNode {
		t.report(node, "'aliases' must be a mapping of alias to bean name")
		return
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		alias, name := node.Content[i], node.Content[i+1]
		if err := t.registry.RegisterAlias(name.Value, alias.Value); err != nil {
			t.report(alias, "alias '%s': %v", alias.Value, err)
		}
	}
}

/**
loadBean parses one bean mapping and registers the definition. The bean name
falls back to the first alias, then to a generated type based name.
*/

func (t *DefinitionReader) loadBean(node *yaml.Node) bool {

	if node.Kind != yaml.MappingNode {
		t.report(node, "bean entry must be a mapping")
		return false
	}

	def := NewBeanDefinition("")
	var name string
	var aliases []string
	before := len(t.problems)

	for i := 0; i+1 < len(node.Content); i += 2 {
		key, value := node.Content[i], node.Content[i+1]
		switch key.Value {

		case "name":
			name = value.Value
		case "aliases":
			aliases = t.parseStringList(value)
		case "type":
			def.TypeName = value.Value
		case "parent":
			def.Parent = value.Value
		case "abstract":
			def.Abstract = t.parseBoolAttr(value)
		case "scope":
			switch value.Value {
			case ScopeSingleton, ScopePrototype:
				def.Scope = value.Value
			default:
				t.report(value, "unknown scope '%s'", value.Value)
			}
		case "lazy-init":
			def.LazyInit = t.parseBoolAttr(value)
		case "primary":
			def.Primary = t.parseBoolAttr(value)
		case "autowire-candidate":
			def.AutowireCandidate = t.parseBoolAttr(value)
		case "autowire":
			def.Autowire = t.parseAutowire(value)
		case "dependency-check":
			def.DependencyCheck = t.parseDependencyCheck(value)
		case "depends-on":
			def.DependsOn = t.parseStringList(value)
		case "init-method":
			def.InitMethodName = value.Value
		case "enforce-init":
			def.EnforceInitMethod = t.parseBoolAttr(value)
		case "destroy-method":
			def.DestroyMethodName = value.Value
		case "factory-bean":
			def.FactoryBeanName = value.Value
		case "factory-method":
			def.FactoryMethodName = value.Value
		case "lookup-methods":
			t.parseLookupMethods(value, def)
		case "constructor-args":
			t.parseConstructorArgs(value, def)
		case "properties":
			t.parseProperties(value, def)
		default:
			t.report(key, "unknown bean attribute '%s'", key.Value)
		}
	}

	if def.TypeName == "" && def.Parent == "" && def.FactoryMethodName == "" {
		t.report(node, "bean requires one of type, parent or factory-method")
	}
	if len(t.problems) > before {
		return false
	}

	if name == "" && len(aliases) > 0 {
		name, aliases = aliases[0], aliases[1:]
	}
	if name == "" {
		name = t.generateName(def)
	}

	if err := t.registry.RegisterDefinition(name, def); err != nil {
		t.report(node, "bean '%s': %v", name, err)
		return false
	}
	for _, alias := range aliases {
		if err := t.registry.RegisterAlias(name, alias); err != nil {
			t.report(node, "alias '%s' of bean '%s': %v", alias, name, err)
		}
	}
	return true
}

func (t *DefinitionReader) generateName(def *BeanDefinition) string {
	base := def.TypeName
	if base == "" {
		base = def.Parent
	}
	if base == "" {
		base = def.FactoryMethodName
	}
	for {
		t.usedNames[base]++
		name := fmt.Sprintf("%s#%d", base, t.usedNames[base])
		if !t.registry.ContainsDefinition(name) {
			return name
		}
	}
}

func (t *DefinitionReader) parseBoolAttr(node *yaml.Node) bool {
	v, err := parseBool(node.Value)
	if err != nil {
		t.report(node, "invalid boolean '%s'", node.Value)
		return false
	}
	return v
}

func (t *DefinitionReader) parseAutowire(node *yaml.Node) AutowireMode {
	switch node.Value {
	case "no", "":
		return AutowireNo
	case "byName":
		return AutowireByName
	case "byType":
		return AutowireByType
	case "constructor":
		return AutowireConstructor
	default:
		t.report(node, "unknown autowire mode '%s'", node.Value)
		return AutowireNo
	}
}

func (t *DefinitionReader) parseDependencyCheck(node *yaml.Node) DependencyCheck {
	switch node.Value {
	case "none", "":
		return DependencyCheckNone
	case "simple":
		return DependencyCheckSimple
	case "objects":
		return DependencyCheckObjects
	case "all":
		return DependencyCheckAll
	default:
		t.report(node, "unknown dependency check mode '%s'", node.Value)
		return DependencyCheckNone
	}
}

func (t *DefinitionReader) parseStringList(node *yaml.Node) []string {
	switch node.Kind {
	case yaml.SequenceNode:
		out := make([]string, 0, len(node.Content))
		for _, item := range node.Content {
			out = append(out, item.Value)
		}
		return out
	case yaml.ScalarNode:
		if node.Value == "" {
			return nil
		}
		return trimSplit(node.Value, ",")
	default:
		t.report(node, "expected a list or a comma separated string")
		return nil
	}
}

func (t *DefinitionReader) parseLookupMethods(node *yaml.Node, def *BeanDefinition) {
	if node.Kind != yaml.MappingNode {
		t.report(node, "'lookup-methods' must be a mapping of method name to bean name")
		return
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		method, bean := node.Content[i], node.Content[i+1]
		def.MethodOverrides = append(def.MethodOverrides, MethodOverride{
			MethodName: method.Value,
			LookupBean: bean.Value,
		})
	}
}

func (t *DefinitionReader) parseConstructorArgs(node *yaml.Node, def *BeanDefinition) {
	if node.Kind != yaml.SequenceNode {
		t.report(node, "'constructor-args' must be a sequence")
		return
	}
	for _, argNode := range node.Content {
		index := -1
		holder := &ValueHolder{}
		if argNode.Kind == yaml.MappingNode {
			for i := 0; i+1 < len(argNode.Content); i += 2 {
				key := argNode.Content[i]
				switch key.Value {
				case "index":
					fmt.Sscanf(argNode.Content[i+1].Value, "%d", &index)
				case "name":
					holder.Name = argNode.Content[i+1].Value
				case "type":
					holder.TypeName = argNode.Content[i+1].Value
				}
			}
		}
		value, ok := t.parseValue(argNode, true)
		if !ok {
			continue
		}
		holder.Value = value
		if index >= 0 {
			def.ConstructorArgs.AddIndexed(index, holder)
		} else {
			def.ConstructorArgs.AddGeneric(holder)
		}
	}
}

func (t *DefinitionReader) parseProperties(node *yaml.Node, def *BeanDefinition) {
	if node.Kind != yaml.MappingNode {
		t.report(node, "'properties' must be a mapping of property name to value")
		return
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, valueNode := node.Content[i], node.Content[i+1]
		value, ok := t.parseValue(valueNode, false)
		if !ok {
			continue
		}
		def.Properties.Add(key.Value, value)
	}
}

/**
parseValue parses a value node into a descriptor. A scalar is a typed string, a
mapping selects exactly one kind of value, value and ref together is a problem.
*/

func (t *DefinitionReader) parseValue(node *yaml.Node, insideArg bool) (interface{}, bool) {

	if node.Kind == yaml.ScalarNode {
		if node.Tag == "!!null" {
			return nil, true
		}
		return TypedString{Value: node.Value}, true
	}
	if node.Kind != yaml.MappingNode {
		t.report(node, "value must be a scalar or a mapping")
		return nil, false
	}

	var value interface{}
	var typeName, valueScalar string
	var hasValue, hasKind bool

	setKind := func(keyNode *yaml.Node, v interface{}) {
		if hasKind {
			t.report(keyNode, "only one of value, ref, parent-ref, bean, list, set, map, props is allowed")
			return
		}
		hasKind = true
		value = v
	}

	for i := 0; i+1 < len(node.Content); i += 2 {
		key, child := node.Content[i], node.Content[i+1]
		switch key.Value {

		case "value":
			if hasKind {
				t.report(key, "only one of value, ref, parent-ref, bean, list, set, map, props is allowed")
				continue
			}
			hasKind = true
			hasValue = true
			valueScalar = child.Value

		case "type", "value-type":
			typeName = child.Value

		case "ref":
			setKind(key, RuntimeRef{BeanName: child.Value})

		case "parent-ref":
			setKind(key, RuntimeRef{BeanName: child.Value, ToParent: true})

		case "bean":
			inner, ok := t.parseInnerBean(child)
			if !ok {
				continue
			}
			setKind(key, inner)

		case "list":
			managed, ok := t.parseManagedSlice(child)
			if !ok {
				continue
			}
			setKind(key, &ManagedList{Values: managed})

		case "set":
			managed, ok := t.parseManagedSlice(child)
			if !ok {
				continue
			}
			setKind(key, &ManagedSet{Values: managed})

		case "map":
			managed, ok := t.parseManagedMap(child)
			if !ok {
				continue
			}
			setKind(key, managed)

		case "props":
			managed, ok := t.parseManagedProps(child)
			if !ok {
				continue
			}
			setKind(key, managed)

		case "merge":
			// applied below once the kind is known

		case "index", "name":
			if !insideArg {
				t.report(key, "unknown value attribute '%s'", key.Value)
			}

		default:
			t.report(key, "unknown value attribute '%s'", key.Value)
		}
	}

	if !hasKind {
		t.report(node, "value mapping requires one of value, ref, parent-ref, bean, list, set, map, props")
		return nil, false
	}

	if hasValue {
		value = TypedString{Value: valueScalar, TypeName: typeName}
	}

	t.applyValueFlags(node, value, typeName)
	return value, true
}

func (t *DefinitionReader) applyValueFlags(node *yaml.Node, value interface{}, typeName string) {
	merge := false
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == "merge" {
			merge = t.parseBoolAttr(node.Content[i+1])
		}
	}
	switch v := value.(type) {
	case *ManagedList:
		v.MergeEnabled = merge
		v.ElemTypeName = typeName
	case *ManagedSet:
		v.MergeEnabled = merge
		v.ElemTypeName = typeName
	case *ManagedMap:
		v.MergeEnabled = merge
		v.ValueTypeName = typeName
	case *ManagedProps:
		v.MergeEnabled = merge
	}
}

func (t *DefinitionReader) parseInnerBean(node *yaml.Node) (InnerBean, bool) {
	if node.Kind != yaml.MappingNode {
		t.report(node, "'bean' must be a mapping")
		return InnerBean{}, false
	}

	def := NewBeanDefinition("")
	var name string
	before := len(t.problems)

	for i := 0; i+1 < len(node.Content); i += 2 {
		key, value := node.Content[i], node.Content[i+1]
		switch key.Value {
		case "name":
			name = value.Value
		case "type":
			def.TypeName = value.Value
		case "parent":
			def.Parent = value.Value
		case "scope":
			def.Scope = value.Value
		case "autowire":
			def.Autowire = t.parseAutowire(value)
		case "init-method":
			def.InitMethodName = value.Value
		case "destroy-method":
			def.DestroyMethodName = value.Value
		case "factory-bean":
			def.FactoryBeanName = value.Value
		case "factory-method":
			def.FactoryMethodName = value.Value
		case "constructor-args":
			t.parseConstructorArgs(value, def)
		case "properties":
			t.parseProperties(value, def)
		default:
			t.report(key, "unknown inner bean attribute '%s'", key.Value)
		}
	}

	if def.TypeName == "" && def.Parent == "" && def.FactoryMethodName == "" {
		t.report(node, "inner bean requires one of type, parent or factory-method")
	}
	if len(t.problems) > before {
		return InnerBean{}, false
	}
	return InnerBean{BeanName: name, Definition: def}, true
}

func (t *DefinitionReader) parseManagedSlice(node *yaml.Node) ([]interface{}, bool) {
	if node.Kind != yaml.SequenceNode {
		t.report(node, "collection value must be a sequence")
		return nil, false
	}
	out := make([]interface{}, 0, len(node.Content))
	for _, item := range node.Content {
		value, ok := t.parseValue(item, false)
		if !ok {
			return nil, false
		}
		out = append(out, value)
	}
	return out, true
}

func (t *DefinitionReader) parseManagedMap(node *yaml.Node) (*ManagedMap, bool) {
	if node.Kind != yaml.MappingNode {
		t.report(node, "'map' value must be a mapping")
		return nil, false
	}
	mm := &ManagedMap{}
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, valueNode := node.Content[i], node.Content[i+1]
		value, ok := t.parseValue(valueNode, false)
		if !ok {
			return nil, false
		}
		mm.Entries = append(mm.Entries, ManagedEntry{Key: TypedString{Value: key.Value}, Value: value})
	}
	return mm, true
}

func (t *DefinitionReader) parseManagedProps(node *yaml.Node) (*ManagedProps, bool) {
	if node.Kind != yaml.MappingNode {
		t.report(node, "'props' value must be a mapping")
		return nil, false
	}
	mp := &ManagedProps{}
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, value := node.Content[i], node.Content[i+1]
		mp.Entries = append(mp.Entries, ManagedEntry{Key: key.Value, Value: value.Value})
	}
	return mp, true
}
