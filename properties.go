/*
 * Copyright (c) 2023 Zander Schwid & Co. LLC.
 * SPDX-License-Identifier: BUSL-1.1
 */

package sprout

import (
	"fmt"
	"io"
	"io/ioutil"
	"sort"
	"sync"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Properties contains the key/value pairs from the properties input.
type properties struct {
	sync.RWMutex

	priority int

	store map[string]string

	resolvers []PropertyResolver
}

func NewProperties() Properties {
	t := &properties{
		priority:  defaultPropertyResolverPriority,
		store:     make(map[string]string),
		resolvers: make([]PropertyResolver, 0, 10),
	}
	t.Register(t)
	return t
}

func (t *properties) String() string {
	t.RLock()
	defer t.RUnlock()
	return fmt.Sprintf("Properties{priority=%d,store=%d,resolvers=%d}", t.priority, len(t.store), len(t.resolvers))
}

func (t *properties) Register(resolver PropertyResolver) {
	t.Lock()
	defer t.Unlock()
	t.resolvers = append(t.resolvers, resolver)
	if len(t.resolvers) > 1 {
		sort.SliceStable(t.resolvers, func(i, j int) bool {
			return t.resolvers[i].Priority() >= t.resolvers[j].Priority()
		})
	}
}

func (t *properties) PropertyResolvers() []PropertyResolver {
	t.RLock()
	defer t.RUnlock()
	buf := make([]PropertyResolver, len(t.resolvers))
	copy(buf, t.resolvers)
	return buf
}

func (t *properties) Priority() int {
	return t.priority
}

func (t *properties) LoadMap(source map[string]interface{}) {
	t.Lock()
	defer t.Unlock()
	t.loadMapRec(make([]byte, 0, 100), source)
}

func (t *properties) loadMapRec(stack []byte, m map[string]interface{}) {
	for k, v := range m {
		n := len(stack)
		if n > 0 {
			stack = append(stack, '.')
		}
		stack = append(stack, []byte(k)...)
		if next, ok := v.(map[string]interface{}); ok {
			t.loadMapRec(stack, next)
		} else {
			t.store[string(stack)] = fmt.Sprint(v)
		}
		stack = stack[:n]
	}
}

func (t *properties) Load(reader io.Reader) error {
	content, err := ioutil.ReadAll(reader)
	if err != nil {
		return err
	}
	return t.Parse(string(content))
}

func (t *properties) Parse(content string) error {
	var key string
	var inside bool

	t.Lock()
	defer t.Unlock()

	for _, item := range lex(content) {
		switch item.typ {
		case itemEOF:
			if inside {
				t.store[key] = ""
			}
			break
		case itemKey:
			if inside {
				return errors.Errorf("key is not expected inside the property on key '%s'", key)
			}
			key = item.val
			inside = true
		case itemValue:
			if !inside {
				return errors.Errorf("value is not expected outside of the property after key '%s'", key)
			}
			t.store[key] = item.val
			inside = false
		case itemError:
			if inside {
				return errors.Errorf("property parsing error on key '%s', %s", key, item.val)
			} else {
				return errors.Errorf("property parsing error after key '%s', %s", key, item.val)
			}
		}
	}
	return nil
}

func (t *properties) Len() int {
	t.RLock()
	defer t.RUnlock()
	return len(t.store)
}

func (t *properties) Keys() []string {
	t.RLock()
	defer t.RUnlock()
	keys := make([]string, 0, len(t.store))
	for k := range t.store {
		keys = append(keys, k)
	}
	return keys
}

func (t *properties) Map() map[string]string {
	t.RLock()
	defer t.RUnlock()
	m := make(map[string]string)
	for k, v := range t.store {
		m[k] = v
	}
	return m
}

func (t *properties) Contains(key string) bool {
	t.RLock()
	defer t.RUnlock()
	_, ok := t.store[key]
	return ok
}

func (t *properties) GetProperty(key string) (value string, ok bool) {
	t.RLock()
	defer t.RUnlock()
	value, ok = t.store[key]
	return
}

func (t *properties) nextPropertyResolver(i int) (PropertyResolver, bool) {
	t.RLock()
	defer t.RUnlock()
	if i < 0 || i >= len(t.resolvers) {
		return nil, false
	}
	return t.resolvers[i], true
}

func (t *properties) Get(key string) (value string, ok bool) {
	for i := 0; ; i++ {
		r, ok := t.nextPropertyResolver(i)
		if !ok {
			break
		}
		if value, ok := r.GetProperty(key); ok {
			return value, true
		}
	}
	return "", false
}

func (t *properties) GetString(key, def string) string {
	if value, ok := t.Get(key); ok {
		return value
	} else {
		return def
	}
}

func (t *properties) Set(key string, value string) {
	t.Lock()
	defer t.Unlock()
	t.store[key] = value
}

func (t *properties) Remove(key string) bool {
	t.Lock()
	defer t.Unlock()
	_, ok := t.store[key]
	if !ok {
		return false
	}
	delete(t.store, key)
	return true
}

/**
LoadYamlProperties flattens a YAML document into dot separated property keys.
*/

func LoadYamlProperties(reader io.Reader, props Properties) error {
	content, err := ioutil.ReadAll(reader)
	if err != nil {
		return err
	}
	source := make(map[string]interface{})
	if err := yaml.Unmarshal(content, &source); err != nil {
		return errors.Errorf("yaml properties parse error, %v", err)
	}
	props.LoadMap(normalizeYamlMap(source))
	return nil
}

func normalizeYamlMap(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		if next, ok := v.(map[string]interface{}); ok {
			out[k] = normalizeYamlMap(next)
		} else {
			out[k] = v
		}
	}
	return out
}

/**
LoadDotEnv merges key/value pairs from dotenv files into the properties.
*/

func LoadDotEnv(props Properties, filenames ...string) error {
	env, err := godotenv.Read(filenames...)
	if err != nil {
		return errors.Errorf("dotenv read error, %v", err)
	}
	for k, v := range env {
		props.Set(k, v)
	}
	return nil
}
