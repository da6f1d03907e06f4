package dispatch

import (
	"reflect"
	"strings"
)

// keyTag is the struct tag naming the key of a field, "readonly" may follow
// the name: `dispatch:"title,readonly"`.
const keyTag = "dispatch"

func kvcTarget(target any) any {
	if proxy, ok := target.(*Proxy); ok {
		return proxy.Target()
	}
	if resolved, err := resolveTarget(target); err == nil {
		return resolved
	}
	return nil
}

func exportedName(key string) string {
	return string(Selector(key).exported())
}

// ValueForKey returns the value of key on target, raising UnknownKeyFault
// when target has no such key. Getter methods (Key, GetKey) come first, then
// struct fields by tag and by name, then map entries.
func (e *engine) ValueForKey(target any, key string) any {
	target = kvcTarget(target)
	if target == nil {
		Raise(InvalidArgumentFault, "value for key %s requested from nil", key)
	}

	rv := reflect.ValueOf(target)
	name := exportedName(key)
	for _, getter := range []string{name, "Get" + name} {
		fn := rv.MethodByName(getter)
		if !fn.IsValid() || fn.Type().NumIn() != 0 || fn.Type().NumOut() == 0 || fn.Type().NumOut() > 2 {
			continue
		}
		out := fn.Call(nil)
		if len(out) == 2 {
			if out[1].Type() != errorType {
				continue
			}
			if !out[1].IsNil() {
				panic(out[1].Interface())
			}
		}
		return out[0].Interface()
	}

	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			Raise(InvalidArgumentFault, "value for key %s requested from nil %s", key, rv.Type())
		}
		rv = rv.Elem()
	}

	switch rv.Kind() {
	case reflect.Struct:
		if field, _, ok := fieldForKey(rv, key); ok {
			return field.Interface()
		}
	case reflect.Map:
		if rv.Type().Key().Kind() == reflect.String {
			value := rv.MapIndex(reflect.ValueOf(key).Convert(rv.Type().Key()))
			if !value.IsValid() {
				return nil
			}
			return value.Interface()
		}
	}

	Raise(UnknownKeyFault, "%T is not key value coding compliant for key %s", target, key)
	return nil
}

// SetValueForKey sets key on target to value. It raises ReadOnlyKeyFault for
// keys that can only be read and UnknownKeyFault for unknown keys.
func (e *engine) SetValueForKey(target any, key string, value any) {
	target = kvcTarget(target)
	if target == nil {
		Raise(InvalidArgumentFault, "value for key %s set on nil", key)
	}

	rv := reflect.ValueOf(target)
	name := exportedName(key)
	if fn := rv.MethodByName("Set" + name); fn.IsValid() && fn.Type().NumIn() == 1 {
		arg, err := valueFor(fn.Type().In(0), value)
		if err != nil {
			Raise(InvalidArgumentFault, "can not set key %s of %T: %s", key, target, err)
		}
		out := fn.Call([]reflect.Value{arg})
		if len(out) > 0 && out[len(out)-1].Type() == errorType && !out[len(out)-1].IsNil() {
			panic(out[len(out)-1].Interface())
		}
		return
	}

	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			Raise(InvalidArgumentFault, "value for key %s set on nil %s", key, rv.Type())
		}
		rv = rv.Elem()
	}

	switch rv.Kind() {
	case reflect.Struct:
		field, readOnly, ok := fieldForKey(rv, key)
		if !ok {
			break
		}
		if readOnly || !field.CanSet() {
			Raise(ReadOnlyKeyFault, "key %s of %T is read only", key, target)
		}
		if err := assignField(field, value); err != nil {
			Raise(InvalidArgumentFault, "can not set key %s of %T: %s", key, target, err)
		}
		return
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			break
		}
		mapKey := reflect.ValueOf(key).Convert(rv.Type().Key())
		if value == nil {
			rv.SetMapIndex(mapKey, reflect.Value{})
			return
		}
		elem, err := valueFor(rv.Type().Elem(), value)
		if err != nil {
			Raise(InvalidArgumentFault, "can not set key %s of %T: %s", key, target, err)
		}
		rv.SetMapIndex(mapKey, elem)
		return
	}

	if fn := reflect.ValueOf(target).MethodByName(name); fn.IsValid() {
		Raise(ReadOnlyKeyFault, "key %s of %T is read only", key, target)
	}
	Raise(UnknownKeyFault, "%T is not key value coding compliant for key %s", target, key)
}

func assignField(field reflect.Value, value any) error {
	if value == nil {
		field.Set(reflect.Zero(field.Type()))
		return nil
	}
	converted, err := valueFor(field.Type(), value)
	if err != nil {
		return err
	}
	field.Set(converted)
	return nil
}

// fieldForKey finds the exported field for key: by tag, by name, then by
// upper-cased name.
func fieldForKey(rv reflect.Value, key string) (reflect.Value, bool, bool) {
	t := rv.Type()
	byName, byNameReadOnly := -1, false
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		tagName, options, _ := strings.Cut(field.Tag.Get(keyTag), ",")
		readOnly := options == "readonly"
		if tagName != "" {
			if tagName == key {
				return rv.Field(i), readOnly, true
			}
			continue
		}
		if byName < 0 && (field.Name == key || field.Name == exportedName(key)) {
			byName, byNameReadOnly = i, readOnly
		}
	}
	if byName < 0 {
		return reflect.Value{}, false, false
	}
	return rv.Field(byName), byNameReadOnly, true
}

// ValueForKeyPath follows a dotted path of keys. A nil value part way
// returns nil.
func (e *engine) ValueForKeyPath(target any, path string) any {
	current := target
	for _, key := range strings.Split(path, ".") {
		if isNilValue(current) {
			return nil
		}
		current = e.ValueForKey(current, key)
	}
	return current
}

// SetValueForKeyPath sets the last key of path on the object found by
// following the keys before it.
func (e *engine) SetValueForKeyPath(target any, path string, value any) {
	parent, key := "", path
	if i := strings.LastIndexByte(path, '.'); i >= 0 {
		parent, key = path[:i], path[i+1:]
	}
	holder := target
	if parent != "" {
		holder = e.ValueForKeyPath(target, parent)
		if isNilValue(holder) {
			Raise(InvalidArgumentFault, "key path %s of %T ends in nil", parent, target)
		}
	}
	e.SetValueForKey(holder, key, value)
}

// isNilValue reports whether v is nil or a nil pointer, map or interface.
func isNilValue(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Interface, reflect.Slice, reflect.Func:
		return rv.IsNil()
	}
	return false
}

// SafeValueForKey is ValueForKey returning nil instead of raising.
func (e *engine) SafeValueForKey(target any, key string) (value any) {
	err := RunProtected(func() {
		value = e.ValueForKey(target, key)
	})
	if err != nil {
		e.logger.V(1).Info("absorbed fault", "key", key, "fault", err.Error())
		return nil
	}
	return value
}

// SafeSetValueForKey is SetValueForKey returning false instead of raising.
func (e *engine) SafeSetValueForKey(target any, key string, value any) bool {
	err := RunProtected(func() {
		e.SetValueForKey(target, key, value)
	})
	if err != nil {
		e.logger.V(1).Info("absorbed fault", "key", key, "fault", err.Error())
		return false
	}
	return true
}

func (e *engine) SafeValueForKeyPath(target any, path string) (value any) {
	err := RunProtected(func() {
		value = e.ValueForKeyPath(target, path)
	})
	if err != nil {
		e.logger.V(1).Info("absorbed fault", "keyPath", path, "fault", err.Error())
		return nil
	}
	return value
}

func (e *engine) SafeSetValueForKeyPath(target any, path string, value any) bool {
	err := RunProtected(func() {
		e.SetValueForKeyPath(target, path, value)
	})
	if err != nil {
		e.logger.V(1).Info("absorbed fault", "keyPath", path, "fault", err.Error())
		return false
	}
	return true
}
