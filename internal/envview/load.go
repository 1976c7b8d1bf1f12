package envview

import (
	"fmt"
	"os"
	"sort"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Load reads an environment dump. JSON dumps are accepted as well since
// JSON is a subset of YAML.
//
// Mapping:
//   - strings, numbers and booleans become literals
//   - arrays become lists
//   - an object with a "call" key becomes a callable reference; its optional
//     "args" list is kept and its optional "result" is registered as the
//     callable's output
//   - any other object is flattened into dotted keys ("ENV": {"PATH": ..}
//     becomes "ENV.PATH")
func Load(path string) (*MapView, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read environment dump: %w", err)
	}
	view, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse environment dump %s: %w", path, err)
	}
	return view, nil
}

// Parse builds a view from dump contents.
func Parse(data []byte) (*MapView, error) {
	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	view := NewMapView(nil)
	if err := view.merge("", raw); err != nil {
		return nil, err
	}
	return view, nil
}

func (m *MapView) merge(prefix string, raw map[string]interface{}) error {
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		node := raw[k]
		if obj, ok := node.(map[string]interface{}); ok {
			if _, isCall := obj["call"]; !isCall {
				if err := m.merge(key, obj); err != nil {
					return err
				}
				continue
			}
		}
		val, err := m.convert(key, node)
		if err != nil {
			return err
		}
		m.values[key] = val
	}
	return nil
}

func (m *MapView) convert(key string, node interface{}) (Value, error) {
	switch n := node.(type) {
	case nil:
		return Literal(""), nil
	case string:
		return Literal(n), nil
	case bool:
		return Literal(strconv.FormatBool(n)), nil
	case int:
		return Literal(strconv.Itoa(n)), nil
	case int64:
		return Literal(strconv.FormatInt(n, 10)), nil
	case uint64:
		return Literal(strconv.FormatUint(n, 10)), nil
	case float64:
		return Literal(strconv.FormatFloat(n, 'f', -1, 64)), nil
	case []interface{}:
		items := make([]Value, 0, len(n))
		for i, item := range n {
			v, err := m.convert(fmt.Sprintf("%s[%d]", key, i), item)
			if err != nil {
				return Value{}, err
			}
			items = append(items, v)
		}
		return List(items...), nil
	case map[string]interface{}:
		return m.convertCall(key, n)
	default:
		return Value{}, fmt.Errorf("key %s: unsupported value type %T", key, node)
	}
}

func (m *MapView) convertCall(key string, obj map[string]interface{}) (Value, error) {
	name, ok := obj["call"].(string)
	if !ok || name == "" {
		return Value{}, fmt.Errorf("key %s: \"call\" must be a non-empty string", key)
	}
	var args []string
	if rawArgs, ok := obj["args"].([]interface{}); ok {
		for _, a := range rawArgs {
			args = append(args, fmt.Sprint(a))
		}
	}
	if result, ok := obj["result"]; ok {
		out := fmt.Sprint(result)
		m.callables[name] = func(View) (string, error) { return out, nil }
	}
	return Callable(name, args...), nil
}
