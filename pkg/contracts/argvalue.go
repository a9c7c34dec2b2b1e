package contracts

import "encoding/json"

// MarshalJSON renders an ArgValue as the plain JSON value it represents
// (not as the Go struct's fields).
func (v ArgValue) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case ArgString:
		return json.Marshal(v.Str)
	case ArgNumber:
		return json.Marshal(v.Num)
	case ArgBool:
		return json.Marshal(v.Bool)
	case ArgList:
		return json.Marshal(v.List)
	case ArgObject:
		return json.Marshal(v.Object)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON parses a plain JSON value into its tagged-variant form.
func (v *ArgValue) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*v = fromAny(raw)
	return nil
}

// FromAny converts a plain Go value (as produced by encoding/json or a
// vendor SDK's untyped map) into the tagged-variant form.
func FromAny(raw any) ArgValue {
	return fromAny(raw)
}

func fromAny(raw any) ArgValue {
	switch t := raw.(type) {
	case nil:
		return ArgValue{Kind: ArgNull}
	case string:
		return ArgValue{Kind: ArgString, Str: t}
	case float64:
		return ArgValue{Kind: ArgNumber, Num: t}
	case bool:
		return ArgValue{Kind: ArgBool, Bool: t}
	case []any:
		list := make([]ArgValue, len(t))
		for i, e := range t {
			list[i] = fromAny(e)
		}
		return ArgValue{Kind: ArgList, List: list}
	case map[string]any:
		obj := make(map[string]ArgValue, len(t))
		for k, e := range t {
			obj[k] = fromAny(e)
		}
		return ArgValue{Kind: ArgObject, Object: obj}
	default:
		return ArgValue{Kind: ArgNull}
	}
}

// ArgsFromJSON decodes a raw JSON object (e.g. a model's tool_call
// arguments payload) into the open argument map.
func ArgsFromJSON(data []byte) (map[string]ArgValue, error) {
	if len(data) == 0 {
		return map[string]ArgValue{}, nil
	}
	var m map[string]ArgValue
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// ArgsToJSON encodes an argument map back to raw JSON, for vendors whose
// wire format wants a JSON string of arguments.
func ArgsToJSON(args map[string]ArgValue) ([]byte, error) {
	if args == nil {
		args = map[string]ArgValue{}
	}
	return json.Marshal(args)
}

// ToAny converts an ArgValue into a plain Go value (string, float64, bool,
// nil, []any, or map[string]any), convenient for vendors whose SDKs want
// untyped JSON values rather than encoded bytes.
func (v ArgValue) ToAny() any {
	switch v.Kind {
	case ArgString:
		return v.Str
	case ArgNumber:
		return v.Num
	case ArgBool:
		return v.Bool
	case ArgList:
		out := make([]any, len(v.List))
		for i, e := range v.List {
			out[i] = e.ToAny()
		}
		return out
	case ArgObject:
		out := make(map[string]any, len(v.Object))
		for k, e := range v.Object {
			out[k] = e.ToAny()
		}
		return out
	default:
		return nil
	}
}
