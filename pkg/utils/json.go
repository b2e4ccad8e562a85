package utils

import (
	"errors"

	jsoniter "github.com/json-iterator/go"
)

// JSONKind names the top-level JSON value category of data, for quick
// inspection of payloads whose schema is not known up front.
func JSONKind(data []byte) (string, error) {
	if !jsoniter.Valid(data) {
		return "", errors.New("utils: not valid JSON")
	}
	switch jsoniter.Get(data).ValueType() {
	case jsoniter.ObjectValue:
		return "object", nil
	case jsoniter.ArrayValue:
		return "array", nil
	case jsoniter.StringValue:
		return "string", nil
	case jsoniter.NumberValue:
		return "number", nil
	case jsoniter.BoolValue:
		return "boolean", nil
	case jsoniter.NilValue:
		return "null", nil
	default:
		return "", errors.New("utils: not valid JSON")
	}
}
