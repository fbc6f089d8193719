// Package envelope нормализует неоднородные обёртки ответов REST-бэкенда.
//
// Бэкенд возвращает списки в разной вложенности: {"data":{"items":[...]}},
// {"items":[...]}, {"data":[...]} или просто [...]. Функции пакета перебирают
// варианты в фиксированном порядке приоритета и не зависят от сетевого слоя.
package envelope

import (
	"bytes"
	"encoding/json"
	"fmt"
)

const dataKey = "data"

// Object возвращает полезную нагрузку объекта: data.data, если он есть, иначе всё тело.
func Object(body []byte) (json.RawMessage, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, fmt.Errorf("empty response body")
	}

	obj, ok := asObject(body)
	if !ok {
		if !json.Valid(body) {
			return nil, fmt.Errorf("invalid json response")
		}
		return json.RawMessage(body), nil
	}

	if inner, ok := obj[dataKey]; ok && !isNull(inner) {
		return inner, nil
	}

	return json.RawMessage(body), nil
}

// Decode раскрывает обёртку объекта и декодирует её в v.
func Decode(body []byte, v any) error {
	payload, err := Object(body)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	return nil
}

// List возвращает элементы списка, перебирая варианты в порядке приоритета:
// data.data.<key>, data.<key> для каждого ключа, затем data.data как массив,
// затем всё тело как массив. Если ни один вариант не подошёл, возвращается пустой список.
func List(body []byte, keys ...string) ([]json.RawMessage, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return []json.RawMessage{}, nil
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("invalid json response")
	}

	if arr, ok := asArray(body); ok {
		return arr, nil
	}

	root, _ := asObject(body)

	var nested map[string]json.RawMessage
	if inner, ok := root[dataKey]; ok {
		nested, _ = asObject(inner)
	}

	for _, candidate := range []map[string]json.RawMessage{nested, root} {
		if candidate == nil {
			continue
		}
		for _, key := range keys {
			if arr, ok := asArray(candidate[key]); ok {
				return arr, nil
			}
		}
	}

	if arr, ok := asArray(root[dataKey]); ok {
		return arr, nil
	}

	return []json.RawMessage{}, nil
}

// DecodeList декодирует элементы списка, найденного через List.
func DecodeList[T any](body []byte, keys ...string) ([]T, error) {
	raw, err := List(body, keys...)
	if err != nil {
		return nil, err
	}

	res := make([]T, 0, len(raw))
	for i, item := range raw {
		var v T
		if err := json.Unmarshal(item, &v); err != nil {
			return nil, fmt.Errorf("decode list item %d: %w", i, err)
		}
		res = append(res, v)
	}
	return res, nil
}

// Field возвращает значение поля верхнего уровня или nil.
func Field(payload json.RawMessage, key string) json.RawMessage {
	obj, ok := asObject(payload)
	if !ok {
		return nil
	}
	v, ok := obj[key]
	if !ok || isNull(v) {
		return nil
	}
	return v
}

func asObject(raw json.RawMessage) (map[string]json.RawMessage, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return nil, false
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, false
	}
	return obj, true
}

func asArray(raw json.RawMessage) ([]json.RawMessage, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '[' {
		return nil, false
	}
	var arr []json.RawMessage
	if err := json.Unmarshal(raw, &arr); err != nil {
		return nil, false
	}
	return arr, true
}

func isNull(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) == 0 || bytes.Equal(raw, []byte("null"))
}
