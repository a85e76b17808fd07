package models

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"sync"
)

// engineResultFieldMap caches JSON tag -> struct field index mappings
var (
	engineResultFieldMap     map[string]int
	engineResultFieldMapOnce sync.Once
)

func getEngineResultFieldMap() map[string]int {
	engineResultFieldMapOnce.Do(func() {
		t := reflect.TypeOf(EngineResult{})
		engineResultFieldMap = make(map[string]int, t.NumField())
		for i := 0; i < t.NumField(); i++ {
			tag := t.Field(i).Tag.Get("json")
			if tag == "" || tag == "-" {
				continue
			}
			name := strings.Split(tag, ",")[0]
			engineResultFieldMap[name] = i
		}
	})
	return engineResultFieldMap
}

// UnmarshalJSON accepts both native and string-encoded values. Language
// models regularly answer with "confidence": "0.8" or "80%"; those are
// coerced to the declared Go types.
func (r *EngineResult) UnmarshalJSON(data []byte) error {
	// Alias prevents infinite recursion
	type Alias EngineResult
	a := (*Alias)(r)

	// Fast path: every value already has its native type
	if err := json.Unmarshal(data, a); err == nil {
		return nil
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("flex unmarshal: %w", err)
	}

	fieldMap := getEngineResultFieldMap()
	v := reflect.ValueOf(a).Elem()

	for key, rawVal := range raw {
		idx, ok := fieldMap[strings.ToLower(key)]
		if !ok {
			continue
		}

		fv := v.Field(idx)
		if !fv.CanSet() {
			continue
		}

		ptr := reflect.New(fv.Type())
		if err := json.Unmarshal(rawVal, ptr.Interface()); err == nil {
			fv.Set(ptr.Elem())
			continue
		}

		if len(rawVal) > 1 && rawVal[0] == '"' {
			var s string
			if err := json.Unmarshal(rawVal, &s); err != nil {
				continue
			}
			s = strings.TrimSpace(s)
			if s == "" {
				continue
			}
			if err := coerceStringToField(fv, s); err != nil {
				return fmt.Errorf("flex unmarshal %s: %w", key, err)
			}
		}
	}

	return nil
}

// coerceStringToField converts a string value to the field's native type.
// A trailing percent sign scales the number into [0,1].
func coerceStringToField(fv reflect.Value, s string) error {
	switch fv.Kind() {
	case reflect.Float32, reflect.Float64:
		scale := 1.0
		if strings.HasSuffix(s, "%") {
			s = strings.TrimSpace(strings.TrimSuffix(s, "%"))
			scale = 0.01
		}
		n, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return err
		}
		fv.SetFloat(n * scale)
	case reflect.String:
		fv.SetString(s)
	}
	return nil
}
