package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"forumbump/internal/components/telemetry"

	"github.com/titanous/json5"
)

const (
	report_validate_default = "validate.default"
)

type numericField struct {
	name     string
	fallback float64
}

var requiredNumeric = []numericField{
	{name: "post_delay", fallback: DefaultPostDelay},
	{name: "bump_delay", fallback: DefaultBumpDelay},
}

// Validate turns a loosely typed configuration into a Configuration.
//
// `raw` may be a map[string]any, a Configuration, or serialized text
// (string / []byte, json or json5). Maps may hold any json encodable
// values (typed slices, sized ints). Missing or falsy numeric fields are
// replaced by their documented default and reported as a warning to `tel`.
// The input is never mutated.
func Validate(tel telemetry.API, raw any) (Configuration, error) {
	var data map[string]any
	switch v := raw.(type) {
	case Configuration:
		return checked(v)
	case *Configuration:
		if v == nil {
			return Configuration{}, invalidConfig("Configuration is not valid")
		}
		return checked(*v)
	case map[string]any:
		normalized, err := normalize(v)
		if err != nil {
			return Configuration{}, err
		}
		data = normalized
	case string:
		parsed, err := parse([]byte(v))
		if err != nil {
			return Configuration{}, err
		}
		data = parsed
	case []byte:
		parsed, err := parse(v)
		if err != nil {
			return Configuration{}, err
		}
		data = parsed
	default:
		return Configuration{}, invalidConfig(fmt.Sprintf("Configuration is not valid (%T)", raw))
	}

	return fromMap(tel, data)
}

func checked(cfg Configuration) (Configuration, error) {
	err := cfg.Check()
	if err != nil {
		return Configuration{}, err
	}
	return cfg.Clone(), nil
}

func parse(text []byte) (map[string]any, error) {
	var data map[string]any
	err := json5.Unmarshal(text, &data)
	if err != nil {
		return nil, &ConfigError{
			Kind:    ErrInvalidConfig,
			Message: fmt.Sprintf("Configuration is not valid: %s", err.Error()),
		}
	}
	return data, nil
}

// normalize re-encodes a structured configuration so it holds the same
// value shapes as a decoded file: []any, map[string]any and json.Number.
func normalize(data map[string]any) (map[string]any, error) {
	encoded, err := json.Marshal(data)
	if err != nil {
		return nil, &ConfigError{
			Kind:    ErrInvalidConfig,
			Message: fmt.Sprintf("Configuration is not valid: %s", err.Error()),
		}
	}
	decoder := json.NewDecoder(bytes.NewReader(encoded))
	decoder.UseNumber()
	var out map[string]any
	err = decoder.Decode(&out)
	if err != nil {
		return nil, &ConfigError{
			Kind:    ErrInvalidConfig,
			Message: fmt.Sprintf("Configuration is not valid: %s", err.Error()),
		}
	}
	return out, nil
}

func fromMap(tel telemetry.API, data map[string]any) (Configuration, error) {
	var cfg Configuration

	numbers := make(map[string]float64, len(requiredNumeric))
	for _, field := range requiredNumeric {
		value := data[field.name]
		if isFalsy(value) {
			tel.ReportWarning(
				report_validate_default,
				fmt.Sprintf("Missing '%s' in the config file, using default of '%g' instead", field.name, field.fallback),
			)
			numbers[field.name] = field.fallback
			continue
		}
		n, ok := toFloat(value)
		if !ok || math.IsInf(n, 0) || math.IsNaN(n) {
			return Configuration{}, invalidType(field.name)
		}
		if n < 0 {
			return Configuration{}, outOfRange(field.name)
		}
		numbers[field.name] = n
	}
	cfg.PostDelay = numbers["post_delay"]
	cfg.BumpDelay = numbers["bump_delay"]

	var err error
	cfg.DefaultMessage, err = optionalString(data, "default_message", "default_message")
	if err != nil {
		return Configuration{}, err
	}
	cfg.Host, err = optionalString(data, "host", "host")
	if err != nil {
		return Configuration{}, err
	}
	if port := data["port"]; !isFalsy(port) {
		n, ok := toFloat(port)
		if !ok || n != math.Trunc(n) {
			return Configuration{}, invalidType("port")
		}
		if n < 1 || n > 65535 {
			return Configuration{}, outOfRange("port")
		}
		cfg.Port = int(n)
	}

	cfg.Threads, err = threadsFromValue(data["threads"])
	if err != nil {
		return Configuration{}, err
	}

	if captcha := data["captcha"]; !isFalsy(captcha) {
		cfg.Captcha, err = captchaFromValue(captcha)
		if err != nil {
			return Configuration{}, err
		}
	}

	return cfg, nil
}

func threadsFromValue(value any) ([]Thread, error) {
	if isFalsy(value) {
		return nil, missingData("No threads provided")
	}
	list, ok := value.([]any)
	if !ok {
		return nil, invalidType("threads")
	}

	threads := make([]Thread, len(list))
	for i, item := range list {
		index := i + 1
		entry, ok := item.(map[string]any)
		if !ok {
			return nil, missingThreadData(index)
		}

		id, ok := idString(entry["id"])
		if !ok {
			return nil, missingThreadData(index)
		}
		threads[i].Id = id

		message, err := optionalString(entry, "message", fmt.Sprintf("threads[%d].message", i))
		if err != nil {
			return nil, err
		}
		name, err := optionalString(entry, "name", fmt.Sprintf("threads[%d].name", i))
		if err != nil {
			return nil, err
		}
		threads[i].Message = message
		threads[i].Name = name
	}
	return threads, nil
}

func captchaFromValue(value any) (*Captcha, error) {
	entry, ok := value.(map[string]any)
	if !ok {
		return nil, invalidType("captcha")
	}

	var captcha Captcha
	var err error
	captcha.Provider, err = optionalString(entry, "provider", "captcha.provider")
	if err != nil {
		return nil, err
	}
	captcha.Username, err = optionalString(entry, "username", "captcha.username")
	if err != nil {
		return nil, err
	}
	captcha.Password, err = optionalString(entry, "password", "captcha.password")
	if err != nil {
		return nil, err
	}
	captcha.ApiKey, err = optionalString(entry, "api_key", "captcha.api_key")
	if err != nil {
		return nil, err
	}

	err = captcha.check()
	if err != nil {
		return nil, err
	}
	return &captcha, nil
}

// idString accepts a thread id given as text or as a whole number.
func idString(value any) (string, bool) {
	switch v := value.(type) {
	case string:
		v = strings.TrimSpace(v)
		return v, v != ""
	case float64:
		if v <= 0 || v != math.Trunc(v) || math.IsInf(v, 0) {
			return "", false
		}
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case int:
		return strconv.Itoa(v), v > 0
	case int64:
		return strconv.FormatInt(v, 10), v > 0
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return v.String(), n > 0
		}
		f, err := v.Float64()
		if err != nil {
			return "", false
		}
		return idString(f)
	}
	return "", false
}

func optionalString(data map[string]any, key, field string) (string, error) {
	value, ok := data[key]
	if !ok || value == nil {
		return "", nil
	}
	s, ok := value.(string)
	if !ok {
		return "", invalidType(field)
	}
	return s, nil
}

func isFalsy(value any) bool {
	switch v := value.(type) {
	case nil:
		return true
	case bool:
		return !v
	case string:
		return v == ""
	case float64:
		return v == 0
	case int:
		return v == 0
	case int64:
		return v == 0
	case json.Number:
		f, err := v.Float64()
		return err == nil && f == 0
	case []any:
		return len(v) == 0
	case map[string]any:
		return len(v) == 0
	}
	return false
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	}
	return 0, false
}
