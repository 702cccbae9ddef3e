package config

import (
	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"
)

// AttributeMap is the model specific part of a component config, as decoded from JSON.
type AttributeMap map[string]interface{}

// Has returns whether the key is present.
func (am AttributeMap) Has(name string) bool {
	_, has := am[name]
	return has
}

// String returns the string value at key, or the empty string.
func (am AttributeMap) String(name string) string {
	if s, ok := am[name].(string); ok {
		return s
	}
	return ""
}

// Validator is implemented by model configs that can check themselves.
type Validator interface {
	Validate(path string) error
}

// TransformAttributeMapToStruct decodes the attributes into `to`, honoring `json` struct tags.
// Unknown attributes are an error so that typos in a config do not go unnoticed.
func TransformAttributeMapToStruct[T any](to T, attributes AttributeMap) (T, error) {
	var md mapstructure.Metadata
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		Result:           to,
		Metadata:         &md,
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
	})
	if err != nil {
		return to, err
	}
	if err := decoder.Decode(map[string]interface{}(attributes)); err != nil {
		return to, err
	}
	if len(md.Unused) != 0 {
		return to, errors.Errorf("unknown attributes %v", md.Unused)
	}
	return to, nil
}

// ConvertAttributes decodes and validates the attributes of a component into the typed config T.
func ConvertAttributes[T any, PT interface {
	*T
	Validator
}](comp Component, path string) (*T, error) {
	var conf T
	if _, err := TransformAttributeMapToStruct(PT(&conf), comp.Attributes); err != nil {
		return nil, errors.Wrapf(err, "%s.attributes", path)
	}
	if err := PT(&conf).Validate(path + ".attributes"); err != nil {
		return nil, err
	}
	return &conf, nil
}
