package config

import (
	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"
)

// AttributeMap is a free form JSON object.
type AttributeMap map[string]interface{}

// Has returns whether the attribute is set.
func (am AttributeMap) Has(name string) bool {
	_, has := am[name]
	return has
}

// decodeInto decodes the attributes over result using json tag names. Unknown keys are
// an error.
func (am AttributeMap) decodeInto(result interface{}) error {
	if len(am) == 0 {
		return nil
	}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		Result:           result,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		DecodeHook:       mapstructure.TextUnmarshallerHookFunc(),
	})
	if err != nil {
		return err
	}
	if err := decoder.Decode(map[string]interface{}(am)); err != nil {
		return errors.Wrap(err, "failed to decode settings")
	}
	return nil
}
