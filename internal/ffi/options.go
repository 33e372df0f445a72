package ffi

import (
	"net/url"
	"sort"

	"github.com/FocuswithJustin/LegacyBridge/core/errors"
	"github.com/FocuswithJustin/LegacyBridge/core/pipeline"
)

// ApplyOptions applies an option string of the form
// "strict_validation=true&template=memo&var.company=Globex" to cfg. Values
// may be percent-encoded. When a key repeats, the last value wins. An
// empty string changes nothing.
func ApplyOptions(cfg *pipeline.Config, options string) error {
	if options == "" {
		return nil
	}
	values, err := url.ParseQuery(options)
	if err != nil {
		return errors.NewValidation("options", err.Error())
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := values[k]
		if err := cfg.Set(k, v[len(v)-1]); err != nil {
			return err
		}
	}
	return nil
}
