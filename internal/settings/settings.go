// Package settings resolves request parameters into validated, defaulted
// operation settings. It performs no I/O.
package settings

import (
	"net/url"

	"github.com/dharsanguruparan/RecordGate/internal/apierr"
	"github.com/dharsanguruparan/RecordGate/internal/model"
	"github.com/dharsanguruparan/RecordGate/internal/query"
)

// Resolver carries the configuration the rules depend on.
type Resolver struct {
	// RecordType is the kind of records the gateway serves. unique and merge
	// are only meaningful for "bib".
	RecordType string
	// FixTypes is the allow-list for the fixType parameter.
	FixTypes []string
}

type flags struct {
	noop, unique, merge, validate, failOnError, skipNoChangeUpdates query.Flag
}

func readFlags(params url.Values) (flags, error) {
	var f flags
	for name, dst := range map[string]*query.Flag{
		"noop":                &f.noop,
		"unique":              &f.unique,
		"merge":               &f.merge,
		"validate":            &f.validate,
		"failOnError":         &f.failOnError,
		"skipNoChangeUpdates": &f.skipNoChangeUpdates,
	} {
		v, ok := query.BoolParam(params, name)
		if !ok {
			return flags{}, apierr.BadRequest("Invalid %s query parameter", name)
		}
		*dst = v
	}

	if f.validate.False() && (f.unique.True() || f.merge.True()) {
		return flags{}, apierr.BadRequest("Unique and merge cannot be used with validate set as false")
	}
	if f.unique.False() && f.merge.True() {
		return flags{}, apierr.BadRequest("Merge cannot be used with unique set as false")
	}
	return f, nil
}

// Bulk resolves the settings of a bulk job. noStream jobs are batch loads and
// default to unique and validate; streamed jobs default to neither.
func (r Resolver) Bulk(params url.Values, noStream bool) (model.OperationSettings, error) {
	f, err := readFlags(params)
	if err != nil {
		return model.OperationSettings{}, err
	}
	return model.OperationSettings{
		Noop:                f.noop.Or(false),
		Unique:              f.unique.Or(noStream),
		Merge:               f.merge.Or(false),
		Validate:            f.validate.Or(noStream),
		FailOnError:         f.failOnError.Or(false),
		SkipNoChangeUpdates: f.skipNoChangeUpdates.Or(true),
		Prio:                false,
	}, nil
}

// Prio resolves the settings of a priority create or update. Priority jobs
// are always validated and never skip unchanged records by default.
func (r Resolver) Prio(op model.Operation, params url.Values) (model.OperationSettings, error) {
	f, err := readFlags(params)
	if err != nil {
		return model.OperationSettings{}, err
	}

	s := model.OperationSettings{
		Noop:                f.noop.Or(false),
		Unique:              f.unique.Or(op == model.OperationCreate),
		Merge:               f.merge.Or(false),
		Validate:            true,
		FailOnError:         false,
		SkipNoChangeUpdates: f.skipNoChangeUpdates.Or(false),
		Prio:                true,
	}

	if r.RecordType != "" && r.RecordType != "bib" && (s.Unique || s.Merge) {
		return model.OperationSettings{}, apierr.BadRequest("Unique and merge can only be used for bib records, use unique=0")
	}
	if op == model.OperationCreate && s.Merge && !s.Unique {
		return model.OperationSettings{}, apierr.BadRequest("Merge cannot be used with unique set as false")
	}
	return s, nil
}

// Fix resolves the settings of a priority fix. fixType is mandatory and must
// be on the allow-list.
func (r Resolver) Fix(params url.Values) (model.OperationSettings, error) {
	fixType := params.Get("fixType")
	if fixType == "" {
		return model.OperationSettings{}, apierr.BadRequest("Fix requests require fixType.")
	}
	if !r.allowedFixType(fixType) {
		return model.OperationSettings{}, apierr.BadRequest("Invalid fixType %s.", fixType)
	}
	noop, ok := query.BoolParam(params, "noop")
	if !ok {
		return model.OperationSettings{}, apierr.BadRequest("Invalid noop query parameter")
	}
	return model.OperationSettings{
		Noop:     noop.Or(false),
		Validate: true,
		FixType:  fixType,
		Prio:     true,
	}, nil
}

func (r Resolver) allowedFixType(fixType string) bool {
	for _, t := range r.FixTypes {
		if t == fixType {
			return true
		}
	}
	return false
}
