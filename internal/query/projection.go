package query

import (
	"net/url"

	"github.com/dharsanguruparan/RecordGate/internal/apierr"
	"github.com/dharsanguruparan/RecordGate/internal/model"
)

// Projection selects which of the large optional queue item fields are
// returned. The zero value is the compact listing.
type Projection struct {
	Operations        bool
	OperationSettings bool
	RecordLoadParams  bool
	ImportJobState    bool
}

// ShowAll includes every field.
var ShowAll = Projection{Operations: true, OperationSettings: true, RecordLoadParams: true, ImportJobState: true}

// ShowParams builds a Projection from showAll, showOperations,
// showOperationSettings, showRecordLoadParams and showImportJobState.
func ShowParams(params url.Values) (Projection, error) {
	flag := func(name string) (bool, error) {
		f, ok := BoolParam(params, name)
		if !ok {
			return false, apierr.BadRequest("Invalid %s", name)
		}
		return f.True(), nil
	}

	all, err := flag("showAll")
	if err != nil {
		return Projection{}, err
	}
	if all {
		return ShowAll, nil
	}

	var p Projection
	for name, dst := range map[string]*bool{
		"showOperations":        &p.Operations,
		"showOperationSettings": &p.OperationSettings,
		"showRecordLoadParams":  &p.RecordLoadParams,
		"showImportJobState":    &p.ImportJobState,
	} {
		if *dst, err = flag(name); err != nil {
			return Projection{}, err
		}
	}
	return p, nil
}

// Apply clears the fields the projection excludes.
func (p Projection) Apply(item *model.QueueItem) {
	if !p.Operations {
		item.Operations = nil
	}
	if !p.OperationSettings {
		item.OperationSettings = nil
	}
	if !p.RecordLoadParams {
		item.RecordLoadParams = nil
	}
	if !p.ImportJobState {
		item.ImportJobState = nil
	}
}
