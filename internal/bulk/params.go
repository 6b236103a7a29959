package bulk

import (
	"net/url"

	"github.com/dharsanguruparan/RecordGate/internal/apierr"
	"github.com/dharsanguruparan/RecordGate/internal/model"
)

// ValidateRecordLoadParams reads the legacy loader parameters of a bulk
// creation. pOldNew selects the operation: NEW creates, OLD updates. A
// non-empty allowedLibs restricts pActiveLibrary.
func ValidateRecordLoadParams(params url.Values, allowedLibs []string) (model.Operation, *model.RecordLoadParams, error) {
	oldNew := params.Get("pOldNew")
	library := params.Get("pActiveLibrary")
	if oldNew == "" || library == "" {
		return "", nil, apierr.BadRequest("Missing one or more mandatory query parameters. (pActiveLibrary, pOldNew)")
	}

	var op model.Operation
	switch oldNew {
	case "NEW":
		op = model.OperationCreate
	case "OLD":
		op = model.OperationUpdate
	default:
		return "", nil, apierr.BadRequest("Invalid pOldNew query parameter '%s'. (Valid values: OLD/NEW)", oldNew)
	}

	if len(allowedLibs) > 0 && !allowed(allowedLibs, library) {
		return "", nil, apierr.BadRequest("Invalid pActiveLibrary query parameter '%s'", library)
	}

	return op, &model.RecordLoadParams{
		PActiveLibrary: library,
		POldNew:        oldNew,
		PRejectFile:    params.Get("pRejectFile"),
		PLogFile:       params.Get("pLogFile"),
		PCatalogerIn:   params.Get("pCatalogerIn"),
	}, nil
}

func allowed(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
