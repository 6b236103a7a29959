package model

import (
	"mime"
	"strings"
)

// ConversionFormat is the serialization a worker converts a record from.
type ConversionFormat string

const (
	FormatJSON     ConversionFormat = "JSON"
	FormatISO2709  ConversionFormat = "ISO2709"
	FormatMARCXML  ConversionFormat = "MARCXML"
	FormatAlephSeq ConversionFormat = "ALEPHSEQ"
)

// ContentType maps a wire media type to a conversion format and says on which
// paths it is accepted.
type ContentType struct {
	MediaType       string
	Format          ConversionFormat
	AllowPrio       bool
	AllowBulk       bool
	AllowAddRecords bool
}

// ContentTypes is the fixed negotiation table.
var ContentTypes = []ContentType{
	{MediaType: "application/json", Format: FormatJSON, AllowPrio: true, AllowBulk: true, AllowAddRecords: true},
	{MediaType: "application/marc", Format: FormatISO2709, AllowPrio: true, AllowBulk: true},
	{MediaType: "application/xml", Format: FormatMARCXML, AllowPrio: true, AllowBulk: true},
	{MediaType: "application/alephseq", Format: FormatAlephSeq, AllowBulk: true},
}

// LookupContentType finds the table entry for a Content-Type or Accept value.
// Media type parameters such as charset are ignored.
func LookupContentType(value string) (ContentType, bool) {
	if value == "" {
		return ContentType{}, false
	}
	mediaType, _, err := mime.ParseMediaType(value)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(value))
	}
	for _, ct := range ContentTypes {
		if ct.MediaType == mediaType {
			return ct, true
		}
	}
	return ContentType{}, false
}
