package sru

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/dharsanguruparan/RecordGate/internal/model"
)

const marcNamespace = "http://www.loc.gov/MARC21/slim"

// ISO 2709 structural characters.
const (
	subfieldDelimiter = 0x1F
	fieldTerminator   = 0x1E
	recordTerminator  = 0x1D
)

// Record is a MARC record as read from MARCXML.
type Record struct {
	XMLName       xml.Name       `xml:"record" json:"-"`
	Leader        string         `xml:"leader"`
	ControlFields []ControlField `xml:"controlfield"`
	DataFields    []DataField    `xml:"datafield"`
}

type ControlField struct {
	Tag   string `xml:"tag,attr" json:"tag"`
	Value string `xml:",chardata" json:"value"`
}

type DataField struct {
	Tag       string     `xml:"tag,attr" json:"tag"`
	Ind1      string     `xml:"ind1,attr" json:"ind1"`
	Ind2      string     `xml:"ind2,attr" json:"ind2"`
	Subfields []Subfield `xml:"subfield" json:"subfields"`
}

type Subfield struct {
	Code  string `xml:"code,attr" json:"code"`
	Value string `xml:",chardata" json:"value"`
}

// ParseMARCXML decodes a single MARCXML record element.
func ParseMARCXML(data []byte) (*Record, error) {
	var r Record
	if err := xml.Unmarshal(data, &r); err != nil {
		return nil, errors.Wrap(err, "decode marcxml")
	}
	return &r, nil
}

// MarshalJSON renders the record as {leader, fields} with control and data
// fields in one list.
func (r *Record) MarshalJSON() ([]byte, error) {
	fields := make([]interface{}, 0, len(r.ControlFields)+len(r.DataFields))
	for _, f := range r.ControlFields {
		fields = append(fields, f)
	}
	for _, f := range r.DataFields {
		fields = append(fields, f)
	}
	return json.Marshal(struct {
		Leader string        `json:"leader"`
		Fields []interface{} `json:"fields"`
	}{r.Leader, fields})
}

// Serialize renders the record in the given conversion format.
func Serialize(r *Record, format model.ConversionFormat) ([]byte, error) {
	switch format {
	case model.FormatJSON:
		return json.Marshal(r)
	case model.FormatMARCXML:
		return r.marcXML()
	case model.FormatISO2709:
		return r.iso2709(), nil
	}
	return nil, errors.Errorf("unsupported record format %s", format)
}

func (r *Record) marcXML() ([]byte, error) {
	out := *r
	out.XMLName = xml.Name{Space: marcNamespace, Local: "record"}
	body, err := xml.MarshalIndent(&out, "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, "encode marcxml")
	}
	return append([]byte(xml.Header), body...), nil
}

func (r *Record) iso2709() []byte {
	var directory, data bytes.Buffer
	entry := func(tag string, body []byte) {
		fmt.Fprintf(&directory, "%-3.3s%04d%05d", tag, len(body), data.Len())
		data.Write(body)
	}

	for _, f := range r.ControlFields {
		entry(f.Tag, append([]byte(f.Value), fieldTerminator))
	}
	for _, f := range r.DataFields {
		var body bytes.Buffer
		body.WriteString(indicator(f.Ind1))
		body.WriteString(indicator(f.Ind2))
		for _, sf := range f.Subfields {
			body.WriteByte(subfieldDelimiter)
			body.WriteString(sf.Code)
			body.WriteString(sf.Value)
		}
		body.WriteByte(fieldTerminator)
		entry(f.Tag, body.Bytes())
	}
	directory.WriteByte(fieldTerminator)

	base := 24 + directory.Len()
	length := base + data.Len() + 1

	leader := []byte(fmt.Sprintf("%-24s", r.Leader))[:24]
	copy(leader[0:5], fmt.Sprintf("%05d", length))
	leader[10], leader[11] = '2', '2'
	copy(leader[12:17], fmt.Sprintf("%05d", base))
	copy(leader[20:24], "4500")

	out := make([]byte, 0, length)
	out = append(out, leader...)
	out = append(out, directory.Bytes()...)
	out = append(out, data.Bytes()...)
	return append(out, recordTerminator)
}

func indicator(s string) string {
	if s = strings.TrimSpace(s); s == "" {
		return " "
	}
	return s[:1]
}
