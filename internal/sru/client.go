// Package sru reads catalog records over the Search/Retrieve via URL
// protocol and serializes them for clients.
package sru

import (
	"context"
	"encoding/xml"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Client queries a single SRU endpoint for MARCXML records.
type Client struct {
	baseURL string
	http    *http.Client
}

// New builds a client. A nil httpClient gets a default with a timeout.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{baseURL: baseURL, http: httpClient}
}

type searchRetrieveResponse struct {
	NumberOfRecords int `xml:"numberOfRecords"`
	Records         []struct {
		Data struct {
			Inner []byte `xml:",innerxml"`
		} `xml:"recordData"`
	} `xml:"records>record"`
	Diagnostics []struct {
		Message string `xml:"message"`
		Details string `xml:"details"`
	} `xml:"diagnostics>diagnostic"`
}

// Read fetches the record with the given database id. It returns nil, nil
// when the endpoint has no such record.
func (c *Client) Read(ctx context.Context, id string) (*Record, error) {
	q := url.Values{}
	q.Set("operation", "searchRetrieve")
	q.Set("version", "2.0")
	q.Set("query", "rec.id="+id)
	q.Set("recordSchema", "marcxml")
	q.Set("maximumRecords", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "build sru request")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "sru request")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, errors.Errorf("sru responded %d", resp.StatusCode)
	}

	var body searchRetrieveResponse
	if err := xml.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, errors.Wrap(err, "decode sru response")
	}
	if len(body.Diagnostics) > 0 {
		d := body.Diagnostics[0]
		return nil, errors.Errorf("sru diagnostic: %s", strings.TrimSpace(d.Message+" "+d.Details))
	}
	if len(body.Records) == 0 {
		return nil, nil
	}
	return ParseMARCXML(body.Records[0].Data.Inner)
}
