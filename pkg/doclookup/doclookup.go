// Package doclookup implements the extension.Lookup doc side-channel
// contract  against an HTTP-served schema catalog: a base URL plus
// one JSON document per category/identifier pair.
package doclookup

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/cc-devops-skills/corevalidate/pkg/extension"
	"github.com/cc-devops-skills/corevalidate/pkg/httputil"
	"github.com/cc-devops-skills/corevalidate/pkg/logger"
)

var log = logger.New("doclookup:http")

// DefaultBaseURL is the bundled public schema catalog used when no override
// is configured.
const DefaultBaseURL = "https://schemas.corevalidate.dev"

// fragmentDocument is the wire shape served by the catalog; it mirrors
// extension.SchemaFragment field for field.
type fragmentDocument struct {
	RequiredFields []string            `json:"required_fields"`
	FieldTypes     map[string]string   `json:"field_types"`
	EnumValues     map[string][]string `json:"enum_values"`
}

// HTTPLookup resolves hints against a base URL of the form
// {baseURL}/{category}/{identifier}.json.
type HTTPLookup struct {
	client  *httputil.Client
	baseURL string
}

// New builds an HTTPLookup. An empty baseURL falls back to DefaultBaseURL.
func New(baseURL string) *HTTPLookup {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &HTTPLookup{
		client:  httputil.NewClient(nil),
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

var _ extension.Lookup = (*HTTPLookup)(nil)

// Lookup fetches and decodes the schema fragment for category/identifier.
// A 404 is treated as "no schema published" rather than an error: a nil,
// nil return falls back to a CORE-CRD-SCHEMA-UNAVAILABLE info finding.
func (h *HTTPLookup) Lookup(ctx context.Context, category, identifier string) (*extension.SchemaFragment, error) {
	url := fmt.Sprintf("%s/%s/%s.json", h.baseURL, category, identifier)

	req, err := h.client.NewRequest(http.MethodGet, url)
	if err != nil {
		return nil, fmt.Errorf("doclookup: building request for %s: %w", url, err)
	}
	req = req.WithContext(ctx)

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("doclookup: fetching %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		log.Printf("no schema published for %s/%s", category, identifier)
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := httputil.ReadResponseBody(resp)
		return nil, httputil.FormatHTTPError(resp.StatusCode, body, fmt.Sprintf("doclookup %s/%s", category, identifier))
	}

	body, err := httputil.ReadResponseBody(resp)
	if err != nil {
		return nil, fmt.Errorf("doclookup: reading body for %s: %w", url, err)
	}

	var doc fragmentDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("doclookup: decoding %s: %w", url, err)
	}

	return &extension.SchemaFragment{
		RequiredFields: doc.RequiredFields,
		FieldTypes:     doc.FieldTypes,
		EnumValues:     doc.EnumValues,
	}, nil
}
