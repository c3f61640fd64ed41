package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Persisted sub-document names, reported in CountingRecord.DecodeIssues
const (
	DocCountingData          = "countingData"
	DocTotals                = "totals"
	DocBoxesLoadedToColdroom = "boxesLoadedToColdroom"
)

const quantitiesSchemaURL = "mem://coldroom/quantities.json"

const quantitiesSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "additionalProperties": {"type": "integer", "minimum": 0}
}`

var (
	quantitiesSchemaOnce sync.Once
	quantitiesSchema     *jsonschema.Schema
	quantitiesSchemaErr  error
)

func compiledQuantitiesSchema() (*jsonschema.Schema, error) {
	quantitiesSchemaOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(quantitiesSchemaJSON))
		if err != nil {
			quantitiesSchemaErr = err
			return
		}
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(quantitiesSchemaURL, doc); err != nil {
			quantitiesSchemaErr = err
			return
		}
		quantitiesSchema, quantitiesSchemaErr = compiler.Compile(quantitiesSchemaURL)
	})
	return quantitiesSchema, quantitiesSchemaErr
}

// DecodeQuantities parses a persisted quantity document. Blank text is an empty
// document. Anything else must be an object of non-negative integers keyed by
// canonical spec keys.
func DecodeQuantities(raw string) (Quantities, error) {
	if strings.TrimSpace(raw) == "" {
		return Quantities{}, nil
	}
	schema, err := compiledQuantitiesSchema()
	if err != nil {
		return Quantities{}, fmt.Errorf("compile quantities schema: %w", err)
	}
	inst, err := jsonschema.UnmarshalJSON(strings.NewReader(raw))
	if err != nil {
		return Quantities{}, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}
	if err := schema.Validate(inst); err != nil {
		return Quantities{}, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}
	var q Quantities
	if err := json.Unmarshal([]byte(raw), &q); err != nil {
		return Quantities{}, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}
	return q, nil
}

// EncodeQuantities renders a quantity document for storage
func EncodeQuantities(q Quantities) (string, error) {
	if q == nil {
		q = Quantities{}
	}
	data, err := json.Marshal(q)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// DecodeTotals accepts any JSON value; blank text decodes to an empty object
func DecodeTotals(raw string) (json.RawMessage, error) {
	if strings.TrimSpace(raw) == "" {
		return json.RawMessage(`{}`), nil
	}
	if !json.Valid([]byte(raw)) {
		return json.RawMessage(`{}`), fmt.Errorf("%w: totals is not valid JSON", ErrMalformedDocument)
	}
	return json.RawMessage(raw), nil
}

// StoredCountingDocuments is the text form of a counting record's sub-documents
type StoredCountingDocuments struct {
	CountingData          string
	Totals                string
	BoxesLoadedToColdroom string
}

// DecodeDocuments fills the record's maps from their stored text. A document
// that fails to decode is replaced by an empty one and named in DecodeIssues;
// the record itself stays usable.
func (r *CountingRecord) DecodeDocuments(docs StoredCountingDocuments) {
	r.DecodeIssues = nil

	countingData, err := DecodeQuantities(docs.CountingData)
	if err != nil {
		r.DecodeIssues = append(r.DecodeIssues, DocCountingData)
	}
	r.CountingData = countingData

	totals, err := DecodeTotals(docs.Totals)
	if err != nil {
		r.DecodeIssues = append(r.DecodeIssues, DocTotals)
	}
	r.Totals = totals

	loaded, err := DecodeQuantities(docs.BoxesLoadedToColdroom)
	if err != nil {
		r.DecodeIssues = append(r.DecodeIssues, DocBoxesLoadedToColdroom)
	}
	r.BoxesLoadedToColdroom = loaded
}

// EncodeDocuments renders the record's maps for storage
func (r *CountingRecord) EncodeDocuments() (StoredCountingDocuments, error) {
	countingData, err := EncodeQuantities(r.CountingData)
	if err != nil {
		return StoredCountingDocuments{}, fmt.Errorf("encode countingData: %w", err)
	}
	loaded, err := EncodeQuantities(r.BoxesLoadedToColdroom)
	if err != nil {
		return StoredCountingDocuments{}, fmt.Errorf("encode boxesLoadedToColdroom: %w", err)
	}
	totals := string(r.Totals)
	if totals == "" {
		totals = "{}"
	}
	return StoredCountingDocuments{
		CountingData:          countingData,
		Totals:                totals,
		BoxesLoadedToColdroom: loaded,
	}, nil
}
