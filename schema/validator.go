// Package payloadschema validates article ingest payloads against the
// embedded JSON schema before any of the pipeline runs.
package payloadschema

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed article_payload.schema.json
var articlePayloadSchemaJSON string

// ArticlePayload is one scraped article as submitted by an ingestion worker.
type ArticlePayload struct {
	PayloadVersion         string         `json:"payload_version"`
	TopicSlug              string         `json:"topic_slug"`
	SourceName             *string        `json:"source_name,omitempty"`
	URL                    string         `json:"url"`
	Title                  string         `json:"title"`
	BodyHTML               *string        `json:"body_html,omitempty"`
	BodyText               *string        `json:"body_text,omitempty"`
	Author                 *string        `json:"author,omitempty"`
	Language               *string        `json:"language,omitempty"`
	PublishedAt            *string        `json:"published_at,omitempty"`
	RegionalRelevanceScore *int           `json:"regional_relevance_score,omitempty"`
	ContentQualityScore    *int           `json:"content_quality_score,omitempty"`
	ImportMetadata         map[string]any `json:"import_metadata,omitempty"`
}

var (
	compileOnce       sync.Once
	compiledSchema    *jsonschema.Schema
	compiledSchemaErr error
)

// ValidateArticlePayload runs strict JSON decoding, schema validation and
// the semantic checks the schema cannot express.
func ValidateArticlePayload(payload json.RawMessage) (*ArticlePayload, error) {
	value, err := decodeStrictJSON(payload)
	if err != nil {
		return nil, fmt.Errorf("decode payload JSON: %w", err)
	}

	schema, err := loadSchema()
	if err != nil {
		return nil, fmt.Errorf("load schema: %w", err)
	}

	if err := schema.Validate(value); err != nil {
		return nil, fmt.Errorf("schema validation failed: %w", err)
	}

	normalized, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("normalize payload JSON: %w", err)
	}

	var item ArticlePayload
	if err := json.Unmarshal(normalized, &item); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}

	if err := validateSemantics(&item); err != nil {
		return nil, err
	}

	return &item, nil
}

func loadSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft2020
		compiler.AssertFormat = true

		if err := compiler.AddResource("article_payload.schema.json", strings.NewReader(articlePayloadSchemaJSON)); err != nil {
			compiledSchemaErr = fmt.Errorf("add schema resource: %w", err)
			return
		}

		schema, err := compiler.Compile("article_payload.schema.json")
		if err != nil {
			compiledSchemaErr = fmt.Errorf("compile schema: %w", err)
			return
		}

		compiledSchema = schema
	})

	if compiledSchemaErr != nil {
		return nil, compiledSchemaErr
	}
	if compiledSchema == nil {
		return nil, fmt.Errorf("schema not initialized")
	}
	return compiledSchema, nil
}

func decodeStrictJSON(raw []byte) (any, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("payload is empty")
	}

	decoder := json.NewDecoder(bytes.NewReader(trimmed))
	decoder.UseNumber()

	var value any
	if err := decoder.Decode(&value); err != nil {
		return nil, err
	}

	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("payload contains trailing content")
	}

	return value, nil
}

func validateSemantics(item *ArticlePayload) error {
	if item == nil {
		return fmt.Errorf("payload is nil")
	}

	if strings.TrimSpace(item.PayloadVersion) != "v1" {
		return fmt.Errorf("payload_version must be v1")
	}
	if strings.TrimSpace(item.TopicSlug) == "" {
		return fmt.Errorf("topic_slug must not be empty")
	}
	if strings.TrimSpace(item.Title) == "" {
		return fmt.Errorf("title must not be empty")
	}
	if err := validateURI("url", item.URL); err != nil {
		return err
	}

	if item.SourceName != nil && strings.TrimSpace(*item.SourceName) == "" {
		return fmt.Errorf("source_name must not be empty when present")
	}
	if item.PublishedAt != nil {
		if _, err := time.Parse(time.RFC3339, strings.TrimSpace(*item.PublishedAt)); err != nil {
			return fmt.Errorf("published_at must be RFC3339: %w", err)
		}
	}

	return nil
}

func validateURI(fieldName, value string) error {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fmt.Errorf("%s must not be empty", fieldName)
	}
	if _, err := url.ParseRequestURI(trimmed); err != nil {
		return fmt.Errorf("%s is not a valid URI: %w", fieldName, err)
	}
	return nil
}
