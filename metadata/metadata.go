package metadata

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/xeipuuv/gojsonschema"
)

const (
	// Base64JSONPrefix marks an inline, base64-encoded JSON document
	Base64JSONPrefix = "data:application/json;base64,"

	// IPFSPrefix marks a content-addressed URI
	IPFSPrefix = "ipfs://"

	// IPFSGateway is the HTTP gateway used to resolve ipfs:// images
	IPFSGateway = "https://gateway.pinata.cloud/ipfs/"

	// PlaceholderImage is shown when a token has no usable image
	PlaceholderImage = "https://api.dicebear.com/7.x/bottts/svg?seed=default&backgroundColor=191c34"

	// RarityTrait is the attribute name that carries a token's rarity
	RarityTrait = "Rarity"

	// DefaultRarity is used when the rarity attribute is absent
	DefaultRarity = "Common"
)

// erc721Schema is the subset of the ERC-721 metadata JSON schema the storefront reads.
const erc721Schema = `{
	"type": "object",
	"properties": {
		"name": {"type": ["string", "null"]},
		"description": {"type": ["string", "null"]},
		"image": {"type": ["string", "null"]},
		"attributes": {
			"type": ["array", "null"],
			"items": {
				"type": "object",
				"properties": {
					"trait_type": {"type": "string"}
				}
			}
		}
	}
}`

// Attribute is one trait of a token.
type Attribute struct {
	TraitType string      `json:"trait_type"`
	Value     interface{} `json:"value"`
}

// Metadata is the decoded token metadata document.
type Metadata struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Image       string      `json:"image"`
	Attributes  []Attribute `json:"attributes,omitempty"`
}

// Decoder turns token metadata URIs into Metadata records.
type Decoder struct {
	schema *gojsonschema.Schema
	log    zerolog.Logger
}

// Option configures a Decoder
type Option func(*Decoder)

// WithLogger sets the logger used to report decode failures
func WithLogger(log zerolog.Logger) Option {
	return func(d *Decoder) {
		d.log = log
	}
}

// NewDecoder creates a decoder with the built-in metadata schema.
func NewDecoder(opts ...Option) *Decoder {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(erc721Schema))
	if err != nil {
		// The schema is a constant; failing here is a programming error
		panic(fmt.Sprintf("metadata: invalid schema: %v", err))
	}
	d := &Decoder{
		schema: schema,
		log:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Decode converts a token URI into metadata.
//
// Inline base64 JSON and raw JSON are decoded; ipfs:// URIs are not
// fetched and yield nil. Any malformed input yields nil, never an error.
func (d *Decoder) Decode(uri string) *Metadata {
	var raw []byte

	switch {
	case uri == "":
		return nil
	case strings.HasPrefix(uri, Base64JSONPrefix):
		decoded, err := decodeBase64(strings.TrimPrefix(uri, Base64JSONPrefix))
		if err != nil {
			d.log.Debug().Err(err).Msg("metadata: invalid base64 payload")
			return nil
		}
		raw = decoded
	case strings.HasPrefix(uri, IPFSPrefix):
		d.log.Debug().Str("uri", uri).Msg("metadata: ipfs uri not decoded inline")
		return nil
	default:
		raw = []byte(uri)
	}

	result, err := d.schema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		d.log.Debug().Err(err).Msg("metadata: not a json document")
		return nil
	}
	if !result.Valid() {
		for _, desc := range result.Errors() {
			d.log.Debug().
				Str("field", desc.Context().String()).
				Str("reason", desc.Description()).
				Msg("metadata: schema violation")
		}
		return nil
	}

	var m Metadata
	if err := json.Unmarshal(raw, &m); err != nil {
		d.log.Debug().Err(err).Msg("metadata: unmarshal failed")
		return nil
	}
	return &m
}

// decodeBase64 accepts padded and unpadded standard base64
func decodeBase64(payload string) ([]byte, error) {
	decoded, err := base64.StdEncoding.DecodeString(payload)
	if err == nil {
		return decoded, nil
	}
	return base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
}

var defaultDecoder = NewDecoder()

// Decode converts a token URI into metadata using a decoder without logging.
func Decode(uri string) *Metadata {
	return defaultDecoder.Decode(uri)
}

// IPFSToHTTP rewrites an ipfs:// URI onto the public gateway.
// Other URIs are returned unchanged.
func IPFSToHTTP(uri string) string {
	if strings.HasPrefix(uri, IPFSPrefix) {
		return IPFSGateway + strings.TrimPrefix(uri, IPFSPrefix)
	}
	return uri
}

// ImageURL resolves the display image for metadata, falling back to the placeholder.
func ImageURL(m *Metadata) string {
	if m == nil || m.Image == "" {
		return PlaceholderImage
	}
	return IPFSToHTTP(m.Image)
}

// Rarity returns the value of the rarity attribute, or DefaultRarity.
func Rarity(m *Metadata) string {
	if m == nil {
		return DefaultRarity
	}
	for _, attr := range m.Attributes {
		if attr.TraitType != RarityTrait || attr.Value == nil {
			continue
		}
		if s := fmt.Sprint(attr.Value); s != "" {
			return s
		}
	}
	return DefaultRarity
}
