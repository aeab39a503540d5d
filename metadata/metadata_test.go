package metadata

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encode(doc string) string {
	return Base64JSONPrefix + base64.StdEncoding.EncodeToString([]byte(doc))
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name     string
		uri      string
		expected *Metadata
	}{
		{
			name: "base64 json",
			uri:  encode(`{"name":"Bot #1","description":"first","image":"ipfs://Qm1","attributes":[{"trait_type":"Rarity","value":"Epic"}]}`),
			expected: &Metadata{
				Name:        "Bot #1",
				Description: "first",
				Image:       "ipfs://Qm1",
				Attributes:  []Attribute{{TraitType: "Rarity", Value: "Epic"}},
			},
		},
		{
			name:     "raw json",
			uri:      `{"name":"Raw","image":"https://example.com/a.png"}`,
			expected: &Metadata{Name: "Raw", Image: "https://example.com/a.png"},
		},
		{
			name:     "empty object",
			uri:      encode(`{}`),
			expected: &Metadata{},
		},
		{
			name:     "null fields",
			uri:      encode(`{"name":"Dragon","description":null,"image":"ipfs://cid","attributes":null}`),
			expected: &Metadata{Name: "Dragon", Image: "ipfs://cid"},
		},
		{
			name:     "unpadded base64",
			uri:      Base64JSONPrefix + base64.RawStdEncoding.EncodeToString([]byte(`{"name":"Dragon"}`)),
			expected: &Metadata{Name: "Dragon"},
		},
		{name: "ipfs uri", uri: "ipfs://QmSomething"},
		{name: "empty", uri: ""},
		{name: "bad base64", uri: Base64JSONPrefix + "!!!not-base64"},
		{name: "base64 of non-json", uri: encode("hello")},
		{name: "not json", uri: "https://example.com/1.json"},
		{name: "json array", uri: `[1,2,3]`},
		{name: "json null", uri: `null`},
		{name: "wrong field type", uri: encode(`{"name":7}`)},
		{name: "truncated", uri: `{"name":"x"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Decode(tt.uri)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestDecodeRoundTrip(t *testing.T) {
	doc := `{"name":"Round","description":"trip","image":"https://img/1.png","attributes":[{"trait_type":"Level","value":3}]}`
	m := Decode(encode(doc))
	require.NotNil(t, m)
	assert.Equal(t, "Round", m.Name)
	assert.Equal(t, "trip", m.Description)
	assert.Equal(t, "https://img/1.png", m.Image)
	require.Len(t, m.Attributes, 1)
	assert.Equal(t, "Level", m.Attributes[0].TraitType)
	assert.EqualValues(t, 3, m.Attributes[0].Value)
}

func TestImageURL(t *testing.T) {
	tests := []struct {
		name     string
		meta     *Metadata
		expected string
	}{
		{"nil metadata", nil, PlaceholderImage},
		{"empty image", &Metadata{Name: "x"}, PlaceholderImage},
		{"ipfs image", &Metadata{Image: "ipfs://QmCid/1.png"}, "https://gateway.pinata.cloud/ipfs/QmCid/1.png"},
		{"http image", &Metadata{Image: "https://cdn.example/1.png"}, "https://cdn.example/1.png"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ImageURL(tt.meta))
		})
	}
}

func TestRarity(t *testing.T) {
	assert.Equal(t, DefaultRarity, Rarity(nil))
	assert.Equal(t, DefaultRarity, Rarity(&Metadata{}))
	assert.Equal(t, DefaultRarity, Rarity(&Metadata{Attributes: []Attribute{{TraitType: "Color", Value: "red"}}}))
	assert.Equal(t, "Legendary", Rarity(&Metadata{Attributes: []Attribute{
		{TraitType: "Color", Value: "red"},
		{TraitType: "Rarity", Value: "Legendary"},
	}}))
}
