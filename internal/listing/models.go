package listing

import (
	"encoding/json"
	"fmt"
)

// RawListing is one product listing line as it appears in the source dump.
// Values are kept raw because the same field may be a scalar, a tagged value
// list or a nested structure depending on the listing.
type RawListing map[string]json.RawMessage

// TaggedValue is one entry of a multilingual value list
type TaggedValue struct {
	Value       json.RawMessage `json:"value"`
	LanguageTag *string         `json:"language_tag,omitempty"`
}

// ImageRecord describes one product image
type ImageRecord struct {
	ImageID string `json:"-"`
	Height  int    `json:"height"`
	Width   int    `json:"width"`
	Path    string `json:"path"`
}

// ImageLookup resolves an image id to its metadata
type ImageLookup interface {
	Lookup(imageID string) (ImageRecord, bool)
}

// NormalizedRecord is the canonical per-image record written by the merge stage.
// Field order matches the order the fields are written in.
type NormalizedRecord struct {
	Brand               string                 `json:"brand,omitempty"`
	ItemName            string                 `json:"item_name,omitempty"`
	ModelName           string                 `json:"model_name,omitempty"`
	ModelNumber         string                 `json:"model_number,omitempty"`
	Style               string                 `json:"style,omitempty"`
	Color               string                 `json:"color,omitempty"`
	ColorCode           json.RawMessage        `json:"color_code,omitempty"`
	ItemID              json.RawMessage        `json:"item_id,omitempty"`
	ModelYear           *int                   `json:"model_year,omitempty"`
	ProductType         string                 `json:"product_type,omitempty"`
	BulletPoints        []string               `json:"bullet_points,omitempty"`
	ItemKeywords        []string               `json:"item_keywords,omitempty"`
	NodeName            string                 `json:"node_name,omitempty"`
	DescribeImageSource []string               `json:"describe_image_source"`
	ImageMetadata       ImageMetadata          `json:"image_metadata,omitempty"`
}

// InvalidFieldError reports a field that could not be shaped into its output type.
// The field is dropped from the record; the record itself is kept.
type InvalidFieldError struct {
	Field string
	Value string
	Err   error
}

func (e *InvalidFieldError) Error() string {
	return fmt.Sprintf("invalid value for field %q (%s): %v", e.Field, e.Value, e.Err)
}

func (e *InvalidFieldError) Unwrap() error {
	return e.Err
}
