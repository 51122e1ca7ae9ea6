package listing

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// DefaultLocalePrefix selects English values (en_US, en_GB, ...)
const DefaultLocalePrefix = "en_"

// Fields taken as the first accepted value only
var singleValueFields = []string{"brand", "item_name", "model_name", "model_number", "style", "color", "product_type"}

// Fields kept as the full accepted sequence, with their output key
var pluralFields = []struct{ source, key string }{
	{"bullet_point", "bullet_points"},
	{"item_keywords", "item_keywords"},
}

var errNotTaggedList = errors.New("expected a list of tagged values")

// Options configures a Normalizer
type Options struct {
	// LocalePrefix is matched against language tags; untagged values always pass.
	LocalePrefix string
}

// Normalizer turns raw listings into NormalizedRecords
type Normalizer struct {
	localePrefix string
}

// NewNormalizer creates a normalizer, falling back to DefaultLocalePrefix
func NewNormalizer(opts Options) *Normalizer {
	prefix := opts.LocalePrefix
	if prefix == "" {
		prefix = DefaultLocalePrefix
	}
	return &Normalizer{localePrefix: prefix}
}

// LocalePrefix returns the prefix used by the language filter
func (n *Normalizer) LocalePrefix() string {
	return n.localePrefix
}

// PickValues returns the values whose tag is absent or starts with prefix, in source order.
func PickValues(values []TaggedValue, prefix string) []json.RawMessage {
	out := make([]json.RawMessage, 0, len(values))
	for _, v := range values {
		if v.LanguageTag == nil || strings.HasPrefix(*v.LanguageTag, prefix) {
			out = append(out, v.Value)
		}
	}
	return out
}

// MainImageID returns the listing's main image id, or "" when it has none.
func (r RawListing) MainImageID() string {
	raw, ok := r["main_image_id"]
	if !ok {
		return ""
	}
	var id string
	if err := json.Unmarshal(raw, &id); err != nil {
		return ""
	}
	return id
}

// Normalize builds the canonical record for a listing. It returns nil when the
// listing has no main image. Field-level problems are returned alongside the
// record; the affected fields are simply left out.
func (n *Normalizer) Normalize(raw RawListing, images ImageLookup) (*NormalizedRecord, []error) {
	mainID := raw.MainImageID()
	if mainID == "" {
		return nil, nil
	}

	var errs []error
	rec := &NormalizedRecord{}

	for _, field := range singleValueFields {
		vals, err := n.selected(raw, field)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if len(vals) == 0 {
			continue
		}
		setSingle(rec, field, vals[0])
	}

	if v, ok := raw["color_code"]; ok && !isNull(v) {
		rec.ColorCode = v
	}
	if v, ok := raw["item_id"]; ok && !isNull(v) {
		rec.ItemID = v
	}

	vals, err := n.selected(raw, "model_year")
	switch {
	case err != nil:
		errs = append(errs, err)
	case len(vals) > 0:
		year, err := coerceInt(vals[0])
		if err != nil {
			errs = append(errs, &InvalidFieldError{Field: "model_year", Value: string(vals[0]), Err: err})
		} else {
			rec.ModelYear = &year
		}
	}

	for _, f := range pluralFields {
		vals, err := n.selected(raw, f.source)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if len(vals) == 0 {
			continue
		}
		texts := make([]string, len(vals))
		for i, v := range vals {
			texts[i] = textOf(v)
		}
		switch f.key {
		case "bullet_points":
			rec.BulletPoints = texts
		case "item_keywords":
			rec.ItemKeywords = texts
		}
	}

	rec.NodeName = firstNodeName(raw["node"])

	rec.DescribeImageSource = rec.BulletPoints
	if rec.DescribeImageSource == nil {
		rec.DescribeImageSource = []string{}
	}

	rec.ImageMetadata = attachImages(mainID, raw["other_image_id"], images)

	return rec, errs
}

// selected decodes a tagged field and applies the language filter. Null values
// are dropped after filtering.
func (n *Normalizer) selected(raw RawListing, field string) ([]json.RawMessage, error) {
	v, ok := raw[field]
	if !ok || isNull(v) {
		return nil, nil
	}
	var tagged []TaggedValue
	if err := json.Unmarshal(v, &tagged); err != nil {
		return nil, &InvalidFieldError{Field: field, Value: truncate(string(v)), Err: errNotTaggedList}
	}
	picked := PickValues(tagged, n.localePrefix)
	out := picked[:0]
	for _, p := range picked {
		if !isNull(p) {
			out = append(out, p)
		}
	}
	return out, nil
}

func setSingle(rec *NormalizedRecord, field string, v json.RawMessage) {
	s := textOf(v)
	switch field {
	case "brand":
		rec.Brand = s
	case "item_name":
		rec.ItemName = s
	case "model_name":
		rec.ModelName = s
	case "model_number":
		rec.ModelNumber = s
	case "style":
		rec.Style = s
	case "color":
		rec.Color = s
	case "product_type":
		rec.ProductType = s
	}
}

func attachImages(mainID string, others json.RawMessage, images ImageLookup) ImageMetadata {
	if images == nil {
		return nil
	}
	var meta ImageMetadata
	if img, ok := images.Lookup(mainID); ok {
		img.ImageID = mainID
		meta = meta.put(img)
	}

	var otherIDs []json.RawMessage
	if len(others) > 0 && json.Unmarshal(others, &otherIDs) == nil {
		for _, raw := range otherIDs {
			var id string
			if json.Unmarshal(raw, &id) != nil {
				continue
			}
			if img, ok := images.Lookup(id); ok {
				img.ImageID = id
				meta = meta.put(img)
			}
		}
	}

	if len(meta) == 0 {
		return nil
	}
	return meta
}

func firstNodeName(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var nodes []struct {
		NodeName string `json:"node_name"`
	}
	if err := json.Unmarshal(raw, &nodes); err != nil || len(nodes) == 0 {
		return ""
	}
	return nodes[0].NodeName
}

// coerceInt accepts JSON integers, integral or fractional JSON numbers (truncated)
// and decimal strings.
func coerceInt(v json.RawMessage) (int, error) {
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		n, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			return 0, fmt.Errorf("not an integer: %q", s)
		}
		return n, nil
	}

	var f float64
	if err := json.Unmarshal(v, &f); err != nil {
		return 0, fmt.Errorf("not a number: %s", truncate(string(v)))
	}
	if math.IsInf(f, 0) || math.IsNaN(f) || math.Abs(f) > math.MaxInt32 {
		return 0, fmt.Errorf("out of range: %v", f)
	}
	return int(f), nil
}

// textOf returns string values unquoted and anything else as compact JSON text
func textOf(v json.RawMessage) string {
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return s
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, v); err != nil {
		return string(v)
	}
	return buf.String()
}

func isNull(v json.RawMessage) bool {
	return len(v) == 0 || string(bytes.TrimSpace(v)) == "null"
}

func truncate(s string) string {
	if len(s) > 64 {
		return s[:64] + "..."
	}
	return s
}
