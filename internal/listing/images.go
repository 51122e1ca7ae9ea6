package listing

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ImageMetadata maps image ids to their records. It encodes as a JSON object
// whose keys keep insertion order, so the main image is written first.
type ImageMetadata []ImageRecord

// Get returns the record for imageID
func (m ImageMetadata) Get(imageID string) (ImageRecord, bool) {
	for _, img := range m {
		if img.ImageID == imageID {
			return img, true
		}
	}
	return ImageRecord{}, false
}

// put adds img, replacing an earlier record with the same id in place
func (m ImageMetadata) put(img ImageRecord) ImageMetadata {
	for i := range m {
		if m[i].ImageID == img.ImageID {
			m[i] = img
			return m
		}
	}
	return append(m, img)
}

func (m ImageMetadata) MarshalJSON() ([]byte, error) {
	if m == nil {
		return []byte("null"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, img := range m {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(img.ImageID)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := json.Marshal(img)
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (m *ImageMetadata) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*m = nil
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return errors.New("image_metadata: expected a JSON object")
	}

	out := ImageMetadata{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		id, _ := tok.(string)
		var img ImageRecord
		if err := dec.Decode(&img); err != nil {
			return fmt.Errorf("image_metadata %s: %w", id, err)
		}
		img.ImageID = id
		out = out.put(img)
	}
	*m = out
	return nil
}
