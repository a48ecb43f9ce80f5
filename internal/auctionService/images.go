package auction

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"vehicle-auction/internal/biddingerrors"
)

// MaxImages is the largest number of gallery images one auction may carry
const MaxImages = 8

// descriptor keys checked in order when an image is sent as an object
var imageKeys = []string{"dataUrl", "data_url", "url", "uri"}

// NormalizeImages accepts a string, an object, or a list of either and
// returns the trimmed, non-empty image references.
func NormalizeImages(raw json.RawMessage) ([]string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return []string{}, nil
	}

	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, biddingerrors.Validation("Images must be provided as a list")
	}

	var items []any
	switch v := decoded.(type) {
	case string, map[string]any:
		items = []any{v}
	case []any:
		items = v
	default:
		return nil, biddingerrors.Validation("Images must be provided as a list")
	}

	normalized := make([]string, 0, len(items))
	for _, item := range items {
		if isEmpty(item) {
			continue
		}

		if obj, ok := item.(map[string]any); ok {
			item = nil
			for _, key := range imageKeys {
				if !isEmpty(obj[key]) {
					item = obj[key]
					break
				}
			}
			if item == nil {
				return nil, biddingerrors.Validation("Each image must include a usable string value")
			}
		}

		value, ok := item.(string)
		if !ok {
			return nil, biddingerrors.Validation("Each image must be a string value")
		}
		if value = strings.TrimSpace(value); value != "" {
			normalized = append(normalized, value)
		}
	}

	if len(normalized) > MaxImages {
		return nil, biddingerrors.Validation(fmt.Sprintf("A maximum of %d images is allowed per auction", MaxImages))
	}
	return normalized, nil
}

// NormalizeSingleImage requires the payload to normalize to exactly one image
func NormalizeSingleImage(raw json.RawMessage, field string) (string, error) {
	images, err := NormalizeImages(raw)
	if err != nil {
		return "", err
	}
	switch len(images) {
	case 0:
		return "", biddingerrors.Validation("Missing " + field)
	case 1:
		return images[0], nil
	default:
		return "", biddingerrors.Validation(fmt.Sprintf("Only one %s can be provided", field))
	}
}

// isEmpty mirrors JSON falsiness: null, "", false, 0, {} and [] carry no image
func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case bool:
		return !t
	case float64:
		return t == 0
	case map[string]any:
		return len(t) == 0
	case []any:
		return len(t) == 0
	}
	return false
}
