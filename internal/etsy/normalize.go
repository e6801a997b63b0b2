package etsy

import (
	"encoding/json"
	"fmt"

	domain "github.com/donaldgifford/shopmon/pkg/types"
)

// shopPayloadShape tags the three shapes the shop endpoint is known to
// return. Resolution happens once at the transport boundary so the rest of
// the system only ever sees a normalized ShopInfo.
type shopPayloadShape int

const (
	shapeBare shopPayloadShape = iota
	shapeWrapped
	shapeList
	shapeOther
)

// normalizeShopPayload decodes a shop endpoint body that may be a bare shop
// object, a {results: [...]} wrapper, or a plain list, and returns a single
// ShopInfo. Wrapped and list forms resolve to their first element; an empty
// wrapper or list, or any other valid JSON (scalar, null), yields a zero
// ShopInfo rather than failing the cycle.
func normalizeShopPayload(body []byte) (*domain.ShopInfo, error) {
	shape, err := detectShopShape(body)
	if err != nil {
		return nil, err
	}

	switch shape {
	case shapeOther:
		return &domain.ShopInfo{}, nil

	case shapeWrapped:
		var wrapped struct {
			Results []domain.ShopInfo `json:"results"`
		}
		if err := json.Unmarshal(body, &wrapped); err != nil {
			return nil, fmt.Errorf("parsing wrapped shop payload: %w", err)
		}
		if len(wrapped.Results) == 0 {
			return &domain.ShopInfo{}, nil
		}
		return &wrapped.Results[0], nil

	case shapeList:
		var list []domain.ShopInfo
		if err := json.Unmarshal(body, &list); err != nil {
			return nil, fmt.Errorf("parsing shop list payload: %w", err)
		}
		if len(list) == 0 {
			return &domain.ShopInfo{}, nil
		}
		return &list[0], nil

	default:
		var shop domain.ShopInfo
		if err := json.Unmarshal(body, &shop); err != nil {
			return nil, fmt.Errorf("parsing shop payload: %w", err)
		}
		return &shop, nil
	}
}

func detectShopShape(body []byte) (shopPayloadShape, error) {
	var probe any
	if err := json.Unmarshal(body, &probe); err != nil {
		return shapeBare, fmt.Errorf("parsing shop payload: %w", err)
	}

	switch v := probe.(type) {
	case []any:
		return shapeList, nil
	case map[string]any:
		if _, ok := v["results"].([]any); ok {
			return shapeWrapped, nil
		}
		return shapeBare, nil
	default:
		return shapeOther, nil
	}
}
