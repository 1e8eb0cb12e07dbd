package services

import (
	"strconv"

	"github.com/yungbote/store-composite/internal/domain/catalog"
	"github.com/yungbote/store-composite/internal/platform/apierr"
)

// fallbackMissingProductID is served as not-found even while the product
// circuit is open, so clients can exercise the fallback miss path.
const fallbackMissingProductID = 14

// FallbackProvider builds the degraded product used while the product
// breaker rejects calls. It performs no I/O.
type FallbackProvider struct {
	address string
}

func NewFallbackProvider(address string) *FallbackProvider {
	return &FallbackProvider{address: address}
}

func (f *FallbackProvider) Product(productID int) (*catalog.Product, error) {
	if productID == fallbackMissingProductID {
		return nil, apierr.NotFound("Product Id: %d not found in fallback cache!", productID)
	}
	return &catalog.Product{
		ProductID:      productID,
		Name:           "Fallback product" + strconv.Itoa(productID),
		Weight:         productID,
		ServiceAddress: f.address,
	}, nil
}
