package domain

import (
	"github.com/yungbote/store-composite/internal/domain/catalog"
	"github.com/yungbote/store-composite/internal/domain/events"
)

type (
	Product               = catalog.Product
	Recommendation        = catalog.Recommendation
	Review                = catalog.Review
	RecommendationSummary = catalog.RecommendationSummary
	ReviewSummary         = catalog.ReviewSummary
	ServiceAddresses      = catalog.ServiceAddresses
	ProductAggregate      = catalog.ProductAggregate

	EventType      = events.Type
	EventEnvelope  = events.Envelope
	PublishedEvent = events.PublishedEvent
)

const (
	EventCreate = events.TypeCreate
	EventDelete = events.TypeDelete
)
