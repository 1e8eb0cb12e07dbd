package catalog

type RecommendationSummary struct {
	RecommendationID int    `json:"recommendationId"`
	Author           string `json:"author"`
	Rate             int    `json:"rate"`
	Content          string `json:"content"`
}

type ReviewSummary struct {
	ReviewID int    `json:"reviewId"`
	Author   string `json:"author"`
	Subject  string `json:"subject"`
	Content  string `json:"content"`
}

// ServiceAddresses names the instance that served each part of a response.
type ServiceAddresses struct {
	StoreService          string `json:"storeService"`
	ProductService        string `json:"productService"`
	ReviewService         string `json:"reviewService"`
	RecommendationService string `json:"recommendationService"`
}

// ProductAggregate is the composite read model. A nil summary list means the
// list was absent; an empty one means the backend reported none.
type ProductAggregate struct {
	ProductID        int                     `json:"productId"`
	Name             string                  `json:"name"`
	Weight           int                     `json:"weight"`
	Recommendations  []RecommendationSummary `json:"recommendations"`
	Reviews          []ReviewSummary         `json:"reviews"`
	ServiceAddresses *ServiceAddresses       `json:"serviceAddresses,omitempty"`
}

func (r Recommendation) Summary() RecommendationSummary {
	return RecommendationSummary{
		RecommendationID: r.RecommendationID,
		Author:           r.Author,
		Rate:             r.Rate,
		Content:          r.Content,
	}
}

func (r Review) Summary() ReviewSummary {
	return ReviewSummary{
		ReviewID: r.ReviewID,
		Author:   r.Author,
		Subject:  r.Subject,
		Content:  r.Content,
	}
}

// Product returns the primary entity carried by a write body.
func (a ProductAggregate) Product() Product {
	return Product{ProductID: a.ProductID, Name: a.Name, Weight: a.Weight}
}

func (s RecommendationSummary) ForProduct(productID int) Recommendation {
	return Recommendation{
		ProductID:        productID,
		RecommendationID: s.RecommendationID,
		Author:           s.Author,
		Rate:             s.Rate,
		Content:          s.Content,
	}
}

func (s ReviewSummary) ForProduct(productID int) Review {
	return Review{
		ProductID: productID,
		ReviewID:  s.ReviewID,
		Author:    s.Author,
		Subject:   s.Subject,
		Content:   s.Content,
	}
}

// NewAggregate merges the three reads. Summary order follows input order and
// secondary addresses come from the first element of each list.
func NewAggregate(p Product, recs []Recommendation, revs []Review, storeAddress string) ProductAggregate {
	recSummaries := make([]RecommendationSummary, 0, len(recs))
	for _, r := range recs {
		recSummaries = append(recSummaries, r.Summary())
	}
	revSummaries := make([]ReviewSummary, 0, len(revs))
	for _, r := range revs {
		revSummaries = append(revSummaries, r.Summary())
	}

	addrs := ServiceAddresses{
		StoreService:   storeAddress,
		ProductService: p.ServiceAddress,
	}
	if len(recs) > 0 {
		addrs.RecommendationService = recs[0].ServiceAddress
	}
	if len(revs) > 0 {
		addrs.ReviewService = revs[0].ServiceAddress
	}

	return ProductAggregate{
		ProductID:        p.ProductID,
		Name:             p.Name,
		Weight:           p.Weight,
		Recommendations:  recSummaries,
		Reviews:          revSummaries,
		ServiceAddresses: &addrs,
	}
}
