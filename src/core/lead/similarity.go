package lead

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"leadgrid/src/infrastructure/integrations/llm"
	"leadgrid/src/infrastructure/log"
	"leadgrid/src/storage/postgres/businessctrl"
	"leadgrid/src/storage/weaviate"
)

var ErrBusinessNotFound = errors.New("business not found")

// SimilarBusiness is one similarity search hit.
type SimilarBusiness struct {
	Business *businessctrl.Business `json:"business"`
	Score    float64                `json:"score"`
}

// SimilarityService indexes lead profiles as vectors and answers "find leads
// like this one" queries, used to surface prospects resembling converted
// customers.
type SimilarityService struct {
	businesses *businessctrl.BusinessService
	sdk        *weaviate.SDK
	llmClient  *llm.Client
	model      string
}

func NewSimilarityService(businesses *businessctrl.BusinessService, sdk *weaviate.SDK, llmClient *llm.Client, model string) *SimilarityService {
	return &SimilarityService{
		businesses: businesses,
		sdk:        sdk,
		llmClient:  llmClient,
		model:      model,
	}
}

// Index embeds a business profile and stores it. Indexing is best-effort
// during scraping; a lead that fails to index is still searchable by SQL.
func (s *SimilarityService) Index(ctx context.Context, business *businessctrl.Business) error {
	vector, err := s.llmClient.GetEmbedding(ctx, s.model, profileText(business))
	if err != nil {
		return fmt.Errorf("failed to embed business profile: %w", err)
	}

	return s.sdk.AddVector(ctx, weaviate.BusinessClass, weaviate.VectorObject{
		Vector: vector,
		Properties: map[string]interface{}{
			"businessId": strconv.FormatInt(business.ID, 10),
			"name":       business.Name,
			"category":   business.Category,
			"region":     business.Region,
		},
	})
}

// Search returns businesses whose profile is close to the free-text query.
func (s *SimilarityService) Search(ctx context.Context, query string, limit int) ([]SimilarBusiness, error) {
	vector, err := s.llmClient.GetEmbedding(ctx, s.model, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	hits, err := s.sdk.QueryVectors(ctx, weaviate.BusinessClass, vector, weaviate.QueryConfig{
		Fields: []string{"businessId", "name"},
		Limit:  limit,
	})
	if err != nil {
		return nil, err
	}

	var results []SimilarBusiness
	for _, hit := range hits {
		idStr, _ := hit.Properties["businessId"].(string)
		id, err := strconv.ParseInt(idStr, 10, 64)
		if err != nil {
			continue
		}

		business, err := s.businesses.GetByID(ctx, id)
		if err != nil {
			log.Error(err, "failed to load business for similarity hit", "business_id", id)
			continue
		}
		if business == nil {
			// Vector outlived the row; skip it.
			continue
		}

		results = append(results, SimilarBusiness{
			Business: business,
			Score:    hit.Score,
		})
	}

	return results, nil
}

func profileText(business *businessctrl.Business) string {
	parts := []string{business.Name}
	if business.Category != "" {
		parts = append(parts, business.Category)
	}
	if business.Region != "" {
		parts = append(parts, business.Region)
	}
	if business.SiteText != "" {
		parts = append(parts, business.SiteText)
	}
	return strings.Join(parts, "\n")
}
