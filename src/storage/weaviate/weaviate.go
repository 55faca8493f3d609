package weaviate

import (
	"context"
	"fmt"

	"github.com/weaviate/weaviate-go-client/v4/weaviate"
	"github.com/weaviate/weaviate-go-client/v4/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"
)

// BusinessClass is the Weaviate class holding one object per lead, vectorized
// from the business profile text. Vectors are supplied by us, not a module.
const BusinessClass = "BusinessProfile"

// SDK encapsulates all Weaviate operations
type SDK struct {
	client *weaviate.Client
}

// NewSDK creates a new instance of SDK
func NewSDK(client *weaviate.Client) *SDK {
	return &SDK{
		client: client,
	}
}

// EnsureBusinessClass creates the lead profile class if it does not exist.
func (w *SDK) EnsureBusinessClass(ctx context.Context) error {
	exists, err := w.classExists(ctx, BusinessClass)
	if err != nil {
		return fmt.Errorf("failed to check if class exists: %v", err)
	}
	if exists {
		return nil
	}

	class := &models.Class{
		Class: BusinessClass,
		Properties: []*models.Property{
			{Name: "businessId", DataType: []string{"text"}},
			{Name: "name", DataType: []string{"text"}},
			{Name: "category", DataType: []string{"text"}},
			{Name: "region", DataType: []string{"text"}},
		},
		Vectorizer: "none",
	}

	err = w.client.Schema().ClassCreator().WithClass(class).Do(ctx)
	if err != nil {
		return fmt.Errorf("failed to create Weaviate class: %v", err)
	}

	return nil
}

// classExists checks if a class exists in the schema
func (w *SDK) classExists(ctx context.Context, className string) (bool, error) {
	schema, err := w.client.Schema().Getter().Do(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to get schema: %v", err)
	}

	for _, class := range schema.Classes {
		if class.Class == className {
			return true, nil
		}
	}

	return false, nil
}

// VectorObject represents a single object with its vector and properties
type VectorObject struct {
	Vector     []float32
	Properties map[string]interface{}
}

// AddVector adds a single vector object to a class
func (w *SDK) AddVector(ctx context.Context, className string, object VectorObject) error {
	_, err := w.client.Data().Creator().
		WithClassName(className).
		WithProperties(object.Properties).
		WithVector(object.Vector).
		Do(ctx)

	if err != nil {
		return fmt.Errorf("failed to add vector: %v", err)
	}

	return nil
}

// QueryConfig represents configuration for vector similarity search
type QueryConfig struct {
	Fields   []string // Fields to return in the result
	Limit    int      // Maximum number of results
	Distance float64  // Optional distance threshold
}

const DefaultQueryLimit = 20

// QueryResult represents a single result from vector similarity search
type QueryResult struct {
	ID         string
	Score      float64 // Distance score, lower is closer
	Properties map[string]interface{}
}

// QueryVectors performs vector similarity search in a class
func (w *SDK) QueryVectors(ctx context.Context, className string, vector []float32, config QueryConfig) ([]QueryResult, error) {
	// Convert string fields to GraphQL fields
	fields := make([]graphql.Field, len(config.Fields))
	for i, field := range config.Fields {
		fields[i] = graphql.Field{Name: field}
	}
	// Add _additional field for metadata
	fields = append(fields, graphql.Field{Name: "_additional { id distance }"})

	nearVectorBuilder := w.client.GraphQL().NearVectorArgBuilder().
		WithVector(vector)

	if config.Distance > 0 {
		nearVectorBuilder.WithDistance(float32(config.Distance))
	}

	if config.Limit <= 0 {
		config.Limit = DefaultQueryLimit
	}

	result, err := w.client.GraphQL().Get().
		WithClassName(className).
		WithFields(fields...).
		WithNearVector(nearVectorBuilder).
		WithLimit(config.Limit).
		Do(ctx)

	if err != nil {
		return nil, fmt.Errorf("failed to query vectors: %v", err)
	}

	// Parse results
	var queryResults []QueryResult
	if data, ok := result.Data["Get"].(map[string]interface{}); ok {
		if objects, ok := data[className].([]interface{}); ok {
			for _, obj := range objects {
				objMap, ok := obj.(map[string]interface{})
				if !ok {
					continue
				}
				additional, ok := objMap["_additional"].(map[string]interface{})
				if !ok {
					continue
				}

				// Create properties map excluding _additional
				properties := make(map[string]interface{})
				for k, v := range objMap {
					if k != "_additional" {
						properties[k] = v
					}
				}

				id, _ := additional["id"].(string)
				score, _ := additional["distance"].(float64)
				queryResults = append(queryResults, QueryResult{
					ID:         id,
					Score:      score,
					Properties: properties,
				})
			}
		}
	}

	return queryResults, nil
}

// DeleteVector deletes a vector object from a class by its auto-generated ID
func (w *SDK) DeleteVector(ctx context.Context, className string, id string) error {
	err := w.client.Data().Deleter().
		WithClassName(className).
		WithID(id).
		Do(ctx)

	if err != nil {
		return fmt.Errorf("failed to delete vector: %v", err)
	}

	return nil
}
