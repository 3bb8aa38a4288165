package tool

import (
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/reviewly/reviewly/internal/llm"
)

// Specs returns the tool declarations for one completion request. The set
// depends on the session: administration tools appear only for privileged
// sessions, and the reviews tool drops its product selector while a product
// is bound (the dispatcher injects the bound product instead).
func Specs(privileged, hasActiveProduct bool) []llm.Tool {
	specs := []llm.Tool{
		declare(NameSearchProduct,
			"Search for products, games, or  any items on an online store or platform based on a text query provided by the user. This function should be triggered when the user provides a description, keyword, or detail about a product, game, or group of products they are looking for.",
			searchProductSchema()),
		declare(NameReviewsByEmbedding,
			"Retrieve reviews or feedback for products, games, or any items based on a text query provided by the user. This function should be triggered when the user asks for information or reviews related to a specific product, game, or item. The query should be analyzed to identify key details about the product or item, and relevant reviews should be retrieved and presented to the user. Always start the answer with 'Based on the reviews...'",
			reviewsSchema(hasActiveProduct)),
	}

	if privileged {
		specs = append(specs,
			declare(NameGetUsers,
				"List user accounts, optionally filtered.",
				getUsersSchema()),
			declare(NameGetUser,
				"Fetch one user account by id.",
				userIDSchema()),
			declare(NameSetUserRole,
				"Change a user's role.",
				setUserRoleSchema()),
			declare(NameDeleteUser,
				"Delete a user account.",
				userIDSchema()),
			declare(NameHeatmapReport,
				"Build a heatmap of login locations, weighted by login count.",
				&jsonschema.Schema{Type: "object"}),
		)
	}

	return specs
}

// declare wraps a schema into the wire tool declaration.
func declare(name, description string, schema *jsonschema.Schema) llm.Tool {
	params, err := json.Marshal(schema)
	if err != nil {
		// Schemas are compile-time constants; failing to marshal one is a bug.
		panic(fmt.Sprintf("BUG: marshaling schema for %s: %v", name, err))
	}
	return llm.Tool{
		Type: "function",
		Function: llm.Function{
			Name:        name,
			Description: description,
			Parameters:  params,
		},
	}
}

func searchProductSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"query": {
				Type:        "string",
				Description: "Product name or description.",
			},
			"category": {
				Type:        "string",
				Description: "Main category of the product, Optional.",
			},
			"min_price": {
				Type:        "number",
				Description: "Minimum price filter for the search results. Optional.",
			},
			"max_price": {
				Type:        "number",
				Description: "Maximum price filter for the search results. Optional.",
			},
			"top_n": {
				Type:        "integer",
				Description: "The number of products to return.",
				Default:     json.RawMessage("5"),
			},
		},
		Required: []string{"query"},
	}
}

func reviewsSchema(hasActiveProduct bool) *jsonschema.Schema {
	schema := &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"query_text": {
				Type:        "string",
				Description: "User query about the product.",
			},
		},
		Required: []string{"query_text"},
	}

	if !hasActiveProduct {
		schema.Properties["product_name_or_description"] = &jsonschema.Schema{
			Type:        "string",
			Description: "Product name or description.",
		}
		schema.Required = append(schema.Required, "product_name_or_description")
	}

	return schema
}

func getUsersSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"email": {
				Type:        "string",
				Description: "Exact email match.",
			},
			"email_starts_with": {
				Type:        "string",
				Description: "Email prefix match.",
			},
			"role": {
				Type:        "string",
				Enum:        []any{"user", "admin"},
				Description: "Filter by role.",
			},
			"github_id": {
				Type:        "string",
				Description: "Exact GitHub id match.",
			},
			"has_github_id": {
				Type:        "boolean",
				Description: "true: only accounts with a GitHub id; false: only without.",
			},
			"limit": {
				Type:        "integer",
				Description: "Maximum accounts to return.",
			},
		},
	}
}

func userIDSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"user_id": {
				Type:        "integer",
				Description: "The account id.",
			},
		},
		Required: []string{"user_id"},
	}
}

func setUserRoleSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"user_id": {
				Type:        "integer",
				Description: "The account id.",
			},
			"role": {
				Type:        "string",
				Enum:        []any{"user", "admin"},
				Description: "The role to assign.",
			},
		},
		Required: []string{"user_id", "role"},
	}
}
