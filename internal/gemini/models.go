package gemini

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

const (
	ModelFlash20     = "gemini-2.0-flash"
	ModelPro3Preview = "gemini-3-pro-preview"

	DefaultModel = ModelFlash20
)

// Model describes a selectable generation model
type Model struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Catalogue lists the models offered to users, default first
var Catalogue = []Model{
	{ID: ModelFlash20, Name: "Gemini 2.0 Flash", Description: "Fast and cost-efficient. Good default for most sessions."},
	{ID: ModelPro3Preview, Name: "Gemini 3 Pro (Preview)", Description: "Deeper reasoning for long or complex matches. Slower."},
}

// LookupModel reports whether id is in the catalogue
func LookupModel(id string) (Model, bool) {
	for _, m := range Catalogue {
		if m.ID == id {
			return m, true
		}
	}
	return Model{}, false
}

// ResolveModel returns id, or the default model when id is empty
func ResolveModel(id string) string {
	if id == "" {
		return DefaultModel
	}
	return id
}

// CheckKey reports whether the configured key can read the model's metadata.
// A non-2xx answer is a plain false; only transport failures return an error.
func (c *Client) CheckKey(ctx context.Context, model string) (bool, error) {
	path := "models/" + url.PathEscape(ResolveModel(model))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(c.cfg.BaseURL, path), nil)
	if err != nil {
		return false, fmt.Errorf("failed to create request: %w", err)
	}

	resp, _, err := c.do(req)
	if err != nil {
		return false, fmt.Errorf("failed to check key: %w", err)
	}
	return isSuccess(resp.StatusCode), nil
}
