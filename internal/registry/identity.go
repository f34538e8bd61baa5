package registry

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"

	"github.com/gyeh/brillestotte/internal/model"
)

// SourceRegistry marks prior decisions reported by the identity registry.
const SourceRegistry = "registry"

type identityResponse struct {
	BirthDate         *string `json:"birth_date"`
	ApprovedDecisions []struct {
		ID        string `json:"id"`
		OrderDate string `json:"order_date"`
	} `json:"approved_decisions"`
}

// IdentityClient looks up birth date and earlier approvals for a person.
type IdentityClient struct {
	c client
}

// NewIdentityClient creates a client for the identity registry at baseURL.
// A nil hc gets a default fasthttp client.
func NewIdentityClient(baseURL string, hc *fasthttp.Client, opts Options, log zerolog.Logger) *IdentityClient {
	return &IdentityClient{c: newClient("identity-registry", baseURL, hc, opts, log)}
}

// BirthDateAndPriorDecisions returns what the registry knows about the
// person. An unknown person yields an empty Identity, which leaves the
// birth date unknown.
func (ic *IdentityClient) BirthDateAndPriorDecisions(ctx context.Context, beneficiaryID string) (model.Identity, error) {
	var resp identityResponse
	err := ic.c.getJSON(ctx, "/persons/"+url.PathEscape(beneficiaryID), &resp)
	if errors.Is(err, errNotFound) {
		ic.c.log.Info().Msg("person not found in identity registry")
		return model.Identity{}, nil
	}
	if err != nil {
		return model.Identity{}, err
	}

	var out model.Identity
	if resp.BirthDate != nil && *resp.BirthDate != "" {
		bd, err := time.Parse("2006-01-02", *resp.BirthDate)
		if err != nil {
			return model.Identity{}, fmt.Errorf("identity registry birth_date %q: %w", *resp.BirthDate, err)
		}
		out.BirthDate = &bd
	}
	for _, d := range resp.ApprovedDecisions {
		od, err := time.Parse("2006-01-02", d.OrderDate)
		if err != nil {
			return model.Identity{}, fmt.Errorf("identity registry order_date %q: %w", d.OrderDate, err)
		}
		out.PriorApprovals = append(out.PriorApprovals, model.PriorDecision{ID: d.ID, OrderDate: od, Source: SourceRegistry})
	}
	return out, nil
}
