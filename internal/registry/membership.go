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

type membershipResponse struct {
	Result string `json:"result"`
}

// MembershipClient checks scheme membership on a given date.
type MembershipClient struct {
	c client
}

// NewMembershipClient creates a client for the membership registry at baseURL.
func NewMembershipClient(baseURL string, hc *fasthttp.Client, opts Options, log zerolog.Logger) *MembershipClient {
	return &MembershipClient{c: newClient("membership-registry", baseURL, hc, opts, log)}
}

// CheckMembership returns the membership outcome on orderDate. A person the
// registry does not know is UNDETERMINED.
func (mc *MembershipClient) CheckMembership(ctx context.Context, beneficiaryID string, orderDate time.Time) (model.Membership, error) {
	var resp membershipResponse
	path := "/membership/" + url.PathEscape(beneficiaryID) + "?date=" + orderDate.Format("2006-01-02")
	err := mc.c.getJSON(ctx, path, &resp)
	if errors.Is(err, errNotFound) {
		return model.MembershipUndetermined, nil
	}
	if err != nil {
		return "", err
	}

	switch m := model.Membership(resp.Result); m {
	case model.MembershipProven, model.MembershipDisproven, model.MembershipUndetermined:
		return m, nil
	default:
		return "", fmt.Errorf("membership registry returned unknown result %q", resp.Result)
	}
}
