package commerce

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

const apiPath = "/wp-json/wc/v3"

// WooClient is a WooCommerce REST client for one store. Requests are
// rate-limited per store; retries are left to the caller.
type WooClient struct {
	http    *resty.Client
	limiter *rate.Limiter
}

func NewWooClient(c Credentials, rps float64, timeout time.Duration) *WooClient {
	if rps <= 0 {
		rps = 5
	}
	h := resty.New().
		SetBaseURL(strings.TrimRight(c.StoreURL, "/")+apiPath).
		SetBasicAuth(c.ConsumerKey, c.ConsumerSecret).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
	return &WooClient{
		http:    h,
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
	}
}

func (c *WooClient) GetProduct(ctx context.Context, id int64) (*Product, error) {
	var p Product
	if err := c.do(ctx, http.MethodGet, "/products/"+strconv.FormatInt(id, 10), nil, &p); err != nil {
		return nil, fmt.Errorf("get product %d: %w", id, err)
	}
	return &p, nil
}

func (c *WooClient) UpdateProduct(ctx context.Context, id int64, u StockUpdate) (*Product, error) {
	var p Product
	if err := c.do(ctx, http.MethodPut, "/products/"+strconv.FormatInt(id, 10), u, &p); err != nil {
		return nil, fmt.Errorf("update product %d: %w", id, err)
	}
	return &p, nil
}

// GetVariations pages through every variation of parentID.
func (c *WooClient) GetVariations(ctx context.Context, parentID int64) ([]Variation, error) {
	const perPage = 100
	var out []Variation
	for page := 1; ; page++ {
		var batch []Variation
		path := fmt.Sprintf("/products/%d/variations?per_page=%d&page=%d", parentID, perPage, page)
		if err := c.do(ctx, http.MethodGet, path, nil, &batch); err != nil {
			return nil, fmt.Errorf("get variations of %d: %w", parentID, err)
		}
		out = append(out, batch...)
		if len(batch) < perPage {
			return out, nil
		}
	}
}

func (c *WooClient) UpdateVariation(ctx context.Context, parentID, id int64, u StockUpdate) (*Variation, error) {
	var v Variation
	path := fmt.Sprintf("/products/%d/variations/%d", parentID, id)
	if err := c.do(ctx, http.MethodPut, path, u, &v); err != nil {
		return nil, fmt.Errorf("update variation %d/%d: %w", parentID, id, err)
	}
	return &v, nil
}

func (c *WooClient) do(ctx context.Context, method, path string, body, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	apiErr := &APIError{}
	req := c.http.R().SetContext(ctx).SetResult(out).SetError(apiErr)
	if body != nil {
		req.SetBody(body)
	}
	resp, err := req.Execute(method, path)
	if err != nil {
		return err
	}
	if resp.IsError() {
		apiErr.StatusCode = resp.StatusCode()
		if apiErr.StatusCode == http.StatusNotFound {
			return fmt.Errorf("%w: %v", ErrNotFound, apiErr)
		}
		return apiErr
	}
	return nil
}
