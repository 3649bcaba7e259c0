// Vimeo API implementation of [Catalog]
//
// Response types based on https://developer.vimeo.com/api/reference/videos
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/desertthunder/vmx/internal/models"
	"github.com/desertthunder/vmx/internal/shared"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

const (
	vimeoBaseURL     = "https://api.vimeo.com"
	vimeoVideosPath  = "/me/videos"
	vimeoFields      = "resource_key,name,download"
	vimeoMaxPageSize = 100
)

type vimeoPaging struct {
	Next     *string `json:"next"`
	Previous *string `json:"previous"`
	First    string  `json:"first"`
	Last     string  `json:"last"`
}

// VimeoPage is one page of the authenticated user's videos.
type VimeoPage struct {
	Total   int                  `json:"total"`
	Page    int                  `json:"page"`
	PerPage int                  `json:"per_page"`
	Paging  vimeoPaging          `json:"paging"`
	Data    []models.CatalogItem `json:"data"`
}

// VimeoService lists the videos owned by the token's account.
//
// Requests carry the access token through an [oauth2.StaticTokenSource] and are paced
// by a [rate.Limiter] so long listings stay under the API's rate limits.
type VimeoService struct {
	baseURL    *url.URL
	httpClient *http.Client
	limiter    *rate.Limiter
	pageSize   int
}

// NewVimeoService creates a catalog client from the catalog configuration.
//
// client is the base transport used underneath the token transport and may be nil.
func NewVimeoService(cfg shared.CatalogConfig, client *http.Client) (*VimeoService, error) {
	if cfg.AccessToken == "" {
		return nil, fmt.Errorf("%w: catalog access token is required", shared.ErrMissingCredentials)
	}

	raw := cfg.BaseURL
	if raw == "" {
		raw = vimeoBaseURL
	}
	base, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: catalog base url: %v", shared.ErrInvalidConfig, err)
	}

	if client == nil {
		client = http.DefaultClient
	}
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, client)
	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.AccessToken, TokenType: "bearer"})

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}

	pageSize := cfg.PageSize
	if pageSize <= 0 || pageSize > vimeoMaxPageSize {
		pageSize = vimeoMaxPageSize
	}

	return &VimeoService{
		baseURL:    base,
		httpClient: oauth2.NewClient(ctx, src),
		limiter:    rate.NewLimiter(limit, 1),
		pageSize:   pageSize,
	}, nil
}

func (v *VimeoService) Name() string {
	return "Vimeo"
}

// FetchAll pages through every video, following paging.next until it is null.
func (v *VimeoService) FetchAll(ctx context.Context) ([]models.CatalogItem, error) {
	var items []models.CatalogItem

	next := v.firstPage(v.pageSize)
	seen := make(map[string]bool)
	for next != "" {
		if seen[next] {
			return nil, fmt.Errorf("%w: paging loop at %s", shared.ErrCatalogFetch, next)
		}
		seen[next] = true

		page, err := v.Page(ctx, next)
		if err != nil {
			return nil, err
		}
		items = append(items, page.Data...)

		next = ""
		if page.Paging.Next != nil {
			next = *page.Paging.Next
		}
	}

	return items, nil
}

// Count returns the total number of videos reported by the first page.
func (v *VimeoService) Count(ctx context.Context) (int, error) {
	page, err := v.Page(ctx, v.firstPage(1))
	if err != nil {
		return 0, err
	}
	return page.Total, nil
}

// Page retrieves a single page. ref may be relative to the base URL, as returned in
// paging.next, or absolute.
func (v *VimeoService) Page(ctx context.Context, ref string) (*VimeoPage, error) {
	var page VimeoPage
	if err := v.doRequest(ctx, ref, &page); err != nil {
		return nil, fmt.Errorf("%w: %w", shared.ErrCatalogFetch, err)
	}
	return &page, nil
}

func (v *VimeoService) firstPage(perPage int) string {
	q := url.Values{}
	q.Set("fields", vimeoFields)
	q.Set("per_page", strconv.Itoa(perPage))
	q.Set("page", "1")
	return vimeoVideosPath + "?" + q.Encode()
}

// doRequest performs an authenticated GET against the API and decodes the JSON body.
func (v *VimeoService) doRequest(ctx context.Context, ref string, result any) error {
	rel, err := url.Parse(ref)
	if err != nil {
		return fmt.Errorf("invalid page reference %q: %w", ref, err)
	}
	apiURL := v.baseURL.ResolveReference(rel)

	if err := v.limiter.Wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.vimeo.*+json;version=3.4")

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: vimeo API status %d", shared.ErrBadStatus, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}
