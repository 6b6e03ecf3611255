// Package httpapi reads postings from a paginated JSON listing API in the
// style of api.hh.ru: bearer token, page/per_page parameters and an items
// envelope with pages and page counters.
package httpapi

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spigell/job-seeker/internal/domain"
	"github.com/spigell/job-seeker/internal/source"

	"go.uber.org/zap"
)

const (
	apiURL          = "https://api.hh.ru"
	searchPath      = "/vacancies"
	userAgent       = "spigell/job-seeker (spigelly@gmail.com)"
	contentType     = "application/json"
	contentEncoding = "gzip"
	// Max value for search per page.
	defaultPerPage = 100
)

type Client struct {
	token  string
	logger *zap.Logger

	HTTPClient *http.Client
	UserAgent  string
	APIURL     string
	SearchPath string
	PerPage    int
}

var _ source.Source = (*Client)(nil)

func New(token string, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		token:  token,
		logger: logger,
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		UserAgent:  userAgent,
		APIURL:     apiURL,
		SearchPath: searchPath,
		PerPage:    defaultPerPage,
	}
}

type itemResponse struct {
	Items   []map[string]any `json:"items"`
	Found   int              `json:"found"`
	Pages   int              `json:"pages"`
	Page    int              `json:"page"`
	PerPage int              `json:"per_page"`
}

// Fetch requests the page the cursor points to.
func (c *Client) Fetch(ctx context.Context, q source.Query, cur domain.Cursor) (source.Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(c.APIURL, "/")+c.SearchPath, nil)
	if err != nil {
		return source.Page{}, err
	}

	c.setHeaders(req)
	req.URL.RawQuery = c.buildParams(q, cur.Page).Encode()

	resp, err := c.request(req)
	if err != nil {
		return source.Page{}, err
	}
	defer resp.Body.Close()

	response, err := c.parseItemResponse(resp)
	if err != nil {
		return source.Page{}, err
	}

	c.logger.Debug("got response from upstream",
		zap.String("query", q.Key),
		zap.Int("page", response.Page),
		zap.Int("pages", response.Pages),
		zap.Int("found", response.Found),
	)

	vacancies, err := decodeVacancies(response.Items)
	if err != nil {
		return source.Page{}, fmt.Errorf("decoding items of query %s: %w", q.Key, err)
	}

	postings := make([]domain.Posting, 0, len(vacancies))
	for _, v := range vacancies {
		if v.ID == "" {
			continue
		}
		p := v.toPosting()
		p.Query = q.Key
		postings = append(postings, p)
	}

	next, more := source.NextCursor(q, cur, postings, response.Page < response.Pages-1)

	return source.Page{Postings: postings, Next: next, HasMore: more}, nil
}

func (c *Client) buildParams(q source.Query, page int) url.Values {
	params := url.Values{}
	if q.Keywords != "" {
		params.Set("text", q.Keywords)
	}
	if q.Location != "" {
		params.Set("area", q.Location)
	}
	if id := experienceID(q.Experience); id != "" {
		params.Set("experience", id)
	}
	params.Set("per_page", strconv.Itoa(c.PerPage))
	params.Set("page", strconv.Itoa(page))
	return params
}

func (c *Client) parseItemResponse(resp *http.Response) (*itemResponse, error) {
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &source.RateLimitedError{RetryAfter: retryAfter(resp.Header.Get("Retry-After"))}
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: %s", source.ErrAuthRequired, resp.Status)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("bad status: %s", resp.Status)
	}

	var body io.Reader = resp.Body
	if resp.Header.Get("Content-Encoding") == "gzip" {
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, err
		}
		defer gz.Close()
		body = gz
	}

	var response itemResponse
	if err := json.NewDecoder(body).Decode(&response); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	return &response, nil
}

func (c *Client) request(req *http.Request) (*http.Response, error) {
	c.logger.Debug("make request", zap.String("url", req.URL.String()))
	return c.HTTPClient.Do(req)
}

func (c *Client) setHeaders(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.token))
	}
	req.Header.Set("User-Agent", c.UserAgent)
	req.Header.Set("Accept-Encoding", contentEncoding)
	req.Header.Set("Content-Type", contentType)
}

// retryAfter understands both delta-seconds and HTTP-date values.
func retryAfter(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}
