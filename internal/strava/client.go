package strava

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

const BaseURL = "https://www.strava.com/api/v3"

// ActivitiesPerPage is the page size used when listing activities
const ActivitiesPerPage = 100

// StreamKeys are the streams needed to rebuild a GPS trace
var StreamKeys = []string{"time", "latlng", "altitude", "velocity_smooth", "distance"}

// Client is a Strava API client
type Client struct {
	httpClient  *http.Client
	baseURL     string
	rateLimiter *RateLimiter
}

// NewClient creates a client authenticated by tokenSource
func NewClient(tokenSource oauth2.TokenSource) *Client {
	return NewClientWithHTTP(oauth2.NewClient(context.Background(), tokenSource), BaseURL)
}

// NewClientWithHTTP creates a client that sends requests through httpClient
// to baseURL. Authentication is the caller's concern.
func NewClientWithHTTP(httpClient *http.Client, baseURL string) *Client {
	return &Client{
		httpClient:  httpClient,
		baseURL:     strings.TrimRight(baseURL, "/"),
		rateLimiter: NewRateLimiter(),
	}
}

// GetActivities fetches one page of the athlete's activities started
// after 'after' (zero for all)
func (c *Client) GetActivities(ctx context.Context, after time.Time, page, perPage int) ([]Activity, error) {
	params := url.Values{}
	if !after.IsZero() {
		params.Set("after", strconv.FormatInt(after.Unix(), 10))
	}
	params.Set("page", strconv.Itoa(page))
	params.Set("per_page", strconv.Itoa(perPage))

	var activities []Activity
	if err := c.getJSON(ctx, "/athlete/activities", params, &activities); err != nil {
		return nil, fmt.Errorf("listing activities: %w", err)
	}
	return activities, nil
}

// GetAllActivities pages through every activity started after 'after'.
// onProgress, when set, receives the running count after each page.
func (c *Client) GetAllActivities(ctx context.Context, after time.Time, onProgress func(fetched int)) ([]Activity, error) {
	var all []Activity
	for page := 1; ; page++ {
		activities, err := c.GetActivities(ctx, after, page, ActivitiesPerPage)
		if err != nil {
			return all, fmt.Errorf("fetching page %d: %w", page, err)
		}
		all = append(all, activities...)
		if onProgress != nil && len(activities) > 0 {
			onProgress(len(all))
		}
		if len(activities) < ActivitiesPerPage {
			return all, nil
		}
	}
}

// GetActivityStreams fetches the GPS streams of an activity
func (c *Client) GetActivityStreams(ctx context.Context, activityID int64) (*Streams, error) {
	params := url.Values{}
	params.Set("keys", strings.Join(StreamKeys, ","))
	params.Set("key_by_type", "true")

	var streams Streams
	if err := c.getJSON(ctx, fmt.Sprintf("/activities/%d/streams", activityID), params, &streams); err != nil {
		return nil, fmt.Errorf("activity %d streams: %w", activityID, err)
	}
	return &streams, nil
}

// RateLimitStatus returns the requests left in the 15 minute and daily windows
func (c *Client) RateLimitStatus() (shortRemaining, dailyRemaining int) {
	return c.rateLimiter.Status()
}

// APIError is a non-200 response from the API
type APIError struct {
	StatusCode int
	Message    string // Strava fault message, when the body carries one
	Body       string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("API error %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("API error %d: %s", e.StatusCode, e.Body)
}

// RateLimited reports whether the request was refused for exceeding a quota
func (e *APIError) RateLimited() bool {
	return e.StatusCode == http.StatusTooManyRequests
}

func newAPIError(resp *http.Response) *APIError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	apiErr := &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	var fault struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &fault) == nil {
		apiErr.Message = fault.Message
	}
	return apiErr
}

// getJSON decodes the response of a GET request into v. A request refused
// with 429 is retried once after the 15 minute window resets.
func (c *Client) getJSON(ctx context.Context, path string, params url.Values, v any) error {
	reqURL := c.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	for attempt := 0; ; attempt++ {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return err
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		c.rateLimiter.UpdateFromHeaders(resp.Header)

		if resp.StatusCode != http.StatusOK {
			apiErr := newAPIError(resp)
			resp.Body.Close()
			if apiErr.RateLimited() && attempt == 0 {
				c.rateLimiter.Exhaust()
				continue
			}
			return apiErr
		}

		err = json.NewDecoder(resp.Body).Decode(v)
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("decoding %s: %w", path, err)
		}
		return nil
	}
}
