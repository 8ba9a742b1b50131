package compost

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/mamadbah2/compost/internal/domain/models"
)

// Client exposes the admin operations of the composting API.
type Client interface {
	Restore(ctx context.Context, req models.RestorationRequest) (*models.RestorationResponse, error)
	AdvanceFacility(ctx context.Context, facilityCode, cycle string) (*models.WeeklyAdvanceReport, error)
	Certify(ctx context.Context, batchID string) (*models.Certification, error)
	Verify(ctx context.Context, batchID string) (*models.Verification, error)
}

// APIClient is a resty-backed implementation of Client.
type APIClient struct {
	httpClient *resty.Client
}

// NewClient builds an API client for the server at baseURL.
func NewClient(baseURL string, timeout time.Duration) *APIClient {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	restyClient := resty.New()
	restyClient.
		SetBaseURL(strings.TrimSuffix(baseURL, "/")).
		SetHeader("Content-Type", "application/json").
		SetTimeout(timeout)

	return &APIClient{httpClient: restyClient}
}

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status  int
	Kind    string
	Message string
}

func (e *APIError) Error() string {
	if e.Kind != "" {
		return fmt.Sprintf("compost api error: status=%d, kind=%s, message=%s", e.Status, e.Kind, e.Message)
	}
	return fmt.Sprintf("compost api error: status=%d, message=%s", e.Status, e.Message)
}

// errorBody matches both the plain error body and the restoration failure envelope.
type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func (c *APIClient) Restore(ctx context.Context, req models.RestorationRequest) (*models.RestorationResponse, error) {
	result := new(models.RestorationResponse)
	if err := c.post(ctx, "/restorations", req, result); err != nil {
		return nil, fmt.Errorf("restore facility %s: %w", req.FacilityCode, err)
	}
	return result, nil
}

func (c *APIClient) AdvanceFacility(ctx context.Context, facilityCode, cycle string) (*models.WeeklyAdvanceReport, error) {
	result := new(models.WeeklyAdvanceReport)
	path := fmt.Sprintf("/facilities/%s/advance", url.PathEscape(facilityCode))
	if err := c.post(ctx, path, models.WeeklyAdvanceRequest{Cycle: cycle}, result); err != nil {
		return nil, fmt.Errorf("advance facility %s: %w", facilityCode, err)
	}
	return result, nil
}

func (c *APIClient) Certify(ctx context.Context, batchID string) (*models.Certification, error) {
	result := new(models.Certification)
	path := fmt.Sprintf("/batches/%s/certify", url.PathEscape(batchID))
	if err := c.post(ctx, path, nil, result); err != nil {
		return nil, fmt.Errorf("certify batch %s: %w", batchID, err)
	}
	return result, nil
}

func (c *APIClient) Verify(ctx context.Context, batchID string) (*models.Verification, error) {
	result := new(models.Verification)
	apiErr := new(errorBody)

	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetResult(result).
		SetError(apiErr).
		Get(fmt.Sprintf("/batches/%s/verify", url.PathEscape(batchID)))
	if err != nil {
		return nil, fmt.Errorf("verify batch %s: %w", batchID, err)
	}
	if err := checkStatus(resp, apiErr); err != nil {
		return nil, fmt.Errorf("verify batch %s: %w", batchID, err)
	}
	return result, nil
}

func (c *APIClient) post(ctx context.Context, path string, body, result any) error {
	apiErr := new(errorBody)

	req := c.httpClient.R().
		SetContext(ctx).
		SetResult(result).
		SetError(apiErr)
	if body != nil {
		req.SetBody(body)
	}

	resp, err := req.Post(path)
	if err != nil {
		return err
	}
	return checkStatus(resp, apiErr)
}

func checkStatus(resp *resty.Response, apiErr *errorBody) error {
	if resp.StatusCode() < http.StatusBadRequest {
		return nil
	}
	out := &APIError{Status: resp.StatusCode()}
	if apiErr != nil {
		out.Message = apiErr.Error
		out.Kind = apiErr.Kind
	}
	if out.Message == "" {
		out.Message = http.StatusText(out.Status)
	}
	return out
}
