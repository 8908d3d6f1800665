package lastfm

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// Base represents the root XML response from Last.fm API.
type Base struct {
	XMLName xml.Name `xml:"lfm"`
	Status  string   `xml:"status,attr"`
	Inner   []byte   `xml:",innerxml"`
}

// APIError represents an error element in an XML response.
type APIError struct {
	Code    int    `xml:"code,attr"`
	Message string `xml:",chardata"`
}

// jsonError is the error envelope returned for format=json requests.
type jsonError struct {
	Error   int    `json:"error"`
	Message string `json:"message"`
}

const (
	apiStatusOK     = "ok"
	apiStatusFailed = "failed"

	// maxResponseSize caps how much of a response body is read.
	maxResponseSize = 1 << 20
)

// signedParams returns a copy of params with method, api_key and api_sig set.
func (c *Client) signedParams(method string, params map[string]string) map[string]string {
	reqParams := make(map[string]string, len(params)+3)
	for k, v := range params {
		reqParams[k] = v
	}
	reqParams["method"] = method
	reqParams["api_key"] = c.apiKey
	reqParams[paramSignature] = Sign(reqParams, c.apiSecret)
	return reqParams
}

// get makes a signed GET request with format=json and returns the raw JSON body.
func (c *Client) get(ctx context.Context, method string, params map[string]string) ([]byte, error) {
	reqParams := c.signedParams(method, params)
	reqParams[paramFormat] = "json"

	query := url.Values{}
	for k, v := range reqParams {
		query.Set(k, v)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	body, err := c.do(req, method, decodeJSONError)
	if err != nil {
		return nil, err
	}

	if apiErr := decodeJSONError(body); apiErr != nil {
		return nil, apiErr
	}

	return body, nil
}

// post makes a signed form POST and returns the inner XML of the <lfm> element.
func (c *Client) post(ctx context.Context, method string, params map[string]string) ([]byte, error) {
	reqParams := c.signedParams(method, params)

	formData := url.Values{}
	for k, v := range reqParams {
		formData.Set(k, v)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, strings.NewReader(formData.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	body, err := c.do(req, method, decodeXMLError)
	if err != nil {
		return nil, err
	}

	var base Base
	if err := xml.Unmarshal(body, &base); err != nil {
		return nil, fmt.Errorf("failed to parse XML response: %w", err)
	}

	if base.Status == apiStatusFailed {
		if apiErr := decodeXMLError(body); apiErr != nil {
			return nil, apiErr
		}
		return nil, fmt.Errorf("failed to parse error response for %s", method)
	}
	if base.Status != apiStatusOK {
		return nil, fmt.Errorf("unexpected response status %q", base.Status)
	}

	return base.Inner, nil
}

// do sends req exactly once and returns the response body.
//
// Non-200 responses become *HTTPError, with the API error decoded from
// the body when decodeErr recognises it.
func (c *Client) do(req *http.Request, method string, decodeErr func([]byte) *Error) ([]byte, error) {
	req.Header.Set("User-Agent", userAgent)

	c.logger.Debug().Str("method", method).Msg("Calling Last.fm")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &HTTPError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			API:        decodeErr(body),
		}
	}

	c.logger.Debug().Str("method", method).Int("status", resp.StatusCode).Msg("Last.fm call succeeded")
	return body, nil
}

// decodeJSONError returns the API error carried by a JSON body, or nil.
func decodeJSONError(body []byte) *Error {
	var e jsonError
	if err := json.Unmarshal(body, &e); err != nil || e.Error == 0 {
		return nil
	}
	return &Error{Code: e.Error, Message: e.Message}
}

// decodeXMLError returns the API error carried by an XML body, or nil.
func decodeXMLError(body []byte) *Error {
	var base Base
	if err := xml.Unmarshal(body, &base); err != nil || base.Status != apiStatusFailed {
		return nil
	}

	var apiErr APIError
	if err := xml.Unmarshal(base.Inner, &apiErr); err != nil {
		return nil
	}
	return &Error{Code: apiErr.Code, Message: strings.TrimSpace(apiErr.Message)}
}
