// Package restapi executes OAuth1-signed requests against the listing
// service's XML REST API.
//
// The package knows about resource path templates, XML and multipart request
// bodies and the service's error documents. It does not know about any
// particular resource; see package gateway for the attachment resources.
package restapi

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/dghubble/oauth1"
	"github.com/dmitrijs2005/estatesync/internal/logging"
	"github.com/dmitrijs2005/estatesync/internal/schema"
)

const xmlContentType = "application/xml"

// Credentials are the OAuth1 consumer and access token pairs.
type Credentials struct {
	ConsumerKey       string
	ConsumerSecret    string
	AccessToken       string
	AccessTokenSecret string
}

// NewOAuthHTTPClient returns an *http.Client that signs every request with
// HMAC-SHA1 OAuth1 parameters.
func NewOAuthHTTPClient(ctx context.Context, c Credentials, timeout time.Duration) *http.Client {
	cfg := oauth1.NewConfig(c.ConsumerKey, c.ConsumerSecret)
	hc := cfg.Client(ctx, oauth1.NewToken(c.AccessToken, c.AccessTokenSecret))
	hc.Timeout = timeout
	return hc
}

// Part is one section of a multipart/form-data body.
type Part struct {
	Name        string
	FileName    string
	ContentType string
	Data        []byte
}

// Request describes one call. Path is a template relative to the base URL
// whose {name} segments are substituted from Params.
type Request struct {
	Method string
	Path   string
	Params map[string]string
	Query  url.Values

	// Body is sent as application/xml unless Parts is set.
	Body  []byte
	Parts []Part
}

// Response is a successful (status < 400) response.
type Response struct {
	StatusCode int
	Body       []byte
}

// Messages decodes the body as a messages document.
func (r *Response) Messages() ([]schema.Message, error) {
	return schema.DecodeMessages(r.Body)
}

type Client struct {
	baseURL *url.URL
	http    *http.Client
	logger  logging.Logger
}

// NewClient binds a client to baseURL, e.g.
// https://rest.immobilienscout24.de/restapi/api/offer/v1.0/.
func NewClient(baseURL string, httpClient *http.Client, logger logging.Logger) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &Client{baseURL: u, http: httpClient, logger: logger}, nil
}

var pathParam = regexp.MustCompile(`\{([a-zA-Z0-9_]+)\}`)

// ExpandPath substitutes {name} segments, escaping each value.
func ExpandPath(tmpl string, params map[string]string) (string, error) {
	var missing []string
	out := pathParam.ReplaceAllStringFunc(tmpl, func(m string) string {
		name := m[1 : len(m)-1]
		v, ok := params[name]
		if !ok || v == "" {
			missing = append(missing, name)
			return m
		}
		return url.PathEscape(v)
	})
	if len(missing) > 0 {
		return "", fmt.Errorf("missing path parameters %v in %q", missing, tmpl)
	}
	return out, nil
}

// Do sends req. Transport failures wrap ErrTransport; statuses >= 400 are
// returned as *APIError carrying the service messages.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	p, err := ExpandPath(req.Path, req.Params)
	if err != nil {
		return nil, err
	}
	ref, err := url.Parse(p)
	if err != nil {
		return nil, fmt.Errorf("parse path %q: %w", p, err)
	}
	u := c.baseURL.ResolveReference(ref)
	if len(req.Query) > 0 {
		u.RawQuery = req.Query.Encode()
	}

	body, contentType, err := encodeBody(req)
	if err != nil {
		return nil, err
	}

	hr, err := http.NewRequestWithContext(ctx, req.Method, u.String(), body)
	if err != nil {
		return nil, err
	}
	hr.Header.Set("Accept", xmlContentType)
	if contentType != "" {
		hr.Header.Set("Content-Type", contentType)
	}

	start := time.Now()
	resp, err := c.http.Do(hr)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %w", ErrTransport, req.Method, p, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s %s: %w", ErrTransport, req.Method, p, err)
	}

	c.logger.Debug(ctx, "rest call", "method", req.Method, "path", p,
		"status", resp.StatusCode, "elapsed", time.Since(start))

	if resp.StatusCode >= 400 {
		// Error bodies are usually messages documents; anything else is
		// reported by status alone.
		msgs, _ := schema.DecodeMessages(data)
		return nil, &APIError{
			Op:         req.Method + " " + p,
			StatusCode: resp.StatusCode,
			Messages:   msgs,
			Err:        mapStatus(resp.StatusCode),
		}
	}

	return &Response{StatusCode: resp.StatusCode, Body: data}, nil
}

func encodeBody(req Request) (io.Reader, string, error) {
	if len(req.Parts) > 0 {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		for _, part := range req.Parts {
			h := make(textproto.MIMEHeader)
			disp := fmt.Sprintf(`form-data; name="%s"`, part.Name)
			if part.FileName != "" {
				disp += fmt.Sprintf(`; filename="%s"`, escapeQuotes(part.FileName))
			}
			h.Set("Content-Disposition", disp)
			if part.ContentType != "" {
				h.Set("Content-Type", part.ContentType)
			}
			w, err := mw.CreatePart(h)
			if err != nil {
				return nil, "", err
			}
			if _, err := w.Write(part.Data); err != nil {
				return nil, "", err
			}
		}
		if err := mw.Close(); err != nil {
			return nil, "", err
		}
		return &buf, mw.FormDataContentType(), nil
	}
	if req.Body != nil {
		return bytes.NewReader(req.Body), xmlContentType, nil
	}
	return nil, "", nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}
