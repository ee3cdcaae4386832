package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/netip"
	"net/url"
	"strings"

	log "github.com/sirupsen/logrus"
	"golang.org/x/net/idna"

	"github.com/dmdmdm-nz/ddnsd/internal/ipaddr"
	"github.com/dmdmdm-nz/ddnsd/pkg/version"
)

const maxBodySize = 64 * 1024

type Settings struct {
	Vendor    Vendor
	Domain    string
	DomainID  string
	AccessKey string
	// HTTPClient defaults to a client without timeout; the caller bounds
	// each Update with its context.
	HTTPClient *http.Client
	// UserAgent defaults to version.UserAgent().
	UserAgent string
}

// Client performs DNS update calls against one vendor for one domain.
type Client struct {
	vendor    Vendor
	domain    string
	domainID  string
	accessKey string
	client    *http.Client
	userAgent string
}

func New(settings Settings) (*Client, error) {
	c := &Client{
		vendor:    settings.Vendor,
		domain:    strings.TrimSpace(settings.Domain),
		domainID:  strings.TrimSpace(settings.DomainID),
		accessKey: settings.AccessKey,
		client:    settings.HTTPClient,
		userAgent: settings.UserAgent,
	}
	if c.client == nil {
		c.client = &http.Client{}
	}
	if c.userAgent == "" {
		c.userAgent = version.UserAgent()
	}

	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) validate() error {
	if c.vendor.Host == "" {
		return fmt.Errorf("%w: %q has no host", ErrVendorUnknown, c.vendor.Name)
	}
	if c.vendor.needs("{domain}") || c.domain != "" {
		ascii, err := idna.Lookup.ToASCII(c.domain)
		if err != nil || ascii == "" {
			return fmt.Errorf("%w: %q", ErrDomainNameNotValid, c.domain)
		}
		c.domain = ascii
	}
	if c.vendor.needs("{id}") && c.domainID == "" {
		return fmt.Errorf("%w for %s", ErrDomainIDMissing, c.vendor.Name)
	}
	if c.vendor.needs("{key}") && c.accessKey == "" {
		return fmt.Errorf("%w for %s", ErrAccessKeyMissing, c.vendor.Name)
	}
	return nil
}

func (c *Client) String() string {
	if c.domain != "" {
		return c.vendor.Name + " (" + c.domain + ")"
	}
	return c.vendor.Name + " (" + c.domainID + ")"
}

// Update performs one update call registering ip for family.
func (c *Client) Update(ctx context.Context, ip netip.Addr, family ipaddr.Family) error {
	request, err := c.BuildRequest(ctx, ip, family)
	if err != nil {
		return err
	}

	log.WithFields(log.Fields{
		"provider": c.vendor.Name,
		"host":     request.URL.Host,
		"ip":       ip,
	}).Trace("Sending DNS update request")

	response, err := c.client.Do(request)
	if err != nil {
		return fmt.Errorf("doing http request: %w", err)
	}
	defer response.Body.Close()

	b, err := io.ReadAll(io.LimitReader(response.Body, maxBodySize))
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}
	s := string(b)

	switch code := response.StatusCode; {
	case code >= 200 && code < 300:
	case code >= 400 && code < 500:
		return fmt.Errorf("%w: %d, check if the access key and domain name/ID are correct: %s",
			ErrHTTPStatusNotValid, code, toSingleLine(s))
	default:
		return fmt.Errorf("%w: %d: %s", ErrHTTPStatusNotValid, code, toSingleLine(s))
	}

	if c.vendor.Check != nil {
		return c.vendor.Check(s)
	}
	return nil
}

// BuildRequest builds the vendor's update request for ip.
func (c *Client) BuildRequest(ctx context.Context, ip netip.Addr, family ipaddr.Family) (*http.Request, error) {
	ip = ip.Unmap()
	ipv6 := ip.Is6()
	switch family {
	case ipaddr.IPv4, ipaddr.IPv6:
		if (family == ipaddr.IPv6) != ipv6 {
			return nil, fmt.Errorf("%w: %s address %s", ErrFamilyNotSupported, family, ip)
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrFamilyNotSupported, family)
	}

	replacer := strings.NewReplacer(
		"{domain}", c.domain,
		"{id}", c.domainID,
		"{key}", c.accessKey,
		"{ip}", ip.String(),
	)

	host := c.vendor.Host
	if ipv6 && c.vendor.HostIPv6 != "" {
		host = c.vendor.HostIPv6
	}
	scheme := c.vendor.Scheme
	if scheme == "" {
		scheme = "https"
	}
	method := c.vendor.Method
	if method == "" {
		method = http.MethodGet
	}

	u := url.URL{
		Scheme: scheme,
		Host:   host,
		Path:   replacer.Replace(c.vendor.Path),
	}
	if len(c.vendor.Query) > 0 {
		values := url.Values{}
		for _, param := range c.vendor.Query {
			values.Set(param.name(ipv6), replacer.Replace(param.Value))
		}
		u.RawQuery = values.Encode()
	}

	var body io.Reader
	if len(c.vendor.Body) > 0 {
		payload := make(map[string]string, len(c.vendor.Body))
		for _, param := range c.vendor.Body {
			payload[param.name(ipv6)] = replacer.Replace(param.Value)
		}
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrRequestMarshal, err)
		}
		body = strings.NewReader(string(b))
	}

	request, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("creating http request: %w", err)
	}
	setUserAgent(request, c.userAgent)
	if body != nil {
		setContentType(request, "application/json")
	}

	switch c.vendor.Auth {
	case AuthHeaderKey:
		request.Header.Set(c.vendor.AuthHeader, c.accessKey)
	case AuthBasic:
		setBasicAuth(request, c.accessKey)
	}
	return request, nil
}
