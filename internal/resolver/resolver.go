package resolver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"time"

	"github.com/miekg/dns"
	log "github.com/sirupsen/logrus"

	"github.com/dmdmdm-nz/ddnsd/internal/ipaddr"
)

var (
	ErrLookupFailed      = errors.New("cannot resolve DNS")
	ErrResponseCode      = errors.New("DNS response code is not success")
	ErrNoServers         = errors.New("no DNS servers configured")
	ErrFamilyNotValid    = errors.New("address family must be IPv4 or IPv6")
	ErrAnswerNotReceived = errors.New("response received has no answer")
)

// DefaultServers are the public resolvers queried in order: Google,
// Cloudflare and Quad9.
func DefaultServers() []string {
	return []string{"8.8.8.8", "8.8.4.4", "1.1.1.1", "1.0.0.1", "9.9.9.9"}
}

const (
	DefaultRetries       = 5
	DefaultRetryInterval = 10 * time.Second
	DefaultTimeout       = 5 * time.Second
)

type Settings struct {
	Servers       []string
	Retries       int
	RetryInterval time.Duration
	Timeout       time.Duration
}

// Resolver looks up the address a domain currently resolves to, so that an
// address already registered is not registered again at startup.
type Resolver struct {
	client        Client
	servers       []string
	retries       int
	retryInterval time.Duration
}

// New creates a Resolver. A nil client uses a UDP miekg/dns client bounded by
// settings.Timeout.
func New(settings Settings, client Client) *Resolver {
	if settings.Timeout <= 0 {
		settings.Timeout = DefaultTimeout
	}
	if client == nil {
		client = &dns.Client{Net: "udp", Timeout: settings.Timeout}
	}
	servers := make([]string, len(settings.Servers))
	for i, server := range settings.Servers {
		servers[i] = withPort(server)
	}
	return &Resolver{
		client:        client,
		servers:       servers,
		retries:       settings.Retries,
		retryInterval: settings.RetryInterval,
	}
}

func withPort(server string) string {
	if _, _, err := net.SplitHostPort(server); err == nil {
		return server
	}
	return net.JoinHostPort(server, "53")
}

// Lookup returns the first A (IPv4) or AAAA (IPv6) record of domain. A
// domain that does not exist or carries no such record yields the zero Addr
// and no error. Transient failures are retried after the retry interval.
func (r *Resolver) Lookup(ctx context.Context, domain string, family ipaddr.Family) (netip.Addr, error) {
	var qType uint16
	switch family {
	case ipaddr.IPv4:
		qType = dns.TypeA
	case ipaddr.IPv6:
		qType = dns.TypeAAAA
	default:
		return netip.Addr{}, fmt.Errorf("%w: %s", ErrFamilyNotValid, family)
	}
	if len(r.servers) == 0 {
		return netip.Addr{}, ErrNoServers
	}

	var lastErr error
	for attempt := 0; ; attempt++ {
		addr, err := r.query(ctx, domain, qType)
		if err == nil {
			return addr, nil
		}
		lastErr = err

		if attempt >= r.retries || ctx.Err() != nil {
			break
		}
		log.WithError(err).WithFields(log.Fields{
			"domain":  domain,
			"family":  family,
			"attempt": attempt + 1,
		}).Debug("DNS lookup failed, retrying")

		timer := time.NewTimer(r.retryInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return netip.Addr{}, fmt.Errorf("%w for %s: %w", ErrLookupFailed, domain, ctx.Err())
		case <-timer.C:
		}
	}
	return netip.Addr{}, fmt.Errorf("%w for %s: %w", ErrLookupFailed, domain, lastErr)
}

// query asks each server in turn and returns the first usable answer.
func (r *Resolver) query(ctx context.Context, domain string, qType uint16) (netip.Addr, error) {
	request := &dns.Msg{
		MsgHdr: dns.MsgHdr{
			Id:               dns.Id(),
			Opcode:           dns.OpcodeQuery,
			RecursionDesired: true,
		},
		Question: []dns.Question{{
			Name:   dns.Fqdn(domain),
			Qtype:  qType,
			Qclass: dns.ClassINET,
		}},
	}

	var errs []error
	for _, server := range r.servers {
		response, _, err := r.client.ExchangeContext(ctx, request, server)
		if err != nil {
			errs = append(errs, fmt.Errorf("exchanging with %s: %w", server, err))
			if ctx.Err() != nil {
				break
			}
			continue
		}
		addr, err := handleResponse(response, qType)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", server, err))
			continue
		}
		return addr, nil
	}
	return netip.Addr{}, errors.Join(errs...)
}

func handleResponse(response *dns.Msg, qType uint16) (netip.Addr, error) {
	if response == nil {
		return netip.Addr{}, ErrAnswerNotReceived
	}
	switch response.Rcode {
	case dns.RcodeSuccess:
	case dns.RcodeNameError:
		// NXDOMAIN: the domain is not registered.
		return netip.Addr{}, nil
	default:
		return netip.Addr{}, fmt.Errorf("%w: %s", ErrResponseCode, dns.RcodeToString[response.Rcode])
	}

	for _, rr := range response.Answer {
		var ip net.IP
		switch record := rr.(type) {
		case *dns.A:
			if qType == dns.TypeA {
				ip = record.A
			}
		case *dns.AAAA:
			if qType == dns.TypeAAAA {
				ip = record.AAAA
			}
		}
		if ip == nil {
			continue
		}
		addr, ok := netip.AddrFromSlice(ip)
		if !ok {
			continue
		}
		if qType == dns.TypeA {
			addr = addr.Unmap()
		}
		return addr, nil
	}
	// No data: the record type is not registered for this domain.
	return netip.Addr{}, nil
}
