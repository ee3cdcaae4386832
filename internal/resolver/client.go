package resolver

import (
	"context"
	"time"

	"github.com/miekg/dns"
)

//go:generate mockgen -destination=mock_$GOPACKAGE/$GOFILE . Client

// Client is the DNS exchange used by the Resolver.
type Client interface {
	ExchangeContext(ctx context.Context, m *dns.Msg, a string) (r *dns.Msg, rtt time.Duration, err error)
}
