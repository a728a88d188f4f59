package rtc

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/rtcbridge/rtcbridge/internal/engine"
	"github.com/rtcbridge/rtcbridge/rtcerr"
)

// ICETransportPolicy restricts which candidate types the engine may gather.
type ICETransportPolicy string

const (
	// ICETransportPolicyAll allows any candidate type.
	ICETransportPolicyAll ICETransportPolicy = "all"
	// ICETransportPolicyRelay allows only media relayed through a TURN server.
	ICETransportPolicyRelay ICETransportPolicy = "relay"
)

// ICECredentialType selects how an ICEServer credential is interpreted.
type ICECredentialType string

const (
	// ICECredentialTypePassword treats Credential as a long-term password.
	ICECredentialTypePassword ICECredentialType = "password"
	// ICECredentialTypeOauth treats Credential as an OAuth access token.
	ICECredentialTypeOauth ICECredentialType = "oauth"
)

// ICEServer describes a STUN or TURN server used for candidate gathering.
type ICEServer struct {
	URLs           []string
	Username       string
	Credential     string
	CredentialType ICECredentialType
}

// Default buffered-amount watermarks for outbound channel backpressure.
const (
	DefaultHighWaterMark = 256 << 10
	DefaultLowWaterMark  = 64 << 10
)

// ChannelOptions configures a DataChannel at creation time. The zero value
// asks for an ordered, fully reliable channel with default watermarks.
type ChannelOptions struct {
	// Ordered preserves delivery order when true. Defaults to true.
	Ordered *bool
	// MaxRetransmits bounds retransmission attempts. Mutually exclusive
	// with MaxPacketLifeTime.
	MaxRetransmits *uint16
	// MaxPacketLifeTime bounds retransmission time in milliseconds.
	// Mutually exclusive with MaxRetransmits.
	MaxPacketLifeTime *uint16
	// Negotiated skips in-band channel negotiation; both peers must create
	// the channel with the same ID.
	Negotiated bool
	// ID pins the channel id when Negotiated is set.
	ID *uint16
	// HighWaterMark is the buffered-amount ceiling above which Send fails
	// fast and SendContext blocks. Zero selects DefaultHighWaterMark.
	HighWaterMark uint64
	// LowWaterMark is the drain threshold at which blocked senders resume.
	// Zero selects DefaultLowWaterMark.
	LowWaterMark uint64
}

// Config configures a PeerConnection.
type Config struct {
	ICEServers         []ICEServer
	ICETransportPolicy ICETransportPolicy
	// ChannelDefaults seeds options for channels created without explicit
	// options, and for watermark fields left zero.
	ChannelDefaults ChannelOptions
	// InboundQueueLimit bounds each channel's inbound message queue. Once
	// full, delivery from the engine blocks until the caller drains; zero
	// means unbounded.
	InboundQueueLimit int
	// Logger receives diagnostic output. Nil disables logging.
	Logger *zerolog.Logger
}

func (cfg *Config) validate() error {
	for i, server := range cfg.ICEServers {
		if len(server.URLs) == 0 {
			return &rtcerr.ConfigError{
				Field: fmt.Sprintf("ice_servers[%d].urls", i),
				Err:   fmt.Errorf("at least one url is required"),
			}
		}
		for _, raw := range server.URLs {
			scheme, host, err := splitServerURL(raw)
			if err != nil {
				return &rtcerr.ConfigError{
					Field: fmt.Sprintf("ice_servers[%d].urls", i),
					Err:   err,
				}
			}
			_ = host
			if (scheme == "turn" || scheme == "turns") &&
				(server.Username == "" || server.Credential == "") {
				return &rtcerr.ConfigError{
					Field: fmt.Sprintf("ice_servers[%d]", i),
					Err:   fmt.Errorf("%s server requires a username and credential", scheme),
				}
			}
		}
		switch server.CredentialType {
		case "", ICECredentialTypePassword, ICECredentialTypeOauth:
		default:
			return &rtcerr.ConfigError{
				Field: fmt.Sprintf("ice_servers[%d].credential_type", i),
				Err:   fmt.Errorf("unsupported credential type %q", server.CredentialType),
			}
		}
	}

	switch cfg.ICETransportPolicy {
	case "", ICETransportPolicyAll, ICETransportPolicyRelay:
	default:
		return &rtcerr.ConfigError{
			Field: "ice_transport_policy",
			Err:   fmt.Errorf("unsupported policy %q", cfg.ICETransportPolicy),
		}
	}

	if cfg.InboundQueueLimit < 0 {
		return &rtcerr.ConfigError{
			Field: "inbound_queue_limit",
			Err:   fmt.Errorf("must not be negative"),
		}
	}

	if err := cfg.ChannelDefaults.validate(); err != nil {
		return err
	}
	return nil
}

func (opts *ChannelOptions) validate() error {
	if opts.MaxRetransmits != nil && opts.MaxPacketLifeTime != nil {
		return &rtcerr.ConfigError{
			Field: "channel_options",
			Err:   fmt.Errorf("max_retransmits and max_packet_life_time are mutually exclusive"),
		}
	}
	if opts.Negotiated && opts.ID == nil {
		return &rtcerr.ConfigError{
			Field: "channel_options.id",
			Err:   fmt.Errorf("negotiated channels require an id"),
		}
	}
	high, low := opts.watermarks()
	if low > high {
		return &rtcerr.ConfigError{
			Field: "channel_options",
			Err:   fmt.Errorf("low water mark %d exceeds high water mark %d", low, high),
		}
	}
	return nil
}

func (opts *ChannelOptions) watermarks() (high, low uint64) {
	high, low = opts.HighWaterMark, opts.LowWaterMark
	if high == 0 {
		high = DefaultHighWaterMark
	}
	if low == 0 {
		low = DefaultLowWaterMark
	}
	return high, low
}

// splitServerURL validates a STUN/TURN URI of the form scheme:host[:port][?opts]
// and returns its scheme and host.
func splitServerURL(raw string) (scheme, host string, err error) {
	idx := strings.Index(raw, ":")
	if idx < 0 {
		return "", "", fmt.Errorf("malformed server url %q: missing scheme", raw)
	}
	scheme, rest := raw[:idx], raw[idx+1:]
	switch scheme {
	case "stun", "stuns", "turn", "turns":
	default:
		return "", "", fmt.Errorf("malformed server url %q: unsupported scheme %q", raw, scheme)
	}
	if qidx := strings.Index(rest, "?"); qidx >= 0 {
		rest = rest[:qidx]
	}
	host = rest
	if pidx := strings.LastIndex(rest, ":"); pidx >= 0 {
		host = rest[:pidx]
	}
	if host == "" {
		return "", "", fmt.Errorf("malformed server url %q: missing host", raw)
	}
	return scheme, host, nil
}

func (cfg *Config) logger() zerolog.Logger {
	if cfg.Logger != nil {
		return *cfg.Logger
	}
	return zerolog.Nop()
}

func (cfg *Config) engineConfig() engine.Config {
	out := engine.Config{Policy: string(cfg.ICETransportPolicy)}
	for _, server := range cfg.ICEServers {
		out.Servers = append(out.Servers, engine.Server{
			URLs:           server.URLs,
			Username:       server.Username,
			Credential:     server.Credential,
			CredentialType: string(server.CredentialType),
		})
	}
	return out
}
