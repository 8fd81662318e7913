package natsio

import (
	"crypto/tls"
	"log/slog"
	"time"
)

const (
	// DefaultInboxPrefix roots the reply subject tree. When left at the
	// default, a per-client identifier is appended for isolation.
	DefaultInboxPrefix = "_INBOX"

	DefaultConnectTimeout = 5 * time.Second
	DefaultRetryInterval  = 2 * time.Second
	DefaultRetryCount     = 60
	DefaultSubChanLen     = 512

	clientLang = "go"

	// Version is the client library version advertised in CONNECT.
	Version = "0.1.0"
)

// Options configures a client. Use the With* helpers; the zero value is not
// meaningful, start from GetDefaultOptions.
type Options struct {
	// Name is the connection name advertised to the server. Defaults to a
	// generated identifier.
	Name string

	// Verbose asks the server to ack every command with +OK/-ERR. Acks are
	// matched to commands in FIFO order, so ack-expecting commands are
	// serialized.
	Verbose bool

	// Pedantic enables stricter server-side protocol checking.
	Pedantic bool

	// NoEcho prevents the server from delivering messages published by this
	// connection back to its own subscriptions.
	NoEcho bool

	// NoResponders asks the server to synthesize an immediate 503 reply for
	// requests that match no subscription. Requires header support.
	NoResponders bool

	// User/Password and Token are plain credential options.
	User     string
	Password string
	Token    string

	// NKeySeed is an encoded seed ("S..."); when set the client signs the
	// server nonce during the handshake.
	NKeySeed string

	// UserJWT is sent together with the NKey signature, typically extracted
	// from a credentials file.
	UserJWT string

	// CredsFile points at a decorated credentials file carrying both the
	// user JWT and the seed. Takes precedence over NKeySeed/UserJWT.
	CredsFile string

	// ConnectTimeout bounds each individual connection attempt.
	ConnectTimeout time.Duration

	// RetryInterval paces reconnection attempts.
	RetryInterval time.Duration

	// RetryCount bounds reconnection attempts per outage; -1 retries
	// without bound, 0 disables reconnection.
	RetryCount int

	// TLSConfig, when set, requires a TLS session (or wss). The handshake
	// fails fatally if the server cannot provide one.
	TLSConfig *tls.Config

	// InboxPrefix overrides the reply subject tree root. A custom prefix is
	// used verbatim; uniqueness is then the caller's responsibility.
	InboxPrefix string

	// SubChanLen is the delivery buffer per subscription. When a consumer
	// falls this far behind, further messages for it are dropped.
	SubChanLen int

	// MaxPendingPublishes bounds the pre-connect publish buffer.
	// 0 means unbounded.
	MaxPendingPublishes int

	// Logger receives connection diagnostics. Defaults to slog.Default().
	Logger *slog.Logger
}

// GetDefaultOptions returns the stock client options.
func GetDefaultOptions() Options {
	return Options{
		ConnectTimeout: DefaultConnectTimeout,
		RetryInterval:  DefaultRetryInterval,
		RetryCount:     DefaultRetryCount,
		InboxPrefix:    DefaultInboxPrefix,
		SubChanLen:     DefaultSubChanLen,
	}
}

// Option mutates Options during Connect.
type Option func(*Options) error

// WithName sets the advertised connection name.
func WithName(name string) Option {
	return func(o *Options) error {
		o.Name = name
		return nil
	}
}

// WithVerbose enables per-command server acks.
func WithVerbose() Option {
	return func(o *Options) error {
		o.Verbose = true
		return nil
	}
}

// WithPedantic enables strict server-side protocol checking.
func WithPedantic() Option {
	return func(o *Options) error {
		o.Pedantic = true
		return nil
	}
}

// WithNoEcho suppresses delivery of own-published messages.
func WithNoEcho() Option {
	return func(o *Options) error {
		o.NoEcho = true
		return nil
	}
}

// WithNoResponders enables fast failure for requests nobody answers.
func WithNoResponders() Option {
	return func(o *Options) error {
		o.NoResponders = true
		return nil
	}
}

// WithUserPassword sets plain credentials.
func WithUserPassword(user, password string) Option {
	return func(o *Options) error {
		o.User = user
		o.Password = password
		return nil
	}
}

// WithToken sets an authorization token.
func WithToken(token string) Option {
	return func(o *Options) error {
		o.Token = token
		return nil
	}
}

// WithNKeySeed configures nonce signing from an encoded seed.
func WithNKeySeed(seed string) Option {
	return func(o *Options) error {
		o.NKeySeed = seed
		return nil
	}
}

// WithUserJWT configures JWT authentication with an explicit seed for nonce
// signing.
func WithUserJWT(jwt, seed string) Option {
	return func(o *Options) error {
		o.UserJWT = jwt
		o.NKeySeed = seed
		return nil
	}
}

// WithUserCredentials points at a decorated credentials file.
func WithUserCredentials(path string) Option {
	return func(o *Options) error {
		o.CredsFile = path
		return nil
	}
}

// WithConnectTimeout bounds each connection attempt.
func WithConnectTimeout(d time.Duration) Option {
	return func(o *Options) error {
		o.ConnectTimeout = d
		return nil
	}
}

// WithRetry configures the reconnect loop: interval between attempts and the
// attempt budget per outage (-1 for unbounded, 0 to disable).
func WithRetry(interval time.Duration, count int) Option {
	return func(o *Options) error {
		o.RetryInterval = interval
		o.RetryCount = count
		return nil
	}
}

// WithTLSConfig requires TLS with the given configuration.
func WithTLSConfig(cfg *tls.Config) Option {
	return func(o *Options) error {
		o.TLSConfig = cfg
		return nil
	}
}

// WithInboxPrefix overrides the reply subject tree root.
func WithInboxPrefix(prefix string) Option {
	return func(o *Options) error {
		if prefix == "" {
			return ErrBadSubject
		}
		o.InboxPrefix = prefix
		return nil
	}
}

// WithSubChanLen sets the per-subscription delivery buffer.
func WithSubChanLen(n int) Option {
	return func(o *Options) error {
		if n <= 0 {
			n = DefaultSubChanLen
		}
		o.SubChanLen = n
		return nil
	}
}

// WithMaxPendingPublishes bounds the pre-connect publish buffer.
func WithMaxPendingPublishes(n int) Option {
	return func(o *Options) error {
		o.MaxPendingPublishes = n
		return nil
	}
}

// WithLogger routes connection diagnostics to the given logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Options) error {
		o.Logger = l
		return nil
	}
}
