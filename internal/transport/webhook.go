package transport

import (
	"context"
	"crypto/subtle"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/quailyquaily/jab/internal/logutil"
	"github.com/quailyquaily/jab/internal/observability"
	"github.com/quailyquaily/jab/internal/retryutil"
	"github.com/quailyquaily/jab/internal/telegram"
)

const (
	SecretTokenHeader     = "X-Telegram-Bot-Api-Secret-Token"
	HealthCheckPath       = "/health-check"
	defaultWebhookListen  = ":8443"
	defaultWebhookPath    = "/"
	maxWebhookConnections = 100
)

// WebhookAPI is the subset of the Bot API the webhook transport needs.
type WebhookAPI interface {
	DeleteWebhook(ctx context.Context, req telegram.DeleteWebhookRequest) error
	SetWebhook(ctx context.Context, req telegram.SetWebhookRequest) (bool, error)
	GetWebhookInfo(ctx context.Context) (*telegram.WebhookInfo, error)
}

type WebhookOptions struct {
	// URL is the public HTTPS address Telegram pushes to.
	URL string
	// Listen is the local bind address of the receiver.
	Listen string
	// Path is the route updates are POSTed to.
	Path           string
	IPAddress      string
	MaxConnections int
	AllowedUpdates []string
	// ResetBeforeRegister issues deleteWebhook before setWebhook.
	ResetBeforeRegister bool
	DropPendingUpdates  bool
	// SecretToken is checked on every push. A random one is generated when empty.
	SecretToken string
	TLSCertFile string
	TLSKeyFile  string
	// UploadCertificate sends TLSCertFile to Telegram (self-signed listeners).
	UploadCertificate bool
	StartupAttempts   int
	StartupRetryDelay time.Duration
	Logger            *slog.Logger
}

func (o WebhookOptions) normalized() (WebhookOptions, error) {
	o.URL = strings.TrimSpace(o.URL)
	if o.URL == "" {
		return o, fmt.Errorf("webhook url is required")
	}
	u, err := url.Parse(o.URL)
	if err != nil || u.Host == "" {
		return o, fmt.Errorf("webhook url %q is invalid", o.URL)
	}
	if u.Scheme != "https" {
		return o, fmt.Errorf("webhook url %q must use https", o.URL)
	}
	if strings.TrimSpace(o.Listen) == "" {
		o.Listen = defaultWebhookListen
	}
	o.Path = strings.TrimSpace(o.Path)
	if o.Path == "" {
		o.Path = defaultWebhookPath
	}
	if !strings.HasPrefix(o.Path, "/") {
		o.Path = "/" + o.Path
	}
	if o.Path == HealthCheckPath {
		return o, fmt.Errorf("webhook path %q collides with the health check route", o.Path)
	}
	if o.MaxConnections < 0 || o.MaxConnections > maxWebhookConnections {
		return o, fmt.Errorf("webhook max_connections %d out of range 1-%d", o.MaxConnections, maxWebhookConnections)
	}
	if (o.TLSCertFile == "") != (o.TLSKeyFile == "") {
		return o, fmt.Errorf("webhook tls_cert and tls_key must be set together")
	}
	if o.UploadCertificate && o.TLSCertFile == "" {
		return o, fmt.Errorf("webhook upload_certificate requires tls_cert")
	}
	if o.IPAddress != "" && net.ParseIP(o.IPAddress) == nil {
		return o, fmt.Errorf("webhook ip_address %q is invalid", o.IPAddress)
	}
	allowed, err := NormalizeAllowedUpdates(o.AllowedUpdates)
	if err != nil {
		return o, err
	}
	o.AllowedUpdates = allowed
	if strings.TrimSpace(o.SecretToken) == "" {
		o.SecretToken = uuid.NewString()
	}
	o.Logger = logutil.OrDiscard(o.Logger)
	return o, nil
}

// Webhook registers the bot's public URL and receives pushed updates on a
// local listener. Each inbound request enqueues one update; FetchUpdates
// hands them out one at a time in arrival order.
type Webhook struct {
	api   WebhookAPI
	opts  WebhookOptions
	queue *Queue[telegram.Update]

	mu        sync.Mutex
	started   bool
	server    *http.Server
	addr      net.Addr
	serveDone chan struct{}
	serveErr  error
}

func NewWebhook(api WebhookAPI, opts WebhookOptions) (*Webhook, error) {
	if api == nil {
		return nil, fmt.Errorf("webhook transport: nil api")
	}
	opts, err := opts.normalized()
	if err != nil {
		return nil, err
	}
	return &Webhook{
		api:   api,
		opts:  opts,
		queue: NewQueue[telegram.Update](),
	}, nil
}

func (w *Webhook) Name() string { return string(ModeWebhook) }

// OnStartup registers the webhook, verifies the registration and starts the
// listener. A registration that cannot be confirmed is returned as
// ErrWebhookNotConfirmed and must be treated as fatal.
func (w *Webhook) OnStartup(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return nil
	}
	if err := w.register(ctx); err != nil {
		return err
	}
	if err := w.verify(ctx); err != nil {
		return err
	}
	if err := w.listen(); err != nil {
		return err
	}
	w.started = true
	return nil
}

func (w *Webhook) register(ctx context.Context) error {
	logger := w.opts.Logger
	if w.opts.ResetBeforeRegister {
		err := retryutil.Do(ctx, logger, "telegram_delete_webhook", w.opts.StartupAttempts, w.opts.StartupRetryDelay, func(ctx context.Context) error {
			return permanentIfRejected(w.api.DeleteWebhook(ctx, telegram.DeleteWebhookRequest{DropPendingUpdates: w.opts.DropPendingUpdates}))
		})
		if err != nil {
			return fmt.Errorf("webhook reset: %w", err)
		}
	}

	req := telegram.SetWebhookRequest{
		URL:                w.opts.URL,
		IPAddress:          w.opts.IPAddress,
		MaxConnections:     w.opts.MaxConnections,
		AllowedUpdates:     w.opts.AllowedUpdates,
		DropPendingUpdates: w.opts.DropPendingUpdates,
		SecretToken:        w.opts.SecretToken,
	}
	if w.opts.UploadCertificate {
		req.CertificatePath = w.opts.TLSCertFile
	}
	err := retryutil.Do(ctx, logger, "telegram_set_webhook", w.opts.StartupAttempts, w.opts.StartupRetryDelay, func(ctx context.Context) error {
		ok, err := w.api.SetWebhook(ctx, req)
		if err != nil {
			return permanentIfRejected(err)
		}
		if !ok {
			return &retryutil.Permanent{Err: fmt.Errorf("%w: setWebhook returned false", ErrWebhookNotConfirmed)}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("webhook register: %w", err)
	}
	logger.Info("telegram_webhook_set", "url", w.opts.URL, "ip_address", w.opts.IPAddress, "certificate", w.opts.UploadCertificate)
	return nil
}

func (w *Webhook) verify(ctx context.Context) error {
	var info *telegram.WebhookInfo
	err := retryutil.Do(ctx, w.opts.Logger, "telegram_get_webhook_info", w.opts.StartupAttempts, w.opts.StartupRetryDelay, func(ctx context.Context) error {
		var err error
		info, err = w.api.GetWebhookInfo(ctx)
		return permanentIfRejected(err)
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWebhookNotConfirmed, err)
	}
	if info.URL != w.opts.URL {
		return fmt.Errorf("%w: registered url %q, want %q", ErrWebhookNotConfirmed, info.URL, w.opts.URL)
	}
	if w.opts.UploadCertificate && !info.HasCustomCertificate {
		return fmt.Errorf("%w: custom certificate not installed", ErrWebhookNotConfirmed)
	}
	if info.LastErrorMessage != "" {
		w.opts.Logger.Warn("telegram_webhook_last_error", "message", info.LastErrorMessage, "date", info.LastErrorDate)
	}
	w.opts.Logger.Info("telegram_webhook_confirmed", "pending_update_count", info.PendingUpdateCount)
	return nil
}

func (w *Webhook) listen() error {
	var tlsConfig *tls.Config
	if w.opts.TLSCertFile != "" {
		cert, err := tls.LoadX509KeyPair(w.opts.TLSCertFile, w.opts.TLSKeyFile)
		if err != nil {
			return fmt.Errorf("webhook tls key pair: %w", err)
		}
		tlsConfig = &tls.Config{Certificates: []tls.Certificate{cert}, MinVersion: tls.VersionTLS12}
	}
	ln, err := net.Listen("tcp", w.opts.Listen)
	if err != nil {
		return fmt.Errorf("webhook listen %s: %w", w.opts.Listen, err)
	}
	w.addr = ln.Addr()
	if tlsConfig != nil {
		ln = tls.NewListener(ln, tlsConfig)
	}
	w.server = &http.Server{
		Handler:           w.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	w.serveDone = make(chan struct{})
	go func() {
		defer close(w.serveDone)
		err := w.server.Serve(ln)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			w.opts.Logger.Error("telegram_webhook_listener_error", "error", err.Error())
			w.serveErr = err
			return
		}
		w.serveErr = http.ErrServerClosed
	}()
	w.opts.Logger.Info("telegram_webhook_listening", "addr", w.addr.String(), "path", w.opts.Path, "tls", tlsConfig != nil)
	return nil
}

// Handler serves the webhook route and the health check.
func (w *Webhook) Handler() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(w.opts.Logger))
	r.Use(observability.RequestMetricsMiddleware())
	r.POST(w.opts.Path, w.receive)
	r.GET(HealthCheckPath, func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return r
}

func (w *Webhook) receive(c *gin.Context) {
	got := c.GetHeader(SecretTokenHeader)
	if subtle.ConstantTimeCompare([]byte(got), []byte(w.opts.SecretToken)) != 1 {
		c.AbortWithStatus(http.StatusForbidden)
		return
	}
	var update telegram.Update
	if err := c.ShouldBindJSON(&update); err != nil {
		w.opts.Logger.Warn("telegram_webhook_bad_update", "error", err.Error())
		c.AbortWithStatus(http.StatusBadRequest)
		return
	}
	w.queue.Push(update)
	w.opts.Logger.Debug("telegram_webhook_update_received", "update_id", update.UpdateID, "kind", update.Kind())
	c.Status(http.StatusOK)
}

// FetchUpdates waits for the next pushed update and returns it as a
// single-element batch. Once the listener has exited it returns
// ErrListenerStopped on every call.
func (w *Webhook) FetchUpdates(ctx context.Context) ([]telegram.Update, error) {
	w.mu.Lock()
	started, done := w.started, w.serveDone
	w.mu.Unlock()
	if !started {
		return nil, ErrNotStarted
	}
	for {
		if u, ok := w.queue.TryPop(); ok {
			observability.RecordFetch(w.Name(), 1, nil)
			return []telegram.Update{u}, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-done:
			err := fmt.Errorf("%w: %w", ErrListenerStopped, w.serveErr)
			observability.RecordFetch(w.Name(), 0, err)
			return nil, err
		case <-w.queue.Ready():
		}
	}
}

// Addr is the bound listener address, or nil before OnStartup.
func (w *Webhook) Addr() net.Addr {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.addr
}

func (w *Webhook) SecretToken() string { return w.opts.SecretToken }

func (w *Webhook) Close(ctx context.Context) error {
	w.mu.Lock()
	server := w.server
	w.mu.Unlock()
	if server == nil {
		return nil
	}
	return server.Shutdown(ctx)
}

func permanentIfRejected(err error) error {
	if err != nil && telegram.IsPermanent(err) {
		return &retryutil.Permanent{Err: err}
	}
	return err
}
