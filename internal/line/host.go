// Package line implements the mini-app host SDK over the LINE Platform REST APIs
// (LINE Login v2.1 and the Messaging API).
package line

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/omikuji/internal/crypto/clientcrypto"
	"github.com/and161185/omikuji/internal/errs"
	"github.com/and161185/omikuji/internal/idtoken"
	"github.com/and161185/omikuji/internal/model"
	"github.com/and161185/omikuji/internal/session"
)

const (
	defaultAuthURL = "https://access.line.me/oauth2/v2.1/authorize"
	defaultAPIURL  = "https://api.line.me"

	pendingLoginTTL = 10 * time.Minute
)

var defaultScopes = []string{"profile", "openid", "email"}

// Config configures the LINE host.
type Config struct {
	ChannelID      string
	ChannelSecret  string
	RedirectURL    string
	MessagingToken string // Messaging API channel access token; enables direct messages
	InClient       bool   // the app is opened from a LINE chat
	Scopes         []string

	// endpoint overrides for tests
	AuthURL string
	APIURL  string
}

// Redirector performs the login redirect side effect (open a browser, print the URL...).
type Redirector func(ctx context.Context, authorizeURL string) error

// Host implements session.Host against the LINE Platform.
type Host struct {
	cfg      Config
	store    *Store
	redirect Redirector
	http     *http.Client
	log      *zap.Logger
	now      func() time.Time

	mu   sync.Mutex
	cred *Credential
}

var _ session.Host = (*Host)(nil)

// Option configures a Host.
type Option func(*Host)

// WithHTTPClient sets the HTTP client (default: 10s timeout).
func WithHTTPClient(c *http.Client) Option { return func(h *Host) { h.http = c } }

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option { return func(h *Host) { h.log = l } }

// New constructs a Host.
func New(cfg Config, store *Store, redirect Redirector, opts ...Option) *Host {
	if cfg.AuthURL == "" {
		cfg.AuthURL = defaultAuthURL
	}
	if cfg.APIURL == "" {
		cfg.APIURL = defaultAPIURL
	}
	cfg.APIURL = strings.TrimRight(cfg.APIURL, "/")
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = defaultScopes
	}
	h := &Host{
		cfg:      cfg,
		store:    store,
		redirect: redirect,
		http:     &http.Client{Timeout: 10 * time.Second},
		log:      zap.NewNop(),
		now:      time.Now,
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Initialize validates the configuration and loads the stored credential.
func (h *Host) Initialize(ctx context.Context) error {
	if h.cfg.ChannelID == "" {
		return errors.New("line: channel id is not configured")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	cred, err := h.store.LoadCredential()
	switch {
	case errors.Is(err, errs.ErrNotFound):
		h.setCred(nil)
		return nil
	case err != nil:
		return fmt.Errorf("line: load credential: %w", err)
	}
	if !cred.Valid(h.now()) {
		h.log.Info("stored credential expired")
		h.setCred(nil)
		return nil
	}
	h.setCred(&cred)
	return nil
}

// HasExistingSession reports a stored, unexpired credential.
func (h *Host) HasExistingSession() bool {
	c := h.credential()
	return c != nil && c.Valid(h.now())
}

// StartLogin records a fresh state/nonce pair and redirects to the authorize URL.
func (h *Host) StartLogin(ctx context.Context) error {
	if h.cfg.RedirectURL == "" {
		return errors.New("line: redirect url is not configured")
	}
	state, err := randomToken()
	if err != nil {
		return err
	}
	nonce, err := randomToken()
	if err != nil {
		return err
	}
	if err := h.store.SavePending(PendingLogin{State: state, Nonce: nonce, CreatedAt: h.now()}); err != nil {
		return fmt.Errorf("line: save pending login: %w", err)
	}
	if h.redirect == nil {
		return errors.New("line: no redirector")
	}
	return h.redirect(ctx, h.AuthorizeURL(state, nonce))
}

// AuthorizeURL builds the LINE Login authorization request URL.
func (h *Host) AuthorizeURL(state, nonce string) string {
	q := url.Values{
		"response_type": {"code"},
		"client_id":     {h.cfg.ChannelID},
		"redirect_uri":  {h.cfg.RedirectURL},
		"state":         {state},
		"scope":         {strings.Join(h.cfg.Scopes, " ")},
		"nonce":         {nonce},
	}
	return h.cfg.AuthURL + "?" + q.Encode()
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
	IDToken     string `json:"id_token"`
	Scope       string `json:"scope"`
	TokenType   string `json:"token_type"`
}

// ExchangeCode completes the redirect login: it checks state against the
// pending login, exchanges the code, checks the ID token nonce and stores
// the credential. The caller re-runs the controller's Init afterwards.
func (h *Host) ExchangeCode(ctx context.Context, code, state string) error {
	if code == "" {
		return errors.New("line: empty authorization code")
	}
	pending, err := h.store.LoadPending()
	if err != nil {
		return fmt.Errorf("line: no login in progress: %w", err)
	}
	if subtle.ConstantTimeCompare([]byte(pending.State), []byte(state)) != 1 {
		return fmt.Errorf("%w: state mismatch", errs.ErrUnauthorized)
	}
	if h.now().Sub(pending.CreatedAt) > pendingLoginTTL {
		_ = h.store.ClearPending()
		return fmt.Errorf("%w: login request expired", errs.ErrUnauthorized)
	}

	form := url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"redirect_uri":  {h.cfg.RedirectURL},
		"client_id":     {h.cfg.ChannelID},
		"client_secret": {h.cfg.ChannelSecret},
	}
	var tr tokenResponse
	if err := h.postForm(ctx, "/oauth2/v2.1/token", form, &tr); err != nil {
		return fmt.Errorf("line: token exchange: %w", err)
	}
	if tr.AccessToken == "" || tr.IDToken == "" {
		return errors.New("line: token response without access/id token")
	}

	claims, err := h.checkIDToken(tr.IDToken)
	if err != nil {
		return err
	}
	if subtle.ConstantTimeCompare([]byte(claims.Nonce), []byte(pending.Nonce)) != 1 {
		return fmt.Errorf("%w: nonce mismatch", errs.ErrUnauthorized)
	}

	cred := Credential{
		AccessToken: tr.AccessToken,
		IDToken:     tr.IDToken,
		Scope:       tr.Scope,
		ExpiresAt:   h.now().Add(time.Duration(tr.ExpiresIn) * time.Second),
	}
	if err := h.store.SaveCredential(cred); err != nil {
		return fmt.Errorf("line: save credential: %w", err)
	}
	_ = h.store.ClearPending()
	h.setCred(&cred)
	h.log.Info("login completed", zap.Time("expires_at", cred.ExpiresAt))
	return nil
}

// checkIDToken verifies the token signature when the channel secret is
// known, otherwise only decodes it.
func (h *Host) checkIDToken(raw string) (model.TokenClaims, error) {
	if h.cfg.ChannelSecret != "" {
		return idtoken.NewVerifier(h.cfg.ChannelID, []byte(h.cfg.ChannelSecret)).Verify(raw)
	}
	return idtoken.Decode(raw)
}

// EndSession revokes the access token and always forgets the stored credential.
func (h *Host) EndSession(ctx context.Context) error {
	cred := h.credential()
	h.setCred(nil)
	clearErr := h.store.ClearCredential()
	if cred == nil {
		return clearErr
	}
	form := url.Values{
		"client_id":     {h.cfg.ChannelID},
		"client_secret": {h.cfg.ChannelSecret},
		"access_token":  {cred.AccessToken},
	}
	if err := h.postForm(ctx, "/oauth2/v2.1/revoke", form, nil); err != nil {
		return fmt.Errorf("line: revoke: %w", err)
	}
	return clearErr
}

// FetchProfile calls GET /v2/profile with the stored access token.
func (h *Host) FetchProfile(ctx context.Context) (model.Profile, error) {
	cred := h.credential()
	if cred == nil {
		return model.Profile{}, errs.ErrUnauthorized
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.cfg.APIURL+"/v2/profile", nil)
	if err != nil {
		return model.Profile{}, err
	}
	req.Header.Set("Authorization", "Bearer "+cred.AccessToken)
	var p model.Profile
	if err := h.do(req, &p); err != nil {
		return model.Profile{}, fmt.Errorf("line: profile: %w", err)
	}
	if p.UserID == "" {
		return model.Profile{}, errors.New("line: profile without userId")
	}
	return p, nil
}

// IDToken returns the stored ID token.
func (h *Host) IDToken() string {
	if c := h.credential(); c != nil {
		return c.IDToken
	}
	return ""
}

// InClient reports the configured client flag.
func (h *Host) InClient() bool { return h.cfg.InClient }

// ShareCapable is false: the share target picker is a LINE client UI with no REST equivalent.
func (h *Host) ShareCapable() bool { return false }

// ShareViaPicker always reports errs.ErrUnsupported.
func (h *Host) ShareViaPicker(context.Context, []model.Message) error {
	return fmt.Errorf("share target picker: %w", errs.ErrUnsupported)
}

type pushRequest struct {
	To       string          `json:"to"`
	Messages []model.Message `json:"messages"`
}

// SendDirectMessage pushes msgs to the logged-in user through the Messaging API.
func (h *Host) SendDirectMessage(ctx context.Context, msgs []model.Message) error {
	if h.cfg.MessagingToken == "" {
		return fmt.Errorf("direct message without messaging token: %w", errs.ErrUnsupported)
	}
	cred := h.credential()
	if cred == nil {
		return errs.ErrUnauthorized
	}
	claims, err := idtoken.Decode(cred.IDToken)
	if err != nil {
		return err
	}
	body, err := json.Marshal(pushRequest{To: claims.Subject, Messages: msgs})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.cfg.APIURL+"/v2/bot/message/push", bytes.NewReader(body))
	if err != nil {
		return err
	}
	retryKey, err := uuid.NewV4()
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+h.cfg.MessagingToken)
	req.Header.Set("X-Line-Retry-Key", retryKey.String())
	if err := h.do(req, nil); err != nil {
		return fmt.Errorf("line: push: %w", err)
	}
	return nil
}

// APIError is a non-2xx response from the LINE Platform.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("status %d: %s", e.Status, e.Message)
}

// Unwrap maps 401 to errs.ErrUnauthorized.
func (e *APIError) Unwrap() error {
	if e.Status == http.StatusUnauthorized {
		return errs.ErrUnauthorized
	}
	return nil
}

func (h *Host) postForm(ctx context.Context, path string, form url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.cfg.APIURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return h.do(req, out)
}

func (h *Host) do(req *http.Request, out any) error {
	resp, err := h.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode/100 != 2 {
		h.log.Warn("line api error",
			zap.String("path", req.URL.Path),
			zap.Int("status", resp.StatusCode),
		)
		return &APIError{Status: resp.StatusCode, Message: apiMessage(body)}
	}
	if out == nil || len(body) == 0 {
		return nil
	}
	return json.Unmarshal(body, out)
}

// apiMessage extracts a message from either error body shape LINE uses.
func apiMessage(body []byte) string {
	var e struct {
		Message          string `json:"message"`
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
	}
	if json.Unmarshal(body, &e) == nil {
		switch {
		case e.Message != "":
			return e.Message
		case e.ErrorDescription != "":
			return e.Error + ": " + e.ErrorDescription
		case e.Error != "":
			return e.Error
		}
	}
	return strings.TrimSpace(string(body))
}

func (h *Host) credential() *Credential {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cred
}

func (h *Host) setCred(c *Credential) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cred = c
}

func randomToken() (string, error) {
	b, err := clientcrypto.Rand(16)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
