// internal/browser/session.go
package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/autocart/internal/config"
)

// Session represents one active browser tab, owned exclusively by a
// single purchase run. No two call sites may drive DOM operations
// against the same session concurrently.
type Session struct {
	id     string
	ctx    context.Context
	cancel context.CancelFunc
	logger *zap.Logger
	cfg    *config.Config

	onClose func()

	mu       sync.Mutex
	isClosed bool

	// lastDialog holds the text of the most recent native dialog. All
	// dialogs are auto-accepted so they can never block the session.
	dialogMu   sync.Mutex
	lastDialog string
}

func newSession(
	ctx context.Context,
	cancel context.CancelFunc,
	cfg *config.Config,
	logger *zap.Logger,
	onClose func(),
) (*Session, error) {
	sessionID := uuid.New().String()
	s := &Session{
		id:      sessionID,
		ctx:     ctx,
		cancel:  cancel,
		logger:  logger.Named("session").With(zap.String("session_id", sessionID)),
		cfg:     cfg,
		onClose: onClose,
	}
	return s, nil
}

// initialize connects the tab and installs the dialog listener.
func (s *Session) initialize(ctx context.Context) error {
	if err := chromedp.Run(s.ctx); err != nil {
		return fmt.Errorf("failed to initialize browser target connection: %w", err)
	}
	s.listenForDialogs()
	return nil
}

// listenForDialogs records and accepts every native JS dialog. Accepting
// unconditionally is deliberate: a blocked dialog stalls the whole run,
// and the outcome detector inspects the recorded text afterwards.
func (s *Session) listenForDialogs() {
	chromedp.ListenTarget(s.ctx, func(ev interface{}) {
		if dialog, ok := ev.(*page.EventJavascriptDialogOpening); ok {
			s.dialogMu.Lock()
			s.lastDialog = dialog.Message
			s.dialogMu.Unlock()
			s.logger.Info("Native dialog detected; accepting.",
				zap.String("message", dialog.Message),
				zap.String("type", string(dialog.Type)))

			go func() {
				handleCtx, cancel := context.WithTimeout(Detach(s.ctx), 5*time.Second)
				defer cancel()
				if err := chromedp.Run(handleCtx, page.HandleJavaScriptDialog(true)); err != nil {
					s.logger.Warn("Failed to accept dialog.", zap.Error(err))
				}
			}()
		}
	})
}

// TakeLastDialog returns and clears the most recent dialog text.
func (s *Session) TakeLastDialog() (string, bool) {
	s.dialogMu.Lock()
	defer s.dialogMu.Unlock()
	msg := s.lastDialog
	s.lastDialog = ""
	return msg, msg != ""
}

// ID returns the unique identifier for the session.
func (s *Session) ID() string {
	return s.id
}

// Open navigates to url, waits for the page to settle, runs the consent
// sweep, and returns the post-redirect URL.
func (s *Session) Open(ctx context.Context, url string) (string, error) {
	s.logger.Debug("Navigating to URL", zap.String("url", url))

	opCtx, opCancel := CombineContext(s.ctx, ctx)
	defer opCancel()

	navTimeout := s.cfg.Network.NavigationTimeout
	if navTimeout <= 0 {
		navTimeout = 90 * time.Second
	}
	navCtx, navCancel := context.WithTimeout(opCtx, navTimeout)
	defer navCancel()

	if err := chromedp.Run(navCtx, chromedp.Navigate(url)); err != nil {
		if navCtx.Err() == context.DeadlineExceeded {
			return "", fmt.Errorf("navigation timed out after %s: %w", navTimeout, err)
		}
		if opCtx.Err() != nil {
			return "", fmt.Errorf("navigation canceled: %w", opCtx.Err())
		}
		return "", fmt.Errorf("navigation failed: %w", err)
	}

	if err := s.stabilize(opCtx); err != nil {
		if opCtx.Err() != nil {
			return "", opCtx.Err()
		}
		s.logger.Warn("Page stabilization failed after navigation (non-critical).", zap.Error(err))
	}

	// Opportunistic consent sweep so agreement walls never block progress.
	if n, err := s.sweepConsentCheckboxes(opCtx); err != nil {
		s.logger.Debug("Consent sweep failed.", zap.Error(err))
	} else if n > 0 {
		s.logger.Info("Checked consent/agreement checkboxes.", zap.Int("count", n))
	}

	finalURL, err := s.CurrentURL(opCtx)
	if err != nil {
		return "", fmt.Errorf("could not read final URL: %w", err)
	}
	return finalURL, nil
}

// stabilize waits for the DOM to be ready, then a quiet period for
// asynchronous updates.
func (s *Session) stabilize(ctx context.Context) error {
	stabCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := chromedp.Run(stabCtx, chromedp.WaitReady("body", chromedp.ByQuery)); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.logger.Debug("WaitReady failed during stabilization.", zap.Error(err))
	}

	quiet := s.cfg.Network.PostLoadWait
	if quiet <= 0 {
		quiet = 1500 * time.Millisecond
	}
	return chromedp.Run(stabCtx, chromedp.Sleep(quiet))
}

// Evaluate runs script in the current document, optionally unmarshaling
// the result into res.
func (s *Session) Evaluate(ctx context.Context, script string, res interface{}) error {
	return s.runActions(ctx, chromedp.Evaluate(script, res))
}

// CurrentURL reports the page's current location.
func (s *Session) CurrentURL(ctx context.Context) (string, error) {
	var url string
	if err := s.runActions(ctx, chromedp.Location(&url)); err != nil {
		return "", err
	}
	return url, nil
}

// DOMSnapshot captures the serialized element tree of the page.
func (s *Session) DOMSnapshot(ctx context.Context) (string, error) {
	var html string
	if err := s.runActions(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", err
	}
	return html, nil
}

// WaitFor polls a JS predicate until it returns true or the timeout
// elapses. This replaces fixed-duration sleeps where a concrete page
// condition exists to wait on.
func (s *Session) WaitFor(ctx context.Context, predicateJS string, timeout, interval time.Duration) (bool, error) {
	opCtx, opCancel := CombineContext(s.ctx, ctx)
	defer opCancel()

	deadline := time.Now().Add(timeout)
	for {
		var ok bool
		if err := chromedp.Run(opCtx, chromedp.Evaluate(predicateJS, &ok)); err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
		if time.Now().After(deadline) {
			return false, nil
		}
		select {
		case <-opCtx.Done():
			return false, opCtx.Err()
		case <-time.After(interval):
		}
	}
}

// Sleep pauses for the given settle duration, respecting cancellation.
func (s *Session) Sleep(ctx context.Context, d time.Duration) error {
	opCtx, opCancel := CombineContext(s.ctx, ctx)
	defer opCancel()
	select {
	case <-opCtx.Done():
		return opCtx.Err()
	case <-time.After(d):
		return nil
	}
}

// Context exposes the tab context for components that attach to related
// targets (the payment frame handler).
func (s *Session) Context() context.Context {
	return s.ctx
}

// Close terminates the session. Idempotent; releases the tab even when
// the run failed mid-flight.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.isClosed {
		s.mu.Unlock()
		return nil
	}
	s.isClosed = true
	s.mu.Unlock()

	s.logger.Debug("Closing browser session.")

	if s.cancel != nil {
		s.cancel()
	}
	if s.onClose != nil {
		s.onClose()
	}
	return nil
}

// runActions executes chromedp actions under both the session lifetime
// and the caller's context.
func (s *Session) runActions(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := CombineContext(s.ctx, ctx)
	defer cancel()
	return chromedp.Run(runCtx, actions...)
}
