// internal/engine/engine.go
//
// The engine is the only component that owns workflow state. Browser
// components report observations; the engine decides what they mean,
// records every phase as a step upsert, and drives the purchase status
// through its monotonic lifecycle.
package engine

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/xkilldash9x/autocart/api/schemas"
	"github.com/xkilldash9x/autocart/internal/browser"
	"github.com/xkilldash9x/autocart/internal/classify"
	"github.com/xkilldash9x/autocart/internal/config"
	"github.com/xkilldash9x/autocart/internal/formfill"
	"github.com/xkilldash9x/autocart/internal/locator"
	"github.com/xkilldash9x/autocart/internal/outcome"
	"github.com/xkilldash9x/autocart/internal/payframe"
)

// Session is the slice of a browser tab the workflow drives. Satisfied
// by *browser.Session; tests substitute scripted fakes.
type Session interface {
	Open(ctx context.Context, url string) (string, error)
	Evaluate(ctx context.Context, script string, res interface{}) error
	CurrentURL(ctx context.Context) (string, error)
	Sleep(ctx context.Context, d time.Duration) error
	Context() context.Context
	TakeLastDialog() (string, bool)
	Close() error
}

// SessionFactory creates one exclusive session per purchase run.
type SessionFactory interface {
	NewSession(ctx context.Context) (Session, error)
}

// ManagerFactory adapts *browser.Manager to SessionFactory.
type ManagerFactory struct {
	Manager *browser.Manager
}

func (f ManagerFactory) NewSession(ctx context.Context) (Session, error) {
	return f.Manager.NewSession(ctx)
}

// The component seams. Each is the minimal surface the workflow calls;
// production wiring uses the concrete packages.
type fieldClassifier interface {
	Classify(ctx context.Context, page locator.PageEvaluator) (schemas.FieldClassification, error)
}

type formFiller interface {
	Fill(ctx context.Context, page locator.PageEvaluator, cls schemas.FieldClassification, p schemas.UserProfile) (formfill.Report, error)
}

type paymentFiller interface {
	FillPaymentFields(ctx context.Context, sess payframe.Session, pm schemas.PaymentMethod) bool
}

type buttonClicker interface {
	Click(ctx context.Context, page locator.PageEvaluator, roles ...schemas.ButtonRole) (bool, string)
}

type configApplier interface {
	ApplyConfig(ctx context.Context, page locator.PageEvaluator, cfg schemas.ProductConfig) error
}

type outcomeDetector interface {
	CheckPaymentError(ctx context.Context, page locator.PageEvaluator) (string, bool)
	DetectConfirmation(ctx context.Context, page locator.PageEvaluator) (bool, string)
}

// Engine runs automated purchases end to end.
type Engine struct {
	cfg      *config.Config
	logger   *zap.Logger
	repo     schemas.Repository
	sessions SessionFactory

	classifier fieldClassifier
	filler     formFiller
	payframes  paymentFiller
	clicker    buttonClicker
	applier    configApplier
	detector   outcomeDetector

	sem      *semaphore.Weighted
	done     chan struct{}
	stopOnce sync.Once
}

// New wires an Engine with the production components. The clicker's
// outcome checker is left nil; the workflow invokes the detector itself
// with the session's dialog channel attached per run.
func New(logger *zap.Logger, cfg *config.Config, repo schemas.Repository, sessions SessionFactory) *Engine {
	log := logger.Named("engine")
	loc := locator.New(log)
	return &Engine{
		cfg:        cfg,
		logger:     log,
		repo:       repo,
		sessions:   sessions,
		classifier: classify.New(log),
		filler:     formfill.New(log),
		payframes:  payframe.New(log),
		clicker:    locator.NewClicker(log, loc, nil, cfg.Engine.SettleDelay),
		applier:    loc,
		detector:   outcome.New(log, nil),
		sem:        semaphore.NewWeighted(int64(cfg.Browser.Concurrency)),
		done:       make(chan struct{}),
	}
}

// Start validates the request synchronously, persists the purchase
// record, and launches the run in the background. Configuration errors
// (missing user, empty card list, incomplete profile) surface here,
// before any browser work; everything after the returned id is reported
// through the record's steps.
func (e *Engine) Start(ctx context.Context, userID uuid.UUID, productURL string, pc schemas.ProductConfig) (uuid.UUID, error) {
	if _, err := url.ParseRequestURI(productURL); err != nil {
		return uuid.Nil, fmt.Errorf("invalid product URL: %w", err)
	}

	user, err := e.repo.GetUser(ctx, userID)
	if err != nil {
		return uuid.Nil, err
	}
	cards, err := e.repo.GetPaymentMethods(ctx)
	if err != nil {
		return uuid.Nil, err
	}
	profile, err := schemas.AssembleProfile(user, cards)
	if err != nil {
		return uuid.Nil, err
	}

	rec := &schemas.PurchaseRecord{
		ID:            uuid.New(),
		UserID:        userID,
		ProductURL:    productURL,
		ProductConfig: pc,
		Status:        schemas.StatusCreated,
	}
	if err := e.repo.CreatePurchase(ctx, rec); err != nil {
		return uuid.Nil, fmt.Errorf("failed to persist purchase: %w", err)
	}

	e.logger.Info("Purchase accepted.",
		zap.String("purchase_id", rec.ID.String()),
		zap.String("user_id", userID.String()),
		zap.String("product_url", productURL))

	go e.run(rec.ID, productURL, pc, profile)
	return rec.ID, nil
}

// GetStatus returns the externally consumable snapshot of a purchase.
func (e *Engine) GetStatus(ctx context.Context, id uuid.UUID) (map[string]any, error) {
	rec, err := e.repo.GetPurchase(ctx, id)
	if err != nil {
		return nil, err
	}
	return rec.Snapshot(), nil
}

// Shutdown stops accepting effective work by draining the concurrency
// semaphore, bounded by ctx. Idempotent.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.stopOnce.Do(func() { close(e.done) })
	if err := e.sem.Acquire(ctx, int64(e.cfg.Browser.Concurrency)); err != nil {
		return fmt.Errorf("engine shutdown timed out: %w", err)
	}
	e.sem.Release(int64(e.cfg.Browser.Concurrency))
	return nil
}

// run executes the full workflow for one purchase. Uses its own root
// context: the HTTP-ish caller that started the purchase is long gone.
func (e *Engine) run(id uuid.UUID, productURL string, pc schemas.ProductConfig, profile schemas.UserProfile) {
	ctx := context.Background()
	log := e.logger.With(zap.String("purchase_id", id.String()))

	// A panic anywhere in the workflow must fail the record, not strand
	// it in processing. Registered first so session cleanup runs before
	// the recovery during unwind.
	defer func() {
		if r := recover(); r != nil {
			log.Error("Workflow panicked.", zap.Any("panic", r), zap.Stack("stack"))
			e.fail(ctx, log, id, fmt.Errorf("internal error: %v", r))
		}
	}()

	if err := e.sem.Acquire(ctx, 1); err != nil {
		e.fail(ctx, log, id, fmt.Errorf("could not acquire worker slot: %w", err))
		return
	}
	defer e.sem.Release(1)

	select {
	case <-e.done:
		e.fail(ctx, log, id, fmt.Errorf("engine is shutting down"))
		return
	default:
	}

	if err := e.repo.UpdateStatus(ctx, id, schemas.StatusProcessing); err != nil {
		log.Error("Could not move purchase to processing.", zap.Error(err))
		return
	}

	sess, err := e.sessions.NewSession(ctx)
	if err != nil {
		e.fail(ctx, log, id, fmt.Errorf("could not open browser session: %w", err))
		return
	}
	defer func() {
		if err := sess.Close(); err != nil {
			log.Warn("Session close failed.", zap.Error(err))
		}
	}()

	detector := e.detector
	if d, ok := detector.(*outcome.Detector); ok && d != nil {
		// Rebind with this run's dialog source so accepted dialogs feed
		// outcome detection.
		detector = outcome.New(log, sess)
	}

	if err := e.executeWorkflow(ctx, log, id, sess, detector, productURL, pc, profile); err != nil {
		e.fail(ctx, log, id, err)
		return
	}

	if err := e.repo.MarkCompleted(ctx, id); err != nil {
		log.Error("Could not mark purchase completed.", zap.Error(err))
		return
	}
	log.Info("Purchase completed.")
}

// executeWorkflow runs the phases in order. A returned error fails the
// purchase with that message; phase-level soft failures are recorded as
// warning steps and the workflow continues.
func (e *Engine) executeWorkflow(
	ctx context.Context,
	log *zap.Logger,
	id uuid.UUID,
	sess Session,
	detector outcomeDetector,
	productURL string,
	pc schemas.ProductConfig,
	profile schemas.UserProfile,
) error {
	// Phase: navigate.
	landedURL, err := sess.Open(ctx, productURL)
	if err != nil {
		e.step(ctx, id, schemas.StepNavigate, schemas.StepError, err.Error())
		return fmt.Errorf("navigation failed: %w", err)
	}
	e.step(ctx, id, schemas.StepNavigate, schemas.StepInfo, "Landed on "+landedURL)

	// Phase: configure. Best effort; a product without a quantity field
	// is not a failed purchase.
	if pc.Quantity > 1 || len(pc.Options) > 0 {
		if err := e.applier.ApplyConfig(ctx, sess, pc); err != nil {
			e.step(ctx, id, schemas.StepConfigure, schemas.StepWarning, err.Error())
		} else {
			e.step(ctx, id, schemas.StepConfigure, schemas.StepInfo, "Product configuration applied.")
		}
	}

	// Phase: add to cart.
	clicked, _ := e.clicker.Click(ctx, sess, schemas.ButtonAddToCart)
	if !clicked {
		e.step(ctx, id, schemas.StepAddToCart, schemas.StepError, "No add-to-cart control found.")
		return fmt.Errorf("could not add product to cart")
	}
	e.step(ctx, id, schemas.StepAddToCart, schemas.StepInfo, "Product added to cart.")

	// Phase: reach checkout. The checkout URL is derived by rewriting
	// the current path to /checkout; cart interstitials are skipped
	// entirely.
	current, err := sess.CurrentURL(ctx)
	if err != nil {
		current = landedURL
	}
	checkoutPage, err := checkoutURL(current)
	if err != nil {
		e.step(ctx, id, schemas.StepCheckoutNav, schemas.StepError, err.Error())
		return fmt.Errorf("could not derive checkout URL: %w", err)
	}
	if _, err := sess.Open(ctx, checkoutPage); err != nil {
		e.step(ctx, id, schemas.StepCheckoutNav, schemas.StepError, err.Error())
		return fmt.Errorf("checkout navigation failed: %w", err)
	}
	e.step(ctx, id, schemas.StepCheckoutNav, schemas.StepInfo, "Reached checkout at "+checkoutPage)

	// Phase: fill the form. Bounded retry loop; checkout pages morph as
	// sections expand, so each attempt reclassifies from scratch.
	// Exhaustion is a warning, not an abort: the payment click below is
	// still attempted.
	e.fillLoop(ctx, log, id, sess, profile)

	// Phase: payment check. Give the page a settle window, then read the
	// site's own failure signals.
	if err := sess.Sleep(ctx, e.cfg.Engine.SettleDelay); err != nil {
		return err
	}
	if msg, found := detector.CheckPaymentError(ctx, sess); found {
		e.step(ctx, id, schemas.StepPaymentCheck, schemas.StepError, msg)
		return fmt.Errorf("Payment error: %s", msg)
	}
	e.step(ctx, id, schemas.StepPaymentCheck, schemas.StepInfo, "No payment errors surfaced.")

	return e.controlledShutdown(ctx, id, sess, detector, checkoutPage)
}

// controlledShutdown makes the final payment/complete-order click and
// decides the run's outcome. The URL comparison is a confidence signal:
// a checkout page that navigated away after the click almost always
// committed the order, one that held still almost always did not.
func (e *Engine) controlledShutdown(ctx context.Context, id uuid.UUID, sess Session, detector outcomeDetector, checkoutPage string) error {
	clicked, payErr := e.clicker.Click(ctx, sess, schemas.ButtonPayment, schemas.ButtonCompleteOrder)
	if payErr != "" {
		e.step(ctx, id, schemas.StepFinalize, schemas.StepError, payErr)
		return fmt.Errorf("Payment error: %s", payErr)
	}
	if !clicked {
		// No control to click: let in-flight async effects settle, then
		// report failure. The grace wait keeps a slow redirect from
		// being torn down mid-flight.
		if err := sess.Sleep(ctx, e.cfg.Engine.ShutdownGrace); err != nil {
			return err
		}
		e.step(ctx, id, schemas.StepFinalize, schemas.StepError,
			"No payment or order-completion control found.")
		return fmt.Errorf("could not submit the order")
	}

	if err := sess.Sleep(ctx, e.cfg.Engine.ShutdownSettle); err != nil {
		return err
	}

	if msg, found := detector.CheckPaymentError(ctx, sess); found {
		e.step(ctx, id, schemas.StepFinalize, schemas.StepError, msg)
		return fmt.Errorf("Payment error: %s", msg)
	}

	finalURL, err := sess.CurrentURL(ctx)
	if err != nil {
		finalURL = checkoutPage
	}
	confirmed, phrase := detector.DetectConfirmation(ctx, sess)
	moved := leftPage(checkoutPage, finalURL)

	switch {
	case confirmed:
		e.step(ctx, id, schemas.StepFinalize, schemas.StepInfo, "Order confirmed: "+phrase)
	case outcome.ConfirmationURL(finalURL):
		e.step(ctx, id, schemas.StepFinalize, schemas.StepInfo, "Landed on confirmation page "+finalURL)
	case moved:
		e.step(ctx, id, schemas.StepFinalize, schemas.StepInfo,
			"Navigated away from checkout to "+finalURL+"; treating as completed.")
	default:
		e.step(ctx, id, schemas.StepFinalize, schemas.StepError,
			"Still on checkout page with no confirmation signal.")
		return fmt.Errorf("no order confirmation detected")
	}
	return nil
}

// fillLoop classifies and fills the checkout form, retrying up to the
// configured attempt count. Payment fields absent from the main DOM are
// handed to the frame handler. An incomplete attempt accepts whatever
// agreement checkboxes exist and nudges the flow forward with a
// progression click before retrying: multi-stage checkouts only reveal
// later sections after the current one is advanced. Exhaustion records a
// warning; the caller still attempts the payment click.
func (e *Engine) fillLoop(ctx context.Context, log *zap.Logger, id uuid.UUID, sess Session, profile schemas.UserProfile) {
	attempts := e.cfg.Engine.FillMaxAttempts
	for attempt := 1; attempt <= attempts; attempt++ {
		cls, err := e.classifier.Classify(ctx, sess)
		switch {
		case err != nil:
			log.Warn("Classification failed.", zap.Int("attempt", attempt), zap.Error(err))
		case !cls.Classified():
			log.Info("No classifiable fields yet.", zap.Int("attempt", attempt),
				zap.Int("unknown", cls.UnknownCount()))
		default:
			rep, err := e.filler.Fill(ctx, sess, cls, profile)
			if err != nil {
				log.Warn("Fill pass failed.", zap.Int("attempt", attempt), zap.Error(err))
			} else if rep.Written > 0 {
				framed := false
				if !rep.PaymentWritten {
					framed = e.payframes.FillPaymentFields(ctx, sess, profile.Payment)
				}
				content := fmt.Sprintf("Filled %d fields on attempt %d.", rep.Written, attempt)
				if framed {
					content += " Payment entered via embedded frame."
				}
				e.step(ctx, id, schemas.StepFillForm, schemas.StepInfo, content)
				return
			}
		}

		if attempt < attempts {
			var accepted int
			if err := sess.Evaluate(ctx, browser.ConsentSweepJS, &accepted); err == nil && accepted > 0 {
				log.Debug("Accepted agreement checkboxes.", zap.Int("count", accepted))
			}
			e.clicker.Click(ctx, sess, schemas.ButtonPayment, schemas.ButtonCheckout)
			if err := sess.Sleep(ctx, e.cfg.Engine.FillRetryDelay); err != nil {
				return
			}
		}
	}

	e.step(ctx, id, schemas.StepFillForm, schemas.StepWarning,
		fmt.Sprintf("Form could not be fully filled after %d attempts; proceeding to payment.", attempts))
}

// step records one phase outcome. Persistence failures are logged, never
// fatal; the workflow outcome must not depend on bookkeeping.
func (e *Engine) step(ctx context.Context, id uuid.UUID, key string, status schemas.StepStatus, content string) {
	err := e.repo.UpsertStep(ctx, id, key, schemas.Step{
		Status:    status,
		Content:   content,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		e.logger.Warn("Could not record step.",
			zap.String("purchase_id", id.String()),
			zap.String("step", key),
			zap.Error(err))
	}
}

// fail moves the purchase to its failed terminal state with the message.
func (e *Engine) fail(ctx context.Context, log *zap.Logger, id uuid.UUID, cause error) {
	log.Error("Purchase failed.", zap.Error(cause))
	if err := e.repo.SetError(ctx, id, cause.Error()); err != nil {
		log.Warn("Could not record failure message.", zap.Error(err))
	}
	if err := e.repo.UpdateStatus(ctx, id, schemas.StatusFailed); err != nil {
		log.Warn("Could not move purchase to failed.", zap.Error(err))
	}
}

// checkoutURL rewrites a page URL to the conventional /checkout path on
// the same host. Going straight to the URL skips the cart interstitial
// entirely, which is both faster and less fragile than hunting for a
// checkout control on every theme.
func checkoutURL(pageURL string) (string, error) {
	u, err := url.Parse(pageURL)
	if err != nil {
		return "", fmt.Errorf("unparseable page URL %q: %w", pageURL, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("page URL %q has no host", pageURL)
	}
	u.Path = "/checkout"
	u.RawQuery = ""
	u.Fragment = ""
	return u.String(), nil
}

// leftPage reports whether two URLs address different pages. Query
// strings, fragments, and trailing slashes are ignored: checkout pages
// mutate those without navigating anywhere.
func leftPage(before, after string) bool {
	return normalizePage(before) != normalizePage(after)
}

func normalizePage(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	path := strings.TrimSuffix(u.Path, "/")
	return strings.ToLower(u.Host) + path
}
