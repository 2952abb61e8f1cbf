package capability

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
)

type ChromeConfig struct {
	Headless bool
	// CDPURL attaches to an already running browser instead of launching one.
	CDPURL string
}

// ChromeBackend owns one browser process and hands out tabs. Tabs opened from
// it are independent, so concurrent runs never share page state.
type ChromeBackend struct {
	cfg         ChromeConfig
	mu          sync.Mutex
	allocCtx    context.Context
	allocCancel context.CancelFunc
}

func NewChromeBackend(cfg ChromeConfig) *ChromeBackend {
	return &ChromeBackend{cfg: cfg}
}

// ensureAllocator lazily starts the browser. Must be called with b.mu held.
func (b *ChromeBackend) ensureAllocator() {
	if b.allocCtx != nil && b.allocCtx.Err() == nil {
		return
	}
	if b.allocCancel != nil {
		b.allocCancel()
	}

	if b.cfg.CDPURL != "" {
		b.allocCtx, b.allocCancel = chromedp.NewRemoteAllocator(context.Background(), b.cfg.CDPURL)
		return
	}
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
		chromedp.Flag("headless", b.cfg.Headless),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("no-default-browser-check", true),
	)
	b.allocCtx, b.allocCancel = chromedp.NewExecAllocator(context.Background(), opts...)
}

func (b *ChromeBackend) NewDriver(ctx context.Context) (Driver, error) {
	b.mu.Lock()
	b.ensureAllocator()
	allocCtx := b.allocCtx
	b.mu.Unlock()

	tabCtx, cancel := chromedp.NewContext(allocCtx)
	// The first Run starts the browser (or attaches the tab); bound it by ctx.
	started := make(chan error, 1)
	go func() { started <- chromedp.Run(tabCtx) }()
	select {
	case err := <-started:
		if err != nil {
			cancel()
			return nil, Wrap(BackendUnavailable, err, "failed to start browser tab")
		}
	case <-ctx.Done():
		cancel()
		return nil, Wrap(BackendUnavailable, ctx.Err(), "timed out starting browser tab")
	}
	return &chromeDriver{ctx: tabCtx, cancel: cancel}, nil
}

// Close terminates the browser process.
func (b *ChromeBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.allocCancel != nil {
		b.allocCancel()
	}
	b.allocCtx = nil
	b.allocCancel = nil
	return nil
}

type chromeDriver struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// run executes actions on the tab, bounded by the caller's ctx.
func (d *chromeDriver) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(d.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (d *chromeDriver) Navigate(ctx context.Context, url string) error {
	return d.run(ctx, chromedp.Navigate(url))
}

func (d *chromeDriver) Click(ctx context.Context, selector string) error {
	sel, opt := querySelector(selector)
	return d.run(ctx, chromedp.Click(sel, opt, chromedp.NodeVisible))
}

func (d *chromeDriver) Type(ctx context.Context, selector, text string) error {
	sel, opt := querySelector(selector)
	return d.run(ctx,
		chromedp.WaitVisible(sel, opt),
		chromedp.Clear(sel, opt),
		chromedp.SendKeys(sel, text, opt),
	)
}

var namedKeys = map[string]string{
	"enter":  kb.Enter,
	"return": kb.Enter,
	"tab":    kb.Tab,
	"escape": kb.Escape,
	"esc":    kb.Escape,
}

func (d *chromeDriver) Press(ctx context.Context, key string) error {
	if k, ok := namedKeys[strings.ToLower(key)]; ok {
		key = k
	}
	return d.run(ctx, chromedp.KeyEvent(key))
}

func (d *chromeDriver) WaitVisible(ctx context.Context, selector string) error {
	sel, opt := querySelector(selector)
	return d.run(ctx, chromedp.WaitVisible(sel, opt))
}

func (d *chromeDriver) Text(ctx context.Context) (string, error) {
	var text string
	if err := d.run(ctx, chromedp.Text("body", &text, chromedp.ByQuery)); err != nil {
		return "", err
	}
	if strings.TrimSpace(text) != "" {
		return text, nil
	}

	// Nothing rendered (framesets, documents still hydrating): use the markup.
	var html string
	err := d.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		node, err := dom.GetDocument().Do(ctx)
		if err != nil {
			return err
		}
		html, err = dom.GetOuterHTML().WithNodeID(node.NodeID).Do(ctx)
		return err
	}))
	if err != nil {
		return "", err
	}
	return markupText(html), nil
}

const elementsScript = `Array.from(document.querySelectorAll('a,button,input,select,textarea,[role=button]'))
  .filter(e => e.offsetParent !== null)
  .slice(0, 80)
  .map(e => {
    let sel = e.tagName.toLowerCase();
    if (e.id) { sel = '#' + CSS.escape(e.id); }
    else if (e.name) { sel += '[name="' + e.name + '"]'; }
    return {
      tag: e.tagName.toLowerCase(),
      selector: sel,
      text: (e.innerText || e.value || e.getAttribute('aria-label') || '').trim().slice(0, 80),
      type: e.type || '',
      placeholder: e.placeholder || ''
    };
  })`

func (d *chromeDriver) State(ctx context.Context) (PageState, error) {
	var state PageState
	err := d.run(ctx,
		chromedp.Location(&state.URL),
		chromedp.Title(&state.Title),
		chromedp.Evaluate(elementsScript, &state.Elements),
	)
	return state, err
}

func (d *chromeDriver) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	err := d.run(ctx, chromedp.CaptureScreenshot(&buf))
	return buf, err
}

func (d *chromeDriver) Close() error {
	d.cancel()
	return nil
}

// querySelector picks a query strategy: CSS for selector-looking strings,
// XPath for paths, and a visible-text/label match for everything else.
func querySelector(selector string) (string, chromedp.QueryOption) {
	s := strings.TrimSpace(selector)
	switch {
	case strings.HasPrefix(s, "/") || strings.HasPrefix(s, "("):
		return s, chromedp.BySearch
	case looksLikeCSS(s):
		return s, chromedp.ByQuery
	}
	lit := xpathLiteral(s)
	xpath := fmt.Sprintf(
		`//*[normalize-space(text())=%[1]s or @aria-label=%[1]s or @placeholder=%[1]s or @name=%[1]s or @value=%[1]s or @id=%[1]s]`,
		lit,
	)
	return xpath, chromedp.BySearch
}

var htmlTags = map[string]bool{
	"a": true, "button": true, "input": true, "select": true, "textarea": true,
	"form": true, "label": true, "h1": true, "h2": true, "h3": true, "body": true,
}

func looksLikeCSS(s string) bool {
	if s == "" {
		return false
	}
	if strings.ContainsAny(s[:1], "#.[") {
		return true
	}
	if strings.Contains(s, " ") {
		return strings.ContainsAny(s, "#[>")
	}
	return strings.ContainsAny(s, "#.[:") || htmlTags[s]
}

func xpathLiteral(s string) string {
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	parts := strings.Split(s, `"`)
	return `concat("` + strings.Join(parts, `", '"', "`) + `")`
}
