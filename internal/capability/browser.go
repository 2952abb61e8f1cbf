package capability

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	BrowserCapabilityName = "browser"

	defaultActionTimeout = 60 * time.Second
)

// PageState is what a translator sees of the current page.
type PageState struct {
	URL      string    `json:"url"`
	Title    string    `json:"title"`
	Elements []Element `json:"elements,omitempty"`
}

// Element is an interactive element on the page.
type Element struct {
	Tag         string `json:"tag"`
	Selector    string `json:"selector"`
	Text        string `json:"text,omitempty"`
	Type        string `json:"type,omitempty"`
	Placeholder string `json:"placeholder,omitempty"`
}

// Driver performs actions against one browser tab.
type Driver interface {
	Navigate(ctx context.Context, url string) error
	Click(ctx context.Context, selector string) error
	Type(ctx context.Context, selector, text string) error
	Press(ctx context.Context, key string) error
	WaitVisible(ctx context.Context, selector string) error
	Text(ctx context.Context) (string, error)
	State(ctx context.Context) (PageState, error)
	Screenshot(ctx context.Context) ([]byte, error)
	Close() error
}

// DriverFactory opens browser tabs.
type DriverFactory interface {
	NewDriver(ctx context.Context) (Driver, error)
}

// ActionTranslator turns free-form text into browser actions, given the page
// the session is currently on.
type ActionTranslator interface {
	TranslateActions(ctx context.Context, instruction string, page PageState) ([]Action, error)
}

type BrowserConfig struct {
	ActionTimeout time.Duration
	ScreenshotDir string
}

// BrowserCapability drives simulated-user interactions in a browser tab.
type BrowserCapability struct {
	cfg        BrowserConfig
	factory    DriverFactory
	translator ActionTranslator
}

func NewBrowserCapability(cfg BrowserConfig, factory DriverFactory, translator ActionTranslator) *BrowserCapability {
	if cfg.ActionTimeout <= 0 {
		cfg.ActionTimeout = defaultActionTimeout
	}
	if cfg.ScreenshotDir == "" {
		cfg.ScreenshotDir = "screenshots"
	}
	return &BrowserCapability{cfg: cfg, factory: factory, translator: translator}
}

func (b *BrowserCapability) Name() string {
	return BrowserCapabilityName
}

func (b *BrowserCapability) Description() string {
	return "Perform browser/UI interactions: open URLs, click, type, fill forms, assert page content. Input: a description of the browser task. Output: a summary of what happened on the page."
}

func (b *BrowserCapability) Kind() Kind {
	return KindInteraction
}

func (b *BrowserCapability) Open(ctx context.Context) (Session, error) {
	if b.factory == nil {
		return nil, Errorf(BackendUnavailable, "no browser backend configured")
	}
	driver, err := b.factory.NewDriver(ctx)
	if err != nil {
		return nil, Classify(err, BackendUnavailable)
	}
	return &browserSession{capability: b, driver: driver}, nil
}

type browserSession struct {
	capability *BrowserCapability
	driver     Driver
}

func (s *browserSession) Invoke(ctx context.Context, instruction string) (string, error) {
	actions, ok := ParseActions(instruction)
	if !ok {
		if s.capability.translator == nil {
			return "", Errorf(InvalidInstruction, "could not interpret browser instruction and no translator configured")
		}
		state, err := s.driver.State(ctx)
		if err != nil {
			return "", Classify(err, RemoteFailure)
		}
		actions, err = s.capability.translator.TranslateActions(ctx, instruction, state)
		if err != nil {
			return "", Classify(err, InvalidInstruction)
		}
		if len(actions) == 0 {
			return "", Errorf(InvalidInstruction, "translator produced no browser actions")
		}
	}

	var lines []string
	for i, action := range actions {
		line, err := s.run(ctx, action)
		if err != nil {
			execErr := Classify(err, RemoteFailure)
			execErr.Message = fmt.Sprintf("action %d (%s): %s", i+1, action.Action, execErr.Message)
			return "", execErr
		}
		lines = append(lines, line)
	}

	if state, err := s.driver.State(ctx); err == nil && state.URL != "" {
		lines = append(lines, fmt.Sprintf("Page: %s (%s)", state.Title, state.URL))
	}
	return strings.Join(lines, "\n"), nil
}

func (s *browserSession) run(ctx context.Context, action Action) (string, error) {
	actionCtx, cancel := context.WithTimeout(ctx, s.capability.cfg.ActionTimeout)
	defer cancel()

	switch action.Action {
	case ActionNavigate:
		if action.URL == "" {
			return "", Errorf(InvalidInstruction, "url is required for 'navigate'")
		}
		if err := s.driver.Navigate(actionCtx, action.URL); err != nil {
			return "", err
		}
		return fmt.Sprintf("Navigated to %s", action.URL), nil

	case ActionClick:
		if action.Selector == "" {
			return "", Errorf(InvalidInstruction, "selector is required for 'click'")
		}
		if err := s.driver.Click(actionCtx, action.Selector); err != nil {
			return "", err
		}
		return fmt.Sprintf("Clicked %s", action.Selector), nil

	case ActionTypeText:
		if action.Selector == "" {
			return "", Errorf(InvalidInstruction, "selector is required for 'type'")
		}
		if err := s.driver.Type(actionCtx, action.Selector, action.Text); err != nil {
			return "", err
		}
		return fmt.Sprintf("Typed %q into %s", action.Text, action.Selector), nil

	case ActionPress:
		if action.Text == "" {
			return "", Errorf(InvalidInstruction, "key is required for 'press'")
		}
		if err := s.driver.Press(actionCtx, action.Text); err != nil {
			return "", err
		}
		return fmt.Sprintf("Pressed %s", action.Text), nil

	case ActionWait:
		if action.Selector != "" {
			if err := s.driver.WaitVisible(actionCtx, action.Selector); err != nil {
				return "", err
			}
			return fmt.Sprintf("Finished waiting for %s", action.Selector), nil
		}
		if action.Seconds > 0 {
			select {
			case <-time.After(time.Duration(action.Seconds) * time.Second):
			case <-actionCtx.Done():
				return "", actionCtx.Err()
			}
			return fmt.Sprintf("Waited for %d seconds", action.Seconds), nil
		}
		return "Nothing to wait for", nil

	case ActionAssert:
		text, err := s.driver.Text(actionCtx)
		if err != nil {
			return "", err
		}
		if !strings.Contains(text, action.Text) {
			return "", Errorf(RemoteFailure, "expected page to contain %q", action.Text)
		}
		return fmt.Sprintf("Found %q on the page", action.Text), nil

	case ActionScreenshot:
		buf, err := s.driver.Screenshot(actionCtx)
		if err != nil {
			return "", err
		}
		if err := os.MkdirAll(s.capability.cfg.ScreenshotDir, 0755); err != nil {
			return "", Wrap(RemoteFailure, err, "failed to create screenshot directory")
		}
		path := filepath.Join(s.capability.cfg.ScreenshotDir, fmt.Sprintf("screenshot_%d.png", time.Now().UnixNano()))
		if err := os.WriteFile(path, buf, 0644); err != nil {
			return "", Wrap(RemoteFailure, err, "failed to save screenshot")
		}
		absPath, _ := filepath.Abs(path)
		return fmt.Sprintf("Screenshot saved to %s", absPath), nil

	default:
		return "", Errorf(InvalidInstruction, "invalid browser action %q", action.Action)
	}
}

func (s *browserSession) Close() error {
	return s.driver.Close()
}
