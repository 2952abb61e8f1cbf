package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"path/filepath"

	"github.com/rahul/conductor/internal/capability"
	"github.com/rahul/conductor/internal/executor"
	"github.com/rahul/conductor/internal/gateway"
	"github.com/rahul/conductor/internal/governance"
	"github.com/rahul/conductor/internal/observability"
	"github.com/rahul/conductor/internal/orchestrator"
	"github.com/rahul/conductor/internal/planner"
	"github.com/rahul/conductor/internal/source"
	"github.com/rahul/conductor/internal/store"
	"github.com/rahul/conductor/pkg/config"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// app holds everything a command needs, built once from the config.
type app struct {
	cfg     *config.Config
	logger  *observability.Logger
	orch    *orchestrator.Orchestrator
	runs    *store.RunStore
	browser *capability.ChromeBackend
}

func newApp(cfg *config.Config, events io.Writer) (*app, error) {
	logger := observability.NewLoggerTo(events, filepath.Join(cfg.App.LogDir, "llm.jsonl"))

	model, err := newModel(cfg)
	if err != nil {
		return nil, err
	}
	prompts := planner.NewPromptManager(cfg.Prompts.Dir)

	var (
		reqTranslator    capability.RequestTranslator
		actionTranslator capability.ActionTranslator
		selector         planner.Selector
		decomposer       planner.Decomposer
	)
	if model != nil {
		t := capability.NewTranslator(model, prompts.Get(planner.RequestPrompt), prompts.Get(planner.BrowserPrompt), logger)
		reqTranslator, actionTranslator = t, t
		p := planner.NewLLMPlanner(model, prompts, logger)
		selector, decomposer = p, p
	} else {
		log.Println("Warning: no LLM provider enabled; steps without a clear executor will abort the run")
	}

	browser := capability.NewChromeBackend(capability.ChromeConfig{
		Headless: cfg.Browser.Headless,
		CDPURL:   cfg.Browser.CDPURL,
	})
	registry, err := capability.NewRegistry(
		capability.NewHTTPCapability(capability.HTTPConfig{
			Headers:         cfg.HTTP.Headers,
			Timeout:         cfg.HTTP.Timeout.Duration,
			UserAgent:       cfg.HTTP.UserAgent,
			MaxSummaryChars: cfg.HTTP.MaxSummaryChars,
		}, reqTranslator),
		capability.NewBrowserCapability(capability.BrowserConfig{
			ActionTimeout: cfg.Browser.ActionTimeout.Duration,
			ScreenshotDir: cfg.Browser.ScreenshotDir,
		}, browser, actionTranslator),
	)
	if err != nil {
		return nil, err
	}

	scope, err := executor.ParseScope(cfg.Browser.SessionScope)
	if err != nil {
		return nil, err
	}

	policy, err := governance.NewPolicyEngine(policyRules(cfg.Governance))
	if err != nil {
		return nil, err
	}

	runs, err := store.Open(cfg.Store.Path)
	if err != nil {
		return nil, err
	}

	orch := orchestrator.New(orchestrator.Config{
		Registry:   registry,
		Selector:   selector,
		Decomposer: decomposer,
		Policy:     policy,
		Logger:     logger,
		Options: orchestrator.Options{
			StepTimeout:    cfg.Orchestrator.StepTimeout.Duration,
			PlannerTimeout: cfg.Orchestrator.PlannerTimeout.Duration,
			MaxAttempts:    cfg.Orchestrator.MaxAttempts,
			SessionScopes:  map[capability.Kind]executor.Scope{capability.KindInteraction: scope},
			Decompose:      cfg.Orchestrator.Decompose,
		},
	})

	return &app{cfg: cfg, logger: logger, orch: orch, runs: runs, browser: browser}, nil
}

func newModel(cfg *config.Config) (llms.Model, error) {
	pName, pCfg := cfg.GetDefaultProvider()
	if pName == "" {
		return nil, nil
	}

	switch pName {
	case "openai", "openrouter":
		opts := []openai.Option{
			openai.WithToken(pCfg.APIKey),
			openai.WithModel(pCfg.Model),
		}
		if pCfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(pCfg.BaseURL))
		}
		return openai.New(opts...)
	default:
		return nil, fmt.Errorf("provider %s is not supported", pName)
	}
}

func (a *app) jiraClient() (*source.JiraClient, error) {
	return source.NewJiraClient(source.JiraConfig{
		BaseURL:  a.cfg.Jira.BaseURL,
		Email:    a.cfg.Jira.Email,
		APIToken: a.cfg.Jira.APIToken,
		Timeout:  a.cfg.Jira.Timeout.Duration,
	})
}

// notifiers builds the outbound chat channels. The Telegram gateway is
// returned separately because it also receives tasks.
func (a *app) notifiers() (gateway.Multi, *gateway.TelegramGateway) {
	var out gateway.Multi
	var tg *gateway.TelegramGateway

	if tgCfg, ok := a.cfg.GetTelegramConfig(); ok {
		gw, err := gateway.NewTelegramGateway(tgCfg.Token, a.orch, tgCfg.NotifyChat, tgCfg.AllowedChats)
		if err != nil {
			log.Printf("Warning: telegram gateway disabled: %v", err)
		} else {
			tg = gw
			if tgCfg.NotifyChat != 0 {
				out = append(out, gw)
			}
		}
	}
	if dCfg, ok := a.cfg.GetDiscordConfig(); ok {
		d, err := gateway.NewDiscordNotifier(dCfg.Token, dCfg.ChannelID)
		if err != nil {
			log.Printf("Warning: discord notifier disabled: %v", err)
		} else {
			out = append(out, d)
		}
	}
	return out, tg
}

// notify sends text to every configured channel, logging failures.
func (a *app) notify(ctx context.Context, text string) {
	n, _ := a.notifiers()
	if len(n) == 0 {
		return
	}
	if err := n.Notify(ctx, text); err != nil {
		log.Printf("Warning: notification failed: %v", err)
	}
}

func (a *app) Close() {
	if err := a.browser.Close(); err != nil {
		log.Printf("Warning: %v", err)
	}
	if err := a.runs.Close(); err != nil {
		log.Printf("Warning: %v", err)
	}
}

func policyRules(g config.GovernanceConfig) governance.Rules {
	rules := governance.Rules{
		DeniedCapabilities: g.DeniedCapabilities,
		DeniedMethods:      g.DeniedMethods,
		AllowedHosts:       g.AllowedHosts,
		DeniedPatterns:     g.DeniedPatterns,
	}
	for _, k := range g.DeniedKinds {
		rules.DeniedKinds = append(rules.DeniedKinds, capability.Kind(k))
	}
	return rules
}
