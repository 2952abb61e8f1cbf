package governance

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/rahul/conductor/internal/capability"
)

// Effect defines the result of a policy evaluation.
type Effect string

const (
	EffectAllow Effect = "allow"
	EffectDeny  Effect = "deny"
)

// Request contains the context of a step dispatch to be evaluated.
type Request struct {
	Capability  string
	Kind        capability.Kind
	Instruction string
	RunID       string
}

// Result contains the outcome of a policy evaluation.
type Result struct {
	Effect Effect
	Reason string
}

// PolicyEngine evaluates step dispatches against a set of rules.
type PolicyEngine interface {
	Evaluate(ctx context.Context, req Request) (Result, error)
}

// Rules is the configured form of a policy.
type Rules struct {
	DeniedCapabilities []string
	DeniedKinds        []capability.Kind
	// DeniedMethods blocks HTTP methods on request steps, e.g. DELETE.
	DeniedMethods []string
	// AllowedHosts limits the hosts steps may call or navigate to. Empty
	// allows every host; "example.com" also allows its subdomains.
	AllowedHosts   []string
	DeniedPatterns []string
}

// DefaultPolicyEngine checks the capability, the step kind, the targets the
// instruction names and its text. Configure it before the first run; Evaluate
// only reads.
type DefaultPolicyEngine struct {
	DeniedCapabilities map[string]bool
	DeniedKinds        map[capability.Kind]bool
	DeniedMethods      map[string]bool
	AllowedHosts       []string
	DeniedRegex        []*regexp.Regexp
}

func NewDefaultPolicyEngine() *DefaultPolicyEngine {
	return &DefaultPolicyEngine{
		DeniedCapabilities: make(map[string]bool),
		DeniedKinds:        make(map[capability.Kind]bool),
		DeniedMethods:      make(map[string]bool),
		DeniedRegex:        make([]*regexp.Regexp, 0),
	}
}

// NewPolicyEngine builds an engine from configured rules.
func NewPolicyEngine(rules Rules) (*DefaultPolicyEngine, error) {
	e := NewDefaultPolicyEngine()
	for _, name := range rules.DeniedCapabilities {
		e.DenyCapability(name)
	}
	for _, kind := range rules.DeniedKinds {
		e.DenyKind(kind)
	}
	for _, method := range rules.DeniedMethods {
		e.DenyMethod(method)
	}
	e.AllowHosts(rules.AllowedHosts...)
	for _, pattern := range rules.DeniedPatterns {
		if err := e.DenyInstructions(pattern); err != nil {
			return nil, fmt.Errorf("invalid denied instruction pattern %q: %w", pattern, err)
		}
	}
	return e, nil
}

func (e *DefaultPolicyEngine) DenyCapability(name string) {
	e.DeniedCapabilities[name] = true
}

func (e *DefaultPolicyEngine) DenyKind(kind capability.Kind) {
	e.DeniedKinds[kind] = true
}

func (e *DefaultPolicyEngine) DenyMethod(method string) {
	e.DeniedMethods[strings.ToUpper(strings.TrimSpace(method))] = true
}

func (e *DefaultPolicyEngine) AllowHosts(hosts ...string) {
	for _, h := range hosts {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			e.AllowedHosts = append(e.AllowedHosts, h)
		}
	}
}

func (e *DefaultPolicyEngine) DenyInstructions(pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	e.DeniedRegex = append(e.DeniedRegex, re)
	return nil
}

func (e *DefaultPolicyEngine) Evaluate(ctx context.Context, req Request) (Result, error) {
	if e.DeniedCapabilities[req.Capability] {
		return deny("Capability '%s' is restricted by system policy", req.Capability), nil
	}
	if req.Kind != "" && e.DeniedKinds[req.Kind] {
		return deny("Steps of kind '%s' are restricted by system policy", req.Kind), nil
	}

	method, targets := stepTargets(req.Kind, req.Instruction)
	if method != "" && e.DeniedMethods[method] {
		return deny("HTTP method %s is restricted by system policy", method), nil
	}
	for _, target := range targets {
		if !e.hostAllowed(target) {
			return deny("Target %s is outside the allowed hosts", target), nil
		}
	}

	for _, re := range e.DeniedRegex {
		if re.MatchString(req.Instruction) {
			return deny("Instruction matches restricted pattern: %s", re.String()), nil
		}
	}

	return Result{
		Effect: EffectAllow,
		Reason: "Approved by default policy",
	}, nil
}

func deny(format string, args ...any) Result {
	return Result{Effect: EffectDeny, Reason: fmt.Sprintf(format, args...)}
}

// stepTargets returns the HTTP method and the URLs an instruction names, as
// read by the capability parsers. Instructions the parsers cannot read yield
// nothing and are only checked against the patterns.
func stepTargets(kind capability.Kind, instruction string) (string, []string) {
	switch kind {
	case capability.KindRequest:
		if spec, ok := capability.ParseRequest(instruction); ok {
			return spec.Method, []string{spec.URL}
		}
	case capability.KindInteraction:
		actions, ok := capability.ParseActions(instruction)
		if !ok {
			return "", nil
		}
		var urls []string
		for _, a := range actions {
			if a.Action == capability.ActionNavigate && a.URL != "" {
				urls = append(urls, a.URL)
			}
		}
		return "", urls
	}
	return "", nil
}

func (e *DefaultPolicyEngine) hostAllowed(target string) bool {
	if len(e.AllowedHosts) == 0 {
		return true
	}
	u, err := url.Parse(target)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	for _, allowed := range e.AllowedHosts {
		if host == allowed || strings.HasSuffix(host, "."+allowed) {
			return true
		}
	}
	return false
}
