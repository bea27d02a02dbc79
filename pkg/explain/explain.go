// Package explain renders the human-readable explanation attached to every
// decision.
//
// An explanation is a verdict sentence followed by a risk sentence. When
// policy rules decoupled the risk level from the verdict, a third sentence
// says so. Rendering is deterministic: the same inputs always produce the
// same bytes.
package explain

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"mercator-hq/deepguard/pkg/decision"
)

// Templates holds the text/template sources used by a Synthesizer. Keys are
// verdict and risk level names; missing keys fall back to the defaults.
type Templates struct {
	Verdict  map[string]string `yaml:"verdict,omitempty" json:"verdict,omitempty"`
	Risk     map[string]string `yaml:"risk,omitempty" json:"risk,omitempty"`
	Coupling string            `yaml:"coupling,omitempty" json:"coupling,omitempty"`
}

// DefaultTemplates returns the built-in explanation templates.
func DefaultTemplates() Templates {
	return Templates{
		Verdict: map[string]string{
			string(decision.VerdictDeepfake):  "The media is classified as {{.Verdict}} with a confidence score of {{.Confidence}}, indicating strong signs of synthetic manipulation.",
			string(decision.VerdictReal):      "The media is classified as {{.Verdict}} with a confidence score of {{.Confidence}}, showing no significant signs of manipulation.",
			string(decision.VerdictUncertain): "The media is classified as {{.Verdict}} with a confidence score of {{.Confidence}}; the evidence is inconclusive.",
		},
		Risk: map[string]string{
			string(decision.RiskHigh):   "Risk level is {{.Risk}}: treat this content as untrustworthy and escalate it for review.",
			string(decision.RiskMedium): "Risk level is {{.Risk}}: manual verification is recommended before relying on this content.",
			string(decision.RiskLow):    "Risk level is {{.Risk}}: no further action is required.",
		},
		Coupling: "Policy rules adjusted the risk level from {{.BaseRisk}} to {{.Risk}} for this {{.Verdict}} verdict.",
	}
}

// data is the template context.
type data struct {
	Verdict    string
	Risk       string
	BaseRisk   string
	Confidence string
	Score      float64
}

// Synthesizer renders explanations from parsed templates. It is immutable
// after construction and safe for concurrent use.
type Synthesizer struct {
	verdict  map[decision.Verdict]*template.Template
	risk     map[decision.RiskLevel]*template.Template
	coupling *template.Template
}

// New parses the templates, falling back to the defaults for any entry not
// overridden. Every verdict and risk combination is rendered once so a
// template that fails or omits the verdict or risk name is rejected here
// rather than at decision time.
func New(overrides Templates) (*Synthesizer, error) {
	merged, err := merge(DefaultTemplates(), overrides)
	if err != nil {
		return nil, err
	}

	s := &Synthesizer{
		verdict: make(map[decision.Verdict]*template.Template, len(decision.Verdicts)),
		risk:    make(map[decision.RiskLevel]*template.Template, len(decision.RiskLevels)),
	}

	for _, v := range decision.Verdicts {
		tmpl, err := parse("verdict."+string(v), merged.Verdict[string(v)])
		if err != nil {
			return nil, err
		}
		s.verdict[v] = tmpl
	}
	for _, r := range decision.RiskLevels {
		tmpl, err := parse("risk."+string(r), merged.Risk[string(r)])
		if err != nil {
			return nil, err
		}
		s.risk[r] = tmpl
	}
	if s.coupling, err = parse("coupling", merged.Coupling); err != nil {
		return nil, err
	}

	for _, v := range decision.Verdicts {
		for _, r := range decision.RiskLevels {
			text, err := s.Explain(v, 0.5, r)
			if err != nil {
				return nil, &decision.ConfigurationError{Field: "explanation.templates", Reason: "template failed to render", Cause: err}
			}
			if !strings.Contains(text, string(v)) || !strings.Contains(text, string(r)) {
				return nil, &decision.ConfigurationError{
					Field:  "explanation.templates",
					Reason: fmt.Sprintf("explanation for %s/%s must mention both names", v, r),
				}
			}
		}
	}

	return s, nil
}

// Default returns a synthesizer using the built-in templates.
func Default() *Synthesizer {
	s, err := New(Templates{})
	if err != nil {
		panic(fmt.Sprintf("explain: default templates are invalid: %v", err))
	}
	return s
}

// Explain renders the explanation for a final verdict and risk level.
// Confidence is the raw score and is shown as a percentage with two
// decimals.
func (s *Synthesizer) Explain(verdict decision.Verdict, confidence float64, risk decision.RiskLevel) (string, error) {
	vt, ok := s.verdict[verdict]
	if !ok {
		return "", &decision.SynthesisError{Verdict: verdict, Risk: risk, Cause: fmt.Errorf("unknown verdict")}
	}
	rt, ok := s.risk[risk]
	if !ok {
		return "", &decision.SynthesisError{Verdict: verdict, Risk: risk, Cause: fmt.Errorf("unknown risk level")}
	}

	d := data{
		Verdict:    string(verdict),
		Risk:       string(risk),
		BaseRisk:   string(decision.BaseRisk(verdict)),
		Confidence: FormatConfidence(confidence),
		Score:      confidence,
	}

	var buf bytes.Buffer
	if err := vt.Execute(&buf, d); err != nil {
		return "", &decision.SynthesisError{Verdict: verdict, Risk: risk, Cause: err}
	}
	buf.WriteByte(' ')
	if err := rt.Execute(&buf, d); err != nil {
		return "", &decision.SynthesisError{Verdict: verdict, Risk: risk, Cause: err}
	}
	if !decision.IsBasePairing(verdict, risk) {
		buf.WriteByte(' ')
		if err := s.coupling.Execute(&buf, d); err != nil {
			return "", &decision.SynthesisError{Verdict: verdict, Risk: risk, Cause: err}
		}
	}

	return buf.String(), nil
}

// FormatConfidence renders a score in [0, 1] as a percentage, e.g. "92.00%".
func FormatConfidence(score float64) string {
	return fmt.Sprintf("%.2f%%", score*100)
}

func parse(name, text string) (*template.Template, error) {
	if strings.TrimSpace(text) == "" {
		return nil, &decision.ConfigurationError{Field: "explanation.templates." + name, Reason: "template is empty"}
	}
	tmpl, err := template.New(name).Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, &decision.ConfigurationError{Field: "explanation.templates." + name, Reason: "failed to parse template", Cause: err}
	}
	return tmpl, nil
}

// merge overlays overrides on base. Override keys are matched
// case-insensitively and must name a known verdict or risk level.
func merge(base, overrides Templates) (Templates, error) {
	for key, text := range overrides.Verdict {
		v, err := decision.ParseVerdict(key)
		if err != nil {
			return Templates{}, &decision.ConfigurationError{Field: "explanation.templates.verdict", Reason: "unknown key", Cause: err}
		}
		base.Verdict[string(v)] = text
	}
	for key, text := range overrides.Risk {
		r, err := decision.ParseRiskLevel(key)
		if err != nil {
			return Templates{}, &decision.ConfigurationError{Field: "explanation.templates.risk", Reason: "unknown key", Cause: err}
		}
		base.Risk[string(r)] = text
	}
	if overrides.Coupling != "" {
		base.Coupling = overrides.Coupling
	}
	return base, nil
}
