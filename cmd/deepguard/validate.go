package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"mercator-hq/deepguard/pkg/audit"
	"mercator-hq/deepguard/pkg/cli"
	"mercator-hq/deepguard/pkg/policy"
)

var validateFlags struct {
	rulesFile string
	format    string
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration and policy rules",
	Long: `Load the configuration, environment overrides, rule file and explanation
templates, and build a decision engine from them without recording anything.
Exits non-zero if any part is invalid.

Examples:
  deepguard validate --config deepguard.yaml
  deepguard validate --rules rules.yaml --format json`,
	RunE: validateConfig,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringVar(&validateFlags.rulesFile, "rules", "", "rule file to check (overrides policy.rules_file)")
	validateCmd.Flags().StringVar(&validateFlags.format, "format", "text", "output format: text, json")
}

// validationReport summarises a valid configuration.
type validationReport struct {
	HighThreshold float64  `json:"high_threshold"`
	LowThreshold  float64  `json:"low_threshold"`
	RulesFile     string   `json:"rules_file,omitempty"`
	RuleSet       string   `json:"rule_set_version"`
	Rules         []string `json:"rules"`
	AuditBackend  string   `json:"audit_backend"`
}

func (r validationReport) String() string {
	rules := "none"
	if len(r.Rules) > 0 {
		rules = fmt.Sprintf("%d (%v)", len(r.Rules), r.Rules)
	}
	return fmt.Sprintf(`✓ Configuration valid
  Thresholds:    high=%g low=%g
  Rule set:      %s
  Rules:         %s
  Audit backend: %s`, r.HighThreshold, r.LowThreshold, r.RuleSet, rules, r.AuditBackend)
}

func validateConfig(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseFormat(validateFlags.format)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if validateFlags.rulesFile != "" {
		cfg.Policy.RulesFile = validateFlags.rulesFile
	}

	rules, err := loadRules(&cfg.Policy)
	if err != nil {
		return cli.WrapConfigError(err)
	}
	eng, err := buildEngine(cfg, audit.Discard)
	if err != nil {
		return cli.WrapConfigError(err)
	}

	report := validationReport{
		HighThreshold: eng.Thresholds().High,
		LowThreshold:  eng.Thresholds().Low,
		RulesFile:     cfg.Policy.RulesFile,
		RuleSet:       eng.RuleSetVersion(),
		Rules:         ruleNames(rules),
		AuditBackend:  auditBackend(cfg),
	}
	return cli.NewFormatter(format).FormatTo(cmd.OutOrStdout(), report)
}

func ruleNames(rs *policy.RuleSet) []string {
	names := rs.Names()
	if names == nil {
		return []string{}
	}
	return names
}
