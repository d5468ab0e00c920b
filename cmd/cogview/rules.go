package main

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/tingold/cogview"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "List the stretch rules in effect",
	Long: `List the stretch rules in the order they are tried, in canonical form
and as the status line describes them.`,
	Args: cobra.NoArgs,
	RunE: runRules,
}

var convertCmd = &cobra.Command{
	Use:   "convert FILE",
	Short: "Convert an old Key=Value rules file to a YAML config",
	Long: `Read an old style config file of "Rule=" lines and print the same rules
as a YAML config, ready to be saved as $HOME/.gcv.yaml.

Examples:
  cogview rules convert ~/.gcv > ~/.gcv.yaml`,
	Args: cobra.ExactArgs(1),
	RunE: runConvert,
}

func init() {
	rootCmd.AddCommand(rulesCmd)
	rulesCmd.AddCommand(convertCmd)
}

func runRules(cmd *cobra.Command, args []string) error {
	rules := cogview.DefaultRules()
	if lines := viper.GetStringSlice("rules"); len(lines) > 0 {
		var err error
		if rules, err = cogview.ParseRules(lines); err != nil {
			return fmt.Errorf("config %s: %w", viper.ConfigFileUsed(), err)
		}
	}
	w := cmd.OutOrStdout()
	if s := viper.GetString("stretch"); s != "" {
		r, err := cogview.ParseRule(s)
		if err != nil {
			return fmt.Errorf("--stretch: %w", err)
		}
		fmt.Fprintf(w, "override  %-40s %s\n", r, r.Describe())
	}
	for i, r := range rules {
		fmt.Fprintf(w, "%8d  %-40s %s\n", i+1, r, r.Describe())
	}
	return nil
}

func runConvert(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	rules, err := convertLegacy(f)
	if err != nil {
		return fmt.Errorf("%s: %w", args[0], err)
	}
	enc := yaml.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent(2)
	defer enc.Close()
	return enc.Encode(struct {
		Rules []string `yaml:"rules"`
	}{rules})
}

// convertLegacy reads Key=Value lines and returns the canonical form of
// every Rule value in order. Other keys are skipped.
func convertLegacy(r io.Reader) ([]string, error) {
	var rules []string
	sc := bufio.NewScanner(r)
	for n := 1; sc.Scan(); n++ {
		key, value, ok := strings.Cut(sc.Text(), "=")
		if !ok {
			continue
		}
		key, value = strings.TrimSpace(key), strings.TrimSpace(value)
		if key != "Rule" {
			if key != "" {
				log.Printf("line %d: skipping %s", n, key)
			}
			continue
		}
		rule, err := cogview.ParseRule(value)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", n, err)
		}
		rules = append(rules, rule.String())
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return rules, nil
}
