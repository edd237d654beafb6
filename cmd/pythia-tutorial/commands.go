// Copyright 2019 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"vizier.dev/pythia/examples/tutorial"
	"vizier.dev/pythia/internal/appmain"
	"vizier.dev/pythia/internal/config"
	"vizier.dev/pythia/internal/runner"
	"vizier.dev/pythia/internal/studyfile"
	"vizier.dev/pythia/pkg/pythia"
	"vizier.dev/pythia/pkg/vz"
)

const serviceName = "pythia-tutorial"

// globalOptions are shared by every command.
type globalOptions struct {
	ConfigFile string
	Out        io.Writer
}

func (g *globalOptions) readConfig() (config.View, error) {
	if g.ConfigFile == "" {
		return config.Read()
	}
	return config.ReadFile(g.ConfigFile)
}

func newRegistry() (*pythia.Registry, error) {
	r := pythia.NewRegistry()
	if err := tutorial.Register(r); err != nil {
		return nil, err
	}
	return r, nil
}

func newRootCommand(out io.Writer) *cobra.Command {
	g := &globalOptions{Out: out}
	rootCmd := &cobra.Command{
		Use:           serviceName,
		Short:         "Run the Pythia tutorial algorithms",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	rootCmd.SetOut(out)
	rootCmd.PersistentFlags().StringVar(&g.ConfigFile, "config", "", "Configuration file, pythia_config.yaml in . or config/ by default.")

	rootCmd.AddCommand(newRunCommand(&runOptions{globalOptions: g}))
	rootCmd.AddCommand(newAlgorithmsCommand(g))
	rootCmd.AddCommand(newValidateCommand(g))
	return rootCmd
}

type runOptions struct {
	*globalOptions

	StudyFile  string
	Algorithm  string
	Iterations int
	Batch      int
}

func newRunCommand(o *runOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run an algorithm against a study",
		Long:  "Run an algorithm against a study, scoring trials with the demo evaluator, and print the best trials.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.run(cmd.Flags().Changed("iterations"), cmd.Flags().Changed("batch"))
		},
	}
	cmd.Flags().StringVar(&o.StudyFile, "study", "", "Study definition file.")
	cmd.Flags().StringVar(&o.Algorithm, "algorithm", "", "Algorithm overriding the one of the study.")
	cmd.Flags().IntVar(&o.Iterations, "iterations", 0, "Number of suggest and evaluate rounds, runner.iterations by default.")
	cmd.Flags().IntVar(&o.Batch, "batch", 0, "Suggestions per round, runner.batchSize by default.")
	_ = cmd.MarkFlagRequired("study")
	return cmd
}

func (o *runOptions) run(iterationsSet, batchSet bool) error {
	registry, err := newRegistry()
	if err != nil {
		return err
	}
	sc, err := studyfile.Load(o.StudyFile)
	if err != nil {
		return err
	}
	if o.Algorithm != "" {
		sc.Algorithm = o.Algorithm
	}
	factory, ok := registry.Factory(sc.Algorithm)
	if !ok {
		return status.Errorf(codes.NotFound, "unknown algorithm %q, known algorithms are %s", sc.Algorithm, strings.Join(registry.Names(), ", "))
	}
	metric := reportedMetric(sc)

	bind := func(p *appmain.Params, b *appmain.Bindings) error {
		supporter := pythia.NewInRamPolicySupporter(sc)
		r, err := runner.NewFromConfig(p.Config(), supporter, factory, sc.Algorithm, tutorial.DemoEvaluator(metric))
		if err != nil {
			return err
		}
		if iterationsSet {
			r.Iterations = o.Iterations
		}
		if batchSet {
			r.BatchSize = o.Batch
		}
		b.AddHealthCheckFunc("study", func(ctx context.Context) error {
			_, err := supporter.GetStudyConfig(ctx, "")
			return err
		})
		b.AddJob(func(ctx context.Context) error {
			report, err := r.Run(ctx)
			if report != nil {
				printReport(o.Out, report, metric)
			}
			return err
		})
		return nil
	}
	return appmain.RunApplication(serviceName, bind, o.readConfig)
}

// reportedMetric is the single objective of the study, or its first metric.
func reportedMetric(sc *vz.StudyConfig) string {
	if obj, err := sc.SingleObjective(); err == nil {
		return obj.Name
	}
	return sc.MetricInformation[0].Name
}

func formatParameters(params vz.ParameterDict) string {
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+"="+params[name].AsString())
	}
	return strings.Join(parts, " ")
}

func printTrials(w io.Writer, trials []*vz.Trial, metric string) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TRIAL\tSTATUS\tVALUE\tPARAMETERS")
	for _, t := range trials {
		value := "-"
		switch {
		case t.Infeasible():
			value = "infeasible: " + t.InfeasibilityReason
		case t.FinalMeasurement != nil:
			if m, ok := t.FinalMeasurement.Metrics[metric]; ok {
				value = fmt.Sprintf("%.4f", m.Value)
			}
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", t.ID, t.Status(), value, formatParameters(t.Parameters))
	}
	tw.Flush()
}

func printReport(w io.Writer, report *runner.Report, metric string) {
	fmt.Fprintf(w, "Trials (%d):\n", len(report.Trials))
	printTrials(w, report.Trials, metric)
	fmt.Fprintf(w, "\nBest trials by %s:\n", metric)
	printTrials(w, report.Best, metric)
}

func newAlgorithmsCommand(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "algorithms",
		Short: "List the registered algorithms",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := newRegistry()
			if err != nil {
				return err
			}
			for _, name := range r.Names() {
				fmt.Fprintln(g.Out, name)
			}
			return nil
		},
	}
}

func newValidateCommand(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate STUDY_FILE",
		Short: "Check a study definition and print it normalized",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sc, err := studyfile.Load(args[0])
			if err != nil {
				return err
			}
			data, err := studyfile.Encode(sc)
			if err != nil {
				return errors.Wrap(err, "cannot print study")
			}
			_, err = g.Out.Write(data)
			return err
		},
	}
}
