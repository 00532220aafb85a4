// Package cohortctl implements the cohort administration CLI: enrollment
// maintenance, single scores and cohort reports against a running service,
// plus offline registry validation.
package cohortctl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/okian/boostcalc/internal/adapters/registry"
	"github.com/okian/boostcalc/internal/adapters/repository"
	"github.com/okian/boostcalc/internal/domain/types"
	"github.com/okian/boostcalc/pkg/logger"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// Defaults for the root flags.
const (
	DefaultURL     = "http://localhost:3000"
	DefaultTimeout = 2 * time.Minute
	DefaultWorkers = 4
	urlEnv         = "BOOSTCALC_URL"
	adminTokenEnv  = "BOOSTCALC_ADMIN_TOKEN"
)

// ErrScoreFailed is returned when at least one score request failed.
var ErrScoreFailed = errors.New("one or more scores failed")

type rootOptions struct {
	url        string
	timeout    time.Duration
	adminToken string
}

func (o *rootOptions) client() *Client {
	return NewClient(o.url, o.timeout, WithAdminToken(o.adminToken))
}

// NewRootCommand builds the cohortctl command tree.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "cohortctl",
		Short:         "Cohort administration for the Cloud Skills Boost calculator",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	defaultURL := os.Getenv(urlEnv)
	if defaultURL == "" {
		defaultURL = DefaultURL
	}
	root.PersistentFlags().StringVar(&opts.url, "url", defaultURL, "Base URL of the service (env "+urlEnv+")")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", DefaultTimeout, "HTTP request timeout")
	root.PersistentFlags().StringVar(&opts.adminToken, "admin-token", os.Getenv(adminTokenEnv),
		"Token for add and reload (env "+adminTokenEnv+")")

	root.AddCommand(
		newParticipantsCommand(opts),
		newScoreCommand(opts),
		newAddCommand(opts),
		newReloadCommand(opts),
		newReportCommand(opts),
		newValidateCommand(),
	)
	return root
}

func newParticipantsCommand(opts *rootOptions) *cobra.Command {
	var testMode bool
	cmd := &cobra.Command{
		Use:   "participants",
		Short: "List enrolled participants",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			res, err := opts.client().Participants(cmd.Context(), testMode)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintln(tw, "NAME\tPROFILE ID\tPROFILE URL")
			for _, p := range res.Participants {
				_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\n", p.Name, p.ProfileID, p.ProfileURL)
			}
			_ = tw.Flush()
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%d participants\n", res.TotalParticipants)
			return nil
		},
	}
	cmd.Flags().BoolVar(&testMode, "test", false, "Only the test mode subset")
	return cmd
}

func newScoreCommand(opts *rootOptions) *cobra.Command {
	var (
		emails  []string
		urls    []string
		workers int
	)
	cmd := &cobra.Command{
		Use:   "score",
		Short: "Score participants by email or profile URL",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			reqs := make([]types.CalculateRequest, 0, len(emails)+len(urls))
			for _, e := range emails {
				reqs = append(reqs, types.CalculateRequest{Email: e})
			}
			for _, u := range urls {
				reqs = append(reqs, types.CalculateRequest{ProfileURL: u})
			}
			if len(reqs) == 0 {
				return errors.New("at least one --email or --profile-url is required")
			}
			return runScores(cmd.Context(), cmd.OutOrStdout(), opts.client(), reqs, workers)
		},
	}
	cmd.Flags().StringSliceVar(&emails, "email", nil, "Participant email (repeatable)")
	cmd.Flags().StringSliceVar(&urls, "profile-url", nil, "Public profile URL (repeatable)")
	cmd.Flags().IntVar(&workers, "workers", DefaultWorkers, "Concurrent requests")
	return cmd
}

type scoreLine struct {
	req types.CalculateRequest
	res types.CalculateResponse
	err error
}

// runScores submits reqs with at most workers in flight and prints one line
// per request in input order.
func runScores(ctx context.Context, out io.Writer, c *Client, reqs []types.CalculateRequest, workers int) error {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	lines := make([]scoreLine, len(reqs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, req := range reqs {
		i, req := i, req
		g.Go(func() error {
			res, err := c.Calculate(gctx, req)
			lines[i] = scoreLine{req: req, res: res, err: err}
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "WHO\tNAME\tPOINTS\tBADGES\tGAMES\tPROGRESS")
	for _, l := range lines {
		who := l.req.Email
		if who == "" {
			who = l.req.ProfileURL
		}
		if l.err != nil {
			failed++
			_, _ = fmt.Fprintf(tw, "%s\t-\t-\t-\t-\t%v\n", who, l.err)
			continue
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%.1f%%\n", who, l.res.Participant.Name, l.res.TotalPoints,
			l.res.Breakdown.Badges.Count, l.res.Breakdown.Games.Count, l.res.Progress.Overall.Percentage)
	}
	_ = tw.Flush()
	if failed > 0 {
		return fmt.Errorf("%w: %d of %d", ErrScoreFailed, failed, len(reqs))
	}
	return nil
}

func newAddCommand(opts *rootOptions) *cobra.Command {
	var req AddRequest
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Enroll a participant",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			res, err := opts.client().Add(cmd.Context(), req)
			if err != nil {
				return err
			}
			if !res.Added {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s already enrolled\n", res.ProfileID)
				return nil
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "enrolled %s\n", res.ProfileID)
			return nil
		},
	}
	cmd.Flags().StringVar(&req.ProfileURL, "profile-url", "", "Public profile URL")
	cmd.Flags().StringVar(&req.Email, "email", "", "Email")
	cmd.Flags().StringVar(&req.Name, "name", "", "Display name")
	cmd.Flags().StringVar(&req.Batch, "batch", "", "Batch label")
	cmd.Flags().StringVar(&req.EnrollmentDate, "date", "", "Enrollment date (YYYY-MM-DD or RFC 3339)")
	_ = cmd.MarkFlagRequired("profile-url")
	return cmd
}

func newReloadCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reload",
		Short: "Make the service re-read its registry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			n, err := opts.client().Reload(cmd.Context())
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "registry reloaded: %d participants\n", n)
			return nil
		},
	}
}

func newReportCommand(opts *rootOptions) *cobra.Command {
	var (
		testMode bool
		format   string
		outPath  string
	)
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Run a cohort analytics pass",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			out := cmd.OutOrStdout()
			if outPath != "" {
				f, ferr := os.Create(outPath)
				if ferr != nil {
					return fmt.Errorf("create %s: %w", outPath, ferr)
				}
				defer func() {
					if cerr := f.Close(); err == nil {
						err = cerr
					}
				}()
				out = f
			}

			switch strings.ToLower(format) {
			case "csv":
				return opts.client().ReportCSV(cmd.Context(), testMode, out)
			case "json":
				report, err := opts.client().Report(cmd.Context(), testMode)
				if err != nil {
					return err
				}
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			case "text":
				report, err := opts.client().Report(cmd.Context(), testMode)
				if err != nil {
					return err
				}
				printSummary(out, report)
				return nil
			default:
				return fmt.Errorf("unknown format %q (want text, json or csv)", format)
			}
		},
	}
	cmd.Flags().BoolVar(&testMode, "test", false, "Only the test mode subset")
	cmd.Flags().StringVar(&format, "format", "text", "Output format: text, json or csv")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "Write to file instead of stdout")
	return cmd
}

func printSummary(w io.Writer, r types.CohortReport) {
	s := r.Summary
	_, _ = fmt.Fprintf(w, "Report %s (%s)\n", r.ID, r.GeneratedAt.Format(time.RFC3339))
	_, _ = fmt.Fprintf(w, "Participants: %d total, %d scored, %d failed\n", s.TotalParticipants, s.Scored, s.Failed)
	_, _ = fmt.Fprintf(w, "Fully completed: %d\n", s.FullyCompleted)
	_, _ = fmt.Fprintf(w, "Average badges: %.1f  Average games: %.1f  Overall progress: %.1f%%  Total points: %d\n",
		s.AvgBadges, s.AvgGames, s.OverallProgress, s.TotalPoints)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "\nBUCKET\tCOUNT\tPERCENT")
	for _, b := range r.Distribution {
		_, _ = fmt.Fprintf(tw, "%s\t%d\t%.1f%%\n", b.Label, b.Count, b.Percentage)
	}
	_, _ = fmt.Fprintln(tw, "\nRANK\tNAME\tPOINTS\tITEMS")
	for _, e := range r.Leaderboard {
		_, _ = fmt.Fprintf(tw, "%d\t%s\t%d\t%d\n", e.Rank, e.Name, e.Points, e.TotalItems)
	}
	_ = tw.Flush()
}

func newValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate FILE",
		Short: "Check a registry document offline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store := repository.NewFileStore(args[0])
			doc, err := store.Load(cmd.Context())
			if err != nil {
				return fmt.Errorf("read %s: %w", args[0], err)
			}
			reg := registry.New(store, registry.WithLogger(logger.Nop()))
			n := reg.Load(cmd.Context())

			legacy := 0
			for _, e := range doc.Participants {
				if e.IsLegacy() {
					legacy++
				}
			}
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "entries:      %d (%d legacy)\n", len(doc.Participants), legacy)
			_, _ = fmt.Fprintf(out, "participants: %d\n", n)
			if skipped := len(doc.Participants) - n; skipped > 0 {
				_, _ = fmt.Fprintf(out, "skipped:      %d unresolvable or duplicate\n", skipped)
			}
			return nil
		},
	}
}
