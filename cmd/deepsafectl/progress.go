package main

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"deepsafe/internal/geo"
	"deepsafe/internal/model"
	"deepsafe/internal/pkg/result"
	"deepsafe/internal/progression"
)

// NewProgressCommand creates the progress command group. Every subcommand
// runs one Store action against the server and mirrors the confirmed state
// into the local cache.
func NewProgressCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "progress",
		Short: "Show and change your progress",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Fetch and print your progress",
		Args:  cobra.NoArgs,
		RunE: storeAction(rootOpts, func(ctx context.Context, s *progression.Store, _ []string) result.Result[model.Progress] {
			return s.Refresh(ctx)
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "cached",
		Short: "Print the last confirmed progress without contacting the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := restoreOffline(cmd.Context(), rootOpts)
			if err != nil {
				return err
			}
			defer sess.Close()

			store := newStore(sess, cmd)
			found, err := store.Hydrate(cmd.Context())
			if err != nil {
				return err
			}
			if !found {
				return fmt.Errorf("nothing cached yet, run deepsafectl progress show")
			}
			return printProgress(cmd.OutOrStdout(), rootOpts, store.Confirmed())
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "add-xp <amount>",
		Short: "Add experience points",
		Args:  cobra.ExactArgs(1),
		RunE: storeAction(rootOpts, func(ctx context.Context, s *progression.Store, args []string) result.Result[model.Progress] {
			amount, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return result.Fail[model.Progress](result.KindValidation, "amount must be a whole number")
			}
			return s.AddXP(ctx, amount)
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:       "streak <increment|reset>",
		Short:     "Increment or reset the streak",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"increment", "reset"},
		RunE: storeAction(rootOpts, func(ctx context.Context, s *progression.Store, args []string) result.Result[model.Progress] {
			switch args[0] {
			case "increment":
				return s.IncrementStreak(ctx)
			case "reset":
				return s.ResetStreak(ctx)
			}
			return result.Fail[model.Progress](result.KindValidation, "expected increment or reset")
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:       "lives <lose|refill|regenerate>",
		Short:     "Lose, refill or regenerate lives",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"lose", "refill", "regenerate"},
		RunE: storeAction(rootOpts, func(ctx context.Context, s *progression.Store, args []string) result.Result[model.Progress] {
			switch args[0] {
			case "lose":
				res := s.DecrementLives(ctx)
				if !res.OK {
					return result.Fail[model.Progress](res.Kind, res.Message)
				}
				return result.OK(s.Confirmed())
			case "refill":
				return s.RefillLives(ctx)
			case "regenerate":
				return s.RegenerateLives(ctx)
			}
			return result.Fail[model.Progress](result.KindValidation, "expected lose, refill or regenerate")
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "unlock <province>",
		Short: "Unlock a province",
		Args:  cobra.ExactArgs(1),
		RunE: storeAction(rootOpts, func(ctx context.Context, s *progression.Store, args []string) result.Result[model.Progress] {
			return s.UnlockProvince(ctx, args[0])
		}),
	})

	var completed bool
	score := &cobra.Command{
		Use:   "score <province> <score> <max-score>",
		Short: "Record a province score; the best score is kept",
		Args:  cobra.ExactArgs(3),
		RunE: storeAction(rootOpts, func(ctx context.Context, s *progression.Store, args []string) result.Result[model.Progress] {
			got, err1 := strconv.Atoi(args[1])
			maxScore, err2 := strconv.Atoi(args[2])
			if err1 != nil || err2 != nil {
				return result.Fail[model.Progress](result.KindValidation, "score and max-score must be whole numbers")
			}
			return s.UpdateProvinceScore(ctx, args[0], got, maxScore, completed)
		}),
	}
	score.Flags().BoolVar(&completed, "completed", false, "mark the province completed")
	cmd.AddCommand(score)

	cmd.AddCommand(&cobra.Command{
		Use:   "badges",
		Short: "Award every badge whose condition is met",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := restore(cmd.Context(), rootOpts)
			if err != nil {
				return err
			}
			defer sess.Close()

			res := newStore(sess, cmd).CheckBadges(cmd.Context())
			if !res.OK {
				return res.Err()
			}
			return output(cmd.OutOrStdout(), rootOpts, res.Value, func(w io.Writer) {
				if len(res.Value) == 0 {
					fmt.Fprintln(w, "No new badges")
					return
				}
				for _, id := range res.Value {
					fmt.Fprintf(w, "New badge: %s\n", id)
				}
			})
		},
	})

	return cmd
}

// storeAction wraps one Store action into a cobra RunE.
func storeAction(rootOpts *RootOptions, action func(context.Context, *progression.Store, []string) result.Result[model.Progress]) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		sess, err := restore(cmd.Context(), rootOpts)
		if err != nil {
			return err
		}
		defer sess.Close()

		res := action(cmd.Context(), newStore(sess, cmd), args)
		if !res.OK {
			return res.Err()
		}
		return printProgress(cmd.OutOrStdout(), rootOpts, res.Value)
	}
}

func newStore(sess *session, cmd *cobra.Command) *progression.Store {
	return progression.NewStore(sess.client, sess.userID,
		progression.WithCache(sess.cache),
		progression.WithGeography(geo.Default()),
		progression.WithNotifier(progression.NotifierFunc(func(n progression.Notice) {
			fmt.Fprintf(cmd.ErrOrStderr(), "not saved (%s): %s\n", n.Op, n.Message)
		})),
	)
}

func printProgress(w io.Writer, opts *RootOptions, p model.Progress) error {
	return output(w, opts, p, func(w io.Writer) {
		fmt.Fprintf(w, "XP:        %d\n", p.XP)
		fmt.Fprintf(w, "Credits:   %d\n", p.Credits)
		fmt.Fprintf(w, "Lives:     %d/%d\n", p.Lives, p.MaxLives)
		fmt.Fprintf(w, "Streak:    %d (best %d)\n", p.Streak, p.HighestStreak)
		fmt.Fprintf(w, "Provinces: %d unlocked\n", len(p.UnlockedProvinces))
		fmt.Fprintf(w, "Badges:    %d\n", len(p.EarnedBadges))
		fmt.Fprintf(w, "Version:   %d\n", p.Version)
	})
}
