package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"deepsafe/internal/model"
	"deepsafe/internal/shop"
)

// NewDailyCommand creates the daily command.
func NewDailyCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "daily",
		Short: "Record today's login and collect the reward",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := restore(cmd.Context(), rootOpts)
			if err != nil {
				return err
			}
			defer sess.Close()

			res, err := sess.client.DailyLogin(cmd.Context())
			if err != nil {
				return err
			}
			if err := sess.cache.Save(cmd.Context(), res.Progress); err != nil {
				return err
			}
			return output(cmd.OutOrStdout(), rootOpts, res, func(w io.Writer) {
				if !res.Rewarded {
					fmt.Fprintf(w, "Already logged in today. Streak: %d\n", res.Progress.Streak)
					return
				}
				fmt.Fprintf(w, "Daily reward: +%d credits (streak %d)\n", res.Reward, res.Progress.Streak)
				if res.FreezeUsed {
					fmt.Fprintln(w, "A streak freeze kept your streak alive")
				}
				for _, id := range res.NewBadges {
					fmt.Fprintf(w, "New badge: %s\n", id)
				}
			})
		},
	}
}

// NewShopCommand creates the shop command group.
func NewShopCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "shop",
		Short: "Browse the shop and buy items",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List the shop catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := restore(cmd.Context(), rootOpts)
			if err != nil {
				return err
			}
			defer sess.Close()

			items, err := sess.client.ShopItems(cmd.Context())
			if err != nil {
				return err
			}
			return output(cmd.OutOrStdout(), rootOpts, items, func(w io.Writer) {
				for _, it := range items {
					stock := ""
					if !it.InStock() {
						stock = " (sold out)"
					}
					fmt.Fprintf(w, "%s  %-24s %6d credits  %s%s\n", it.ID, it.Name, it.Cost, shop.Describe(it), stock)
				}
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "buy <item-id>",
		Short: "Buy one unit of an item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			sess, err := restore(ctx, rootOpts)
			if err != nil {
				return err
			}
			defer sess.Close()

			items, err := sess.client.ShopItems(ctx)
			if err != nil {
				return err
			}
			var item *model.ShopItem
			for i := range items {
				if items[i].ID == args[0] {
					item = &items[i]
					break
				}
			}
			if item == nil {
				return fmt.Errorf("no shop item with id %s", args[0])
			}

			res := newStore(sess, cmd).Purchase(ctx, *item)
			if !res.OK {
				return res.Err()
			}
			return output(cmd.OutOrStdout(), rootOpts, res.Value, func(w io.Writer) {
				fmt.Fprintln(w, shop.FormatPurchase(*item, res.Value))
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "inventory",
		Short: "List the items you own",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := restore(cmd.Context(), rootOpts)
			if err != nil {
				return err
			}
			defer sess.Close()

			items, err := sess.client.Inventory(cmd.Context())
			if err != nil {
				return err
			}
			return output(cmd.OutOrStdout(), rootOpts, items, func(w io.Writer) {
				fmt.Fprintln(w, shop.FormatInventory(items))
			})
		},
	})

	return cmd
}
