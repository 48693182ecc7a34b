package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/habedi/salonctl/client"
	"github.com/habedi/salonctl/pkg/pool"
	"github.com/habedi/salonctl/pkg/validation"
	"github.com/olekukonko/tablewriter"
	"github.com/rs/zerolog/log"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

func salonsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "salons",
		Short: "Browse salons",
	}
	cmd.AddCommand(searchSalonsCmd(opts))
	return cmd
}

func searchSalonsCmd(opts *rootOptions) *cobra.Command {
	var q client.SalonQuery

	cmd := &cobra.Command{
		Use:   "search [text]",
		Short: "Search salons by name, service or city",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				q.Text = args[0]
			}
			salons, err := opts.app.client.SearchSalons(cmd.Context(), q)
			if err != nil {
				return err
			}
			if len(salons) == 0 {
				cmd.Println("No salons found.")
				return nil
			}
			renderSalons(cmd, salons)
			return nil
		},
	}

	cmd.Flags().StringVar(&q.City, "city", "", "Only show salons in this city")
	cmd.Flags().IntVar(&q.Page, "page", 0, "Result page")
	cmd.Flags().IntVar(&q.Limit, "limit", 0, "Results per page")

	return cmd
}

func renderSalons(cmd *cobra.Command, salons []client.Salon) {
	table := tablewriter.NewWriter(cmd.OutOrStdout())
	table.SetHeader([]string{"ID", "Name", "City", "Rating"})
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAutoWrapText(false)
	for _, s := range salons {
		table.Append([]string{s.ID, strings.ReplaceAll(s.Name, "\n", " "), s.City, fmt.Sprintf("%.1f", s.Rating)})
	}
	table.Render()
}

func appointmentsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "appointments",
		Short: "Manage your appointments",
	}
	cmd.AddCommand(listAppointmentsCmd(opts), showAppointmentsCmd(opts))
	return cmd
}

func listAppointmentsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List your appointments",
		RunE: func(cmd *cobra.Command, args []string) error {
			appts, err := opts.app.client.ListAppointments(cmd.Context())
			if err != nil {
				return err
			}
			if len(appts) == 0 {
				cmd.Println("You have no appointments.")
				return nil
			}
			renderAppointments(cmd, appts)
			return nil
		},
	}
}

func showAppointmentsCmd(opts *rootOptions) *cobra.Command {
	var workers int

	cmd := &cobra.Command{
		Use:   "show <id>...",
		Short: "Show one or more appointments",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("workers") {
				workers = opts.app.cfg.Workers
			}
			if err := validation.ValidateWorkerCount(workers); err != nil {
				return err
			}

			bar := progressbar.NewOptions(len(args),
				progressbar.OptionSetWriter(cmd.ErrOrStderr()),
				progressbar.OptionSetDescription("Fetching appointments..."),
				progressbar.OptionSetWidth(20),
				progressbar.OptionShowCount(),
				progressbar.OptionClearOnFinish(),
			)
			results := pool.Map(cmd.Context(), args, workers,
				func(ctx context.Context, id string) (*client.Appointment, error) {
					return opts.app.client.GetAppointment(ctx, id)
				},
				func() { _ = bar.Add(1) },
			)
			_ = bar.Finish()

			var found []client.Appointment
			var firstErr error
			for i, r := range results {
				if r.Err != nil {
					log.Warn().Err(r.Err).Str("id", args[i]).Msg("Failed to fetch appointment")
					cmd.PrintErrf("%s: %s\n", args[i], describeError(r.Err))
					if firstErr == nil {
						firstErr = r.Err
					}
					continue
				}
				found = append(found, *r.Value)
			}
			if len(found) > 0 {
				renderAppointments(cmd, found)
			}
			return firstErr
		},
	}

	cmd.Flags().IntVarP(&workers, "workers", "w", 4, fmt.Sprintf("Concurrent requests [%d-%d]", validation.MinWorkers, validation.MaxWorkers))

	return cmd
}

func renderAppointments(cmd *cobra.Command, appts []client.Appointment) {
	table := tablewriter.NewWriter(cmd.OutOrStdout())
	table.SetHeader([]string{"ID", "Salon", "Service", "Starts", "Status"})
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAutoWrapText(false)
	for _, a := range appts {
		salon := a.SalonName
		if salon == "" {
			salon = a.SalonID
		}
		starts := ""
		if !a.StartsAt.IsZero() {
			starts = a.StartsAt.Local().Format("2006-01-02 15:04")
		}
		table.Append([]string{a.ID, salon, a.Service, starts, a.Status})
	}
	table.Render()
}

func favoritesCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "favorites",
		Short: "Manage your favorite salons",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List favorite salons",
			RunE: func(cmd *cobra.Command, args []string) error {
				salons, err := opts.app.client.ListFavorites(cmd.Context())
				if err != nil {
					return err
				}
				if len(salons) == 0 {
					cmd.Println("You have no favorite salons.")
					return nil
				}
				renderSalons(cmd, salons)
				return nil
			},
		},
		&cobra.Command{
			Use:   "add <salon-id>",
			Short: "Add a salon to your favorites",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := opts.app.client.AddFavorite(cmd.Context(), args[0]); err != nil {
					return err
				}
				cmd.Println("Added", args[0], "to favorites.")
				return nil
			},
		},
		&cobra.Command{
			Use:   "remove <salon-id>",
			Short: "Remove a salon from your favorites",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := opts.app.client.RemoveFavorite(cmd.Context(), args[0]); err != nil {
					return err
				}
				cmd.Println("Removed", args[0], "from favorites.")
				return nil
			},
		},
	)

	return cmd
}
