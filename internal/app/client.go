package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/hitoshi/citadel/internal/auth"
	"github.com/hitoshi/citadel/internal/model"
	"github.com/hitoshi/citadel/internal/navigation"
	"github.com/hitoshi/citadel/internal/session"
)

// maxCodeAttempts はログイン時にOTPの再入力を受け付ける回数。
const maxCodeAttempts = 3

// ErrNotLoggedIn はログインが必要なコマンドを未ログインで実行したことを示す。
var ErrNotLoggedIn = errors.New("not logged in: run `citadel login` first")

// withContainer はコンテナを組み立ててfnを実行し、終了時に接続を閉じる。
func (c *cli) withContainer(ctx context.Context, fn func(ct *Container) error) error {
	ct, err := c.container(ctx)
	if err != nil {
		return err
	}
	defer ct.Close()
	return fn(ct)
}

// requireLogin はアクセストークンが保存されていなければErrNotLoggedInを返す。
func requireLogin(ctx context.Context, ct *Container) error {
	if !ct.Sessions.IsAuthenticated(ctx) {
		return ErrNotLoggedIn
	}
	return nil
}

func loginCommand(c *cli) *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in with a one-time code sent by email",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return c.withContainer(ctx, func(ct *Container) error {
				var err error
				if email == "" {
					if email, err = c.prompt("Email", ""); err != nil {
						return err
					}
				}

				if err := ct.Auth.RequestCode(ctx, email); err != nil {
					return err
				}
				if ct.Auth.AlreadySent() {
					fmt.Fprintln(c.out, "A code was already sent. Use the code from your inbox.")
				} else {
					fmt.Fprintf(c.out, "Code sent to %s\n", ct.Auth.Email())
				}

				var res *auth.Result
				for attempt := 1; ; attempt++ {
					code, err := c.prompt("Code", "")
					if err != nil {
						return err
					}
					res, err = ct.Auth.Verify(ctx, code)
					if err == nil {
						break
					}
					if attempt >= maxCodeAttempts || !(model.IsValidation(err) || model.HasCategory(err, model.CategoryBusiness)) {
						return err
					}
					fmt.Fprintln(c.out, model.UserMessage(err))
				}

				if err := ct.Navigator.CompleteFirstVisit(ctx); err != nil {
					return err
				}
				fmt.Fprintf(c.out, "Logged in as %s\n", res.User.Email)
				if res.Route == navigation.RouteWhoAreYou {
					fmt.Fprintln(c.out, "Your profile is incomplete. Run `citadel signup` to finish it.")
				}
				fmt.Fprintf(c.out, "Next: %s\n", res.Route)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "email address to log in with")
	return cmd
}

func logoutCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Clear the session and all local state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return c.withContainer(ctx, func(ct *Container) error {
				if err := ct.Logout(ctx); err != nil {
					return err
				}
				fmt.Fprintln(c.out, "Logged out.")
				return nil
			})
		},
	}
}

func statusCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the session and the restored navigation state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return c.withContainer(ctx, func(ct *Container) error {
				sess, err := ct.Sessions.Validate(ctx)
				if errors.Is(err, session.ErrNotAuthenticated) {
					fmt.Fprintln(c.out, "Not logged in.")
					return nil
				}
				if err != nil {
					return err
				}

				snap, err := ct.Navigator.Restore(ctx)
				if err != nil {
					return err
				}

				w := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
				if sess.User != nil {
					fmt.Fprintf(w, "User:\t%s\n", sess.User.Email)
					fmt.Fprintf(w, "Profile complete:\t%t\n", sess.User.IsProfileComplete)
					fmt.Fprintf(w, "Landing:\t%s\n", auth.LandingRoute(*sess.User))
				}
				fmt.Fprintf(w, "Section:\t%s (%s)\n", snap.Section, snap.Section.Route())
				if snap.SelectedCity != nil {
					fmt.Fprintf(w, "City:\t%s\n", snap.SelectedCity.Name)
				}
				return w.Flush()
			})
		},
	}
}

func citiesCommand(c *cli) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "cities",
		Short: "List cities where dinners are hosted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withContainer(cmd.Context(), func(ct *Container) error {
				cities := ct.Catalog.Selectable()
				if all {
					cities = ct.Catalog.Cities()
				}
				w := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tNAME\tSTATUS\tAREAS")
				for _, city := range cities {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", city.ID, city.Name, cityStatus(city), strings.Join(city.Areas, ", "))
				}
				return w.Flush()
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "include cities that are not yet available")
	return cmd
}

func cityStatus(city model.City) string {
	switch {
	case city.Selectable():
		return "available"
	case city.ComingSoon:
		return "coming soon"
	default:
		return "unavailable"
	}
}

func eventsCommand(c *cli) *cobra.Command {
	var filter model.EventFilter
	cmd := &cobra.Command{
		Use:   "events",
		Short: "List upcoming dinner events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return c.withContainer(ctx, func(ct *Container) error {
				if err := requireLogin(ctx, ct); err != nil {
					return err
				}
				if filter.City == "" {
					if city, err := ct.Navigator.SelectedCity(ctx); err == nil && city != nil {
						filter.City = city.Name
					}
				}

				list, err := ct.Resources.Events(ctx, filter)
				if err != nil {
					return err
				}
				if _, err := ct.Navigator.Land(ctx, navigation.SectionEvents); err != nil {
					return err
				}

				if len(list.Events) == 0 {
					fmt.Fprintln(c.out, "No upcoming events.")
					return nil
				}
				w := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tDATE\tTIME\tCITY\tAREA\tSEATS\tPRICE")
				for _, ev := range list.Events {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
						ev.ID, ev.Date, ev.Time, ev.City, ev.Area, ev.AvailableSeats, formatPrice(ev.Price, ev.Currency))
				}
				return w.Flush()
			})
		},
	}
	cmd.Flags().StringVar(&filter.City, "city", "", "city name (defaults to the selected city)")
	cmd.Flags().StringVar(&filter.Date, "date", "", "date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&filter.Area, "area", "", "area within the city")
	return cmd
}

func eventCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "event <id>",
		Short: "Show a dinner event",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return c.withContainer(ctx, func(ct *Container) error {
				if err := requireLogin(ctx, ct); err != nil {
					return err
				}
				ev, err := ct.Resources.Event(ctx, args[0])
				if err != nil {
					return err
				}
				printEvent(c, ev)
				return nil
			})
		},
	}
}

func printEvent(c *cli, ev *model.DinnerEvent) {
	w := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	if ev.Title != "" {
		fmt.Fprintf(w, "Title:\t%s\n", ev.Title)
	}
	fmt.Fprintf(w, "ID:\t%s\n", ev.ID)
	fmt.Fprintf(w, "When:\t%s %s\n", ev.Date, ev.Time)
	fmt.Fprintf(w, "Where:\t%s\n", eventLocation(ev))
	fmt.Fprintf(w, "Seats:\t%d/%d\n", ev.AvailableSeats, ev.TotalSeats)
	fmt.Fprintf(w, "Price:\t%s\n", formatPrice(ev.Price, ev.Currency))
	fmt.Fprintf(w, "Route:\t%s\n", navigation.EventRoute(ev.ID))
	_ = w.Flush()
}

func eventLocation(ev *model.DinnerEvent) string {
	parts := make([]string, 0, 3)
	for _, p := range []string{ev.Venue, ev.Area, ev.City} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

func formatPrice(price float64, currency string) string {
	if currency == "" {
		currency = model.PaymentCurrencyINR
	}
	return fmt.Sprintf("%.2f %s", price, currency)
}

func bookingsCommand(c *cli) *cobra.Command {
	var past bool
	cmd := &cobra.Command{
		Use:   "bookings",
		Short: "List your dinner bookings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return c.withContainer(ctx, func(ct *Container) error {
				if err := requireLogin(ctx, ct); err != nil {
					return err
				}
				typ := model.BookingTypeUpcoming
				if past {
					typ = model.BookingTypePast
				}
				bookings, err := ct.Resources.Bookings(ctx, typ)
				if err != nil {
					return err
				}
				if _, err := ct.Navigator.Land(ctx, navigation.SectionBookings); err != nil {
					return err
				}

				if len(bookings) == 0 {
					fmt.Fprintf(c.out, "No %s bookings.\n", typ)
					return nil
				}
				w := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tEVENT\tSTATUS\tGUESTS\tDATE")
				for _, b := range bookings {
					date := ""
					if b.Event != nil {
						date = b.Event.Date
					}
					fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", b.ID, b.EventID, b.Status, b.Guests, date)
				}
				return w.Flush()
			})
		},
	}
	cmd.Flags().BoolVar(&past, "past", false, "show past bookings instead of upcoming ones")
	return cmd
}

func profileCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "profile",
		Short: "Show your profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return c.withContainer(ctx, func(ct *Container) error {
				if err := requireLogin(ctx, ct); err != nil {
					return err
				}
				p, err := ct.Resources.Profile(ctx)
				if err != nil {
					return err
				}
				if _, err := ct.Navigator.Land(ctx, navigation.SectionProfile); err != nil {
					return err
				}

				w := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
				fmt.Fprintf(w, "Name:\t%s\n", p.Name)
				fmt.Fprintf(w, "Email:\t%s\n", p.Email)
				if p.University != "" {
					fmt.Fprintf(w, "University:\t%s\n", p.University)
				}
				if p.Degree != "" {
					fmt.Fprintf(w, "Degree:\t%s (year %d)\n", p.Degree, p.Year)
				}
				return w.Flush()
			})
		},
	}
}
