package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hitoshi/citadel/internal/booking"
	"github.com/hitoshi/citadel/internal/model"
)

// bookOptions はbookコマンドの入力。
type bookOptions struct {
	slot    string
	city    string
	areas   []string
	answers []string
	prefs   model.DinnerPreferences
}

func bookCommand(c *cli) *cobra.Command {
	var opts bookOptions
	cmd := &cobra.Command{
		Use:   "book",
		Short: "Pick a city and areas, answer the quizzes and get matched to a dinner",
		Long: `Pick a city and areas, answer the quizzes and get matched to a dinner.

With --slot the booking flow runs through the quizzes and the matching
screen to the event. Without it only the city and areas are changed.
Each screen the flow moves to is printed as it happens.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return c.withContainer(ctx, func(ct *Container) error {
				if err := requireLogin(ctx, ct); err != nil {
					return err
				}
				answers, err := parseAnswers(opts.answers)
				if err != nil {
					return err
				}
				flow, err := ct.BookingFlow(ctx, func(route string) {
					fmt.Fprintf(c.out, "-> %s\n", route)
				})
				if err != nil {
					return err
				}

				if err := c.runBooking(ctx, ct, flow, opts, answers); err != nil {
					if retryable(err) {
						return err
					}
					if _, cerr := flow.Cancel(context.WithoutCancel(ctx)); cerr != nil {
						ct.Logger.Warn("failed to cancel booking", "error", cerr)
					}
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&opts.slot, "slot", "", "dinner slot to book")
	cmd.Flags().StringVar(&opts.city, "city", "", "city id or name (required)")
	cmd.Flags().StringSliceVar(&opts.areas, "areas", nil, "preferred areas, comma separated (required)")
	cmd.Flags().StringArrayVar(&opts.answers, "answer", nil, "quiz answer as questionId=answer (repeatable)")
	cmd.Flags().StringVar(&opts.prefs.Budget, "budget", "", "budget preference")
	cmd.Flags().StringVar(&opts.prefs.Language, "language", "", "language preference")
	cmd.Flags().StringVar(&opts.prefs.DietaryRestriction, "diet", "", "dietary restriction")
	_ = cmd.MarkFlagRequired("city")
	_ = cmd.MarkFlagRequired("areas")
	return cmd
}

// runBooking はフローを終端ステップまで進める。
func (c *cli) runBooking(ctx context.Context, ct *Container, flow *booking.Flow, opts bookOptions, answers []model.QuizAnswer) error {
	var err error
	if opts.slot != "" {
		_, err = flow.StartBooking(ctx, opts.slot)
	} else {
		_, err = flow.StartBrowsing(ctx)
	}
	if err != nil {
		return err
	}

	city, ok := ct.Catalog.Find(opts.city)
	if !ok {
		return model.NewValidationError("city", fmt.Sprintf("%s は登録されていない都市です。", opts.city))
	}
	if _, err := flow.SelectCity(ctx, city); err != nil {
		return err
	}
	if _, err := flow.ConfirmAreas(ctx, opts.areas, opts.prefs); err != nil {
		return err
	}

	for {
		switch flow.State().Step {
		case booking.StepQuiz:
			_, err = flow.CompleteQuiz(ctx, answers)
		case booking.StepPersonalityQuiz:
			_, err = flow.CompletePersonalityQuiz(ctx, answers)
		case booking.StepFindingMatches:
			fmt.Fprintln(c.out, "Finding your matches...")
			_, err = flow.AwaitMatches(ctx)
		case booking.StepEventDetail:
			fmt.Fprintf(c.out, "Matched! Run `citadel pay --event %s` to confirm your seat.\n", flow.State().EventID)
			return nil
		default:
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// retryable は入力の訂正で再試行できるエラーかを返す。
// この場合は予約を取り消さず、保存済みの予約コンテキストを残す。
func retryable(err error) bool {
	return model.IsValidation(err) || model.HasCategory(err, model.CategoryBusiness)
}

// parseAnswers は"questionId=answer"形式の回答を解析する。
func parseAnswers(raw []string) ([]model.QuizAnswer, error) {
	answers := make([]model.QuizAnswer, 0, len(raw))
	for _, r := range raw {
		id, answer, ok := strings.Cut(r, "=")
		id, answer = strings.TrimSpace(id), strings.TrimSpace(answer)
		if !ok || id == "" || answer == "" {
			return nil, model.NewValidationError("answer", fmt.Sprintf("回答 %q はquestionId=answerの形式で指定してください。", r))
		}
		answers = append(answers, model.QuizAnswer{QuestionID: id, Answer: answer})
	}
	return answers, nil
}

func payCommand(c *cli) *cobra.Command {
	var (
		eventID string
		guests  int
	)
	cmd := &cobra.Command{
		Use:   "pay",
		Short: "Create a payment order for a dinner event",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return c.withContainer(ctx, func(ct *Container) error {
				if err := requireLogin(ctx, ct); err != nil {
					return err
				}
				ev, err := ct.Resources.Event(ctx, eventID)
				if err != nil {
					return err
				}
				flow, err := ct.BookingFlow(ctx, nil)
				if err != nil {
					return err
				}
				res, err := flow.CreateOrder(ctx, *ev, guests)
				if err != nil {
					return err
				}

				fmt.Fprintf(c.out, "Order:\t%s\n", res.Order.ID)
				fmt.Fprintf(c.out, "Amount:\t%s\n", formatPrice(res.Order.Amount, res.Order.Currency))
				fmt.Fprintln(c.out, "Complete the payment, then run `citadel confirm-payment` with the gateway response.")
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&eventID, "event", "", "event id (required)")
	cmd.Flags().IntVar(&guests, "guests", 1, fmt.Sprintf("number of guests (1-%d)", booking.MaxGuests))
	_ = cmd.MarkFlagRequired("event")
	return cmd
}

func confirmPaymentCommand(c *cli) *cobra.Command {
	var v model.PaymentVerification
	cmd := &cobra.Command{
		Use:   "confirm-payment",
		Short: "Verify a completed payment and confirm the booking",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return c.withContainer(ctx, func(ct *Container) error {
				if err := requireLogin(ctx, ct); err != nil {
					return err
				}
				flow, err := ct.BookingFlow(ctx, nil)
				if err != nil {
					return err
				}
				conf, err := flow.ConfirmPayment(ctx, v)
				if err != nil {
					return err
				}
				fmt.Fprintf(c.out, "Booking confirmed: %s\n", conf.BookingID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&v.OrderID, "order", "", "gateway order id")
	cmd.Flags().StringVar(&v.PaymentID, "payment", "", "gateway payment id")
	cmd.Flags().StringVar(&v.Signature, "signature", "", "gateway signature")
	return cmd
}
