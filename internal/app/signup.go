package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hitoshi/citadel/internal/model"
	"github.com/hitoshi/citadel/internal/navigation"
	"github.com/hitoshi/citadel/internal/signup"
	"github.com/hitoshi/citadel/internal/validation"
)

// 入力時のコマンド。どのステップでも受け付ける。
const (
	inputBack = ":back"
	inputQuit = ":quit"
)

// errStepBack は入力で前のステップに戻ることが選ばれたことを示す。
var errStepBack = errors.New("step back")

// errAbandon は入力で登録の中断が選ばれたことを示す。
var errAbandon = errors.New("abandon")

func signupCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "signup",
		Short: "Create an account step by step",
		Long: `Create an account step by step.

Answers are saved after every step, so an interrupted signup resumes with
the previous answers pre-filled. Enter ":back" to return to the previous
step or ":quit" to abandon and discard the saved answers.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return c.withContainer(ctx, func(ct *Container) error {
				flow, err := ct.SignupFlow(ctx)
				if err != nil {
					return err
				}
				return c.runSignup(ctx, flow)
			})
		},
	}
}

// runSignup は完了するか中断されるまでステップごとの入力を求める。
// 検証エラーとリモートのエラーは表示して同じステップをやり直す。
func (c *cli) runSignup(ctx context.Context, flow *signup.Flow) error {
	for {
		step := flow.Step()
		switch step {
		case signup.StepSuccess:
			fmt.Fprintln(c.out, "Your profile is ready.")
			fmt.Fprintf(c.out, "Next: %s\n", navigation.RouteEvents)
			return nil
		case signup.StepConnect:
			fmt.Fprintln(c.out, "Signup abandoned.")
			fmt.Fprintf(c.out, "Next: %s\n", navigation.RouteConnect)
			return nil
		}

		err := c.signupStep(ctx, flow, step)
		switch {
		case err == nil:
		case errors.Is(err, errStepBack):
			if _, err := flow.Back(ctx); err != nil {
				return err
			}
		case errors.Is(err, errAbandon):
			if err := flow.Abandon(ctx); err != nil {
				return err
			}
		case model.IsValidation(err), model.HasCategory(err, model.CategoryBusiness):
			fmt.Fprintln(c.out, model.UserMessage(err))
		default:
			return err
		}
	}
}

// signupStep は1ステップ分の入力を受け取りフローに渡す。
func (c *cli) signupStep(ctx context.Context, flow *signup.Flow, step signup.Step) error {
	prefill := flow.Prefill(step)

	switch step {
	case signup.StepUniversity:
		university, err := c.ask("University", prefill.University)
		if err != nil {
			return err
		}
		return flow.SelectUniversity(ctx, university)

	case signup.StepEmail:
		email, err := c.ask("University email", flow.State().Email)
		if err != nil {
			return err
		}
		alreadySent, err := flow.SubmitEmail(ctx, email)
		if err != nil {
			return err
		}
		if alreadySent {
			fmt.Fprintln(c.out, "A code was already sent. Use the code from your inbox.")
		} else {
			fmt.Fprintf(c.out, "Code sent to %s\n", email)
		}
		return nil

	case signup.StepOTP:
		code, err := c.ask("Code", "")
		if err != nil {
			return err
		}
		_, err = flow.VerifyOTP(ctx, code)
		return err

	case signup.StepWhoAreYou:
		name, err := c.ask("Name", prefill.Name)
		if err != nil {
			return err
		}
		gender, err := c.ask("Gender (male/female/other)", string(prefill.Gender))
		if err != nil {
			return err
		}
		return flow.SubmitWhoAreYou(ctx, name, model.Gender(strings.ToLower(gender)))

	case signup.StepDateOfBirth:
		def := ""
		if d, m, y, ok := validation.ParseDateOfBirth(prefill.DOB); ok {
			def = d + "/" + m + "/" + y
		}
		dob, err := c.ask("Date of birth (DD/MM/YYYY)", def)
		if err != nil {
			return err
		}
		parts := strings.Split(dob, "/")
		if len(parts) != 3 {
			return model.NewValidationError("dob", "日付はDD/MM/YYYYの形式で入力してください。")
		}
		return flow.SubmitDateOfBirth(ctx, parts[0], parts[1], parts[2])

	case signup.StepDegree:
		degree, err := c.ask("Degree", prefill.Degree)
		if err != nil {
			return err
		}
		year, err := c.ask("Year ("+strings.Join(model.StudyYears, "/")+")", prefill.Year)
		if err != nil {
			return err
		}
		_, err = flow.SubmitDegree(ctx, degree, year)
		return err
	}

	return fmt.Errorf("unsupported signup step %q", step)
}

// ask はpromptに:backと:quitの解釈を加える。
func (c *cli) ask(label, def string) (string, error) {
	v, err := c.prompt(label, def)
	if err != nil {
		return "", err
	}
	switch v {
	case inputBack:
		return "", errStepBack
	case inputQuit:
		return "", errAbandon
	}
	return v, nil
}
