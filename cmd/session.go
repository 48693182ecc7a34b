package cmd

import (
	"context"
	"errors"
	"time"

	"github.com/habedi/salonctl/auth"
	"github.com/habedi/salonctl/pkg/apierr"
	"github.com/habedi/salonctl/pkg/validation"
	"github.com/olekukonko/tablewriter"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/oauth2"
)

// profileWait bounds how long login waits for the background profile fetch.
const profileWait = 5 * time.Second

var socialProviders = []string{"google", "apple", "facebook"}

func signupCmd(opts *rootOptions) *cobra.Command {
	var acct auth.NewAccount

	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Create a new account",
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if acct.Email, err = valueOrPrompt(cmd, opts, acct.Email, "Email: "); err != nil {
				return err
			}
			if acct.Password, err = promptForPassword(cmd, opts, "Password: "); err != nil {
				return err
			}
			confirm, err := promptForPassword(cmd, opts, "Confirm password: ")
			if err != nil {
				return err
			}
			if confirm != acct.Password {
				return apierr.New(apierr.ValidationFailed, "passwords do not match", nil)
			}

			res, err := opts.app.service.SignUp(cmd.Context(), acct)
			if err != nil {
				return err
			}
			cmd.Println("Account created. User ID:", res.UserID)
			cmd.Printf("Check your email, then run: salonctl verify --user-id %s --code <code>\n", res.UserID)
			return nil
		},
	}

	cmd.Flags().StringVarP(&acct.Email, "email", "e", "", "Email address")
	cmd.Flags().StringVar(&acct.FirstName, "first-name", "", "First name")
	cmd.Flags().StringVar(&acct.LastName, "last-name", "", "Last name")
	cmd.Flags().StringVar(&acct.Phone, "phone", "", "Phone number")

	return cmd
}

func verifyCmd(opts *rootOptions) *cobra.Command {
	var userID, code string

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify a new account with the emailed code",
		RunE: func(cmd *cobra.Command, args []string) error {
			ok, err := opts.app.service.VerifyCode(cmd.Context(), userID, code)
			if err != nil {
				return err
			}
			if !ok {
				return apierr.New(apierr.ValidationFailed, "the verification code was not accepted", nil)
			}
			cmd.Println("Account verified. You can now log in.")
			return nil
		},
	}

	cmd.Flags().StringVarP(&userID, "user-id", "u", "", "User ID printed by signup")
	cmd.Flags().StringVarP(&code, "code", "k", "", "Verification code")
	for _, name := range []string{"user-id", "code"} {
		if err := cmd.MarkFlagRequired(name); err != nil {
			log.Error().Err(err).Msgf("Failed to mark '%s' flag as required", name)
		}
	}

	return cmd
}

func loginCmd(opts *rootOptions) *cobra.Command {
	var email string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in with email and password",
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := valueOrPrompt(cmd, opts, email, "Email: ")
			if err != nil {
				return err
			}
			password, err := promptForPassword(cmd, opts, "Password: ")
			if err != nil {
				return err
			}
			if err := opts.app.service.SignIn(cmd.Context(), addr, password); err != nil {
				return err
			}
			return greet(cmd, opts.app.service)
		},
	}

	cmd.Flags().StringVarP(&email, "email", "e", "", "Email address")

	return cmd
}

func socialCmd(opts *rootOptions) *cobra.Command {
	var provider, accessToken, idToken string

	cmd := &cobra.Command{
		Use:   "social",
		Short: "Log in with a token issued by a social identity provider",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validation.ValidateProvider(provider, socialProviders); err != nil {
				return apierr.New(apierr.ValidationFailed, err.Error(), nil)
			}
			tok := &oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"}
			if idToken != "" {
				tok = tok.WithExtra(map[string]any{"id_token": idToken})
			}
			assertion, err := auth.AssertionFromToken(provider, tok)
			if err != nil {
				return apierr.New(apierr.ValidationFailed, "either --token or --id-token is required", err)
			}
			if err := opts.app.service.SocialAuth(cmd.Context(), assertion); err != nil {
				return err
			}
			return greet(cmd, opts.app.service)
		},
	}

	cmd.Flags().StringVarP(&provider, "provider", "p", "", "Identity provider (google, apple, facebook)")
	cmd.Flags().StringVarP(&accessToken, "token", "t", "", "Provider access token")
	cmd.Flags().StringVar(&idToken, "id-token", "", "Provider OpenID Connect ID token")
	if err := cmd.MarkFlagRequired("provider"); err != nil {
		log.Error().Err(err).Msg("Failed to mark 'provider' flag as required")
	}

	return cmd
}

// greet waits briefly for the profile and prints who is logged in.
func greet(cmd *cobra.Command, svc *auth.Service) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), profileWait)
	defer cancel()
	if err := svc.WaitProfile(ctx); err != nil {
		log.Debug().Err(err).Msg("Profile not ready yet")
	}
	p, err := svc.CurrentUser(cmd.Context())
	if err != nil || p == nil || p.DisplayName() == "" {
		cmd.Println("Login was successful.")
		return nil
	}
	cmd.Printf("Logged in as %s.\n", p.DisplayName())
	return nil
}

func logoutCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Log out and remove stored credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.app.service.Logout(cmd.Context()); err != nil {
				return err
			}
			cmd.Println("Logged out.")
			return nil
		},
	}
}

func whoamiCmd(opts *rootOptions) *cobra.Command {
	var refresh bool

	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Show the logged-in user",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc := opts.app.service
			ok, err := svc.IsAuthenticated(cmd.Context())
			if err != nil {
				return err
			}
			if !ok {
				return auth.ErrNoSession
			}

			p, err := svc.CurrentUser(cmd.Context())
			if refresh || p == nil || p.Placeholder {
				p, err = svc.RefreshProfile(cmd.Context())
			}
			if err != nil {
				return err
			}

			table := tablewriter.NewWriter(cmd.OutOrStdout())
			table.SetAlignment(tablewriter.ALIGN_LEFT)
			table.Append([]string{"ID", p.ID})
			table.Append([]string{"Name", p.DisplayName()})
			table.Append([]string{"Email", p.Email})
			table.Append([]string{"Phone", p.Phone})
			table.Append([]string{"Verified", yesNo(p.Verified)})
			table.Render()
			return nil
		},
	}

	cmd.Flags().BoolVarP(&refresh, "refresh", "r", false, "Fetch the profile from the server instead of the local cache")

	return cmd
}

func statusCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the local session state",
		RunE: func(cmd *cobra.Command, args []string) error {
			a := opts.app
			rec, err := a.service.Session(cmd.Context())
			if err != nil {
				return err
			}
			deviceID, err := a.store.DeviceID(cmd.Context())
			if err != nil {
				return err
			}

			table := tablewriter.NewWriter(cmd.OutOrStdout())
			table.SetAlignment(tablewriter.ALIGN_LEFT)
			table.Append([]string{"API", a.cfg.BaseURL})
			table.Append([]string{"Device", deviceID})
			table.Append([]string{"Logged in", yesNo(rec != nil)})
			if rec != nil {
				table.Append([]string{"Issued", rec.IssuedAt.Local().Format(time.RFC1123)})
				expires := "unknown"
				if !rec.ExpiresAt.IsZero() {
					expires = rec.ExpiresAt.Local().Format(time.RFC1123)
					if rec.Expired(time.Now()) {
						expires += " (expired, will refresh on next request)"
					}
				}
				table.Append([]string{"Expires", expires})
			}
			table.Append([]string{"Refresh", a.coordinator.State().String()})
			table.Render()
			return nil
		},
	}
}

func passwordCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "password",
		Short: "Recover a forgotten password",
	}
	cmd.AddCommand(forgotPasswordCmd(opts), resetPasswordCmd(opts))
	return cmd
}

func forgotPasswordCmd(opts *rootOptions) *cobra.Command {
	var email string

	cmd := &cobra.Command{
		Use:   "forgot",
		Short: "Request a password reset email",
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := valueOrPrompt(cmd, opts, email, "Email: ")
			if err != nil {
				return err
			}
			if err := opts.app.service.RequestPasswordReset(cmd.Context(), addr); err != nil {
				return err
			}
			cmd.Println("If the account exists, a reset email is on its way.")
			return nil
		},
	}

	cmd.Flags().StringVarP(&email, "email", "e", "", "Email address")

	return cmd
}

func resetPasswordCmd(opts *rootOptions) *cobra.Command {
	var token string

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Set a new password using a reset token",
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := promptForPassword(cmd, opts, "New password: ")
			if err != nil {
				return err
			}
			ok, err := opts.app.service.ResetPassword(cmd.Context(), token, password)
			if err != nil {
				return err
			}
			if !ok {
				return errors.New("the server did not accept the reset token")
			}
			cmd.Println("Password updated. You can now log in.")
			return nil
		},
	}

	cmd.Flags().StringVarP(&token, "token", "t", "", "Reset token from the email")
	if err := cmd.MarkFlagRequired("token"); err != nil {
		log.Error().Err(err).Msg("Failed to mark 'token' flag as required")
	}

	return cmd
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
