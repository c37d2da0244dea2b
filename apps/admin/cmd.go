package main

import (
	"database/sql"
	"fmt"
	"io"
	"strings"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"golang.org/x/term"

	"github.com/oasis-elearning/oasis/core/user"
	"github.com/oasis-elearning/oasis/storage/database"
)

var (
	readPasswordFunc  = term.ReadPassword      // mockable
	runMigrationsFunc = database.RunMigrations // mockable

	errHelp      = errors.New("help provided")
	errNoDB      = errors.New("migrations require the postgres engine")
	errPwdPolicy = errors.New("password rejected")
)

type commandLine struct {
	db         *sql.DB // nil with the memory engine
	usrRepo    user.Repository
	usrSvc     *user.Service
	validate   *validator.Validate
	translator ut.Translator
	out        io.Writer
}

func (cl *commandLine) app() *cli.App {
	emailFlag := func() cli.Flag {
		return &cli.StringFlag{Name: "email", Aliases: []string{"e"}, Usage: "the user's email"}
	}

	return &cli.App{
		Name:            "admin",
		Usage:           "Oasis administration commands",
		Writer:          cl.out,
		ErrWriter:       cl.out,
		HideHelpCommand: true,
		Action: func(cCtx *cli.Context) error {
			_ = cli.ShowAppHelp(cCtx)
			return errHelp
		},
		Commands: []*cli.Command{
			{
				Name:      "adduser",
				Usage:     "create an admin, or promote and reactivate an existing user. The password is prompted.",
				UsageText: "admin adduser -email EMAIL -first-name NAME -last-name NAME -department DEPT [-role ROLE]",
				Flags: []cli.Flag{
					emailFlag(),
					&cli.StringFlag{Name: "first-name"},
					&cli.StringFlag{Name: "last-name"},
					&cli.StringFlag{Name: "department", Value: "Administration"},
					&cli.StringFlag{Name: "role", Value: user.RoleAdmin},
				},
				Action: cl.addUserAction,
			},
			{
				Name:      "resetpassword",
				Usage:     "reset a user's password. The password is prompted.",
				UsageText: "admin resetpassword -email EMAIL",
				Flags:     []cli.Flag{emailFlag()},
				Action:    cl.resetPasswordAction,
			},
			{
				Name:      "deactivate",
				Usage:     "deactivate a user account",
				UsageText: "admin deactivate -email EMAIL",
				Flags:     []cli.Flag{emailFlag()},
				Action:    cl.deactivateAction,
			},
			{
				Name:      "migrate",
				Usage:     "run a database migration command (up, up-by-one, up-to, down, down-to, redo, reset, status, version, create, fix)",
				UsageText: "admin migrate COMMAND [ARGS...]",
				Action:    cl.migrateAction,
			},
		},
	}
}

func (cl *commandLine) run(args []string) error {
	return cl.app().Run(args)
}

// promptPassword reads a password from the terminal; an empty password prints the command help.
func (cl *commandLine) promptPassword(cCtx *cli.Context) (string, error) {
	_, _ = fmt.Fprint(cl.out, "Enter password:")
	pwd, err := readPasswordFunc(int(syscall.Stdin))
	_, _ = fmt.Fprintln(cl.out)
	if err != nil {
		return "", err
	}
	if len(pwd) == 0 {
		_ = cli.ShowSubcommandHelp(cCtx)
		return "", errHelp
	}
	return string(pwd), nil
}

// checkPassword applies the password policy; a rejection carries the translated reasons.
func (cl *commandLine) checkPassword(pwd string, usr user.User) error {
	err := user.ValidatePassword(cl.validate, pwd, usr)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fe.Translate(cl.translator))
	}
	return fmt.Errorf("%w: %s", errPwdPolicy, strings.Join(msgs, "; "))
}

func (cl *commandLine) addUserAction(cCtx *cli.Context) error {
	email := cCtx.String("email")
	if email == "" {
		_ = cli.ShowSubcommandHelp(cCtx)
		return errHelp
	}
	pwd, err := cl.promptPassword(cCtx)
	if err != nil {
		return err
	}
	return cl.addUser(addUserArgs{
		email:      email,
		firstName:  cCtx.String("first-name"),
		lastName:   cCtx.String("last-name"),
		department: cCtx.String("department"),
		role:       cCtx.String("role"),
		password:   pwd,
	})
}

func (cl *commandLine) resetPasswordAction(cCtx *cli.Context) error {
	email := cCtx.String("email")
	if email == "" {
		_ = cli.ShowSubcommandHelp(cCtx)
		return errHelp
	}
	pwd, err := cl.promptPassword(cCtx)
	if err != nil {
		return err
	}
	return cl.resetPassword(email, pwd)
}

func (cl *commandLine) deactivateAction(cCtx *cli.Context) error {
	email := cCtx.String("email")
	if email == "" {
		_ = cli.ShowSubcommandHelp(cCtx)
		return errHelp
	}
	return cl.deactivate(email)
}

func (cl *commandLine) migrateAction(cCtx *cli.Context) error {
	if !cCtx.Args().Present() {
		_ = cli.ShowSubcommandHelp(cCtx)
		return errHelp
	}
	return cl.migrate(cCtx.Args().Slice())
}
