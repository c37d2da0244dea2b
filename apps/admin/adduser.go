package main

import (
	"context"
	"fmt"
	"time"

	"github.com/oasis-elearning/oasis/core"
	"github.com/oasis-elearning/oasis/core/user"
)

type addUserArgs struct {
	email      string
	firstName  string
	lastName   string
	department string
	role       string
	password   string
}

// addUser updates or creates a user.User; an existing account is reactivated with the given role.
func (cl *commandLine) addUser(args addUserArgs) error {
	ctx := context.Background()
	email := core.CleanString(args.email, true /* lower */)
	role := core.CleanString(args.role, true /* lower */)
	if !core.ContainsString(user.AllRoles, role) {
		return fmt.Errorf("invalid role %q", args.role)
	}

	usr, err := cl.usrRepo.GetUser(ctx, user.GetFilter{Email: email})
	exists := err == nil
	if err != nil {
		if !core.IsNotFound(err) {
			return err
		}
		now := time.Now().UTC()
		usr = user.User{
			FirstName:  core.CleanString(args.firstName),
			LastName:   core.CleanString(args.lastName),
			Email:      email,
			Department: core.CleanString(args.department),
			CreatedAt:  now,
		}
		if usr.FirstName == "" || usr.LastName == "" || usr.Department == "" {
			return fmt.Errorf("first name, last name and department are required for a new user")
		}
	}
	usr.Role = role
	usr.IsActive = true
	usr.UpdatedAt = time.Now().UTC()

	if err = cl.checkPassword(args.password, usr); err != nil {
		return err
	}
	if err = usr.SetPassword(args.password); err != nil {
		return err
	}

	if exists {
		_, err = cl.usrRepo.UpdateUser(ctx, usr)
	} else {
		usr, err = cl.usrRepo.CreateUser(ctx, usr)
	}
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cl.out, "%s (%s) is now an active %s\n", usr.FullName(), usr.Email, usr.Role)
	return nil
}
