package main

import (
	"context"
	"fmt"
)

func (cl *commandLine) resetPassword(email, pwd string) error {
	ctx := context.Background()
	usr, err := cl.usrSvc.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if err = cl.checkPassword(pwd, usr); err != nil {
		return err
	}
	if err = cl.usrSvc.SetPassword(ctx, usr, pwd); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cl.out, "password of %s updated\n", usr.Email)
	return nil
}

func (cl *commandLine) deactivate(email string) error {
	ctx := context.Background()
	usr, err := cl.usrSvc.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if _, err = cl.usrSvc.Deactivate(ctx, usr); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cl.out, "%s deactivated\n", usr.Email)
	return nil
}
