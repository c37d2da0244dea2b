package main

func (cl *commandLine) migrate(args []string) error {
	if cl.db == nil {
		return errNoDB
	}
	return runMigrationsFunc(cl.db, args[0], args[1:]...)
}
