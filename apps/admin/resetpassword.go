package main

import (
	"context"
)

func (cli *commandLine) resetPassword(email, pwd string) error {
	return cli.idSvc.ResetPassword(context.Background(), email, pwd)
}
