package main

import (
	"context"

	"github.com/triolingo/backend/core/identity"
)

// addUser registers an account and creates its user document.
func (cli *commandLine) addUser(email, name, pwd string) error {
	ctx := context.Background()
	id, _, err := cli.idSvc.Register(ctx, identity.NewAccount{Email: email, Password: pwd, Name: name})
	if err != nil {
		return err
	}
	if _, _, err = cli.usrSvc.EnsureUser(ctx, id); err != nil {
		return err
	}
	return nil
}
