package local

import (
	"fmt"

	"github.com/eugenetaranov/dasctl/internal/command"
	"github.com/eugenetaranov/dasctl/internal/server"
	"github.com/eugenetaranov/dasctl/internal/verifier"
)

// Messages printed by the administration CLI.
const (
	msgExecuted = "Command %s executed successfully"
	msgFailed   = "Command %s failed"
)

// StartupContent returns the expected output of a local command.
// create-domain answers the user name and password prompts from the
// descriptor; start-domain also fails on a busy admin port.
func StartupContent(desc *server.Descriptor, cmd *command.Command) *verifier.Content {
	name := cmd.WireName(command.TransportLocal)
	done := verifier.Token{
		Success: []string{fmt.Sprintf(msgExecuted, name)},
		Error:   []string{fmt.Sprintf(msgFailed, name)},
	}

	c := verifier.NewContent()
	switch name {
	case "create-domain":
		c.Add(verifier.Token{
			Prompt:  "user name]>",
			Input:   desc.GetAdminUser() + "\n",
			Success: []string{"Enter admin user name"},
			Error:   done.Error,
		})
		c.Add(verifier.Token{
			Prompt:  "password>",
			Input:   desc.AdminPassword + "\n",
			Success: []string{"Enter the admin password"},
			Error:   done.Error,
		})
		c.Add(verifier.Token{
			Prompt:  "password again>",
			Input:   desc.AdminPassword + "\n",
			Success: []string{"Enter the admin password again"},
			Error:   done.Error,
		})
	case "start-domain":
		done.Error = append(done.Error,
			"There is a process already using the admin port",
			"is already running")
	}
	return c.Add(done)
}
