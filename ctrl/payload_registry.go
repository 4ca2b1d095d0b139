package ctrl

import "github.com/c360studio/semstreams/component"

func init() {
	if err := component.RegisterPayload(&component.PayloadRegistration{
		Domain:      "control",
		Category:    "command",
		Version:     "v1",
		Description: "Control-plane command addressed to running engine instances",
		Factory:     func() any { return &Command{} },
	}); err != nil {
		panic("failed to register Command: " + err.Error())
	}

	if err := component.RegisterPayload(&component.PayloadRegistration{
		Domain:      "control",
		Category:    "result",
		Version:     "v1",
		Description: "Outcome of a control command on one engine instance",
		Factory:     func() any { return &Result{} },
	}); err != nil {
		panic("failed to register Result: " + err.Error())
	}
}
