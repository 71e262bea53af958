/*
Package dsl provides a fluent builder for declaring workflows in Go.

It is the programmatic counterpart of the YAML/JSON definitions in package
definition: type-checked, with arbitrary Go functions as action bodies.

Example usage:

	b := dsl.New("procurement", "rfq_uploaded")

	b.Action("process_rfq").
		Requires("rfq_uploaded").
		To("processing").
		Cost(1).
		Emit("rfq_processed_event", nil)

	b.Action("request_roles").
		Requires("processing").
		To("awaiting_role_assignment").
		Notify("roles_needed", "manager")

	b.On("rfq_uploaded_event").Run("process_rfq")
	b.On("rfq_processed_event").Run("request_roles")

	wf, err := b.Build()
*/
package dsl
