/*
Package definition loads workflows declared in YAML or JSON files.

	key: procurement
	initial_state: rfq_uploaded
	messages:
	  roles_needed: "Please assign the approvers for this RFQ."
	actions:
	  - key: process_rfq
	    kind: transition
	    requires_state: rfq_uploaded
	    params: { to: processing, data: { rfq_id: "12345" } }
	    emit: { key: rfq_processed_event }
	triggers:
	  - event: rfq_uploaded_event
	    action: process_rfq
	    when: { state: rfq_uploaded }

Triggers are registered in file order, which is their priority. Action kinds
come from a registry.Registry.
*/
package definition
