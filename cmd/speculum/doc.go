// Command speculum plans and runs report workflows for tracker issues.
//
// Subcommands:
//
//	plan <issue>              show the execution plan and output layout
//	process <issue>...        run issues end to end
//	status [--issue N]        state counts, records, preflight, plan history
//	recover                   close attempts left PROCESSING by a crash
//	resume <issue>            move a PAUSED issue back to PENDING
//	definitions [--watch]     list loaded workflow definitions
//	config init|validate      configuration utilities
package main
