// Package sweep drives the reschedule loop. On every cron tick it
// activates pending draft plans, then analyzes each active plan for missed
// work and applies whatever re-plan the analyzer decides.
//
// The sweep is trigger-only: all scheduling decisions live in the analyzer
// and all persistence in the store. History and notification failures are
// logged and never undo an applied reschedule.
package sweep
