// Package task runs advice requests asynchronously: jobs are persisted in a
// Store, their IDs travel through a Queue and a Processor executes the
// advisory pipeline for each one.
package task
