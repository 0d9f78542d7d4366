// Package broker implements the task lifecycle core: submission and
// classification, claim dispatch under the file-lock rule, completion and
// the retry/dead-letter failure paths, consumer liveness tracking, and the
// timeout supervisor. Handlers talk to the Service; the Service talks to
// the stores.
package broker
