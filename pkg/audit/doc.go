// Package audit records who changed which membership and when.
//
// The role transition manager emits one event per outcome, including
// denials and conflicts. Events go to a Logger; the service logs them as
// structured logrus entries and tests capture them in a MemoryLogger.
package audit
