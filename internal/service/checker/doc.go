// Package checker watches a tracking session for parents and dispatchers.
//
// It polls the session status, logs every new approaching alert and exits once the session completes.
package checker
