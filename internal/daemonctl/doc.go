// Package daemonctl is the client side of the coordination protocol: it
// launches and stops the daemon process, submits requests, polls status
// documents, and turns an interactive interrupt into a detach or cancel.
package daemonctl
