// Command fbuild is the developer-facing CLI. Operations are not executed in
// this process: each command writes a request file for the fbuild daemon,
// starts the daemon if needed, and follows the operation's status document to
// completion.
package main
