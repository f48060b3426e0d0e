// Package remoting implements the AMF remoting dispatcher: the
// reflection-built dispatch table, the per-body message handler with its
// command-message state machine, authentication plumbing, and the
// coercion of decoded arguments into the parameter types of registered
// procedures.
//
// The gateway boundary is Serve(requestBytes) → responseBytes; HTTP
// plumbing lives in the server package.
package remoting
