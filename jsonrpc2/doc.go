/*
	Package jsonrpc2 implements symmetric, bidirectional JSONRPC 2.0 over any
	duplex Transport. Once a Transport is established, it does not matter
	which side initiated the connection: either side may expose methods, and
	either side may call the other's.

	Registry is the immutable method table. It is built once from one or more
	HandlerSources: a Flat mapping of names to funcs, a Capability which lists
	its own handlers, or a Receiver whose exported methods (including those
	promoted from embedded types) become callable. Names starting with an
	underscore are never exposed.

	Remote is a Transport, a Registry, and a table of pending calls. Every
	outgoing call gets a fresh correlation id and a deadline; the call is
	settled exactly once, by the matching reply, by its deadline, or by the
	caller's context. Every inbound chunk is either a call, answered in its
	own goroutine with a success or error reply, or a reply (possibly
	batched), routed by id. Malformed chunks and replies for unknown ids are
	dropped.

	When a Remote receives a call, it includes a context which contains a
	service value that can be acquired with CtxService(ctx). The service can be
	used to send calls back to the caller.
*/
package jsonrpc2
