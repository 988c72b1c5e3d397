// Package libmpv binds libmpv's client API at runtime through purego, so no
// C toolchain is needed to build it.
//
// The package covers the parts of the API a player host needs:
//
//   - Library: locating, loading and binding the shared library once per
//     process (Open, Default) or explicitly (Load).
//   - Handle: a core or client handle with option, command and property
//     calls. Failures come back as *Error with the operation, target name,
//     native status and mpv's own error string.
//   - Node: the value model shared by properties, command arguments and
//     command results, with lossless conversion to and from mpv_node.
//   - Event: a closed set of typed events decoded from mpv_event records.
//
// Memory handed to mpv during a call is pinned for the duration of that
// call only. Memory mpv returns is copied into Go values and released with
// mpv_free or mpv_free_node_contents before the call returns.
//
// Example:
//
//	lib, err := libmpv.Default()
//	if err != nil {
//		return err
//	}
//	core, err := lib.Create()
//	if err != nil {
//		return err
//	}
//	defer core.TerminateDestroy()
//	if err := core.Initialize(); err != nil {
//		return err
//	}
//	_, err = core.CommandNode([]libmpv.Node{libmpv.String("loadfile"), libmpv.String("video.mp4")})
package libmpv
