// Package chat implements a small chat room on top of rpc/command.
// It is the reference application of the module and is served by `dcp serve`.
//
// Commands (uint16) and their replies:
//
//	Ping              -> OK
//	Echo    <bytes>   -> Message <bytes>
//	Nick    <name>    -> OK <name> | Error <reason>
//	Say     <text>    -> OK <count>, every other member gets Message <nick> <text>
//	Whisper <to> <t>  -> OK <count> | Error, the member gets Message <nick> <text>
//	Who               -> OK <nick>...
//	Stats             -> OK <json>
//	Upload  <bytes>   -> OK <bytes>
//	Quit              -> OK, then the server closes the connection
//	Slow    <delay>   -> OK <delay> after the delay (max 10s)
//
// Text arguments are length prefixed strings (codec.AppendString).
// Unknown commands are answered with the fallback NotMapped, failing handlers with Error.
package chat
