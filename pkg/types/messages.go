package types

// Envelope (both directions over /ws?event=<id>&role=<role>&client=<id>):
//   id: string        // unique per envelope; the relay fills it when empty
//   kind: "master_command" | "state_sync" | "referee_conflict"
//   sender: string    // stamped by the relay with the connection's client id
//   seq: number       // per-sender, increasing
//   payload: object   // shape depends on kind
//
// master_command payload:
//   kind: string      // "SET_LOCK" | "TRIGGER_EFFECT" | any other command name
//   data: any         // SET_LOCK: { locked: boolean }
//   target: "all" | "master" | "operator" | "display"
//
// state_sync payload:
//   state: object     // the full authoritative state, see snapshot.go
//
// referee_conflict payload:
//   message: string
//
// Every envelope is echoed to its sender. Receivers drop commands whose
// target is neither "all" nor their own role, and only masters keep
// conflict reports.

// Server -> Client
// Error (a frame the relay refused; never forwarded):
//   error: string
