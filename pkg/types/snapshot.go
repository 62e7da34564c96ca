package types

// GameState (free-form object; these fields are the defaults every client
// starts from):
//   score: [number, number]   // home, away
//   lock: boolean             // patched in place by SET_LOCK
//   type: string              // "general" unless the master says otherwise
//
// A state_sync replaces the whole object. Fields the master leaves out are
// gone on every receiver after the sync.
//
// GET /events/{id}/state:
//   event_id: string
//   state: GameState          // last state_sync the archive saw
//   version: number           // bumped on every archived state_sync
//   updated_at: string        // RFC 3339
