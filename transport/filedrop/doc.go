// Package filedrop exchanges sealed envelopes through a shared directory.
//
// A sender writes each envelope to <name>.envelope.json with an atomic
// rename, so a reader never sees a partial file. A receiver either waits
// for a specific name with [Drop.Wait] or runs a [Watcher] that hands every
// new envelope to a callback.
//
// Both poll the directory with adaptive backoff: the interval starts at
// Config.InitialInterval, grows by Config.BackoffMultiplier while nothing
// new arrives, is capped at Config.MaxBackoff and resets when an envelope
// shows up. Random jitter of up to Config.JitterFactor of the interval is
// added to every wait.
package filedrop
