/*
Package spellbook is a dynamic binding toolkit for code running inside a host application whose
internal class, method and field layout is only known at runtime and drifts between host versions.

# License

Source codes are under Apache License Version 2.0.

# Underwater

 1. A [Global] holds everything learned about the host: detected [Version], package name,
    [ClassLoader] and the class census read from the application archive.
 2. The probe ([Global.Attach]) fills the [Global] once per process on its own goroutine and then
    opens a one-shot [Barrier], whether probing succeeded or not.
 3. A [Binding] is a lazily resolved symbol. Its first read waits on the barrier (bounded by a timeout),
    evaluates a [Rule] against the detected version and caches the outcome forever.
 4. A [Rule] is an ordered table of version [Guard] and resolution [Strategy] pairs.
    Matching is exact: return type, arity and parameter types must all agree and exactly one member may match.

# Notes

 1. [Barrier.Await] reports whether it waited, not whether the barrier is open. A binding that timed out
    proceeds and usually fails with [ErrMissingPrerequisite].
 2. Resolution failures are terminal and loud. The failed binding keeps returning the same [ResolutionError].
 3. Bindings built with [ModeTest] never wait on the barrier and can be refreshed, so fixtures may swap
    host state through [Global.Install] between cases.
 4. Live object slots hold plain handles. Readers must handle absence, nothing decays on its own.

# Inspect tool

The inspect tool reads application archives and rule tables without a running host:

	go install github.com/ZenLiuCN/spellbook/inspect@latest

For more details see the cli help:

	inspect -h

# Samples

See mirror/storage and the tests.
*/
package spellbook
